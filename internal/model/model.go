// Package model содержит доменные сущности клиента бронирования автошкол.
package model

import "time"

// BookingStatus описывает статус бронирования на стороне API.
type BookingStatus string

const (
	BookingStatusPending   BookingStatus = "PENDING"
	BookingStatusConfirmed BookingStatus = "CONFIRMED"
	BookingStatusCancelled BookingStatus = "CANCELLED"
	BookingStatusCompleted BookingStatus = "COMPLETED"
)

// Valid сообщает, входит ли статус в допустимое множество.
func (s BookingStatus) Valid() bool {
	switch s {
	case BookingStatusPending, BookingStatusConfirmed, BookingStatusCancelled, BookingStatusCompleted:
		return true
	}
	return false
}

// SchoolRef содержит краткую ссылку на автошколу внутри бронирования.
type SchoolRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// OfferRef содержит краткую ссылку на формулу обучения внутри бронирования.
type OfferRef struct {
	ID    string  `json:"id"`
	Name  string  `json:"name"`
	Price float64 `json:"price"`
}

// BookingUser содержит данные ученика, которые API возвращает вместе с бронированием.
type BookingUser struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Booking описывает бронирование ученика.
type Booking struct {
	ID        string        `json:"id"`
	School    SchoolRef     `json:"school"`
	Offer     OfferRef      `json:"offer"`
	User      *BookingUser  `json:"user,omitempty"`
	Date      string        `json:"date"`
	Time      string        `json:"time,omitempty"`
	Status    BookingStatus `json:"status"`
	CreatedAt *Timestamp    `json:"createdAt,omitempty"`
}

// CreateBookingRequest описывает тело запроса POST /bookings.
type CreateBookingRequest struct {
	SchoolID string `json:"schoolId"`
	OfferID  string `json:"offerId"`
	Date     string `json:"date"`
	Time     string `json:"time,omitempty"`
}

// InvoiceStatus описывает статус оплаты счёта.
type InvoiceStatus string

const (
	InvoiceStatusPending  InvoiceStatus = "PENDING"
	InvoiceStatusPaid     InvoiceStatus = "PAID"
	InvoiceStatusFailed   InvoiceStatus = "FAILED"
	InvoiceStatusRefunded InvoiceStatus = "REFUNDED"
)

// PaymentMethod описывает способ оплаты.
type PaymentMethod string

const (
	PaymentMethodMTNMoMo     PaymentMethod = "MTN_MOMO"
	PaymentMethodOrangeMoney PaymentMethod = "ORANGE_MONEY"
	PaymentMethodCard        PaymentMethod = "CARD"
	PaymentMethodCash        PaymentMethod = "CASH"
)

// Valid сообщает, поддерживается ли способ оплаты.
func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentMethodMTNMoMo, PaymentMethodOrangeMoney, PaymentMethodCard, PaymentMethodCash:
		return true
	}
	return false
}

// InvoiceBooking содержит сведения о бронировании, к которому относится счёт.
type InvoiceBooking struct {
	SchoolName string `json:"schoolName"`
	OfferName  string `json:"offerName"`
}

// Invoice описывает счёт, выставленный по бронированию.
type Invoice struct {
	ID               string         `json:"id"`
	BookingID        string         `json:"bookingId"`
	Booking          InvoiceBooking `json:"booking"`
	Amount           float64        `json:"amount"`
	Status           InvoiceStatus  `json:"status"`
	PaymentMethod    PaymentMethod  `json:"paymentMethod,omitempty"`
	PaymentReference string         `json:"paymentReference,omitempty"`
	CreatedAt        *Timestamp     `json:"createdAt,omitempty"`
	PaidAt           *Timestamp     `json:"paidAt,omitempty"`
}

// Consistent проверяет, что дата и способ оплаты заполнены только у оплаченного счёта,
// а у оплаченного счёта есть дата оплаты. Способ оплаты может отсутствовать, если
// счёт закрыт подтверждением бронирования.
func (i Invoice) Consistent() bool {
	if i.Status == InvoiceStatusPaid {
		return i.PaidAt != nil
	}
	return i.PaidAt == nil && i.PaymentMethod == ""
}

// Offer описывает платную формулу обучения автошколы.
type Offer struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Description string  `json:"description,omitempty"`
	Price       float64 `json:"price"`
	Hours       int     `json:"hours"`
}

// Ref возвращает краткую ссылку на формулу.
func (o Offer) Ref() OfferRef {
	return OfferRef{ID: o.ID, Name: o.Name, Price: o.Price}
}

// School описывает автошколу. Price используется только для отображения,
// когда формула ещё не выбрана.
type School struct {
	ID      string  `json:"id"`
	Name    string  `json:"name"`
	City    string  `json:"city,omitempty"`
	Address string  `json:"address,omitempty"`
	Rating  float64 `json:"rating,omitempty"`
	Price   float64 `json:"price,omitempty"`
	Offers  []Offer `json:"offers,omitempty"`
}

// User описывает аутентифицированного пользователя.
type User struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Role      Role   `json:"role"`
	SchoolID  string `json:"schoolId,omitempty"`
}

// FullName возвращает имя и фамилию пользователя.
func (u User) FullName() string {
	switch {
	case u.FirstName == "":
		return u.LastName
	case u.LastName == "":
		return u.FirstName
	}
	return u.FirstName + " " + u.LastName
}

// AuthResponse описывает ответ API на вход и регистрацию.
type AuthResponse struct {
	User  User   `json:"user"`
	Token string `json:"token"`
}

// LoginRequest описывает тело запроса POST /auth/login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// RegisterRequest описывает тело запроса POST /auth/register.
type RegisterRequest struct {
	Email      string `json:"email"`
	Password   string `json:"password"`
	FirstName  string `json:"firstName"`
	LastName   string `json:"lastName"`
	Role       Role   `json:"role"`
	SchoolName string `json:"schoolName,omitempty"`
}

// FlowStatus описывает состояние попытки бронирования в журнале.
type FlowStatus string

const (
	FlowStatusStarted   FlowStatus = "STARTED"
	FlowStatusPending   FlowStatus = "PENDING"
	FlowStatusConfirmed FlowStatus = "CONFIRMED"
	FlowStatusFailed    FlowStatus = "FAILED"
	FlowStatusAbandoned FlowStatus = "ABANDONED"
)

// FlowAttempt описывает запись журнала об одном прохождении сценария бронирования.
type FlowAttempt struct {
	IdempotencyKey string
	UserID         string
	SchoolID       string
	OfferID        string
	Date           string
	Time           string
	BookingID      string
	Status         FlowStatus
	PaymentMethod  PaymentMethod
	LastError      string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}
