// Package memstore реализует хранилище тестового API бронирования в памяти процесса.
package memstore

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/mmeshcher/autoecole-booking/internal/model"
	"github.com/mmeshcher/autoecole-booking/internal/validation"
)

var (
	// ErrNotFound возвращается, если сущность не найдена.
	ErrNotFound = errors.New("not found")
	// ErrInvalidInput возвращается при некорректных входных данных.
	ErrInvalidInput = errors.New("invalid input")
	// ErrEmailExists возвращается при повторной регистрации email.
	ErrEmailExists = errors.New("Email already exists")
	// ErrInvalidCredentials возвращается при неверной паре email/пароль.
	ErrInvalidCredentials = errors.New("Invalid credentials")
	// ErrOfferUnavailable возвращается, если формула не принадлежит автошколе.
	ErrOfferUnavailable = errors.New("Offer no longer available")
	// ErrInvoicePaid возвращается при повторной оплате счёта.
	ErrInvoicePaid = errors.New("Invoice already paid")
	// ErrForbidden возвращается, если пользователь не владеет бронированием или счётом.
	ErrForbidden = errors.New("Forbidden")
	// ErrIdempotencyConflict возвращается, если ключ идемпотентности уже использован с другими данными.
	ErrIdempotencyConflict = errors.New("Idempotency key reused with different request")
)

type userRecord struct {
	user         model.User
	passwordHash []byte
}

type bookingRecord struct {
	booking model.Booking
	userID  string
	request model.CreateBookingRequest
}

type invoiceRecord struct {
	invoice model.Invoice
	userID  string
}

// Store хранит пользователей, автошколы, бронирования и счета.
type Store struct {
	mu sync.RWMutex

	users   map[string]*userRecord
	byEmail map[string]string

	schools     map[string]model.School
	schoolOrder []string
	offers      map[string]model.Offer
	offerSchool map[string]string

	bookings     map[string]*bookingRecord
	bookingOrder []string
	idempotency  map[string]string

	invoices         map[string]*invoiceRecord
	invoiceOrder     []string
	invoiceByBooking map[string]string

	now        func() time.Time
	newID      func() string
	bcryptCost int
}

// Option настраивает Store.
type Option func(*Store)

// WithClock подменяет источник текущего времени.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// WithIDGenerator подменяет генератор идентификаторов.
func WithIDGenerator(gen func() string) Option {
	return func(s *Store) {
		s.newID = gen
	}
}

// WithBcryptCost задаёт стоимость хеширования паролей.
func WithBcryptCost(cost int) Option {
	return func(s *Store) {
		s.bcryptCost = cost
	}
}

// WithSchools заменяет каталог автошкол.
func WithSchools(schools []model.School) Option {
	return func(s *Store) {
		s.resetCatalog()
		for _, school := range schools {
			s.addSchoolLocked(school)
		}
	}
}

// New создаёт хранилище, заполненное каталогом DefaultSchools.
func New(opts ...Option) *Store {
	s := &Store{
		users:            make(map[string]*userRecord),
		byEmail:          make(map[string]string),
		bookings:         make(map[string]*bookingRecord),
		idempotency:      make(map[string]string),
		invoices:         make(map[string]*invoiceRecord),
		invoiceByBooking: make(map[string]string),
		now:              time.Now,
		newID:            uuid.NewString,
		bcryptCost:       bcrypt.DefaultCost,
	}
	s.resetCatalog()
	for _, school := range DefaultSchools() {
		s.addSchoolLocked(school)
	}

	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) resetCatalog() {
	s.schools = make(map[string]model.School)
	s.schoolOrder = nil
	s.offers = make(map[string]model.Offer)
	s.offerSchool = make(map[string]string)
}

func (s *Store) addSchoolLocked(school model.School) {
	for _, o := range school.Offers {
		s.offers[o.ID] = o
		s.offerSchool[o.ID] = school.ID
	}
	school.Offers = nil
	if _, ok := s.schools[school.ID]; !ok {
		s.schoolOrder = append(s.schoolOrder, school.ID)
	}
	s.schools[school.ID] = school
}

// Register создаёт пользователя. Администратор автошколы получает новую автошколу.
func (s *Store) Register(ctx context.Context, req model.RegisterRequest) (model.User, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" || req.Password == "" {
		return model.User{}, fmt.Errorf("%w: email and password are required", ErrInvalidInput)
	}

	role := req.Role
	if role == "" {
		role = model.RoleStudent
	}
	if _, err := model.ParseRole(string(role)); err != nil {
		return model.User{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.bcryptCost)
	if err != nil {
		return model.User{}, fmt.Errorf("hash password: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byEmail[email]; ok {
		return model.User{}, ErrEmailExists
	}

	u := model.User{
		ID:        s.newID(),
		Email:     email,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Role:      role,
	}

	if role == model.RoleSchoolAdmin {
		name := req.SchoolName
		if name == "" {
			name = defaultSchoolName
		}
		school := model.School{ID: s.newID(), Name: name, City: defaultSchoolCity, Address: defaultSchoolAddress}
		s.addSchoolLocked(school)
		u.SchoolID = school.ID
	}

	s.users[u.ID] = &userRecord{user: u, passwordHash: hash}
	s.byEmail[email] = u.ID
	return u, nil
}

// Authenticate проверяет пару email/пароль.
func (s *Store) Authenticate(ctx context.Context, email, password string) (model.User, error) {
	s.mu.RLock()
	id, ok := s.byEmail[strings.ToLower(strings.TrimSpace(email))]
	var rec userRecord
	if ok {
		rec = *s.users[id]
	}
	s.mu.RUnlock()

	if !ok {
		return model.User{}, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword(rec.passwordHash, []byte(password)); err != nil {
		return model.User{}, ErrInvalidCredentials
	}
	return rec.user, nil
}

// ListSchools возвращает автошколы, при непустом city только из этого города.
func (s *Store) ListSchools(ctx context.Context, city string) ([]model.School, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	res := make([]model.School, 0, len(s.schoolOrder))
	for _, id := range s.schoolOrder {
		school := s.schools[id]
		if city != "" && !strings.EqualFold(school.City, city) {
			continue
		}
		school.Offers = s.offersLocked(id)
		res = append(res, school)
	}
	return res, nil
}

// GetSchool возвращает автошколу вместе с формулами.
func (s *Store) GetSchool(ctx context.Context, id string) (model.School, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	school, ok := s.schools[id]
	if !ok {
		return model.School{}, fmt.Errorf("%w: school %s", ErrNotFound, id)
	}
	school.Offers = s.offersLocked(id)
	return school, nil
}

// OffersBySchool возвращает формулы автошколы.
func (s *Store) OffersBySchool(ctx context.Context, schoolID string) ([]model.Offer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.schools[schoolID]; !ok {
		return nil, fmt.Errorf("%w: school %s", ErrNotFound, schoolID)
	}
	return s.offersLocked(schoolID), nil
}

func (s *Store) offersLocked(schoolID string) []model.Offer {
	res := []model.Offer{}
	for id, o := range s.offers {
		if s.offerSchool[id] == schoolID {
			res = append(res, o)
		}
	}
	slices.SortFunc(res, func(a, b model.Offer) int { return strings.Compare(a.ID, b.ID) })
	return res
}

// CreateBooking создаёт бронирование в статусе PENDING и счёт к нему.
// Повтор с тем же ключом идемпотентности и теми же данными возвращает уже созданное
// бронирование; created в этом случае false.
func (s *Store) CreateBooking(ctx context.Context, userID string, req model.CreateBookingRequest, idempotencyKey string) (model.Booking, bool, error) {
	if req.SchoolID == "" || req.OfferID == "" || req.Date == "" {
		return model.Booking{}, false, fmt.Errorf("%w: schoolId, offerId and date are required", ErrInvalidInput)
	}
	if _, err := time.Parse(validation.DateLayout, req.Date); err != nil {
		return model.Booking{}, false, fmt.Errorf("%w: %s", ErrInvalidInput, validation.ErrDateFormat)
	}
	if req.Time != "" && !validation.IsValidTimeSlot(req.Time) {
		return model.Booking{}, false, fmt.Errorf("%w: invalid time slot", ErrInvalidInput)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	idemKey := ""
	if idempotencyKey != "" {
		idemKey = userID + "/" + idempotencyKey
		if id, ok := s.idempotency[idemKey]; ok {
			rec := s.bookings[id]
			if rec.request != req {
				return model.Booking{}, false, ErrIdempotencyConflict
			}
			return rec.booking, false, nil
		}
	}

	user, ok := s.users[userID]
	if !ok {
		return model.Booking{}, false, fmt.Errorf("%w: user %s", ErrNotFound, userID)
	}
	school, ok := s.schools[req.SchoolID]
	if !ok {
		return model.Booking{}, false, fmt.Errorf("%w: school %s", ErrNotFound, req.SchoolID)
	}
	offer, ok := s.offers[req.OfferID]
	if !ok || s.offerSchool[req.OfferID] != req.SchoolID {
		return model.Booking{}, false, ErrOfferUnavailable
	}

	now := s.now()
	b := model.Booking{
		ID:     s.newID(),
		School: model.SchoolRef{ID: school.ID, Name: school.Name},
		Offer:  offer.Ref(),
		User: &model.BookingUser{
			ID:    user.user.ID,
			Name:  user.user.FullName(),
			Email: user.user.Email,
		},
		Date:      req.Date,
		Time:      req.Time,
		Status:    model.BookingStatusPending,
		CreatedAt: model.NewTimestamp(now),
	}
	s.bookings[b.ID] = &bookingRecord{booking: b, userID: userID, request: req}
	s.bookingOrder = append(s.bookingOrder, b.ID)
	if idemKey != "" {
		s.idempotency[idemKey] = b.ID
	}

	inv := model.Invoice{
		ID:        s.newID(),
		BookingID: b.ID,
		Booking:   model.InvoiceBooking{SchoolName: school.Name, OfferName: offer.Name},
		Amount:    offer.Price,
		Status:    model.InvoiceStatusPending,
		CreatedAt: model.NewTimestamp(now),
	}
	s.invoices[inv.ID] = &invoiceRecord{invoice: inv, userID: userID}
	s.invoiceOrder = append(s.invoiceOrder, inv.ID)
	s.invoiceByBooking[b.ID] = inv.ID

	return b, true, nil
}

// ListBookings возвращает бронирования пользователя в порядке создания.
func (s *Store) ListBookings(ctx context.Context, userID string) ([]model.Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	res := []model.Booking{}
	for _, id := range s.bookingOrder {
		if rec := s.bookings[id]; rec.userID == userID {
			res = append(res, rec.booking)
		}
	}
	return res, nil
}

// GetBooking возвращает бронирование по идентификатору.
func (s *Store) GetBooking(ctx context.Context, id string) (model.Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.bookings[id]
	if !ok {
		return model.Booking{}, fmt.Errorf("%w: booking %s", ErrNotFound, id)
	}
	return rec.booking, nil
}

// UpdateBookingStatus меняет статус бронирования по запросу userID. Подтверждение закрывает счёт.
func (s *Store) UpdateBookingStatus(ctx context.Context, userID, id string, status model.BookingStatus) (model.Booking, error) {
	if !status.Valid() {
		return model.Booking{}, fmt.Errorf("%w: unknown status %q", ErrInvalidInput, status)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.bookings[id]
	if !ok {
		return model.Booking{}, fmt.Errorf("%w: booking %s", ErrNotFound, id)
	}
	if !s.canManageLocked(userID, rec.userID, rec.booking.School.ID) {
		return model.Booking{}, ErrForbidden
	}
	rec.booking.Status = status

	if status == model.BookingStatusConfirmed {
		if invID, ok := s.invoiceByBooking[id]; ok {
			inv := &s.invoices[invID].invoice
			if inv.Status != model.InvoiceStatusPaid {
				inv.Status = model.InvoiceStatusPaid
				inv.PaidAt = model.NewTimestamp(s.now())
			}
		}
	}
	return rec.booking, nil
}

// ListInvoices возвращает счета пользователя.
func (s *Store) ListInvoices(ctx context.Context, userID string) ([]model.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	res := []model.Invoice{}
	for _, id := range s.invoiceOrder {
		if rec := s.invoices[id]; rec.userID == userID {
			res = append(res, rec.invoice)
		}
	}
	return res, nil
}

// ListInvoicesBySchool возвращает счета по бронированиям автошколы.
func (s *Store) ListInvoicesBySchool(ctx context.Context, schoolID string) ([]model.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	res := []model.Invoice{}
	for _, id := range s.invoiceOrder {
		rec := s.invoices[id]
		if b, ok := s.bookings[rec.invoice.BookingID]; ok && b.booking.School.ID == schoolID {
			res = append(res, rec.invoice)
		}
	}
	return res, nil
}

// GetInvoice возвращает счёт по идентификатору.
func (s *Store) GetInvoice(ctx context.Context, id string) (model.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.invoices[id]
	if !ok {
		return model.Invoice{}, fmt.Errorf("%w: invoice %s", ErrNotFound, id)
	}
	return rec.invoice, nil
}

// PayInvoice отмечает счёт оплаченным по запросу userID и подтверждает бронирование.
func (s *Store) PayInvoice(ctx context.Context, userID, id string, method model.PaymentMethod, reference string) (model.Invoice, error) {
	if !method.Valid() {
		return model.Invoice{}, fmt.Errorf("%w: unsupported payment method %q", ErrInvalidInput, method)
	}
	if reference == "" {
		return model.Invoice{}, fmt.Errorf("%w: reference is required", ErrInvalidInput)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.invoices[id]
	if !ok {
		return model.Invoice{}, fmt.Errorf("%w: invoice %s", ErrNotFound, id)
	}
	var schoolID string
	if b, ok := s.bookings[rec.invoice.BookingID]; ok {
		schoolID = b.booking.School.ID
	}
	if !s.canManageLocked(userID, rec.userID, schoolID) {
		return model.Invoice{}, ErrForbidden
	}
	if rec.invoice.Status == model.InvoiceStatusPaid {
		return model.Invoice{}, ErrInvoicePaid
	}

	rec.invoice.Status = model.InvoiceStatusPaid
	rec.invoice.PaymentMethod = method
	rec.invoice.PaymentReference = reference
	rec.invoice.PaidAt = model.NewTimestamp(s.now())

	if b, ok := s.bookings[rec.invoice.BookingID]; ok {
		b.booking.Status = model.BookingStatusConfirmed
	}
	return rec.invoice, nil
}

// canManageLocked разрешает действие владельцу или администратору автошколы schoolID.
func (s *Store) canManageLocked(userID, ownerID, schoolID string) bool {
	if userID == ownerID {
		return true
	}
	u, ok := s.users[userID]
	if !ok {
		return false
	}
	return u.user.Role == model.RoleSchoolAdmin && schoolID != "" && u.user.SchoolID == schoolID
}
