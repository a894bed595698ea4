// Package handler содержит HTTP-обработчики тестового API бронирования автошкол.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/mmeshcher/autoecole-booking/internal/memstore"
	"github.com/mmeshcher/autoecole-booking/internal/middleware"
	"github.com/mmeshcher/autoecole-booking/internal/model"
	"github.com/mmeshcher/autoecole-booking/internal/service"
)

// Service определяет контракт хранилища, используемого HTTP-обработчиками.
type Service interface {
	Register(ctx context.Context, req model.RegisterRequest) (model.User, error)
	Authenticate(ctx context.Context, email, password string) (model.User, error)
	ListSchools(ctx context.Context, city string) ([]model.School, error)
	GetSchool(ctx context.Context, id string) (model.School, error)
	OffersBySchool(ctx context.Context, schoolID string) ([]model.Offer, error)
	CreateBooking(ctx context.Context, userID string, req model.CreateBookingRequest, idempotencyKey string) (model.Booking, bool, error)
	ListBookings(ctx context.Context, userID string) ([]model.Booking, error)
	UpdateBookingStatus(ctx context.Context, userID, id string, status model.BookingStatus) (model.Booking, error)
	ListInvoices(ctx context.Context, userID string) ([]model.Invoice, error)
	ListInvoicesBySchool(ctx context.Context, schoolID string) ([]model.Invoice, error)
	GetInvoice(ctx context.Context, id string) (model.Invoice, error)
	PayInvoice(ctx context.Context, userID, id string, method model.PaymentMethod, reference string) (model.Invoice, error)
}

// Handler реализует HTTP-обработчики тестового API.
type Handler struct {
	service        Service
	logger         *zap.Logger
	authMiddleware *middleware.AuthMiddleware
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
func NewHandler(s Service, logger *zap.Logger, auth *middleware.AuthMiddleware) *Handler {
	return &Handler{
		service:        s,
		logger:         logger,
		authMiddleware: auth,
	}
}

// Register обрабатывает регистрацию нового пользователя.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req model.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	user, err := h.service.Register(r.Context(), req)
	if err != nil {
		h.fail(w, "register user error", err)
		return
	}

	h.respondAuth(w, user)
}

// Login выполняет аутентификацию пользователя и выдаёт токен.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req model.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "Email and password are required")
		return
	}

	user, err := h.service.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		h.fail(w, "login user error", err)
		return
	}

	h.respondAuth(w, user)
}

func (h *Handler) respondAuth(w http.ResponseWriter, user model.User) {
	token, err := h.authMiddleware.IssueToken(user)
	if err != nil {
		h.logger.Error("issue token error", zap.Error(err), zap.String("userID", user.ID))
		writeError(w, http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError))
		return
	}

	writeJSON(w, http.StatusOK, model.AuthResponse{User: user, Token: token})
}

// ListSchools возвращает каталог автошкол.
func (h *Handler) ListSchools(w http.ResponseWriter, r *http.Request) {
	schools, err := h.service.ListSchools(r.Context(), r.URL.Query().Get("city"))
	if err != nil {
		h.fail(w, "list schools error", err)
		return
	}
	writeJSON(w, http.StatusOK, schools)
}

// GetSchool возвращает автошколу.
func (h *Handler) GetSchool(w http.ResponseWriter, r *http.Request) {
	school, err := h.service.GetSchool(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, "get school error", err)
		return
	}
	writeJSON(w, http.StatusOK, school)
}

// ListOffers возвращает формулы автошколы.
func (h *Handler) ListOffers(w http.ResponseWriter, r *http.Request) {
	offers, err := h.service.OffersBySchool(r.Context(), chi.URLParam(r, "schoolId"))
	if err != nil {
		h.fail(w, "list offers error", err)
		return
	}
	writeJSON(w, http.StatusOK, offers)
}

// CreateBooking создаёт бронирование текущего пользователя.
func (h *Handler) CreateBooking(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, http.StatusText(http.StatusUnauthorized))
		return
	}

	var req model.CreateBookingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	key := strings.TrimSpace(r.Header.Get(service.IdempotencyKeyHeader))

	booking, created, err := h.service.CreateBooking(r.Context(), userID, req, key)
	if err != nil {
		h.fail(w, "create booking error", err)
		return
	}

	if !created {
		h.logger.Info("idempotent booking replay", zap.String("booking_id", booking.ID), zap.String("idempotency_key", key))
		writeJSON(w, http.StatusOK, booking)
		return
	}
	writeJSON(w, http.StatusCreated, booking)
}

// ListBookings возвращает бронирования текущего пользователя.
func (h *Handler) ListBookings(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, http.StatusText(http.StatusUnauthorized))
		return
	}

	bookings, err := h.service.ListBookings(r.Context(), userID)
	if err != nil {
		h.fail(w, "list bookings error", err)
		return
	}
	writeJSON(w, http.StatusOK, bookings)
}

// UpdateBookingStatus меняет статус бронирования.
func (h *Handler) UpdateBookingStatus(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, http.StatusText(http.StatusUnauthorized))
		return
	}

	status := model.BookingStatus(r.URL.Query().Get("status"))
	if status == "" {
		writeError(w, http.StatusBadRequest, "status is required")
		return
	}

	booking, err := h.service.UpdateBookingStatus(r.Context(), userID, chi.URLParam(r, "id"), status)
	if err != nil {
		h.fail(w, "update booking status error", err)
		return
	}
	writeJSON(w, http.StatusOK, booking)
}

// ListInvoices возвращает счета пользователя из заголовка X-User-Id.
func (h *Handler) ListInvoices(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, http.StatusText(http.StatusUnauthorized))
		return
	}

	if header := r.Header.Get(service.UserIDHeader); header != "" && header != userID {
		writeError(w, http.StatusForbidden, http.StatusText(http.StatusForbidden))
		return
	}

	invoices, err := h.service.ListInvoices(r.Context(), userID)
	if err != nil {
		h.fail(w, "list invoices error", err)
		return
	}
	writeJSON(w, http.StatusOK, invoices)
}

// ListSchoolInvoices возвращает счета автошколы. Доступно только администраторам автошкол.
func (h *Handler) ListSchoolInvoices(w http.ResponseWriter, r *http.Request) {
	if role, _ := middleware.GetRoleFromContext(r.Context()); role != model.RoleSchoolAdmin {
		writeError(w, http.StatusForbidden, http.StatusText(http.StatusForbidden))
		return
	}

	invoices, err := h.service.ListInvoicesBySchool(r.Context(), chi.URLParam(r, "schoolId"))
	if err != nil {
		h.fail(w, "list school invoices error", err)
		return
	}
	writeJSON(w, http.StatusOK, invoices)
}

// GetInvoice возвращает счёт.
func (h *Handler) GetInvoice(w http.ResponseWriter, r *http.Request) {
	inv, err := h.service.GetInvoice(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, "get invoice error", err)
		return
	}
	writeJSON(w, http.StatusOK, inv)
}

// PayInvoice отмечает счёт оплаченным.
func (h *Handler) PayInvoice(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, http.StatusText(http.StatusUnauthorized))
		return
	}

	q := r.URL.Query()

	inv, err := h.service.PayInvoice(r.Context(), userID, chi.URLParam(r, "id"), model.PaymentMethod(q.Get("method")), q.Get("reference"))
	if err != nil {
		h.fail(w, "pay invoice error", err)
		return
	}
	writeJSON(w, http.StatusOK, inv)
}

// fail пишет ответ с ошибкой. Ошибки хранилища отдаются клиенту как есть,
// остальные логируются и скрываются.
func (h *Handler) fail(w http.ResponseWriter, msg string, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.logger.Error(msg, zap.Error(err))
		writeError(w, status, http.StatusText(status))
		return
	}
	writeError(w, status, err.Error())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, memstore.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, memstore.ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, memstore.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, memstore.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, memstore.ErrEmailExists),
		errors.Is(err, memstore.ErrOfferUnavailable),
		errors.Is(err, memstore.ErrInvoicePaid):
		return http.StatusConflict
	case errors.Is(err, memstore.ErrIdempotencyConflict):
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
