package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/mmeshcher/autoecole-booking/internal/memstore"
	"github.com/mmeshcher/autoecole-booking/internal/middleware"
	"github.com/mmeshcher/autoecole-booking/internal/model"
	"github.com/mmeshcher/autoecole-booking/internal/service"
)

type stubService struct {
	Service

	registerUser model.User
	registerErr  error

	authUser model.User
	authErr  error

	createBooking model.Booking
	createCreated bool
	createErr     error
	createKey     string

	updateResp model.Booking
	updateErr  error
	updateUser string
}

func (s *stubService) Register(ctx context.Context, req model.RegisterRequest) (model.User, error) {
	return s.registerUser, s.registerErr
}

func (s *stubService) Authenticate(ctx context.Context, email, password string) (model.User, error) {
	return s.authUser, s.authErr
}

func (s *stubService) CreateBooking(ctx context.Context, userID string, req model.CreateBookingRequest, key string) (model.Booking, bool, error) {
	s.createKey = key
	return s.createBooking, s.createCreated, s.createErr
}

func (s *stubService) UpdateBookingStatus(ctx context.Context, userID, id string, status model.BookingStatus) (model.Booking, error) {
	s.updateUser = userID
	return s.updateResp, s.updateErr
}

func (s *stubService) ListInvoicesBySchool(ctx context.Context, schoolID string) ([]model.Invoice, error) {
	return []model.Invoice{}, nil
}

func newTestHandler(t *testing.T, svc Service) *Handler {
	t.Helper()

	logger, err := zap.NewDevelopment()
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}

	auth := middleware.NewAuthMiddleware("test-secret")

	return NewHandler(svc, logger, auth)
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()

	var body map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	return body["error"]
}

func TestRegister_Success(t *testing.T) {
	svc := &stubService{
		registerUser: model.User{ID: "u1", Email: "awa@example.com", Role: model.RoleStudent},
	}
	h := newTestHandler(t, svc)

	body, _ := json.Marshal(model.RegisterRequest{
		Email:    "awa@example.com",
		Password: "pass",
	})

	req := httptest.NewRequest(http.MethodPost, "/api/auth/register", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	h.Register(rec, req)

	res := rec.Result()
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusOK)
	}

	var resp model.AuthResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Token == "" {
		t.Fatalf("token is empty")
	}
	if resp.User.ID != "u1" {
		t.Fatalf("user id = %q, want u1", resp.User.ID)
	}
}

func TestRegister_Conflict(t *testing.T) {
	svc := &stubService{registerErr: memstore.ErrEmailExists}
	h := newTestHandler(t, svc)

	req := httptest.NewRequest(http.MethodPost, "/api/auth/register", strings.NewReader(`{"email":"a@b.c","password":"p"}`))
	rec := httptest.NewRecorder()

	h.Register(rec, req)

	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusConflict)
	}
	if msg := decodeError(t, rec); msg != "Email already exists" {
		t.Fatalf("error = %q", msg)
	}
}

func TestLogin_UnauthorizedOnError(t *testing.T) {
	svc := &stubService{
		authErr: memstore.ErrInvalidCredentials,
	}
	h := newTestHandler(t, svc)

	body, _ := json.Marshal(model.LoginRequest{
		Email:    "user@example.com",
		Password: "pass",
	})

	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	h.Login(rec, req)

	res := rec.Result()
	defer res.Body.Close()
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusUnauthorized)
	}
}

func TestLogin_BadRequest(t *testing.T) {
	h := newTestHandler(t, &stubService{})

	tests := []struct {
		name string
		body string
	}{
		{name: "invalid json", body: `{`},
		{name: "missing password", body: `{"email":"a@b.c"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(tt.body))
			rec := httptest.NewRecorder()

			h.Login(rec, req)

			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
			}
		})
	}
}

func TestCreateBooking_StatusAndKey(t *testing.T) {
	tests := []struct {
		name    string
		created bool
		want    int
	}{
		{name: "new booking", created: true, want: http.StatusCreated},
		{name: "idempotent replay", created: false, want: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &stubService{
				createBooking: model.Booking{ID: "b1", Status: model.BookingStatusPending},
				createCreated: tt.created,
			}
			h := newTestHandler(t, svc)

			token, err := h.authMiddleware.IssueToken(model.User{ID: "u1", Role: model.RoleStudent})
			if err != nil {
				t.Fatalf("issue token: %v", err)
			}

			req := httptest.NewRequest(http.MethodPost, "/api/bookings", strings.NewReader(`{"schoolId":"s1","offerId":"o1","date":"2026-03-01"}`))
			req.Header.Set("Authorization", "Bearer "+token)
			req.Header.Set(service.IdempotencyKeyHeader, "key-1")
			rec := httptest.NewRecorder()

			h.authMiddleware.Middleware(http.HandlerFunc(h.CreateBooking)).ServeHTTP(rec, req)

			if rec.Code != tt.want {
				t.Fatalf("status = %d, want %d", rec.Code, tt.want)
			}
			if svc.createKey != "key-1" {
				t.Fatalf("idempotency key = %q, want key-1", svc.createKey)
			}
		})
	}
}

func TestUpdateBookingStatus_Errors(t *testing.T) {
	tests := []struct {
		name  string
		query string
		err   error
		want  int
		msg   string
	}{
		{name: "missing status", query: "", want: http.StatusBadRequest, msg: "status is required"},
		{name: "not found", query: "?status=CONFIRMED", err: memstore.ErrNotFound, want: http.StatusNotFound},
		{name: "foreign booking", query: "?status=CONFIRMED", err: memstore.ErrForbidden, want: http.StatusForbidden, msg: "Forbidden"},
		{name: "internal", query: "?status=CONFIRMED", err: errors.New("disk on fire"), want: http.StatusInternalServerError, msg: "Internal Server Error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &stubService{updateErr: tt.err}
			h := newTestHandler(t, svc)

			token, err := h.authMiddleware.IssueToken(model.User{ID: "u1", Role: model.RoleStudent})
			if err != nil {
				t.Fatalf("issue token: %v", err)
			}

			req := httptest.NewRequest(http.MethodPatch, "/api/bookings/b1/status"+tt.query, nil)
			req.Header.Set("Authorization", "Bearer "+token)
			rec := httptest.NewRecorder()

			h.authMiddleware.Middleware(http.HandlerFunc(h.UpdateBookingStatus)).ServeHTTP(rec, req)

			if rec.Code != tt.want {
				t.Fatalf("status = %d, want %d", rec.Code, tt.want)
			}
			msg := decodeError(t, rec)
			if tt.msg != "" && msg != tt.msg {
				t.Fatalf("error = %q, want %q", msg, tt.msg)
			}
			if tt.err != nil && svc.updateUser != "u1" {
				t.Fatalf("service got user %q, want u1", svc.updateUser)
			}
		})
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{err: memstore.ErrInvalidInput, want: http.StatusBadRequest},
		{err: memstore.ErrInvalidCredentials, want: http.StatusUnauthorized},
		{err: memstore.ErrNotFound, want: http.StatusNotFound},
		{err: memstore.ErrForbidden, want: http.StatusForbidden},
		{err: memstore.ErrEmailExists, want: http.StatusConflict},
		{err: memstore.ErrOfferUnavailable, want: http.StatusConflict},
		{err: memstore.ErrInvoicePaid, want: http.StatusConflict},
		{err: memstore.ErrIdempotencyConflict, want: http.StatusUnprocessableEntity},
		{err: errors.New("boom"), want: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			if got := statusFor(tt.err); got != tt.want {
				t.Fatalf("statusFor(%v) = %d, want %d", tt.err, got, tt.want)
			}
		})
	}
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	store := memstore.New(memstore.WithBcryptCost(bcrypt.MinCost))
	h := NewHandler(store, zap.NewNop(), middleware.NewAuthMiddleware("test-secret"))

	ts := httptest.NewServer(h.SetupRouter())
	t.Cleanup(ts.Close)
	return ts
}

func doJSON(t *testing.T, method, url, token string, body any) (*http.Response, []byte) {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	res, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(res.Body); err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, buf.Bytes()
}

func TestRouter_BookingLifecycle(t *testing.T) {
	ts := newTestServer(t)

	res, body := doJSON(t, http.MethodPost, ts.URL+"/api/auth/register", "", model.RegisterRequest{
		Email: "awa@example.com", Password: "secret", FirstName: "Awa", LastName: "Ngono",
	})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("register status = %d, body %s", res.StatusCode, body)
	}

	var auth model.AuthResponse
	if err := json.Unmarshal(body, &auth); err != nil {
		t.Fatalf("decode auth: %v", err)
	}

	res, _ = doJSON(t, http.MethodGet, ts.URL+"/api/bookings", "", nil)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("bookings without token status = %d, want 401", res.StatusCode)
	}

	res, body = doJSON(t, http.MethodPost, ts.URL+"/api/bookings", auth.Token, model.CreateBookingRequest{
		SchoolID: "s1", OfferID: "o1", Date: "2026-03-01", Time: "09:00",
	})
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create status = %d, body %s", res.StatusCode, body)
	}

	var booking model.Booking
	if err := json.Unmarshal(body, &booking); err != nil {
		t.Fatalf("decode booking: %v", err)
	}
	if booking.Status != model.BookingStatusPending {
		t.Fatalf("booking status = %s, want PENDING", booking.Status)
	}

	res, body = doJSON(t, http.MethodPatch, ts.URL+"/api/bookings/"+booking.ID+"/status?status=CONFIRMED", auth.Token, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("update status = %d, body %s", res.StatusCode, body)
	}

	var confirmed model.Booking
	if err := json.Unmarshal(body, &confirmed); err != nil {
		t.Fatalf("decode booking: %v", err)
	}
	if confirmed.ID != booking.ID || confirmed.Status != model.BookingStatusConfirmed {
		t.Fatalf("confirmed = %+v", confirmed)
	}

	res, body = doJSON(t, http.MethodGet, ts.URL+"/api/invoices", auth.Token, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("invoices status = %d, body %s", res.StatusCode, body)
	}

	var invoices []model.Invoice
	if err := json.Unmarshal(body, &invoices); err != nil {
		t.Fatalf("decode invoices: %v", err)
	}
	if len(invoices) != 1 || invoices[0].Status != model.InvoiceStatusPaid {
		t.Fatalf("invoices = %+v", invoices)
	}

	res, body = doJSON(t, http.MethodPost, ts.URL+"/api/invoices/"+invoices[0].ID+"/pay?method=CARD&reference=REF-1", auth.Token, nil)
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("pay paid invoice status = %d, body %s", res.StatusCode, body)
	}
}

func TestRouter_OfferUnavailable(t *testing.T) {
	ts := newTestServer(t)

	_, body := doJSON(t, http.MethodPost, ts.URL+"/api/auth/register", "", model.RegisterRequest{Email: "a@b.c", Password: "p"})
	var auth model.AuthResponse
	if err := json.Unmarshal(body, &auth); err != nil {
		t.Fatalf("decode auth: %v", err)
	}

	res, body := doJSON(t, http.MethodPost, ts.URL+"/api/bookings", auth.Token, model.CreateBookingRequest{
		SchoolID: "s2", OfferID: "o1", Date: "2026-03-01",
	})
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("status = %d, want 409", res.StatusCode)
	}
	if !strings.Contains(string(body), "Offer no longer available") {
		t.Fatalf("body = %s", body)
	}
}

func TestRouter_NotFound(t *testing.T) {
	ts := newTestServer(t)

	res, body := doJSON(t, http.MethodGet, ts.URL+"/api/unknown", "", nil)
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", res.StatusCode)
	}
	if !strings.Contains(string(body), `"error"`) {
		t.Fatalf("body = %s", body)
	}
}

func TestListSchoolInvoices_RequiresSchoolAdmin(t *testing.T) {
	tests := []struct {
		name string
		role model.Role
		want int
	}{
		{name: "student", role: model.RoleStudent, want: http.StatusForbidden},
		{name: "school admin", role: model.RoleSchoolAdmin, want: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestHandler(t, &stubService{})

			token, err := h.authMiddleware.IssueToken(model.User{ID: "u1", Role: tt.role})
			if err != nil {
				t.Fatalf("issue token: %v", err)
			}

			req := httptest.NewRequest(http.MethodGet, "/api/invoices/school/s1", nil)
			req.Header.Set("Authorization", "Bearer "+token)
			rec := httptest.NewRecorder()

			h.authMiddleware.Middleware(http.HandlerFunc(h.ListSchoolInvoices)).ServeHTTP(rec, req)

			if rec.Code != tt.want {
				t.Fatalf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestRouter_ForeignBookingAndInvoice(t *testing.T) {
	ts := newTestServer(t)

	register := func(email string) model.AuthResponse {
		t.Helper()
		res, body := doJSON(t, http.MethodPost, ts.URL+"/api/auth/register", "", model.RegisterRequest{Email: email, Password: "p"})
		if res.StatusCode != http.StatusOK {
			t.Fatalf("register %s status = %d, body %s", email, res.StatusCode, body)
		}
		var auth model.AuthResponse
		if err := json.Unmarshal(body, &auth); err != nil {
			t.Fatalf("decode auth: %v", err)
		}
		return auth
	}

	owner := register("owner@example.com")
	stranger := register("stranger@example.com")

	_, body := doJSON(t, http.MethodPost, ts.URL+"/api/bookings", owner.Token, model.CreateBookingRequest{
		SchoolID: "s1", OfferID: "o1", Date: "2026-03-01",
	})
	var booking model.Booking
	if err := json.Unmarshal(body, &booking); err != nil {
		t.Fatalf("decode booking: %v", err)
	}

	res, _ := doJSON(t, http.MethodPatch, ts.URL+"/api/bookings/"+booking.ID+"/status?status=CONFIRMED", stranger.Token, nil)
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("foreign confirm status = %d, want 403", res.StatusCode)
	}

	_, body = doJSON(t, http.MethodGet, ts.URL+"/api/invoices", owner.Token, nil)
	var invoices []model.Invoice
	if err := json.Unmarshal(body, &invoices); err != nil || len(invoices) != 1 {
		t.Fatalf("invoices = %s", body)
	}

	res, _ = doJSON(t, http.MethodPost, ts.URL+"/api/invoices/"+invoices[0].ID+"/pay?method=CARD&reference=REF-1", stranger.Token, nil)
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("foreign pay status = %d, want 403", res.StatusCode)
	}

	res, _ = doJSON(t, http.MethodGet, ts.URL+"/api/invoices/school/s1", owner.Token, nil)
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("student school invoices status = %d, want 403", res.StatusCode)
	}
}
