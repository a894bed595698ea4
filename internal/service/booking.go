package service

import (
	"context"
	"net/http"
	"net/url"

	"github.com/mmeshcher/autoecole-booking/internal/gateway"
	"github.com/mmeshcher/autoecole-booking/internal/model"
)

// IdempotencyKeyHeader задаёт заголовок, которым клиент помечает повторы создания бронирования.
const IdempotencyKeyHeader = "Idempotency-Key"

// BookingService выполняет операции над бронированиями.
type BookingService struct {
	api API
}

// NewBookingService создаёт сервис бронирований поверх клиента-шлюза.
func NewBookingService(api API) *BookingService {
	return &BookingService{api: api}
}

// Create создаёт бронирование. Непустой idempotencyKey передаётся в заголовке Idempotency-Key.
// Дата и идентификаторы проверяются вызывающей стороной.
func (s *BookingService) Create(ctx context.Context, req model.CreateBookingRequest, idempotencyKey string) (model.Booking, error) {
	var opts []gateway.RequestOption
	if idempotencyKey != "" {
		opts = append(opts, gateway.WithHeader(IdempotencyKeyHeader, idempotencyKey))
	}

	var b model.Booking
	if err := call(ctx, s.api, "create booking", http.MethodPost, "/bookings", req, &b, opts...); err != nil {
		return model.Booking{}, err
	}
	return b, nil
}

// UpdateStatus запрашивает смену статуса бронирования. Допустимость перехода решает API.
func (s *BookingService) UpdateStatus(ctx context.Context, id string, status model.BookingStatus) (model.Booking, error) {
	path := "/bookings/" + url.PathEscape(id) + "/status?" + url.Values{"status": {string(status)}}.Encode()

	var b model.Booking
	if err := call(ctx, s.api, "update booking status", http.MethodPatch, path, nil, &b); err != nil {
		return model.Booking{}, err
	}
	return b, nil
}

// ListMine возвращает бронирования текущего пользователя. Без идентификатора запрос не выполняется.
func (s *BookingService) ListMine(ctx context.Context, userID string) ([]model.Booking, error) {
	if userID == "" {
		return []model.Booking{}, nil
	}

	var bookings []model.Booking
	if err := call(ctx, s.api, "list bookings", http.MethodGet, "/bookings", nil, &bookings); err != nil {
		return nil, err
	}
	if bookings == nil {
		bookings = []model.Booking{}
	}
	return bookings, nil
}
