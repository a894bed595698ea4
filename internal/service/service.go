// Package service реализует типизированные операции над REST API маркетплейса автошкол.
package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/mmeshcher/autoecole-booking/internal/gateway"
)

// API описывает контракт клиента-шлюза, используемый сервисами.
type API interface {
	Send(ctx context.Context, method, path string, body any, opts ...gateway.RequestOption) gateway.Result
}

// RequestError описывает отказ API или транспортный сбой при вызове операции.
type RequestError struct {
	Op         string
	StatusCode int
	Message    string
	Transport  bool
}

func (e *RequestError) Error() string {
	return e.Message
}

// IsTransport сообщает, вызвана ли ошибка сбоем сети, а не ответом API.
func IsTransport(err error) bool {
	var re *RequestError
	return errors.As(err, &re) && re.Transport
}

// call выполняет запрос и разбирает ответ в out. Ответ с ошибкой превращается в *RequestError.
func call(ctx context.Context, api API, op, method, path string, body, out any, opts ...gateway.RequestOption) error {
	res := api.Send(ctx, method, path, body, opts...)
	if !res.OK() {
		return &RequestError{
			Op:         op,
			StatusCode: res.StatusCode,
			Message:    res.Error,
			Transport:  res.Transport,
		}
	}
	if err := res.Decode(out); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
