package orchestrator

import (
	"errors"

	"github.com/mmeshcher/autoecole-booking/internal/service"
)

var (
	// ErrWrongStep возвращается, если действие недопустимо на текущем шаге.
	ErrWrongStep = errors.New("action not allowed at current step")
	// ErrBusy возвращается, пока предыдущий переход ещё выполняется.
	ErrBusy = errors.New("another transition is in flight")
	// ErrClosed возвращается после закрытия сценария.
	ErrClosed = errors.New("booking flow closed")
)

// Сообщения, которые видит пользователь.
const (
	MsgLoginRequired   = "login required"
	MsgSchoolRequired  = "school required"
	MsgOfferRequired   = "offer required"
	MsgDateRequired    = "date required"
	MsgDateFormat      = "date must be in YYYY-MM-DD format"
	MsgDateNotFuture   = "date must be after today"
	MsgInvalidTimeSlot = "invalid time slot"
	MsgInvalidMethod   = "unsupported payment method"
	MsgNetworkError    = "network error, please retry"
	MsgCreateFailed    = "booking could not be created, please retry"
	MsgConfirmFailed   = "payment confirmation failed, please retry"
	MsgConfirmed       = "booking confirmed and paid"
)

// ValidationError описывает локальную ошибку ввода, обнаруженная без обращения к API.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// userMessage превращает ошибку сервиса в сообщение для пользователя.
func userMessage(err error, fallback string) string {
	var re *service.RequestError
	if errors.As(err, &re) {
		if re.Transport {
			return MsgNetworkError
		}
		if re.Message != "" {
			return re.Message
		}
	}
	return fallback
}
