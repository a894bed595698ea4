// Package validation содержит функции валидации входных данных сценария бронирования.
package validation

import (
	"errors"
	"strings"
	"time"
)

// DateLayout задаёт формат календарной даты бронирования.
const DateLayout = "2006-01-02"

var (
	// ErrDateFormat возвращается, если дата не в формате ГГГГ-ММ-ДД.
	ErrDateFormat = errors.New("date must be in YYYY-MM-DD format")
	// ErrDateNotFuture возвращается, если дата не позже сегодняшней.
	ErrDateNotFuture = errors.New("date must be after today")
)

// ValidateBookingDate проверяет, что date является корректной календарной датой строго позже
// дня now (в часовом поясе now).
func ValidateBookingDate(date string, now time.Time) error {
	d, err := time.ParseInLocation(DateLayout, strings.TrimSpace(date), now.Location())
	if err != nil {
		return ErrDateFormat
	}
	if !d.After(startOfDay(now)) {
		return ErrDateNotFuture
	}
	return nil
}

// MinBookingDate возвращает самую раннюю допустимую дату бронирования, то есть завтрашний день.
func MinBookingDate(now time.Time) string {
	return startOfDay(now).AddDate(0, 0, 1).Format(DateLayout)
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// IsValidTimeSlot проверяет время в формате ЧЧ:ММ.
func IsValidTimeSlot(slot string) bool {
	if len(slot) != 5 || slot[2] != ':' {
		return false
	}
	_, err := time.Parse("15:04", slot)
	return err == nil
}

// IsValidID проверяет непрозрачный идентификатор: непустой, без пробелов и слэшей.
func IsValidID(id string) bool {
	if id == "" {
		return false
	}
	return !strings.ContainsAny(id, " \t\r\n/?#")
}
