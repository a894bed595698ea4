package model

import (
	"encoding/json"
	"fmt"
)

// Role задаёт закрытое множество ролей пользователя.
type Role string

const (
	RoleStudent     Role = "STUDENT"
	RoleSchoolAdmin Role = "SCHOOL_ADMIN"
	RoleVisitor     Role = "VISITOR"
)

// ParseRole разбирает строковое представление роли.
func ParseRole(s string) (Role, error) {
	switch r := Role(s); r {
	case RoleStudent, RoleSchoolAdmin, RoleVisitor:
		return r, nil
	}
	return "", fmt.Errorf("unknown role %q", s)
}

// UnmarshalJSON отклоняет неизвестные роли. Пустая строка допускается и трактуется как отсутствие роли.
func (r *Role) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		*r = ""
		return nil
	}
	parsed, err := ParseRole(s)
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// RoleCases содержит по одной ветке на каждую роль.
type RoleCases[T any] struct {
	Student     func() T
	SchoolAdmin func() T
	Visitor     func() T
}

// VisitRole выбирает ветку для роли. Пустая роль обрабатывается как VISITOR.
// Отсутствующая ветка вызывает панику.
func VisitRole[T any](r Role, c RoleCases[T]) T {
	var fn func() T
	switch r {
	case RoleStudent:
		fn = c.Student
	case RoleSchoolAdmin:
		fn = c.SchoolAdmin
	case RoleVisitor, "":
		fn = c.Visitor
	default:
		panic(fmt.Sprintf("model: unhandled role %q", r))
	}
	if fn == nil {
		panic(fmt.Sprintf("model: no case for role %q", r))
	}
	return fn()
}
