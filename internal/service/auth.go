package service

import (
	"context"
	"fmt"
	"net/http"

	"github.com/mmeshcher/autoecole-booking/internal/model"
)

// SessionWriter сохраняет и сбрасывает аутентификационное состояние клиента.
type SessionWriter interface {
	Set(ctx context.Context, resp model.AuthResponse) error
	Clear(ctx context.Context) error
}

// AuthService выполняет вход, регистрацию и выход пользователя.
type AuthService struct {
	api     API
	session SessionWriter
}

// NewAuthService создаёт сервис аутентификации.
func NewAuthService(api API, session SessionWriter) *AuthService {
	return &AuthService{api: api, session: session}
}

// Login выполняет вход и сохраняет полученные токен и пользователя.
func (s *AuthService) Login(ctx context.Context, email, password string) (model.AuthResponse, error) {
	var resp model.AuthResponse
	req := model.LoginRequest{Email: email, Password: password}
	if err := call(ctx, s.api, "login", http.MethodPost, "/auth/login", req, &resp); err != nil {
		return model.AuthResponse{}, err
	}
	return resp, s.store(ctx, resp)
}

// Register регистрирует пользователя. По умолчанию роль STUDENT.
func (s *AuthService) Register(ctx context.Context, req model.RegisterRequest) (model.AuthResponse, error) {
	if req.Role == "" {
		req.Role = model.RoleStudent
	}

	var resp model.AuthResponse
	if err := call(ctx, s.api, "register", http.MethodPost, "/auth/register", req, &resp); err != nil {
		return model.AuthResponse{}, err
	}
	return resp, s.store(ctx, resp)
}

// Logout сбрасывает сохранённую сессию. API не уведомляется.
func (s *AuthService) Logout(ctx context.Context) error {
	if s.session == nil {
		return nil
	}
	if err := s.session.Clear(ctx); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	return nil
}

func (s *AuthService) store(ctx context.Context, resp model.AuthResponse) error {
	if s.session == nil || resp.Token == "" {
		return nil
	}
	if err := s.session.Set(ctx, resp); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}
