// Package session хранит аутентификационное состояние клиента: токен и пользователя.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/mmeshcher/autoecole-booking/internal/model"
)

// ErrNoSession возвращается хранилищем, если сохранённой сессии нет.
var ErrNoSession = errors.New("no stored session")

// Snapshot описывает сериализуемое состояние сессии.
type Snapshot struct {
	Token string     `json:"token"`
	User  model.User `json:"user"`
}

// Store описывает долговременное хранилище сессии.
type Store interface {
	Load(ctx context.Context) (Snapshot, error)
	Save(ctx context.Context, s Snapshot) error
	Delete(ctx context.Context) error
}

// Holder хранит сессию и передаётся явно. Создаётся при старте приложения,
// обновляется при входе и очищается при выходе.
type Holder struct {
	mu     sync.RWMutex
	token  string
	user   *model.User
	store  Store
	logger *zap.Logger
}

// NewHolder создаёт держатель поверх хранилища. store может быть nil, тогда сессия живёт только в памяти.
func NewHolder(store Store, logger *zap.Logger) *Holder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Holder{store: store, logger: logger}
}

// Init загружает сохранённую сессию. Отсутствие сессии не считается ошибкой.
func (h *Holder) Init(ctx context.Context) error {
	if h.store == nil {
		return nil
	}

	snap, err := h.store.Load(ctx)
	if err != nil {
		if errors.Is(err, ErrNoSession) {
			return nil
		}
		return fmt.Errorf("load session: %w", err)
	}

	if snap.Token == "" {
		return nil
	}

	h.mu.Lock()
	h.token = snap.Token
	u := snap.User
	h.user = &u
	h.mu.Unlock()

	h.logger.Debug("session restored", zap.String("user_id", snap.User.ID))
	return nil
}

// Set запоминает токен и пользователя и сохраняет их в хранилище.
func (h *Holder) Set(ctx context.Context, resp model.AuthResponse) error {
	h.mu.Lock()
	h.token = resp.Token
	u := resp.User
	h.user = &u
	h.mu.Unlock()

	if h.store == nil {
		return nil
	}
	return h.store.Save(ctx, Snapshot{Token: resp.Token, User: resp.User})
}

// Clear сбрасывает сессию в памяти и в хранилище.
func (h *Holder) Clear(ctx context.Context) error {
	h.mu.Lock()
	h.token = ""
	h.user = nil
	h.mu.Unlock()

	if h.store == nil {
		return nil
	}
	return h.store.Delete(ctx)
}

// Token возвращает текущий bearer-токен или пустую строку.
func (h *Holder) Token() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.token
}

// User возвращает текущего пользователя.
func (h *Holder) User() (model.User, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.user == nil {
		return model.User{}, false
	}
	return *h.user, true
}

// Authenticated сообщает, есть ли у клиента токен и пользователь.
func (h *Holder) Authenticated() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.token != "" && h.user != nil
}
