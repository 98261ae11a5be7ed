// Package session persists the signed-in user between runs.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/abgdnv/storefront/pkg/storage"
	"github.com/lestrrat-go/jwx/v3/jwt"
)

// StorageKey is where the session is persisted.
const StorageKey = "session"

const (
	RoleAdmin  = "administrador"
	RoleClient = "cliente"
)

// clockSkew tolerates small differences between our clock and the token issuer's.
const clockSkew = 30 * time.Second

var ErrNotAuthenticated = errors.New("not authenticated")

// User is the signed-in account as returned by the backend login.
type User struct {
	ID        int64  `json:"id"`
	FirstName string `json:"nombre"`
	LastName  string `json:"apellido"`
	Email     string `json:"correo"`
	Role      string `json:"rol"`
	Token     string `json:"token,omitempty"`
	Phone     string `json:"telefono,omitempty"`
	Address   string `json:"direccion,omitempty"`
}

func (u User) IsAdmin() bool {
	return strings.EqualFold(u.Role, RoleAdmin)
}

func (u User) FullName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// Manager reads and writes the session in storage.
type Manager struct {
	store  storage.Store
	logger *slog.Logger
	now    func() time.Time
}

func NewManager(store storage.Store, logger *slog.Logger) *Manager {
	return &Manager{store: store, logger: logger, now: time.Now}
}

// Save replaces the stored session.
func (m *Manager) Save(ctx context.Context, user User) error {
	if user.ID <= 0 {
		return fmt.Errorf("refusing to store session without user id")
	}
	data, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}
	if err := m.store.Set(ctx, StorageKey, data); err != nil {
		return fmt.Errorf("failed to store session: %w", err)
	}
	return nil
}

// Current returns the stored user. A missing or unreadable session, or one whose
// JWT bearer token has expired, yields ErrNotAuthenticated; expired sessions are discarded.
func (m *Manager) Current(ctx context.Context) (User, error) {
	data, err := m.store.Get(ctx, StorageKey)
	if errors.Is(err, storage.ErrNotFound) {
		return User{}, ErrNotAuthenticated
	}
	if err != nil {
		return User{}, fmt.Errorf("failed to read session: %w", err)
	}
	var user User
	if err := json.Unmarshal(data, &user); err != nil || user.ID <= 0 {
		m.logger.WarnContext(ctx, "discarding unreadable session", "error", err)
		return User{}, ErrNotAuthenticated
	}
	if err := m.checkToken(user.Token); err != nil {
		m.logger.InfoContext(ctx, "session token no longer valid", "user_id", user.ID, "error", err)
		if delErr := m.store.Delete(ctx, StorageKey); delErr != nil {
			m.logger.WarnContext(ctx, "failed to discard expired session", "error", delErr)
		}
		return User{}, fmt.Errorf("%w: %w", ErrNotAuthenticated, err)
	}
	return user, nil
}

// checkToken validates the time claims of a JWT without verifying its signature;
// the backend remains the authority. Opaque tokens are never rejected here.
func (m *Manager) checkToken(token string) error {
	if token == "" || strings.Count(token, ".") != 2 {
		return nil
	}
	parsed, err := jwt.ParseInsecure([]byte(token))
	if err != nil {
		return nil
	}
	return jwt.Validate(parsed,
		jwt.WithClock(jwt.ClockFunc(m.now)),
		jwt.WithAcceptableSkew(clockSkew),
	)
}

// Token returns the bearer token of the current session.
func (m *Manager) Token(ctx context.Context) (string, error) {
	user, err := m.Current(ctx)
	if err != nil {
		return "", err
	}
	return user.Token, nil
}

// Logout removes the stored session. Logging out twice is fine.
func (m *Manager) Logout(ctx context.Context) error {
	if err := m.store.Delete(ctx, StorageKey); err != nil {
		return fmt.Errorf("failed to remove session: %w", err)
	}
	return nil
}
