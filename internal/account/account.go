// Package account signs customers and administrators in and out and registers new customers.
package account

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/abgdnv/storefront/internal/backend"
	"github.com/abgdnv/storefront/internal/session"
	"github.com/abgdnv/storefront/internal/validation"
	"github.com/go-playground/validator/v10"
)

var (
	ErrInvalidInput = errors.New("invalid input")
	// ErrNotAdmin is returned by LoginAdmin for valid credentials without the administrator role.
	ErrNotAdmin = errors.New("account is not an administrator")
)

// Backend is the part of the backend client this package needs.
type Backend interface {
	Login(ctx context.Context, creds backend.Credentials) (session.User, error)
	Register(ctx context.Context, reg backend.RegisterRequest) error
}

// Sessions stores the signed-in user.
type Sessions interface {
	Save(ctx context.Context, user session.User) error
	Current(ctx context.Context) (session.User, error)
	Logout(ctx context.Context) error
}

type Credentials struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// Registration is a new customer sign-up.
type Registration struct {
	FirstName string `json:"first_name" validate:"required,max=100"`
	LastName  string `json:"last_name" validate:"required,max=100"`
	Email     string `json:"email" validate:"required,email,max=150"`
	Password  string `json:"password" validate:"required,strongpassword"`
	Phone     string `json:"phone" validate:"omitempty,max=20"`
	Address   string `json:"address" validate:"omitempty,max=255"`
}

type Service struct {
	backend  Backend
	sessions Sessions
	validate *validator.Validate
	logger   *slog.Logger
}

func NewService(b Backend, sessions Sessions, logger *slog.Logger) *Service {
	return &Service{
		backend:  b,
		sessions: sessions,
		validate: validation.New(),
		logger:   logger,
	}
}

// Login authenticates a customer and stores the session.
func (s *Service) Login(ctx context.Context, creds Credentials) (session.User, error) {
	user, err := s.authenticate(ctx, creds)
	if err != nil {
		return session.User{}, err
	}
	if err := s.sessions.Save(ctx, user); err != nil {
		return session.User{}, err
	}
	s.logger.InfoContext(ctx, "user signed in", "user_id", user.ID, "role", user.Role)
	return user, nil
}

// LoginAdmin is Login restricted to administrators. A non-admin account is
// rejected before anything is stored, so an existing session is left as it was.
func (s *Service) LoginAdmin(ctx context.Context, creds Credentials) (session.User, error) {
	user, err := s.authenticate(ctx, creds)
	if err != nil {
		return session.User{}, err
	}
	if !user.IsAdmin() {
		s.logger.WarnContext(ctx, "non-admin tried the back office", "user_id", user.ID, "role", user.Role)
		return session.User{}, ErrNotAdmin
	}
	if err := s.sessions.Save(ctx, user); err != nil {
		return session.User{}, err
	}
	s.logger.InfoContext(ctx, "administrator signed in", "user_id", user.ID)
	return user, nil
}

func (s *Service) authenticate(ctx context.Context, creds Credentials) (session.User, error) {
	creds.Email = strings.TrimSpace(creds.Email)
	if err := s.validate.Struct(creds); err != nil {
		return session.User{}, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	return s.backend.Login(ctx, backend.Credentials{Email: creds.Email, Password: creds.Password})
}

// Register creates a customer account. It does not sign the customer in.
func (s *Service) Register(ctx context.Context, reg Registration) error {
	reg.FirstName = strings.TrimSpace(reg.FirstName)
	reg.LastName = strings.TrimSpace(reg.LastName)
	reg.Email = strings.TrimSpace(reg.Email)
	if err := s.validate.Struct(reg); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	err := s.backend.Register(ctx, backend.RegisterRequest{
		FirstName: reg.FirstName,
		LastName:  reg.LastName,
		Email:     reg.Email,
		Password:  reg.Password,
		Phone:     strings.TrimSpace(reg.Phone),
		Address:   strings.TrimSpace(reg.Address),
		Role:      session.RoleClient,
	})
	if err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "customer registered")
	return nil
}

func (s *Service) Logout(ctx context.Context) error {
	return s.sessions.Logout(ctx)
}

// Current returns the signed-in user.
func (s *Service) Current(ctx context.Context) (session.User, error) {
	return s.sessions.Current(ctx)
}
