package account

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/abgdnv/storefront/internal/backend"
	"github.com/abgdnv/storefront/internal/session"
	"github.com/abgdnv/storefront/internal/validation"
	"github.com/abgdnv/storefront/pkg/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockBackend struct {
	mock.Mock
}

func (m *MockBackend) Login(ctx context.Context, creds backend.Credentials) (session.User, error) {
	args := m.Called(ctx, creds)
	return args.Get(0).(session.User), args.Error(1)
}

func (m *MockBackend) Register(ctx context.Context, reg backend.RegisterRequest) error {
	args := m.Called(ctx, reg)
	return args.Error(0)
}

func newService(t *testing.T) (*Service, *MockBackend, *session.Manager) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	b := new(MockBackend)
	t.Cleanup(func() { b.AssertExpectations(t) })
	sessions := session.NewManager(storage.NewMemory(), logger)
	return NewService(b, sessions, logger), b, sessions
}

var (
	customer = session.User{ID: 7, FirstName: "Ana", LastName: "Soto", Email: "ana@example.com", Role: session.RoleClient, Token: "opaque"}
	admin    = session.User{ID: 1, FirstName: "Root", Email: "root@example.com", Role: session.RoleAdmin, Token: "opaque"}
)

func TestService_Login(t *testing.T) {
	svc, b, sessions := newService(t)
	ctx := context.Background()
	b.On("Login", mock.Anything, backend.Credentials{Email: "ana@example.com", Password: "pw"}).Return(customer, nil)

	user, err := svc.Login(ctx, Credentials{Email: " ana@example.com ", Password: "pw"})

	require.NoError(t, err)
	assert.Equal(t, customer, user)
	stored, err := sessions.Current(ctx)
	require.NoError(t, err)
	assert.Equal(t, customer, stored)
}

func TestService_LoginRejectsBadInput(t *testing.T) {
	svc, _, _ := newService(t)

	_, err := svc.Login(context.Background(), Credentials{Email: "not-an-email"})

	require.ErrorIs(t, err, ErrInvalidInput)
	assert.Contains(t, validation.Fields(err), "email")
	assert.Contains(t, validation.Fields(err), "password")
}

func TestService_LoginPassesBackendErrors(t *testing.T) {
	svc, b, sessions := newService(t)
	ctx := context.Background()
	b.On("Login", mock.Anything, mock.Anything).Return(session.User{}, &backend.APIError{Status: 401, Message: "Credenciales inválidas", Kind: backend.ErrUnauthorized})

	_, err := svc.Login(ctx, Credentials{Email: "ana@example.com", Password: "bad"})

	require.ErrorIs(t, err, backend.ErrUnauthorized)
	_, err = sessions.Current(ctx)
	assert.ErrorIs(t, err, session.ErrNotAuthenticated)
}

func TestService_LoginAdmin(t *testing.T) {
	t.Run("administrator", func(t *testing.T) {
		svc, b, sessions := newService(t)
		ctx := context.Background()
		b.On("Login", mock.Anything, mock.Anything).Return(admin, nil)

		user, err := svc.LoginAdmin(ctx, Credentials{Email: "root@example.com", Password: "pw"})

		require.NoError(t, err)
		assert.True(t, user.IsAdmin())
		stored, err := sessions.Current(ctx)
		require.NoError(t, err)
		assert.Equal(t, admin.ID, stored.ID)
	})

	t.Run("customer is refused and existing session kept", func(t *testing.T) {
		svc, b, sessions := newService(t)
		ctx := context.Background()
		require.NoError(t, sessions.Save(ctx, admin))
		b.On("Login", mock.Anything, mock.Anything).Return(customer, nil)

		_, err := svc.LoginAdmin(ctx, Credentials{Email: "ana@example.com", Password: "pw"})

		require.ErrorIs(t, err, ErrNotAdmin)
		stored, err := sessions.Current(ctx)
		require.NoError(t, err)
		assert.Equal(t, admin.ID, stored.ID)
	})
}

func TestService_Register(t *testing.T) {
	testCases := []struct {
		name        string
		reg         Registration
		setupMock   func(m *MockBackend)
		expectedErr error
		badField    string
	}{
		{
			name: "valid",
			reg:  Registration{FirstName: "Ana", LastName: "Soto", Email: "ana@example.com", Password: "Secret1!", Phone: "999"},
			setupMock: func(m *MockBackend) {
				m.On("Register", mock.Anything, backend.RegisterRequest{
					FirstName: "Ana", LastName: "Soto", Email: "ana@example.com",
					Password: "Secret1!", Phone: "999", Role: session.RoleClient,
				}).Return(nil)
			},
		},
		{
			name:        "weak password",
			reg:         Registration{FirstName: "Ana", LastName: "Soto", Email: "ana@example.com", Password: "password"},
			setupMock:   func(m *MockBackend) {},
			expectedErr: ErrInvalidInput,
			badField:    "password",
		},
		{
			name:        "missing last name",
			reg:         Registration{FirstName: "Ana", LastName: "  ", Email: "ana@example.com", Password: "Secret1!"},
			setupMock:   func(m *MockBackend) {},
			expectedErr: ErrInvalidInput,
			badField:    "last_name",
		},
		{
			name: "backend rejects duplicate email",
			reg:  Registration{FirstName: "Ana", LastName: "Soto", Email: "ana@example.com", Password: "Secret1!"},
			setupMock: func(m *MockBackend) {
				m.On("Register", mock.Anything, mock.Anything).Return(&backend.APIError{Status: 400, Message: "El correo ya existe", Kind: backend.ErrValidation})
			},
			expectedErr: backend.ErrValidation,
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			svc, b, _ := newService(t)
			tc.setupMock(b)

			err := svc.Register(context.Background(), tc.reg)

			if tc.expectedErr == nil {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, tc.expectedErr)
			if tc.badField != "" {
				assert.Contains(t, validation.Fields(err), tc.badField)
			}
		})
	}
}

func TestService_Logout(t *testing.T) {
	svc, _, sessions := newService(t)
	ctx := context.Background()
	require.NoError(t, sessions.Save(ctx, customer))

	require.NoError(t, svc.Logout(ctx))
	require.NoError(t, svc.Logout(ctx))

	_, err := svc.Current(ctx)
	assert.ErrorIs(t, err, session.ErrNotAuthenticated)
}
