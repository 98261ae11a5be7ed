package backend

import (
	"context"
	"fmt"
	"net/http"

	"github.com/abgdnv/storefront/internal/session"
)

type Credentials struct {
	Email    string `json:"correo"`
	Password string `json:"contrasena"`
}

// RegisterRequest is the sign-up payload. The backend expects the password
// under "contraseña".
type RegisterRequest struct {
	FirstName string `json:"nombre"`
	LastName  string `json:"apellido"`
	Email     string `json:"correo"`
	Password  string `json:"contraseña"`
	Phone     string `json:"telefono,omitempty"`
	Address   string `json:"direccion,omitempty"`
	Role      string `json:"rol"`
}

// loginResponse tolerates the id and name spellings seen across backend versions.
type loginResponse struct {
	ID        *int64  `json:"id"`
	IDCliente *int64  `json:"id_cliente"`
	IDCamel   *int64  `json:"idCliente"`
	IDUsuario *int64  `json:"id_usuario"`
	Nombre    *string `json:"nombre"`
	Name      *string `json:"name"`
	Apellido  *string `json:"apellido"`
	Correo    *string `json:"correo"`
	Email     *string `json:"email"`
	Rol       *string `json:"rol"`
	Role      *string `json:"role"`
	Token     *string `json:"token"`
	Telefono  *string `json:"telefono"`
	Direccion *string `json:"direccion"`
}

func (r loginResponse) user() session.User {
	return session.User{
		ID:        deref(first(r.ID, r.IDCliente, r.IDCamel, r.IDUsuario)),
		FirstName: deref(first(r.Nombre, r.Name)),
		LastName:  deref(r.Apellido),
		Email:     deref(first(r.Correo, r.Email)),
		Role:      deref(first(r.Rol, r.Role)),
		Token:     deref(r.Token),
		Phone:     deref(r.Telefono),
		Address:   deref(r.Direccion),
	}
}

// Login authenticates a customer or administrator. Both use the same endpoint;
// the role in the response tells them apart.
func (c *Client) Login(ctx context.Context, creds Credentials) (session.User, error) {
	var resp loginResponse
	err := c.doJSON(ctx, request{
		method: http.MethodPost,
		path:   "/auth/login-cliente",
		body:   creds,
		noAuth: true,
	}, &resp)
	if err != nil {
		return session.User{}, err
	}
	user := resp.user()
	if user.ID <= 0 {
		return session.User{}, fmt.Errorf("login response carries no user id")
	}
	if user.Email == "" {
		user.Email = creds.Email
	}
	return user, nil
}

func (c *Client) Register(ctx context.Context, reg RegisterRequest) error {
	if reg.Role == "" {
		reg.Role = session.RoleClient
	}
	return c.doJSON(ctx, request{
		method: http.MethodPost,
		path:   "/auth/registrar",
		body:   reg,
		noAuth: true,
	}, nil)
}
