package rest

import (
	"net/http"

	"github.com/abgdnv/storefront/internal/account"
	"github.com/abgdnv/storefront/internal/session"
	"github.com/abgdnv/storefront/pkg/web"
)

// userView is the signed-in user without the bearer token.
type userView struct {
	ID        int64  `json:"id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	Role      string `json:"role"`
	Phone     string `json:"phone,omitempty"`
	Address   string `json:"address,omitempty"`
	IsAdmin   bool   `json:"is_admin"`
}

func toUserView(u session.User) userView {
	return userView{
		ID:        u.ID,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Email:     u.Email,
		Role:      u.Role,
		Phone:     u.Phone,
		Address:   u.Address,
		IsAdmin:   u.IsAdmin(),
	}
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var creds account.Credentials
	if !web.DecodeJSON(w, r, h.logger, &creds) {
		return
	}
	user, err := h.svc.Accounts.Login(r.Context(), creds)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	web.RespondJSON(w, h.logger, http.StatusOK, toUserView(user))
}

func (h *Handler) LoginAdmin(w http.ResponseWriter, r *http.Request) {
	var creds account.Credentials
	if !web.DecodeJSON(w, r, h.logger, &creds) {
		return
	}
	user, err := h.svc.Accounts.LoginAdmin(r.Context(), creds)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	web.RespondJSON(w, h.logger, http.StatusOK, toUserView(user))
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var reg account.Registration
	if !web.DecodeJSON(w, r, h.logger, &reg) {
		return
	}
	if err := h.svc.Accounts.Register(r.Context(), reg); err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	web.RespondJSON(w, h.logger, http.StatusCreated, map[string]string{"message": "account created, you can sign in now"})
}

func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Accounts.Logout(r.Context()); err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	user, err := h.svc.Accounts.Current(r.Context())
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	web.RespondJSON(w, h.logger, http.StatusOK, toUserView(user))
}
