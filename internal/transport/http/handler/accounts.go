package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/drs-api/internal/application/account"
	"github.com/drs-api/internal/application/auth"
	"github.com/drs-api/internal/domain"
	"github.com/go-chi/chi/v5"
)

// AccountHandler serves the identity endpoints of one account kind.
type AccountHandler struct {
	kind     domain.AccountKind
	auth     auth.Service
	accounts account.Service
}

func NewAccountHandler(kind domain.AccountKind, svc auth.Service, accounts account.Service) *AccountHandler {
	return &AccountHandler{kind: kind, auth: svc, accounts: accounts}
}

// Signup creates the account and sends its verification code. The code is
// never part of the response.
func (h *AccountHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var req domain.SignupRequest
	if !decode(w, r, &req) {
		return
	}
	req.Kind = h.kind
	if h.kind == domain.KindAdmin && req.Phone != nil {
		writeError(w, http.StatusUnprocessableEntity, "phone is only supported for doctors")
		return
	}
	a, _, err := h.auth.Signup(r.Context(), req)
	if err != nil {
		httpError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, AccountEnvelope{Message: "verification code sent", Account: a})
}

func (h *AccountHandler) VerifySignup(w http.ResponseWriter, r *http.Request) {
	var req auth.VerifyRequest
	if !decode(w, r, &req) {
		return
	}
	req.Kind = h.kind
	a, err := h.auth.VerifySignup(r.Context(), req)
	if err != nil {
		httpError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, AccountEnvelope{Message: "account verified", Account: a})
}

// LoginRequest sends the admin sign-in code. It acknowledges even when the
// email is unknown.
func (h *AccountHandler) LoginRequest(w http.ResponseWriter, r *http.Request) {
	var req auth.EmailRequest
	if !decode(w, r, &req) {
		return
	}
	if err := h.auth.RequestLoginOTP(r.Context(), req.Email); err != nil {
		httpError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageEnvelope{Message: "if the account exists, a code has been sent"})
}

func (h *AccountHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req auth.LoginRequest
	if !decode(w, r, &req) {
		return
	}
	req.Kind = h.kind
	sess, err := h.auth.Login(r.Context(), req)
	if err != nil {
		httpError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, AuthEnvelope{Bearer: sess.Token, Claims: &sess.Claims, Account: sess.Account})
}

func (h *AccountHandler) ResetPasswordRequest(w http.ResponseWriter, r *http.Request) {
	var req auth.EmailRequest
	if !decode(w, r, &req) {
		return
	}
	if err := h.auth.RequestPasswordReset(r.Context(), h.kind, req.Email); err != nil {
		httpError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageEnvelope{Message: "reset code sent"})
}

func (h *AccountHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req auth.ResetPasswordRequest
	if !decode(w, r, &req) {
		return
	}
	req.Kind = h.kind
	if err := h.auth.ResetPassword(r.Context(), req); err != nil {
		httpError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageEnvelope{Message: "password updated"})
}

func (h *AccountHandler) ResendCode(w http.ResponseWriter, r *http.Request) {
	var req auth.ResendRequest
	if !decode(w, r, &req) {
		return
	}
	req.Kind = h.kind
	if err := h.auth.ResendCode(r.Context(), req); err != nil {
		httpError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageEnvelope{Message: "code sent"})
}

func (h *AccountHandler) Me(w http.ResponseWriter, r *http.Request) {
	claims, ok := principal(w, r)
	if !ok {
		return
	}
	a, err := h.auth.Me(r.Context(), h.kind, claims.AccountID)
	if err != nil {
		httpError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (h *AccountHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	claims, ok := principal(w, r)
	if !ok {
		return
	}
	var req domain.ProfileUpdate
	if !decode(w, r, &req) {
		return
	}
	a, err := h.auth.UpdateProfile(r.Context(), h.kind, claims.AccountID, req)
	if err != nil {
		httpError(w, r, err)
		return
	}
	env := AccountEnvelope{Account: a}
	if req.Email != nil && !strings.EqualFold(strings.TrimSpace(*req.Email), a.Email) {
		env.Message = "confirmation link sent to the new email"
	}
	writeJSON(w, http.StatusOK, env)
}

func (h *AccountHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	claims, ok := principal(w, r)
	if !ok {
		return
	}
	var req auth.ChangePasswordRequest
	if !decode(w, r, &req) {
		return
	}
	if err := h.auth.ChangePassword(r.Context(), h.kind, claims.AccountID, req); err != nil {
		httpError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageEnvelope{Message: "password updated"})
}

type pagesRequest struct {
	Pages json.RawMessage `json:"pages" validate:"required"`
}

func (h *AccountHandler) UpdatePages(w http.ResponseWriter, r *http.Request) {
	claims, ok := principal(w, r)
	if !ok {
		return
	}
	var req pagesRequest
	if !decode(w, r, &req) {
		return
	}
	a, err := h.auth.UpdatePages(r.Context(), claims.AccountID, req.Pages)
	if err != nil {
		httpError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// ToggleActive blocks or unblocks the account named in the path.
func (h *AccountHandler) ToggleActive(w http.ResponseWriter, r *http.Request) {
	claims, ok := principal(w, r)
	if !ok {
		return
	}
	a, err := h.auth.ToggleActive(r.Context(), claims.AccountID, h.kind, chi.URLParam(r, "id"))
	if err != nil {
		httpError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (h *AccountHandler) List(w http.ResponseWriter, r *http.Request) {
	q, err := parseListQuery(r.URL.Query())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	page, err := h.accounts.List(r.Context(), h.kind, q)
	if err != nil {
		httpError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func parseListQuery(v url.Values) (account.ListQuery, error) {
	q := account.ListQuery{Cursor: v.Get("cursor")}
	q.Search = strings.TrimSpace(v.Get("search"))
	if s := v.Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			return q, errInvalidParam("limit")
		}
		q.Limit = n
	}
	for name, dst := range map[string]**bool{"is_active": &q.IsActive, "is_verified": &q.IsVerified} {
		s := v.Get(name)
		if s == "" {
			continue
		}
		b, err := strconv.ParseBool(s)
		if err != nil {
			return q, errInvalidParam(name)
		}
		*dst = &b
	}
	return q, nil
}

func errInvalidParam(name string) error {
	return fmt.Errorf("invalid query parameter %q", name)
}
