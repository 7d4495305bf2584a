package handler

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/drs-api/internal/application/auth"
)

// EmailConfirmHandler completes the two-step email change shared by both kinds.
type EmailConfirmHandler struct {
	svc         auth.Service
	frontendURL string
}

func NewEmailConfirmHandler(svc auth.Service, frontendURL string) *EmailConfirmHandler {
	return &EmailConfirmHandler{svc: svc, frontendURL: strings.TrimRight(frontendURL, "/")}
}

// Redirect forwards the emailed link to the frontend page that collects the code.
func (h *EmailConfirmHandler) Redirect(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		writeError(w, http.StatusBadRequest, "missing token")
		return
	}
	http.Redirect(w, r, h.frontendURL+"/confirm-email?token="+url.QueryEscape(token), http.StatusFound)
}

func (h *EmailConfirmHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	var req auth.ConfirmEmailRequest
	if !decode(w, r, &req) {
		return
	}
	a, err := h.svc.ConfirmEmailChange(r.Context(), req)
	if err != nil {
		httpError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, AccountEnvelope{Message: "email updated", Account: a})
}
