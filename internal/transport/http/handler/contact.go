package handler

import (
	"net/http"
	"strconv"

	"github.com/drs-api/internal/application/contact"
	"github.com/drs-api/internal/domain"
)

// ContactHandler serves the public contact form and its admin listing.
type ContactHandler struct {
	svc contact.Service
}

func NewContactHandler(svc contact.Service) *ContactHandler { return &ContactHandler{svc: svc} }

func (h *ContactHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var req domain.ContactRequest
	if !decode(w, r, &req) {
		return
	}
	m, err := h.svc.Submit(r.Context(), req)
	if err != nil {
		httpError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, m)
}

func (h *ContactHandler) List(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	msgs, err := h.svc.List(r.Context(), limit)
	if err != nil {
		httpError(w, r, err)
		return
	}
	if msgs == nil {
		msgs = []domain.ContactMessage{}
	}
	writeJSON(w, http.StatusOK, ListEnvelope[domain.ContactMessage]{Data: msgs})
}
