package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/drs-api/internal/domain"
	"github.com/drs-api/internal/pkg/validate"
	"github.com/drs-api/internal/transport/http/middleware"
	"github.com/rs/zerolog"
)

// MessageEnvelope is the generic response wrapper.
type MessageEnvelope struct {
	Message   string `json:"message,omitempty"`
	Error     string `json:"error,omitempty"`
	ErrorCode int    `json:"error_code,omitempty"`
}

// AuthEnvelope wraps login responses.
type AuthEnvelope struct {
	Bearer  string                `json:"Bearer"`
	Claims  *domain.SessionClaims `json:"claims"`
	Account *domain.Account       `json:"account"`
}

// AccountEnvelope wraps a single account with an optional message.
type AccountEnvelope struct {
	Message string          `json:"message,omitempty"`
	Account *domain.Account `json:"account"`
}

// ListEnvelope wraps unpaginated listings.
type ListEnvelope[T any] struct {
	Data []T `json:"data"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, MessageEnvelope{Error: msg, ErrorCode: status})
}

// httpError maps a service error to its status. Internal failures are
// logged and replaced by a generic message.
func httpError(w http.ResponseWriter, r *http.Request, err error) {
	status := middleware.StatusFor(err)
	if status == http.StatusInternalServerError {
		zerolog.Ctx(r.Context()).Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		writeError(w, status, "internal server error")
		return
	}
	writeError(w, status, err.Error())
}

// decode reads a JSON body into dst and validates it. It writes the error
// response itself and reports whether the handler should continue.
func decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return false
		}
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	if err := validate.Struct(dst); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return false
	}
	return true
}

// principal returns the verified claims attached by the gate.
func principal(w http.ResponseWriter, r *http.Request) (*domain.SessionClaims, bool) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return nil, false
	}
	return claims, true
}
