package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"

	"github.com/drs-api/internal/domain"
	"github.com/drs-api/internal/infrastructure/metrics"
	"github.com/rs/zerolog"
)

type contextKey string

const claimsKey contextKey = "claims"

type TokenVerifier interface {
	Verify(token string) (*domain.SessionClaims, error)
}

type AccountFinder interface {
	FindByID(ctx context.Context, id string) (*domain.Account, error)
}

// RoutePolicy is the per-route authorization configuration.
type RoutePolicy struct {
	// Public routes skip every check.
	Public bool
	// Roles restricts the route to tokens carrying one of these roles.
	// The check uses the token only.
	Roles []string
	// RequireActiveAdmin re-reads the admin from the store and requires it
	// to exist, be active and still hold the admin role.
	RequireActiveAdmin bool
	// MatchTokenEmail additionally requires the token email to equal the
	// stored email. Only used together with RequireActiveAdmin.
	MatchTokenEmail bool
}

// Gate decides whether a request may proceed.
type Gate struct {
	tokens  TokenVerifier
	admins  AccountFinder
	log     zerolog.Logger
	metrics *metrics.Metrics
}

func NewGate(tokens TokenVerifier, admins AccountFinder, log zerolog.Logger, m *metrics.Metrics) *Gate {
	return &Gate{tokens: tokens, admins: admins, log: log, metrics: m}
}

// Authorize runs the checks of p against the Authorization header value.
// Public routes return nil claims and no error.
func (g *Gate) Authorize(ctx context.Context, header string, p RoutePolicy) (*domain.SessionClaims, error) {
	if p.Public {
		return nil, nil
	}
	token, ok := bearerToken(header)
	if !ok {
		return nil, fmt.Errorf("missing or malformed bearer token: %w", domain.ErrUnauthorized)
	}
	claims, err := g.tokens.Verify(token)
	if err != nil {
		if !errors.Is(err, domain.ErrUnauthorized) {
			err = fmt.Errorf("%w: %w", domain.ErrUnauthorized, err)
		}
		return nil, err
	}
	if len(p.Roles) > 0 && !slices.Contains(p.Roles, claims.Role) {
		return nil, fmt.Errorf("role %q not allowed: %w", claims.Role, domain.ErrForbidden)
	}
	if p.RequireActiveAdmin {
		if err := g.checkAdmin(ctx, claims, p.MatchTokenEmail); err != nil {
			return nil, err
		}
	}
	return claims, nil
}

func (g *Gate) checkAdmin(ctx context.Context, claims *domain.SessionClaims, matchEmail bool) error {
	a, err := g.admins.FindByID(ctx, claims.AccountID)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return fmt.Errorf("admin account missing: %w", domain.ErrForbidden)
	case err != nil:
		return err
	}
	if !a.IsActive {
		return fmt.Errorf("admin account inactive: %w", domain.ErrForbidden)
	}
	if a.Role != domain.RoleAdmin {
		return fmt.Errorf("account is not an admin: %w", domain.ErrForbidden)
	}
	if matchEmail && a.Email != claims.Email {
		return fmt.Errorf("token email no longer matches account: %w", domain.ErrForbidden)
	}
	return nil
}

// Guard returns middleware enforcing p. Verified claims are attached to the
// request context.
func (g *Gate) Guard(p RoutePolicy) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, err := g.Authorize(r.Context(), r.Header.Get("Authorization"), p)
			if err != nil {
				status := StatusFor(err)
				g.metrics.GateDecision(decisionFor(status))
				if status == http.StatusInternalServerError {
					g.log.Error().Err(err).Str("path", r.URL.Path).Msg("authorization failed")
					writeJSONError(w, status, "internal server error")
					return
				}
				g.log.Debug().Err(err).Str("path", r.URL.Path).Msg("request denied")
				writeJSONError(w, status, http.StatusText(status))
				return
			}
			if claims == nil {
				g.metrics.GateDecision(metrics.DecisionPublic)
				next.ServeHTTP(w, r)
				return
			}
			g.metrics.GateDecision(metrics.DecisionAllow)
			next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
		})
	}
}

func decisionFor(status int) string {
	switch status {
	case http.StatusUnauthorized:
		return metrics.DecisionUnauthorized
	case http.StatusForbidden:
		return metrics.DecisionForbidden
	}
	return metrics.DecisionError
}

func bearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	if token == "" || strings.ContainsAny(token, " \t") {
		return "", false
	}
	return token, true
}

// WithClaims attaches claims to ctx.
func WithClaims(ctx context.Context, c *domain.SessionClaims) context.Context {
	return context.WithValue(ctx, claimsKey, c)
}

// ClaimsFromContext extracts the verified session claims from the request context.
func ClaimsFromContext(ctx context.Context) (*domain.SessionClaims, bool) {
	c, ok := ctx.Value(claimsKey).(*domain.SessionClaims)
	return c, ok && c != nil
}
