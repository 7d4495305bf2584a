package http

import (
	"context"
	"time"

	"github.com/drs-api/internal/application/auth"
	"github.com/drs-api/internal/domain"
	"github.com/drs-api/internal/infrastructure/metrics"
	"github.com/drs-api/internal/transport/http/middleware"
	"github.com/rs/zerolog"
)

// AccountRepository is the minimal interface the router requires from an account store.
type AccountRepository interface {
	auth.AccountStore
	// ScanPage returns one filtered page of accounts and the cursor of the next.
	ScanPage(ctx context.Context, limit int32, cursor string, f domain.AccountFilter) ([]domain.Account, string, error)
}

// ContactRepository is the minimal interface the router requires from a contact message store.
type ContactRepository interface {
	Put(ctx context.Context, m *domain.ContactMessage) error
	ListRecent(ctx context.Context, limit int32) ([]domain.ContactMessage, error)
}

// TokenService signs and verifies session and email-change tokens.
type TokenService interface {
	auth.TokenIssuer
	middleware.TokenVerifier
}

// Deps holds all infrastructure dependencies for the router.
type Deps struct {
	Admins   AccountRepository
	Doctors  AccountRepository
	Contacts ContactRepository
	Tokens   TokenService
	Hasher   auth.Hasher
	OTP      auth.OTPGenerator
	Notifier auth.Notifier

	// AuthLimiter guards the signup, login and code endpoints; ContactLimiter
	// guards the contact form. Both are shared by every route that uses them.
	AuthLimiter    middleware.Limiter
	ContactLimiter middleware.Limiter
	// IPs resolves the client address for limiting and logging. Nil trusts
	// no forwarding headers.
	IPs *middleware.IPResolver

	Metrics *metrics.Metrics
	Log     zerolog.Logger
	Now     func() time.Time
}
