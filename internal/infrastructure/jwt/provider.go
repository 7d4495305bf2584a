package jwtinfra

import (
	"errors"
	"fmt"
	"time"

	"github.com/drs-api/internal/config"
	"github.com/drs-api/internal/domain"
	"github.com/golang-jwt/jwt/v5"
)

// Token audiences. A token is only accepted by the verifier for its own audience.
const (
	audienceSession     = "drs-session"
	audienceEmailChange = "drs-email-change"
	issuer              = "drs-api"
)

// Claims holds the session JWT payload fields.
type Claims struct {
	Email      string `json:"email"`
	Role       string `json:"role"`
	Kind       string `json:"kind"`
	IsActive   bool   `json:"is_active"`
	IsVerified bool   `json:"is_verified"`
	jwt.RegisteredClaims
}

// emailChangeClaims holds the payload of the email confirmation link token.
type emailChangeClaims struct {
	Kind     string `json:"kind"`
	NewEmail string `json:"new_email"`
	OTPHash  string `json:"otp_hash"`
	jwt.RegisteredClaims
}

// Provider signs and verifies HS256 JWTs.
type Provider struct {
	secret         []byte
	emailChangeTTL time.Duration
	now            func() time.Time
}

// Option customises a Provider.
type Option func(*Provider)

// WithClock replaces time.Now for issuing and validating tokens.
func WithClock(now func() time.Time) Option {
	return func(p *Provider) { p.now = now }
}

func NewProvider(cfg *config.Config, opts ...Option) (*Provider, error) {
	if len(cfg.JWTSecret) == 0 {
		return nil, errors.New("jwt secret is empty")
	}
	p := &Provider{
		secret:         []byte(cfg.JWTSecret),
		emailChangeTTL: cfg.EmailChangeTokenTTL,
		now:            time.Now,
	}
	if p.emailChangeTTL <= 0 {
		p.emailChangeTTL = time.Hour
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Issue signs claims valid for ttl and returns the token together with the
// claims as stamped (IssuedAt/ExpiresAt at second precision).
func (p *Provider) Issue(c domain.SessionClaims, ttl time.Duration) (string, domain.SessionClaims, error) {
	now := p.now().UTC().Truncate(time.Second)
	c.IssuedAt = now
	c.ExpiresAt = now.Add(ttl)
	claims := Claims{
		Email:      c.Email,
		Role:       c.Role,
		Kind:       string(c.Kind),
		IsActive:   c.IsActive,
		IsVerified: c.IsVerified,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   c.AccountID,
			Issuer:    issuer,
			Audience:  jwt.ClaimStrings{audienceSession},
			ExpiresAt: jwt.NewNumericDate(c.ExpiresAt),
			IssuedAt:  jwt.NewNumericDate(c.IssuedAt),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(p.secret)
	if err != nil {
		return "", domain.SessionClaims{}, fmt.Errorf("sign session token: %w", err)
	}
	return signed, c, nil
}

// Verify checks signature, audience and expiry and returns the embedded claims.
// Any failure is reported as domain.ErrUnauthorized.
func (p *Provider) Verify(tokenStr string) (*domain.SessionClaims, error) {
	var claims Claims
	if err := p.parse(tokenStr, &claims, audienceSession); err != nil {
		return nil, err
	}
	if claims.Subject == "" || claims.IssuedAt == nil {
		return nil, fmt.Errorf("incomplete token claims: %w", domain.ErrUnauthorized)
	}
	return &domain.SessionClaims{
		AccountID:  claims.Subject,
		Email:      claims.Email,
		Role:       claims.Role,
		Kind:       domain.AccountKind(claims.Kind),
		IsActive:   claims.IsActive,
		IsVerified: claims.IsVerified,
		IssuedAt:   claims.IssuedAt.Time.UTC(),
		ExpiresAt:  claims.ExpiresAt.Time.UTC(),
	}, nil
}

// IssueEmailChange signs the confirmation token for a pending email change.
func (p *Provider) IssueEmailChange(c domain.EmailChangeClaims) (string, error) {
	now := p.now().UTC().Truncate(time.Second)
	claims := emailChangeClaims{
		Kind:     string(c.Kind),
		NewEmail: c.NewEmail,
		OTPHash:  c.OTPHash,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   c.AccountID,
			Issuer:    issuer,
			Audience:  jwt.ClaimStrings{audienceEmailChange},
			ExpiresAt: jwt.NewNumericDate(now.Add(p.emailChangeTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(p.secret)
	if err != nil {
		return "", fmt.Errorf("sign email change token: %w", err)
	}
	return signed, nil
}

// VerifyEmailChange validates a confirmation token.
func (p *Provider) VerifyEmailChange(tokenStr string) (*domain.EmailChangeClaims, error) {
	var claims emailChangeClaims
	if err := p.parse(tokenStr, &claims, audienceEmailChange); err != nil {
		return nil, err
	}
	if claims.Subject == "" || claims.NewEmail == "" {
		return nil, fmt.Errorf("incomplete token claims: %w", domain.ErrUnauthorized)
	}
	return &domain.EmailChangeClaims{
		AccountID: claims.Subject,
		Kind:      domain.AccountKind(claims.Kind),
		NewEmail:  claims.NewEmail,
		OTPHash:   claims.OTPHash,
		ExpiresAt: claims.ExpiresAt.Time.UTC(),
	}, nil
}

func (p *Provider) parse(tokenStr string, claims jwt.Claims, audience string) error {
	_, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		return p.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience(audience),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(p.now),
	)
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrUnauthorized, err)
	}
	return nil
}
