package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/drs-api/internal/domain"
	"github.com/drs-api/internal/infrastructure/metrics"
	"github.com/drs-api/internal/pkg/password"
	"github.com/rs/zerolog"
)

// AccountStore persists one account kind.
type AccountStore interface {
	FindByID(ctx context.Context, id string) (*domain.Account, error)
	FindByEmail(ctx context.Context, email string) (*domain.Account, error)
	FindByPhone(ctx context.Context, phone string) (*domain.Account, error)
	Save(ctx context.Context, a *domain.Account) error
}

type Hasher interface {
	Hash(secret string) (string, error)
	Compare(hash, secret string) bool
}

type OTPGenerator interface {
	Generate() (string, error)
}

type TokenIssuer interface {
	Issue(claims domain.SessionClaims, ttl time.Duration) (string, domain.SessionClaims, error)
	IssueEmailChange(c domain.EmailChangeClaims) (string, error)
	VerifyEmailChange(token string) (*domain.EmailChangeClaims, error)
}

type Notifier interface {
	Notify(ctx context.Context, n domain.Notice) error
}

type VerifyRequest struct {
	Kind  domain.AccountKind `json:"-"`
	Email string             `json:"email" validate:"required,email"`
	OTP   string             `json:"otp" validate:"required"`
}

// LoginRequest carries credentials. OTP is required for admins only.
type LoginRequest struct {
	Kind     domain.AccountKind `json:"-"`
	Email    string             `json:"email" validate:"required,email"`
	Password string             `json:"password" validate:"required"`
	OTP      string             `json:"otp"`
}

type EmailRequest struct {
	Email string `json:"email" validate:"required,email"`
}

type ResetPasswordRequest struct {
	Kind        domain.AccountKind `json:"-"`
	Email       string             `json:"email" validate:"required,email"`
	OTP         string             `json:"otp" validate:"required"`
	NewPassword string             `json:"new_password" validate:"required,min=8,maxbytes=72"`
}

// ResendRequest locates an account by email or, for doctors, by phone.
type ResendRequest struct {
	Kind  domain.AccountKind `json:"-"`
	Email *string            `json:"email" validate:"omitempty,email"`
	Phone *string            `json:"phone" validate:"omitempty,egphone"`
}

type ChangePasswordRequest struct {
	OldPassword string `json:"old_password" validate:"required"`
	NewPassword string `json:"new_password" validate:"required,min=8,maxbytes=72"`
}

type ConfirmEmailRequest struct {
	Token string `json:"token" validate:"required"`
	OTP   string `json:"otp" validate:"required"`
}

type Service interface {
	Signup(ctx context.Context, req domain.SignupRequest) (*domain.Account, string, error)
	VerifySignup(ctx context.Context, req VerifyRequest) (*domain.Account, error)
	RequestLoginOTP(ctx context.Context, email string) error
	Login(ctx context.Context, req LoginRequest) (*domain.Session, error)
	RequestPasswordReset(ctx context.Context, kind domain.AccountKind, email string) error
	ResetPassword(ctx context.Context, req ResetPasswordRequest) error
	ResendCode(ctx context.Context, req ResendRequest) error
	UpdateProfile(ctx context.Context, kind domain.AccountKind, accountID string, upd domain.ProfileUpdate) (*domain.Account, error)
	ConfirmEmailChange(ctx context.Context, req ConfirmEmailRequest) (*domain.Account, error)
	ChangePassword(ctx context.Context, kind domain.AccountKind, accountID string, req ChangePasswordRequest) error
	Me(ctx context.Context, kind domain.AccountKind, accountID string) (*domain.Account, error)
	ToggleActive(ctx context.Context, actorID string, kind domain.AccountKind, accountID string) (*domain.Account, error)
	UpdatePages(ctx context.Context, accountID string, pages json.RawMessage) (*domain.Account, error)
}

// Options holds the configurable lifetimes and links used by the flows.
type Options struct {
	AdminSessionTTL  time.Duration
	DoctorSessionTTL time.Duration
	OTPTTL           time.Duration
	FrontendURL      string
	EmailChangeLink  string
}

// ServiceDeps holds all dependencies for the auth service.
type ServiceDeps struct {
	Admins   AccountStore
	Doctors  AccountStore
	Hasher   Hasher
	OTP      OTPGenerator
	Tokens   TokenIssuer
	Notifier Notifier
	Log      zerolog.Logger
	Metrics  *metrics.Metrics
	Options  Options
	Now      func() time.Time
}

type service struct {
	admins   AccountStore
	doctors  AccountStore
	hasher   Hasher
	otp      OTPGenerator
	tokens   TokenIssuer
	notifier Notifier
	log      zerolog.Logger
	metrics  *metrics.Metrics
	opts     Options
	now      func() time.Time
}

func NewService(deps ServiceDeps) Service {
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	opts := deps.Options
	if opts.OTPTTL <= 0 {
		opts.OTPTTL = 15 * time.Minute
	}
	return &service{
		admins:   deps.Admins,
		doctors:  deps.Doctors,
		hasher:   deps.Hasher,
		otp:      deps.OTP,
		tokens:   deps.Tokens,
		notifier: deps.Notifier,
		log:      deps.Log,
		metrics:  deps.Metrics,
		opts:     opts,
		now:      now,
	}
}

func (s *service) store(kind domain.AccountKind) (AccountStore, error) {
	switch kind {
	case domain.KindAdmin:
		return s.admins, nil
	case domain.KindDoctor:
		return s.doctors, nil
	}
	return nil, fmt.Errorf("unknown account kind %q: %w", kind, domain.ErrBadRequest)
}

func (s *service) sessionTTL(kind domain.AccountKind) time.Duration {
	if kind == domain.KindAdmin {
		return s.opts.AdminSessionTTL
	}
	return s.opts.DoctorSessionTTL
}

func (s *service) find(ctx context.Context, kind domain.AccountKind, email string) (AccountStore, *domain.Account, error) {
	store, err := s.store(kind)
	if err != nil {
		return nil, nil, err
	}
	a, err := store.FindByEmail(ctx, normalizeEmail(email))
	if err != nil {
		return nil, nil, err
	}
	return store, a, nil
}

func (s *service) findByID(ctx context.Context, kind domain.AccountKind, id string) (AccountStore, *domain.Account, error) {
	store, err := s.store(kind)
	if err != nil {
		return nil, nil, err
	}
	a, err := store.FindByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	return store, a, nil
}

// ensureEmailFree fails with Conflict when any account other than selfID
// already uses email. Emails are unique across both kinds.
func (s *service) ensureEmailFree(ctx context.Context, email, selfID string) error {
	for _, store := range []AccountStore{s.admins, s.doctors} {
		a, err := store.FindByEmail(ctx, email)
		switch {
		case err == nil && a.AccountID != selfID:
			return fmt.Errorf("email already registered: %w", domain.ErrConflict)
		case err != nil && !errors.Is(err, domain.ErrNotFound):
			return err
		}
	}
	return nil
}

func (s *service) ensurePhoneFree(ctx context.Context, phone, selfID string) error {
	a, err := s.doctors.FindByPhone(ctx, phone)
	switch {
	case err == nil && a.AccountID != selfID:
		return fmt.Errorf("phone already registered: %w", domain.ErrConflict)
	case err != nil && !errors.Is(err, domain.ErrNotFound):
		return err
	}
	return nil
}

// issueOTP stores a fresh code on a without persisting it.
func (s *service) issueOTP(a *domain.Account, ttl time.Duration) (string, error) {
	code, err := s.otp.Generate()
	if err != nil {
		return "", domain.Internal("generate otp", err)
	}
	now := s.now().UTC()
	a.SetOTP(code, now, ttl)
	a.UpdatedAt = now
	return code, nil
}

func (s *service) hashPassword(secret string) (string, error) {
	hash, err := s.hasher.Hash(secret)
	if errors.Is(err, password.ErrTooLong) {
		return "", fmt.Errorf("password exceeds %d bytes: %w", password.MaxBytes, domain.ErrBadRequest)
	}
	if err != nil {
		return "", domain.Internal("hash password", err)
	}
	return hash, nil
}

func (s *service) save(ctx context.Context, store AccountStore, a *domain.Account) error {
	a.UpdatedAt = s.now().UTC()
	if err := store.Save(ctx, a); err != nil {
		return fmt.Errorf("save account: %w", err)
	}
	return nil
}

// notify delivers n after state has been persisted. Failures are logged only.
func (s *service) notify(ctx context.Context, a *domain.Account, n domain.Notice) {
	if err := s.notifier.Notify(ctx, n); err != nil {
		s.log.Warn().Err(err).
			Str("account_id", a.AccountID).
			Str("kind", string(a.Kind)).
			Str("notice", string(n.Kind())).
			Msg("notification failed")
	}
}

func (s *service) observe(operation string, err *error) {
	s.metrics.AuthOperation(operation, *err)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (s *service) link(path string) string {
	return strings.TrimRight(s.opts.FrontendURL, "/") + path
}
