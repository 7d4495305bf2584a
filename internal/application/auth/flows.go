package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/drs-api/internal/domain"
	"github.com/drs-api/internal/pkg/id"
)

func (s *service) Signup(ctx context.Context, req domain.SignupRequest) (acc *domain.Account, code string, err error) {
	defer s.observe("signup", &err)

	store, err := s.store(req.Kind)
	if err != nil {
		return nil, "", err
	}
	email := normalizeEmail(req.Email)
	if err := s.ensureEmailFree(ctx, email, ""); err != nil {
		return nil, "", err
	}

	a := &domain.Account{
		AccountID:  id.New(),
		Kind:       req.Kind,
		Name:       strings.TrimSpace(req.Name),
		Email:      email,
		Role:       req.Kind.Role(),
		IsActive:   req.Kind.ActiveOnSignup(),
		IsVerified: false,
	}
	switch req.Kind {
	case domain.KindDoctor:
		if req.Phone != nil && *req.Phone != "" {
			if err := s.ensurePhoneFree(ctx, *req.Phone, ""); err != nil {
				return nil, "", err
			}
			phone := *req.Phone
			a.Phone = &phone
		}
	case domain.KindAdmin:
		a.Pages = req.Pages
	}

	if a.PasswordHash, err = s.hashPassword(req.Password); err != nil {
		return nil, "", err
	}
	if code, err = s.issueOTP(a, s.opts.OTPTTL); err != nil {
		return nil, "", err
	}
	a.CreatedAt = a.UpdatedAt
	if err := store.Save(ctx, a); err != nil {
		return nil, "", fmt.Errorf("create account: %w", err)
	}

	s.notify(ctx, a, domain.SignupNotice{To: a.Email, Name: a.Name, OTP: code, Link: s.link("/verify")})
	return a.Sanitized(), code, nil
}

// VerifySignup consumes the pending code and marks the account verified.
// A first verification also activates the account; a blocked account stays blocked.
func (s *service) VerifySignup(ctx context.Context, req VerifyRequest) (acc *domain.Account, err error) {
	defer s.observe("verify_signup", &err)

	store, a, err := s.find(ctx, req.Kind, req.Email)
	if err != nil {
		return nil, err
	}
	if !a.OTPMatches(req.OTP, s.now().UTC()) {
		return nil, fmt.Errorf("invalid or expired code: %w", domain.ErrConflict)
	}
	if !a.IsVerified {
		a.IsActive = true
	}
	a.IsVerified = true
	a.ClearOTP()
	if err := s.save(ctx, store, a); err != nil {
		return nil, err
	}
	return a.Sanitized(), nil
}

// RequestLoginOTP acks unknown emails so the endpoint does not reveal which
// admins exist.
func (s *service) RequestLoginOTP(ctx context.Context, email string) (err error) {
	defer s.observe("login_request", &err)

	store, a, err := s.find(ctx, domain.KindAdmin, email)
	if errors.Is(err, domain.ErrNotFound) {
		s.log.Debug().Str("email", normalizeEmail(email)).Msg("login code requested for unknown admin")
		return nil
	}
	if err != nil {
		return err
	}
	code, err := s.issueOTP(a, s.opts.OTPTTL)
	if err != nil {
		return err
	}
	if err := s.save(ctx, store, a); err != nil {
		return err
	}
	s.notify(ctx, a, domain.LoginNotice{To: a.Email, Name: a.Name, OTP: code})
	return nil
}

// Login checks, in order: account exists, login code (admins), password,
// then account standing. The first failing check decides the error.
func (s *service) Login(ctx context.Context, req LoginRequest) (sess *domain.Session, err error) {
	defer s.observe("login", &err)

	store, a, err := s.find(ctx, req.Kind, req.Email)
	if err != nil {
		return nil, err
	}
	kind := a.Kind
	if kind == "" {
		kind = req.Kind
	}
	if kind.RequiresOTPAtLogin() && !a.OTPMatches(req.OTP, s.now().UTC()) {
		return nil, fmt.Errorf("invalid or expired login code: %w", domain.ErrConflict)
	}
	if !s.hasher.Compare(a.PasswordHash, req.Password) {
		return nil, fmt.Errorf("invalid credentials: %w", domain.ErrConflict)
	}
	if !a.IsActive {
		return nil, fmt.Errorf("account is inactive: %w", domain.ErrForbidden)
	}
	if kind.RequiresVerifiedAtLogin() && !a.IsVerified {
		return nil, fmt.Errorf("account is not verified: %w", domain.ErrForbidden)
	}

	if kind.RequiresOTPAtLogin() {
		a.ClearOTP()
		if err := s.save(ctx, store, a); err != nil {
			return nil, err
		}
	}

	token, claims, err := s.tokens.Issue(domain.ClaimsFor(a), s.sessionTTL(kind))
	if err != nil {
		return nil, domain.Internal("issue session token", err)
	}
	s.notify(ctx, a, domain.LoginNotice{To: a.Email, Name: a.Name})
	return &domain.Session{Token: token, Claims: claims, Account: a.Sanitized()}, nil
}

func (s *service) RequestPasswordReset(ctx context.Context, kind domain.AccountKind, email string) (err error) {
	defer s.observe("reset_password_request", &err)

	store, a, err := s.find(ctx, kind, email)
	if err != nil {
		return err
	}
	if kind.RequiresStandingForReset() && (!a.IsActive || !a.IsVerified) {
		return fmt.Errorf("account is not active: %w", domain.ErrForbidden)
	}
	code, err := s.issueOTP(a, s.opts.OTPTTL)
	if err != nil {
		return err
	}
	if err := s.save(ctx, store, a); err != nil {
		return err
	}
	s.notify(ctx, a, domain.ResetPasswordNotice{To: a.Email, Name: a.Name, OTP: code, Link: s.link("/reset-password")})
	return nil
}

func (s *service) ResetPassword(ctx context.Context, req ResetPasswordRequest) (err error) {
	defer s.observe("reset_password", &err)

	store, a, err := s.find(ctx, req.Kind, req.Email)
	if err != nil {
		return err
	}
	if !a.OTPMatches(req.OTP, s.now().UTC()) {
		return fmt.Errorf("invalid or expired code: %w", domain.ErrConflict)
	}
	hash, err := s.hashPassword(req.NewPassword)
	if err != nil {
		return err
	}
	a.PasswordHash = hash
	a.ClearOTP()
	return s.save(ctx, store, a)
}

func (s *service) ResendCode(ctx context.Context, req ResendRequest) (err error) {
	defer s.observe("resend_code", &err)

	store, err := s.store(req.Kind)
	if err != nil {
		return err
	}
	var a *domain.Account
	var phone string
	switch {
	case req.Email != nil && *req.Email != "":
		a, err = store.FindByEmail(ctx, normalizeEmail(*req.Email))
	case req.Phone != nil && *req.Phone != "":
		if req.Kind != domain.KindDoctor {
			return fmt.Errorf("phone lookup is only supported for doctors: %w", domain.ErrBadRequest)
		}
		phone = *req.Phone
		a, err = store.FindByPhone(ctx, phone)
	default:
		return fmt.Errorf("email or phone required: %w", domain.ErrBadRequest)
	}
	if err != nil {
		return err
	}

	code, err := s.issueOTP(a, s.opts.OTPTTL)
	if err != nil {
		return err
	}
	if err := s.save(ctx, store, a); err != nil {
		return err
	}
	s.notify(ctx, a, domain.ResendCodeNotice{To: a.Email, Name: a.Name, OTP: code, Phone: phone})
	return nil
}
