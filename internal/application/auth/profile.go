package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/drs-api/internal/domain"
)

// UpdateProfile applies name and phone directly. A new email is not applied:
// the account becomes unverified and a confirmation link is sent to the new
// address, see ConfirmEmailChange.
func (s *service) UpdateProfile(ctx context.Context, kind domain.AccountKind, accountID string, upd domain.ProfileUpdate) (acc *domain.Account, err error) {
	defer s.observe("update_profile", &err)

	store, a, err := s.findByID(ctx, kind, accountID)
	if err != nil {
		return nil, err
	}

	if upd.Name != nil {
		a.Name = strings.TrimSpace(*upd.Name)
	}
	if upd.Phone != nil {
		if kind != domain.KindDoctor {
			return nil, fmt.Errorf("phone is only supported for doctors: %w", domain.ErrBadRequest)
		}
		switch phone := *upd.Phone; {
		case phone == "":
			a.Phone = nil
		case a.Phone == nil || *a.Phone != phone:
			if err := s.ensurePhoneFree(ctx, phone, a.AccountID); err != nil {
				return nil, err
			}
			a.Phone = &phone
		}
	}

	var change *domain.EmailUpdateNotice
	if upd.Email != nil {
		if newEmail := normalizeEmail(*upd.Email); newEmail != a.Email {
			if change, err = s.startEmailChange(ctx, a, newEmail); err != nil {
				return nil, err
			}
		}
	}

	if err := s.save(ctx, store, a); err != nil {
		return nil, err
	}
	if change != nil {
		s.notify(ctx, a, *change)
	}
	return a.Sanitized(), nil
}

func (s *service) startEmailChange(ctx context.Context, a *domain.Account, newEmail string) (*domain.EmailUpdateNotice, error) {
	if err := s.ensureEmailFree(ctx, newEmail, a.AccountID); err != nil {
		return nil, err
	}
	// The code lives only in the signed token so the account's OTP slot
	// stays reserved for signup, login and reset codes.
	code, err := s.otp.Generate()
	if err != nil {
		return nil, domain.Internal("generate otp", err)
	}
	otpHash, err := s.hasher.Hash(code)
	if err != nil {
		return nil, domain.Internal("hash otp", err)
	}
	token, err := s.tokens.IssueEmailChange(domain.EmailChangeClaims{
		AccountID: a.AccountID,
		Kind:      a.Kind,
		NewEmail:  newEmail,
		OTPHash:   otpHash,
	})
	if err != nil {
		return nil, domain.Internal("issue email change token", err)
	}
	a.PendingEmail = newEmail
	a.IsVerified = false
	return &domain.EmailUpdateNotice{
		To:   newEmail,
		Name: a.Name,
		OTP:  code,
		Link: s.opts.EmailChangeLink + "?token=" + url.QueryEscape(token),
	}, nil
}

// ConfirmEmailChange applies the email carried by token once the matching
// code is presented.
func (s *service) ConfirmEmailChange(ctx context.Context, req ConfirmEmailRequest) (acc *domain.Account, err error) {
	defer s.observe("confirm_email", &err)

	c, err := s.tokens.VerifyEmailChange(req.Token)
	if err != nil {
		return nil, err
	}
	store, a, err := s.findByID(ctx, c.Kind, c.AccountID)
	if err != nil {
		return nil, err
	}
	if a.PendingEmail == "" || a.PendingEmail != c.NewEmail || !s.hasher.Compare(c.OTPHash, req.OTP) {
		return nil, fmt.Errorf("invalid or expired code: %w", domain.ErrConflict)
	}
	if err := s.ensureEmailFree(ctx, c.NewEmail, a.AccountID); err != nil {
		return nil, err
	}
	a.Email = c.NewEmail
	a.PendingEmail = ""
	a.IsVerified = true
	if err := s.save(ctx, store, a); err != nil {
		return nil, err
	}
	return a.Sanitized(), nil
}

func (s *service) ChangePassword(ctx context.Context, kind domain.AccountKind, accountID string, req ChangePasswordRequest) (err error) {
	defer s.observe("change_password", &err)

	store, a, err := s.findByID(ctx, kind, accountID)
	if err != nil {
		return err
	}
	if !s.hasher.Compare(a.PasswordHash, req.OldPassword) {
		return fmt.Errorf("current password does not match: %w", domain.ErrConflict)
	}
	hash, err := s.hashPassword(req.NewPassword)
	if err != nil {
		return err
	}
	a.PasswordHash = hash
	return s.save(ctx, store, a)
}

func (s *service) Me(ctx context.Context, kind domain.AccountKind, accountID string) (*domain.Account, error) {
	_, a, err := s.findByID(ctx, kind, accountID)
	if err != nil {
		return nil, err
	}
	return a.Sanitized(), nil
}

// ToggleActive flips IsActive. It is the only way an account becomes blocked.
func (s *service) ToggleActive(ctx context.Context, actorID string, kind domain.AccountKind, accountID string) (acc *domain.Account, err error) {
	defer s.observe("toggle_active", &err)

	if kind == domain.KindAdmin && accountID == actorID {
		return nil, fmt.Errorf("cannot change own status: %w", domain.ErrConflict)
	}
	store, a, err := s.findByID(ctx, kind, accountID)
	if err != nil {
		return nil, err
	}
	a.IsActive = !a.IsActive
	if err := s.save(ctx, store, a); err != nil {
		return nil, err
	}
	return a.Sanitized(), nil
}

func (s *service) UpdatePages(ctx context.Context, accountID string, pages json.RawMessage) (*domain.Account, error) {
	store, a, err := s.findByID(ctx, domain.KindAdmin, accountID)
	if err != nil {
		return nil, err
	}
	a.Pages = pages
	if err := s.save(ctx, store, a); err != nil {
		return nil, err
	}
	return a.Sanitized(), nil
}
