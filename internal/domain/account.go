package domain

import (
	"encoding/json"
	"time"
)

// AccountKind distinguishes the two principal variants sharing one account model.
type AccountKind string

const (
	KindAdmin  AccountKind = "admin"
	KindDoctor AccountKind = "doctor"
)

// Role names embedded in session tokens and stored on each account.
const (
	RoleAdmin  = "admin"
	RoleDoctor = "doctor"
)

// ParseKind returns the AccountKind named by s.
func ParseKind(s string) (AccountKind, bool) {
	switch AccountKind(s) {
	case KindAdmin, KindDoctor:
		return AccountKind(s), true
	}
	return "", false
}

// Role is the fixed role of every account of this kind.
func (k AccountKind) Role() string {
	if k == KindAdmin {
		return RoleAdmin
	}
	return RoleDoctor
}

// RequiresOTPAtLogin reports whether login must present the code issued by a prior login request.
func (k AccountKind) RequiresOTPAtLogin() bool { return k == KindAdmin }

// RequiresVerifiedAtLogin reports whether login is refused until the email is verified.
func (k AccountKind) RequiresVerifiedAtLogin() bool { return k == KindDoctor }

// ActiveOnSignup is the initial IsActive value for new accounts of this kind.
func (k AccountKind) ActiveOnSignup() bool { return k == KindAdmin }

// RequiresStandingForReset reports whether password reset needs an active, verified account.
func (k AccountKind) RequiresStandingForReset() bool { return k == KindDoctor }

// Account is the stored identity record shared by admins and doctors.
// Phone is only used by doctors; Pages only by admins.
type Account struct {
	AccountID    string          `json:"id" dynamodbav:"account_id"`
	Kind         AccountKind     `json:"kind" dynamodbav:"kind"`
	Name         string          `json:"name" dynamodbav:"name"`
	Email        string          `json:"email" dynamodbav:"email"`
	PendingEmail string          `json:"pending_email,omitempty" dynamodbav:"pending_email,omitempty"`
	Phone        *string         `json:"phone,omitempty" dynamodbav:"phone,omitempty"`
	PasswordHash string          `json:"-" dynamodbav:"password_hash"`
	OTP          string          `json:"-" dynamodbav:"otp"`
	OTPExpiresAt int64           `json:"-" dynamodbav:"otp_expires_at"`
	Role         string          `json:"role" dynamodbav:"role"`
	IsActive     bool            `json:"is_active" dynamodbav:"is_active"`
	IsVerified   bool            `json:"is_verified" dynamodbav:"is_verified"`
	Pages        json.RawMessage `json:"pages,omitempty" dynamodbav:"pages,omitempty"`
	Version      int64           `json:"-" dynamodbav:"version"`
	CreatedAt    time.Time       `json:"created" dynamodbav:"created_at"`
	UpdatedAt    time.Time       `json:"updated" dynamodbav:"updated_at"`
}

// SetOTP stores a pending code that stays valid for ttl.
func (a *Account) SetOTP(code string, now time.Time, ttl time.Duration) {
	a.OTP = code
	a.OTPExpiresAt = now.Add(ttl).Unix()
}

// ClearOTP consumes the pending code.
func (a *Account) ClearOTP() {
	a.OTP = ""
	a.OTPExpiresAt = 0
}

// OTPMatches reports whether code equals the pending, unexpired code.
// Comparison is exact and case-sensitive.
func (a *Account) OTPMatches(code string, now time.Time) bool {
	if a.OTP == "" || a.OTP != code {
		return false
	}
	return a.OTPExpiresAt == 0 || now.Unix() <= a.OTPExpiresAt
}

// Sanitized returns a copy without credential material.
func (a *Account) Sanitized() *Account {
	c := *a
	c.PasswordHash = ""
	c.ClearOTP()
	return &c
}

// SignupRequest is the input for creating an admin or doctor account.
type SignupRequest struct {
	Kind     AccountKind     `json:"-"`
	Name     string          `json:"name" validate:"required,max=120"`
	Email    string          `json:"email" validate:"required,email"`
	Phone    *string         `json:"phone" validate:"omitempty,egphone"`
	Password string          `json:"password" validate:"required,min=8,maxbytes=72"`
	Pages    json.RawMessage `json:"pages"`
}

// ProfileUpdate carries the fields an account holder may change.
// A nil field is left untouched.
type ProfileUpdate struct {
	Name  *string `json:"name" validate:"omitempty,max=120"`
	Email *string `json:"email" validate:"omitempty,email"`
	Phone *string `json:"phone" validate:"omitempty,egphone"`
}

// AccountFilter narrows an account listing. Nil fields do not filter.
type AccountFilter struct {
	IsActive   *bool
	IsVerified *bool
	Search     string
}
