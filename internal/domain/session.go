package domain

import "time"

// SessionClaims is the self-contained principal snapshot carried by a session token.
type SessionClaims struct {
	AccountID  string      `json:"id"`
	Email      string      `json:"email"`
	Role       string      `json:"role"`
	Kind       AccountKind `json:"kind"`
	IsActive   bool        `json:"is_active"`
	IsVerified bool        `json:"is_verified"`
	IssuedAt   time.Time   `json:"issued_at"`
	ExpiresAt  time.Time   `json:"expires_at"`
}

// ClaimsFor snapshots the account fields embedded in a session token.
func ClaimsFor(a *Account) SessionClaims {
	return SessionClaims{
		AccountID:  a.AccountID,
		Email:      a.Email,
		Role:       a.Role,
		Kind:       a.Kind,
		IsActive:   a.IsActive,
		IsVerified: a.IsVerified,
	}
}

// Session is returned by a successful login.
type Session struct {
	Token   string        `json:"token"`
	Claims  SessionClaims `json:"claims"`
	Account *Account      `json:"account"`
}

// EmailChangeClaims is the payload of the short-lived email confirmation token.
type EmailChangeClaims struct {
	AccountID string
	Kind      AccountKind
	NewEmail  string
	OTPHash   string
	ExpiresAt time.Time
}
