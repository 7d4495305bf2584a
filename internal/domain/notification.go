package domain

// NoticeKind names the notification templates the identity flows emit.
type NoticeKind string

const (
	NoticeSignup        NoticeKind = "signup"
	NoticeLogin         NoticeKind = "login"
	NoticeResetPassword NoticeKind = "reset-password"
	NoticeResendCode    NoticeKind = "resend-code"
	NoticeEmailUpdate   NoticeKind = "email-update"
	NoticeContact       NoticeKind = "contact"
)

// Notice is one outbound message. The set of implementations is closed.
type Notice interface {
	Kind() NoticeKind
	Recipient() string
	notice()
}

// SignupNotice delivers the account verification code.
type SignupNotice struct {
	To   string
	Name string
	OTP  string
	Link string
}

// LoginNotice delivers a login code when OTP is set, otherwise a sign-in alert.
type LoginNotice struct {
	To   string
	Name string
	OTP  string
}

// ResetPasswordNotice delivers the password reset code.
type ResetPasswordNotice struct {
	To   string
	Name string
	OTP  string
	Link string
}

// ResendCodeNotice re-delivers a fresh code; Phone is set when the
// request located the account by phone number.
type ResendCodeNotice struct {
	To    string
	Name  string
	OTP   string
	Phone string
}

// EmailUpdateNotice is sent to the new address of a pending email change.
type EmailUpdateNotice struct {
	To   string
	Name string
	OTP  string
	Link string
}

// ContactNotice confirms receipt of a contact form message.
type ContactNotice struct {
	To      string
	Name    string
	Message string
}

func (SignupNotice) Kind() NoticeKind        { return NoticeSignup }
func (LoginNotice) Kind() NoticeKind         { return NoticeLogin }
func (ResetPasswordNotice) Kind() NoticeKind { return NoticeResetPassword }
func (ResendCodeNotice) Kind() NoticeKind    { return NoticeResendCode }
func (EmailUpdateNotice) Kind() NoticeKind   { return NoticeEmailUpdate }
func (ContactNotice) Kind() NoticeKind       { return NoticeContact }

func (n SignupNotice) Recipient() string        { return n.To }
func (n LoginNotice) Recipient() string         { return n.To }
func (n ResetPasswordNotice) Recipient() string { return n.To }
func (n ResendCodeNotice) Recipient() string    { return n.To }
func (n EmailUpdateNotice) Recipient() string   { return n.To }
func (n ContactNotice) Recipient() string       { return n.To }

func (SignupNotice) notice()        {}
func (LoginNotice) notice()         {}
func (ResetPasswordNotice) notice() {}
func (ResendCodeNotice) notice()    {}
func (EmailUpdateNotice) notice()   {}
func (ContactNotice) notice()       {}
