package notification

import (
	"bytes"
	"fmt"
	"html/template"

	"github.com/drs-api/internal/domain"
	"github.com/drs-api/internal/infrastructure/smtp"
)

var layout = template.Must(template.New("email").Parse(`<!DOCTYPE html>
<html><body style="font-family:Arial,sans-serif;color:#222">
<p>Hello {{.Name}},</p>
<p>{{.Intro}}</p>
{{if .Code}}<p style="font-size:24px;font-weight:bold;letter-spacing:4px">{{.Code}}</p>{{end}}
{{if .Link}}<p><a href="{{.Link}}">{{.LinkText}}</a></p>{{end}}
{{if .Quote}}<blockquote>{{.Quote}}</blockquote>{{end}}
<p>{{.Outro}}</p>
<p>DRS Team</p>
</body></html>`))

type view struct {
	Name     string
	Intro    string
	Code     string
	Link     string
	LinkText string
	Quote    string
	Outro    string
}

// render turns a notice into an email with an HTML body and a plain-text alternative.
func render(n domain.Notice) (smtp.Email, error) {
	var subject string
	var v view
	switch n := n.(type) {
	case domain.SignupNotice:
		subject = "Verify your DRS account"
		v = view{Name: n.Name, Intro: "Use this code to verify your account:", Code: n.OTP,
			Link: n.Link, LinkText: "Open DRS", Outro: "The code expires soon. If you did not sign up, ignore this email."}
	case domain.LoginNotice:
		if n.OTP != "" {
			subject = "Your DRS login code"
			v = view{Name: n.Name, Intro: "Use this code to finish signing in:", Code: n.OTP,
				Outro: "If you did not try to sign in, change your password."}
		} else {
			subject = "New sign-in to your DRS account"
			v = view{Name: n.Name, Intro: "Your account was just used to sign in.",
				Outro: "If this was not you, reset your password now."}
		}
	case domain.ResetPasswordNotice:
		subject = "Reset your DRS password"
		v = view{Name: n.Name, Intro: "Use this code to reset your password:", Code: n.OTP,
			Link: n.Link, LinkText: "Reset password", Outro: "If you did not request a reset, ignore this email."}
	case domain.ResendCodeNotice:
		subject = "Your new DRS code"
		v = view{Name: n.Name, Intro: "Here is your new verification code:", Code: n.OTP,
			Outro: "Previous codes no longer work."}
	case domain.EmailUpdateNotice:
		subject = "Confirm your new DRS email"
		v = view{Name: n.Name, Intro: "Use this code together with the link below to confirm your new email address:", Code: n.OTP,
			Link: n.Link, LinkText: "Confirm email", Outro: "The link expires in one hour."}
	case domain.ContactNotice:
		subject = "We received your message"
		v = view{Name: n.Name, Intro: "Thanks for contacting DRS. We received the following message:",
			Quote: n.Message, Outro: "We will get back to you shortly."}
	default:
		return smtp.Email{}, fmt.Errorf("unsupported notice %T", n)
	}

	var html bytes.Buffer
	if err := layout.Execute(&html, v); err != nil {
		return smtp.Email{}, fmt.Errorf("render %s: %w", n.Kind(), err)
	}
	return smtp.Email{
		To:       n.Recipient(),
		Subject:  subject,
		Body:     plain(v),
		HTMLBody: html.String(),
	}, nil
}

func plain(v view) string {
	var b bytes.Buffer
	fmt.Fprintf(&b, "Hello %s,\n\n%s\n", v.Name, v.Intro)
	if v.Code != "" {
		fmt.Fprintf(&b, "\n%s\n", v.Code)
	}
	if v.Link != "" {
		fmt.Fprintf(&b, "\n%s\n", v.Link)
	}
	if v.Quote != "" {
		fmt.Fprintf(&b, "\n> %s\n", v.Quote)
	}
	fmt.Fprintf(&b, "\n%s\n\nDRS Team\n", v.Outro)
	return b.String()
}

// smsText is the short form of a code notice for SMS delivery.
func smsText(n domain.ResendCodeNotice) string {
	return "Your DRS verification code is " + n.OTP
}
