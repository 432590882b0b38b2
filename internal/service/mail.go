package service

import (
	"bytes"
	"fmt"
	"html/template"
	"net/url"
	"strings"
	"time"
)

const (
	MailKindVerifyEmail   = "verify_email"
	MailKindResetPassword = "reset_password"
)

var mailTemplates = template.Must(template.New("mail").Parse(`
{{define "verify_email"}}<p>Welcome!</p>
<p>Please verify your email by clicking the link below:</p>
<p><a href="{{.Link}}">Verify Email</a></p>
<p>This link expires in {{.Expiry}}.</p>{{end}}
{{define "reset_password"}}<p>You requested a password reset.</p>
<p><a href="{{.Link}}">Reset Password</a></p>
<p>This link expires in {{.Expiry}}.</p>
<p>If you did not request this, you can ignore this email.</p>{{end}}
`))

// Mailer renders outgoing messages. Links point at the frontend, which
// posts the token back to the API.
type Mailer struct {
	frontendURL string
	verifyTTL   time.Duration
	resetTTL    time.Duration
}

func NewMailer(frontendURL string, policy EmailTokenPolicy) *Mailer {
	policy = policy.withDefaults()
	return &Mailer{
		frontendURL: strings.TrimRight(frontendURL, "/"),
		verifyTTL:   policy.VerifyTTL,
		resetTTL:    policy.ResetTTL,
	}
}

func (m *Mailer) VerificationMessage(to, rawToken string) (Message, error) {
	return m.render(MailKindVerifyEmail, to, "Verify your email", "/verify-email", rawToken, m.verifyTTL)
}

func (m *Mailer) ResetMessage(to, rawToken string) (Message, error) {
	return m.render(MailKindResetPassword, to, "Reset your password", "/reset-password", rawToken, m.resetTTL)
}

func (m *Mailer) render(kind, to, subject, path, rawToken string, ttl time.Duration) (Message, error) {
	link := m.frontendURL + path + "?" + url.Values{"token": {rawToken}}.Encode()
	var buf bytes.Buffer
	err := mailTemplates.ExecuteTemplate(&buf, kind, struct {
		Link   string
		Expiry string
	}{Link: link, Expiry: humanizeTTL(ttl)})
	if err != nil {
		return Message{}, fmt.Errorf("render %s: %w", kind, err)
	}
	return Message{Kind: kind, To: to, Subject: subject, HTML: buf.String()}, nil
}

func humanizeTTL(d time.Duration) string {
	unit := func(n int64, name string) string {
		if n == 1 {
			return "1 " + name
		}
		return fmt.Sprintf("%d %ss", n, name)
	}
	switch {
	case d >= time.Hour && d%time.Hour == 0:
		return unit(int64(d/time.Hour), "hour")
	case d >= time.Minute:
		return unit(int64(d/time.Minute), "minute")
	default:
		return unit(int64(d/time.Second), "second")
	}
}
