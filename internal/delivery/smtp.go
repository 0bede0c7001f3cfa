package delivery

import (
	"context"
	"fmt"
	"time"

	"github.com/wneessen/go-mail"
)

// SMTPSender sends verification-code emails over SMTP. Intended for
// self-hosted deployments that do not use the Resend API.
type SMTPSender struct {
	host     string
	port     int
	username string
	password string
	from     string
	codeTTL  time.Duration
}

// NewSMTPSender returns a sender that connects to the given SMTP host.
// codeTTL is quoted in the message body; zero falls back to the default
// lifetime.
func NewSMTPSender(host string, port int, username, password, from string, codeTTL time.Duration) *SMTPSender {
	return &SMTPSender{host: host, port: port, username: username, password: password, from: from, codeTTL: codeTTL}
}

// SendCode emails the verification code to the given address. Does not log the code.
func (s *SMTPSender) SendCode(ctx context.Context, toEmail, code string) error {
	m := mail.NewMsg()
	if err := m.From(s.from); err != nil {
		return fmt.Errorf("smtp: invalid from address: %w", err)
	}
	if err := m.To(toEmail); err != nil {
		return fmt.Errorf("smtp: invalid to address: %w", err)
	}
	m.Subject(CodeSubject)
	m.SetBodyString(mail.TypeTextPlain, codeBody(code, s.codeTTL))

	opts := []mail.Option{mail.WithPort(s.port)}
	if s.username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(s.username),
			mail.WithPassword(s.password),
		)
	}
	client, err := mail.NewClient(s.host, opts...)
	if err != nil {
		return fmt.Errorf("smtp: create client: %w", err)
	}
	if err := client.DialAndSendWithContext(ctx, m); err != nil {
		return fmt.Errorf("smtp: send: %w", err)
	}
	return nil
}
