package delivery

import (
	"context"
	"fmt"
	"time"
)

// CodeSubject is the subject line for verification-code emails.
const CodeSubject = "Your SnapLink 2FA Code"

// defaultCodeTTL is used when a sender is constructed without a lifetime.
const defaultCodeTTL = 10 * time.Minute

// codeBody renders the message body, quoting the code's actual lifetime so
// the email matches the configured challenge expiry.
func codeBody(code string, ttl time.Duration) string {
	if ttl <= 0 {
		ttl = defaultCodeTTL
	}
	minutes := int(ttl.Round(time.Minute).Minutes())
	if minutes < 1 {
		minutes = 1
	}
	return fmt.Sprintf("Your verification code is %s. It expires in %d minutes.", code, minutes)
}

// Sender delivers a verification code to an email address.
// Implementations must not log the code.
type Sender interface {
	SendCode(ctx context.Context, toEmail, code string) error
}
