package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const defaultTimeout = 15 * time.Second

// ResendClient sends verification-code emails via the Resend API.
// See https://resend.com/docs/api-reference/emails/send-email.
type ResendClient struct {
	APIKey     string
	BaseURL    string
	From       string
	CodeTTL    time.Duration
	HTTPClient *http.Client
}

// NewResendClient returns a client that uses the given API key, sender
// address and optional base URL. codeTTL is quoted in the message body;
// zero falls back to the default lifetime.
func NewResendClient(apiKey, baseURL, from string, codeTTL time.Duration) *ResendClient {
	if baseURL == "" {
		baseURL = "https://api.resend.com/emails"
	}
	return &ResendClient{
		APIKey:     apiKey,
		BaseURL:    baseURL,
		From:       from,
		CodeTTL:    codeTTL,
		HTTPClient: &http.Client{Timeout: defaultTimeout},
	}
}

// SendCode emails the verification code to the given address. Does not log the code.
func (c *ResendClient) SendCode(ctx context.Context, toEmail, code string) error {
	if c.APIKey == "" {
		return fmt.Errorf("resend: API key not configured")
	}
	body := map[string]interface{}{
		"from":    c.From,
		"to":      []string{toEmail},
		"subject": CodeSubject,
		"text":    codeBody(code, c.CodeTTL),
	}
	raw, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.APIKey)
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("resend: request failed status=%d body=%s", resp.StatusCode, string(b))
	}
	return nil
}
