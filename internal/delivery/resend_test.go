package delivery

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestCodeBody(t *testing.T) {
	cases := []struct {
		name string
		ttl  time.Duration
		want string
	}{
		{"configured", 5 * time.Minute, "expires in 5 minutes"},
		{"unset falls back", 0, "expires in 10 minutes"},
		{"sub-minute rounds up", 30 * time.Second, "expires in 1 minutes"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			body := codeBody("482913", tc.ttl)
			if !strings.Contains(body, "482913") {
				t.Errorf("body = %q, want to contain the code", body)
			}
			if !strings.Contains(body, tc.want) {
				t.Errorf("body = %q, want to contain %q", body, tc.want)
			}
		})
	}
}

func TestNewResendClient_Defaults(t *testing.T) {
	client := NewResendClient("api-key", "", "SnapLink <no-reply@snaplink.app>", 0)
	if client.APIKey != "api-key" {
		t.Errorf("APIKey = %q, want %q", client.APIKey, "api-key")
	}
	if client.BaseURL != "https://api.resend.com/emails" {
		t.Errorf("BaseURL = %q, want default", client.BaseURL)
	}
	if client.From != "SnapLink <no-reply@snaplink.app>" {
		t.Errorf("From = %q, want sender address", client.From)
	}
	if client.HTTPClient == nil {
		t.Fatal("HTTPClient should be set")
	}
	if client.HTTPClient.Timeout != defaultTimeout {
		t.Errorf("HTTPClient.Timeout = %v, want %v", client.HTTPClient.Timeout, defaultTimeout)
	}
}

func TestSendCode_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %q, want %q", r.Method, http.MethodPost)
		}
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("Content-Type = %q, want application/json", r.Header.Get("Content-Type"))
		}
		if r.Header.Get("Authorization") != "Bearer test-api-key" {
			t.Errorf("Authorization = %q, want Bearer test-api-key", r.Header.Get("Authorization"))
		}

		var body map[string]interface{}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("Decode body: %v", err)
		}
		if body["subject"] != CodeSubject {
			t.Errorf("subject = %v, want %q", body["subject"], CodeSubject)
		}
		to, ok := body["to"].([]interface{})
		if !ok || len(to) != 1 || to[0] != "user@example.com" {
			t.Errorf("to = %v, want [user@example.com]", body["to"])
		}
		text, _ := body["text"].(string)
		if !strings.Contains(text, "482913") {
			t.Errorf("text = %q, want to contain the code", text)
		}
		// The body quotes the configured lifetime, not a fixed number.
		if !strings.Contains(text, "expires in 5 minutes") {
			t.Errorf("text = %q, want to quote the configured lifetime", text)
		}

		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"id":"email-1"}`))
	}))
	defer server.Close()

	client := NewResendClient("test-api-key", server.URL, "SnapLink <no-reply@snaplink.app>", 5*time.Minute)
	if err := client.SendCode(context.Background(), "user@example.com", "482913"); err != nil {
		t.Fatalf("SendCode: %v", err)
	}
}

func TestSendCode_MissingAPIKey(t *testing.T) {
	client := NewResendClient("", "", "no-reply@snaplink.app", 0)
	err := client.SendCode(context.Background(), "user@example.com", "482913")
	if err == nil {
		t.Fatal("expected error for missing API key")
	}
	if !strings.Contains(err.Error(), "API key not configured") {
		t.Errorf("error message = %q, want to contain 'API key not configured'", err.Error())
	}
}

func TestSendCode_Non200Status(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"message":"invalid to address"}`))
	}))
	defer server.Close()

	client := NewResendClient("api-key", server.URL, "no-reply@snaplink.app", 0)
	err := client.SendCode(context.Background(), "not-an-email", "482913")
	if err == nil {
		t.Fatal("expected error for non-200 status")
	}
	if !strings.Contains(err.Error(), "status=422") {
		t.Errorf("error message = %q, want to contain 'status=422'", err.Error())
	}
	if !strings.Contains(err.Error(), "invalid to address") {
		t.Errorf("error message = %q, want to contain response body", err.Error())
	}
}

func TestSendCode_ContextCancelled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewResendClient("api-key", server.URL, "no-reply@snaplink.app", 0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := client.SendCode(ctx, "user@example.com", "482913"); err == nil {
		t.Fatal("expected error for cancelled context")
	}
}
