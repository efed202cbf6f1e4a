package external

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"duepoint/internal/types"
)

// noRetryBase builds a BaseClient with retries disabled and no sleeping, so
// tests execute instantly.
func noRetryBase() *BaseClient {
	return NewBaseClient(
		&http.Client{Timeout: 2 * time.Second},
		"sendgrid-test",
		RetryPolicy{MaxRetries: 0, MinWait: time.Millisecond, MaxWait: time.Millisecond},
		"DuePoint-Test/1.0",
		WithSleepFunc(func(time.Duration) {}),
	)
}

func sendInput() types.SendInput {
	return types.SendInput{
		To:          types.EmailAddress{Address: "client@example.com", Name: "Acme Corp"},
		From:        types.EmailAddress{Address: "billing@duepoint.io", Name: "DuePoint Billing"},
		Subject:     "Invoice INV-0042 is due soon",
		HTML:        "<p>Your invoice is due in 3 days.</p>",
		Text:        "Your invoice is due in 3 days.",
		ReferenceID: "reminder:inv-1:before_due:2024-03-10",
	}
}

func TestSendGridClient_Send_Success(t *testing.T) {
	var captured sendGridMailPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v3/mail/send" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer SG.test" {
			t.Errorf("unexpected auth header %q", got)
		}
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &captured); err != nil {
			t.Errorf("invalid payload: %v", err)
		}
		w.Header().Set("X-Message-Id", "msg-abc")
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	client := NewSendGridClientWithBase(noRetryBase(), SendGridClientConfig{
		APIKey:  "SG.test",
		BaseURL: srv.URL,
	})

	msgID, err := client.Send(context.Background(), sendInput())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msgID != "msg-abc" {
		t.Errorf("expected provider message id msg-abc, got %q", msgID)
	}
	if captured.Subject != "Invoice INV-0042 is due soon" {
		t.Errorf("subject not mapped: %q", captured.Subject)
	}
	if len(captured.Content) != 2 || captured.Content[0].Type != "text/plain" {
		t.Errorf("text/plain must precede text/html: %+v", captured.Content)
	}
	if captured.CustomArgs["reference_id"] != "reminder:inv-1:before_due:2024-03-10" {
		t.Errorf("reference id not propagated: %v", captured.CustomArgs)
	}
}

func TestSendGridClient_Send_Blocked(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"errors":[{"message":"recipient suppressed"}]}`))
	}))
	defer srv.Close()

	client := NewSendGridClientWithBase(noRetryBase(), SendGridClientConfig{
		APIKey:  "SG.test",
		BaseURL: srv.URL,
	})

	_, err := client.Send(context.Background(), sendInput())
	var appErr *types.AppError
	if !errors.As(err, &appErr) || appErr.Code != types.ErrCodeEmailBlocked {
		t.Errorf("expected email_blocked, got %v", err)
	}
}

func TestSendGridClient_Send_ServerErrorAfterRetries(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	base := NewBaseClient(
		&http.Client{Timeout: 2 * time.Second},
		"sendgrid-test-retry",
		RetryPolicy{MaxRetries: 2, MinWait: time.Millisecond, MaxWait: 2 * time.Millisecond},
		"DuePoint-Test/1.0",
		WithSleepFunc(func(time.Duration) {}),
	)
	client := NewSendGridClientWithBase(base, SendGridClientConfig{
		APIKey:  "SG.test",
		BaseURL: srv.URL,
	})

	_, err := client.Send(context.Background(), sendInput())
	var appErr *types.AppError
	if !errors.As(err, &appErr) || appErr.Code != types.ErrCodeUpstreamUnavail {
		t.Fatalf("expected upstream_unavailable, got %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 attempts (1 + 2 retries), got %d", calls)
	}
}

func TestSendGridClient_Send_OtherClientError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"errors":[{"message":"invalid from address"}]}`))
	}))
	defer srv.Close()

	client := NewSendGridClientWithBase(noRetryBase(), SendGridClientConfig{
		APIKey:  "SG.test",
		BaseURL: srv.URL,
	})

	_, err := client.Send(context.Background(), sendInput())
	var appErr *types.AppError
	if !errors.As(err, &appErr) || appErr.Code != types.ErrCodeUpstreamEmail {
		t.Errorf("expected upstream_email_provider_unavailable, got %v", err)
	}
}
