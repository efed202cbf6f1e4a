package external

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"duepoint/internal/types"
)

// sendGridAPIBase is the default SendGrid API base URL.
// Overridable in tests via SendGridClientConfig.BaseURL.
const sendGridAPIBase = "https://api.sendgrid.com"

// SendGridClientConfig holds the configuration for creating a SendGridClient.
type SendGridClientConfig struct {
	APIKey  string
	BaseURL string // Override for testing; defaults to sendGridAPIBase
	Timeout time.Duration
	Logger  *slog.Logger
}

// SendGridClient implements types.EmailProvider by making direct HTTP calls
// to the SendGrid v3 Mail Send API through BaseClient. All requests flow
// through the resilience infrastructure (circuit breaker, retries, error
// mapping), and the BaseURL override makes testing with httptest
// straightforward.
type SendGridClient struct {
	base    *BaseClient
	apiKey  string
	baseURL string
	logger  *slog.Logger
}

// Compile-time assertion that SendGridClient satisfies EmailProvider.
var _ types.EmailProvider = (*SendGridClient)(nil)

// NewSendGridClient creates a new SendGridClient.
func NewSendGridClient(cfg SendGridClientConfig) *SendGridClient {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = sendGridAPIBase
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	base := NewBaseClient(
		&http.Client{Timeout: timeout},
		"sendgrid",
		DefaultRetryPolicy(),
		"DuePoint/1.0",
	)

	return &SendGridClient{
		base:    base,
		apiKey:  cfg.APIKey,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		logger:  logger,
	}
}

// NewSendGridClientWithBase creates a SendGridClient with a pre-configured
// BaseClient. Useful for testing when you want to control the BaseClient
// configuration (e.g. disable retries).
func NewSendGridClientWithBase(base *BaseClient, cfg SendGridClientConfig) *SendGridClient {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = sendGridAPIBase
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &SendGridClient{
		base:    base,
		apiKey:  cfg.APIKey,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		logger:  logger,
	}
}

// Send transmits an email using SendGrid's v3 Mail Send API and returns the
// provider message ID (from the X-Message-Id response header) on success.
//
// Error mapping:
//   - 403 Forbidden -> types.ErrCodeEmailBlocked (recipient on suppression list)
//   - 429 Too Many Requests -> handled by BaseClient (retry + rate-limited code)
//   - 5xx -> handled by BaseClient (retry + upstream-unavailable code)
//   - Other 4xx -> types.ErrCodeUpstreamEmail
func (s *SendGridClient) Send(ctx context.Context, input types.SendInput) (string, error) {
	payload := buildMailPayload(input)

	body, err := json.Marshal(payload)
	if err != nil {
		return "", types.NewAppError(
			types.ErrCodeInternalUnexpected,
			"failed to marshal SendGrid mail payload",
			err,
		)
	}

	reqURL := s.baseURL + "/v3/mail/send"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, bytes.NewReader(body))
	if err != nil {
		return "", types.NewAppError(
			types.ErrCodeInternalUnexpected,
			"failed to create SendGrid mail send request",
			err,
		)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.apiKey)

	resp, err := s.base.Do(req)
	if err != nil {
		return "", s.wrapTransportError(err)
	}
	defer resp.Body.Close()

	// SendGrid returns 202 Accepted on success.
	if resp.StatusCode == http.StatusAccepted {
		return resp.Header.Get("X-Message-Id"), nil
	}

	return "", s.handleErrorResponse(resp)
}

// sendGridMailPayload represents the SendGrid v3 mail/send JSON request body.
type sendGridMailPayload struct {
	Personalizations []sendGridPersonalization `json:"personalizations"`
	From             sendGridAddress           `json:"from"`
	Subject          string                    `json:"subject"`
	Content          []sendGridContent         `json:"content"`
	// custom_args allows correlation with the reminder's idempotency key
	CustomArgs map[string]string `json:"custom_args,omitempty"`
}

type sendGridPersonalization struct {
	To []sendGridAddress `json:"to"`
}

type sendGridAddress struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

type sendGridContent struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// buildMailPayload maps a domain types.SendInput to the SendGrid v3 payload.
// SendGrid requires text/plain content to precede text/html.
func buildMailPayload(input types.SendInput) sendGridMailPayload {
	payload := sendGridMailPayload{
		Personalizations: []sendGridPersonalization{
			{To: []sendGridAddress{{Email: input.To.Address, Name: input.To.Name}}},
		},
		From: sendGridAddress{
			Email: input.From.Address,
			Name:  input.From.Name,
		},
		Subject: input.Subject,
	}

	if input.Text != "" {
		payload.Content = append(payload.Content, sendGridContent{Type: "text/plain", Value: input.Text})
	}
	if input.HTML != "" {
		payload.Content = append(payload.Content, sendGridContent{Type: "text/html", Value: input.HTML})
	}

	if input.ReferenceID != "" {
		payload.CustomArgs = map[string]string{
			"reference_id": input.ReferenceID,
		}
	}

	return payload
}

// sendGridErrorResponse represents the JSON error body returned by SendGrid.
type sendGridErrorResponse struct {
	Errors []struct {
		Message string `json:"message"`
		Field   string `json:"field"`
	} `json:"errors"`
}

// handleErrorResponse reads a SendGrid error response and maps it to a
// types.AppError.
func (s *SendGridClient) handleErrorResponse(resp *http.Response) error {
	body, readErr := io.ReadAll(resp.Body)
	if readErr != nil {
		return types.NewAppError(
			types.ErrCodeUpstreamEmail,
			fmt.Sprintf("SendGrid returned status %d and response body was unreadable", resp.StatusCode),
			readErr,
		)
	}

	var sgErr sendGridErrorResponse
	errMsg := string(body)
	if jsonErr := json.Unmarshal(body, &sgErr); jsonErr == nil && len(sgErr.Errors) > 0 {
		errMsg = sgErr.Errors[0].Message
	}

	switch {
	case resp.StatusCode == http.StatusForbidden:
		// Recipient is on a suppression list / blocked.
		return types.NewAppError(
			types.ErrCodeEmailBlocked,
			fmt.Sprintf("SendGrid blocked delivery: %s", errMsg),
			nil,
		)
	default:
		return types.NewAppError(
			types.ErrCodeUpstreamEmail,
			fmt.Sprintf("SendGrid error (%d): %s", resp.StatusCode, errMsg),
			nil,
		)
	}
}

// wrapTransportError wraps a BaseClient transport error with context. Errors
// that are already AppErrors (circuit breaker open, retries exhausted) pass
// through unchanged since they carry the right error code.
func (s *SendGridClient) wrapTransportError(err error) error {
	if _, ok := err.(*types.AppError); ok {
		return err
	}
	return types.NewAppError(
		types.ErrCodeUpstreamEmail,
		fmt.Sprintf("SendGrid request failed: %v", err),
		err,
	)
}
