// Package telephony talks to the Twilio-compatible voice provider: placing
// and ending calls, verifying signed callbacks and rendering call-control
// documents.
package telephony

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"hotline_backend/platform/config"
	"hotline_backend/platform/logger"
	"hotline_backend/platform/phone"

	"github.com/cenkalti/backoff/v4"
)

const (
	// CallStatusPath is where the provider posts delivery callbacks.
	CallStatusPath = "/api/v1/twilio/call-status"
	// MarkupPath is where the provider fetches the bridge document.
	MarkupPath = "/api/v1/hotline/twiml"

	maxAttempts     = 3
	requestTimeout  = 10 * time.Second
	maxErrorBodyLen = 4096
)

// StatusCallbackEvents is the full event set requested for placed calls.
var StatusCallbackEvents = []string{
	"initiated", "ringing", "answered", "in-progress",
	"completed", "busy", "no-answer", "failed", "canceled",
}

var (
	// ErrNotConfigured is returned when provider credentials are missing.
	ErrNotConfigured = errors.New("telephony provider not configured")
	// ErrInvalidNumber is returned before any network call when the destination is not E.164.
	ErrInvalidNumber = errors.New("destination is not a valid E.164 number")
	// ErrUndecodableResponse is returned when the provider accepted a request
	// but its body could not be read. The request must not be repeated.
	ErrUndecodableResponse = errors.New("undecodable provider response")
)

// APIError is a non-2xx response from the provider.
type APIError struct {
	StatusCode int
	Code       int    `json:"code"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("provider returned %d", e.StatusCode)
	}
	return fmt.Sprintf("provider returned %d: %s (code %d)", e.StatusCode, e.Message, e.Code)
}

// Temporary reports whether retrying may succeed.
func (e *APIError) Temporary() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// PlacedCall is the provider's answer to a call-creation request.
type PlacedCall struct {
	CallID string `json:"sid"`
	Status string `json:"status"`
}

// Client is the provider REST client. A nil *Client reports ErrNotConfigured.
type Client struct {
	accountSID     string
	authToken      string
	from           string
	baseURL        string
	statusCallback string
	http           *http.Client
	newBackOff     func() backoff.BackOff
	log            *logger.Logger
}

// NewClient returns nil when the account credentials or caller ID are missing.
func NewClient(cfg config.TelephonyConfig, log *logger.Logger) *Client {
	if cfg.GetTwilioAccountSID() == "" || cfg.GetTwilioAuthToken() == "" || cfg.GetTwilioFromNumber() == "" {
		return nil
	}

	return &Client{
		accountSID:     cfg.GetTwilioAccountSID(),
		authToken:      cfg.GetTwilioAuthToken(),
		from:           cfg.GetTwilioFromNumber(),
		baseURL:        strings.TrimRight(cfg.GetTwilioAPIBaseURL(), "/"),
		statusCallback: strings.TrimRight(cfg.GetPublicBaseURL(), "/") + CallStatusPath,
		http:           &http.Client{Timeout: requestTimeout},
		newBackOff:     defaultBackOff,
		log:            log,
	}
}

func defaultBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Second
	b.MaxInterval = 5 * time.Second
	b.MaxElapsedTime = 0
	return backoff.WithMaxRetries(b, maxAttempts-1)
}

// From returns the caller ID used for outbound legs.
func (c *Client) From() string {
	if c == nil {
		return ""
	}
	return c.from
}

// StatusCallbackURL returns the URL the provider posts delivery callbacks to.
func (c *Client) StatusCallbackURL() string {
	if c == nil {
		return ""
	}
	return c.statusCallback
}

// PlaceCall asks the provider to dial to and fetch call control from
// markupURL. Transient failures (network, 429, 5xx) are retried up to three
// attempts in total; other failures are returned immediately. A 2xx answer
// means the call exists, so it is never retried even if its body is unreadable.
func (c *Client) PlaceCall(ctx context.Context, to, markupURL string) (PlacedCall, error) {
	if c == nil {
		return PlacedCall{}, ErrNotConfigured
	}
	if !phone.IsE164(to) {
		return PlacedCall{}, ErrInvalidNumber
	}

	form := url.Values{}
	form.Set("To", to)
	form.Set("From", c.from)
	form.Set("Url", markupURL)
	form.Set("Method", http.MethodPost)
	form.Set("StatusCallback", c.statusCallback)
	form.Set("StatusCallbackMethod", http.MethodPost)
	for _, ev := range StatusCallbackEvents {
		form.Add("StatusCallbackEvent", ev)
	}

	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Calls.json", c.baseURL, c.accountSID)
	attempt := 0

	op := func() (PlacedCall, error) {
		attempt++
		var placed PlacedCall
		err := c.post(ctx, endpoint, form, &placed)
		if err == nil {
			return placed, nil
		}
		if ctx.Err() != nil {
			return PlacedCall{}, backoff.Permanent(ctx.Err())
		}
		if errors.Is(err, ErrUndecodableResponse) {
			return PlacedCall{}, backoff.Permanent(err)
		}
		var apiErr *APIError
		if errors.As(err, &apiErr) && !apiErr.Temporary() {
			return PlacedCall{}, backoff.Permanent(err)
		}
		return PlacedCall{}, err
	}

	notify := func(err error, wait time.Duration) {
		c.log.WithContext(ctx).EventWarn("call_place_retry",
			slog.Int("attempt", attempt),
			slog.Duration("wait", wait),
			slog.String("error", err.Error()),
		)
	}

	placed, err := backoff.RetryNotifyWithData(op, backoff.WithContext(c.newBackOff(), ctx), notify)
	if err != nil {
		return PlacedCall{}, fmt.Errorf("place call: %w", err)
	}
	if placed.CallID == "" {
		return PlacedCall{}, fmt.Errorf("place call: provider response without sid")
	}
	return placed, nil
}

// EndCall completes an in-progress call. A call the provider no longer knows
// about is treated as already ended.
func (c *Client) EndCall(ctx context.Context, callID string) error {
	if c == nil {
		return ErrNotConfigured
	}
	if strings.TrimSpace(callID) == "" {
		return nil
	}

	form := url.Values{}
	form.Set("Status", "completed")
	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Calls/%s.json", c.baseURL, c.accountSID, url.PathEscape(callID))

	err := c.post(ctx, endpoint, form, nil)
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
		return nil
	}
	if err != nil {
		return fmt.Errorf("end call: %w", err)
	}
	return nil
}

func (c *Client) post(ctx context.Context, endpoint string, form url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.SetBasicAuth(c.accountSID, c.authToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("provider request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyLen))
		apiErr := &APIError{StatusCode: resp.StatusCode}
		_ = json.Unmarshal(body, apiErr)
		return apiErr
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: %w", ErrUndecodableResponse, err)
	}
	return nil
}
