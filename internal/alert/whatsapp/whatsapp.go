// Package whatsapp delivers alerts through the Twilio WhatsApp messaging
// API.
package whatsapp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/patagonialabs/firesentinel/internal/retry"
)

const (
	maxAttempts = 3
	retryDelay  = time.Second
)

// Sender sends alert messages to WhatsApp numbers via Twilio.
type Sender struct {
	accountSID string
	authToken  string
	from       string
	httpClient *http.Client
	baseURL    string
	logger     *slog.Logger
}

// New creates a Twilio WhatsApp sender. from is the sending number in
// "whatsapp:+NNN" form; bare numbers get the prefix added.
func New(accountSID, authToken, from string, timeout time.Duration, logger *slog.Logger) *Sender {
	return &Sender{
		accountSID: accountSID,
		authToken:  authToken,
		from:       withPrefix(from),
		httpClient: &http.Client{
			Timeout: timeout,
		},
		baseURL: "https://api.twilio.com/2010-04-01",
		logger:  logger,
	}
}

// Send delivers one message to the WhatsApp number in address.
func (s *Sender) Send(ctx context.Context, address, message string) error {
	form := url.Values{
		"From": {s.from},
		"To":   {withPrefix(address)},
		"Body": {message},
	}
	endpoint := fmt.Sprintf("%s/Accounts/%s/Messages.json", s.baseURL, s.accountSID)

	return retry.Do(ctx, s.logger, maxAttempts, retryDelay, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		req.SetBasicAuth(s.accountSID, s.authToken)
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

		resp, err := s.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("whatsapp send request: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			body, _ := io.ReadAll(resp.Body)
			return fmt.Errorf("twilio API error: status %d: %s", resp.StatusCode, body)
		}

		var created struct {
			SID    string `json:"sid"`
			Status string `json:"status"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
		s.logger.Debug("whatsapp message accepted", "sid", created.SID, "status", created.Status)
		return nil
	})
}

func withPrefix(number string) string {
	if strings.HasPrefix(number, "whatsapp:") {
		return number
	}
	return "whatsapp:" + number
}
