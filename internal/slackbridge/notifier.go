package slackbridge

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
)

// NotifierOptions configures a Notifier.
type NotifierOptions struct {
	// WebhookURL is the Slack incoming-webhook endpoint of the target channel.
	WebhookURL string
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Notifier posts final answers into the originating thread via a Slack
// incoming webhook. Failures are returned to the caller and logged; this
// layer does not retry — by the time an answer exists the event was already
// acknowledged, and a duplicated post is worse than a missing one.
type Notifier struct {
	webhookURL string
	http       *http.Client
	log        *slog.Logger
}

type webhookPayload struct {
	Text     string `json:"text"`
	ThreadTS string `json:"thread_ts,omitempty"`
}

// NewNotifier creates a Notifier.
func NewNotifier(opts NotifierOptions) (*Notifier, error) {
	webhookURL := strings.TrimSpace(opts.WebhookURL)
	if webhookURL == "" {
		return nil, fmt.Errorf("slack webhook url is required")
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{
		webhookURL: webhookURL,
		http:       httpClient,
		log:        logger,
	}, nil
}

// Post sends text into the thread identified by threadTS. A non-2xx webhook
// response is an error.
func (n *Notifier) Post(ctx context.Context, text, threadTS string) error {
	if n == nil || n.http == nil {
		return fmt.Errorf("notifier is not initialized")
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return fmt.Errorf("text is required")
	}

	raw, err := json.Marshal(webhookPayload{Text: text, ThreadTS: strings.TrimSpace(threadTS)})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.http.Do(req)
	if err != nil {
		return fmt.Errorf("slack webhook post: %w", err)
	}
	respBody, readErr := io.ReadAll(io.LimitReader(resp.Body, 4096))
	_ = resp.Body.Close()

	n.log.Debug("slack_webhook_response", "status", resp.StatusCode)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail := strings.TrimSpace(string(respBody))
		if detail == "" && readErr != nil {
			detail = readErr.Error()
		}
		return fmt.Errorf("slack webhook returned %d: %s", resp.StatusCode, detail)
	}
	return nil
}
