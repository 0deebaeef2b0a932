package slackbridge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// APIOptions configures an API client.
type APIOptions struct {
	HTTPClient *http.Client
	// BaseURL overrides the Slack Web API endpoint, for tests.
	BaseURL string
	// BotToken (xoxb-...) authorizes auth.test.
	BotToken string
	// AppToken (xapp-...) authorizes apps.connections.open for Socket Mode.
	AppToken string
}

// API is a minimal Slack Web API client: identity discovery and Socket Mode
// connection bootstrap. Message posting goes through the Notifier instead.
type API struct {
	http     *http.Client
	baseURL  string
	botToken string
	appToken string
}

// NewAPI creates an API client.
func NewAPI(opts APIOptions) *API {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	baseURL := strings.TrimSpace(strings.TrimRight(opts.BaseURL, "/"))
	if baseURL == "" {
		baseURL = "https://slack.com/api"
	}
	return &API{
		http:     httpClient,
		baseURL:  baseURL,
		botToken: strings.TrimSpace(opts.BotToken),
		appToken: strings.TrimSpace(opts.AppToken),
	}
}

// AuthIdentity is the subset of auth.test the bridge needs.
type AuthIdentity struct {
	TeamID string
	UserID string
}

type authTestResponse struct {
	OK     bool   `json:"ok"`
	Error  string `json:"error,omitempty"`
	TeamID string `json:"team_id,omitempty"`
	UserID string `json:"user_id,omitempty"`
}

// AuthTest resolves the bot's own identity. Used at startup when the bot
// user id is not configured.
func (api *API) AuthTest(ctx context.Context) (AuthIdentity, error) {
	if api == nil {
		return AuthIdentity{}, fmt.Errorf("slack api is not initialized")
	}
	body, status, err := api.postAuthJSON(ctx, api.botToken, "/auth.test", nil)
	if err != nil {
		return AuthIdentity{}, err
	}
	if status < 200 || status >= 300 {
		return AuthIdentity{}, fmt.Errorf("slack auth.test http %d", status)
	}
	var out authTestResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return AuthIdentity{}, err
	}
	if !out.OK {
		return AuthIdentity{}, fmt.Errorf("slack auth.test failed: %s", errorCode(out.Error))
	}
	return AuthIdentity{
		TeamID: strings.TrimSpace(out.TeamID),
		UserID: strings.TrimSpace(out.UserID),
	}, nil
}

type openConnectionResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
	URL   string `json:"url,omitempty"`
}

// OpenSocketURL requests a fresh Socket Mode websocket URL.
func (api *API) OpenSocketURL(ctx context.Context) (string, error) {
	if api == nil {
		return "", fmt.Errorf("slack api is not initialized")
	}
	body, status, err := api.postAuthJSON(ctx, api.appToken, "/apps.connections.open", nil)
	if err != nil {
		return "", err
	}
	if status < 200 || status >= 300 {
		return "", fmt.Errorf("slack apps.connections.open http %d", status)
	}
	var out openConnectionResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return "", err
	}
	if !out.OK {
		return "", fmt.Errorf("slack apps.connections.open failed: %s", errorCode(out.Error))
	}
	socketURL := strings.TrimSpace(out.URL)
	if socketURL == "" {
		return "", fmt.Errorf("slack apps.connections.open returned empty url")
	}
	return socketURL, nil
}

func (api *API) postAuthJSON(ctx context.Context, token, path string, payload any) ([]byte, int, error) {
	if api == nil || api.http == nil {
		return nil, 0, fmt.Errorf("slack api is not initialized")
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, 0, fmt.Errorf("slack token is required")
	}

	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, 0, err
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, api.baseURL+path, body)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := api.http.Do(req)
	if err != nil {
		return nil, 0, err
	}
	raw, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return nil, resp.StatusCode, readErr
	}
	return raw, resp.StatusCode, nil
}

func errorCode(code string) string {
	code = strings.TrimSpace(code)
	if code == "" {
		return "unknown_error"
	}
	return code
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
