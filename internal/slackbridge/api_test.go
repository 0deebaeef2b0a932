package slackbridge

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestAuthTest(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/auth.test" {
			t.Errorf("path = %q, want /auth.test", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer xoxb-test" {
			t.Errorf("authorization = %q", auth)
		}
		io.WriteString(w, `{"ok":true,"team_id":"T01","user_id":"U080PEA1HAR"}`)
	}))
	defer srv.Close()

	api := NewAPI(APIOptions{BaseURL: srv.URL, BotToken: "xoxb-test"})
	id, err := api.AuthTest(context.Background())
	if err != nil {
		t.Fatalf("AuthTest() error = %v", err)
	}
	if id.UserID != "U080PEA1HAR" || id.TeamID != "T01" {
		t.Fatalf("identity = %+v", id)
	}
}

func TestAuthTestAPIError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"ok":false,"error":"invalid_auth"}`)
	}))
	defer srv.Close()

	api := NewAPI(APIOptions{BaseURL: srv.URL, BotToken: "xoxb-bad"})
	if _, err := api.AuthTest(context.Background()); err == nil || !strings.Contains(err.Error(), "invalid_auth") {
		t.Fatalf("AuthTest() error = %v, want invalid_auth", err)
	}
}

func TestAuthTestMissingToken(t *testing.T) {
	t.Parallel()

	api := NewAPI(APIOptions{BaseURL: "http://127.0.0.1:9"})
	if _, err := api.AuthTest(context.Background()); err == nil {
		t.Fatalf("AuthTest() with no token: error = nil, want error")
	}
}

func TestOpenSocketURL(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/apps.connections.open" {
			t.Errorf("path = %q, want /apps.connections.open", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer xapp-test" {
			t.Errorf("authorization = %q", auth)
		}
		io.WriteString(w, `{"ok":true,"url":"wss://wss.slack.invalid/link/abc"}`)
	}))
	defer srv.Close()

	api := NewAPI(APIOptions{BaseURL: srv.URL, AppToken: "xapp-test"})
	got, err := api.OpenSocketURL(context.Background())
	if err != nil {
		t.Fatalf("OpenSocketURL() error = %v", err)
	}
	if got != "wss://wss.slack.invalid/link/abc" {
		t.Fatalf("url = %q", got)
	}
}

func TestOpenSocketURLEmpty(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"ok":true,"url":""}`)
	}))
	defer srv.Close()

	api := NewAPI(APIOptions{BaseURL: srv.URL, AppToken: "xapp-test"})
	if _, err := api.OpenSocketURL(context.Background()); err == nil {
		t.Fatalf("OpenSocketURL() with empty url: error = nil, want error")
	}
}
