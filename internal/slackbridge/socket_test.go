package slackbridge

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/iwapim/pimbot/internal/dispatch"
	"github.com/iwapim/pimbot/internal/idempotency"
)

func TestSocketListenerRun(t *testing.T) {
	t.Parallel()

	upgrader := websocket.Upgrader{}
	acks := make(chan string, 1)
	wsSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()

		envelope := map[string]any{
			"envelope_id": "env-9",
			"type":        "events_api",
			"payload": map[string]any{
				"event_id": "Ev500",
				"event": map[string]any{
					"type": "app_mention",
					"text": "<@UBOT> ping",
					"ts":   "9.9",
				},
			},
		}
		if err := conn.WriteJSON(envelope); err != nil {
			return
		}
		var ack map[string]string
		if err := conn.ReadJSON(&ack); err != nil {
			return
		}
		acks <- ack["envelope_id"]
		// Hold the connection until the listener shuts down.
		_, _, _ = conn.ReadMessage()
	}))
	defer wsSrv.Close()

	wsURL := "ws" + strings.TrimPrefix(wsSrv.URL, "http")
	apiSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/apps.connections.open" {
			t.Errorf("path = %q, want /apps.connections.open", r.URL.Path)
		}
		io.WriteString(w, fmt.Sprintf(`{"ok":true,"url":%q}`, wsURL))
	}))
	defer apiSrv.Close()

	pool := dispatch.Start(context.Background(), dispatch.Options{Workers: 1, QueueSize: 4})
	defer pool.Close()

	handled := make(chan MentionEvent, 1)
	dispatcher, err := NewMentionDispatcher(MentionDispatcherOptions{
		Window: idempotency.NewWindow(idempotency.WindowOptions{}),
		Pool:   pool,
		Handle: func(_ context.Context, ev MentionEvent) {
			handled <- ev
		},
	})
	if err != nil {
		t.Fatalf("NewMentionDispatcher() error = %v", err)
	}

	listener, err := NewSocketListener(SocketListenerOptions{
		API:        NewAPI(APIOptions{BaseURL: apiSrv.URL, AppToken: "xapp-test"}),
		BotUserID:  "UBOT",
		Dispatcher: dispatcher,
	})
	if err != nil {
		t.Fatalf("NewSocketListener() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	runDone := make(chan error, 1)
	go func() { runDone <- listener.Run(ctx) }()

	select {
	case ev := <-handled:
		if ev.EventID != "Ev500" || ev.Text != "ping" || ev.ThreadTS != "9.9" {
			t.Fatalf("handled event = %+v", ev)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("mention never dispatched")
	}

	select {
	case id := <-acks:
		if id != "env-9" {
			t.Fatalf("acked envelope id = %q, want env-9", id)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("envelope never acked")
	}

	// Cancellation must unblock the read and stop the loop.
	cancel()
	select {
	case err := <-runDone:
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Run() did not stop after cancel")
	}
}
