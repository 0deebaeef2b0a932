package slackbridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

const socketReconnectDelay = 2 * time.Second

// socketEnvelope is one Socket Mode frame. Events API payloads arrive with
// type "events_api" and the event_callback body in Payload.
type socketEnvelope struct {
	EnvelopeID string          `json:"envelope_id,omitempty"`
	Type       string          `json:"type,omitempty"`
	Payload    json.RawMessage `json:"payload,omitempty"`
}

// SocketListenerOptions configures a SocketListener.
type SocketListenerOptions struct {
	API        *API
	BotUserID  string
	Dispatcher *MentionDispatcher
	Logger     *slog.Logger
}

// SocketListener is the Socket Mode ingress: it consumes Events API
// envelopes over a websocket, acks them, and feeds mentions into the same
// dispatcher as the HTTP webhook. Deployments behind firewalls use this
// instead of exposing the webhook endpoint.
type SocketListener struct {
	api        *API
	botUserID  string
	dispatcher *MentionDispatcher
	log        *slog.Logger
}

// NewSocketListener creates a SocketListener.
func NewSocketListener(opts SocketListenerOptions) (*SocketListener, error) {
	if opts.API == nil {
		return nil, fmt.Errorf("slack api is required")
	}
	botUserID := strings.TrimSpace(opts.BotUserID)
	if botUserID == "" {
		return nil, fmt.Errorf("bot user id is required")
	}
	if opts.Dispatcher == nil {
		return nil, fmt.Errorf("mention dispatcher is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &SocketListener{
		api:        opts.API,
		botUserID:  botUserID,
		dispatcher: opts.Dispatcher,
		log:        logger,
	}, nil
}

// Run connects and consumes envelopes until ctx ends, reconnecting on read
// or connect failures.
func (l *SocketListener) Run(ctx context.Context) error {
	if l == nil {
		return fmt.Errorf("socket listener is not initialized")
	}
	for {
		if ctx.Err() != nil {
			l.log.Info("slack_socket_stop", "reason", "context_canceled")
			return nil
		}
		conn, err := l.connect(ctx)
		if err != nil {
			if ctx.Err() != nil {
				l.log.Info("slack_socket_stop", "reason", "context_canceled")
				return nil
			}
			l.log.Warn("slack_socket_connect_error", "error", err.Error())
			if err := sleepWithContext(ctx, socketReconnectDelay); err != nil {
				return nil
			}
			continue
		}
		l.log.Info("slack_socket_connected")

		readErr := l.consume(ctx, conn)
		_ = conn.Close()
		if readErr != nil && ctx.Err() == nil &&
			!errors.Is(readErr, context.Canceled) && !errors.Is(readErr, context.DeadlineExceeded) {
			l.log.Warn("slack_socket_read_error", "error", readErr.Error())
		}
	}
}

func (l *SocketListener) connect(ctx context.Context) (*websocket.Conn, error) {
	socketURL, err := l.api.OpenSocketURL(ctx)
	if err != nil {
		return nil, err
	}
	dialer := *websocket.DefaultDialer
	conn, _, err := dialer.DialContext(ctx, socketURL, nil)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

func (l *SocketListener) consume(ctx context.Context, conn *websocket.Conn) error {
	// ReadMessage does not watch ctx; closing the connection is the only way
	// to unblock it on shutdown.
	watchDone := make(chan struct{})
	defer close(watchDone)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-watchDone:
		}
	}()

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		var envelope socketEnvelope
		if err := json.Unmarshal(raw, &envelope); err != nil {
			continue
		}
		if strings.TrimSpace(envelope.EnvelopeID) != "" {
			if err := conn.WriteJSON(map[string]string{"envelope_id": envelope.EnvelopeID}); err != nil {
				return err
			}
		}
		l.handleEnvelope(envelope)
	}
}

func (l *SocketListener) handleEnvelope(envelope socketEnvelope) {
	ev, ok := mentionFromSocketEnvelope(envelope, l.botUserID)
	if !ok {
		return
	}
	l.log.Info("slack_mention_received", "event_id", ev.EventID, "thread_ts", ev.ThreadTS, "ingress", "socket")
	l.dispatcher.Offer(ev)
}

func mentionFromSocketEnvelope(envelope socketEnvelope, botUserID string) (MentionEvent, bool) {
	if strings.TrimSpace(envelope.Type) != "events_api" || len(envelope.Payload) == 0 {
		return MentionEvent{}, false
	}
	var env EventEnvelope
	if err := json.Unmarshal(envelope.Payload, &env); err != nil {
		return MentionEvent{}, false
	}
	// Socket payloads omit the top-level type the HTTP webhook carries.
	if strings.TrimSpace(env.Type) == "" {
		env.Type = TypeEventCallback
	}
	return MentionFromEnvelope(env, botUserID)
}
