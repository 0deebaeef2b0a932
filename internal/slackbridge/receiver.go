package slackbridge

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
)

const (
	ackEventReceived    = "Event received"
	ackDuplicateSkipped = "duplicate event skipped"
	ackQueueFull        = "dispatch queue full"

	defaultMaxBodyBytes = 1 << 20
)

// ReceiverOptions configures a Receiver.
type ReceiverOptions struct {
	// BotUserID is stripped from the front of mention texts.
	BotUserID  string
	Dispatcher *MentionDispatcher
	Logger     *slog.Logger
	// MaxBodyBytes caps the accepted payload size. Zero means 1 MiB.
	MaxBodyBytes int64
}

// Receiver is the Events API webhook endpoint. It acknowledges every
// well-formed delivery immediately; orchestration happens on the dispatcher's
// worker pool, never on the request path. Non-200 responses make Slack
// redeliver: a 500 for unparseable payloads, a 503 when the dispatch queue
// rejected the mention. The idempotency window absorbs redeliveries of
// events that were actually scheduled.
type Receiver struct {
	botUserID    string
	dispatcher   *MentionDispatcher
	log          *slog.Logger
	maxBodyBytes int64
}

// NewReceiver creates a Receiver.
func NewReceiver(opts ReceiverOptions) (*Receiver, error) {
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
	maxBody := opts.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = defaultMaxBodyBytes
	}
	return &Receiver{
		botUserID:    botUserID,
		dispatcher:   opts.Dispatcher,
		log:          logger,
		maxBodyBytes: maxBody,
	}, nil
}

// ServeHTTP implements http.Handler.
func (rcv *Receiver) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, rcv.maxBodyBytes))
	if err != nil {
		rcv.log.Error("slack_webhook_read_error", "error", err.Error())
		respondText(w, http.StatusInternalServerError, "Error: "+err.Error())
		return
	}

	var env EventEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		rcv.log.Error("slack_webhook_parse_error", "error", err.Error())
		respondText(w, http.StatusInternalServerError, "Error: "+err.Error())
		return
	}

	switch strings.TrimSpace(env.Type) {
	case TypeURLVerification:
		rcv.log.Info("slack_url_verification")
		respondJSON(w, http.StatusOK, map[string]string{"challenge": env.Challenge})

	case TypeEventCallback:
		ev, ok := MentionFromEnvelope(env, rcv.botUserID)
		if !ok {
			respondText(w, http.StatusOK, ackEventReceived)
			return
		}
		rcv.log.Info("slack_mention_received", "event_id", ev.EventID, "thread_ts", ev.ThreadTS)
		switch rcv.dispatcher.Offer(ev) {
		case DispositionDuplicate:
			respondText(w, http.StatusOK, ackDuplicateSkipped)
		case DispositionDropped:
			// Non-200 makes Slack redeliver; the dropped id was unmarked,
			// so the retry passes the dedup check.
			respondText(w, http.StatusServiceUnavailable, ackQueueFull)
		default:
			respondText(w, http.StatusOK, ackEventReceived)
		}

	default:
		respondText(w, http.StatusOK, ackEventReceived)
	}
}

func respondText(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, body)
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
