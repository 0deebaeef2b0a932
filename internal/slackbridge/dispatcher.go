package slackbridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/iwapim/pimbot/internal/dispatch"
	"github.com/iwapim/pimbot/internal/idempotency"
)

// Disposition reports what Offer did with a mention.
type Disposition int

const (
	// DispositionScheduled means a background job was queued.
	DispositionScheduled Disposition = iota
	// DispositionDuplicate means the event id was already seen in the window.
	DispositionDuplicate
	// DispositionSkipped means the event carried no id and was not processed.
	DispositionSkipped
	// DispositionDropped means the dispatch queue was saturated.
	DispositionDropped
)

// HandleFunc runs one scheduled mention: orchestrate the conversation and
// post the answer. It owns its failure handling; Offer never waits on it.
type HandleFunc func(ctx context.Context, ev MentionEvent)

// MentionDispatcherOptions configures a MentionDispatcher.
type MentionDispatcherOptions struct {
	Window *idempotency.Window
	Pool   *dispatch.Pool
	Handle HandleFunc
	Logger *slog.Logger
}

// MentionDispatcher is the shared scheduling path of every ingress: dedup
// check, then non-blocking hand-off to the worker pool. Both the HTTP
// receiver and the socket listener go through it, so a mention delivered on
// either path is suppressed on the other.
type MentionDispatcher struct {
	window *idempotency.Window
	pool   *dispatch.Pool
	handle HandleFunc
	log    *slog.Logger
}

// NewMentionDispatcher creates a MentionDispatcher.
func NewMentionDispatcher(opts MentionDispatcherOptions) (*MentionDispatcher, error) {
	if opts.Window == nil {
		return nil, fmt.Errorf("idempotency window is required")
	}
	if opts.Pool == nil {
		return nil, fmt.Errorf("dispatch pool is required")
	}
	if opts.Handle == nil {
		return nil, fmt.Errorf("handle func is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &MentionDispatcher{
		window: opts.Window,
		pool:   opts.Pool,
		handle: opts.Handle,
		log:    logger,
	}, nil
}

// Offer applies dedup and schedules the mention. It never blocks on the
// handler; the caller can acknowledge the delivery immediately.
func (d *MentionDispatcher) Offer(ev MentionEvent) Disposition {
	if d == nil {
		return DispositionSkipped
	}
	if ev.EventID == "" {
		d.log.Warn("slack_mention_without_event_id", "thread_ts", ev.ThreadTS)
		return DispositionSkipped
	}
	if d.window.Seen(ev.EventID) {
		d.log.Debug("slack_event_deduped", "event_id", ev.EventID)
		return DispositionDuplicate
	}

	jobID := uuid.NewString()
	err := d.pool.Submit(dispatch.Job{
		ID: jobID,
		Run: func(ctx context.Context) {
			d.handle(ctx, ev)
		},
	})
	if err != nil {
		if errors.Is(err, dispatch.ErrQueueFull) {
			d.log.Warn("slack_dispatch_queue_full", "event_id", ev.EventID)
		} else {
			d.log.Warn("slack_dispatch_error", "event_id", ev.EventID, "error", err.Error())
		}
		// Unmark the id so a redelivery is not suppressed as a duplicate
		// while the mention was never actually processed.
		d.window.Forget(ev.EventID)
		return DispositionDropped
	}
	d.log.Info("slack_mention_scheduled", "event_id", ev.EventID, "job_id", jobID, "chars", len(ev.Text))
	return DispositionScheduled
}
