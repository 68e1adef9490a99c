// Package notify provides the outbound messaging surface: an unbounded FIFO
// queue per trading instance, drained at a fixed ceiling of one message per
// second toward the configured senders (Telegram, Discord).
package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// perMessageInterval is the downstream send-rate ceiling.
const perMessageInterval = time.Second

// Sender delivers one text message to a downstream messaging channel. There
// is no delivery-receipt contract; failures are logged, not retried.
type Sender interface {
	Send(ctx context.Context, text string) error
	Name() string
}

// Queue is an ordered, unbounded message queue with a rate-limited consumer.
// Enqueue never blocks; delivery order matches enqueue order.
type Queue struct {
	mu      sync.Mutex
	pending []string
	wake    chan struct{}

	senders []Sender
	limiter *rate.Limiter
	logger  *slog.Logger
}

// NewQueue creates a Queue delivering to the given senders at most one
// message per second.
func NewQueue(senders []Sender, logger *slog.Logger) *Queue {
	return &Queue{
		wake:    make(chan struct{}, 1),
		senders: senders,
		limiter: rate.NewLimiter(rate.Every(perMessageInterval), 1),
		logger:  logger.With(slog.String("component", "notify_queue")),
	}
}

// Enqueue appends a message. Safe for concurrent use; never blocks.
func (q *Queue) Enqueue(text string) {
	q.mu.Lock()
	q.pending = append(q.pending, text)
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// Len returns the number of undelivered messages.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Run drains the queue until ctx is cancelled. Messages still pending at
// cancellation are not flushed.
func (q *Queue) Run(ctx context.Context) error {
	for {
		msg, ok := q.dequeue()
		if !ok {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-q.wake:
				continue
			}
		}

		if err := q.limiter.Wait(ctx); err != nil {
			return err
		}
		q.deliver(ctx, msg)
	}
}

func (q *Queue) dequeue() (string, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.pending) == 0 {
		return "", false
	}
	msg := q.pending[0]
	q.pending = q.pending[1:]
	return msg, true
}

// deliver fans one message out to every sender. A sender failure does not
// block the others and is not retried.
func (q *Queue) deliver(ctx context.Context, text string) {
	for _, s := range q.senders {
		if err := s.Send(ctx, text); err != nil {
			q.logger.WarnContext(ctx, "delivery failed",
				slog.String("sender", s.Name()),
				slog.String("error", err.Error()),
			)
		}
	}
}
