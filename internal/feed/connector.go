// Package feed maintains each trading instance's subscription to the live
// listing feed. The push channel is the primary transport; the SSE stream is
// the fallback. Both payload shapes funnel into the same normalization, so
// the decision engine never sees which transport produced an event.
package feed

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/arbalest/skinsniper/internal/domain"
	"github.com/arbalest/skinsniper/internal/platform/whitemarket"
)

const (
	initialBackoff = 1 * time.Second
	maxBackoff     = 30 * time.Second

	// Channel carrying listing updates for the whole marketplace.
	updatesChannel = "market_products_updates"
)

// State is the connector's lifecycle state.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

// Handler consumes normalized events, one at a time.
type Handler func(ctx context.Context, ev domain.MarketEvent)

// TokenSource supplies the bearer token for transport subscriptions.
// Implemented by the session manager.
type TokenSource interface {
	EnsureToken(ctx context.Context) error
	Token() string
}

// Connector owns the transport lifecycle for one instance: connect, consume,
// reconnect with exponential backoff, fall back to the stream transport when
// the push channel cannot be established.
type Connector struct {
	wsURL   string
	sseURL  string
	session TokenSource
	handler Handler
	logger  *slog.Logger

	state    atomic.Int32
	stopOnce sync.Once
	done     chan struct{}
}

// NewConnector creates a Connector delivering events to handler.
func NewConnector(wsURL, sseURL string, session TokenSource, handler Handler, logger *slog.Logger) *Connector {
	return &Connector{
		wsURL:   wsURL,
		sseURL:  sseURL,
		session: session,
		handler: handler,
		logger:  logger.With(slog.String("component", "feed")),
		done:    make(chan struct{}),
	}
}

// State returns the current connection state.
func (c *Connector) State() State {
	return State(c.state.Load())
}

// Run drives the connect/consume/reconnect loop until ctx is cancelled or
// Stop is called. Transport faults are never surfaced as errors to the
// caller; they only feed the backoff policy.
func (c *Connector) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-c.done:
			cancel()
		case <-ctx.Done():
		}
	}()

	delay := initialBackoff
	for {
		select {
		case <-ctx.Done():
			c.state.Store(int32(StateDisconnected))
			return ctx.Err()
		default:
		}

		c.state.Store(int32(StateConnecting))

		connected, err := c.runSession(ctx)
		c.state.Store(int32(StateDisconnected))
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if connected {
			// One successful connection resets the backoff sequence.
			delay = initialBackoff
		}
		c.logger.WarnContext(ctx, "feed session ended, reconnecting",
			slog.String("error", errString(err)),
			slog.Duration("retry_in", delay),
		)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay = nextBackoff(delay)
	}
}

// Stop tears down the active transport. Idempotent.
func (c *Connector) Stop() {
	c.stopOnce.Do(func() { close(c.done) })
}

// runSession attempts one transport session: push first, stream fallback.
// It reports whether a connection was established at all.
func (c *Connector) runSession(ctx context.Context) (connected bool, err error) {
	if err := c.session.EnsureToken(ctx); err != nil {
		return false, err
	}
	token := c.session.Token()

	ws := whitemarket.NewWSClient(c.wsURL, func(payload []byte) {
		c.dispatch(ctx, payload)
	})
	defer ws.Close()

	connCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	err = ws.Connect(connCtx, token, updatesChannel)
	cancel()
	if err == nil {
		c.state.Store(int32(StateConnected))
		c.logger.InfoContext(ctx, "push channel subscribed",
			slog.String("channel", updatesChannel),
		)
		return true, ws.Run(ctx)
	}
	c.logger.WarnContext(ctx, "push channel unavailable, using stream fallback",
		slog.String("error", err.Error()),
	)

	sse := whitemarket.NewSSEClient(c.sseURL, func(raw []byte) {
		payload, ok := whitemarket.UnwrapStreamEnvelope(raw)
		if !ok {
			return
		}
		c.dispatch(ctx, payload)
	})
	sse.OnOpen(func() {
		connected = true
		c.state.Store(int32(StateConnected))
		c.logger.InfoContext(ctx, "stream fallback connected")
	})
	// Run before reading connected: OnOpen sets it during the call.
	err = sse.Run(ctx, token, updatesChannel)
	return connected, err
}

// dispatch normalizes one raw payload and hands it to the handler. Unusable
// payloads yield no event and no error.
func (c *Connector) dispatch(ctx context.Context, payload []byte) {
	ev, ok := whitemarket.Normalize(payload)
	if !ok {
		return
	}
	c.handler(ctx, ev)
}

// nextBackoff doubles the delay up to the cap.
func nextBackoff(d time.Duration) time.Duration {
	d *= 2
	if d > maxBackoff {
		return maxBackoff
	}
	return d
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
