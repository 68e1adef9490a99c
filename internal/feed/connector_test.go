package feed

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arbalest/skinsniper/internal/domain"
)

func TestBackoffSequence(t *testing.T) {
	want := []time.Duration{
		2 * time.Second, 4 * time.Second, 8 * time.Second,
		16 * time.Second, 30 * time.Second, 30 * time.Second,
	}

	d := initialBackoff
	assert.Equal(t, time.Second, d, "sequence starts at 1s")
	for i, next := range want {
		d = nextBackoff(d)
		assert.Equal(t, next, d, "step %d", i)
	}
}

func TestBackoffResetsAfterSuccessfulSession(t *testing.T) {
	upg := websocket.Upgrader{}
	connects := make(chan time.Time, 8)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upg.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		connects <- time.Now()
		// Accept the connect and subscribe frames, then drop the session so
		// the connector reconnects.
		_, _, _ = conn.ReadMessage()
		_, _, _ = conn.ReadMessage()
		conn.Close()
	}))
	defer srv.Close()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	c := NewConnector(wsURL, "http://127.0.0.1:1", staticSession{},
		func(context.Context, domain.MarketEvent) {}, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	var stamps []time.Time
	for len(stamps) < 3 {
		select {
		case ts := <-connects:
			stamps = append(stamps, ts)
		case <-time.After(5 * time.Second):
			t.Fatalf("saw %d connections, want 3", len(stamps))
		}
	}
	cancel()
	require.ErrorIs(t, <-done, context.Canceled)

	// Every session connects successfully, so each retry waits the initial
	// delay again. Without the reset the third connection would arrive 2s
	// after the second.
	gap := stamps[2].Sub(stamps[1])
	assert.GreaterOrEqual(t, gap, 900*time.Millisecond)
	assert.Less(t, gap, 1900*time.Millisecond)
}

type staticSession struct{}

func (staticSession) EnsureToken(context.Context) error { return nil }
func (staticSession) Token() string                     { return "tok" }

func TestConnectorStopIdempotent(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	c := NewConnector("ws://127.0.0.1:1", "http://127.0.0.1:1", staticSession{},
		func(context.Context, domain.MarketEvent) {}, logger)

	var wg sync.WaitGroup
	wg.Add(1)
	errCh := make(chan error, 1)
	go func() {
		defer wg.Done()
		errCh <- c.Run(context.Background())
	}()

	// Both transports point nowhere; the connector must keep cycling rather
	// than return, until stopped.
	time.Sleep(50 * time.Millisecond)
	c.Stop()
	c.Stop() // second call must be a no-op

	wg.Wait()
	err := <-errCh
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StateDisconnected, c.State())
}

func TestConnectorDispatchDropsUnusable(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	var got []domain.MarketEvent
	c := NewConnector("", "", staticSession{}, func(_ context.Context, ev domain.MarketEvent) {
		got = append(got, ev)
	}, logger)

	ctx := context.Background()
	c.dispatch(ctx, []byte(`{"type":"market_product_new","content":{"id":"l1","name_hash":"AK-47 | Redline (Field-Tested)","price":9.5}}`))
	c.dispatch(ctx, []byte(`{"type":"market_product_new","content":{"id":"l2","price":0}}`))
	c.dispatch(ctx, []byte(`not json`))
	c.dispatch(ctx, []byte(`{"type":"market_product_removed","content":{"id":"l1"}}`))

	require.Len(t, got, 2)
	assert.Equal(t, domain.EventCreated, got[0].Kind)
	assert.Equal(t, domain.EventRemoved, got[1].Kind)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "disconnected", StateDisconnected.String())
	assert.Equal(t, "connecting", StateConnecting.String())
	assert.Equal(t, "connected", StateConnected.String())
}
