package whitemarket

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/arbalest/skinsniper/internal/domain"
)

const (
	// writeWait is the time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// pongWait is the time allowed to read the next pong from the peer.
	pongWait = 60 * time.Second

	// pingPeriod sends pings at this interval. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10
)

// PublicationHandler receives the inner payload of each publication on the
// subscribed channel.
type PublicationHandler func(payload []byte)

// WSClient is the push channel client. It speaks the marketplace's pub/sub
// framing over a single websocket: a connect frame carrying the bearer token,
// one subscribe frame per channel, then publication frames from the server.
//
// The client does not reconnect on its own; the feed connector owns the
// backoff policy and calls Connect/Run again after a disconnect.
type WSClient struct {
	wsURL string

	mu     sync.Mutex
	conn   *websocket.Conn
	closed bool

	onPub PublicationHandler
}

// NewWSClient creates a client for the given websocket endpoint.
func NewWSClient(wsURL string, onPub PublicationHandler) *WSClient {
	return &WSClient{wsURL: wsURL, onPub: onPub}
}

// wsCommand is a client-to-server frame.
type wsCommand struct {
	ID        int             `json:"id"`
	Connect   *wsConnectCmd   `json:"connect,omitempty"`
	Subscribe *wsSubscribeCmd `json:"subscribe,omitempty"`
}

type wsConnectCmd struct {
	Token string `json:"token"`
}

type wsSubscribeCmd struct {
	Channel string `json:"channel"`
}

// Connect dials the endpoint, authenticates with the bearer token, and
// subscribes to the given channel.
func (w *WSClient) Connect(ctx context.Context, token, channel string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return fmt.Errorf("whitemarket/ws: %w", domain.ErrFeedStopped)
	}

	dialer := websocket.Dialer{HandshakeTimeout: 15 * time.Second}
	conn, _, err := dialer.DialContext(ctx, w.wsURL, nil)
	if err != nil {
		return fmt.Errorf("whitemarket/ws: connect: %w", err)
	}
	w.conn = conn

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	if err := w.sendCommand(wsCommand{ID: 1, Connect: &wsConnectCmd{Token: token}}); err != nil {
		conn.Close()
		w.conn = nil
		return fmt.Errorf("whitemarket/ws: connect frame: %w", err)
	}
	if err := w.sendCommand(wsCommand{ID: 2, Subscribe: &wsSubscribeCmd{Channel: channel}}); err != nil {
		conn.Close()
		w.conn = nil
		return fmt.Errorf("whitemarket/ws: subscribe %s: %w", channel, err)
	}
	return nil
}

// Run reads publications until the connection drops, ctx is cancelled, or
// Close is called. It always returns a non-nil error describing why the
// session ended.
func (w *WSClient) Run(ctx context.Context) error {
	w.mu.Lock()
	conn := w.conn
	w.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("whitemarket/ws: not connected")
	}

	pingDone := make(chan struct{})
	defer close(pingDone)
	go w.pingLoop(conn, pingDone)

	readErr := make(chan error, 1)
	go func() {
		for {
			_, message, err := conn.ReadMessage()
			if err != nil {
				readErr <- fmt.Errorf("whitemarket/ws: read: %w", err)
				return
			}
			w.handleFrame(message)
		}
	}()

	select {
	case <-ctx.Done():
		conn.Close()
		return ctx.Err()
	case err := <-readErr:
		conn.Close()
		if w.isClosed() {
			return domain.ErrFeedStopped
		}
		return err
	}
}

// Close tears down the connection. Idempotent.
func (w *WSClient) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return
	}
	w.closed = true
	if w.conn != nil {
		_ = w.conn.WriteMessage(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		)
		w.conn.Close()
		w.conn = nil
	}
}

func (w *WSClient) isClosed() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closed
}

// sendCommand marshals and writes one frame. Caller must hold w.mu.
func (w *WSClient) sendCommand(cmd wsCommand) error {
	w.conn.SetWriteDeadline(time.Now().Add(writeWait))
	data, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("marshal command: %w", err)
	}
	return w.conn.WriteMessage(websocket.TextMessage, data)
}

func (w *WSClient) pingLoop(conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleFrame extracts the publication payload from a server frame and hands
// it to the handler. Frames without a publication are acks or keepalives.
func (w *WSClient) handleFrame(raw []byte) {
	var frame pushFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		return // silently drop unparseable frames
	}
	if frame.Push.Pub.Data.Message == "" {
		return
	}
	if w.onPub != nil {
		w.onPub([]byte(frame.Push.Pub.Data.Message))
	}
}
