package whitemarket

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/arbalest/skinsniper/internal/domain"
)

// MessageHandler receives each raw stream message (still wrapped in the
// stream envelope).
type MessageHandler func(raw []byte)

// SSEClient is the pull/stream fallback transport. The subscription is
// embedded in the URL as a cf_connect query parameter carrying the bearer
// token and the channel set; the server answers with a server-sent event
// stream whose data lines wrap the item payloads in an envelope.
//
// Like WSClient, it performs a single session; reconnect policy lives in the
// feed connector.
type SSEClient struct {
	baseURL    string
	httpClient *http.Client
	onMessage  MessageHandler
	onOpen     func()
}

// OnOpen registers a callback invoked once the stream is accepted by the
// server. The feed connector uses it to reset its reconnect backoff.
func (s *SSEClient) OnOpen(fn func()) {
	s.onOpen = fn
}

// NewSSEClient creates a stream client for the given endpoint.
func NewSSEClient(baseURL string, onMessage MessageHandler) *SSEClient {
	return &SSEClient{
		baseURL: baseURL,
		// No overall timeout: the stream is long-lived and torn down via ctx.
		httpClient: &http.Client{},
		onMessage:  onMessage,
	}
}

// connectParams is the subscription descriptor embedded in the stream URL.
type connectParams struct {
	Token string                    `json:"token"`
	Subs  map[string]map[string]any `json:"subs"`
}

// StreamURL builds the stream URL for the given token and channel.
func (s *SSEClient) StreamURL(token, channel string) (string, error) {
	params, err := json.Marshal(connectParams{
		Token: token,
		Subs:  map[string]map[string]any{channel: {}},
	})
	if err != nil {
		return "", fmt.Errorf("whitemarket/sse: marshal params: %w", err)
	}

	u, err := url.Parse(s.baseURL)
	if err != nil {
		return "", fmt.Errorf("whitemarket/sse: parse url: %w", err)
	}
	q := u.Query()
	q.Set("cf_connect", string(params))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Run opens the stream and dispatches data lines to the handler until the
// stream breaks or ctx is cancelled. It always returns a non-nil error.
func (s *SSEClient) Run(ctx context.Context, token, channel string) error {
	streamURL, err := s.StreamURL(token, channel)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, streamURL, nil)
	if err != nil {
		return fmt.Errorf("whitemarket/sse: create request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("whitemarket/sse: open stream: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		if resp.StatusCode >= 500 {
			return fmt.Errorf("whitemarket/sse: status %d: %w", resp.StatusCode, domain.ErrUpstreamFault)
		}
		return fmt.Errorf("whitemarket/sse: unexpected status %d", resp.StatusCode)
	}
	if s.onOpen != nil {
		s.onOpen()
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data:") {
			continue // comments, event names, blank keepalives
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "" {
			continue
		}
		if s.onMessage != nil {
			s.onMessage([]byte(data))
		}
	}

	if err := scanner.Err(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("whitemarket/sse: stream: %w", err)
	}
	return fmt.Errorf("whitemarket/sse: stream closed by server")
}
