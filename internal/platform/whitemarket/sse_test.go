package whitemarket

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSSERunDispatchesDataLines(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "text/event-stream", r.Header.Get("Accept"))
		assert.NotEmpty(t, r.URL.Query().Get("cf_connect"))

		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, ": keepalive comment\n")
		fmt.Fprint(w, "data: {\"pub\":{\"data\":{\"message\":\"one\"}}}\n")
		fmt.Fprint(w, "\n")
		fmt.Fprint(w, "data: {\"pub\":{\"data\":{\"message\":\"two\"}}}\n")
		// Server closes the stream; Run must report it as an error.
	}))
	defer srv.Close()

	var got []string
	s := NewSSEClient(srv.URL, func(raw []byte) { got = append(got, string(raw)) })

	err := s.Run(context.Background(), "tok", "market_products_updates")
	require.Error(t, err)
	require.Len(t, got, 2)

	payload, ok := UnwrapStreamEnvelope([]byte(got[0]))
	require.True(t, ok)
	assert.Equal(t, "one", string(payload))
}

func TestSSERunServerFault(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusBadGateway)
	}))
	defer srv.Close()

	s := NewSSEClient(srv.URL, nil)
	err := s.Run(context.Background(), "tok", "market_products_updates")
	require.Error(t, err)
}
