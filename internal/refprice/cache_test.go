package refprice

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arbalest/skinsniper/internal/domain"
)

type fakeFetcher struct {
	table domain.ReferenceTable
	err   error
	calls int
}

func (f *fakeFetcher) FetchTable(context.Context) (domain.ReferenceTable, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.table, nil
}

type fakeMirror struct {
	saved  domain.ReferenceTable
	loaded domain.ReferenceTable
	err    error
}

func (m *fakeMirror) Save(_ context.Context, table domain.ReferenceTable) error {
	m.saved = table
	return nil
}

func (m *fakeMirror) Load(context.Context) (domain.ReferenceTable, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.loaded, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func TestCacheRefreshSwapsSnapshot(t *testing.T) {
	fetcher := &fakeFetcher{table: domain.ReferenceTable{
		"AK-47 | Redline (Field-Tested)": {PriceMinorUnits: 1550, Liquidity: 92, Quantity: 40},
	}}
	cache := NewCache(fetcher, nil, testLogger())

	_, ok := cache.Lookup("AK-47 | Redline (Field-Tested)")
	assert.False(t, ok, "empty cache must miss")

	require.NoError(t, cache.Refresh(context.Background()))

	entry, ok := cache.Lookup("AK-47 | Redline (Field-Tested)")
	require.True(t, ok)
	assert.Equal(t, int64(1550), entry.PriceMinorUnits)
	assert.Equal(t, 1, cache.Len())
}

func TestCacheRefreshFailureKeepsPriorSnapshot(t *testing.T) {
	fetcher := &fakeFetcher{table: domain.ReferenceTable{
		"M4A4 | Asiimov (Field-Tested)": {PriceMinorUnits: 9000, Liquidity: 88, Quantity: 12},
	}}
	cache := NewCache(fetcher, nil, testLogger())
	require.NoError(t, cache.Refresh(context.Background()))

	fetcher.err = domain.ErrUpstreamFault
	err := cache.Refresh(context.Background())
	require.ErrorIs(t, err, domain.ErrUpstreamFault)

	entry, ok := cache.Lookup("M4A4 | Asiimov (Field-Tested)")
	require.True(t, ok, "prior snapshot must survive a failed refresh")
	assert.Equal(t, int64(9000), entry.PriceMinorUnits)
}

func TestCacheRefreshWritesThroughMirror(t *testing.T) {
	table := domain.ReferenceTable{
		"Glock-18 | Fade (Factory New)": {PriceMinorUnits: 41000, Liquidity: 95, Quantity: 5},
	}
	mirror := &fakeMirror{}
	cache := NewCache(&fakeFetcher{table: table}, mirror, testLogger())

	require.NoError(t, cache.Refresh(context.Background()))
	assert.Equal(t, table, mirror.saved)
}

func TestCachePrimeFallsBackToMirror(t *testing.T) {
	mirror := &fakeMirror{loaded: domain.ReferenceTable{
		"AWP | Dragon Lore (Field-Tested)": {PriceMinorUnits: 950000, Liquidity: 99, Quantity: 2},
	}}
	fetcher := &fakeFetcher{err: errors.New("dns failure")}
	cache := NewCache(fetcher, mirror, testLogger())

	require.NoError(t, cache.Prime(context.Background()))

	entry, ok := cache.Lookup("AWP | Dragon Lore (Field-Tested)")
	require.True(t, ok)
	assert.Equal(t, int64(950000), entry.PriceMinorUnits)
}

func TestCachePrimeWithoutMirrorReturnsFetchError(t *testing.T) {
	fetcher := &fakeFetcher{err: errors.New("dns failure")}
	cache := NewCache(fetcher, nil, testLogger())

	err := cache.Prime(context.Background())
	require.Error(t, err)
	assert.Equal(t, 0, cache.Len())
}

func TestCachePrimeMirrorFailureSurfaces(t *testing.T) {
	mirror := &fakeMirror{err: errors.New("redis down")}
	fetcher := &fakeFetcher{err: errors.New("dns failure")}
	cache := NewCache(fetcher, mirror, testLogger())

	err := cache.Prime(context.Background())
	require.Error(t, err)
}

func TestClientFetchTable(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"USP-S | Kill Confirmed (Minimal Wear)":{"price":7800,"liquidity":91,"count":23}}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "table-secret")
	table, err := client.FetchTable(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "table-secret", gotAuth)
	entry, ok := table["USP-S | Kill Confirmed (Minimal Wear)"]
	require.True(t, ok)
	assert.Equal(t, int64(7800), entry.PriceMinorUnits)
	assert.Equal(t, 91.0, entry.Liquidity)
	assert.Equal(t, 23, entry.Quantity)
}

func TestClientFetchTableServerFault(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "")
	_, err := client.FetchTable(context.Background())
	require.ErrorIs(t, err, domain.ErrUpstreamFault)
}
