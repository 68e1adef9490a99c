package engine

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arbalest/skinsniper/internal/domain"
	"github.com/arbalest/skinsniper/internal/evaluate"
	"github.com/arbalest/skinsniper/internal/platform/whitemarket"
	"github.com/arbalest/skinsniper/internal/watch"
)

type fakeMarket struct {
	listings []whitemarket.Listing
	listErr  error

	buys   []string
	result domain.PurchaseResult
	buyErr error
}

func (m *fakeMarket) NewestListings(_ context.Context, _, _ float64, _ int) ([]whitemarket.Listing, error) {
	return m.listings, m.listErr
}

func (m *fakeMarket) Buy(_ context.Context, listingID string, _ float64) (domain.PurchaseResult, error) {
	m.buys = append(m.buys, listingID)
	if m.buyErr != nil {
		return domain.PurchaseResult{}, m.buyErr
	}
	return m.result, nil
}

type fakeNotifier struct {
	messages []string
}

func (n *fakeNotifier) Enqueue(text string) {
	n.messages = append(n.messages, text)
}

type fakeAudit struct {
	inserted []domain.Purchase
	err      error
}

func (a *fakeAudit) Insert(_ context.Context, p domain.Purchase) error {
	if a.err != nil {
		return a.err
	}
	a.inserted = append(a.inserted, p)
	return nil
}

func (a *fakeAudit) ListBefore(context.Context, time.Time, int) ([]domain.Purchase, error) {
	return nil, nil
}

func (a *fakeAudit) DeleteBefore(context.Context, time.Time) (int64, error) {
	return 0, nil
}

func fixedParams(p domain.RiskParams) func() domain.RiskParams {
	return func() domain.RiskParams { return p }
}

func newTestEngine(t *testing.T, market *fakeMarket, audit domain.PurchaseStore, table domain.ReferenceTable, params domain.RiskParams) (*Engine, *fakeNotifier, *watch.Cache) {
	t.Helper()
	cache := watch.NewCache()
	t.Cleanup(cache.Stop)

	lookup := func(name string) (domain.ReferenceEntry, bool) {
		entry, ok := table[name]
		return entry, ok
	}
	notifier := &fakeNotifier{}
	eng := New(Config{
		Market:  market,
		Cache:   cache,
		Eval:    evaluate.New(lookup, nil),
		Params:  fixedParams(params),
		Notify:  notifier,
		Audit:   audit,
		Account: "main",
		FeeRate: 1.0,
		Logger:  slog.New(slog.DiscardHandler),
	})
	return eng, notifier, cache
}

var defaultParams = domain.RiskParams{
	MinProfitMargin: 0.10,
	LiquidityFloor:  80,
	MinQuantity:     5,
	PriceMin:        1,
	PriceMax:        500,
}

var profitableTable = domain.ReferenceTable{
	// 10000 minor units -> 100.00 reference; at price 80 the margin is 0.25.
	"AK-47 | Redline (Field-Tested)": {PriceMinorUnits: 10000, Liquidity: 95, Quantity: 30},
}

func TestEngineBuysProfitableListing(t *testing.T) {
	market := &fakeMarket{result: domain.PurchaseResult{OrderID: "o-1", Success: true}}
	audit := &fakeAudit{}
	eng, notifier, _ := newTestEngine(t, market, audit, profitableTable, defaultParams)

	eng.HandleEvent(context.Background(), domain.MarketEvent{
		Kind:      domain.EventCreated,
		ListingID: "l-1",
		Name:      "AK-47 | Redline (Field-Tested)",
		Price:     80,
		Source:    domain.SourceLive,
	})

	require.Equal(t, []string{"l-1"}, market.buys)
	require.Len(t, notifier.messages, 1)
	assert.Contains(t, notifier.messages[0], "BOUGHT")
	assert.Contains(t, notifier.messages[0], "25.0%")

	require.Len(t, audit.inserted, 1)
	rec := audit.inserted[0]
	assert.NotEmpty(t, rec.ID)
	assert.Equal(t, domain.PurchaseFilled, rec.Status)
	assert.InDelta(t, 0.25, rec.MarginRatio, 1e-9)
	assert.Equal(t, 100.0, rec.RefPrice)
}

func TestEnginePriceBoundsFilterBeforeAnythingElse(t *testing.T) {
	market := &fakeMarket{result: domain.PurchaseResult{Success: true}}
	eng, notifier, cache := newTestEngine(t, market, nil, profitableTable, defaultParams)

	eng.HandleEvent(context.Background(), domain.MarketEvent{
		Kind:      domain.EventCreated,
		ListingID: "l-1",
		Name:      "AK-47 | Redline (Field-Tested)",
		Price:     800, // above PriceMax
		Source:    domain.SourceLive,
	})

	assert.Empty(t, market.buys)
	assert.Empty(t, notifier.messages)
	assert.Equal(t, 0, cache.Len(), "out-of-bounds events must not touch the dedup cache")
}

func TestEngineSuppressesDuplicatePrice(t *testing.T) {
	market := &fakeMarket{result: domain.PurchaseResult{Success: true}}
	eng, _, _ := newTestEngine(t, market, nil, profitableTable, defaultParams)

	ev := domain.MarketEvent{
		Kind:      domain.EventCreated,
		ListingID: "l-1",
		Name:      "AK-47 | Redline (Field-Tested)",
		Price:     80,
		Source:    domain.SourceLive,
	}
	eng.HandleEvent(context.Background(), ev)
	eng.HandleEvent(context.Background(), ev)

	assert.Equal(t, []string{"l-1"}, market.buys, "identical price must be bought at most once")
}

func TestEngineRemovalAllowsReadmission(t *testing.T) {
	market := &fakeMarket{result: domain.PurchaseResult{Success: true}}
	eng, _, _ := newTestEngine(t, market, nil, profitableTable, defaultParams)

	ev := domain.MarketEvent{
		Kind:      domain.EventCreated,
		ListingID: "l-1",
		Name:      "AK-47 | Redline (Field-Tested)",
		Price:     80,
		Source:    domain.SourceLive,
	}
	eng.HandleEvent(context.Background(), ev)
	eng.HandleEvent(context.Background(), domain.MarketEvent{Kind: domain.EventRemoved, ListingID: "l-1", Source: domain.SourceLive})
	eng.HandleEvent(context.Background(), ev)

	assert.Equal(t, []string{"l-1", "l-1"}, market.buys)
}

func TestEngineResolvesNamelessEditFromCache(t *testing.T) {
	market := &fakeMarket{result: domain.PurchaseResult{Success: true}}
	eng, _, _ := newTestEngine(t, market, nil, profitableTable, defaultParams)

	eng.HandleEvent(context.Background(), domain.MarketEvent{
		Kind:      domain.EventCreated,
		ListingID: "l-1",
		Name:      "AK-47 | Redline (Field-Tested)",
		Price:     95, // margin too thin, marks the cache only
		Source:    domain.SourceLive,
	})
	require.Empty(t, market.buys)

	eng.HandleEvent(context.Background(), domain.MarketEvent{
		Kind:      domain.EventUpdated,
		ListingID: "l-1",
		Price:     80, // price drop arrives without a name
		Source:    domain.SourceLive,
	})

	assert.Equal(t, []string{"l-1"}, market.buys)
}

func TestEngineDropsNamelessEventForUnknownListing(t *testing.T) {
	market := &fakeMarket{result: domain.PurchaseResult{Success: true}}
	eng, _, cache := newTestEngine(t, market, nil, profitableTable, defaultParams)

	eng.HandleEvent(context.Background(), domain.MarketEvent{
		Kind:      domain.EventUpdated,
		ListingID: "l-unknown",
		Price:     80,
		Source:    domain.SourceLive,
	})

	assert.Empty(t, market.buys)
	assert.Equal(t, 0, cache.Len())
}

func TestEngineThinMarginNotBought(t *testing.T) {
	market := &fakeMarket{result: domain.PurchaseResult{Success: true}}
	eng, notifier, _ := newTestEngine(t, market, nil, profitableTable, defaultParams)

	eng.HandleEvent(context.Background(), domain.MarketEvent{
		Kind:      domain.EventCreated,
		ListingID: "l-1",
		Name:      "AK-47 | Redline (Field-Tested)",
		Price:     95, // margin ~0.053 < 0.10 floor
		Source:    domain.SourceLive,
	})

	assert.Empty(t, market.buys)
	assert.Empty(t, notifier.messages)
}

func TestEngineMarketplaceRejectionNotifiesAndAudits(t *testing.T) {
	market := &fakeMarket{result: domain.PurchaseResult{Success: false, Reason: "product not available"}}
	audit := &fakeAudit{}
	eng, notifier, _ := newTestEngine(t, market, audit, profitableTable, defaultParams)

	eng.HandleEvent(context.Background(), domain.MarketEvent{
		Kind:      domain.EventCreated,
		ListingID: "l-1",
		Name:      "AK-47 | Redline (Field-Tested)",
		Price:     80,
		Source:    domain.SourceLive,
	})

	require.Len(t, notifier.messages, 1)
	assert.Contains(t, notifier.messages[0], "BUY FAILED")
	assert.Contains(t, notifier.messages[0], "product not available")

	require.Len(t, audit.inserted, 1)
	assert.Equal(t, domain.PurchaseRejected, audit.inserted[0].Status)
	assert.Equal(t, "product not available", audit.inserted[0].Reason)
}

func TestEngineSubmissionErrorNotRetried(t *testing.T) {
	market := &fakeMarket{buyErr: errors.New("connection reset")}
	eng, notifier, _ := newTestEngine(t, market, nil, profitableTable, defaultParams)

	ev := domain.MarketEvent{
		Kind:      domain.EventCreated,
		ListingID: "l-1",
		Name:      "AK-47 | Redline (Field-Tested)",
		Price:     80,
		Source:    domain.SourceLive,
	}
	eng.HandleEvent(context.Background(), ev)
	eng.HandleEvent(context.Background(), ev)

	assert.Equal(t, []string{"l-1"}, market.buys, "the dedup mark must prevent a retry")
	require.Len(t, notifier.messages, 1)
	assert.Contains(t, notifier.messages[0], "connection reset")
}

func TestEngineAuditFailureDoesNotBreakPipeline(t *testing.T) {
	market := &fakeMarket{result: domain.PurchaseResult{Success: true}}
	audit := &fakeAudit{err: errors.New("db down")}
	eng, notifier, _ := newTestEngine(t, market, audit, profitableTable, defaultParams)

	eng.HandleEvent(context.Background(), domain.MarketEvent{
		Kind:      domain.EventCreated,
		ListingID: "l-1",
		Name:      "AK-47 | Redline (Field-Tested)",
		Price:     80,
		Source:    domain.SourceLive,
	})

	require.Len(t, notifier.messages, 1)
	assert.Contains(t, notifier.messages[0], "BOUGHT")
}

func TestEnginePollOncePushesListingsThroughPipeline(t *testing.T) {
	market := &fakeMarket{
		listings: []whitemarket.Listing{
			{ID: "l-1", Name: "AK-47 | Redline (Field-Tested)", Price: 80},
			{ID: "l-2", Name: "Unknown Sticker", Price: 50},
		},
		result: domain.PurchaseResult{Success: true},
	}
	eng, _, cache := newTestEngine(t, market, nil, profitableTable, defaultParams)

	require.NoError(t, eng.PollOnce(context.Background()))

	assert.Equal(t, []string{"l-1"}, market.buys)
	assert.Equal(t, 2, cache.Len(), "both polled listings get dedup records")
}

func TestEnginePollOnceSurfacesListError(t *testing.T) {
	market := &fakeMarket{listErr: domain.ErrUpstreamFault}
	eng, _, _ := newTestEngine(t, market, nil, profitableTable, defaultParams)

	err := eng.PollOnce(context.Background())
	require.ErrorIs(t, err, domain.ErrUpstreamFault)
}
