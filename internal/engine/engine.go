// Package engine turns normalized market events into purchase decisions. One
// engine serves one trading instance; its pipeline is serialized by the
// caller, so decision state needs no locking of its own.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/arbalest/skinsniper/internal/domain"
	"github.com/arbalest/skinsniper/internal/evaluate"
	"github.com/arbalest/skinsniper/internal/platform/whitemarket"
	"github.com/arbalest/skinsniper/internal/watch"
)

// pollLimit bounds one poll-path page of newest listings.
const pollLimit = 50

// Marketplace is the slice of the partner API the engine needs.
type Marketplace interface {
	NewestListings(ctx context.Context, priceMin, priceMax float64, first int) ([]whitemarket.Listing, error)
	Buy(ctx context.Context, listingID string, maxPrice float64) (domain.PurchaseResult, error)
}

// Notifier accepts outbound operator messages without blocking.
type Notifier interface {
	Enqueue(text string)
}

// Config wires one engine.
type Config struct {
	Market  Marketplace
	Cache   *watch.Cache
	Eval    *evaluate.Evaluator
	Params  func() domain.RiskParams // current risk params, read per event
	Notify  Notifier
	Audit   domain.PurchaseStore // optional
	Account string
	FeeRate float64
	Logger  *slog.Logger
}

// Engine applies the decision pipeline: price bounds, dedup, evaluation,
// then purchase submission with notification and audit.
type Engine struct {
	market  Marketplace
	cache   *watch.Cache
	eval    *evaluate.Evaluator
	params  func() domain.RiskParams
	notify  Notifier
	audit   domain.PurchaseStore
	account string
	feeRate float64
	logger  *slog.Logger
}

// New creates an Engine from cfg.
func New(cfg Config) *Engine {
	return &Engine{
		market:  cfg.Market,
		cache:   cfg.Cache,
		eval:    cfg.Eval,
		params:  cfg.Params,
		notify:  cfg.Notify,
		audit:   cfg.Audit,
		account: cfg.Account,
		feeRate: cfg.FeeRate,
		logger:  cfg.Logger.With(slog.String("component", "engine")),
	}
}

// HandleEvent processes one normalized market event.
func (e *Engine) HandleEvent(ctx context.Context, ev domain.MarketEvent) {
	switch ev.Kind {
	case domain.EventRemoved:
		e.cache.OnRemoved(ev.ListingID)
	case domain.EventCreated, domain.EventUpdated:
		e.handlePriced(ctx, ev)
	}
}

// PollOnce fetches the newest listings inside the price bounds and pushes
// them through the same pipeline as live events, with the shorter poll TTL.
func (e *Engine) PollOnce(ctx context.Context) error {
	p := e.params()
	listings, err := e.market.NewestListings(ctx, p.PriceMin, p.PriceMax, pollLimit)
	if err != nil {
		return fmt.Errorf("engine: poll: %w", err)
	}
	for _, l := range listings {
		e.HandleEvent(ctx, domain.MarketEvent{
			Kind:      domain.EventCreated,
			ListingID: l.ID,
			Name:      l.Name,
			Price:     l.Price,
			Source:    domain.SourcePoll,
		})
	}
	return nil
}

func (e *Engine) handlePriced(ctx context.Context, ev domain.MarketEvent) {
	p := e.params()
	if ev.Price < p.PriceMin || ev.Price > p.PriceMax {
		return
	}

	name := ev.Name
	if name == "" {
		// Edited payloads may omit the name; the dedup cache remembers it
		// from the listing's earlier event.
		last, ok := e.cache.LastName(ev.ListingID)
		if !ok {
			return
		}
		name = last
	}

	ttl := watch.LiveTTL
	if ev.Source == domain.SourcePoll {
		ttl = watch.PollTTL
	}
	if e.cache.OnPriceEvent(ev.ListingID, name, ev.Price, ttl) == watch.Suppress {
		return
	}

	res, ok := e.eval.Evaluate(name, ev.Price, e.feeRate, p.LiquidityFloor, p.MinQuantity)
	if !ok || res.MarginRatio < p.MinProfitMargin {
		return
	}

	e.execute(ctx, ev.ListingID, name, ev.Price, res)
}

// execute submits the purchase and fans out the outcome. The listing is
// already marked in the dedup cache, so a failed buy is not retried.
func (e *Engine) execute(ctx context.Context, listingID, name string, price float64, res evaluate.Result) {
	result, err := e.market.Buy(ctx, listingID, price)
	if err != nil {
		e.logger.ErrorContext(ctx, "buy submission failed",
			slog.String("listing", listingID),
			slog.String("error", err.Error()),
		)
		e.notify.Enqueue(fmt.Sprintf("BUY FAILED %s at %.2f: %s", name, price, err.Error()))
		e.recordPurchase(ctx, listingID, name, price, res, domain.PurchaseRejected, err.Error())
		return
	}

	if !result.Success {
		e.logger.InfoContext(ctx, "buy rejected",
			slog.String("listing", listingID),
			slog.String("reason", result.Reason),
		)
		e.notify.Enqueue(fmt.Sprintf("BUY FAILED %s at %.2f: %s", name, price, result.Reason))
		e.recordPurchase(ctx, listingID, name, price, res, domain.PurchaseRejected, result.Reason)
		return
	}

	e.logger.InfoContext(ctx, "bought",
		slog.String("listing", listingID),
		slog.String("name", name),
		slog.Float64("price", price),
		slog.Float64("margin", res.MarginRatio),
	)
	e.notify.Enqueue(fmt.Sprintf("BOUGHT %s at %.2f, margin %.1f%%", name, price, res.MarginRatio*100))
	e.recordPurchase(ctx, listingID, name, price, res, domain.PurchaseFilled, "")
}

// recordPurchase appends to the audit store when one is configured. Audit
// failures are logged, never fatal to the pipeline.
func (e *Engine) recordPurchase(ctx context.Context, listingID, name string, price float64, res evaluate.Result, status domain.PurchaseStatus, reason string) {
	if e.audit == nil {
		return
	}
	p := domain.Purchase{
		ID:          uuid.NewString(),
		Account:     e.account,
		ListingID:   listingID,
		ItemName:    name,
		Price:       price,
		RefPrice:    res.RefPrice,
		MarginRatio: res.MarginRatio,
		Status:      status,
		Reason:      reason,
		CreatedAt:   time.Now().UTC(),
	}
	if err := e.audit.Insert(ctx, p); err != nil {
		e.logger.WarnContext(ctx, "audit insert failed",
			slog.String("purchase", p.ID),
			slog.String("error", err.Error()),
		)
	}
}
