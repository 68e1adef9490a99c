// Package instance runs one trading account end to end: a live feed
// connector, a dedup cache, a decision engine, a session manager, and a
// notification queue, plus the operator surface that tunes them.
package instance

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/arbalest/skinsniper/internal/domain"
	"github.com/arbalest/skinsniper/internal/engine"
	"github.com/arbalest/skinsniper/internal/evaluate"
	"github.com/arbalest/skinsniper/internal/feed"
	"github.com/arbalest/skinsniper/internal/notify"
	"github.com/arbalest/skinsniper/internal/session"
	"github.com/arbalest/skinsniper/internal/watch"
)

// statusInterval is how often the profile name and wallet balance snapshot
// is refreshed while the instance is online.
const statusInterval = time.Minute

// AccountAPI is the slice of the partner API used for the status snapshot.
type AccountAPI interface {
	Profile(ctx context.Context) (string, error)
	Balance(ctx context.Context) (float64, error)
}

// Config wires one trading instance.
type Config struct {
	Name         string // operator label for this account
	Market       engine.Marketplace
	Account      AccountAPI
	Session      *session.Session
	Queue        *notify.Queue
	Audit        domain.PurchaseStore // optional
	Eval         *evaluate.Evaluator
	Params       domain.RiskParams
	FeeRate      float64
	WSURL        string
	SSEURL       string
	PollInterval time.Duration // 0 disables the poll path
	Logger       *slog.Logger
}

// Instance is one independent trading account. All exported methods are safe
// for concurrent use; inputs are pre-validated by the caller.
type Instance struct {
	cfg    Config
	logger *slog.Logger

	mu      sync.Mutex
	params  domain.RiskParams
	state   domain.InstanceState
	profile string
	balance float64

	cancel context.CancelFunc
	conn   *feed.Connector
	cache  *watch.Cache
	done   chan struct{}
}

// New creates a stopped instance.
func New(cfg Config) *Instance {
	return &Instance{
		cfg:    cfg,
		logger: cfg.Logger.With(slog.String("component", "instance"), slog.String("account", cfg.Name)),
		params: cfg.Params,
		state:  domain.StateOffline,
	}
}

// Start brings the instance online. Calling Start on a running instance is a
// no-op. Each start builds a fresh connector and dedup cache, so reconnect
// backoff always begins at its initial delay.
func (i *Instance) Start() error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.cancel != nil {
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	cache := watch.NewCache()
	eng := engine.New(engine.Config{
		Market:  i.cfg.Market,
		Cache:   cache,
		Eval:    i.cfg.Eval,
		Params:  i.riskParams,
		Notify:  i.cfg.Queue,
		Audit:   i.cfg.Audit,
		Account: i.cfg.Name,
		FeeRate: i.cfg.FeeRate,
		Logger:  i.logger,
	})
	conn := feed.NewConnector(i.cfg.WSURL, i.cfg.SSEURL, i.cfg.Session, eng.HandleEvent, i.logger)

	done := make(chan struct{})
	i.cancel = cancel
	i.conn = conn
	i.cache = cache
	i.done = done
	i.state = domain.StateOnline

	go func() {
		defer close(done)
		i.run(ctx, conn, eng)
	}()

	i.logger.Info("instance started")
	return nil
}

// Stop takes the instance offline: tears down the transport, cancels every
// pending dedup timer, and halts the background loops. Idempotent.
func (i *Instance) Stop() {
	i.mu.Lock()
	if i.cancel == nil {
		i.mu.Unlock()
		return
	}
	cancel, conn, cache, done := i.cancel, i.conn, i.cache, i.done
	i.cancel = nil
	i.conn = nil
	i.cache = nil
	i.done = nil
	i.state = domain.StateOffline
	i.mu.Unlock()

	cancel()
	conn.Stop()
	cache.Stop()
	<-done
	i.logger.Info("instance stopped")
}

func (i *Instance) run(ctx context.Context, conn *feed.Connector, eng *engine.Engine) {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return conn.Run(gctx) })
	g.Go(func() error { return i.cfg.Session.RunRefresh(gctx) })
	g.Go(func() error { return i.cfg.Queue.Run(gctx) })
	g.Go(func() error { return i.statusLoop(gctx) })
	if i.cfg.PollInterval > 0 {
		g.Go(func() error { return i.pollLoop(gctx, eng) })
	}

	if err := g.Wait(); err != nil && ctx.Err() == nil {
		i.logger.Error("instance loop exited", slog.String("error", err.Error()))
	}

	i.mu.Lock()
	i.state = domain.StateOffline
	i.mu.Unlock()
}

func (i *Instance) statusLoop(ctx context.Context) error {
	i.refreshSnapshot(ctx)
	ticker := time.NewTicker(statusInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			i.refreshSnapshot(ctx)
		}
	}
}

func (i *Instance) pollLoop(ctx context.Context, eng *engine.Engine) error {
	ticker := time.NewTicker(i.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := eng.PollOnce(ctx); err != nil {
				i.logger.Warn("poll cycle failed", slog.String("error", err.Error()))
			}
		}
	}
}

func (i *Instance) refreshSnapshot(ctx context.Context) {
	name, err := i.cfg.Account.Profile(ctx)
	if err != nil {
		i.logger.Warn("profile refresh failed", slog.String("error", err.Error()))
		return
	}
	balance, err := i.cfg.Account.Balance(ctx)
	if err != nil {
		i.logger.Warn("balance refresh failed", slog.String("error", err.Error()))
		return
	}

	i.mu.Lock()
	i.profile = name
	i.balance = balance
	i.mu.Unlock()
}

// Status enqueues a formatted snapshot of the instance for the operator.
func (i *Instance) Status() {
	s := i.Snapshot()
	i.cfg.Queue.Enqueue(fmt.Sprintf(
		"[%s] %s | %s | balance %.2f | margin %.1f%% | liquidity %.0f | qty %d | price %.2f-%.2f",
		i.cfg.Name, s.State, s.Name, s.Balance,
		s.Params.MinProfitMargin*100, s.Params.LiquidityFloor, s.Params.MinQuantity,
		s.Params.PriceMin, s.Params.PriceMax,
	))
}

// Snapshot returns the current account status.
func (i *Instance) Snapshot() domain.AccountStatus {
	i.mu.Lock()
	defer i.mu.Unlock()
	return domain.AccountStatus{
		State:   i.state,
		Name:    i.profile,
		Balance: i.balance,
		Params:  i.params,
	}
}

// RotateKey swaps the account API key in two phases and reports the outcome
// to the operator. On failure the previous key stays active.
func (i *Instance) RotateKey(ctx context.Context, newKey string) error {
	if err := i.cfg.Session.Rotate(ctx, newKey); err != nil {
		i.cfg.Queue.Enqueue(fmt.Sprintf("[%s] key rotation failed: %s", i.cfg.Name, err.Error()))
		return err
	}
	i.cfg.Queue.Enqueue(fmt.Sprintf("[%s] key rotation complete", i.cfg.Name))
	return nil
}

func (i *Instance) riskParams() domain.RiskParams {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.params
}

// SetPriceMin updates the lower price bound.
func (i *Instance) SetPriceMin(v float64) {
	i.mu.Lock()
	i.params.PriceMin = v
	i.mu.Unlock()
}

// SetPriceMax updates the upper price bound.
func (i *Instance) SetPriceMax(v float64) {
	i.mu.Lock()
	i.params.PriceMax = v
	i.mu.Unlock()
}

// SetMinMargin updates the minimum profit margin ratio.
func (i *Instance) SetMinMargin(v float64) {
	i.mu.Lock()
	i.params.MinProfitMargin = v
	i.mu.Unlock()
}

// SetLiquidityFloor updates the reference liquidity floor.
func (i *Instance) SetLiquidityFloor(v float64) {
	i.mu.Lock()
	i.params.LiquidityFloor = v
	i.mu.Unlock()
}

// SetMinQuantity updates the minimum reference quantity.
func (i *Instance) SetMinQuantity(v int) {
	i.mu.Lock()
	i.params.MinQuantity = v
	i.mu.Unlock()
}
