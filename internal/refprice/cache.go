package refprice

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/arbalest/skinsniper/internal/domain"
)

// refreshInterval is how often the full table is re-fetched.
const refreshInterval = 3 * time.Hour

// Fetcher retrieves a full reference table snapshot.
type Fetcher interface {
	FetchTable(ctx context.Context) (domain.ReferenceTable, error)
}

// Cache holds the process-wide reference price snapshot. Lookups read the
// current snapshot through an atomic pointer, so a refresh in progress never
// blocks or partially updates readers.
type Cache struct {
	fetcher  Fetcher
	mirror   domain.ReferenceMirror // optional
	logger   *slog.Logger
	snapshot atomic.Pointer[domain.ReferenceTable]
}

// NewCache creates an empty cache. mirror may be nil.
func NewCache(fetcher Fetcher, mirror domain.ReferenceMirror, logger *slog.Logger) *Cache {
	c := &Cache{
		fetcher: fetcher,
		mirror:  mirror,
		logger:  logger.With(slog.String("component", "refprice")),
	}
	empty := domain.ReferenceTable{}
	c.snapshot.Store(&empty)
	return c
}

// Lookup returns the entry for the exact name in the current snapshot.
func (c *Cache) Lookup(name string) (domain.ReferenceEntry, bool) {
	table := *c.snapshot.Load()
	entry, ok := table[name]
	return entry, ok
}

// Len returns the number of entries in the current snapshot.
func (c *Cache) Len() int {
	return len(*c.snapshot.Load())
}

// Refresh fetches the full table and swaps it in atomically. On failure the
// prior snapshot is retained. A successful refresh is written through to the
// mirror; mirror failures are logged, never fatal.
func (c *Cache) Refresh(ctx context.Context) error {
	table, err := c.fetcher.FetchTable(ctx)
	if err != nil {
		return fmt.Errorf("refprice: refresh: %w", err)
	}
	c.snapshot.Store(&table)
	c.logger.InfoContext(ctx, "reference table refreshed", slog.Int("entries", len(table)))

	if c.mirror != nil {
		if err := c.mirror.Save(ctx, table); err != nil {
			c.logger.WarnContext(ctx, "mirror save failed", slog.String("error", err.Error()))
		}
	}
	return nil
}

// Prime populates the cache at startup. If the first fetch fails and a mirror
// is configured, the last mirrored snapshot is loaded so evaluation can start
// immediately; the next scheduled refresh replaces it.
func (c *Cache) Prime(ctx context.Context) error {
	if err := c.Refresh(ctx); err == nil {
		return nil
	} else if c.mirror == nil {
		return err
	} else {
		c.logger.WarnContext(ctx, "initial fetch failed, falling back to mirror",
			slog.String("error", err.Error()))
	}

	table, err := c.mirror.Load(ctx)
	if err != nil {
		return fmt.Errorf("refprice: prime from mirror: %w", err)
	}
	c.snapshot.Store(&table)
	c.logger.InfoContext(ctx, "reference table loaded from mirror", slog.Int("entries", len(table)))
	return nil
}

// Run refreshes the table every refreshInterval until ctx is cancelled.
// Failures are logged and the prior snapshot stays live.
func (c *Cache) Run(ctx context.Context) error {
	ticker := time.NewTicker(refreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := c.Refresh(ctx); err != nil {
				c.logger.ErrorContext(ctx, "scheduled refresh failed", slog.String("error", err.Error()))
			}
		}
	}
}
