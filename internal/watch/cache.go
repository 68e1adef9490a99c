// Package watch implements the per-instance freshness cache that suppresses
// repeated processing of unchanged listing prices. Each record carries its own
// cancellable expiry timer; a record is removed exactly once, by expiry or by
// an explicit removal event, whichever fires first.
package watch

import (
	"sync"
	"time"
)

// Default record horizons. Live-feed records are cleared early by explicit
// removal events, so they can live long; poll records have no removal signal
// and must age out quickly.
const (
	LiveTTL = 24 * time.Hour
	PollTTL = 30 * time.Minute
)

// Decision is the outcome of OnPriceEvent.
type Decision int

const (
	Suppress Decision = iota
	Admit
)

type record struct {
	name  string
	price float64
	timer *time.Timer
}

// Cache tracks the last seen price per listing. It is owned by one trading
// instance; the mutex serializes the event-processing goroutine against
// expiry-timer callbacks.
type Cache struct {
	mu      sync.Mutex
	records map[string]*record
	stopped bool
}

// NewCache creates an empty Cache.
func NewCache() *Cache {
	return &Cache{records: make(map[string]*record)}
}

// OnPriceEvent records a price observation. An existing record with the
// identical price suppresses the event. Otherwise the record is inserted or
// replaced with a fresh expiry of the given ttl and the event is admitted.
func (c *Cache) OnPriceEvent(listingID, name string, price float64, ttl time.Duration) Decision {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stopped {
		return Suppress
	}
	if rec, ok := c.records[listingID]; ok {
		if rec.price == price {
			return Suppress
		}
		rec.timer.Stop()
	}

	rec := &record{name: name, price: price}
	rec.timer = time.AfterFunc(ttl, func() { c.expire(listingID, rec) })
	c.records[listingID] = rec
	return Admit
}

// OnRemoved deletes the record for a delisted listing, cancelling its pending
// expiry. Unknown listings are a no-op.
func (c *Cache) OnRemoved(listingID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if rec, ok := c.records[listingID]; ok {
		rec.timer.Stop()
		delete(c.records, listingID)
	}
}

// LastName returns the last seen name for a listing, for removal/edited
// payloads that omit the name.
func (c *Cache) LastName(listingID string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	rec, ok := c.records[listingID]
	if !ok {
		return "", false
	}
	return rec.name, true
}

// Len returns the number of live records.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.records)
}

// Stop cancels every pending expiry timer and drops all records. The cache
// suppresses everything afterwards.
func (c *Cache) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for id, rec := range c.records {
		rec.timer.Stop()
		delete(c.records, id)
	}
	c.stopped = true
}

// expire removes a record when its timer fires. The record pointer is compared
// so a timer racing a replacement cannot delete the newer record.
func (c *Cache) expire(listingID string, rec *record) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if cur, ok := c.records[listingID]; ok && cur == rec {
		delete(c.records, listingID)
	}
}
