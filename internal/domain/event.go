// Package domain defines the core types shared across the sniper: normalized
// market events, reference price entries, purchase records, and the store and
// cache interfaces implemented by the infrastructure packages.
package domain

// EventKind classifies a normalized market event.
type EventKind string

const (
	EventCreated EventKind = "created"
	EventUpdated EventKind = "updated"
	EventRemoved EventKind = "removed"
)

// EventSource identifies which feed path produced an event. The dedup cache
// uses it to pick the record TTL: live paths deliver explicit removal events,
// the poll path does not.
type EventSource string

const (
	SourceLive EventSource = "live"
	SourcePoll EventSource = "poll"
)

// MarketEvent is a normalized marketplace listing event. It is transient:
// produced by the feed connector (or the poll path) and consumed exactly once
// by the decision engine.
type MarketEvent struct {
	Kind      EventKind
	ListingID string
	Name      string
	Price     float64 // unit price in major currency units
	Source    EventSource
}
