package evaluate

import (
	"fmt"
	"strings"
	"sync"

	"github.com/arbalest/skinsniper/internal/domain"
)

// BanList is the operator-maintained list of item name fragments that are
// never bought. Matching is substring-based: an item is banned when its name
// contains any entry. Safe for concurrent use; mutations write through the
// optional store.
type BanList struct {
	mu      sync.RWMutex
	entries []string
	store   domain.BanListStore
}

// NewBanList creates a BanList seeded from the store when one is given.
func NewBanList(store domain.BanListStore) (*BanList, error) {
	bl := &BanList{store: store}
	if store != nil {
		entries, err := store.Load()
		if err != nil {
			return nil, fmt.Errorf("banlist: load: %w", err)
		}
		bl.entries = entries
	}
	return bl, nil
}

// Banned reports whether name contains any banned fragment.
func (b *BanList) Banned(name string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, e := range b.entries {
		if e != "" && strings.Contains(name, e) {
			return true
		}
	}
	return false
}

// Add appends a fragment and persists the updated list.
func (b *BanList) Add(fragment string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, e := range b.entries {
		if e == fragment {
			return nil
		}
	}
	b.entries = append(b.entries, fragment)
	return b.persistLocked()
}

// Remove deletes a fragment and persists the updated list. Removing an absent
// fragment is a no-op.
func (b *BanList) Remove(fragment string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	kept := b.entries[:0]
	for _, e := range b.entries {
		if e != fragment {
			kept = append(kept, e)
		}
	}
	b.entries = kept
	return b.persistLocked()
}

// Entries returns a copy of the current list.
func (b *BanList) Entries() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]string, len(b.entries))
	copy(out, b.entries)
	return out
}

func (b *BanList) persistLocked() error {
	if b.store == nil {
		return nil
	}
	if err := b.store.Save(b.entries); err != nil {
		return fmt.Errorf("banlist: save: %w", err)
	}
	return nil
}
