package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/arbalest/skinsniper/internal/domain"
)

const (
	snapshotKey = "refprice:snapshot"
	// snapshotTTL bounds how stale a mirrored table can be before it is
	// no better than an empty one. Two refresh cycles plus slack.
	snapshotTTL = 8 * time.Hour
)

// ReferenceMirror implements domain.ReferenceMirror: the full reference
// price table is stored as one JSON value so a restart can evaluate before
// its first successful fetch.
type ReferenceMirror struct {
	rdb *redis.Client
}

// NewReferenceMirror creates a mirror backed by the given Client.
func NewReferenceMirror(c *Client) *ReferenceMirror {
	return &ReferenceMirror{rdb: c.Underlying()}
}

// Save replaces the mirrored snapshot.
func (m *ReferenceMirror) Save(ctx context.Context, table domain.ReferenceTable) error {
	data, err := json.Marshal(table)
	if err != nil {
		return fmt.Errorf("redis: encode reference snapshot: %w", err)
	}
	if err := m.rdb.Set(ctx, snapshotKey, data, snapshotTTL).Err(); err != nil {
		return fmt.Errorf("redis: save reference snapshot: %w", err)
	}
	return nil
}

// Load returns the last mirrored snapshot. It returns domain.ErrNotFound when
// no snapshot is stored or the stored one has expired.
func (m *ReferenceMirror) Load(ctx context.Context) (domain.ReferenceTable, error) {
	data, err := m.rdb.Get(ctx, snapshotKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis: load reference snapshot: %w", err)
	}
	var table domain.ReferenceTable
	if err := json.Unmarshal(data, &table); err != nil {
		return nil, fmt.Errorf("redis: decode reference snapshot: %w", err)
	}
	return table, nil
}
