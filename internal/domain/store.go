package domain

import (
	"context"
	"time"
)

// PurchaseStore persists the purchase audit trail.
type PurchaseStore interface {
	Insert(ctx context.Context, p Purchase) error
	ListBefore(ctx context.Context, cutoff time.Time, limit int) ([]Purchase, error)
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// ReferenceMirror persists the last good reference price snapshot so a fresh
// process can evaluate before its first successful fetch.
type ReferenceMirror interface {
	Save(ctx context.Context, table ReferenceTable) error
	Load(ctx context.Context) (ReferenceTable, error)
}

// CredentialStore is the external configuration collaborator the session
// manager writes through after a successful key rotation.
type CredentialStore interface {
	UpdateAPIKey(oldKey, newKey string) error
}

// BanListStore loads and persists the operator ban list. The on-disk format
// is the store's concern, not the evaluator's.
type BanListStore interface {
	Load() ([]string, error)
	Save(entries []string) error
}
