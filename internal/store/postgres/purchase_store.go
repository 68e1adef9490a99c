package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/arbalest/skinsniper/internal/domain"
)

// PurchaseStore implements domain.PurchaseStore using PostgreSQL.
type PurchaseStore struct {
	pool *pgxpool.Pool
}

// NewPurchaseStore creates a PurchaseStore backed by the given connection
// pool.
func NewPurchaseStore(pool *pgxpool.Pool) *PurchaseStore {
	return &PurchaseStore{pool: pool}
}

// Insert appends one purchase audit record.
func (s *PurchaseStore) Insert(ctx context.Context, p domain.Purchase) error {
	const query = `
		INSERT INTO purchases
			(id, account, listing_id, item_name, price, ref_price, margin_ratio, status, reason, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	_, err := s.pool.Exec(ctx, query,
		p.ID, p.Account, p.ListingID, p.ItemName,
		p.Price, p.RefPrice, p.MarginRatio,
		string(p.Status), p.Reason, p.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert purchase %s: %w", p.ID, err)
	}
	return nil
}

// ListBefore returns up to limit purchase records created before cutoff,
// oldest first. The archiver pages through history with it.
func (s *PurchaseStore) ListBefore(ctx context.Context, cutoff time.Time, limit int) ([]domain.Purchase, error) {
	const query = `
		SELECT id, account, listing_id, item_name, price, ref_price, margin_ratio, status, reason, created_at
		FROM purchases
		WHERE created_at < $1
		ORDER BY created_at ASC
		LIMIT $2`
	rows, err := s.pool.Query(ctx, query, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list purchases before %s: %w", cutoff.Format(time.RFC3339), err)
	}
	defer rows.Close()
	return scanPurchases(rows)
}

// DeleteBefore removes purchase records created before cutoff and reports how
// many were deleted.
func (s *PurchaseStore) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	const query = `DELETE FROM purchases WHERE created_at < $1`
	tag, err := s.pool.Exec(ctx, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete purchases before %s: %w", cutoff.Format(time.RFC3339), err)
	}
	return tag.RowsAffected(), nil
}

type rowScanner interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func scanPurchases(rows rowScanner) ([]domain.Purchase, error) {
	var out []domain.Purchase
	for rows.Next() {
		var p domain.Purchase
		var status string
		if err := rows.Scan(
			&p.ID, &p.Account, &p.ListingID, &p.ItemName,
			&p.Price, &p.RefPrice, &p.MarginRatio,
			&status, &p.Reason, &p.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan purchase: %w", err)
		}
		p.Status = domain.PurchaseStatus(status)
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate purchases: %w", err)
	}
	return out, nil
}
