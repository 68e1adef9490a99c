// Package session manages the bearer credential used by all outbound partner
// API calls: lazy first acquisition, unconditional periodic refresh, and
// validated key rotation with rollback.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/arbalest/skinsniper/internal/domain"
)

// refreshPeriod is how often the token is re-acquired regardless of its
// expiry state.
const refreshPeriod = 30 * time.Minute

// TokenAcquirer exchanges a static API key for a bearer token. Implemented by
// the partner API client.
type TokenAcquirer interface {
	AcquireToken(ctx context.Context, apiKey string) (string, error)
}

// Session holds the account's API key and the current bearer token. The token
// is nil (empty) until first acquired.
type Session struct {
	mu       sync.RWMutex
	apiKey   string
	token    string
	acquirer TokenAcquirer
	creds    domain.CredentialStore
	logger   *slog.Logger
}

// New creates a Session for the given static API key. creds may be nil when
// no credential persistence collaborator is configured.
func New(apiKey string, acquirer TokenAcquirer, creds domain.CredentialStore, logger *slog.Logger) *Session {
	return &Session{
		apiKey:   apiKey,
		acquirer: acquirer,
		creds:    creds,
		logger:   logger.With(slog.String("component", "session")),
	}
}

// Token returns the current bearer token, or "" when none is held. Safe to
// pass as a whitemarket.TokenProvider.
func (s *Session) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// EnsureToken acquires a token if none is held.
func (s *Session) EnsureToken(ctx context.Context) error {
	s.mu.RLock()
	have := s.token != ""
	s.mu.RUnlock()
	if have {
		return nil
	}
	return s.Refresh(ctx)
}

// Refresh unconditionally re-acquires the token with the current key. On
// failure the previous token (possibly empty) is retained.
func (s *Session) Refresh(ctx context.Context) error {
	s.mu.RLock()
	key := s.apiKey
	s.mu.RUnlock()

	tok, err := s.acquirer.AcquireToken(ctx, key)
	if err != nil {
		return fmt.Errorf("session: refresh: %w", err)
	}

	s.mu.Lock()
	s.token = tok
	s.mu.Unlock()
	return nil
}

// RunRefresh re-acquires the token every 30 minutes until ctx is cancelled.
// Individual failures are logged and retried next period.
func (s *Session) RunRefresh(ctx context.Context) error {
	ticker := time.NewTicker(refreshPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := s.Refresh(ctx); err != nil {
				s.logger.WarnContext(ctx, "token refresh failed",
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// Rotate swaps in a new API key with validate-before-commit semantics:
// the new key must successfully acquire a token before it becomes the active
// credential. On acquisition failure the previous key is restored and
// domain.ErrRotationFailed returned. On success the new key is written
// through the credential store.
func (s *Session) Rotate(ctx context.Context, newKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	oldKey := s.apiKey
	s.apiKey = newKey

	tok, err := s.acquirer.AcquireToken(ctx, newKey)
	if err != nil {
		s.apiKey = oldKey
		return fmt.Errorf("session: %w: %v", domain.ErrRotationFailed, err)
	}
	s.token = tok

	if s.creds != nil {
		if err := s.creds.UpdateAPIKey(oldKey, newKey); err != nil {
			// The key works; persistence failure is reported but the rotation
			// stands for this process.
			s.logger.Error("persisting rotated key failed",
				slog.String("error", err.Error()),
			)
			return fmt.Errorf("session: persist rotated key: %w", err)
		}
	}
	return nil
}

// APIKey returns the active API key. Used by status reporting and tests.
func (s *Session) APIKey() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.apiKey
}
