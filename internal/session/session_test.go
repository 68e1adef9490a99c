package session

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arbalest/skinsniper/internal/domain"
)

type fakeAcquirer struct {
	tokens map[string]string // apiKey -> token
	calls  int
}

func (f *fakeAcquirer) AcquireToken(_ context.Context, apiKey string) (string, error) {
	f.calls++
	tok, ok := f.tokens[apiKey]
	if !ok {
		return "", domain.ErrUnauthorized
	}
	return tok, nil
}

type fakeCredStore struct {
	oldKey, newKey string
	err            error
}

func (f *fakeCredStore) UpdateAPIKey(oldKey, newKey string) error {
	f.oldKey, f.newKey = oldKey, newKey
	return f.err
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestEnsureTokenAcquiresOnce(t *testing.T) {
	acq := &fakeAcquirer{tokens: map[string]string{"key-a": "tok-a"}}
	s := New("key-a", acq, nil, discardLogger())

	assert.Empty(t, s.Token(), "token is empty until first acquired")
	require.NoError(t, s.EnsureToken(context.Background()))
	assert.Equal(t, "tok-a", s.Token())

	require.NoError(t, s.EnsureToken(context.Background()))
	assert.Equal(t, 1, acq.calls, "EnsureToken must not re-acquire a held token")
}

func TestRefreshUnconditional(t *testing.T) {
	acq := &fakeAcquirer{tokens: map[string]string{"key-a": "tok-a"}}
	s := New("key-a", acq, nil, discardLogger())

	require.NoError(t, s.Refresh(context.Background()))
	require.NoError(t, s.Refresh(context.Background()))
	assert.Equal(t, 2, acq.calls)
}

func TestRefreshFailureKeepsToken(t *testing.T) {
	acq := &fakeAcquirer{tokens: map[string]string{"key-a": "tok-a"}}
	s := New("key-a", acq, nil, discardLogger())
	require.NoError(t, s.EnsureToken(context.Background()))

	acq.tokens = nil // upstream now failing
	err := s.Refresh(context.Background())
	require.Error(t, err)
	assert.Equal(t, "tok-a", s.Token(), "previous token retained on failure")
}

func TestRotateSuccess(t *testing.T) {
	acq := &fakeAcquirer{tokens: map[string]string{"key-a": "tok-a", "key-b": "tok-b"}}
	creds := &fakeCredStore{}
	s := New("key-a", acq, creds, discardLogger())

	require.NoError(t, s.Rotate(context.Background(), "key-b"))
	assert.Equal(t, "key-b", s.APIKey())
	assert.Equal(t, "tok-b", s.Token())
	assert.Equal(t, "key-a", creds.oldKey)
	assert.Equal(t, "key-b", creds.newKey)
}

func TestRotateRollsBackOnFailure(t *testing.T) {
	acq := &fakeAcquirer{tokens: map[string]string{"key-a": "tok-a"}}
	creds := &fakeCredStore{}
	s := New("key-a", acq, creds, discardLogger())
	require.NoError(t, s.EnsureToken(context.Background()))

	err := s.Rotate(context.Background(), "key-bad")
	require.ErrorIs(t, err, domain.ErrRotationFailed)
	assert.Equal(t, "key-a", s.APIKey(), "active credential equals pre-rotation credential")
	assert.Equal(t, "tok-a", s.Token())
	assert.Empty(t, creds.newKey, "nothing persisted on failed rotation")
}

func TestRotatePersistFailureReported(t *testing.T) {
	acq := &fakeAcquirer{tokens: map[string]string{"key-a": "tok-a", "key-b": "tok-b"}}
	creds := &fakeCredStore{err: errors.New("disk full")}
	s := New("key-a", acq, creds, discardLogger())

	err := s.Rotate(context.Background(), "key-b")
	require.Error(t, err)
	assert.Equal(t, "key-b", s.APIKey(), "validated key stays active for this process")
}
