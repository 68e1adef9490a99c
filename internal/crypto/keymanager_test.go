package crypto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncryptDecryptRoundTrip(t *testing.T) {
	token, err := EncryptSecret("partner-api-key-123", "hunter2")
	require.NoError(t, err)
	assert.Contains(t, token, "v1:")

	plain, err := DecryptSecret(token, "hunter2")
	require.NoError(t, err)
	assert.Equal(t, "partner-api-key-123", plain)
}

func TestDecryptWrongPassword(t *testing.T) {
	token, err := EncryptSecret("partner-api-key-123", "hunter2")
	require.NoError(t, err)

	_, err = DecryptSecret(token, "wrong")
	require.Error(t, err)
}

func TestDecryptMalformedToken(t *testing.T) {
	_, err := DecryptSecret("not-a-token", "hunter2")
	require.Error(t, err)

	_, err = DecryptSecret("v2:a:b:c", "hunter2")
	require.Error(t, err)
}

func TestEncryptRequiresInputs(t *testing.T) {
	_, err := EncryptSecret("", "hunter2")
	require.Error(t, err)

	_, err = EncryptSecret("secret", "")
	require.Error(t, err)
}

func TestResolveSecret(t *testing.T) {
	got, err := ResolveSecret("raw-key", "", "")
	require.NoError(t, err)
	assert.Equal(t, "raw-key", got)

	token, err := EncryptSecret("enc-key", "pw")
	require.NoError(t, err)
	got, err = ResolveSecret("", token, "pw")
	require.NoError(t, err)
	assert.Equal(t, "enc-key", got)

	_, err = ResolveSecret("", "", "")
	require.Error(t, err)
}
