package crypto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tempnotes/pkg/errors"
)

func TestEncryptDecrypt(t *testing.T) {
	key, cfg, err := NewKeyConfig("hunter2")
	require.NoError(t, err)
	assert.Len(t, key, DefaultKeyLength)

	sealed, err := Encrypt([]byte(`[{"id":1}]`), key)
	require.NoError(t, err)

	plain, err := Decrypt(sealed, key)
	require.NoError(t, err)
	assert.Equal(t, `[{"id":1}]`, string(plain))

	again, err := DeriveKey("hunter2", cfg)
	require.NoError(t, err)
	assert.Equal(t, key, again)
}

func TestDeriveKeyWrongPassphrase(t *testing.T) {
	_, cfg, err := NewKeyConfig("right")
	require.NoError(t, err)

	_, err = DeriveKey("wrong", cfg)
	assert.True(t, errors.Is(err, errors.ErrDecryptionFailed))
}

func TestKeyConfigRoundTrip(t *testing.T) {
	_, cfg, err := NewKeyConfig("pw")
	require.NoError(t, err)

	data, err := cfg.Marshal()
	require.NoError(t, err)

	parsed, err := ParseKeyConfig(data)
	require.NoError(t, err)
	assert.Equal(t, cfg, parsed)

	_, err = ParseKeyConfig([]byte("{"))
	assert.Error(t, err)
}

func TestDecryptTampered(t *testing.T) {
	key, _, err := NewKeyConfig("pw")
	require.NoError(t, err)

	_, err = Decrypt("bm90LXJlYWw=", key)
	assert.Error(t, err)
}
