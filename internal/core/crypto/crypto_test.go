package crypto

import (
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncryptDecryptRoundTrip(t *testing.T) {
	box, err := NewBox("test-secret", "test-salt")
	require.NoError(t, err)

	tests := []struct {
		name      string
		plaintext string
	}{
		{"token", "zc_4f9a8b7c6d5e"},
		{"empty", ""},
		{"unicode", "ключ-клавиша-鍵"},
		{"json blob", `{"telegram":{"botToken":"123:abc","allowedUsers":["42"]}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			enc, err := box.Encrypt(tt.plaintext)
			require.NoError(t, err)

			dec, err := box.Decrypt(enc)
			require.NoError(t, err)
			assert.Equal(t, tt.plaintext, dec)
		})
	}
}

func TestEncryptProducesUniqueCiphertexts(t *testing.T) {
	box, err := NewBox("test-secret", "test-salt")
	require.NoError(t, err)

	a, err := box.Encrypt("same input")
	require.NoError(t, err)
	b, err := box.Encrypt("same input")
	require.NoError(t, err)
	assert.NotEqual(t, a, b, "iv must be random per encryption")
}

func TestCiphertextLayout(t *testing.T) {
	box, err := NewBox("test-secret", "test-salt")
	require.NoError(t, err)

	enc, err := box.Encrypt("hello")
	require.NoError(t, err)

	raw, err := base64.StdEncoding.DecodeString(enc)
	require.NoError(t, err)
	// iv(16) + tag(16) + 5 bytes of ciphertext
	assert.Len(t, raw, 16+16+5)
}

func TestDecryptRejectsTampering(t *testing.T) {
	box, err := NewBox("test-secret", "test-salt")
	require.NoError(t, err)

	enc, err := box.Encrypt("hello")
	require.NoError(t, err)

	raw, err := base64.StdEncoding.DecodeString(enc)
	require.NoError(t, err)
	raw[len(raw)-1] ^= 0xff
	_, err = box.Decrypt(base64.StdEncoding.EncodeToString(raw))
	assert.Error(t, err)
}

func TestDecryptRejectsTruncatedInput(t *testing.T) {
	box, err := NewBox("test-secret", "test-salt")
	require.NoError(t, err)

	_, err = box.Decrypt(base64.StdEncoding.EncodeToString([]byte("short")))
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "too short"))
}

func TestDifferentSaltsProduceIncompatibleKeys(t *testing.T) {
	a, err := NewBox("secret", "salt-v1")
	require.NoError(t, err)
	b, err := NewBox("secret", "salt-v2")
	require.NoError(t, err)

	enc, err := a.Encrypt("value")
	require.NoError(t, err)
	_, err = b.Decrypt(enc)
	assert.Error(t, err)
}

func TestNewBoxRequiresSecret(t *testing.T) {
	_, err := NewBox("", "salt")
	assert.Error(t, err)
}
