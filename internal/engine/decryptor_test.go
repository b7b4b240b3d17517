package engine

import (
	"crypto/aes"
	"crypto/cipher"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encryptForTest(t *testing.T, plaintext, key, iv []byte) []byte {
	t.Helper()
	block, err := aes.NewCipher(key)
	require.NoError(t, err)
	out := make([]byte, len(plaintext))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(out, plaintext)
	return out
}

func TestDecryptor_RoundTrip(t *testing.T) {
	key := []byte("0123456789abcdef")
	iv := []byte("fedcba9876543210")
	plaintext := []byte("this is exactly 32 bytes of data")[:32]

	ciphertext := encryptForTest(t, plaintext, key, iv)

	cases := []struct {
		name string
		iv   string
	}{
		{"plain hex", hex.EncodeToString(iv)},
		{"0x prefixed hex", "0x" + hex.EncodeToString(iv)},
	}

	d := NewDecryptor()
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := d.Decrypt(ciphertext, key, tc.iv)
			require.NoError(t, err)
			assert.Equal(t, plaintext, got)
		})
	}
}

func TestDecryptor_InvalidInput(t *testing.T) {
	d := NewDecryptor()
	key := []byte("0123456789abcdef")
	iv := hex.EncodeToString([]byte("fedcba9876543210"))

	t.Run("ciphertext not multiple of 16", func(t *testing.T) {
		_, err := d.Decrypt([]byte("short"), key, iv)
		require.Error(t, err)
		assert.Equal(t, KindInvalidInput, KindOf(err))
	})

	t.Run("wrong key length", func(t *testing.T) {
		_, err := d.Decrypt(make([]byte, 16), []byte("tooshort"), iv)
		require.Error(t, err)
		assert.Equal(t, KindInvalidInput, KindOf(err))
	})

	t.Run("bad iv hex", func(t *testing.T) {
		_, err := d.Decrypt(make([]byte, 16), key, "zzzz")
		require.Error(t, err)
		assert.Equal(t, KindInvalidInput, KindOf(err))
	})
}
