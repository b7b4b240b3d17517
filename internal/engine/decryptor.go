package engine

import (
	"crypto/aes"
	"crypto/cipher"
	"encoding/hex"
	"strings"
)

// Decryptor performs stateless AES-128-CBC decryption of segment payloads.
// It holds no state and is safe to call from many goroutines concurrently.
type Decryptor struct{}

// NewDecryptor returns a ready-to-use Decryptor.
func NewDecryptor() *Decryptor { return &Decryptor{} }

// Decrypt returns the plaintext for ciphertext under key and iv. iv is a
// hex string, optionally prefixed with "0x". ciphertext must be a non-zero
// multiple of 16 bytes and key must be exactly 16 bytes, matching the
// single AES-128 key/IV the playlist's #EXT-X-KEY record supplies.
func (d *Decryptor) Decrypt(ciphertext, key []byte, iv string) ([]byte, error) {
	if len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return nil, newErr(KindInvalidInput, "Decrypt", "", errCiphertextLength)
	}
	if len(key) != aes.BlockSize {
		return nil, newErr(KindInvalidInput, "Decrypt", "", errKeyLength)
	}
	ivBytes, err := decodeIV(iv)
	if err != nil {
		return nil, newErr(KindInvalidInput, "Decrypt", "", err)
	}
	if len(ivBytes) != aes.BlockSize {
		return nil, newErr(KindInvalidInput, "Decrypt", "", errIVLength)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, newErr(KindInvalidInput, "Decrypt", "", err)
	}

	plaintext := make([]byte, len(ciphertext))
	mode := cipher.NewCBCDecrypter(block, ivBytes)
	mode.CryptBlocks(plaintext, ciphertext)
	return plaintext, nil
}

func decodeIV(iv string) ([]byte, error) {
	iv = strings.TrimPrefix(iv, "0x")
	iv = strings.TrimPrefix(iv, "0X")
	return hex.DecodeString(iv)
}

var (
	errCiphertextLength = errString("ciphertext length must be a positive multiple of 16")
	errKeyLength        = errString("key must be 16 bytes")
	errIVLength         = errString("iv must decode to 16 bytes")
)

type errString string

func (e errString) Error() string { return string(e) }
