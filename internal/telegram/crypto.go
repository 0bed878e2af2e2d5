package telegram

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
)

// sessionCipher encrypts MTProto session blobs at rest with AES-256-GCM.
// Session tokens are credentials equivalent to a logged-in device; they are
// never stored or logged in the clear.
type sessionCipher struct {
	aead cipher.AEAD
}

func newSessionCipher(key []byte) (*sessionCipher, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("session cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("session cipher: %w", err)
	}
	return &sessionCipher{aead: aead}, nil
}

// Encrypt seals the session and returns base64(nonce || ciphertext).
func (c *sessionCipher) Encrypt(plain []byte) (string, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}
	sealed := c.aead.Seal(nonce, nonce, plain, nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt reverses Encrypt.
func (c *sessionCipher) Decrypt(encoded string) ([]byte, error) {
	sealed, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("session token corrupt: %w", err)
	}
	ns := c.aead.NonceSize()
	if len(sealed) < ns {
		return nil, fmt.Errorf("session token too short")
	}
	plain, err := c.aead.Open(nil, sealed[:ns], sealed[ns:], nil)
	if err != nil {
		return nil, fmt.Errorf("session token corrupt: %w", err)
	}
	return plain, nil
}
