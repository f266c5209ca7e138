package storage

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"io"
)

// Cipher seals values with AES-256-GCM and a random nonce. A Cipher built
// from a nil key passes values through unchanged.
type Cipher struct {
	gcm cipher.AEAD
}

// NewCipher builds a Cipher from a 32-byte data encryption key.
func NewCipher(dek []byte) (*Cipher, error) {
	if dek == nil {
		return &Cipher{}, nil
	}
	if len(dek) != 32 {
		return nil, errors.New("data encryption key must be 32 bytes")
	}
	block, err := aes.NewCipher(dek)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &Cipher{gcm: gcm}, nil
}

// Enabled reports whether the cipher encrypts.
func (c *Cipher) Enabled() bool {
	return c != nil && c.gcm != nil
}

// Seal encrypts plaintext, prefixing the nonce.
func (c *Cipher) Seal(plaintext []byte) ([]byte, error) {
	if !c.Enabled() {
		return plaintext, nil
	}
	nonce := make([]byte, c.gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	return c.gcm.Seal(nonce, nonce, plaintext, nil), nil
}

// Open decrypts a value produced by Seal.
func (c *Cipher) Open(ciphertext []byte) ([]byte, error) {
	if !c.Enabled() {
		return ciphertext, nil
	}
	nonceSize := c.gcm.NonceSize()
	if len(ciphertext) < nonceSize {
		return nil, errors.New("ciphertext too short")
	}
	nonce, ct := ciphertext[:nonceSize], ciphertext[nonceSize:]
	return c.gcm.Open(nil, nonce, ct, nil)
}
