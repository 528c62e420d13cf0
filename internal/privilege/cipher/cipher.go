// Package cipher provides authenticated encryption for privileged payloads:
// AES-256-GCM, output laid out as nonce||ciphertext||tag. Encryption draws a
// fresh random nonce per call, so equal plaintexts never produce equal
// ciphertexts; decryption authenticates, so tampering or a key mismatch fails
// loudly instead of yielding garbage.
package cipher

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"
	"io"

	dErrors "lexvault/pkg/domain-errors"
)

// NonceSize is the AES-GCM nonce length (96 bits).
const NonceSize = 12

// Cipher seals and opens privileged payloads. Calls are pure and CPU-bound;
// the zero shared mutable state makes concurrent use safe without locks.
type Cipher struct {
	aead cipher.AEAD
}

// New builds a Cipher from 32-byte key material supplied by the key manager.
func New(key []byte) (*Cipher, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeKeyInit, "create AES cipher")
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeKeyInit, "create GCM cipher")
	}
	return &Cipher{aead: aead}, nil
}

// Encrypt seals plaintext under a fresh random nonce.
func (c *Cipher) Encrypt(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, NonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeEncryption, "generate nonce")
	}
	return c.aead.Seal(nonce, nonce, plaintext, nil), nil
}

// Decrypt opens nonce||ciphertext, failing with a decryption error on
// truncated input, tampering, corruption or a key mismatch.
func (c *Cipher) Decrypt(ciphertext []byte) ([]byte, error) {
	if len(ciphertext) < NonceSize {
		return nil, dErrors.New(dErrors.CodeDecryption, fmt.Sprintf("ciphertext too short: %d bytes", len(ciphertext)))
	}
	nonce, sealed := ciphertext[:NonceSize], ciphertext[NonceSize:]
	plaintext, err := c.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeDecryption, "authentication failed")
	}
	return plaintext, nil
}
