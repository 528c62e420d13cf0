// Package keys owns the engine's symmetric key material. The key is loaded
// (or generated and persisted) exactly once at startup and injected into the
// cipher and audit signer as immutable configuration; nothing mutates it for
// the process lifetime.
package keys

import (
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"
	"os"

	"github.com/awnumar/memguard"
	"golang.org/x/crypto/pbkdf2"

	dErrors "lexvault/pkg/domain-errors"
)

const (
	// KeySize is the AES-256 key length in bytes.
	KeySize = 32
	// SaltSize is the salt length for passphrase-derived keys.
	SaltSize = 32
	// pbkdf2Iterations follows the OWASP floor for PBKDF2-SHA-256.
	pbkdf2Iterations = 600000
)

// Manager holds key material in a locked buffer so it cannot be swapped to
// disk. Safe for unsynchronized concurrent reads after construction.
type Manager struct {
	buf *memguard.LockedBuffer
}

// Load returns the process key. With an empty passphrase the raw key is read
// from path, generating and persisting a fresh one on first start. With a
// passphrase the key is derived via PBKDF2 over a salt persisted at
// path+".salt" and never written to disk itself. Any load or persist failure
// is fatal: the engine cannot run without its key.
func Load(path, passphrase string) (*Manager, error) {
	var key []byte
	var err error
	if passphrase != "" {
		key, err = deriveKey(path+".salt", passphrase)
	} else {
		key, err = loadOrCreateKey(path)
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeKeyInit, "key initialization failed")
	}
	// NewBufferFromBytes wipes the source slice after copying.
	return &Manager{buf: memguard.NewBufferFromBytes(key)}, nil
}

// Material exposes the key bytes for cipher and signer construction. Callers
// must not retain or mutate the slice.
func (m *Manager) Material() []byte {
	return m.buf.Bytes()
}

// Destroy wipes the key material. Only meaningful at process shutdown.
func (m *Manager) Destroy() {
	m.buf.Destroy()
}

func loadOrCreateKey(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err == nil {
		if len(data) != KeySize {
			return nil, fmt.Errorf("key file %s: expected %d bytes, got %d", path, KeySize, len(data))
		}
		return data, nil
	}
	if !os.IsNotExist(err) {
		return nil, fmt.Errorf("read key file: %w", err)
	}

	key := make([]byte, KeySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	// Persist before first use so a crash cannot leave encrypted data behind
	// with an unrecoverable key.
	if err := os.WriteFile(path, key, 0o600); err != nil {
		return nil, fmt.Errorf("persist key file: %w", err)
	}
	return key, nil
}

func deriveKey(saltPath, passphrase string) ([]byte, error) {
	salt, err := os.ReadFile(saltPath)
	if os.IsNotExist(err) {
		salt = make([]byte, SaltSize)
		if _, err := io.ReadFull(rand.Reader, salt); err != nil {
			return nil, fmt.Errorf("generate salt: %w", err)
		}
		if err := os.WriteFile(saltPath, salt, 0o600); err != nil {
			return nil, fmt.Errorf("persist salt file: %w", err)
		}
	} else if err != nil {
		return nil, fmt.Errorf("read salt file: %w", err)
	} else if len(salt) != SaltSize {
		return nil, fmt.Errorf("salt file %s: expected %d bytes, got %d", saltPath, SaltSize, len(salt))
	}
	return pbkdf2.Key([]byte(passphrase), salt, pbkdf2Iterations, KeySize, sha256.New), nil
}
