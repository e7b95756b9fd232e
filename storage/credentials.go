package storage

import (
	"crypto/rand"
	"database/sql"
	"fmt"
	"io"
	"os"
	"time"

	"golang.org/x/crypto/nacl/secretbox"
)

// Credentials are encrypted at rest with a machine-local secretbox key so
// a copied database file does not leak API keys. The key lives next to
// the database and is generated on first use.

const credentialKeySize = 32
const credentialNonceSize = 24

type credentialCipher struct {
	key [credentialKeySize]byte
}

// loadCredentialCipher reads the key file at keyPath, creating it with a
// fresh random key when absent.
func loadCredentialCipher(keyPath string) (*credentialCipher, error) {
	c := &credentialCipher{}

	data, err := os.ReadFile(keyPath)
	if err == nil {
		if len(data) != credentialKeySize {
			return nil, fmt.Errorf("credential key file %s has wrong size %d", keyPath, len(data))
		}
		copy(c.key[:], data)
		return c, nil
	}
	if !os.IsNotExist(err) {
		return nil, err
	}

	if _, err := io.ReadFull(rand.Reader, c.key[:]); err != nil {
		return nil, fmt.Errorf("generate credential key: %w", err)
	}
	if err := os.WriteFile(keyPath, c.key[:], 0600); err != nil {
		return nil, fmt.Errorf("write credential key: %w", err)
	}
	return c, nil
}

// seal encrypts value with a random nonce prefixed to the box.
func (c *credentialCipher) seal(value string) ([]byte, error) {
	var nonce [credentialNonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	return secretbox.Seal(nonce[:], []byte(value), &nonce, &c.key), nil
}

// open decrypts a nonce-prefixed box.
func (c *credentialCipher) open(box []byte) (string, error) {
	if len(box) < credentialNonceSize {
		return "", fmt.Errorf("credential box too short")
	}
	var nonce [credentialNonceSize]byte
	copy(nonce[:], box[:credentialNonceSize])
	plain, ok := secretbox.Open(nil, box[credentialNonceSize:], &nonce, &c.key)
	if !ok {
		return "", fmt.Errorf("credential box failed to open")
	}
	return string(plain), nil
}

// SetCredential stores an API key under a name, replacing any previous value.
func (s *Store) SetCredential(name, value string) error {
	box, err := s.creds.seal(value)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(
		`INSERT INTO credentials (name, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(name) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		name, box, time.Now(),
	)
	if err != nil {
		return fmt.Errorf("store credential: %w", err)
	}
	return nil
}

// GetCredential returns the API key stored under a name, or "" when unset.
func (s *Store) GetCredential(name string) string {
	var box []byte
	err := s.db.QueryRow(`SELECT value FROM credentials WHERE name = ?`, name).Scan(&box)
	if err == sql.ErrNoRows {
		return ""
	}
	if err != nil {
		return ""
	}
	value, err := s.creds.open(box)
	if err != nil {
		return ""
	}
	return value
}

// HasCredential reports whether a non-empty key is stored under a name.
func (s *Store) HasCredential(name string) bool {
	return s.GetCredential(name) != ""
}

// ClearCredential removes the API key stored under a name.
func (s *Store) ClearCredential(name string) error {
	_, err := s.db.Exec(`DELETE FROM credentials WHERE name = ?`, name)
	if err != nil {
		return fmt.Errorf("clear credential: %w", err)
	}
	return nil
}

// SeedCredential stores value under name only when nothing is stored yet.
// Used for keys provisioned through the environment; a user-set key
// always wins.
func (s *Store) SeedCredential(name, value string) error {
	if value == "" || s.HasCredential(name) {
		return nil
	}
	return s.SetCredential(name, value)
}
