// Package state persists per-account discovery results so repeated
// CLI runs do not refetch the user's structure just to find the
// device serial number.
package state

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

const (
	// stateDirPerm is the permission mode for the cache directory.
	stateDirPerm = fs.FileMode(0o700)

	// stateFilePerm is the permission mode for the cache database file.
	stateFilePerm = fs.FileMode(0o600)

	// stateOpenTimeout is the maximum time to wait for the bolt database lock.
	stateOpenTimeout = 5 * time.Second
)

var discoveryBucket = []byte("discovery")

// Discovery is what a structure lookup resolved for one account: the
// user id and the serial of the first device. Token pairs are never
// stored here; they live only in the in-process session.
type Discovery struct {
	UserID       string    `json:"user_id"`
	SerialNumber string    `json:"serial_number"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Store is a bbolt-backed cache keyed by account.
type Store struct {
	db *bolt.DB
}

// Open opens (creating if needed) the cache database under dir.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, stateDirPerm); err != nil {
		return nil, fmt.Errorf("creating cache directory: %w", err)
	}

	path := filepath.Join(dir, "state.db")
	db, err := bolt.Open(path, stateFilePerm, &bolt.Options{Timeout: stateOpenTimeout})
	if err != nil {
		return nil, fmt.Errorf("opening cache database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(discoveryBucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initializing cache database: %w", err)
	}

	return &Store{db: db}, nil
}

// Close releases the database file lock.
func (s *Store) Close() error {
	return s.db.Close()
}

// accountKey returns the SHA-256 hex digest of an account email.
// Used as the bbolt key so raw addresses are not stored on disk.
func accountKey(email string) []byte {
	h := sha256.Sum256([]byte(email))
	dst := make([]byte, hex.EncodedLen(len(h)))
	hex.Encode(dst, h[:])

	return dst
}

// Discovery returns the cached discovery for an account, with ok
// reporting whether one was present.
func (s *Store) Discovery(email string) (Discovery, bool, error) {
	var (
		d  Discovery
		ok bool
	)

	err := s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(discoveryBucket).Get(accountKey(email))
		if raw == nil {
			return nil
		}

		if err := json.Unmarshal(raw, &d); err != nil {
			return fmt.Errorf("decoding cached discovery: %w", err)
		}

		ok = true
		return nil
	})
	if err != nil {
		return Discovery{}, false, err
	}

	return d, ok, nil
}

// PutDiscovery stores the discovery for an account, replacing any
// previous entry.
func (s *Store) PutDiscovery(email string, d Discovery) error {
	raw, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("encoding discovery: %w", err)
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(discoveryBucket).Put(accountKey(email), raw)
	})
}

// DeleteDiscovery removes the cached discovery for an account.
// Deleting a missing entry is not an error.
func (s *Store) DeleteDiscovery(email string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(discoveryBucket).Delete(accountKey(email))
	})
}
