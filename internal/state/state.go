package state

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/phozos/phozos-client/internal/tokenstore"
	bolt "go.etcd.io/bbolt"
)

const (
	// stateDirPerm is the permission mode for the state directory (~/.phozos/).
	stateDirPerm = fs.FileMode(0o700)

	// stateFilePerm is the permission mode for the state database file.
	stateFilePerm = fs.FileMode(0o600)

	// stateOpenTimeout is the maximum time to wait for the bolt database lock.
	stateOpenTimeout = 5 * time.Second
)

var appBucket = []byte("app")

// State wraps a bbolt database holding the client's durable key/value
// entries. It implements tokenstore.Persister.
type State struct {
	db *bolt.DB
}

var _ tokenstore.Persister = (*State)(nil)

// LoadAt opens a state database at the given path, creating it and its
// parent directory if they do not exist. The app bucket is created on open.
func LoadAt(path string) (*State, error) {
	if err := os.MkdirAll(filepath.Dir(path), stateDirPerm); err != nil {
		return nil, fmt.Errorf("creating state directory: %w", err)
	}

	db, err := bolt.Open(path, stateFilePerm, &bolt.Options{Timeout: stateOpenTimeout})
	if err != nil {
		return nil, fmt.Errorf("opening state db: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(appBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing state db: %w", err)
	}

	return &State{db: db}, nil
}

// Close closes the database.
func (s *State) Close() error {
	return s.db.Close()
}

// Get returns the value stored under key, or tokenstore.ErrNotFound.
func (s *State) Get(key string) (string, error) {
	var (
		value string
		found bool
	)

	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(appBucket).Get([]byte(key))
		if v != nil {
			value = string(v)
			found = true
		}

		return nil
	})
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", key, err)
	}

	if !found {
		return "", tokenstore.ErrNotFound
	}

	return value, nil
}

// Set stores value under key, replacing any previous value.
func (s *State) Set(key, value string) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(appBucket).Put([]byte(key), []byte(value))
	})
	if err != nil {
		return fmt.Errorf("writing %s: %w", key, err)
	}

	return nil
}

// Delete removes key. Deleting a missing key is not an error.
func (s *State) Delete(key string) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(appBucket).Delete([]byte(key))
	})
	if err != nil {
		return fmt.Errorf("deleting %s: %w", key, err)
	}

	return nil
}
