package tokenstore

import (
	"errors"
	"fmt"
	"sync"

	"github.com/zalando/go-keyring"
)

// MemoryPersister keeps values for the life of the process.
type MemoryPersister struct {
	mu     sync.Mutex
	values map[string]string
}

// NewMemoryPersister returns an empty MemoryPersister.
func NewMemoryPersister() *MemoryPersister {
	return &MemoryPersister{values: make(map[string]string)}
}

func (m *MemoryPersister) Get(key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	v, ok := m.values[key]
	if !ok {
		return "", ErrNotFound
	}

	return v, nil
}

func (m *MemoryPersister) Set(key, value string) error {
	m.mu.Lock()
	m.values[key] = value
	m.mu.Unlock()

	return nil
}

func (m *MemoryPersister) Delete(key string) error {
	m.mu.Lock()
	delete(m.values, key)
	m.mu.Unlock()

	return nil
}

// KeyringPersister stores values in the OS keyring under Service, using
// the key as the keyring user.
type KeyringPersister struct {
	Service string
}

func (k KeyringPersister) Get(key string) (string, error) {
	v, err := keyring.Get(k.Service, key)
	if errors.Is(err, keyring.ErrNotFound) {
		return "", ErrNotFound
	}

	if err != nil {
		return "", fmt.Errorf("reading keyring: %w", err)
	}

	return v, nil
}

func (k KeyringPersister) Set(key, value string) error {
	if err := keyring.Set(k.Service, key, value); err != nil {
		return fmt.Errorf("writing keyring: %w", err)
	}

	return nil
}

func (k KeyringPersister) Delete(key string) error {
	err := keyring.Delete(k.Service, key)
	if err == nil || errors.Is(err, keyring.ErrNotFound) {
		return nil
	}

	return fmt.Errorf("deleting from keyring: %w", err)
}
