// Package storage - persisted client-side key/value state
package storage

import (
	"database/sql"
	"fmt"
	"sync"
	"time"
)

// KV is the persisted client-side state. Get reports ok=false for missing keys.
type KV interface {
	Get(key string) (value string, ok bool, err error)
	Set(key, value string) error
	SetMany(values map[string]string) error
	Delete(key string) error
	Clear() error
}

// KVStore is a KV backed by the client_state table
type KVStore struct {
	db *Database
}

// NewKVStore creates a new KVStore
func NewKVStore(db *Database) *KVStore {
	return &KVStore{db: db}
}

// Get retrieves the value stored under key
func (s *KVStore) Get(key string) (string, bool, error) {
	var value string
	err := s.db.db.QueryRow(`SELECT value FROM client_state WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get %s: %w", key, err)
	}
	return value, true, nil
}

// Set stores value under key, overwriting any prior value
func (s *KVStore) Set(key, value string) error {
	_, err := s.db.db.Exec(`
		INSERT INTO client_state (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, key, value, time.Now())
	if err != nil {
		return fmt.Errorf("failed to set %s: %w", key, err)
	}
	return nil
}

// SetMany stores every pair in one transaction; on error nothing is written
func (s *KVStore) SetMany(values map[string]string) error {
	now := time.Now()
	return s.db.Transaction(func(tx *sql.Tx) error {
		for key, value := range values {
			_, err := tx.Exec(`
				INSERT INTO client_state (key, value, updated_at) VALUES (?, ?, ?)
				ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
			`, key, value, now)
			if err != nil {
				return fmt.Errorf("failed to set %s: %w", key, err)
			}
		}
		return nil
	})
}

// Delete removes key; deleting a missing key is not an error
func (s *KVStore) Delete(key string) error {
	if _, err := s.db.db.Exec(`DELETE FROM client_state WHERE key = ?`, key); err != nil {
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}
	return nil
}

// Clear removes every key
func (s *KVStore) Clear() error {
	if _, err := s.db.db.Exec(`DELETE FROM client_state`); err != nil {
		return fmt.Errorf("failed to clear client state: %w", err)
	}
	return nil
}

// MemoryKV is an in-process KV
type MemoryKV struct {
	mu   sync.Mutex
	data map[string]string
}

// NewMemoryKV creates an empty MemoryKV
func NewMemoryKV() *MemoryKV {
	return &MemoryKV{data: make(map[string]string)}
}

func (m *MemoryKV) Get(key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *MemoryKV) Set(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func (m *MemoryKV) SetMany(values map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, v := range values {
		m.data[k] = v
	}
	return nil
}

func (m *MemoryKV) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

func (m *MemoryKV) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data = make(map[string]string)
	return nil
}
