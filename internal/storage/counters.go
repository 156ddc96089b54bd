// Package storage - per-URL engagement counters
package storage

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"telemetry-client/internal/models"
)

// CounterStore handles view/like events and their per-URL totals
type CounterStore struct {
	db *Database
}

// NewCounterStore creates a new CounterStore
func NewCounterStore(db *Database) *CounterStore {
	return &CounterStore{db: db}
}

// RecordView stores a view event and increments the URL's view count
func (s *CounterStore) RecordView(clientID, url string) error {
	now := time.Now().UTC()

	return s.db.Transaction(func(tx *sql.Tx) error {
		if _, err := tx.Exec(`
			INSERT INTO events (client_id, url, kind, created_at) VALUES (?, ?, 'view', ?)
		`, clientID, url, now); err != nil {
			return fmt.Errorf("failed to insert view: %w", err)
		}
		return bump(tx, url, "view_count", now)
	})
}

// RecordLike stores a like event. A client liking the same URL again is a
// no-op; the returned bool reports whether the count changed.
func (s *CounterStore) RecordLike(clientID, url string) (bool, error) {
	now := time.Now().UTC()
	var added bool

	err := s.db.Transaction(func(tx *sql.Tx) error {
		result, err := tx.Exec(`
			INSERT OR IGNORE INTO events (client_id, url, kind, created_at) VALUES (?, ?, 'like', ?)
		`, clientID, url, now)
		if err != nil {
			return fmt.Errorf("failed to insert like: %w", err)
		}

		n, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to read like result: %w", err)
		}
		if n == 0 {
			return nil
		}
		added = true
		return bump(tx, url, "like_count", now)
	})

	return added, err
}

// bump increments one counter column, creating the row on first use
func bump(tx *sql.Tx, url, column string, now time.Time) error {
	_, err := tx.Exec(`
		INSERT INTO counters (url, `+column+`, updated_at) VALUES (?, 1, ?)
		ON CONFLICT(url) DO UPDATE SET `+column+` = `+column+` + 1, updated_at = excluded.updated_at
	`, url, now)
	if err != nil {
		return fmt.Errorf("failed to increment %s: %w", column, err)
	}
	return nil
}

// Get retrieves the counters for url; it returns nil when the URL is unknown
func (s *CounterStore) Get(url string) (*models.CounterRecord, error) {
	rec := &models.CounterRecord{}

	err := s.db.db.QueryRow(`
		SELECT url, view_count, like_count FROM counters WHERE url = ?
	`, url).Scan(&rec.URL, &rec.ViewCount, &rec.LikeCount)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get counters: %w", err)
	}

	return rec, nil
}

// GetMany returns one record per requested URL, in request order.
// URLs never seen get zero counts.
func (s *CounterStore) GetMany(urls []string) ([]models.CounterRecord, error) {
	if len(urls) == 0 {
		return []models.CounterRecord{}, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(urls)), ",")
	args := make([]any, len(urls))
	for i, u := range urls {
		args[i] = u
	}

	rows, err := s.db.db.Query(`
		SELECT url, view_count, like_count FROM counters WHERE url IN (`+placeholders+`)
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get counters: %w", err)
	}
	defer rows.Close()

	found := make(map[string]models.CounterRecord, len(urls))
	for rows.Next() {
		var rec models.CounterRecord
		if err := rows.Scan(&rec.URL, &rec.ViewCount, &rec.LikeCount); err != nil {
			return nil, fmt.Errorf("failed to scan counters: %w", err)
		}
		found[rec.URL] = rec
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]models.CounterRecord, len(urls))
	for i, u := range urls {
		if rec, ok := found[u]; ok {
			out[i] = rec
		} else {
			out[i] = models.CounterRecord{URL: u}
		}
	}
	return out, nil
}
