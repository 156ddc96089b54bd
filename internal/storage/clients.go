// Package storage - collector client identities and checkins
package storage

import (
	"database/sql"
	"fmt"
	"time"

	"telemetry-client/internal/models"
)

// ClientStore handles client identity database operations
type ClientStore struct {
	db *Database
}

// NewClientStore creates a new ClientStore
func NewClientStore(db *Database) *ClientStore {
	return &ClientStore{db: db}
}

// Create inserts a newly registered client
func (s *ClientStore) Create(id, tokenHash string) (*models.Client, error) {
	now := time.Now().UTC()

	_, err := s.db.db.Exec(`
		INSERT INTO clients (id, token_hash, created_at) VALUES (?, ?, ?)
	`, id, tokenHash, now)
	if err != nil {
		return nil, fmt.Errorf("failed to create client: %w", err)
	}

	return &models.Client{ID: id, TokenHash: tokenHash, CreatedAt: now}, nil
}

// GetByID retrieves a client; it returns nil when the id is unknown
func (s *ClientStore) GetByID(id string) (*models.Client, error) {
	client := &models.Client{}
	var lastCheckin sql.NullTime

	err := s.db.db.QueryRow(`
		SELECT id, token_hash, last_fp, created_at, last_checkin_at
		FROM clients WHERE id = ?
	`, id).Scan(&client.ID, &client.TokenHash, &client.LastFP, &client.CreatedAt, &lastCheckin)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get client: %w", err)
	}

	if lastCheckin.Valid {
		client.LastCheckinAt = lastCheckin.Time
	}
	return client, nil
}

// RecordCheckin stores a fingerprint submission and updates the client's last fingerprint
func (s *ClientStore) RecordCheckin(c *models.Checkin) error {
	now := time.Now().UTC()

	return s.db.Transaction(func(tx *sql.Tx) error {
		result, err := tx.Exec(`
			INSERT INTO checkins (client_id, fp, fpv, version, ua, uad, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, c.ClientID, c.FP, c.FPV, c.Version, c.UA, c.UAD, now)
		if err != nil {
			return fmt.Errorf("failed to insert checkin: %w", err)
		}

		if _, err := tx.Exec(`
			UPDATE clients SET last_fp = ?, last_checkin_at = ? WHERE id = ?
		`, c.FP, now, c.ClientID); err != nil {
			return fmt.Errorf("failed to update client: %w", err)
		}

		if id, err := result.LastInsertId(); err == nil {
			c.ID = id
		}
		c.CreatedAt = now
		return nil
	})
}

// Checkins lists a client's submissions, newest first
func (s *ClientStore) Checkins(clientID string) ([]*models.Checkin, error) {
	rows, err := s.db.db.Query(`
		SELECT id, client_id, fp, fpv, version, ua, uad, created_at
		FROM checkins WHERE client_id = ?
		ORDER BY id DESC
	`, clientID)
	if err != nil {
		return nil, fmt.Errorf("failed to get checkins: %w", err)
	}
	defer rows.Close()

	var checkins []*models.Checkin
	for rows.Next() {
		c := &models.Checkin{}
		if err := rows.Scan(&c.ID, &c.ClientID, &c.FP, &c.FPV, &c.Version, &c.UA, &c.UAD, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan checkin: %w", err)
		}
		checkins = append(checkins, c)
	}

	return checkins, rows.Err()
}

// Count returns the number of registered clients
func (s *ClientStore) Count() (int, error) {
	var count int
	if err := s.db.db.QueryRow(`SELECT COUNT(*) FROM clients`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count clients: %w", err)
	}
	return count, nil
}
