package collector

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"

	"telemetry-client/internal/models"
)

const tokenBytes = 32

// newToken returns a random hex client token
func newToken() (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// hashToken returns the stored form of a token
func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// authenticate returns the client owning id when token matches, nil otherwise
func (s *Service) authenticate(id, token string) (*models.Client, error) {
	if id == "" || token == "" {
		return nil, nil
	}

	client, err := s.clients.GetByID(id)
	if err != nil || client == nil {
		return nil, err
	}

	if subtle.ConstantTimeCompare([]byte(hashToken(token)), []byte(client.TokenHash)) != 1 {
		return nil, nil
	}
	return client, nil
}
