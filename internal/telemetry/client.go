// Package telemetry implements the client side of the collection protocol:
// identity registration, fingerprint checkin and engagement counters.
package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"telemetry-client/internal/config"
	"telemetry-client/internal/models"
	"telemetry-client/internal/storage"
)

// Persisted state keys
const (
	KeyClientID    = "telemetry_client_id"
	KeyClientToken = "telemetry_client_token"
	KeyFingerprint = "telemetry_client_fingerprint"
)

// Protocol paths
const (
	pathStatus    = "/client/status"
	pathRegister  = "/client/register"
	pathCheckin   = "/client/checkin"
	pathView      = "/client/view"
	pathLike      = "/client/like"
	pathViewCount = "/view/count"
	pathLikeCount = "/like/count"
	pathBulk      = "/counts/bulk"
)

const maxResponseBytes = 1 << 20

// State is the client's position in the identity lifecycle
type State string

const (
	StateUnregistered State = "unregistered"
	StateRegistered   State = "registered"
	StateCheckedIn    State = "checked_in"
)

// Client talks to the collection service on behalf of one persisted identity
type Client struct {
	cfg    *config.TelemetryConfig
	base   string
	http   *http.Client
	store  storage.KV
	logger zerolog.Logger

	mu    sync.Mutex
	state State
}

// NewClient creates a telemetry client persisting its identity in store
func NewClient(cfg *config.TelemetryConfig, store storage.KV, logger zerolog.Logger) *Client {
	return &Client{
		cfg:    cfg,
		base:   strings.TrimRight(cfg.BaseURL, "/"),
		http:   &http.Client{Timeout: cfg.RequestTimeout()},
		store:  store,
		logger: logger.With().Str("component", "telemetry").Logger(),
		state:  StateUnregistered,
	}
}

// State returns the current lifecycle state
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Client) setState(s State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != s {
		c.logger.Debug().Str("from", string(c.state)).Str("to", string(s)).Msg("State change")
	}
	c.state = s
}

// Identity returns the persisted credentials; the zero value when absent
func (c *Client) Identity() (models.ClientIdentity, error) {
	id, _, err := c.store.Get(KeyClientID)
	if err != nil {
		return models.ClientIdentity{}, fmt.Errorf("failed to read client id: %w", err)
	}
	token, _, err := c.store.Get(KeyClientToken)
	if err != nil {
		return models.ClientIdentity{}, fmt.Errorf("failed to read client token: %w", err)
	}
	return models.ClientIdentity{ID: id, Token: token}, nil
}

// StoredFingerprint returns the last successfully checked-in hash
func (c *Client) StoredFingerprint() (string, error) {
	fp, _, err := c.store.Get(KeyFingerprint)
	if err != nil {
		return "", fmt.Errorf("failed to read stored fingerprint: %w", err)
	}
	return fp, nil
}

// StoreFingerprint records hash as the last successfully checked-in fingerprint
func (c *Client) StoreFingerprint(hash string) error {
	if err := c.store.Set(KeyFingerprint, hash); err != nil {
		return fmt.Errorf("failed to persist fingerprint: %w", err)
	}
	return nil
}

// Reset forgets the persisted identity and fingerprint
func (c *Client) Reset() error {
	for _, key := range []string{KeyClientID, KeyClientToken, KeyFingerprint} {
		if err := c.store.Delete(key); err != nil {
			return err
		}
	}
	c.setState(StateUnregistered)
	return nil
}

// do sends a JSON request and returns the status code and response body
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body any) (int, []byte, error) {
	target := c.base + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, nil, fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("failed to read response: %w", err)
	}

	c.logger.Debug().
		Str("method", method).
		Str("path", path).
		Int("status", resp.StatusCode).
		Msg("Request completed")

	return resp.StatusCode, data, nil
}

func decode(op string, data []byte, out any) error {
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%s: failed to decode response: %w", op, err)
	}
	return nil
}
