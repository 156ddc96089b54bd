package collector

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"telemetry-client/internal/models"
)

const rateWindow = time.Hour

type limitKey struct {
	clientID string
	action   models.ActionType
}

// RateLimiter throttles client writes per action type over a sliding hour
type RateLimiter struct {
	logger  zerolog.Logger
	mu      sync.Mutex
	limit   int
	actions map[limitKey][]time.Time
	now     func() time.Time
}

// NewRateLimiter creates a limiter allowing limit writes per client and action each hour
func NewRateLimiter(limit int, logger zerolog.Logger) *RateLimiter {
	return &RateLimiter{
		logger:  logger.With().Str("module", "ratelimit").Logger(),
		limit:   limit,
		actions: make(map[limitKey][]time.Time),
		now:     time.Now,
	}
}

// Allow records the action and reports whether it fits in the window
func (r *RateLimiter) Allow(clientID string, action models.ActionType) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := limitKey{clientID: clientID, action: action}
	now := r.now()
	r.cleanOldEntries(key, now)

	if len(r.actions[key]) >= r.limit {
		r.logger.Debug().
			Str("clientID", clientID).
			Str("action", string(action)).
			Int("limit", r.limit).
			Msg("Hourly limit reached")
		return false
	}

	r.actions[key] = append(r.actions[key], now)
	return true
}

// Remaining returns how many more actions the client may perform this hour
func (r *RateLimiter) Remaining(clientID string, action models.ActionType) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := limitKey{clientID: clientID, action: action}
	r.cleanOldEntries(key, r.now())
	return r.limit - len(r.actions[key])
}

// cleanOldEntries drops timestamps that left the window
func (r *RateLimiter) cleanOldEntries(key limitKey, now time.Time) {
	cutoff := now.Add(-rateWindow)

	times := r.actions[key]
	filtered := times[:0]
	for _, t := range times {
		if t.After(cutoff) {
			filtered = append(filtered, t)
		}
	}

	if len(filtered) == 0 {
		delete(r.actions, key)
		return
	}
	r.actions[key] = filtered
}
