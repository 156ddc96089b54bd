package probe

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

const (
	DefaultAttempts = 3
	DefaultDelay    = 20 * time.Millisecond
)

// Verifier samples a probe repeatedly and classifies it as stable, blocked
// or erroring. Any divergence between samples yields Blocked.
type Verifier struct {
	attempts int
	delay    time.Duration
	wait     func(ctx context.Context, d time.Duration) error
	logger   zerolog.Logger
}

// NewVerifier creates a verifier taking attempts samples spaced by delay
func NewVerifier(attempts int, delay time.Duration, logger zerolog.Logger) *Verifier {
	if attempts < 1 {
		attempts = DefaultAttempts
	}
	if delay < 0 {
		delay = DefaultDelay
	}
	return &Verifier{
		attempts: attempts,
		delay:    delay,
		wait:     waitContext,
		logger:   logger.With().Str("module", "verifier").Logger(),
	}
}

// Attempts returns the number of samples taken for a stable probe
func (v *Verifier) Attempts() int {
	return v.attempts
}

// Verify runs p and returns its stable outcome or a sentinel
func (v *Verifier) Verify(ctx context.Context, p Probe) Outcome {
	log := v.logger.With().Str("probe", p.Name()).Logger()

	first, err := v.sample(ctx, p)
	if err != nil {
		log.Debug().Err(err).Msg("Probe failed")
		return Failed
	}
	if first.Status == Blocked.Status {
		log.Debug().Msg("Probe reported interference")
		return Blocked
	}

	for i := 1; i < v.attempts; i++ {
		if err := v.wait(ctx, v.delay); err != nil {
			log.Debug().Err(err).Msg("Verification interrupted")
			return Failed
		}

		next, err := v.sample(ctx, p)
		if err != nil {
			log.Debug().Err(err).Int("sample", i+1).Msg("Probe failed")
			return Failed
		}
		if !first.Equal(next) {
			log.Debug().Int("sample", i+1).Msg("Probe output diverged")
			return Blocked
		}
	}

	return first
}

// sample invokes the probe once, converting panics into errors
func (v *Verifier) sample(ctx context.Context, p Probe) (out Outcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("probe %s panicked: %v", p.Name(), r)
		}
	}()
	return p.Collect(ctx)
}

// waitContext pauses for d or until ctx is done
func waitContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
