package probe

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"telemetry-client/internal/models"
)

// sequenceProbe returns the queued outcomes in order, repeating the last one
type sequenceProbe struct {
	name    string
	results []Outcome
	errs    []error
	calls   int
}

func (s *sequenceProbe) Name() string { return s.name }

func (s *sequenceProbe) Collect(ctx context.Context) (Outcome, error) {
	i := s.calls
	s.calls++
	if i < len(s.errs) && s.errs[i] != nil {
		return Outcome{}, s.errs[i]
	}
	if i >= len(s.results) {
		i = len(s.results) - 1
	}
	return s.results[i], nil
}

func newTestVerifier(attempts int) *Verifier {
	return NewVerifier(attempts, 0, zerolog.Nop())
}

func TestVerifyStableProbeReturnsValueUnchanged(t *testing.T) {
	p := &sequenceProbe{name: "stable", results: []Outcome{Value("abc")}}

	out := newTestVerifier(3).Verify(context.Background(), p)

	assert.Equal(t, Value("abc"), out)
	assert.Equal(t, 3, p.calls)
}

func TestVerifyComparesStructurally(t *testing.T) {
	calls := 0
	p := NewFunc("structural", func(ctx context.Context) (Outcome, error) {
		calls++
		// fresh map and slice on every call
		return Value(map[string]any{"w": []any{"1920", "1080"}, "dpr": "1"}), nil
	})

	out := newTestVerifier(3).Verify(context.Background(), p)

	assert.Equal(t, models.ProbeStatusSuccess, out.Status)
	assert.Equal(t, 3, calls)
}

func TestVerifyDivergenceIsBlocked(t *testing.T) {
	cases := map[string][]Outcome{
		"second differs": {Value("a"), Value("b"), Value("a")},
		"third differs":  {Value("a"), Value("a"), Value("c")},
		"status flips":   {Value("a"), NotSupported},
	}

	for name, results := range cases {
		t.Run(name, func(t *testing.T) {
			p := &sequenceProbe{name: name, results: results}
			assert.Equal(t, Blocked, newTestVerifier(3).Verify(context.Background(), p))
		})
	}
}

func TestVerifyBlockedFirstSampleShortCircuits(t *testing.T) {
	p := &sequenceProbe{name: "blocked", results: []Outcome{Blocked, Value("x")}}

	out := newTestVerifier(3).Verify(context.Background(), p)

	assert.Equal(t, Blocked, out)
	assert.Equal(t, 1, p.calls)
}

func TestVerifyNotSupportedIsStable(t *testing.T) {
	p := &sequenceProbe{name: "absent", results: []Outcome{NotSupported}}

	assert.Equal(t, NotSupported, newTestVerifier(3).Verify(context.Background(), p))
	assert.Equal(t, 3, p.calls)
}

func TestVerifyErrorsBecomeErrorSentinel(t *testing.T) {
	boom := errors.New("boom")

	t.Run("first sample", func(t *testing.T) {
		p := &sequenceProbe{name: "err", results: []Outcome{Value("a")}, errs: []error{boom}}
		assert.Equal(t, Failed, newTestVerifier(3).Verify(context.Background(), p))
		assert.Equal(t, 1, p.calls)
	})

	t.Run("later sample", func(t *testing.T) {
		p := &sequenceProbe{name: "err", results: []Outcome{Value("a")}, errs: []error{nil, nil, boom}}
		assert.Equal(t, Failed, newTestVerifier(3).Verify(context.Background(), p))
	})

	t.Run("panic", func(t *testing.T) {
		p := NewFunc("panics", func(ctx context.Context) (Outcome, error) {
			panic("unexpected")
		})
		assert.Equal(t, Failed, newTestVerifier(3).Verify(context.Background(), p))
	})
}

func TestVerifyHonoursAttempts(t *testing.T) {
	p := &sequenceProbe{name: "five", results: []Outcome{Value(1)}}

	newTestVerifier(5).Verify(context.Background(), p)
	assert.Equal(t, 5, p.calls)

	v := NewVerifier(0, -1, zerolog.Nop())
	assert.Equal(t, DefaultAttempts, v.Attempts())
}

func TestVerifyWaitsBetweenSamples(t *testing.T) {
	v := newTestVerifier(3)
	var waits int
	v.wait = func(ctx context.Context, d time.Duration) error {
		waits++
		return nil
	}

	p := &sequenceProbe{name: "stable", results: []Outcome{Value("a")}}
	v.Verify(context.Background(), p)

	assert.Equal(t, 2, waits)
}

func TestVerifyCancelledContextYieldsError(t *testing.T) {
	v := NewVerifier(3, DefaultDelay, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := &sequenceProbe{name: "stable", results: []Outcome{Value("a")}}
	out := v.Verify(ctx, p)

	require.Equal(t, Failed, out)
	assert.Equal(t, 1, p.calls)
}
