package probe

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"telemetry-client/internal/models"
)

func constProbe(name string, out Outcome) Probe {
	return NewFunc(name, func(ctx context.Context) (Outcome, error) { return out, nil })
}

func newTestGenerator(t *testing.T, probes ...Probe) *Generator {
	t.Helper()
	reg, err := NewRegistry(probes...)
	require.NoError(t, err)
	return NewGenerator(reg, newTestVerifier(3), zerolog.Nop())
}

func sha(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

func TestGenerateHashesEachComponent(t *testing.T) {
	g := newTestGenerator(t,
		constProbe("str", Value("hello")),
		constProbe("obj", Value(map[string]any{"b": json.Number("2"), "a": "<x>"})),
		constProbe("absent", NotSupported),
	)

	fp := g.Generate(context.Background())
	require.Len(t, fp.Components, 3)

	str := fp.Components["str"]
	assert.Equal(t, models.ProbeStatusSuccess, str.Status)
	assert.Equal(t, sha("hello"), str.Hash)

	obj := fp.Components["obj"]
	assert.Equal(t, sha(`{"a":"<x>","b":2}`), obj.Hash)

	absent := fp.Components["absent"]
	assert.Equal(t, models.ProbeStatusNotSupported, absent.Status)
	assert.Equal(t, models.ProbeStatusNotSupported, absent.Raw)
	assert.Equal(t, models.UnavailableHash, absent.Hash)

	want := CombineHashes([]string{sha("hello"), sha(`{"a":"<x>","b":2}`), models.UnavailableHash})
	assert.Equal(t, want, fp.FinalHash)
}

func TestGenerateIsOrderIndependent(t *testing.T) {
	a := constProbe("a", Value("one"))
	b := constProbe("b", Value([]any{"two"}))
	c := constProbe("c", Blocked)

	first := newTestGenerator(t, a, b, c).Generate(context.Background())
	second := newTestGenerator(t, c, a, b).Generate(context.Background())
	third := newTestGenerator(t, b, c, a).Generate(context.Background())

	assert.Equal(t, first.FinalHash, second.FinalHash)
	assert.Equal(t, first.FinalHash, third.FinalHash)
}

func TestGenerateIsDeterministic(t *testing.T) {
	g := newTestGenerator(t,
		constProbe("screen", Value(map[string]any{"width": json.Number("1920")})),
		constProbe("math", Value([]any{"0.1", "0.2"})),
	)

	assert.Equal(t, g.Generate(context.Background()).FinalHash, g.Generate(context.Background()).FinalHash)
}

func TestGenerateSentinelsShiftTheAggregate(t *testing.T) {
	open := newTestGenerator(t,
		constProbe("a", Value("one")),
		constProbe("canvas", Value("data:image/png;base64,AAAA")),
	).Generate(context.Background())

	blocked := newTestGenerator(t,
		constProbe("a", Value("one")),
		constProbe("canvas", Blocked),
	).Generate(context.Background())

	assert.NotEqual(t, open.FinalHash, blocked.FinalHash)
	assert.Equal(t, models.UnavailableHash, blocked.Components["canvas"].Hash)
}

func TestGenerateDivergentProbeIsBlocked(t *testing.T) {
	n := 0
	noisy := NewFunc("noisy", func(ctx context.Context) (Outcome, error) {
		n++
		return Value(n), nil
	})

	fp := newTestGenerator(t, noisy).Generate(context.Background())

	assert.Equal(t, models.ProbeStatusBlocked, fp.Components["noisy"].Status)
	assert.Equal(t, models.UnavailableHash, fp.Components["noisy"].Hash)
}

func TestGenerateUnhashableValueIsError(t *testing.T) {
	fp := newTestGenerator(t, constProbe("chan", Value(make(chan int)))).Generate(context.Background())

	assert.Equal(t, models.ProbeStatusError, fp.Components["chan"].Status)
	assert.Equal(t, models.UnavailableHash, fp.Components["chan"].Hash)
}

func TestCanonicalJSONSortsKeysWithoutEscaping(t *testing.T) {
	s, err := CanonicalJSON(map[string]any{"z": 1, "a": "a&b", "m": []any{true, nil}})
	require.NoError(t, err)
	assert.Equal(t, `{"a":"a&b","m":[true,null],"z":1}`, s)
}

func TestCombineHashesDoesNotMutateInput(t *testing.T) {
	in := []string{"b", "a", "c"}
	assert.Equal(t, sha("abc"), CombineHashes(in))
	assert.Equal(t, []string{"b", "a", "c"}, in)
}
