// Package probe implements the fingerprint engine: environment probes, the
// consistency verifier that classifies each probe, and the aggregator that
// folds verified results into one fingerprint hash.
package probe

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"

	"telemetry-client/internal/models"
)

// Outcome is what a single probe invocation produced: either a raw,
// JSON-compatible value (Status == Success) or a sentinel status.
type Outcome struct {
	Value  any
	Status models.ProbeStatus
}

// Value wraps a raw probe value
func Value(v any) Outcome {
	return Outcome{Value: v, Status: models.ProbeStatusSuccess}
}

// Sentinel builds a non-value outcome
func Sentinel(s models.ProbeStatus) Outcome {
	return Outcome{Status: s}
}

var (
	Blocked      = Sentinel(models.ProbeStatusBlocked)
	Failed       = Sentinel(models.ProbeStatusError)
	NotSupported = Sentinel(models.ProbeStatusNotSupported)
)

// Equal compares two outcomes structurally
func (o Outcome) Equal(other Outcome) bool {
	if o.Status != other.Status {
		return false
	}
	return reflect.DeepEqual(o.Value, other.Value)
}

// Probe inspects one aspect of the environment
type Probe interface {
	Name() string
	Collect(ctx context.Context) (Outcome, error)
}

// Func adapts a plain function to the Probe interface
type Func struct {
	name string
	fn   func(ctx context.Context) (Outcome, error)
}

// NewFunc creates a probe backed by fn
func NewFunc(name string, fn func(ctx context.Context) (Outcome, error)) *Func {
	return &Func{name: name, fn: fn}
}

func (f *Func) Name() string { return f.name }

func (f *Func) Collect(ctx context.Context) (Outcome, error) {
	return f.fn(ctx)
}

// Evaluator runs a JavaScript function in the page hosting the probes and
// returns the string it resolves to.
type Evaluator interface {
	Evaluate(ctx context.Context, script string) (string, error)
}

// ErrScriptFailed is returned when a probe script throws inside the page
var ErrScriptFailed = errors.New("probe script failed")

// ScriptProbe is a probe whose body is a JavaScript async arrow function.
// The body may return the in-scope markers Blocked or NotSupported.
type ScriptProbe struct {
	name string
	body string
	eval Evaluator
}

// NewScriptProbe creates a probe evaluating body through eval
func NewScriptProbe(name, body string, eval Evaluator) *ScriptProbe {
	return &ScriptProbe{name: name, body: body, eval: eval}
}

func (p *ScriptProbe) Name() string { return p.name }

// Script returns the full harness-wrapped source sent to the evaluator
func (p *ScriptProbe) Script() string {
	return wrapScript(p.body)
}

// Collect evaluates the probe script and decodes its envelope
func (p *ScriptProbe) Collect(ctx context.Context) (Outcome, error) {
	text, err := p.eval.Evaluate(ctx, p.Script())
	if err != nil {
		return Outcome{}, fmt.Errorf("failed to evaluate probe %s: %w", p.name, err)
	}
	return decodeEnvelope(p.name, text)
}

// envelope is the JSON shape produced by the script harness
type envelope struct {
	V json.RawMessage `json:"v"`
	S string          `json:"s"`
	M string          `json:"m"`
}

func decodeEnvelope(name, text string) (Outcome, error) {
	var env envelope
	if err := json.Unmarshal([]byte(text), &env); err != nil {
		return Outcome{}, fmt.Errorf("failed to decode probe %s result: %w", name, err)
	}

	switch models.ProbeStatus(env.S) {
	case "":
	case models.ProbeStatusBlocked:
		return Blocked, nil
	case models.ProbeStatusNotSupported:
		return NotSupported, nil
	case models.ProbeStatusError:
		return Outcome{}, fmt.Errorf("%w: %s: %s", ErrScriptFailed, name, env.M)
	default:
		return Outcome{}, fmt.Errorf("probe %s returned unknown marker %q", name, env.S)
	}

	if len(env.V) == 0 {
		return Value(nil), nil
	}

	// UseNumber keeps the page's number formatting intact for hashing
	dec := json.NewDecoder(bytes.NewReader(env.V))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return Outcome{}, fmt.Errorf("failed to decode probe %s value: %w", name, err)
	}
	return Value(v), nil
}

const scriptHarness = `async () => {
	const MARK = "__telemetry_sentinel__";
	const Blocked = { [MARK]: "Blocked" };
	const NotSupported = { [MARK]: "NotSupported" };
	try {
		const v = await (%s)();
		if (v === Blocked || v === NotSupported) {
			return JSON.stringify({ s: v[MARK] });
		}
		return JSON.stringify({ v: v === undefined ? null : v });
	} catch (e) {
		return JSON.stringify({ s: "Error", m: String((e && e.message) || e) });
	}
}`

func wrapScript(body string) string {
	return fmt.Sprintf(scriptHarness, body)
}
