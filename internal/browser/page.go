package browser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-rod/rod"
	"github.com/rs/zerolog"

	"telemetry-client/internal/models"
)

// ErrNotString is returned when a probe script resolves to a non-string value
var ErrNotString = errors.New("script did not resolve to a string")

// Runtime evaluates probe scripts in one page. Calls are serialized by rod's
// CDP session; the probe generator also runs them one at a time.
type Runtime struct {
	page   *rod.Page
	logger zerolog.Logger
}

// NewRuntime wraps page
func NewRuntime(page *rod.Page, logger zerolog.Logger) *Runtime {
	return &Runtime{
		page:   page,
		logger: logger.With().Str("component", "runtime").Logger(),
	}
}

// Evaluate runs script, a JavaScript function, and returns the string it resolves to
func (r *Runtime) Evaluate(ctx context.Context, script string) (string, error) {
	res, err := r.page.Context(ctx).Eval(script)
	if err != nil {
		return "", fmt.Errorf("failed to evaluate script: %w", err)
	}
	if res.Value.Nil() {
		return "", ErrNotString
	}
	return res.Value.Str(), nil
}

const agentScript = `() => JSON.stringify({
	ua: navigator.userAgent,
	uad: navigator.userAgentData ? {
		brands: navigator.userAgentData.brands,
		mobile: navigator.userAgentData.mobile,
		platform: navigator.userAgentData.platform
	} : null
})`

// UserAgent returns navigator.userAgent and the low-entropy userAgentData hints
func (r *Runtime) UserAgent(ctx context.Context) (string, *models.UserAgentData, error) {
	text, err := r.Evaluate(ctx, agentScript)
	if err != nil {
		return "", nil, err
	}
	return parseAgent(text)
}

// Close closes the page
func (r *Runtime) Close() error {
	return r.page.Close()
}

type agentPayload struct {
	UA  string                `json:"ua"`
	UAD *models.UserAgentData `json:"uad"`
}

func parseAgent(text string) (string, *models.UserAgentData, error) {
	var p agentPayload
	if err := json.Unmarshal([]byte(text), &p); err != nil {
		return "", nil, fmt.Errorf("failed to decode user agent: %w", err)
	}
	return p.UA, p.UAD, nil
}
