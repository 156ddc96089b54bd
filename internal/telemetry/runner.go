package telemetry

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"telemetry-client/internal/models"
)

// FingerprintSource produces the current browser fingerprint
type FingerprintSource interface {
	Generate(ctx context.Context) *models.Fingerprint
}

// AgentSource reports the page's user agent string and any structured hints
type AgentSource interface {
	UserAgent(ctx context.Context) (string, *models.UserAgentData, error)
}

// Step names a stage of the telemetry cycle
type Step string

const (
	StepStatus      Step = "status"
	StepRegister    Step = "register"
	StepRevalidate  Step = "revalidate"
	StepFingerprint Step = "fingerprint"
	StepCheckin     Step = "checkin"
	StepDone        Step = "done"
)

// Report describes how a telemetry cycle ended
type Report struct {
	State       State
	Step        Step
	Registered  bool
	Unchanged   bool
	Fingerprint *models.Fingerprint
	Err         error
}

// OK reports whether the cycle reached the end without error
func (r Report) OK() bool {
	return r.Step == StepDone && r.Err == nil
}

// Runner drives one telemetry cycle: status, register, revalidate,
// fingerprint, checkin. Each step runs only after the previous one succeeded.
type Runner struct {
	client *Client
	fp     FingerprintSource
	agent  AgentSource
	logger zerolog.Logger
}

// NewRunner creates a cycle runner. agent may be nil, in which case the
// checkin carries no user agent.
func NewRunner(client *Client, fp FingerprintSource, agent AgentSource, logger zerolog.Logger) *Runner {
	return &Runner{
		client: client,
		fp:     fp,
		agent:  agent,
		logger: logger.With().Str("component", "runner").Logger(),
	}
}

// Run executes the cycle. Failures are logged and reported, never returned
// or raised to the caller.
func (r *Runner) Run(ctx context.Context) (report Report) {
	defer func() {
		if rec := recover(); rec != nil {
			report.Err = fmt.Errorf("telemetry cycle panicked: %v", rec)
			r.logger.Error().Err(report.Err).Str("step", string(report.Step)).Msg("Telemetry cycle aborted")
		}
		report.State = r.client.State()
	}()

	report.Step = StepStatus
	ok, err := r.client.CheckStatus(ctx)
	if err != nil {
		return r.abort(report, err)
	}

	if !ok {
		report.Step = StepRegister
		if _, err := r.client.Register(ctx); err != nil {
			return r.abort(report, err)
		}
		report.Registered = true

		report.Step = StepRevalidate
		ok, err = r.client.CheckStatus(ctx)
		if err != nil {
			return r.abort(report, err)
		}
		if !ok {
			return r.abort(report, fmt.Errorf("fresh credentials rejected: %w", ErrNotRegistered))
		}
	}

	report.Step = StepFingerprint
	fp := r.fp.Generate(ctx)
	if fp == nil {
		return r.abort(report, fmt.Errorf("fingerprint generation returned nothing"))
	}
	report.Fingerprint = fp

	stored, err := r.client.StoredFingerprint()
	if err != nil {
		return r.abort(report, err)
	}
	if stored == fp.FinalHash {
		r.logger.Info().Str("fingerprint", fp.FinalHash).Msg("Fingerprint unchanged, skipping checkin")
		report.Unchanged = true
		report.Step = StepDone
		return report
	}

	report.Step = StepCheckin
	ua, uad := r.userAgent(ctx)
	if err := r.client.Checkin(ctx, fp.FinalHash, ua, uad); err != nil {
		return r.abort(report, err)
	}
	if err := r.client.StoreFingerprint(fp.FinalHash); err != nil {
		return r.abort(report, err)
	}

	r.logger.Info().Str("fingerprint", fp.FinalHash).Msg("Checked in")
	report.Step = StepDone
	return report
}

func (r *Runner) userAgent(ctx context.Context) (string, *models.UserAgentData) {
	if r.agent == nil {
		return "", nil
	}
	ua, hints, err := r.agent.UserAgent(ctx)
	if err != nil {
		r.logger.Warn().Err(err).Msg("Failed to read user agent")
		return "", nil
	}
	return ua, DeriveUserAgentData(ua, hints)
}

func (r *Runner) abort(report Report, err error) Report {
	report.Err = err
	if IsProtocolError(err, 0) {
		r.logger.Warn().Err(err).Str("step", string(report.Step)).Msg("Telemetry cycle stopped")
	} else {
		r.logger.Error().Err(err).Str("step", string(report.Step)).Msg("Telemetry cycle stopped")
	}
	return report
}
