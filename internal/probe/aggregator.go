package probe

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"telemetry-client/internal/models"
)

// Generator runs every registered probe through the verifier and combines
// the per-probe hashes into a fingerprint.
type Generator struct {
	registry *Registry
	verifier *Verifier
	logger   zerolog.Logger
}

// NewGenerator creates a fingerprint generator
func NewGenerator(registry *Registry, verifier *Verifier, logger zerolog.Logger) *Generator {
	return &Generator{
		registry: registry,
		verifier: verifier,
		logger:   logger.With().Str("component", "fingerprint").Logger(),
	}
}

// Generate evaluates the probes one at a time and returns the fingerprint.
// Probe failures degrade individual components but never abort generation.
func (g *Generator) Generate(ctx context.Context) *models.Fingerprint {
	fp := &models.Fingerprint{
		Components: make(map[string]models.ProbeResult, g.registry.Len()),
	}

	for _, p := range g.registry.Probes() {
		fp.Components[p.Name()] = g.result(p.Name(), g.verifier.Verify(ctx, p))
	}

	hashes := make([]string, 0, len(fp.Components))
	for _, r := range fp.Components {
		hashes = append(hashes, r.Hash)
	}
	fp.FinalHash = CombineHashes(hashes)

	g.logger.Debug().
		Int("probes", len(fp.Components)).
		Str("hash", fp.FinalHash).
		Msg("Fingerprint generated")

	return fp
}

func (g *Generator) result(name string, out Outcome) models.ProbeResult {
	if out.Status.IsSentinel() {
		return models.ProbeResult{Raw: out.Status, Hash: models.UnavailableHash, Status: out.Status}
	}

	h, err := HashValue(out.Value)
	if err != nil {
		g.logger.Debug().Err(err).Str("probe", name).Msg("Failed to hash probe value")
		return models.ProbeResult{Raw: models.ProbeStatusError, Hash: models.UnavailableHash, Status: models.ProbeStatusError}
	}
	return models.ProbeResult{Raw: out.Value, Hash: h, Status: models.ProbeStatusSuccess}
}

// HashValue returns the hex SHA-256 of v's canonical string form. Strings
// are hashed as-is; everything else is hashed as compact JSON with sorted
// object keys.
func HashValue(v any) (string, error) {
	if s, ok := v.(string); ok {
		return hashString(s), nil
	}
	s, err := CanonicalJSON(v)
	if err != nil {
		return "", err
	}
	return hashString(s), nil
}

// CanonicalJSON encodes v compactly without HTML escaping
func CanonicalJSON(v any) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return "", err
	}
	return strings.TrimSuffix(buf.String(), "\n"), nil
}

// CombineHashes sorts the component hashes, concatenates and hashes them
func CombineHashes(hashes []string) string {
	sorted := make([]string, len(hashes))
	copy(sorted, hashes)
	sort.Strings(sorted)
	return hashString(strings.Join(sorted, ""))
}

func hashString(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}
