// Package escalate routes evaluation work along the cheapest adequate
// path: local rules, cached responses, the fast model tier, and the
// precise model tier, in that order.
package escalate

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/carmatch/moderation-cli/internal/model"
)

// TierPolicy maps consensus attempt indexes to model tiers and carries
// the escalation thresholds. Attempt 1 is the normal resolution path;
// later attempts bypass the cache and go straight to their tier.
type TierPolicy struct {
	// MaxAttempts caps the consensus loop (including the first attempt).
	MaxAttempts int `yaml:"max_attempts"`

	// ConfidenceThreshold gates the fast→precise escalation on the first
	// attempt: a fast verdict below it is re-asked at the precise tier.
	ConfidenceThreshold float64 `yaml:"confidence_threshold"`

	// Attempts overrides the tier for specific attempt indexes.
	Attempts []AttemptTier `yaml:"attempts"`
}

// AttemptTier pins one attempt index to a tier in the policy file.
type AttemptTier struct {
	Attempt int    `yaml:"attempt"`
	Tier    string `yaml:"tier"` // "fast" or "precise"
}

// DefaultTierPolicy alternates tiers by attempt parity: odd attempts
// use the precise tier, even attempts the fast tier. Disagreeing models
// break ties; agreeing models end the loop early.
func DefaultTierPolicy() TierPolicy {
	return TierPolicy{
		MaxAttempts:         4,
		ConfidenceThreshold: 0.8,
	}
}

// LoadTierPolicy reads a tier policy from a YAML file. Missing values
// fall back to the compiled-in default.
func LoadTierPolicy(path string) (TierPolicy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return TierPolicy{}, eris.Wrapf(err, "escalate: read policy %s", path)
	}

	// The YAML has a top-level "escalation" key.
	var wrapper struct {
		Escalation TierPolicy `yaml:"escalation"`
	}
	if err := yaml.Unmarshal(data, &wrapper); err != nil {
		return TierPolicy{}, eris.Wrap(err, "escalate: parse policy")
	}

	cfg := wrapper.Escalation
	def := DefaultTierPolicy()
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.ConfidenceThreshold <= 0 {
		cfg.ConfidenceThreshold = def.ConfidenceThreshold
	}
	for _, at := range cfg.Attempts {
		if at.Tier != "fast" && at.Tier != "precise" {
			return TierPolicy{}, eris.Errorf("escalate: unknown tier %q for attempt %d", at.Tier, at.Attempt)
		}
	}
	return cfg, nil
}

// TierFor returns the tier for an attempt index (1-based). Explicit
// policy entries win; otherwise odd attempts are precise, even fast.
func (p TierPolicy) TierFor(attempt int) model.Tier {
	for _, at := range p.Attempts {
		if at.Attempt == attempt {
			if at.Tier == "precise" {
				return model.TierPrecise
			}
			return model.TierFast
		}
	}
	if attempt%2 == 1 {
		return model.TierPrecise
	}
	return model.TierFast
}
