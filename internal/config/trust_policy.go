package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// TrustPolicy holds the thresholds and feature weights used by the trust scorer.
// The values are business configuration and are never hard-coded in the scorer.
type TrustPolicy struct {
	PassThreshold  float64 `yaml:"pass_threshold"`
	BlockThreshold float64 `yaml:"block_threshold"`

	// RiskTierAdjustment shifts both thresholds for a risk tier. Negative values
	// widen the FLAG band for sensitive tiers so borderline drafts reach a human
	// instead of being auto-blocked or auto-passed.
	RiskTierAdjustment map[string]float64 `yaml:"risk_tier_adjustment"`

	CitationBonus      float64 `yaml:"citation_bonus"`
	UnsupportedPenalty float64 `yaml:"unsupported_penalty"`
}

func DefaultTrustPolicy() TrustPolicy {
	return TrustPolicy{
		PassThreshold:  0.80,
		BlockThreshold: 0.50,
		RiskTierAdjustment: map[string]float64{
			"general":    0.0,
			"billing":    -0.10,
			"legal":      -0.15,
			"compliance": -0.15,
		},
		CitationBonus:      0.05,
		UnsupportedPenalty: 0.15,
	}
}

// LoadTrustPolicy reads the policy file, falling back to defaults when no file
// is configured. Values missing from the file keep their defaults.
func LoadTrustPolicy(path string) (TrustPolicy, error) {
	policy := DefaultTrustPolicy()
	if path == "" {
		return policy, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return policy, fmt.Errorf("read trust policy %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &policy); err != nil {
		return policy, fmt.Errorf("parse trust policy %s: %w", path, err)
	}

	if err := policy.Validate(); err != nil {
		return policy, fmt.Errorf("invalid trust policy %s: %w", path, err)
	}

	return policy, nil
}

func (p TrustPolicy) Validate() error {
	if p.PassThreshold < 0 || p.PassThreshold > 1 {
		return fmt.Errorf("pass_threshold %.2f outside [0,1]", p.PassThreshold)
	}
	if p.BlockThreshold < 0 || p.BlockThreshold > 1 {
		return fmt.Errorf("block_threshold %.2f outside [0,1]", p.BlockThreshold)
	}
	if p.BlockThreshold > p.PassThreshold {
		return fmt.Errorf("block_threshold %.2f above pass_threshold %.2f", p.BlockThreshold, p.PassThreshold)
	}
	return nil
}

// AdjustmentFor returns the threshold delta for a risk tier, zero when the tier
// has no entry in the policy.
func (p TrustPolicy) AdjustmentFor(tier string) float64 {
	if p.RiskTierAdjustment == nil {
		return 0
	}
	return p.RiskTierAdjustment[tier]
}
