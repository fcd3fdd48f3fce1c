package services

import (
	"fmt"
	"time"

	"caseflow-pipeline/internal/config"
	"caseflow-pipeline/internal/models"
)

// TrustScorer grades a draft against the case it resolves. Scoring is
// deterministic: the same draft, case, policy, and model version always
// produce the same verdict, so a replayed case re-scores identically.
type TrustScorer interface {
	Score(draft *models.Draft, kase *models.Case) (*models.TrustVerdict, error)
	ModelVersion() string
}

type PolicyTrustScorer struct {
	policy       config.TrustPolicy
	modelVersion string
}

func NewPolicyTrustScorer(policy config.TrustPolicy, modelVersion string) (*PolicyTrustScorer, error) {
	if err := policy.Validate(); err != nil {
		return nil, fmt.Errorf("invalid trust policy: %w", err)
	}
	if modelVersion == "" {
		return nil, fmt.Errorf("scorer model version is required")
	}
	return &PolicyTrustScorer{policy: policy, modelVersion: modelVersion}, nil
}

func (scorer *PolicyTrustScorer) ModelVersion() string {
	return scorer.modelVersion
}

func (scorer *PolicyTrustScorer) Score(draft *models.Draft, kase *models.Case) (*models.TrustVerdict, error) {
	if draft == nil {
		return nil, fmt.Errorf("draft is required")
	}
	if kase == nil {
		return nil, fmt.Errorf("case is required")
	}
	if draft.ModelConfidence < 0 || draft.ModelConfidence > 1 {
		return nil, fmt.Errorf("draft confidence %.3f out of range [0,1]", draft.ModelConfidence)
	}

	score := draft.ModelConfidence
	rationale := fmt.Sprintf("model confidence %.2f", draft.ModelConfidence)

	if len(draft.CitedFragmentIDs) > 0 {
		score += scorer.policy.CitationBonus
		rationale += fmt.Sprintf("; cites %d fragments (+%.2f)", len(draft.CitedFragmentIDs), scorer.policy.CitationBonus)
	}
	if draft.Unsupported {
		score -= scorer.policy.UnsupportedPenalty
		rationale += fmt.Sprintf("; no supporting knowledge (-%.2f)", scorer.policy.UnsupportedPenalty)
	}
	score = clamp01(score)

	adjustment := scorer.policy.AdjustmentFor(string(kase.Fields.RiskTier))
	passThreshold := clamp01(scorer.policy.PassThreshold + adjustment)
	blockThreshold := clamp01(scorer.policy.BlockThreshold + adjustment)
	if adjustment != 0 {
		rationale += fmt.Sprintf("; %s tier shifts thresholds by %+.2f", kase.Fields.RiskTier, adjustment)
	}

	var decision models.Decision
	switch {
	case score >= passThreshold:
		decision = models.DecisionPass
		rationale += fmt.Sprintf("; score %.2f meets pass threshold %.2f", score, passThreshold)
	case score >= blockThreshold:
		decision = models.DecisionFlag
		rationale += fmt.Sprintf("; score %.2f below pass threshold %.2f, above block threshold %.2f", score, passThreshold, blockThreshold)
	default:
		decision = models.DecisionBlock
		rationale += fmt.Sprintf("; score %.2f below block threshold %.2f", score, blockThreshold)
	}

	return &models.TrustVerdict{
		DraftID:        draft.ID,
		Score:          score,
		Decision:       decision,
		Rationale:      rationale,
		PassThreshold:  passThreshold,
		BlockThreshold: blockThreshold,
		ModelVersion:   scorer.modelVersion,
		ScoredAt:       time.Now().UTC(),
	}, nil
}

func clamp01(value float64) float64 {
	if value < 0 {
		return 0
	}
	if value > 1 {
		return 1
	}
	return value
}
