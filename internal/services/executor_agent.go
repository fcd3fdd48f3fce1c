package services

import (
	"context"
	"time"

	"caseflow-pipeline/internal/models"
	"caseflow-pipeline/internal/pkg/logger"
)

// ExecutorAgent verifies a draft and renders the trust verdict that gates the
// rest of the pipeline.
type ExecutorAgent interface {
	Verify(ctx context.Context, draft *models.Draft, kase *models.Case) (*models.TrustVerdict, error)
}

type ScoringExecutorAgent struct {
	scorer TrustScorer
	logger *logger.Logger
}

func NewScoringExecutorAgent(scorer TrustScorer, log *logger.Logger) *ScoringExecutorAgent {
	return &ScoringExecutorAgent{scorer: scorer, logger: log}
}

func (agent *ScoringExecutorAgent) Verify(ctx context.Context, draft *models.Draft, kase *models.Case) (*models.TrustVerdict, error) {
	startTime := time.Now()

	verdict, err := agent.scorer.Score(draft, kase)
	if err != nil {
		agent.logger.LogCase(kase.ID, "executor-agent", "verdict_scored", time.Since(startTime), err)
		return nil, models.NewScoringFault(err)
	}

	agent.logger.LogCase(kase.ID, "executor-agent", "verdict_scored", time.Since(startTime), nil)
	return verdict, nil
}
