package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"caseflow-pipeline/internal/models"
)

const fieldExtractionPrompt = `You extract structured case metadata from a raw customer support transcript.

Respond with a JSON object only:
{"customer_id": "", "customer_name": "", "organization": "", "category": "", "risk_tier": "general|billing|legal|compliance"}

Use "general" for risk_tier unless the transcript clearly concerns billing disputes, legal matters, or regulatory compliance. Leave fields you cannot determine empty.`

// ExtractCaseFields asks the model for structured metadata when the submitter
// provided only a raw transcript.
func ExtractCaseFields(ctx context.Context, generation GenerationClient, transcript string) (models.CaseFields, error) {
	raw, err := generation.Complete(ctx, fieldExtractionPrompt, transcript)
	if err != nil {
		return models.CaseFields{}, err
	}

	text := strings.TrimSpace(raw)
	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```json")
		text = strings.TrimPrefix(text, "```")
		text = strings.TrimSuffix(text, "```")
		text = strings.TrimSpace(text)
	}

	var fields models.CaseFields
	if err := json.Unmarshal([]byte(text), &fields); err != nil {
		return models.CaseFields{}, fmt.Errorf("unmarshal extracted fields: %w", err)
	}

	switch fields.RiskTier {
	case models.RiskTierGeneral, models.RiskTierBilling, models.RiskTierLegal, models.RiskTierCompliance:
	default:
		fields.RiskTier = models.RiskTierGeneral
	}

	return fields, nil
}
