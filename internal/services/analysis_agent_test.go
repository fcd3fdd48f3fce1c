package services_test

import (
	"context"
	"strings"
	"testing"

	"caseflow-pipeline/internal/models"
	"caseflow-pipeline/internal/services"
)

func analysisFixture(t *testing.T, response string) (*services.ModelAnalysisAgent, *services.AnalysisRequest) {
	t.Helper()
	agent := services.NewModelAnalysisAgent(&fakeGeneration{response: response}, testLogger(t))
	request := &services.AnalysisRequest{
		Case: models.NewCase("case-1", "I cannot log in to my account.", models.CaseFields{
			CustomerName: "Sam Rivera",
			Category:     "account",
			RiskTier:     models.RiskTierGeneral,
		}, 2),
		Fragments: []models.KnowledgeFragment{
			{SourceID: "kb-7", Offset: 2, Text: "Reset passwords from the account page.", Relevance: 0.85},
		},
	}
	return agent, request
}

func TestAnalyzeParsesModelJSON(t *testing.T) {
	agent, request := analysisFixture(t, `{"resolution": "Reset your password from the account page.", "confidence": 0.82}`)

	draft, err := agent.Analyze(context.Background(), request)
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}

	if draft.Text != "Reset your password from the account page." {
		t.Errorf("Unexpected draft text: %q", draft.Text)
	}
	if draft.ModelConfidence != 0.82 {
		t.Errorf("Expected confidence 0.82, got %.2f", draft.ModelConfidence)
	}
	if len(draft.CitedFragmentIDs) != 1 || draft.CitedFragmentIDs[0] != "kb-7#2" {
		t.Errorf("Expected citation kb-7#2, got %v", draft.CitedFragmentIDs)
	}
	if draft.Unsupported {
		t.Error("Draft with fragments should not be unsupported")
	}
	if draft.InputSummary == "" {
		t.Error("Expected the prompt recorded as input summary")
	}
}

func TestAnalyzeStripsCodeFences(t *testing.T) {
	agent, request := analysisFixture(t, "```json\n{\"resolution\": \"Use the reset link.\", \"confidence\": 0.7}\n```")

	draft, err := agent.Analyze(context.Background(), request)
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}
	if draft.Text != "Use the reset link." {
		t.Errorf("Unexpected draft text: %q", draft.Text)
	}
	if draft.ModelConfidence != 0.7 {
		t.Errorf("Expected confidence 0.7, got %.2f", draft.ModelConfidence)
	}
}

func TestAnalyzeFallsBackToRawText(t *testing.T) {
	agent, request := analysisFixture(t, "Just reset your password, no JSON here.")

	draft, err := agent.Analyze(context.Background(), request)
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}
	if draft.Text != "Just reset your password, no JSON here." {
		t.Errorf("Expected raw text fallback, got %q", draft.Text)
	}
	if draft.ModelConfidence != 0.5 {
		t.Errorf("Expected fallback confidence 0.5, got %.2f", draft.ModelConfidence)
	}
}

func TestAnalyzeMarksUnsupportedWithoutFragments(t *testing.T) {
	agent, request := analysisFixture(t, `{"resolution": "Try again later.", "confidence": 0.6}`)
	request.Fragments = nil

	draft, err := agent.Analyze(context.Background(), request)
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}
	if !draft.Unsupported {
		t.Error("Expected unsupported draft with no fragments")
	}
	if len(draft.CitedFragmentIDs) != 0 {
		t.Errorf("Expected no citations, got %v", draft.CitedFragmentIDs)
	}
}

func TestAnalyzePromptIncludesRejectionRationale(t *testing.T) {
	agent, request := analysisFixture(t, `{"resolution": "Improved answer.", "confidence": 0.8}`)
	request.RejectionRationale = "score 0.40 below pass threshold"

	draft, err := agent.Analyze(context.Background(), request)
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}
	if !strings.Contains(draft.InputSummary, "score 0.40 below pass threshold") {
		t.Error("Expected rejection rationale in the prompt")
	}
	if !strings.Contains(draft.InputSummary, "PREVIOUS ATTEMPT REJECTED") {
		t.Error("Expected rejection section header in the prompt")
	}
}

func TestExtractCaseFields(t *testing.T) {
	generation := &fakeGeneration{response: `{"customer_id": "cust-9", "customer_name": "Ana", "category": "billing", "risk_tier": "billing"}`}

	fields, err := services.ExtractCaseFields(context.Background(), generation, "I was double charged.")
	if err != nil {
		t.Fatalf("ExtractCaseFields failed: %v", err)
	}
	if fields.CustomerID != "cust-9" || fields.RiskTier != models.RiskTierBilling {
		t.Errorf("Unexpected fields: %+v", fields)
	}
}

func TestExtractCaseFieldsNormalizesBadTier(t *testing.T) {
	generation := &fakeGeneration{response: `{"customer_id": "cust-9", "risk_tier": "urgent"}`}

	fields, err := services.ExtractCaseFields(context.Background(), generation, "hello")
	if err != nil {
		t.Fatalf("ExtractCaseFields failed: %v", err)
	}
	if fields.RiskTier != models.RiskTierGeneral {
		t.Errorf("Expected unknown tier normalized to general, got %s", fields.RiskTier)
	}
}
