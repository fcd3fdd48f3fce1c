package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"caseflow-pipeline/internal/models"
	"caseflow-pipeline/internal/pkg/logger"
)

// AnalysisRequest carries everything the analysis agent may ground a draft on.
// RejectionRationale is non-empty only on re-analysis after a flagged verdict.
type AnalysisRequest struct {
	Case               *models.Case
	Fragments          []models.KnowledgeFragment
	LookupResults      []models.LookupResult
	RejectionRationale string
}

// AnalysisAgent turns a case plus retrieved knowledge into a draft resolution.
type AnalysisAgent interface {
	Analyze(ctx context.Context, request *AnalysisRequest) (*models.Draft, error)
}

type ModelAnalysisAgent struct {
	generation GenerationClient
	logger     *logger.Logger
}

func NewModelAnalysisAgent(generation GenerationClient, log *logger.Logger) *ModelAnalysisAgent {
	return &ModelAnalysisAgent{generation: generation, logger: log}
}

const analysisSystemPrompt = `You are a customer support resolution specialist. Write a clear, complete resolution for the customer's issue, grounded strictly in the knowledge provided. If the knowledge does not cover the issue, say what the customer should do next instead of inventing details.

Respond with a JSON object only:
{"resolution": "<the full resolution text>", "confidence": <0.0-1.0 how well the knowledge supports this resolution>}`

// analysisResponse is the shape the model is asked to produce.
type analysisResponse struct {
	Resolution string  `json:"resolution"`
	Confidence float64 `json:"confidence"`
}

func (agent *ModelAnalysisAgent) Analyze(ctx context.Context, request *AnalysisRequest) (*models.Draft, error) {
	startTime := time.Now()

	prompt := agent.buildPrompt(request)

	raw, err := agent.generation.Complete(ctx, analysisSystemPrompt, prompt)
	if err != nil {
		return nil, err
	}

	draft := models.NewDraft(request.Case.ID, request.Case.Revision)
	draft.InputSummary = prompt
	draft.GeneratedBy = "analysis-agent"

	parsed, parseErr := parseAnalysisResponse(raw)
	if parseErr != nil {
		// Model ignored the JSON contract; keep the text, flag low confidence.
		agent.logger.Warn("Analysis response was not valid JSON, using raw text",
			"case_id", request.Case.ID, "error", parseErr.Error())
		draft.Text = strings.TrimSpace(raw)
		draft.ModelConfidence = 0.5
	} else {
		draft.Text = strings.TrimSpace(parsed.Resolution)
		draft.ModelConfidence = clamp01(parsed.Confidence)
	}

	if draft.Text == "" {
		return nil, models.NewGenerationFault(fmt.Errorf("analysis produced an empty resolution"))
	}

	for _, fragment := range request.Fragments {
		draft.CitedFragmentIDs = append(draft.CitedFragmentIDs, fragment.FragmentID())
	}
	draft.Unsupported = len(request.Fragments) == 0

	agent.logger.LogCase(request.Case.ID, "analysis-agent", "draft_produced", time.Since(startTime), nil)

	return draft, nil
}

func (agent *ModelAnalysisAgent) buildPrompt(request *AnalysisRequest) string {
	var builder strings.Builder

	kase := request.Case
	builder.WriteString("CASE\n")
	fmt.Fprintf(&builder, "Customer: %s (%s)\n", kase.Fields.CustomerName, kase.Fields.Organization)
	fmt.Fprintf(&builder, "Category: %s\n", kase.Fields.Category)
	fmt.Fprintf(&builder, "Risk tier: %s\n", kase.Fields.RiskTier)
	fmt.Fprintf(&builder, "Transcript:\n%s\n", kase.RawTranscript)

	if len(request.Fragments) > 0 {
		builder.WriteString("\nRETRIEVED KNOWLEDGE\n")
		for _, fragment := range request.Fragments {
			fmt.Fprintf(&builder, "[%s] (relevance %.2f)\n%s\n", fragment.FragmentID(), fragment.Relevance, fragment.Text)
		}
	} else {
		builder.WriteString("\nRETRIEVED KNOWLEDGE\n(none available)\n")
	}

	if len(request.LookupResults) > 0 {
		builder.WriteString("\nDOCUMENTATION\n")
		for _, doc := range request.LookupResults {
			if doc.Title != "" {
				fmt.Fprintf(&builder, "%s\n", doc.Title)
			}
			fmt.Fprintf(&builder, "%s\n", doc.Content)
			if doc.URL != "" {
				fmt.Fprintf(&builder, "Source: %s\n", doc.URL)
			}
		}
	}

	if request.RejectionRationale != "" {
		builder.WriteString("\nPREVIOUS ATTEMPT REJECTED\n")
		fmt.Fprintf(&builder, "A prior resolution was rejected: %s\nAddress the concerns above in this attempt.\n", request.RejectionRationale)
	}

	return builder.String()
}

// parseAnalysisResponse tolerates markdown code fences around the JSON body,
// which chat models add despite instructions.
func parseAnalysisResponse(raw string) (*analysisResponse, error) {
	text := strings.TrimSpace(raw)
	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```json")
		text = strings.TrimPrefix(text, "```")
		text = strings.TrimSuffix(text, "```")
		text = strings.TrimSpace(text)
	}

	var parsed analysisResponse
	if err := json.Unmarshal([]byte(text), &parsed); err != nil {
		return nil, fmt.Errorf("unmarshal analysis response: %w", err)
	}
	if parsed.Resolution == "" {
		return nil, fmt.Errorf("analysis response missing resolution")
	}
	return &parsed, nil
}
