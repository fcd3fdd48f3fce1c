package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sony/gobreaker"

	"caseflow-pipeline/internal/config"
	"caseflow-pipeline/internal/models"
	"caseflow-pipeline/internal/pkg/logger"
)

// KnowledgeRetriever queries the external document index. Calls are
// idempotent-safe: identical inputs may differ only through index freshness.
// An empty result is valid, not an error.
type KnowledgeRetriever interface {
	Retrieve(ctx context.Context, query string, topK int) ([]models.KnowledgeFragment, error)
	HealthCheck(ctx context.Context) error
}

type IndexRetriever struct {
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker
	config     config.RetrievalConfig
	logger     *logger.Logger
}

type indexSearchRequest struct {
	Query string `json:"query"`
	TopK  int    `json:"top_k"`
}

type indexSearchResponse struct {
	Results []struct {
		SourceID  string  `json:"source_id"`
		Offset    int     `json:"offset"`
		Text      string  `json:"text"`
		Relevance float64 `json:"relevance"`
	} `json:"results"`
}

func NewIndexRetriever(cfg config.RetrievalConfig, log *logger.Logger) *IndexRetriever {
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "document-index",
		Timeout: cfg.BreakerOpenFor,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.BreakerFailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("Document index breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
		},
	})

	return &IndexRetriever{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		breaker:    breaker,
		config:     cfg,
		logger:     log,
	}
}

func (retriever *IndexRetriever) Retrieve(ctx context.Context, query string, topK int) ([]models.KnowledgeFragment, error) {
	startTime := time.Now()

	if topK <= 0 {
		topK = retriever.config.TopK
	}

	result, err := retriever.breaker.Execute(func() (interface{}, error) {
		return retriever.search(ctx, query, topK)
	})
	if err != nil {
		retriever.logger.LogService("document_index", "retrieve", time.Since(startTime), map[string]interface{}{
			"query_length": len(query),
			"top_k":        topK,
		}, err)
		return nil, models.NewRetrievalUnavailable(err)
	}

	fragments := result.([]models.KnowledgeFragment)

	retriever.logger.LogService("document_index", "retrieve", time.Since(startTime), map[string]interface{}{
		"query_length": len(query),
		"top_k":        topK,
		"fragments":    len(fragments),
	}, nil)

	return fragments, nil
}

func (retriever *IndexRetriever) search(ctx context.Context, query string, topK int) ([]models.KnowledgeFragment, error) {
	payload, err := json.Marshal(indexSearchRequest{Query: query, TopK: topK})
	if err != nil {
		return nil, fmt.Errorf("marshal search request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, retriever.config.IndexURL+"/search", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build search request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if retriever.config.APIKey != "" {
		req.Header.Set("api-key", retriever.config.APIKey)
	}

	resp, err := retriever.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("document index request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, fmt.Errorf("document index returned %d: %s", resp.StatusCode, string(body))
	}

	var searchResponse indexSearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&searchResponse); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	retrievedAt := time.Now().UTC()
	fragments := make([]models.KnowledgeFragment, 0, len(searchResponse.Results))
	for _, result := range searchResponse.Results {
		fragments = append(fragments, models.KnowledgeFragment{
			SourceID:    result.SourceID,
			Offset:      result.Offset,
			Text:        result.Text,
			Relevance:   result.Relevance,
			RetrievedAt: retrievedAt,
		})
	}

	return fragments, nil
}

func (retriever *IndexRetriever) HealthCheck(ctx context.Context) error {
	if retriever.config.IndexURL == "" {
		return fmt.Errorf("document index URL not configured")
	}
	if retriever.breaker.State() == gobreaker.StateOpen {
		return fmt.Errorf("document index breaker open")
	}
	return nil
}
