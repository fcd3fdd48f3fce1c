package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"caseflow-pipeline/internal/config"
	"caseflow-pipeline/internal/models"
	"caseflow-pipeline/internal/pkg/logger"
)

// DocsLookup resolves product documentation for a query. Lookup results
// supplement retrieved fragments; failures degrade to an empty result.
type DocsLookup interface {
	Lookup(ctx context.Context, query string) ([]models.LookupResult, error)
	Close() error
}

// MCPDocsLookup talks to a documentation server over the Model Context
// Protocol streamable HTTP transport. A fresh session is opened per call,
// matching the short-lived request pattern of the lookup endpoint.
type MCPDocsLookup struct {
	client *sdkmcp.Client
	config config.LookupConfig
	logger *logger.Logger
}

func NewMCPDocsLookup(cfg config.LookupConfig, log *logger.Logger) *MCPDocsLookup {
	client := sdkmcp.NewClient(&sdkmcp.Implementation{
		Name:    "caseflow-pipeline",
		Version: "1.0.0",
	}, nil)

	return &MCPDocsLookup{
		client: client,
		config: cfg,
		logger: log,
	}
}

func (lookup *MCPDocsLookup) Lookup(ctx context.Context, query string) ([]models.LookupResult, error) {
	startTime := time.Now()

	callCtx, cancel := context.WithTimeout(ctx, lookup.config.Timeout)
	defer cancel()

	transport := &sdkmcp.StreamableClientTransport{Endpoint: lookup.config.Endpoint}
	session, err := lookup.client.Connect(callCtx, transport, nil)
	if err != nil {
		lookup.logger.LogService("docs_lookup", "connect", time.Since(startTime), nil, err)
		return nil, fmt.Errorf("failed to connect to docs server: %w", err)
	}
	defer session.Close()

	result, err := session.CallTool(callCtx, &sdkmcp.CallToolParams{
		Name:      lookup.config.Tool,
		Arguments: map[string]interface{}{"query": query},
	})
	if err != nil {
		lookup.logger.LogService("docs_lookup", "call_tool", time.Since(startTime), map[string]interface{}{
			"tool": lookup.config.Tool,
		}, err)
		return nil, fmt.Errorf("docs lookup call failed: %w", err)
	}
	if result.IsError {
		return nil, fmt.Errorf("docs lookup tool reported an error for query %q", query)
	}

	results := parseLookupContent(result.Content)

	lookup.logger.LogService("docs_lookup", "call_tool", time.Since(startTime), map[string]interface{}{
		"tool":    lookup.config.Tool,
		"results": len(results),
	}, nil)

	return results, nil
}

// parseLookupContent accepts either a JSON array of documents or plain text
// blocks. Documentation servers differ here, so both shapes are tolerated.
func parseLookupContent(content []sdkmcp.Content) []models.LookupResult {
	var results []models.LookupResult

	for _, item := range content {
		textContent, ok := item.(*sdkmcp.TextContent)
		if !ok {
			continue
		}
		text := strings.TrimSpace(textContent.Text)
		if text == "" {
			continue
		}

		var docs []models.LookupResult
		if err := json.Unmarshal([]byte(text), &docs); err == nil && len(docs) > 0 {
			results = append(results, docs...)
			continue
		}

		results = append(results, models.LookupResult{Content: text})
	}

	return results
}

func (lookup *MCPDocsLookup) Close() error {
	return nil
}

// NoopDocsLookup is used when documentation lookup is disabled.
type NoopDocsLookup struct{}

func (NoopDocsLookup) Lookup(ctx context.Context, query string) ([]models.LookupResult, error) {
	return nil, nil
}

func (NoopDocsLookup) Close() error {
	return nil
}
