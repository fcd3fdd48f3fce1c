package logger_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"testing"

	"caseflow-pipeline/internal/pkg/logger"
)

func newBufferedLogger(t *testing.T) (*logger.Logger, *bytes.Buffer) {
	t.Helper()
	log, err := logger.New(logger.LogConfig{Level: "debug", Format: "json", Output: "stdout"})
	if err != nil {
		t.Fatalf("Failed to create logger: %v", err)
	}
	buffer := &bytes.Buffer{}
	log.SetOutput(buffer)
	return log, buffer
}

func TestVariadicPairsBecomeStructuredFields(t *testing.T) {
	log, buffer := newBufferedLogger(t)

	log.Warn("Delivery retry failed", "case_id", "case-7", "attempt", 2, "error", fmt.Errorf("smtp relay down"))

	var record map[string]interface{}
	if err := json.Unmarshal(buffer.Bytes(), &record); err != nil {
		t.Fatalf("Log line is not valid JSON: %v", err)
	}
	if record["msg"] != "Delivery retry failed" {
		t.Errorf("Expected untouched message, got %q", record["msg"])
	}
	if record["case_id"] != "case-7" {
		t.Errorf("Expected case_id field, got %v", record["case_id"])
	}
	if record["attempt"] != float64(2) {
		t.Errorf("Expected attempt field, got %v", record["attempt"])
	}
	if record["error"] != "smtp relay down" {
		t.Errorf("Expected error field, got %v", record["error"])
	}
}

func TestMessageWithoutPairsStaysBare(t *testing.T) {
	log, buffer := newBufferedLogger(t)

	log.Info("Server started")

	var record map[string]interface{}
	if err := json.Unmarshal(buffer.Bytes(), &record); err != nil {
		t.Fatalf("Log line is not valid JSON: %v", err)
	}
	if record["msg"] != "Server started" {
		t.Errorf("Expected bare message, got %q", record["msg"])
	}
}
