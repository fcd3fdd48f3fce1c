package models_test

import (
	"errors"
	"testing"

	"caseflow-pipeline/internal/models"
)

func TestNewCaseDefaults(t *testing.T) {
	kase := models.NewCase("", "help me", models.CaseFields{}, 2)

	if kase.ID == "" {
		t.Error("Expected a generated case id")
	}
	if kase.State != models.CaseStateIngested {
		t.Errorf("Expected INGESTED, got %s", kase.State)
	}
	if kase.Fields.RiskTier != models.RiskTierGeneral {
		t.Errorf("Expected general risk tier default, got %s", kase.Fields.RiskTier)
	}
	if kase.Revision != 0 {
		t.Errorf("Expected revision 0, got %d", kase.Revision)
	}
	if kase.RetryBudget != 2 {
		t.Errorf("Expected retry budget 2, got %d", kase.RetryBudget)
	}
}

func TestNewCaseKeepsProvidedID(t *testing.T) {
	kase := models.NewCase("case-42", "help", models.CaseFields{RiskTier: models.RiskTierLegal}, 1)

	if kase.ID != "case-42" {
		t.Errorf("Expected provided id, got %s", kase.ID)
	}
	if kase.Fields.RiskTier != models.RiskTierLegal {
		t.Errorf("Expected legal tier preserved, got %s", kase.Fields.RiskTier)
	}
}

func TestTerminalStates(t *testing.T) {
	tests := []struct {
		state    models.CaseState
		terminal bool
	}{
		{models.CaseStateIngested, false},
		{models.CaseStateAnalyzing, false},
		{models.CaseStateVerifying, false},
		{models.CaseStateNotifying, false},
		{models.CaseStateClosed, true},
		{models.CaseStateEscalated, true},
		{models.CaseStateCancelled, true},
	}

	for _, test := range tests {
		kase := models.NewCase("", "x", models.CaseFields{}, 0)
		kase.State = test.state
		if kase.IsTerminal() != test.terminal {
			t.Errorf("State %s: expected terminal=%t", test.state, test.terminal)
		}
	}
}

func TestMarkClosedSetsResolutionAndTimestamp(t *testing.T) {
	kase := models.NewCase("", "x", models.CaseFields{}, 0)
	resolution := &models.Resolution{CaseID: kase.ID, FinalText: "done"}

	kase.MarkClosed(resolution)

	if !kase.IsClosed() {
		t.Errorf("Expected CLOSED, got %s", kase.State)
	}
	if kase.ClosedAt == nil {
		t.Error("Expected ClosedAt to be set")
	}
	if kase.Resolution != resolution {
		t.Error("Expected resolution attached to case")
	}
}

func TestFragmentID(t *testing.T) {
	fragment := models.KnowledgeFragment{SourceID: "kb-12", Offset: 3}
	if fragment.FragmentID() != "kb-12#3" {
		t.Errorf("Expected kb-12#3, got %s", fragment.FragmentID())
	}
}

func TestPipelineErrorWithCauseDoesNotMutate(t *testing.T) {
	base := models.ErrCaseNotFound
	wrapped := base.WithCause(errors.New("boom"))

	if base.Cause != nil {
		t.Error("WithCause mutated the shared error value")
	}
	if wrapped.Cause == nil {
		t.Error("Expected cause on the copy")
	}
	if !models.HasCode(wrapped, models.CodeCaseNotFound) {
		t.Error("Expected code preserved on the copy")
	}
}

func TestHasCodeUnwrapsWrappedErrors(t *testing.T) {
	err := models.NewPersistenceFault(errors.New("connection reset"))

	if !models.HasCode(err, models.CodePersistenceFault) {
		t.Error("Expected PERSISTENCE_FAULT code")
	}
	if models.HasCode(err, models.CodeScoringFault) {
		t.Error("Did not expect SCORING_FAULT code")
	}
	if models.HasCode(errors.New("plain"), models.CodePersistenceFault) {
		t.Error("Plain errors carry no code")
	}
}
