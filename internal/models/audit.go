package models

import "time"

type ActionKind string

const (
	ActionCaseSubmitted      ActionKind = "case_submitted"
	ActionFieldsExtracted    ActionKind = "fields_extracted"
	ActionTransition         ActionKind = "state_transition"
	ActionKnowledgeRetrieved ActionKind = "knowledge_retrieved"
	ActionDocsLookup         ActionKind = "docs_lookup"
	ActionDraftProduced      ActionKind = "draft_produced"
	ActionVerdictScored      ActionKind = "verdict_scored"
	ActionEscalated          ActionKind = "escalated"
	ActionCancelled          ActionKind = "cancelled"
	ActionFailure            ActionKind = "failure"
	ActionDeliveryPrepared   ActionKind = "delivery_prepared"
	ActionDeliveryDispatched ActionKind = "delivery_dispatched"
	ActionDeliveryFailed     ActionKind = "delivery_failed"
)

// AuditEntry is one record in the per-case explainability trail. Entries are
// append-only; sequence numbers per case start at 1 and are gap-free.
type AuditEntry struct {
	CaseID        string     `json:"case_id" bson:"case_id"`
	Seq           int64      `json:"seq" bson:"seq"`
	Actor         string     `json:"actor" bson:"actor"`
	Action        ActionKind `json:"action" bson:"action"`
	InputSummary  string     `json:"input_summary,omitempty" bson:"input_summary,omitempty"`
	OutputSummary string     `json:"output_summary,omitempty" bson:"output_summary,omitempty"`
	Timestamp     time.Time  `json:"timestamp" bson:"timestamp"`
}

func NewAuditEntry(caseID, actor string, action ActionKind, inputSummary, outputSummary string) *AuditEntry {
	return &AuditEntry{
		CaseID:        caseID,
		Actor:         actor,
		Action:        action,
		InputSummary:  inputSummary,
		OutputSummary: outputSummary,
		Timestamp:     time.Now().UTC(),
	}
}
