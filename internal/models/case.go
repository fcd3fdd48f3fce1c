package models

import (
	"time"

	"github.com/google/uuid"
)

type CaseState string

const (
	CaseStateIngested  CaseState = "INGESTED"
	CaseStateAnalyzing CaseState = "ANALYZING"
	CaseStateVerifying CaseState = "VERIFYING"
	CaseStateNotifying CaseState = "NOTIFYING"
	CaseStateClosed    CaseState = "CLOSED"
	CaseStateEscalated CaseState = "ESCALATED"
	CaseStateCancelled CaseState = "CANCELLED"
)

type RiskTier string

const (
	RiskTierGeneral    RiskTier = "general"
	RiskTierBilling    RiskTier = "billing"
	RiskTierLegal      RiskTier = "legal"
	RiskTierCompliance RiskTier = "compliance"
)

// CaseFields are the structured attributes extracted from a raw transcript,
// either supplied by the upload component or derived by the extraction step.
type CaseFields struct {
	CustomerID   string   `json:"customer_id" bson:"customer_id"`
	CustomerName string   `json:"customer_name,omitempty" bson:"customer_name,omitempty"`
	Organization string   `json:"organization,omitempty" bson:"organization,omitempty"`
	Category     string   `json:"category" bson:"category"`
	RiskTier     RiskTier `json:"risk_tier" bson:"risk_tier"`
}

// Case is one support interaction moving through the pipeline. The orchestrator
// is the sole writer of State; a case is immutable once terminal.
type Case struct {
	ID            string     `json:"id" bson:"case_id"`
	RawTranscript string     `json:"raw_transcript" bson:"raw_transcript"`
	Fields        CaseFields `json:"fields" bson:"fields"`
	State         CaseState  `json:"state" bson:"state"`

	// Revision counts FLAG-triggered analysis reruns for the same case id.
	Revision    int `json:"revision" bson:"revision"`
	RetryBudget int `json:"retry_budget" bson:"retry_budget"`

	Recipient       string      `json:"recipient,omitempty" bson:"recipient,omitempty"`
	DeliveryPending bool        `json:"delivery_pending" bson:"delivery_pending"`
	Resolution      *Resolution `json:"resolution,omitempty" bson:"resolution,omitempty"`

	CreatedAt time.Time  `json:"created_at" bson:"created_at"`
	UpdatedAt time.Time  `json:"updated_at" bson:"updated_at"`
	ClosedAt  *time.Time `json:"closed_at,omitempty" bson:"closed_at,omitempty"`
}

func NewCase(id, rawTranscript string, fields CaseFields, retryBudget int) *Case {
	if id == "" {
		id = uuid.New().String()
	}
	if fields.RiskTier == "" {
		fields.RiskTier = RiskTierGeneral
	}

	now := time.Now().UTC()
	return &Case{
		ID:            id,
		RawTranscript: rawTranscript,
		Fields:        fields,
		State:         CaseStateIngested,
		Revision:      0,
		RetryBudget:   retryBudget,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

func (c *Case) SetState(state CaseState) {
	c.State = state
	c.UpdatedAt = time.Now().UTC()
}

func (c *Case) MarkClosed(resolution *Resolution) {
	c.Resolution = resolution
	now := time.Now().UTC()
	c.ClosedAt = &now
	c.SetState(CaseStateClosed)
}

func (c *Case) MarkEscalated() {
	now := time.Now().UTC()
	c.ClosedAt = &now
	c.SetState(CaseStateEscalated)
}

func (c *Case) MarkCancelled() {
	now := time.Now().UTC()
	c.ClosedAt = &now
	c.SetState(CaseStateCancelled)
}

func (c *Case) IsTerminal() bool {
	switch c.State {
	case CaseStateClosed, CaseStateEscalated, CaseStateCancelled:
		return true
	default:
		return false
	}
}

func (c *Case) IsClosed() bool {
	return c.State == CaseStateClosed
}

func (c *Case) IsEscalated() bool {
	return c.State == CaseStateEscalated
}

func GenerateCaseID() string {
	return uuid.New().String()
}
