package models

import "time"

// SubmitCaseRequest is the ingestion boundary payload. CaseID is optional;
// resubmitting an already-assigned id is idempotent.
type SubmitCaseRequest struct {
	CaseID        string      `json:"case_id"`
	RawTranscript string      `json:"raw_transcript" binding:"required"`
	Fields        *CaseFields `json:"structured_fields"`
	Recipient     string      `json:"recipient_email"`
}

type SubmitCaseResponse struct {
	CaseID    string    `json:"case_id"`
	Status    string    `json:"status"`
	Message   string    `json:"message,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// CaseStatusResponse is what callers observe: a terminal state or an explicit
// in-progress status with the current audit entry count, never a silent drop.
type CaseStatusResponse struct {
	CaseID          string    `json:"case_id"`
	State           CaseState `json:"state"`
	InProgress      bool      `json:"in_progress"`
	Revision        int       `json:"revision"`
	AuditEntries    int       `json:"audit_entries"`
	DeliveryPending bool      `json:"delivery_pending"`
	FinalText       string    `json:"final_text,omitempty"`
	UpdatedAt       time.Time `json:"updated_at"`
}

func NewSubmitCaseResponse(caseID, status, message string) *SubmitCaseResponse {
	return &SubmitCaseResponse{
		CaseID:    caseID,
		Status:    status,
		Message:   message,
		Timestamp: time.Now().UTC(),
	}
}
