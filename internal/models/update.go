package models

import "time"

// CaseUpdate is the live progress event published per case transition for
// dashboards and other stream consumers.
type CaseUpdate struct {
	CaseID    string    `json:"case_id"`
	State     CaseState `json:"state"`
	Actor     string    `json:"actor"`
	Message   string    `json:"message"`
	Revision  int       `json:"revision"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func NewCaseUpdate(kase *Case, actor, message string) *CaseUpdate {
	return &CaseUpdate{
		CaseID:    kase.ID,
		State:     kase.State,
		Actor:     actor,
		Message:   message,
		Revision:  kase.Revision,
		Timestamp: time.Now().UTC(),
	}
}
