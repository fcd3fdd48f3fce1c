package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// KnowledgeFragment is one retrieved passage. Fragments are ephemeral: they
// live for a single analysis invocation and are only referenced from audit
// entries afterwards.
type KnowledgeFragment struct {
	SourceID    string    `json:"source_id"`
	Offset      int       `json:"offset"`
	Text        string    `json:"text"`
	Relevance   float64   `json:"relevance"`
	RetrievedAt time.Time `json:"retrieved_at"`
}

// FragmentID is the identity a draft cites: source document plus offset.
func (f KnowledgeFragment) FragmentID() string {
	return fmt.Sprintf("%s#%d", f.SourceID, f.Offset)
}

// LookupResult is a structured hit from the external documentation lookup.
type LookupResult struct {
	Title   string `json:"title"`
	Content string `json:"content"`
	URL     string `json:"url,omitempty"`
}

// Draft is an unverified proposed resolution. Produced by the analysis agent,
// consumed exactly once by the executor agent.
type Draft struct {
	ID               string   `json:"id" bson:"draft_id"`
	CaseID           string   `json:"case_id" bson:"case_id"`
	Revision         int      `json:"revision" bson:"revision"`
	Text             string   `json:"text" bson:"text"`
	CitedFragmentIDs []string `json:"cited_fragment_ids,omitempty" bson:"cited_fragment_ids,omitempty"`

	// Unsupported marks a draft produced with no retrieval hits, so the trust
	// scorer can weight that signal.
	Unsupported     bool    `json:"unsupported" bson:"unsupported"`
	ModelConfidence float64 `json:"model_confidence" bson:"model_confidence"`

	// InputSummary records the exact prompt the draft was generated from, for
	// auditability.
	InputSummary string    `json:"input_summary" bson:"input_summary"`
	GeneratedBy  string    `json:"generated_by" bson:"generated_by"`
	GeneratedAt  time.Time `json:"generated_at" bson:"generated_at"`
}

func NewDraft(caseID string, revision int) *Draft {
	return &Draft{
		ID:          uuid.New().String(),
		CaseID:      caseID,
		Revision:    revision,
		GeneratedAt: time.Now().UTC(),
	}
}

type Decision string

const (
	DecisionPass  Decision = "PASS"
	DecisionFlag  Decision = "FLAG"
	DecisionBlock Decision = "BLOCK"
)

// TrustVerdict is immutable once created. The decision is a pure function of
// score and the effective thresholds recorded alongside it.
type TrustVerdict struct {
	DraftID        string    `json:"draft_id" bson:"draft_id"`
	Score          float64   `json:"score" bson:"score"`
	Decision       Decision  `json:"decision" bson:"decision"`
	Rationale      string    `json:"rationale" bson:"rationale"`
	PassThreshold  float64   `json:"pass_threshold" bson:"pass_threshold"`
	BlockThreshold float64   `json:"block_threshold" bson:"block_threshold"`
	ModelVersion   string    `json:"model_version" bson:"model_version"`
	ScoredAt       time.Time `json:"scored_at" bson:"scored_at"`
}

// Resolution is the terminal artifact of a passed case: the verified text plus
// the delivery instructions prepared for it.
type Resolution struct {
	CaseID       string                `json:"case_id" bson:"case_id"`
	FinalText    string                `json:"final_text" bson:"final_text"`
	Verdict      TrustVerdict          `json:"verdict" bson:"verdict"`
	Instructions *DeliveryInstructions `json:"instructions,omitempty" bson:"instructions,omitempty"`
}

// VideoScript is the input handed to the avatar rendering collaborator.
type VideoScript struct {
	JobID           string `json:"job_id" bson:"job_id"`
	Script          string `json:"script" bson:"script"`
	AvatarCharacter string `json:"avatar_character" bson:"avatar_character"`
	CustomerName    string `json:"customer_name" bson:"customer_name"`
}

type EmailMessage struct {
	Recipient string `json:"recipient" bson:"recipient"`
	Subject   string `json:"subject" bson:"subject"`
	PlainBody string `json:"plain_body" bson:"plain_body"`
	HTMLBody  string `json:"html_body" bson:"html_body"`
}

// DeliveryInstructions describe what to deliver, never how. Delivery channels
// are invoked by the orchestrator, not by the notification agent.
type DeliveryInstructions struct {
	Video      VideoScript  `json:"video" bson:"video"`
	Email      EmailMessage `json:"email" bson:"email"`
	PreparedAt time.Time    `json:"prepared_at" bson:"prepared_at"`
}

// EscalationRecord is created when a case leaves the automated path and needs
// human review. The orchestrator never resolves an escalated case itself.
type EscalationRecord struct {
	CaseID    string        `json:"case_id" bson:"case_id"`
	Reason    string        `json:"reason" bson:"reason"`
	Verdict   *TrustVerdict `json:"verdict,omitempty" bson:"verdict,omitempty"`
	Revision  int           `json:"revision" bson:"revision"`
	CreatedAt time.Time     `json:"created_at" bson:"created_at"`
}
