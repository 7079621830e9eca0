package model

import (
	"sort"
	"time"
)

// DecisionStatus is the terminal verdict for a submission.
type DecisionStatus string

const (
	StatusApproved     DecisionStatus = "APPROVED"
	StatusRejected     DecisionStatus = "REJECTED"
	StatusManualReview DecisionStatus = "MANUAL_REVIEW"
)

// FieldOrigin records where a reconciled field's final value came from.
type FieldOrigin string

const (
	// OriginUserProvided: the seller's declared value survived.
	OriginUserProvided FieldOrigin = "user_provided"
	// OriginAICorrected: the AI value replaced a materially conflicting
	// declared value.
	OriginAICorrected FieldOrigin = "ai_corrected"
	// OriginAIEnriched: the AI supplied a value the seller left blank.
	OriginAIEnriched FieldOrigin = "ai_enriched"
)

// ReconciledField is one merged attribute with its provenance.
type ReconciledField struct {
	Value  string      `json:"value"`
	Origin FieldOrigin `json:"origin"`
}

// ReconciledAttributes is the post-merge attribute set. Only fields that
// ended with a value are present; absent fields stay absent.
type ReconciledAttributes struct {
	Fields   map[string]ReconciledField `json:"fields"`
	Features []string                   `json:"features,omitempty"`
}

// Corrections returns the sorted names of fields the AI overrode.
func (r ReconciledAttributes) Corrections() []string {
	var out []string
	for name, f := range r.Fields {
		if f.Origin == OriginAICorrected {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// EscalationAttempt is one entry in a decision's attempt trace. Kept
// only for the duration of a run unless the decision is persisted.
type EscalationAttempt struct {
	Attempt   int    `json:"attempt"`
	Source    string `json:"source"`
	Valid     bool   `json:"valid"`
	Reason    string `json:"reason,omitempty"`
	LatencyMS int64  `json:"latency_ms"`
}

// ModerationDecision is the full result of moderating one submission.
type ModerationDecision struct {
	ListingID       string               `json:"listing_id"`
	SubmitterID     string               `json:"submitter_id"`
	Status          DecisionStatus       `json:"status"`
	Reason          string               `json:"reason,omitempty"`
	Identity        CanonicalIdentity    `json:"-"`
	Reconciled      ReconciledAttributes `json:"reconciled"`
	CorrectedFields []string             `json:"corrected_fields,omitempty"`
	FinalImages     []int                `json:"final_images,omitempty"`
	DroppedImages   []int                `json:"dropped_images,omitempty"`
	Attempts        []EscalationAttempt  `json:"attempts,omitempty"`
	Fingerprint     string               `json:"fingerprint,omitempty"`
	DuplicateOfID   string               `json:"duplicate_of_id,omitempty"`
	DecidedAt       time.Time            `json:"decided_at"`
	EstimatedCost   float64              `json:"estimated_cost_usd"`
}

// FingerprintRecord is a stored canonical identity hash used for
// duplicate detection.
type FingerprintRecord struct {
	ID          string
	SubmitterID string
	ListingID   string
	Hash        string
	CreatedAt   time.Time
}
