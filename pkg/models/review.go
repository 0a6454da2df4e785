package models

import "time"

type ReviewStatus string

const (
	ReviewStatusPending      ReviewStatus = "pending"
	ReviewStatusApproved     ReviewStatus = "approved"
	ReviewStatusRejected     ReviewStatus = "rejected"
	ReviewStatusAutoAccepted ReviewStatus = "auto_accepted"
)

// IsResolved reports whether a reviewer or the engine has closed the candidate
func (s ReviewStatus) IsResolved() bool {
	return s != ReviewStatusPending
}

// CandidateRef is the persisted form of a scored candidate
type CandidateRef struct {
	RefID string `json:"ref_id"`
	Name  string `json:"name"`
	UEI   string `json:"uei,omitempty"`
	DUNS  string `json:"duns,omitempty"`
	CAGE  string `json:"cage,omitempty"`
	Score int    `json:"score"`
}

// NewCandidateRefs flattens scored candidates for persistence
func NewCandidateRefs(candidates []Candidate) []CandidateRef {
	out := make([]CandidateRef, 0, len(candidates))
	for _, c := range candidates {
		if c.Ref == nil {
			continue
		}
		out = append(out, CandidateRef{
			RefID: c.Ref.RefID,
			Name:  c.Ref.Name,
			UEI:   c.Ref.UEI,
			DUNS:  c.Ref.DUNS,
			CAGE:  c.Ref.CAGE,
			Score: c.Score,
		})
	}
	return out
}

// ReviewCandidate is a fuzzy_candidate match awaiting a reviewer's decision
type ReviewCandidate struct {
	ID          string         `json:"id"`
	RunID       string         `json:"run_id"`
	RecordIndex int            `json:"record_index"`
	Source      string         `json:"source,omitempty"`
	Record      InputRecord    `json:"record"`
	Score       int            `json:"score"`
	Candidates  []CandidateRef `json:"candidates"`
	Status      ReviewStatus   `json:"status"`
	// ChosenRefID is the reference organization the reviewer accepted
	ChosenRefID *string    `json:"chosen_ref_id,omitempty"`
	CanonicalID *string    `json:"canonical_id,omitempty"`
	ResolvedBy  *string    `json:"resolved_by,omitempty"`
	ResolvedAt  *time.Time `json:"resolved_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// Candidate returns the candidate with refID
func (c *ReviewCandidate) Candidate(refID string) (CandidateRef, bool) {
	for _, cand := range c.Candidates {
		if cand.RefID == refID {
			return cand, true
		}
	}
	return CandidateRef{}, false
}
