package models

import (
	"encoding/json"
	"time"
)

// AliasRecord is a historical or variant name of a canonical organization
type AliasRecord struct {
	Name      string     `json:"name"`
	StartDate *time.Time `json:"start_date,omitempty"`
	EndDate   *time.Time `json:"end_date,omitempty"`
	Note      string     `json:"note,omitempty"`
}

// CrosswalkRecord is the single deduplicated representation of one organization
type CrosswalkRecord struct {
	CanonicalID   string         `json:"canonical_id"`
	CanonicalName string         `json:"canonical_name"`
	UEI           string         `json:"uei,omitempty"`
	CAGE          string         `json:"cage,omitempty"`
	DUNS          string         `json:"duns,omitempty"`
	Aliases       []AliasRecord  `json:"aliases"`
	Metadata      map[string]any `json:"metadata"`
	CreatedAt     time.Time      `json:"created_at"`
}

// Clone returns a deep copy of the record. Metadata is copied through JSON
// so nested acquisition history never aliases the original.
func (r *CrosswalkRecord) Clone() *CrosswalkRecord {
	if r == nil {
		return nil
	}
	out := *r
	out.Aliases = make([]AliasRecord, len(r.Aliases))
	for i, a := range r.Aliases {
		out.Aliases[i] = a.Clone()
	}
	out.Metadata = CloneMetadata(r.Metadata)
	return &out
}

// Clone copies the alias and its dates
func (a AliasRecord) Clone() AliasRecord {
	out := a
	if a.StartDate != nil {
		t := *a.StartDate
		out.StartDate = &t
	}
	if a.EndDate != nil {
		t := *a.EndDate
		out.EndDate = &t
	}
	return out
}

// CloneMetadata deep-copies a metadata map
func CloneMetadata(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	if len(m) == 0 {
		return out
	}
	b, err := json.Marshal(m)
	if err != nil {
		for k, v := range m {
			out[k] = v
		}
		return out
	}
	if err := json.Unmarshal(b, &out); err != nil {
		for k, v := range m {
			out[k] = v
		}
	}
	return out
}

// AcquisitionEvent is one entry of a record's acquisitions or acquired_by history
type AcquisitionEvent struct {
	AcquiredID string     `json:"acquired_id,omitempty"`
	AcquirerID string     `json:"acquirer_id,omitempty"`
	Date       *time.Time `json:"date,omitempty"`
	Note       string     `json:"note,omitempty"`
}

// Metadata keys maintained by the crosswalk
const (
	MetadataAcquisitions  = "acquisitions"
	MetadataAcquiredBy    = "acquired_by"
	MetadataMergedRecords = "merged_records"
)

// AliasNoteMergedCanonical marks a canonical name demoted to alias during a merge
const AliasNoteMergedCanonical = "merged-canonical"

// AliasNoteAcquired marks the canonical name of an acquired organization
const AliasNoteAcquired = "acquired"
