package matching

import (
	"maps"

	"github.com/hollomancer/sbir-analytics-sub004/pkg/models"
)

// EnrichedRecord is an input record joined with the canonical attributes of
// the organization it matched. Unmatched records keep empty canonical fields.
type EnrichedRecord struct {
	models.InputRecord
	MatchMethod    models.MatchMethod `json:"match_method"`
	MatchScore     int                `json:"match_score"`
	CanonicalRefID string             `json:"canonical_ref_id,omitempty"`
	CanonicalName  string             `json:"canonical_name,omitempty"`
	CanonicalUEI   string             `json:"canonical_uei,omitempty"`
	CanonicalDUNS  string             `json:"canonical_duns,omitempty"`
	CanonicalCAGE  string             `json:"canonical_cage,omitempty"`
	CanonicalExtra map[string]string  `json:"canonical_extra,omitempty"`
}

// Enrich left-joins results onto records by position. A record without a
// corresponding result is treated as no_candidates.
func Enrich(records []models.InputRecord, results []models.MatchResult) []EnrichedRecord {
	out := make([]EnrichedRecord, len(records))
	for i, rec := range records {
		e := EnrichedRecord{InputRecord: rec, MatchMethod: models.MatchMethodNoCandidates}
		if i < len(results) {
			r := results[i]
			e.MatchMethod = r.Method
			e.MatchScore = r.Score
			if ref := r.Matched; ref != nil {
				e.CanonicalRefID = ref.RefID
				e.CanonicalName = ref.Name
				e.CanonicalUEI = ref.UEI
				e.CanonicalDUNS = ref.DUNS
				e.CanonicalCAGE = ref.CAGE
				if len(ref.ExtraFields) > 0 {
					e.CanonicalExtra = maps.Clone(ref.ExtraFields)
				}
			}
		}
		out[i] = e
	}
	return out
}
