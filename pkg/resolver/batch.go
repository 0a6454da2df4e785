package resolver

import (
	"context"
	"time"

	"github.com/hollomancer/sbir-analytics-sub004/internal/tracing"
	"github.com/hollomancer/sbir-analytics-sub004/pkg/events"
	"github.com/hollomancer/sbir-analytics-sub004/pkg/matching"
	"github.com/hollomancer/sbir-analytics-sub004/pkg/models"
	"github.com/hollomancer/sbir-analytics-sub004/pkg/normalizers"
)

// MetadataRefID records which reference organization a canonical record came from
const MetadataRefID = "ref_id"

// BatchRequest describes one batch run
type BatchRequest struct {
	Records []models.InputRecord `json:"records" validate:"required"`
	Source  string               `json:"source,omitempty"`
	// QueueReview persists fuzzy_candidate results to the review queue
	QueueReview bool `json:"queue_review"`
	// RecordAutoAccepted also stores fuzzy_auto results, as auto_accepted, for audit
	RecordAutoAccepted bool `json:"record_auto_accepted"`
	// Fold merges every accepted match into the crosswalk
	Fold bool `json:"fold"`
}

// BatchResponse is the outcome of a batch run
type BatchResponse struct {
	*matching.BatchOutput
	Queued []*models.ReviewCandidate `json:"queued,omitempty"`
	Folded int                       `json:"folded"`
}

// RunBatch matches req.Records in parallel chunks, then persists review items,
// folds accepted matches into the crosswalk and emits events as requested.
// Persistence failures after matching are returned alongside the output.
func (s *Service) RunBatch(ctx context.Context, req BatchRequest) (*BatchResponse, error) {
	ctx, span := tracing.StartSpan(ctx, "resolver.Service.RunBatch")
	defer span.End()

	opts := []matching.BatchOption{
		matching.WithWorkers(s.workers),
		matching.WithChunkSize(s.chunkSize),
		matching.WithCache(s.cache, s.cacheTTL),
	}
	if s.recorder != nil {
		opts = append(opts, matching.WithRecorder(s.recorder))
	}

	out, err := matching.NewBatch(s.matcher, s.logger, opts...).Run(ctx, req.Records, s.indices.Load())
	if err != nil {
		return nil, err
	}

	resp := &BatchResponse{BatchOutput: out}
	log := s.logger.WithContext(ctx).WithField("run_id", out.Summary.RunID)

	if req.Fold {
		resp.Folded = s.fold(req.Records, out.Results, req.Source, out.Summary.RunID)
	}

	if req.QueueReview || req.RecordAutoAccepted {
		if err := s.requireReviews(); err != nil {
			return resp, err
		}

		var queued []*models.ReviewCandidate
		if req.QueueReview {
			queued = events.ReviewCandidates(out.Summary.RunID, req.Source, out.Review)
		}
		if req.RecordAutoAccepted {
			queued = append(queued, autoAccepted(out.Summary.RunID, req.Source, req.Records, out.Results)...)
		}

		if err := s.reviews.CreateBatch(ctx, queued); err != nil {
			log.WithError(err).Error("Failed to persist review queue")
			return resp, err
		}
		resp.Queued = queued

		if s.events != nil {
			pending := make([]*models.ReviewCandidate, 0, len(queued))
			for _, c := range queued {
				if c.Status == models.ReviewStatusPending {
					pending = append(pending, c)
				}
			}
			if err := s.events.EmitReviewQueued(ctx, pending); err != nil {
				log.WithError(err).Warn("Failed to emit review queued events")
			}
		}
	}

	if s.events != nil {
		if err := s.events.EmitBatch(ctx, out.Summary.RunID, req.Records, out.Results); err != nil {
			log.WithError(err).Warn("Failed to emit match events")
		}
	}

	return resp, nil
}

// autoAccepted returns closed audit rows for fuzzy_auto results
func autoAccepted(runID, source string, records []models.InputRecord, results []models.MatchResult) []*models.ReviewCandidate {
	var out []*models.ReviewCandidate
	now := time.Now().UTC()
	for i, res := range results {
		if res.Method != models.MatchMethodFuzzyAuto || res.Matched == nil {
			continue
		}
		refID := res.Matched.RefID
		out = append(out, &models.ReviewCandidate{
			RunID:       runID,
			RecordIndex: i,
			Source:      source,
			Record:      records[i],
			Score:       res.Score,
			Candidates:  models.NewCandidateRefs(res.Candidates),
			Status:      models.ReviewStatusAutoAccepted,
			ChosenRefID: &refID,
			ResolvedAt:  &now,
		})
	}
	return out
}

// fold merges the matched reference organization and then the input record into
// the crosswalk. The input name becomes an alias when it differs.
func (s *Service) fold(records []models.InputRecord, results []models.MatchResult, source, runID string) int {
	folded := 0
	for i, res := range results {
		if !res.Method.IsAccepted() || res.Matched == nil {
			continue
		}
		canonicalID, err := s.canonicalFor(*res.Matched)
		if err != nil {
			s.logger.WithError(err).WithField("ref_id", res.Matched.RefID).Warn("Failed to fold reference organization")
			continue
		}
		if _, err := s.crosswalk.MergeInto(canonicalID, inputToCrosswalk(records[i], source, runID)); err != nil {
			s.logger.WithError(err).WithField("index", i).Warn("Failed to fold input record")
			continue
		}
		folded++
	}
	return folded
}

// canonicalFor returns the canonical id for a reference organization, creating
// the crosswalk record on first sight. A reference is found again by UEI, CAGE
// or DUNS, and otherwise by exact normalized canonical name as long as no
// identifier on either side disagrees.
func (s *Service) canonicalFor(ref models.OrganizationRef) (string, error) {
	rec := models.CrosswalkRecord{
		CanonicalName: ref.Name,
		UEI:           normalizers.CleanUEI(ref.UEI),
		CAGE:          normalizers.CleanCAGE(ref.CAGE),
		DUNS:          normalizers.CleanDUNS(ref.DUNS),
		Metadata:      map[string]any{MetadataRefID: ref.RefID},
	}

	if s.crosswalk.FindByUEI(rec.UEI) == nil && s.crosswalk.FindByCAGE(rec.CAGE) == nil && s.crosswalk.FindByDUNS(rec.DUNS) == nil {
		for _, existing := range s.crosswalk.FindByCanonicalName(ref.Name) {
			if identifiersConflict(existing, &rec) {
				continue
			}
			outcome, err := s.crosswalk.MergeInto(existing.CanonicalID, rec)
			return outcome.CanonicalID, err
		}
	}

	outcome, err := s.crosswalk.AddOrMerge(rec)
	if err != nil {
		return "", err
	}
	return outcome.CanonicalID, nil
}

// identifiersConflict reports whether a and b hold different values for the
// same identifier
func identifiersConflict(a, b *models.CrosswalkRecord) bool {
	differ := func(x, y string) bool { return x != "" && y != "" && x != y }
	return differ(a.UEI, b.UEI) || differ(a.CAGE, b.CAGE) || differ(a.DUNS, b.DUNS)
}

func inputToCrosswalk(rec models.InputRecord, source, runID string) models.CrosswalkRecord {
	metadata := map[string]any{}
	if source != "" {
		metadata["source"] = source
	}
	if runID != "" {
		metadata["run_id"] = runID
	}
	return models.CrosswalkRecord{
		CanonicalName: rec.Name,
		UEI:           rec.UEI,
		CAGE:          rec.CAGE,
		DUNS:          rec.DUNS,
		Metadata:      metadata,
	}
}
