package resolver

import (
	"context"
	"fmt"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"

	"github.com/hollomancer/sbir-analytics-sub004/internal/repositories/reviewcandidate"
	"github.com/hollomancer/sbir-analytics-sub004/internal/tracing"
	"github.com/hollomancer/sbir-analytics-sub004/pkg/models"
)

const (
	DefaultReviewLimit = 100
	MaxReviewLimit     = 500
)

// ListReviews returns pending review candidates, oldest first
func (s *Service) ListReviews(ctx context.Context, runID string, limit int) ([]models.ReviewCandidate, error) {
	ctx, span := tracing.StartSpan(ctx, "resolver.Service.ListReviews")
	defer span.End()

	if err := s.requireReviews(); err != nil {
		return nil, err
	}
	switch {
	case limit <= 0:
		limit = DefaultReviewLimit
	case limit > MaxReviewLimit:
		limit = MaxReviewLimit
	}
	return s.reviews.ListPending(ctx, runID, limit)
}

// GetReview returns one review candidate
func (s *Service) GetReview(ctx context.Context, id string) (*models.ReviewCandidate, error) {
	ctx, span := tracing.StartSpan(ctx, "resolver.Service.GetReview")
	defer span.End()

	if err := s.requireReviews(); err != nil {
		return nil, err
	}
	return s.reviews.Get(ctx, id)
}

// ApproveReview accepts refID for a pending candidate and folds the record
// into the crosswalk under that reference's canonical record. The candidate
// is claimed before the input record is merged, so two reviewers approving the
// same candidate merge it once.
func (s *Service) ApproveReview(ctx context.Context, id, refID, reviewer string) (*models.ReviewCandidate, error) {
	ctx, span := tracing.StartSpan(ctx, "resolver.Service.ApproveReview")
	defer span.End()

	candidate, err := s.pendingReview(ctx, id)
	if err != nil {
		return nil, err
	}

	chosen, ok := candidate.Candidate(refID)
	if !ok {
		return nil, httperror.NewHTTPErrorf(http.StatusBadRequest, "%s is not a candidate of review %s", refID, id)
	}

	canonicalID, err := s.canonicalFor(s.referenceFor(chosen))
	if err != nil {
		return nil, err
	}

	if err := s.reviews.Resolve(ctx, id, reviewcandidate.Resolution{
		Status:      models.ReviewStatusApproved,
		ChosenRefID: &refID,
		CanonicalID: &canonicalID,
		ResolvedBy:  optional(reviewer),
	}); err != nil {
		return nil, err
	}

	if _, err := s.crosswalk.MergeInto(canonicalID, inputToCrosswalk(candidate.Record, candidate.Source, candidate.RunID)); err != nil {
		return nil, fmt.Errorf("failed to fold approved review %s: %w", id, err)
	}

	s.logger.WithContext(ctx).WithFields(map[string]any{
		"review_id":    id,
		"ref_id":       refID,
		"canonical_id": canonicalID,
		"reviewer":     reviewer,
	}).Info("Review approved")

	return s.reviews.Get(ctx, id)
}

// RejectReview closes a pending candidate without touching the crosswalk
func (s *Service) RejectReview(ctx context.Context, id, reviewer string) (*models.ReviewCandidate, error) {
	ctx, span := tracing.StartSpan(ctx, "resolver.Service.RejectReview")
	defer span.End()

	if _, err := s.pendingReview(ctx, id); err != nil {
		return nil, err
	}
	if err := s.reviews.Resolve(ctx, id, reviewcandidate.Resolution{
		Status:     models.ReviewStatusRejected,
		ResolvedBy: optional(reviewer),
	}); err != nil {
		return nil, err
	}

	s.logger.WithContext(ctx).WithFields(map[string]any{
		"review_id": id,
		"reviewer":  reviewer,
	}).Info("Review rejected")

	return s.reviews.Get(ctx, id)
}

// ReviewCounts returns the number of candidates per status, zeros included
func (s *Service) ReviewCounts(ctx context.Context) (map[models.ReviewStatus]int, error) {
	ctx, span := tracing.StartSpan(ctx, "resolver.Service.ReviewCounts")
	defer span.End()

	if err := s.requireReviews(); err != nil {
		return nil, err
	}
	counts, err := s.reviews.CountByStatus(ctx)
	if err != nil {
		return nil, err
	}
	out := map[models.ReviewStatus]int{
		models.ReviewStatusPending:      0,
		models.ReviewStatusApproved:     0,
		models.ReviewStatusRejected:     0,
		models.ReviewStatusAutoAccepted: 0,
	}
	for k, v := range counts {
		out[k] = v
	}
	return out, nil
}

func (s *Service) pendingReview(ctx context.Context, id string) (*models.ReviewCandidate, error) {
	if err := s.requireReviews(); err != nil {
		return nil, err
	}
	candidate, err := s.reviews.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if candidate.Status != models.ReviewStatusPending {
		return nil, httperror.NewHTTPErrorf(http.StatusConflict, "review candidate %s is already %s", id, candidate.Status)
	}
	return candidate, nil
}

// referenceFor prefers the reference as currently loaded; the candidate's
// stored copy is used when the reference set has changed since queueing
func (s *Service) referenceFor(c models.CandidateRef) models.OrganizationRef {
	if idx := s.indices.Load(); idx != nil {
		if ref, ok := idx.Refs.Lookup(c.RefID); ok {
			return *ref
		}
	}
	return models.OrganizationRef{RefID: c.RefID, Name: c.Name, UEI: c.UEI, DUNS: c.DUNS, CAGE: c.CAGE}
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
