// Package reviewcandidate persists the fuzzy_candidate review queue
package reviewcandidate

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/hollomancer/sbir-analytics-sub004/internal/database"
	"github.com/hollomancer/sbir-analytics-sub004/internal/tracing"
	"github.com/hollomancer/sbir-analytics-sub004/pkg/models"
)

const table = "review_candidates"

var columns = []string{
	"id", "run_id", "record_index", "source", "record", "score", "candidates", "status",
	"chosen_ref_id", "canonical_id", "resolved_by", "resolved_at", "created_at", "updated_at",
}

type row struct {
	ID          string                                `db:"id"`
	RunID       string                                `db:"run_id"`
	RecordIndex int                                   `db:"record_index"`
	Source      string                                `db:"source"`
	Record      database.JSONB[models.InputRecord]    `db:"record"`
	Score       int                                   `db:"score"`
	Candidates  database.JSONB[[]models.CandidateRef] `db:"candidates"`
	Status      string                                `db:"status"`
	ChosenRefID *string                               `db:"chosen_ref_id"`
	CanonicalID *string                               `db:"canonical_id"`
	ResolvedBy  *string                               `db:"resolved_by"`
	ResolvedAt  *time.Time                            `db:"resolved_at"`
	CreatedAt   time.Time                             `db:"created_at"`
	UpdatedAt   time.Time                             `db:"updated_at"`
}

func (r row) toModel() models.ReviewCandidate {
	candidates := r.Candidates.GetValue()
	if candidates == nil {
		candidates = []models.CandidateRef{}
	}
	return models.ReviewCandidate{
		ID:          r.ID,
		RunID:       r.RunID,
		RecordIndex: r.RecordIndex,
		Source:      r.Source,
		Record:      r.Record.GetValue(),
		Score:       r.Score,
		Candidates:  candidates,
		Status:      models.ReviewStatus(r.Status),
		ChosenRefID: r.ChosenRefID,
		CanonicalID: r.CanonicalID,
		ResolvedBy:  r.ResolvedBy,
		ResolvedAt:  r.ResolvedAt,
		CreatedAt:   r.CreatedAt.UTC(),
		UpdatedAt:   r.UpdatedAt.UTC(),
	}
}

// Resolution closes a pending review candidate
type Resolution struct {
	Status      models.ReviewStatus
	ChosenRefID *string
	CanonicalID *string
	ResolvedBy  *string
}

// Repository handles review candidate persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new review candidate repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// CreateBatch queues candidates. A record already queued for the same run is left as is.
func (r *Repository) CreateBatch(ctx context.Context, candidates []*models.ReviewCandidate) error {
	ctx, span := tracing.StartSpan(ctx, "reviewcandidate.Repository.CreateBatch")
	defer span.End()

	if len(candidates) == 0 {
		return nil
	}

	now := time.Now().UTC()
	ib := database.NewInsertBuilder()
	ib.InsertInto(table)
	ib.Cols(columns...)

	for _, c := range candidates {
		if c.ID == "" {
			c.ID = uuid.New().String()
		}
		c.CreatedAt = now
		c.UpdatedAt = now
		if c.Status == "" {
			c.Status = models.ReviewStatusPending
		}
		if c.Candidates == nil {
			c.Candidates = []models.CandidateRef{}
		}
		ib.Values(c.ID, c.RunID, c.RecordIndex, c.Source, database.NewJSONB(c.Record), c.Score,
			database.NewJSONB(c.Candidates), string(c.Status), c.ChosenRefID, c.CanonicalID,
			c.ResolvedBy, c.ResolvedAt, c.CreatedAt, c.UpdatedAt)
	}
	ib.OnConflict([]string{"run_id", "record_index"})

	query, args := ib.Build()
	if _, err := r.db.Conn(ctx).ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to create review candidates batch")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to create review candidates")
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{"count": len(candidates)}).Debug("Created review candidates batch")
	return nil
}

// Get retrieves a review candidate by id
func (r *Repository) Get(ctx context.Context, id string) (*models.ReviewCandidate, error) {
	ctx, span := tracing.StartSpan(ctx, "reviewcandidate.Repository.Get")
	defer span.End()

	if _, err := uuid.Parse(id); err != nil {
		return nil, httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("review candidate %s not found", id))
	}

	sb := database.NewSelectBuilder()
	sb.Select(columns...)
	sb.From(table)
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	var out row
	if err := r.db.Conn(ctx).GetContext(ctx, &out, query, args...); err != nil {
		if database.IsNoRows(err) {
			return nil, httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("review candidate %s not found", id))
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get review candidate")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get review candidate")
	}

	candidate := out.toModel()
	return &candidate, nil
}

// ListPending returns pending candidates, best scores first
func (r *Repository) ListPending(ctx context.Context, runID string, limit int) ([]models.ReviewCandidate, error) {
	ctx, span := tracing.StartSpan(ctx, "reviewcandidate.Repository.ListPending")
	defer span.End()

	if limit < 1 || limit > 500 {
		limit = 100
	}

	sb := database.NewSelectBuilder()
	sb.Select(columns...)
	sb.From(table)
	where := []string{sb.Equal("status", string(models.ReviewStatusPending))}
	if runID != "" {
		where = append(where, sb.Equal("run_id", runID))
	}
	sb.Where(where...)
	sb.OrderBy("score DESC", "created_at DESC", "record_index")
	sb.Limit(limit)

	query, args := sb.Build()
	var rows []row
	if err := r.db.Conn(ctx).SelectContext(ctx, &rows, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list pending review candidates")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list pending review candidates")
	}

	out := make([]models.ReviewCandidate, len(rows))
	for i, rw := range rows {
		out[i] = rw.toModel()
	}
	return out, nil
}

// Resolve closes a pending candidate. A candidate that is already resolved is a conflict.
func (r *Repository) Resolve(ctx context.Context, id string, res Resolution) error {
	ctx, span := tracing.StartSpan(ctx, "reviewcandidate.Repository.Resolve")
	defer span.End()

	if !res.Status.IsResolved() {
		return httperror.NewHTTPErrorf(http.StatusBadRequest, "cannot resolve review candidate to status %s", res.Status)
	}
	if _, err := uuid.Parse(id); err != nil {
		return httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("review candidate %s not found", id))
	}

	now := time.Now().UTC()
	ub := database.NewUpdateBuilder()
	ub.Update(table)
	ub.Set(
		ub.Assign("status", string(res.Status)),
		ub.Assign("chosen_ref_id", res.ChosenRefID),
		ub.Assign("canonical_id", res.CanonicalID),
		ub.Assign("resolved_by", res.ResolvedBy),
		ub.Assign("resolved_at", now),
		ub.Assign("updated_at", now),
	)
	ub.Where(
		ub.Equal("id", id),
		ub.Equal("status", string(models.ReviewStatusPending)),
	)

	query, args := ub.Build()
	result, err := r.db.Conn(ctx).ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to resolve review candidate")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to resolve review candidate")
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		if _, err := r.Get(ctx, id); err != nil {
			return err
		}
		return httperror.NewHTTPError(http.StatusConflict, fmt.Sprintf("review candidate %s is already resolved", id))
	}

	return nil
}

// CountByStatus returns the number of candidates per status
func (r *Repository) CountByStatus(ctx context.Context) (map[models.ReviewStatus]int, error) {
	ctx, span := tracing.StartSpan(ctx, "reviewcandidate.Repository.CountByStatus")
	defer span.End()

	var rows []struct {
		Status string `db:"status"`
		Count  int    `db:"count"`
	}
	query := "SELECT status, COUNT(*) AS count FROM " + table + " GROUP BY status"
	if err := r.db.Conn(ctx).SelectContext(ctx, &rows, query); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to count review candidates")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to count review candidates")
	}

	out := make(map[models.ReviewStatus]int, len(rows))
	for _, rw := range rows {
		out[models.ReviewStatus(rw.Status)] = rw.Count
	}
	return out, nil
}
