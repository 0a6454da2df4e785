// Package crosswalkrecord mirrors crosswalk records into Postgres
package crosswalkrecord

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"

	"github.com/hollomancer/sbir-analytics-sub004/internal/database"
	"github.com/hollomancer/sbir-analytics-sub004/internal/tracing"
	"github.com/hollomancer/sbir-analytics-sub004/pkg/models"
)

const table = "crosswalk_records"

var columns = []string{"canonical_id", "canonical_name", "uei", "cage", "duns", "aliases", "metadata", "created_at", "updated_at"}

// row is the database shape of a crosswalk record
type row struct {
	CanonicalID   string                               `db:"canonical_id"`
	CanonicalName string                               `db:"canonical_name"`
	UEI           *string                              `db:"uei"`
	CAGE          *string                              `db:"cage"`
	DUNS          *string                              `db:"duns"`
	Aliases       database.JSONB[[]models.AliasRecord] `db:"aliases"`
	Metadata      database.JSONB[map[string]any]       `db:"metadata"`
	CreatedAt     time.Time                            `db:"created_at"`
	UpdatedAt     time.Time                            `db:"updated_at"`
}

func (r row) toModel() *models.CrosswalkRecord {
	rec := &models.CrosswalkRecord{
		CanonicalID:   r.CanonicalID,
		CanonicalName: r.CanonicalName,
		UEI:           deref(r.UEI),
		CAGE:          deref(r.CAGE),
		DUNS:          deref(r.DUNS),
		Aliases:       r.Aliases.GetValue(),
		Metadata:      r.Metadata.GetValue(),
		CreatedAt:     r.CreatedAt.UTC(),
	}
	if rec.Aliases == nil {
		rec.Aliases = []models.AliasRecord{}
	}
	if rec.Metadata == nil {
		rec.Metadata = map[string]any{}
	}
	return rec
}

// Repository handles crosswalk record persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
	now    func() time.Time
}

// NewRepository creates a new crosswalk record repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
		now:    time.Now,
	}
}

func (r *Repository) values(rec *models.CrosswalkRecord, now time.Time) []any {
	aliases := rec.Aliases
	if aliases == nil {
		aliases = []models.AliasRecord{}
	}
	metadata := rec.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	return []any{
		rec.CanonicalID,
		rec.CanonicalName,
		nullIfEmpty(rec.UEI),
		nullIfEmpty(rec.CAGE),
		nullIfEmpty(rec.DUNS),
		database.NewJSONB(aliases),
		database.NewJSONB(metadata),
		rec.CreatedAt.UTC(),
		now,
	}
}

// Upsert writes one record, replacing any previous version
func (r *Repository) Upsert(ctx context.Context, rec *models.CrosswalkRecord) error {
	return r.UpsertBatch(ctx, []*models.CrosswalkRecord{rec})
}

// UpsertBatch writes records in one statement
func (r *Repository) UpsertBatch(ctx context.Context, recs []*models.CrosswalkRecord) error {
	ctx, span := tracing.StartSpan(ctx, "crosswalkrecord.Repository.UpsertBatch")
	defer span.End()

	if len(recs) == 0 {
		return nil
	}

	// one statement cannot upsert the same row twice
	latest := make(map[string]int, len(recs))
	for i, rec := range recs {
		latest[rec.CanonicalID] = i
	}

	now := r.now().UTC()
	ib := database.NewInsertBuilder()
	ib.InsertInto(table)
	ib.Cols(columns...)
	for i, rec := range recs {
		if latest[rec.CanonicalID] != i {
			continue
		}
		ib.Values(r.values(rec, now)...)
	}
	ib.OnConflict([]string{"canonical_id"}, "canonical_name", "uei", "cage", "duns", "aliases", "metadata", "updated_at")

	query, args := ib.Build()
	if _, err := r.db.Conn(ctx).ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"count": len(recs)}).Error("Failed to upsert crosswalk records")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to upsert crosswalk records")
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{"count": len(recs)}).Debug("Upserted crosswalk records")
	return nil
}

// Get retrieves a record by canonical id
func (r *Repository) Get(ctx context.Context, canonicalID string) (*models.CrosswalkRecord, error) {
	ctx, span := tracing.StartSpan(ctx, "crosswalkrecord.Repository.Get")
	defer span.End()

	sb := database.NewSelectBuilder()
	sb.Select(columns...)
	sb.From(table)
	sb.Where(sb.Equal("canonical_id", canonicalID))

	query, args := sb.Build()
	var out row
	if err := r.db.Conn(ctx).GetContext(ctx, &out, query, args...); err != nil {
		if database.IsNoRows(err) {
			return nil, httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("crosswalk record %s not found", canonicalID))
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get crosswalk record")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get crosswalk record")
	}

	return out.toModel(), nil
}

// List returns every record ordered by canonical id
func (r *Repository) List(ctx context.Context) ([]*models.CrosswalkRecord, error) {
	ctx, span := tracing.StartSpan(ctx, "crosswalkrecord.Repository.List")
	defer span.End()

	sb := database.NewSelectBuilder()
	sb.Select(columns...)
	sb.From(table)
	sb.OrderBy("canonical_id")

	query, args := sb.Build()
	var rows []row
	if err := r.db.Conn(ctx).SelectContext(ctx, &rows, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list crosswalk records")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list crosswalk records")
	}

	out := make([]*models.CrosswalkRecord, len(rows))
	for i, rw := range rows {
		out[i] = rw.toModel()
	}
	return out, nil
}

// Delete removes a record. Deleting a missing record is not an error.
func (r *Repository) Delete(ctx context.Context, canonicalID string) error {
	ctx, span := tracing.StartSpan(ctx, "crosswalkrecord.Repository.Delete")
	defer span.End()

	db := database.NewDeleteBuilder()
	db.DeleteFrom(table)
	db.Where(db.Equal("canonical_id", canonicalID))

	query, args := db.Build()
	if _, err := r.db.Conn(ctx).ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"canonical_id": canonicalID}).Error("Failed to delete crosswalk record")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to delete crosswalk record")
	}
	return nil
}

// ReplaceAll swaps the table contents for recs in one transaction
func (r *Repository) ReplaceAll(ctx context.Context, recs []*models.CrosswalkRecord) error {
	ctx, span := tracing.StartSpan(ctx, "crosswalkrecord.Repository.ReplaceAll")
	defer span.End()

	return database.WithTx(ctx, r.db, func(ctx context.Context, q database.Querier) error {
		if _, err := q.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			r.logger.WithContext(ctx).WithError(err).Error("Failed to clear crosswalk records")
			return httperror.NewHTTPError(http.StatusInternalServerError, "failed to replace crosswalk records")
		}
		for start := 0; start < len(recs); start += batchSize {
			end := min(start+batchSize, len(recs))
			if err := r.UpsertBatch(ctx, recs[start:end]); err != nil {
				return err
			}
		}
		r.logger.WithContext(ctx).WithFields(map[string]any{"count": len(recs)}).Info("Replaced crosswalk records")
		return nil
	})
}

// batchSize keeps one insert under Postgres' bind parameter limit
const batchSize = 500

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
