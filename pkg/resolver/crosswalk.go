package resolver

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"

	"github.com/hollomancer/sbir-analytics-sub004/internal/tracing"
	"github.com/hollomancer/sbir-analytics-sub004/pkg/crosswalk"
	"github.com/hollomancer/sbir-analytics-sub004/pkg/models"
)

// AliasRequest adds an alias to a canonical record
type AliasRequest struct {
	Name      string     `json:"name" validate:"required"`
	StartDate *time.Time `json:"start_date,omitempty"`
	EndDate   *time.Time `json:"end_date,omitempty"`
	Note      string     `json:"note,omitempty"`
}

// AcquisitionRequest records that AcquirerID acquired AcquiredID
type AcquisitionRequest struct {
	AcquirerID string     `json:"acquirer_id" validate:"required"`
	AcquiredID string     `json:"acquired_id" validate:"required"`
	Date       *time.Time `json:"date,omitempty"`
	Merge      bool       `json:"merge"`
	Note       string     `json:"note,omitempty"`
}

// LookupResult is the outcome of a crosswalk lookup
type LookupResult struct {
	Record *models.CrosswalkRecord `json:"record"`
	Method crosswalk.LookupMethod  `json:"method"`
	Score  float64                 `json:"score"`
}

// AddOrMerge stores rec in the crosswalk
func (s *Service) AddOrMerge(ctx context.Context, rec models.CrosswalkRecord) (crosswalk.MergeOutcome, error) {
	_, span := tracing.StartSpan(ctx, "resolver.Service.AddOrMerge")
	defer span.End()

	outcome, err := s.crosswalk.AddOrMerge(rec)
	return outcome, crosswalkError(err)
}

// MergeInto merges rec into the record id
func (s *Service) MergeInto(ctx context.Context, id string, rec models.CrosswalkRecord) (crosswalk.MergeOutcome, error) {
	_, span := tracing.StartSpan(ctx, "resolver.Service.MergeInto")
	defer span.End()

	outcome, err := s.crosswalk.MergeInto(id, rec)
	return outcome, crosswalkError(err)
}

// AddAlias adds an alias and returns the updated record
func (s *Service) AddAlias(ctx context.Context, id string, req AliasRequest) (*models.CrosswalkRecord, bool, error) {
	_, span := tracing.StartSpan(ctx, "resolver.Service.AddAlias")
	defer span.End()

	added, err := s.crosswalk.AddAlias(id, req.Name, req.StartDate, req.EndDate, req.Note)
	if err != nil {
		return nil, false, crosswalkError(err)
	}
	return s.crosswalk.Get(id), added, nil
}

// RemoveRecord deletes a canonical record
func (s *Service) RemoveRecord(ctx context.Context, id string) error {
	_, span := tracing.StartSpan(ctx, "resolver.Service.RemoveRecord")
	defer span.End()

	if !s.crosswalk.Remove(id) {
		return httperror.NewHTTPErrorf(http.StatusNotFound, "crosswalk record %s not found", id)
	}
	s.logger.WithContext(ctx).WithField("canonical_id", id).Info("Crosswalk record removed")
	return nil
}

// HandleAcquisition records an acquisition and returns the acquirer
func (s *Service) HandleAcquisition(ctx context.Context, req AcquisitionRequest) (*models.CrosswalkRecord, error) {
	_, span := tracing.StartSpan(ctx, "resolver.Service.HandleAcquisition")
	defer span.End()

	if req.AcquirerID == req.AcquiredID {
		return nil, httperror.NewHTTPErrorf(http.StatusBadRequest, "%s cannot acquire itself", req.AcquirerID)
	}
	if err := s.crosswalk.HandleAcquisition(req.AcquirerID, req.AcquiredID, req.Date, req.Merge, req.Note); err != nil {
		return nil, crosswalkError(err)
	}
	return s.crosswalk.Get(req.AcquirerID), nil
}

// GetRecord returns one canonical record
func (s *Service) GetRecord(ctx context.Context, id string) (*models.CrosswalkRecord, error) {
	_, span := tracing.StartSpan(ctx, "resolver.Service.GetRecord")
	defer span.End()

	rec := s.crosswalk.Get(id)
	if rec == nil {
		return nil, httperror.NewHTTPErrorf(http.StatusNotFound, "crosswalk record %s not found", id)
	}
	return rec, nil
}

// Records returns every canonical record ordered by canonical id
func (s *Service) Records(ctx context.Context) []*models.CrosswalkRecord {
	_, span := tracing.StartSpan(ctx, "resolver.Service.Records")
	defer span.End()

	return s.crosswalk.Records()
}

// Lookup resolves q by UEI, CAGE, DUNS and then name. A zero threshold uses
// crosswalk.DefaultNameThreshold.
func (s *Service) Lookup(ctx context.Context, q crosswalk.Query, threshold float64) (*LookupResult, error) {
	_, span := tracing.StartSpan(ctx, "resolver.Service.Lookup")
	defer span.End()

	if q.UEI == "" && q.CAGE == "" && q.DUNS == "" && q.Name == "" {
		return nil, httperror.NewHTTPError(http.StatusBadRequest, "lookup needs a uei, cage, duns or name")
	}
	if threshold <= 0 {
		threshold = crosswalk.DefaultNameThreshold
	}
	if threshold > 1 {
		return nil, httperror.NewHTTPErrorf(http.StatusBadRequest, "threshold %v is above 1", threshold)
	}

	rec, method, score := s.crosswalk.FindByAny(q, threshold)
	if rec == nil {
		return nil, httperror.NewHTTPError(http.StatusNotFound, "no crosswalk record matches the lookup")
	}
	return &LookupResult{Record: rec, Method: method, Score: score}, nil
}

// Export writes the crosswalk as JSON lines
func (s *Service) Export(ctx context.Context, w io.Writer) error {
	ctx, span := tracing.StartSpan(ctx, "resolver.Service.Export")
	defer span.End()

	return s.crosswalk.Export(ctx, w)
}

// Import replaces the crosswalk with the JSON lines read from r. The mirrors'
// contents are replaced to match once every earlier change has reached them.
func (s *Service) Import(ctx context.Context, r io.Reader) (int, error) {
	ctx, span := tracing.StartSpan(ctx, "resolver.Service.Import")
	defer span.End()

	n, err := s.crosswalk.Import(ctx, r)
	if err != nil {
		return 0, crosswalkError(err)
	}
	s.imported(ctx, n)
	return n, nil
}

// SaveSnapshot writes the crosswalk to the configured snapshot path
func (s *Service) SaveSnapshot(ctx context.Context) error {
	ctx, span := tracing.StartSpan(ctx, "resolver.Service.SaveSnapshot")
	defer span.End()

	if s.snapshotPath == "" {
		return httperror.NewHTTPError(http.StatusServiceUnavailable, "crosswalk snapshot path is not configured")
	}
	return s.crosswalk.SaveSnapshot(ctx, s.snapshotPath)
}

// LoadSnapshot replaces the crosswalk with the configured snapshot
func (s *Service) LoadSnapshot(ctx context.Context) (int, error) {
	ctx, span := tracing.StartSpan(ctx, "resolver.Service.LoadSnapshot")
	defer span.End()

	if s.snapshotPath == "" {
		return 0, httperror.NewHTTPError(http.StatusServiceUnavailable, "crosswalk snapshot path is not configured")
	}
	n, err := s.crosswalk.LoadSnapshot(ctx, s.snapshotPath)
	if err != nil {
		return 0, crosswalkError(err)
	}
	s.imported(ctx, n)
	return n, nil
}

// imported records the size of a freshly imported crosswalk. The mirrors and
// the imported event follow through the dispatcher, after every earlier change.
func (s *Service) imported(ctx context.Context, n int) {
	if s.recorder != nil {
		s.recorder.ObserveCrosswalkSize(n)
	}
	s.logger.WithContext(ctx).WithField("records", n).Info("Crosswalk replaced")
}

// replaceMirror swaps the mirror's contents when it supports that and
// upserts every record otherwise
func replaceMirror(ctx context.Context, m Mirror, recs []*models.CrosswalkRecord) error {
	if r, ok := m.(replacer); ok {
		return r.ReplaceAll(ctx, recs)
	}
	var errs []error
	for _, rec := range recs {
		if err := m.Upsert(ctx, rec); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// crosswalkError maps crosswalk errors onto HTTP statuses. DataErrors are
// left to the error middleware.
func crosswalkError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, crosswalk.ErrNotFound) {
		return httperror.NewHTTPError(http.StatusNotFound, err.Error())
	}
	return err
}
