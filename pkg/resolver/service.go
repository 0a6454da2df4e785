// Package resolver wires the matcher, the crosswalk and their mirrors into
// one service used by the HTTP routes and the CLI
package resolver

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"

	"github.com/hollomancer/sbir-analytics-sub004/internal/repositories/reviewcandidate"
	"github.com/hollomancer/sbir-analytics-sub004/internal/tracing"
	"github.com/hollomancer/sbir-analytics-sub004/pkg/cache"
	"github.com/hollomancer/sbir-analytics-sub004/pkg/crosswalk"
	"github.com/hollomancer/sbir-analytics-sub004/pkg/matching"
	"github.com/hollomancer/sbir-analytics-sub004/pkg/models"
)

// Mirror receives committed crosswalk changes
type Mirror interface {
	Upsert(ctx context.Context, rec *models.CrosswalkRecord) error
	Delete(ctx context.Context, canonicalID string) error
}

// replacer is a Mirror that can swap its whole contents after an import
type replacer interface {
	ReplaceAll(ctx context.Context, recs []*models.CrosswalkRecord) error
}

// ReviewStore persists the review queue
type ReviewStore interface {
	CreateBatch(ctx context.Context, candidates []*models.ReviewCandidate) error
	Get(ctx context.Context, id string) (*models.ReviewCandidate, error)
	ListPending(ctx context.Context, runID string, limit int) ([]models.ReviewCandidate, error)
	Resolve(ctx context.Context, id string, res reviewcandidate.Resolution) error
	CountByStatus(ctx context.Context) (map[models.ReviewStatus]int, error)
}

// EventSink publishes resolution events
type EventSink interface {
	EmitBatch(ctx context.Context, runID string, records []models.InputRecord, results []models.MatchResult) error
	EmitReviewQueued(ctx context.Context, candidates []*models.ReviewCandidate) error
	EmitCrosswalkChanges(ctx context.Context, changes []crosswalk.Change) error
	EmitImported(ctx context.Context, records int) error
}

// Recorder extends the batch recorder with index and crosswalk observations
type Recorder interface {
	matching.Recorder
	ObserveIndices(report *matching.BuildReport)
	ObserveCrosswalkChange(ch crosswalk.Change)
	ObserveCrosswalkSize(n int)
}

// Option configures a Service
type Option func(*Service)

func WithCache(c cache.Cache, ttl time.Duration) Option {
	return func(s *Service) {
		s.cache = c
		s.cacheTTL = ttl
	}
}

func WithWorkers(workers, chunkSize int) Option {
	return func(s *Service) {
		s.workers = workers
		s.chunkSize = chunkSize
	}
}

func WithReviewStore(r ReviewStore) Option {
	return func(s *Service) {
		s.reviews = r
	}
}

func WithMirror(m Mirror) Option {
	return func(s *Service) {
		s.mirrors = append(s.mirrors, m)
	}
}

func WithEvents(e EventSink) Option {
	return func(s *Service) {
		s.events = e
	}
}

func WithRecorder(r Recorder) Option {
	return func(s *Service) {
		s.recorder = r
	}
}

func WithSnapshotPath(path string) Option {
	return func(s *Service) {
		s.snapshotPath = path
	}
}

// WithCrosswalkOptions passes options through to the crosswalk
func WithCrosswalkOptions(opts ...crosswalk.Option) Option {
	return func(s *Service) {
		s.crosswalkOpts = append(s.crosswalkOpts, opts...)
	}
}

// Service owns the current reference indices and the crosswalk. Indices are
// swapped atomically so in-flight matches finish on the version they started with.
type Service struct {
	matcher *matching.Matcher
	logger  ectologger.Logger

	indices atomic.Pointer[matching.Indices]
	report  atomic.Pointer[matching.BuildReport]

	crosswalk     *crosswalk.Crosswalk
	crosswalkOpts []crosswalk.Option
	snapshotPath  string

	cache     cache.Cache
	cacheTTL  time.Duration
	workers   int
	chunkSize int

	reviews  ReviewStore
	mirrors  []Mirror
	events   EventSink
	recorder Recorder

	changes   chan crosswalk.Change
	closeMu   sync.RWMutex
	closed    bool
	dispatchW sync.WaitGroup
}

// New creates a service around matcher
func New(matcher *matching.Matcher, logger ectologger.Logger, opts ...Option) *Service {
	s := &Service{
		matcher:   matcher,
		logger:    logger,
		cache:     cache.Noop{},
		cacheTTL:  matching.DefaultCacheTTL,
		workers:   matching.DefaultWorkers,
		chunkSize: matching.DefaultChunkSize,
	}
	for _, opt := range opts {
		opt(s)
	}

	cwOpts := append([]crosswalk.Option{
		crosswalk.WithLogger(logger),
		crosswalk.WithScorer(matching.NewNameLookupScorer(matcher.Config())),
	}, s.crosswalkOpts...)
	cwOpts = append(cwOpts, crosswalk.WithObserver(s.observe))
	s.crosswalk = crosswalk.New(cwOpts...)

	if len(s.mirrors) > 0 || s.events != nil {
		s.changes = make(chan crosswalk.Change, changeBuffer)
		s.dispatchW.Add(1)
		go s.dispatch()
	}
	return s
}

// Matcher returns the matcher
func (s *Service) Matcher() *matching.Matcher {
	return s.matcher
}

// Crosswalk returns the crosswalk store
func (s *Service) Crosswalk() *crosswalk.Crosswalk {
	return s.crosswalk
}

// Ready reports whether a reference set has been loaded
func (s *Service) Ready() bool {
	return s.indices.Load() != nil
}

// Report returns the build report of the current indices
func (s *Service) Report() *matching.BuildReport {
	return s.report.Load()
}

// LoadReferences builds indices for orgs and swaps them in. On error the
// previous indices stay current.
func (s *Service) LoadReferences(ctx context.Context, orgs []models.OrganizationRef) (*matching.BuildReport, error) {
	ctx, span := tracing.StartSpan(ctx, "resolver.Service.LoadReferences")
	defer span.End()

	idx, report, err := s.matcher.BuildIndices(ctx, orgs)
	if err != nil {
		return nil, err
	}

	s.indices.Store(idx)
	s.report.Store(report)
	if s.recorder != nil {
		s.recorder.ObserveIndices(report)
	}

	s.logger.WithContext(ctx).WithFields(map[string]any{
		"organizations": report.Organizations,
		"version":       report.Version,
	}).Info("Reference indices swapped in")
	return report, nil
}

// Match resolves one record against the current indices. With no reference
// set loaded every record resolves to no_candidates.
func (s *Service) Match(ctx context.Context, record models.InputRecord) models.MatchResult {
	_, span := tracing.StartSpan(ctx, "resolver.Service.Match")
	defer span.End()

	result := s.matcher.Match(record, s.indices.Load())
	if s.recorder != nil {
		s.recorder.ObserveMatch(result.Method)
	}
	return result
}

func (s *Service) requireReviews() error {
	if s.reviews == nil {
		return httperror.NewHTTPError(http.StatusServiceUnavailable, "review queue is not configured")
	}
	return nil
}
