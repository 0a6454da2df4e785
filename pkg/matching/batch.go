package matching

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/hollomancer/sbir-analytics-sub004/internal/tracing"
	"github.com/hollomancer/sbir-analytics-sub004/pkg/cache"
	"github.com/hollomancer/sbir-analytics-sub004/pkg/fingerprint"
	"github.com/hollomancer/sbir-analytics-sub004/pkg/models"
	"github.com/hollomancer/sbir-analytics-sub004/pkg/normalizers"
	"github.com/hollomancer/sbir-analytics-sub004/pkg/resolveerr"
)

const (
	DefaultWorkers   = 4
	DefaultChunkSize = 1000
	DefaultCacheTTL  = time.Hour
)

// Recorder receives batch metrics
type Recorder interface {
	ObserveMatch(method models.MatchMethod)
	ObserveBatch(summary BatchSummary)
}

// ReviewItem is a fuzzy_candidate result queued for human review
type ReviewItem struct {
	Index      int                `json:"index"`
	Record     models.InputRecord `json:"record"`
	Score      int                `json:"score"`
	Candidates []models.Candidate `json:"candidates"`
}

// MethodCount is one row of a summary's per-method counts
type MethodCount struct {
	Method models.MatchMethod `json:"method"`
	Count  int                `json:"count"`
}

// BatchSummary aggregates one batch run
type BatchSummary struct {
	RunID                string                     `json:"run_id"`
	Total                int                        `json:"total"`
	ByMethod             map[models.MatchMethod]int `json:"by_method"`
	Skipped              int                        `json:"skipped"`
	SkippedRecords       []resolveerr.RecordSkipped `json:"skipped_records,omitempty"`
	Failed               int                        `json:"failed"`
	IdentifierCollisions int                        `json:"identifier_collisions"`
	ReviewQueued         int                        `json:"review_queued"`
	CacheHits            int                        `json:"cache_hits"`
	Duration             time.Duration              `json:"duration"`
}

// Counts returns per-method counts in declaration order, including zeros
func (s BatchSummary) Counts() []MethodCount {
	methods := models.AllMatchMethods()
	counts := make([]MethodCount, len(methods))
	for i, m := range methods {
		counts[i] = MethodCount{Method: m, Count: s.ByMethod[m]}
	}
	return counts
}

// BatchOutput holds one result per input record, in input order
type BatchOutput struct {
	Results []models.MatchResult `json:"results"`
	Review  []ReviewItem         `json:"review"`
	Summary BatchSummary         `json:"summary"`
}

// BatchOption configures a Batch
type BatchOption func(*Batch)

// WithWorkers bounds the number of chunks matched in parallel
func WithWorkers(n int) BatchOption {
	return func(b *Batch) {
		if n > 0 {
			b.workers = n
		}
	}
}

// WithChunkSize sets the number of records per parallel chunk
func WithChunkSize(n int) BatchOption {
	return func(b *Batch) {
		if n > 0 {
			b.chunkSize = n
		}
	}
}

// WithCache caches match results for ttl
func WithCache(c cache.Cache, ttl time.Duration) BatchOption {
	return func(b *Batch) {
		b.cache = c
		b.cacheTTL = ttl
	}
}

// WithRecorder reports metrics to r
func WithRecorder(r Recorder) BatchOption {
	return func(b *Batch) {
		b.recorder = r
	}
}

// Batch matches many records in parallel chunks
type Batch struct {
	matcher   *Matcher
	logger    ectologger.Logger
	workers   int
	chunkSize int
	cache     cache.Cache
	cacheTTL  time.Duration
	recorder  Recorder
}

// NewBatch creates a batch runner around matcher
func NewBatch(matcher *Matcher, logger ectologger.Logger, opts ...BatchOption) *Batch {
	b := &Batch{
		matcher:   matcher,
		logger:    logger,
		workers:   DefaultWorkers,
		chunkSize: DefaultChunkSize,
		cacheTTL:  DefaultCacheTTL,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Run matches every record against idx. Output order equals input order.
// A failing record is isolated and counted; cancellation returns ctx.Err()
// and discards partial results, so a re-run is safe.
func (b *Batch) Run(ctx context.Context, records []models.InputRecord, idx *Indices) (*BatchOutput, error) {
	ctx, span := tracing.StartSpan(ctx, "matching.Batch.Run")
	defer span.End()

	runID := uuid.NewString()
	log := b.logger.WithContext(ctx).WithField("run_id", runID)
	start := time.Now()

	results := make([]models.MatchResult, len(records))
	var cacheHits, failed atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.workers)

	for lo := 0; lo < len(records); lo += b.chunkSize {
		hi := min(lo+b.chunkSize, len(records))
		g.Go(func() error {
			for i := lo; i < hi; i++ {
				if err := gctx.Err(); err != nil {
					return err
				}
				result, hit, err := b.matchOne(gctx, records[i], idx)
				if err != nil {
					failed.Add(1)
					log.WithError(err).WithFields(map[string]any{
						"index":     i,
						"record_id": records[i].RecordID,
					}).Error("Failed to match record")
				}
				if hit {
					cacheHits.Add(1)
				}
				results[i] = result
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		log.WithError(err).Warn("Batch cancelled")
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out := &BatchOutput{
		Results: results,
		Summary: BatchSummary{
			RunID:     runID,
			Total:     len(records),
			ByMethod:  make(map[models.MatchMethod]int),
			Failed:    int(failed.Load()),
			CacheHits: int(cacheHits.Load()),
		},
	}
	if idx != nil {
		out.Summary.IdentifierCollisions = idx.Collisions
	}

	for i, r := range results {
		out.Summary.ByMethod[r.Method]++
		if r.Skipped {
			out.Summary.Skipped++
			out.Summary.SkippedRecords = append(out.Summary.SkippedRecords, resolveerr.RecordSkipped{
				Index:    i,
				RecordID: records[i].RecordID,
			})
		}
		if r.Method == models.MatchMethodFuzzyCandidate {
			out.Review = append(out.Review, ReviewItem{
				Index:      i,
				Record:     records[i],
				Score:      r.Score,
				Candidates: r.Candidates,
			})
		}
		if b.recorder != nil {
			b.recorder.ObserveMatch(r.Method)
		}
	}
	out.Summary.ReviewQueued = len(out.Review)
	out.Summary.Duration = time.Since(start)

	if b.recorder != nil {
		b.recorder.ObserveBatch(out.Summary)
	}

	fields := map[string]any{
		"total":                 out.Summary.Total,
		"skipped":               out.Summary.Skipped,
		"failed":                out.Summary.Failed,
		"review_queued":         out.Summary.ReviewQueued,
		"cache_hits":            out.Summary.CacheHits,
		"identifier_collisions": out.Summary.IdentifierCollisions,
		"duration":              out.Summary.Duration,
	}
	for _, c := range out.Summary.Counts() {
		fields[c.Method.String()] = c.Count
	}
	log.WithFields(fields).Info("Batch matched")

	return out, nil
}

// matchOne matches one record, consulting the cache first. A panic inside
// Match is recovered into a no_candidates result and an error.
func (b *Batch) matchOne(ctx context.Context, record models.InputRecord, idx *Indices) (result models.MatchResult, hit bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = models.MatchResult{Method: models.MatchMethodNoCandidates}
			hit = false
			err = fmt.Errorf("panic while matching record: %v", r)
		}
	}()

	if b.cache == nil || idx == nil || record.IsEmpty() {
		return b.matcher.Match(record, idx), false, nil
	}

	key := b.cacheKey(record, idx)
	if cached, ok := b.readCache(ctx, key, idx); ok {
		return cached, true, nil
	}

	result = b.matcher.Match(record, idx)
	b.writeCache(ctx, key, result)
	return result, false, nil
}

// cacheKey fingerprints the normalized record together with the config and
// reference set version, so a changed profile or reference set never hits
func (b *Batch) cacheKey(record models.InputRecord, idx *Indices) string {
	return "match:" + fingerprint.Strings(
		b.matcher.Config().Fingerprint(),
		idx.Refs.Version(),
		b.matcher.Normalizer().Normalize(record.Name),
		normalizers.CleanUEI(record.UEI),
		normalizers.CleanDUNS(record.DUNS),
		normalizers.CleanCAGE(record.CAGE),
	)
}

type cachedCandidate struct {
	RefID string `json:"ref_id"`
	Score int    `json:"score"`
}

type cachedResult struct {
	MatchedRefID string             `json:"matched_ref_id,omitempty"`
	Score        int                `json:"score"`
	Method       models.MatchMethod `json:"method"`
	Candidates   []cachedCandidate  `json:"candidates,omitempty"`
}

func (b *Batch) readCache(ctx context.Context, key string, idx *Indices) (models.MatchResult, bool) {
	raw, ok, err := b.cache.Get(ctx, key)
	if err != nil {
		b.logger.WithContext(ctx).WithError(err).Warn("Failed to read match cache")
		return models.MatchResult{}, false
	}
	if !ok {
		return models.MatchResult{}, false
	}

	var c cachedResult
	if err := json.Unmarshal(raw, &c); err != nil {
		return models.MatchResult{}, false
	}

	result := models.MatchResult{Score: c.Score, Method: c.Method}
	if c.MatchedRefID != "" {
		ref, found := idx.Refs.Lookup(c.MatchedRefID)
		if !found {
			return models.MatchResult{}, false
		}
		result.Matched = ref
	}
	for _, cc := range c.Candidates {
		ref, found := idx.Refs.Lookup(cc.RefID)
		if !found {
			return models.MatchResult{}, false
		}
		result.Candidates = append(result.Candidates, models.Candidate{Ref: ref, Score: cc.Score})
	}
	return result, true
}

func (b *Batch) writeCache(ctx context.Context, key string, result models.MatchResult) {
	c := cachedResult{
		MatchedRefID: result.MatchedRefID(),
		Score:        result.Score,
		Method:       result.Method,
	}
	for _, cand := range result.Candidates {
		c.Candidates = append(c.Candidates, cachedCandidate{RefID: cand.Ref.RefID, Score: cand.Score})
	}

	raw, err := json.Marshal(c)
	if err != nil {
		return
	}
	if err := b.cache.Set(ctx, key, raw, b.cacheTTL); err != nil {
		b.logger.WithContext(ctx).WithError(err).Warn("Failed to write match cache")
	}
}
