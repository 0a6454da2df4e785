// Package matching resolves input records against a reference set of
// organizations: exact identifier lookups first, then blocked fuzzy scoring
// with tiered classification.
package matching

import (
	"cmp"
	"context"
	"slices"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/hollomancer/sbir-analytics-sub004/internal/tracing"
	"github.com/hollomancer/sbir-analytics-sub004/pkg/fingerprint"
	"github.com/hollomancer/sbir-analytics-sub004/pkg/models"
	"github.com/hollomancer/sbir-analytics-sub004/pkg/normalizers"
	"github.com/hollomancer/sbir-analytics-sub004/pkg/resolveerr"
	"github.com/hollomancer/sbir-analytics-sub004/pkg/utils"
)

// Config holds matching configuration. It is loaded from the match profile file.
type Config struct {
	HighThreshold      int `toml:"high_threshold" json:"high_threshold" validate:"gte=0,lte=100,gtefield=MedThreshold"`
	MedThreshold       int `toml:"med_threshold" json:"med_threshold" validate:"gte=0,lte=100"`
	TopK               int `toml:"top_k" json:"top_k" validate:"gte=1"`
	BlockPrefixLen     int `toml:"block_prefix_len" json:"block_prefix_len" validate:"gte=0"`
	FallbackSampleSize int `toml:"fallback_sample_size" json:"fallback_sample_size" validate:"gte=0"`

	RemoveSuffixes      bool              `toml:"remove_suffixes" json:"remove_suffixes"`
	ApplyAbbreviations  bool              `toml:"apply_abbreviations" json:"apply_abbreviations"`
	CustomAbbreviations map[string]string `toml:"custom_abbreviations" json:"custom_abbreviations,omitempty"`

	EnablePhoneticMatching  bool    `toml:"enable_phonetic_matching" json:"enable_phonetic_matching"`
	PhoneticBoost           int     `toml:"phonetic_boost" json:"phonetic_boost" validate:"gte=0,lte=100"`
	EnableJaroWinkler       bool    `toml:"enable_jaro_winkler" json:"enable_jaro_winkler"`
	JaroWinklerUseAsPrimary bool    `toml:"jaro_winkler_use_as_primary" json:"jaro_winkler_use_as_primary"`
	JaroWinklerPrefixWeight float64 `toml:"jaro_winkler_prefix_weight" json:"jaro_winkler_prefix_weight" validate:"gte=0,lte=0.25"`
}

// DefaultConfig returns default matching configuration
func DefaultConfig() Config {
	return Config{
		HighThreshold:           90,
		MedThreshold:            75,
		TopK:                    3,
		BlockPrefixLen:          DefaultBlockPrefixLen,
		FallbackSampleSize:      DefaultFallbackSampleSize,
		RemoveSuffixes:          true,
		PhoneticBoost:           DefaultPhoneticBoost,
		JaroWinklerPrefixWeight: DefaultJaroWinklerPrefixWeight,
	}
}

// Validate checks ranges and that med_threshold <= high_threshold
func (c Config) Validate() error {
	_, err := utils.Validate(c)
	return err
}

// NameOptions returns the normalizer options implied by the config
func (c Config) NameOptions() normalizers.NameOptions {
	return normalizers.NameOptions{
		RemoveSuffixes:     c.RemoveSuffixes,
		ApplyAbbreviations: c.ApplyAbbreviations,
		Abbreviations:      c.CustomAbbreviations,
	}
}

// Fingerprint identifies the config for cache keys
func (c Config) Fingerprint() string {
	fp, err := fingerprint.Struct(c)
	if err != nil {
		return ""
	}
	return fp
}

// Indices are the immutable structures built once per reference set and
// shared read-only by every concurrent Match call
type Indices struct {
	Refs        *ReferenceSet
	Blocking    *BlockingIndex
	Identifiers *IdentifierIndices
	Collisions  int
}

// BuildReport summarizes an index build
type BuildReport struct {
	Organizations int                                     `json:"organizations"`
	Blocking      BlockingStats                           `json:"blocking"`
	Collisions    []resolveerr.IdentifierCollisionWarning `json:"collisions,omitempty"`
	Version       string                                  `json:"version"`
	Duration      time.Duration                           `json:"duration"`
}

// Matcher classifies input records against built Indices. Match is pure, so
// one Matcher serves any number of goroutines.
type Matcher struct {
	cfg        Config
	normalizer *normalizers.NameNormalizer
	scorer     *ComposedScorer
	logger     ectologger.Logger
}

// NewMatcher creates a matcher for cfg
func NewMatcher(cfg Config, logger ectologger.Logger) *Matcher {
	return &Matcher{
		cfg:        cfg,
		normalizer: normalizers.NewNameNormalizer(cfg.NameOptions()),
		scorer:     NewComposedScorer(cfg),
		logger:     logger,
	}
}

// Config returns the matcher's configuration
func (m *Matcher) Config() Config {
	return m.cfg
}

// Normalizer returns the name normalizer used for both indexing and matching
func (m *Matcher) Normalizer() *normalizers.NameNormalizer {
	return m.normalizer
}

// Scorer returns the composed scorer
func (m *Matcher) Scorer() *ComposedScorer {
	return m.scorer
}

// BuildIndices builds the reference set, blocking index and identifier indices.
// It is the single-writer phase: the result must not be mutated afterwards.
// Identifier collisions are logged and reported; a malformed reference set is a DataError.
func (m *Matcher) BuildIndices(ctx context.Context, orgs []models.OrganizationRef) (*Indices, *BuildReport, error) {
	ctx, span := tracing.StartSpan(ctx, "matching.Matcher.BuildIndices")
	defer span.End()

	log := m.logger.WithContext(ctx)
	start := time.Now()

	refs, err := NewReferenceSet(orgs, m.normalizer)
	if err != nil {
		log.WithError(err).Error("Failed to build reference set")
		return nil, nil, err
	}

	blocking := BuildBlockingIndex(refs, m.cfg.BlockPrefixLen, m.cfg.FallbackSampleSize)
	identifiers, collisions := BuildIdentifierIndices(refs)

	for _, c := range collisions {
		log.WithFields(map[string]any{
			"kind":            c.Kind,
			"value":           c.Value,
			"previous_ref_id": c.PreviousRefID,
			"ref_id":          c.RefID,
		}).Warn("Identifier shared by two reference organizations; last write wins")
	}

	report := &BuildReport{
		Organizations: refs.Len(),
		Blocking:      blocking.Stats(),
		Collisions:    collisions,
		Version:       refs.Version(),
		Duration:      time.Since(start),
	}

	ueiCount, dunsCount, cageCount := identifiers.Sizes()
	log.WithFields(map[string]any{
		"organizations":  report.Organizations,
		"buckets":        report.Blocking.Buckets,
		"largest_bucket": report.Blocking.LargestBucket,
		"uei_indexed":    ueiCount,
		"duns_indexed":   dunsCount,
		"cage_indexed":   cageCount,
		"collisions":     len(collisions),
		"duration":       report.Duration,
	}).Info("Built reference indices")

	return &Indices{Refs: refs, Blocking: blocking, Identifiers: identifiers, Collisions: len(collisions)}, report, nil
}

// Match resolves one record. Exact UEI, DUNS and CAGE lookups win in that
// order; otherwise blocked candidates are scored, sorted by score descending
// then ref id ascending, trimmed to top_k and classified by threshold.
// A record with no name and no identifiers resolves to no_candidates.
func (m *Matcher) Match(record models.InputRecord, idx *Indices) models.MatchResult {
	if record.IsEmpty() {
		return models.MatchResult{Method: models.MatchMethodNoCandidates, Skipped: true}
	}
	if idx == nil || idx.Refs.Len() == 0 {
		return models.MatchResult{Method: models.MatchMethodNoCandidates}
	}

	if pos, ok := idx.Identifiers.LookupUEI(normalizers.CleanUEI(record.UEI)); ok {
		return exact(idx.Refs.At(pos), models.MatchMethodUEIExact)
	}
	if pos, ok := idx.Identifiers.LookupDUNS(normalizers.CleanDUNS(record.DUNS)); ok {
		return exact(idx.Refs.At(pos), models.MatchMethodDUNSExact)
	}
	if pos, ok := idx.Identifiers.LookupCAGE(normalizers.CleanCAGE(record.CAGE)); ok {
		return exact(idx.Refs.At(pos), models.MatchMethodCAGEExact)
	}

	name := m.normalizer.Normalize(record.Name)
	if name == "" {
		return models.MatchResult{Method: models.MatchMethodNoCandidates}
	}

	positions := idx.Blocking.CandidatesFor(name, m.cfg.BlockPrefixLen)
	if len(positions) == 0 {
		return models.MatchResult{Method: models.MatchMethodNoCandidates}
	}

	candidates := make([]models.Candidate, len(positions))
	for i, pos := range positions {
		candidates[i] = models.Candidate{
			Ref:   idx.Refs.At(pos),
			Score: m.scorer.Score(name, idx.Refs.NormalizedName(pos)),
		}
	}
	SortCandidates(candidates)
	if topK := max(1, m.cfg.TopK); len(candidates) > topK {
		candidates = candidates[:topK]
	}

	return m.classify(candidates)
}

func (m *Matcher) classify(candidates []models.Candidate) models.MatchResult {
	best := candidates[0]
	result := models.MatchResult{Score: best.Score, Candidates: candidates}

	switch {
	case best.Score >= m.cfg.HighThreshold:
		result.Method = models.MatchMethodFuzzyAuto
		result.Matched = best.Ref
	case best.Score >= m.cfg.MedThreshold:
		result.Method = models.MatchMethodFuzzyCandidate
	default:
		result.Method = models.MatchMethodFuzzyLow
	}
	return result
}

func exact(ref *models.OrganizationRef, method models.MatchMethod) models.MatchResult {
	return models.MatchResult{Matched: ref, Score: 100, Method: method}
}

// SortCandidates orders by score descending, then ref id ascending
func SortCandidates(candidates []models.Candidate) {
	slices.SortStableFunc(candidates, func(a, b models.Candidate) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		return cmp.Compare(a.Ref.RefID, b.Ref.RefID)
	})
}
