// Package crosswalk is the canonical organization store. Every UEI, CAGE and
// DUNS maps to exactly one canonical record; names map to a set of records.
package crosswalk

import (
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/hollomancer/sbir-analytics-sub004/pkg/matching"
	"github.com/hollomancer/sbir-analytics-sub004/pkg/models"
	"github.com/hollomancer/sbir-analytics-sub004/pkg/normalizers"
)

// ErrNotFound is returned when a canonical id is unknown
var ErrNotFound = errors.New("crosswalk record not found")

// ChangeKind describes a committed mutation
type ChangeKind string

const (
	ChangeUpserted ChangeKind = "upserted"
	ChangeRemoved  ChangeKind = "removed"
	// ChangeReplaced follows an import; Records holds the whole new contents
	ChangeReplaced ChangeKind = "replaced"
)

// Change causes
const (
	CauseCreated     = "created"
	CauseMerged      = "merged"
	CauseAlias       = "alias"
	CauseAcquisition = "acquisition"
	CauseRemoved     = "removed"
	CauseImported    = "imported"
)

// Change is delivered to observers after the write lock is released, so
// observers of concurrent writers may see changes out of order. Seq is
// assigned under the write lock: it starts at 1, has no gaps and follows
// commit order. Record is a copy and is nil for removals and replacements.
type Change struct {
	Seq         uint64                    `json:"seq"`
	Kind        ChangeKind                `json:"kind"`
	Cause       string                    `json:"cause"`
	CanonicalID string                    `json:"canonical_id,omitempty"`
	Record      *models.CrosswalkRecord   `json:"record,omitempty"`
	Records     []*models.CrosswalkRecord `json:"-"`
}

// Observer receives committed changes, e.g. to mirror them elsewhere
type Observer func(Change)

// Option configures a Crosswalk
type Option func(*Crosswalk)

// WithNormalizer sets the name normalizer used for name_index keys
func WithNormalizer(n *normalizers.NameNormalizer) Option {
	return func(c *Crosswalk) {
		c.normalizer = n
	}
}

// WithScorer sets the scorer used by fuzzy FindByName
func WithScorer(s matching.Strategy) Option {
	return func(c *Crosswalk) {
		c.scorer = s
	}
}

// WithClock overrides the time source for created_at
func WithClock(now func() time.Time) Option {
	return func(c *Crosswalk) {
		c.now = now
	}
}

// WithLogger sets the logger
func WithLogger(l ectologger.Logger) Option {
	return func(c *Crosswalk) {
		c.logger = l
	}
}

// WithObserver registers an observer for committed changes
func WithObserver(o Observer) Option {
	return func(c *Crosswalk) {
		c.observers = append(c.observers, o)
	}
}

// Crosswalk holds canonical records and their lookup indices. Reads take the
// read lock per call; every mutation holds the write lock for its whole
// read-then-write unit.
type Crosswalk struct {
	mu        sync.RWMutex
	records   map[string]*models.CrosswalkRecord
	ueiIndex  map[string]string
	cageIndex map[string]string
	dunsIndex map[string]string
	nameIndex map[string]map[string]struct{}

	normalizer *normalizers.NameNormalizer
	scorer     matching.Strategy
	now        func() time.Time
	logger     ectologger.Logger
	observers  []Observer
	seq        uint64
}

// New creates an empty crosswalk. The default normalizer standardizes
// corporate suffixes instead of dropping them, and the default scorer is
// token set with the phonetic boost.
func New(opts ...Option) *Crosswalk {
	c := &Crosswalk{
		normalizer: normalizers.NewNameNormalizer(normalizers.NameOptions{}),
		scorer:     matching.NewNameLookupScorer(matching.DefaultConfig()),
		now:        time.Now,
		logger:     ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {}),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.reset()
	return c
}

func (c *Crosswalk) reset() {
	c.records = make(map[string]*models.CrosswalkRecord)
	c.ueiIndex = make(map[string]string)
	c.cageIndex = make(map[string]string)
	c.dunsIndex = make(map[string]string)
	c.nameIndex = make(map[string]map[string]struct{})
}

// Len returns the number of canonical records
func (c *Crosswalk) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.records)
}

// Get returns a copy of the record with canonical id id
func (c *Crosswalk) Get(id string) *models.CrosswalkRecord {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.records[id].Clone()
}

// Records returns copies of every record ordered by canonical id
func (c *Crosswalk) Records() []*models.CrosswalkRecord {
	c.mu.RLock()
	defer c.mu.RUnlock()

	ids := c.sortedIDs()
	out := make([]*models.CrosswalkRecord, len(ids))
	for i, id := range ids {
		out[i] = c.records[id].Clone()
	}
	return out
}

func (c *Crosswalk) sortedIDs() []string {
	ids := make([]string, 0, len(c.records))
	for id := range c.records {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

func (c *Crosswalk) normalize(name string) string {
	return c.normalizer.Normalize(name)
}

// identifierIndex returns the index for an identifier kind
func (c *Crosswalk) identifierIndex(kind string) map[string]string {
	switch kind {
	case matching.IdentifierUEI:
		return c.ueiIndex
	case matching.IdentifierCAGE:
		return c.cageIndex
	default:
		return c.dunsIndex
	}
}

func (c *Crosswalk) indexName(name, id string) {
	key := c.normalize(name)
	if key == "" {
		return
	}
	ids, ok := c.nameIndex[key]
	if !ok {
		ids = make(map[string]struct{})
		c.nameIndex[key] = ids
	}
	ids[id] = struct{}{}
}

func (c *Crosswalk) unindexName(name, id string) {
	key := c.normalize(name)
	ids, ok := c.nameIndex[key]
	if !ok {
		return
	}
	delete(ids, id)
	if len(ids) == 0 {
		delete(c.nameIndex, key)
	}
}

// indexRecord adds every identifier and name of rec. Identifiers already
// owned by another record are left to their owner.
func (c *Crosswalk) indexRecord(rec *models.CrosswalkRecord) {
	for _, f := range identifierFields(rec) {
		if *f.value == "" {
			continue
		}
		index := c.identifierIndex(f.kind)
		if _, taken := index[*f.value]; !taken {
			index[*f.value] = rec.CanonicalID
		}
	}
	c.indexName(rec.CanonicalName, rec.CanonicalID)
	for _, a := range rec.Aliases {
		c.indexName(a.Name, rec.CanonicalID)
	}
}

func (c *Crosswalk) unindexRecord(rec *models.CrosswalkRecord) {
	for _, f := range identifierFields(rec) {
		index := c.identifierIndex(f.kind)
		if owner, ok := index[*f.value]; ok && owner == rec.CanonicalID {
			delete(index, *f.value)
		}
	}
	c.unindexName(rec.CanonicalName, rec.CanonicalID)
	for _, a := range rec.Aliases {
		c.unindexName(a.Name, rec.CanonicalID)
	}
}

type identifierField struct {
	kind  string
	value *string
}

// identifierFields lists a record's identifiers in lookup priority order
func identifierFields(rec *models.CrosswalkRecord) []identifierField {
	return []identifierField{
		{matching.IdentifierUEI, &rec.UEI},
		{matching.IdentifierCAGE, &rec.CAGE},
		{matching.IdentifierDUNS, &rec.DUNS},
	}
}

func cleanIdentifiers(rec *models.CrosswalkRecord) {
	rec.UEI = normalizers.CleanUEI(rec.UEI)
	rec.CAGE = normalizers.CleanCAGE(rec.CAGE)
	rec.DUNS = normalizers.CleanDUNS(rec.DUNS)
}

func (c *Crosswalk) notify(changes []Change) {
	for _, ch := range changes {
		for _, o := range c.observers {
			o(ch)
		}
	}
}

// commit stamps ch with the next sequence number. Callers hold the write lock.
func (c *Crosswalk) commit(ch Change) Change {
	c.seq++
	ch.Seq = c.seq
	return ch
}

func (c *Crosswalk) upserted(id, cause string) Change {
	return c.commit(Change{Kind: ChangeUpserted, Cause: cause, CanonicalID: id, Record: c.records[id].Clone()})
}

func (c *Crosswalk) removed(id, cause string) Change {
	return c.commit(Change{Kind: ChangeRemoved, Cause: cause, CanonicalID: id})
}
