package crosswalk

import (
	"slices"
	"strings"

	"github.com/hollomancer/sbir-analytics-sub004/pkg/matching"
	"github.com/hollomancer/sbir-analytics-sub004/pkg/models"
	"github.com/hollomancer/sbir-analytics-sub004/pkg/normalizers"
)

// LookupMethod names how FindByAny resolved a query
type LookupMethod string

const (
	LookupUEI  LookupMethod = "uei"
	LookupCAGE LookupMethod = "cage"
	LookupDUNS LookupMethod = "duns"
	LookupName LookupMethod = "name"
	LookupNone LookupMethod = "none"
)

// DefaultNameThreshold is the minimum fuzzy score, on a 0-1 scale, for FindByName
const DefaultNameThreshold = 0.9

// Query holds the fields FindByAny tries, in order
type Query struct {
	UEI  string `json:"uei,omitempty" query:"uei"`
	CAGE string `json:"cage,omitempty" query:"cage"`
	DUNS string `json:"duns,omitempty" query:"duns"`
	Name string `json:"name,omitempty" query:"name"`
}

// FindByUEI returns the record owning uei, or nil
func (c *Crosswalk) FindByUEI(uei string) *models.CrosswalkRecord {
	return c.findByIdentifier(matching.IdentifierUEI, normalizers.CleanUEI(uei))
}

// FindByCAGE returns the record owning cage, or nil
func (c *Crosswalk) FindByCAGE(cage string) *models.CrosswalkRecord {
	return c.findByIdentifier(matching.IdentifierCAGE, normalizers.CleanCAGE(cage))
}

// FindByDUNS returns the record owning duns, or nil
func (c *Crosswalk) FindByDUNS(duns string) *models.CrosswalkRecord {
	return c.findByIdentifier(matching.IdentifierDUNS, normalizers.CleanDUNS(duns))
}

func (c *Crosswalk) findByIdentifier(kind, cleaned string) *models.CrosswalkRecord {
	if cleaned == "" {
		return nil
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	id, ok := c.identifierIndex(kind)[cleaned]
	if !ok {
		return nil
	}
	return c.records[id].Clone()
}

// FindByName resolves a name. A normalized name or alias hit scores 1.0, the
// smallest canonical id winning when several records share it. Otherwise every
// canonical name is scored and the best record is returned when its score,
// on a 0-1 scale, is at least threshold.
func (c *Crosswalk) FindByName(name string, threshold float64) (*models.CrosswalkRecord, float64) {
	key := c.normalize(name)
	if key == "" {
		return nil, 0
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	if ids, ok := c.nameIndex[key]; ok && len(ids) > 0 {
		best := ""
		for id := range ids {
			if best == "" || id < best {
				best = id
			}
		}
		return c.records[best].Clone(), 1.0
	}

	bestID, bestScore := "", -1
	for id, rec := range c.records {
		score := c.scorer.Score(key, c.normalize(rec.CanonicalName))
		if score > bestScore || (score == bestScore && id < bestID) {
			bestID, bestScore = id, score
		}
	}
	if bestID == "" {
		return nil, 0
	}

	similarity := float64(bestScore) / 100
	if similarity < threshold {
		return nil, 0
	}
	return c.records[bestID].Clone(), similarity
}

// FindByCanonicalName returns the records whose canonical name normalizes to
// the same key as name, ordered by canonical id. Aliases are not considered.
func (c *Crosswalk) FindByCanonicalName(name string) []*models.CrosswalkRecord {
	key := c.normalize(name)
	if key == "" {
		return nil
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	var out []*models.CrosswalkRecord
	for id := range c.nameIndex[key] {
		if rec := c.records[id]; c.normalize(rec.CanonicalName) == key {
			out = append(out, rec.Clone())
		}
	}
	slices.SortFunc(out, func(a, b *models.CrosswalkRecord) int {
		return strings.Compare(a.CanonicalID, b.CanonicalID)
	})
	return out
}

// FindByAny tries UEI, then CAGE, then DUNS, then name
func (c *Crosswalk) FindByAny(q Query, threshold float64) (*models.CrosswalkRecord, LookupMethod, float64) {
	if rec := c.FindByUEI(q.UEI); rec != nil {
		return rec, LookupUEI, 1.0
	}
	if rec := c.FindByCAGE(q.CAGE); rec != nil {
		return rec, LookupCAGE, 1.0
	}
	if rec := c.FindByDUNS(q.DUNS); rec != nil {
		return rec, LookupDUNS, 1.0
	}
	if rec, score := c.FindByName(q.Name, threshold); rec != nil {
		return rec, LookupName, score
	}
	return nil, LookupNone, 0
}
