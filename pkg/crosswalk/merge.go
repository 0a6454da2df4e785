package crosswalk

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hollomancer/sbir-analytics-sub004/pkg/models"
	"github.com/hollomancer/sbir-analytics-sub004/pkg/resolveerr"
)

// MergeOutcome reports what AddOrMerge or MergeInto did
type MergeOutcome struct {
	CanonicalID string                     `json:"canonical_id"`
	Created     bool                       `json:"created"`
	Conflicts   []resolveerr.MergeConflict `json:"conflicts,omitempty"`
}

// lineageKeys are metadata lists concatenated rather than overwritten on merge
var lineageKeys = map[string]bool{
	models.MetadataAcquisitions:  true,
	models.MetadataAcquiredBy:    true,
	models.MetadataMergedRecords: true,
}

// AddOrMerge stores rec, merging it into an existing record when one of its
// identifiers (UEI, then CAGE, then DUNS) or its canonical id is already
// known. A new record without a canonical id gets a random one.
func (c *Crosswalk) AddOrMerge(rec models.CrosswalkRecord) (MergeOutcome, error) {
	incoming := rec.Clone()
	cleanIdentifiers(incoming)
	if c.normalize(incoming.CanonicalName) == "" && incoming.UEI == "" && incoming.CAGE == "" && incoming.DUNS == "" {
		return MergeOutcome{}, resolveerr.NewDataError("crosswalk record has no name and no identifiers")
	}

	c.mu.Lock()
	outcome, changes := c.addOrMergeLocked(incoming)
	c.mu.Unlock()

	c.notify(changes)
	return outcome, nil
}

func (c *Crosswalk) addOrMergeLocked(incoming *models.CrosswalkRecord) (MergeOutcome, []Change) {
	for _, f := range identifierFields(incoming) {
		if *f.value == "" {
			continue
		}
		if owner, ok := c.identifierIndex(f.kind)[*f.value]; ok {
			outcome := c.mergeLocked(owner, incoming)
			return outcome, []Change{c.upserted(owner, CauseMerged)}
		}
	}

	if incoming.CanonicalID != "" {
		if _, ok := c.records[incoming.CanonicalID]; ok {
			outcome := c.mergeLocked(incoming.CanonicalID, incoming)
			return outcome, []Change{c.upserted(incoming.CanonicalID, CauseMerged)}
		}
	}

	c.insertLocked(incoming)
	return MergeOutcome{CanonicalID: incoming.CanonicalID, Created: true},
		[]Change{c.upserted(incoming.CanonicalID, CauseCreated)}
}

func (c *Crosswalk) insertLocked(rec *models.CrosswalkRecord) {
	if rec.CanonicalID == "" {
		rec.CanonicalID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = c.now().UTC()
	}
	rec.Aliases = c.dedupAliases(rec.CanonicalName, rec.Aliases)
	rec.Metadata = models.CloneMetadata(rec.Metadata)

	c.records[rec.CanonicalID] = rec
	c.indexRecord(rec)

	c.logger.WithFields(map[string]any{
		"canonical_id":   rec.CanonicalID,
		"canonical_name": rec.CanonicalName,
	}).Debug("Created crosswalk record")
}

// dedupAliases drops aliases repeating the canonical name or an earlier alias
func (c *Crosswalk) dedupAliases(canonical string, aliases []models.AliasRecord) []models.AliasRecord {
	seen := map[string]bool{c.normalize(canonical): true}
	out := make([]models.AliasRecord, 0, len(aliases))
	for _, a := range aliases {
		key := c.normalize(a.Name)
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, a)
	}
	return out
}

// MergeInto merges incoming into the record existingID. Missing identifiers
// are filled unless another record owns them, aliases are unioned by
// normalized name, metadata is shallow-merged with incoming keys winning, and
// a differing incoming canonical name is kept as an alias.
func (c *Crosswalk) MergeInto(existingID string, incoming models.CrosswalkRecord) (MergeOutcome, error) {
	in := incoming.Clone()
	cleanIdentifiers(in)

	c.mu.Lock()
	if _, ok := c.records[existingID]; !ok {
		c.mu.Unlock()
		return MergeOutcome{}, fmt.Errorf("failed to merge into %s: %w", existingID, ErrNotFound)
	}
	outcome := c.mergeLocked(existingID, in)
	changes := []Change{c.upserted(existingID, CauseMerged)}
	c.mu.Unlock()

	c.notify(changes)
	return outcome, nil
}

func (c *Crosswalk) mergeLocked(existingID string, incoming *models.CrosswalkRecord) MergeOutcome {
	existing := c.records[existingID]
	outcome := MergeOutcome{CanonicalID: existingID}
	conflict := func(field, have, got, resolution string) {
		outcome.Conflicts = append(outcome.Conflicts, resolveerr.MergeConflict{
			CanonicalID: existingID,
			Field:       field,
			Existing:    have,
			Incoming:    got,
			Resolution:  resolution,
		})
	}

	incomingFields := identifierFields(incoming)
	for i, f := range identifierFields(existing) {
		value := *incomingFields[i].value
		switch {
		case value == "" || value == *f.value:
			continue
		case *f.value != "":
			conflict(f.kind, *f.value, value, resolveerr.ResolutionKeptExisting)
		default:
			index := c.identifierIndex(f.kind)
			if owner, ok := index[value]; ok && owner != existingID {
				// Existing names the record that keeps the identifier
				conflict(f.kind, owner, value, resolveerr.ResolutionIdentifierHeld)
				continue
			}
			*f.value = value
			index[value] = existingID
		}
	}

	existingKey := c.normalize(existing.CanonicalName)
	if incomingKey := c.normalize(incoming.CanonicalName); incomingKey != "" && incomingKey != existingKey {
		if c.addAliasLocked(existing, models.AliasRecord{Name: incoming.CanonicalName, Note: models.AliasNoteMergedCanonical}) {
			conflict("canonical_name", existing.CanonicalName, incoming.CanonicalName, resolveerr.ResolutionAliasDemoted)
		}
	}
	for _, a := range incoming.Aliases {
		c.addAliasLocked(existing, a)
	}

	existing.Metadata = mergeMetadata(existing.Metadata, incoming.Metadata)

	log := c.logger.WithFields(map[string]any{
		"canonical_id": existingID,
		"conflicts":    len(outcome.Conflicts),
	})
	for _, mc := range outcome.Conflicts {
		log.WithFields(map[string]any{
			"field":      mc.Field,
			"existing":   mc.Existing,
			"incoming":   mc.Incoming,
			"resolution": mc.Resolution,
		}).Debug("Resolved merge conflict")
	}
	log.Debug("Merged crosswalk record")

	return outcome
}

// addAliasLocked appends alias unless its normalized name is already the
// canonical name or an alias of rec
func (c *Crosswalk) addAliasLocked(rec *models.CrosswalkRecord, alias models.AliasRecord) bool {
	key := c.normalize(alias.Name)
	if key == "" || key == c.normalize(rec.CanonicalName) {
		return false
	}
	for _, a := range rec.Aliases {
		if c.normalize(a.Name) == key {
			return false
		}
	}
	rec.Aliases = append(rec.Aliases, alias)
	c.indexName(alias.Name, rec.CanonicalID)
	return true
}

func mergeMetadata(existing, incoming map[string]any) map[string]any {
	out := models.CloneMetadata(existing)
	for k, v := range models.CloneMetadata(incoming) {
		if lineageKeys[k] {
			have, okHave := out[k].([]any)
			got, okGot := v.([]any)
			if okHave && okGot {
				out[k] = append(have, got...)
				continue
			}
		}
		out[k] = v
	}
	return out
}

// AddAlias records name as an alias of id. It is idempotent by normalized
// name and reports whether an alias was added.
func (c *Crosswalk) AddAlias(id, name string, start, end *time.Time, note string) (bool, error) {
	c.mu.Lock()
	rec, ok := c.records[id]
	if !ok {
		c.mu.Unlock()
		return false, fmt.Errorf("failed to add alias to %s: %w", id, ErrNotFound)
	}
	alias := models.AliasRecord{Name: name, StartDate: start, EndDate: end, Note: note}
	added := c.addAliasLocked(rec, alias.Clone())
	var changes []Change
	if added {
		changes = append(changes, c.upserted(id, CauseAlias))
	}
	c.mu.Unlock()

	c.notify(changes)
	return added, nil
}

// Remove deletes the record and its index entries. It reports whether a
// record was removed; removing an unknown id is a no-op.
func (c *Crosswalk) Remove(id string) bool {
	c.mu.Lock()
	removed := c.removeLocked(id)
	var changes []Change
	if removed {
		changes = append(changes, c.removed(id, CauseRemoved))
	}
	c.mu.Unlock()

	c.notify(changes)
	return removed
}

func (c *Crosswalk) removeLocked(id string) bool {
	rec, ok := c.records[id]
	if !ok {
		return false
	}
	c.unindexRecord(rec)
	delete(c.records, id)
	return true
}
