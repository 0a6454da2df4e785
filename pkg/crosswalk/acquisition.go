package crosswalk

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hollomancer/sbir-analytics-sub004/pkg/models"
)

// HandleAcquisition records that acquirerID acquired acquiredID. Both records
// get a lineage entry and the acquired name becomes an alias of the acquirer.
// With merge, the acquired record's full history is copied into the acquirer's
// merged_records, its identifiers move to the acquirer and it is removed.
func (c *Crosswalk) HandleAcquisition(acquirerID, acquiredID string, date *time.Time, merge bool, note string) error {
	if acquirerID == acquiredID {
		return fmt.Errorf("failed to handle acquisition: %s cannot acquire itself", acquirerID)
	}

	c.mu.Lock()
	acquirer, ok := c.records[acquirerID]
	if !ok {
		c.mu.Unlock()
		return fmt.Errorf("failed to handle acquisition: acquirer %s: %w", acquirerID, ErrNotFound)
	}
	acquired, ok := c.records[acquiredID]
	if !ok {
		c.mu.Unlock()
		return fmt.Errorf("failed to handle acquisition: acquired %s: %w", acquiredID, ErrNotFound)
	}

	acquirer.Metadata = appendLineage(acquirer.Metadata, models.MetadataAcquisitions,
		models.AcquisitionEvent{AcquiredID: acquiredID, Date: date, Note: note})
	acquired.Metadata = appendLineage(acquired.Metadata, models.MetadataAcquiredBy,
		models.AcquisitionEvent{AcquirerID: acquirerID, Date: date, Note: note})
	c.addAliasLocked(acquirer, models.AliasRecord{Name: acquired.CanonicalName, StartDate: date, Note: models.AliasNoteAcquired})

	changes := make([]Change, 0, 2)
	if merge {
		history := acquired.Clone()
		acquirer.Metadata = appendLineage(acquirer.Metadata, models.MetadataMergedRecords, history)

		c.removeLocked(acquiredID)
		delete(history.Metadata, models.MetadataAcquiredBy)
		c.mergeLocked(acquirerID, history)

		changes = append(changes,
			c.upserted(acquirerID, CauseAcquisition),
			c.removed(acquiredID, CauseAcquisition),
		)
	} else {
		changes = append(changes,
			c.upserted(acquirerID, CauseAcquisition),
			c.upserted(acquiredID, CauseAcquisition),
		)
	}
	c.mu.Unlock()

	c.logger.WithFields(map[string]any{
		"acquirer_id": acquirerID,
		"acquired_id": acquiredID,
		"merge":       merge,
	}).Info("Recorded acquisition")

	c.notify(changes)
	return nil
}

// appendLineage appends entry to the list under key. Entries are stored in
// their JSON form so records round-trip through snapshots unchanged.
func appendLineage(metadata map[string]any, key string, entry any) map[string]any {
	if metadata == nil {
		metadata = make(map[string]any)
	}
	list, _ := metadata[key].([]any)
	metadata[key] = append(list, toJSONValue(entry))
	return metadata
}

func toJSONValue(v any) any {
	b, err := json.Marshal(v)
	if err != nil {
		return v
	}
	var out any
	if err := json.Unmarshal(b, &out); err != nil {
		return v
	}
	return out
}
