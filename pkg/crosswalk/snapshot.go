package crosswalk

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/hollomancer/sbir-analytics-sub004/pkg/models"
	"github.com/hollomancer/sbir-analytics-sub004/pkg/resolveerr"
)

// maxSnapshotLine bounds one JSON line of a snapshot
const maxSnapshotLine = 64 << 20

// Export writes one JSON object per line, ordered by canonical id
func (c *Crosswalk) Export(ctx context.Context, w io.Writer) error {
	enc := json.NewEncoder(w)
	for _, rec := range c.Records() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := enc.Encode(rec); err != nil {
			return fmt.Errorf("failed to encode crosswalk record %s: %w", rec.CanonicalID, err)
		}
	}
	return nil
}

// Import replaces the crosswalk contents with the JSON lines read from r and
// rebuilds every index. A malformed line, a duplicate canonical id or an
// identifier claimed by two records is a DataError and leaves the crosswalk unchanged.
func (c *Crosswalk) Import(ctx context.Context, r io.Reader) (int, error) {
	staged := &Crosswalk{normalizer: c.normalizer}
	staged.reset()

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxSnapshotLine)

	line := 0
	for scanner.Scan() {
		line++
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}

		var rec models.CrosswalkRecord
		if err := json.Unmarshal([]byte(text), &rec); err != nil {
			return 0, &resolveerr.DataError{Reason: err.Error(), Row: line}
		}
		if rec.CanonicalID == "" {
			return 0, &resolveerr.DataError{Reason: "missing canonical_id", Row: line, Column: "canonical_id"}
		}
		if _, dup := staged.records[rec.CanonicalID]; dup {
			return 0, &resolveerr.DataError{Reason: "duplicate canonical_id " + rec.CanonicalID, Row: line, Column: "canonical_id"}
		}

		cleanIdentifiers(&rec)
		for _, f := range identifierFields(&rec) {
			if *f.value == "" {
				continue
			}
			if owner, taken := staged.identifierIndex(f.kind)[*f.value]; taken {
				return 0, &resolveerr.DataError{
					Reason: fmt.Sprintf("%s %s already belongs to %s", f.kind, *f.value, owner),
					Row:    line,
					Column: f.kind,
				}
			}
		}
		if rec.Metadata == nil {
			rec.Metadata = make(map[string]any)
		}
		if rec.Aliases == nil {
			rec.Aliases = []models.AliasRecord{}
		}

		staged.records[rec.CanonicalID] = &rec
		staged.indexRecord(&rec)
	}
	if err := scanner.Err(); err != nil {
		return 0, fmt.Errorf("failed to read crosswalk snapshot: %w", err)
	}

	c.mu.Lock()
	c.records = staged.records
	c.ueiIndex = staged.ueiIndex
	c.cageIndex = staged.cageIndex
	c.dunsIndex = staged.dunsIndex
	c.nameIndex = staged.nameIndex
	ids := c.sortedIDs()
	records := make([]*models.CrosswalkRecord, len(ids))
	for i, id := range ids {
		records[i] = c.records[id].Clone()
	}
	changes := []Change{c.commit(Change{Kind: ChangeReplaced, Cause: CauseImported, Records: records})}
	c.mu.Unlock()

	c.logger.WithContext(ctx).WithField("records", len(records)).Info("Imported crosswalk")
	c.notify(changes)
	return len(records), nil
}

// SaveSnapshot atomically replaces the file at path with an export of the
// crosswalk. The data is written to a temporary file in the same directory,
// synced and renamed over path; on any failure the previous file is left as it was.
func (c *Crosswalk) SaveSnapshot(ctx context.Context, path string) (err error) {
	dir, base := filepath.Split(path)
	if dir == "" {
		dir = "."
	}

	tmp, err := os.CreateTemp(dir, "."+base+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create snapshot temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	w := bufio.NewWriter(tmp)
	if err = c.Export(ctx, w); err != nil {
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	if err = w.Flush(); err != nil {
		return fmt.Errorf("failed to flush snapshot: %w", err)
	}
	if err = tmp.Sync(); err != nil {
		return fmt.Errorf("failed to sync snapshot: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("failed to close snapshot: %w", err)
	}
	if err = os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("failed to replace snapshot: %w", err)
	}

	syncDir(dir)

	c.logger.WithContext(ctx).WithField("path", path).Info("Saved crosswalk snapshot")
	return nil
}

// syncDir makes the rename durable where the platform allows it
func syncDir(dir string) {
	d, err := os.Open(dir)
	if err != nil {
		return
	}
	_ = d.Sync()
	_ = d.Close()
}

// LoadSnapshot imports the snapshot at path
func (c *Crosswalk) LoadSnapshot(ctx context.Context, path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("failed to open snapshot: %w", err)
	}
	defer f.Close()

	return c.Import(ctx, f)
}
