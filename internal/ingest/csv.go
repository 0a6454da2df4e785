package ingest

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"slices"
	"strconv"

	"github.com/hollomancer/sbir-analytics-sub004/pkg/matching"
	"github.com/hollomancer/sbir-analytics-sub004/pkg/models"
	"github.com/hollomancer/sbir-analytics-sub004/pkg/resolveerr"
)

// rows reads every data row, handing each to fn with its 1-based file row
func rows(ctx context.Context, r io.Reader, fn func(cols *Columns, row []string, line int) error) error {
	reader := csv.NewReader(r)
	reader.ReuseRecord = false

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return &resolveerr.DataError{Reason: "empty file, missing header row", Row: 1}
	}
	if err != nil {
		return &resolveerr.DataError{Reason: fmt.Sprintf("unreadable header: %v", err), Row: 1}
	}

	cols, err := DiscoverColumns(header)
	if err != nil {
		return err
	}

	line := 1
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		row, err := reader.Read()
		line++
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			var parseErr *csv.ParseError
			if errors.As(err, &parseErr) {
				return &resolveerr.DataError{Reason: parseErr.Err.Error(), Row: parseErr.Line}
			}
			return &resolveerr.DataError{Reason: err.Error(), Row: line}
		}

		if err := fn(cols, row, line); err != nil {
			return err
		}
	}
}

// ReadReferences reads a reference organization table. Rows without an id
// column value are named by their file row ("row-3"). A duplicate ref id is a DataError.
func ReadReferences(ctx context.Context, r io.Reader) ([]models.OrganizationRef, error) {
	var out []models.OrganizationRef
	seen := make(map[string]int)

	err := rows(ctx, r, func(cols *Columns, row []string, line int) error {
		ref := models.OrganizationRef{
			RefID:       cols.Get(row, FieldID),
			Name:        cols.Get(row, FieldName),
			UEI:         cols.Get(row, FieldUEI),
			DUNS:        cols.Get(row, FieldDUNS),
			CAGE:        cols.Get(row, FieldCAGE),
			ExtraFields: cols.Extras(row),
		}
		if ref.RefID == "" {
			ref.RefID = fmt.Sprintf("row-%d", line)
		}
		if prev, ok := seen[ref.RefID]; ok {
			return &resolveerr.DataError{
				Reason: fmt.Sprintf("duplicate ref id %q, first seen at row %d", ref.RefID, prev),
				Row:    line,
				Column: string(FieldID),
			}
		}
		seen[ref.RefID] = line
		out = append(out, ref)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ReadRecords reads input records. Rows with no name and no identifiers are
// kept so the batch can count them as skipped.
func ReadRecords(ctx context.Context, r io.Reader) ([]models.InputRecord, error) {
	var out []models.InputRecord
	err := rows(ctx, r, func(cols *Columns, row []string, _ int) error {
		out = append(out, models.InputRecord{
			RecordID:    cols.Get(row, FieldID),
			Name:        cols.Get(row, FieldName),
			UEI:         cols.Get(row, FieldUEI),
			DUNS:        cols.Get(row, FieldDUNS),
			CAGE:        cols.Get(row, FieldCAGE),
			ExtraFields: cols.Extras(row),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

var enrichedHeader = []string{
	"record_id", "name", "uei", "duns", "cage",
	"match_method", "match_score",
	"canonical_ref_id", "canonical_name", "canonical_uei", "canonical_duns", "canonical_cage",
}

// WriteEnriched writes enriched records as CSV. Extra fields of the input
// become trailing columns, sorted by name.
func WriteEnriched(w io.Writer, records []matching.EnrichedRecord) error {
	extraSet := make(map[string]struct{})
	for _, rec := range records {
		for k := range rec.ExtraFields {
			extraSet[k] = struct{}{}
		}
	}
	extras := make([]string, 0, len(extraSet))
	for k := range extraSet {
		extras = append(extras, k)
	}
	slices.Sort(extras)

	cw := csv.NewWriter(w)
	if err := cw.Write(append(slices.Clone(enrichedHeader), extras...)); err != nil {
		return fmt.Errorf("write enriched header: %w", err)
	}

	row := make([]string, 0, len(enrichedHeader)+len(extras))
	for _, rec := range records {
		row = append(row[:0],
			rec.RecordID, rec.Name, rec.UEI, rec.DUNS, rec.CAGE,
			rec.MatchMethod.String(), strconv.Itoa(rec.MatchScore),
			rec.CanonicalRefID, rec.CanonicalName, rec.CanonicalUEI, rec.CanonicalDUNS, rec.CanonicalCAGE,
		)
		for _, k := range extras {
			row = append(row, rec.ExtraFields[k])
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write enriched row: %w", err)
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush enriched csv: %w", err)
	}
	return nil
}
