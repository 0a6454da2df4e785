// Package resolveerr defines the error taxonomy of identity resolution.
// Only DataError is ever returned as an error; the other kinds are recorded
// and counted so that one bad record never aborts a batch.
package resolveerr

import (
	"errors"
	"fmt"
)

// DataError reports malformed or missing reference data. It is fatal to an index build.
type DataError struct {
	Reason string
	Row    int
	Column string
}

func (e *DataError) Error() string {
	switch {
	case e.Row > 0 && e.Column != "":
		return fmt.Sprintf("data error at row %d, column %q: %s", e.Row, e.Column, e.Reason)
	case e.Row > 0:
		return fmt.Sprintf("data error at row %d: %s", e.Row, e.Reason)
	case e.Column != "":
		return fmt.Sprintf("data error in column %q: %s", e.Column, e.Reason)
	default:
		return "data error: " + e.Reason
	}
}

// NewDataError creates a DataError
func NewDataError(reason string) *DataError {
	return &DataError{Reason: reason}
}

// NewDataErrorf creates a DataError with a formatted reason
func NewDataErrorf(format string, args ...any) *DataError {
	return &DataError{Reason: fmt.Sprintf(format, args...)}
}

// IsDataError reports whether err wraps a DataError
func IsDataError(err error) bool {
	var de *DataError
	return errors.As(err, &de)
}

// RecordSkipped notes an input record with no usable name or identifiers
type RecordSkipped struct {
	Index    int    `json:"index"`
	RecordID string `json:"record_id,omitempty"`
}

// IdentifierCollisionWarning notes two reference organizations sharing one identifier.
// The later organization wins the index slot.
type IdentifierCollisionWarning struct {
	Kind          string `json:"kind"`
	Value         string `json:"value"`
	PreviousRefID string `json:"previous_ref_id"`
	RefID         string `json:"ref_id"`
}

func (w IdentifierCollisionWarning) String() string {
	return fmt.Sprintf("%s %s shared by %s and %s", w.Kind, w.Value, w.PreviousRefID, w.RefID)
}

// Conflict resolutions recorded on a MergeConflict
const (
	ResolutionAliasDemoted   = "alias_demoted"
	ResolutionKeptExisting   = "kept_existing"
	ResolutionIdentifierHeld = "identifier_held_by_other"
)

// MergeConflict records a disagreement found while merging two crosswalk records.
// It is resolved by rule and never returned as an error.
type MergeConflict struct {
	CanonicalID string `json:"canonical_id"`
	Field       string `json:"field"`
	Existing    string `json:"existing"`
	Incoming    string `json:"incoming"`
	Resolution  string `json:"resolution"`
}
