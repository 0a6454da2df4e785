package models

import "strings"

// OrganizationRef is one reference organization. It is immutable once indexed.
type OrganizationRef struct {
	RefID       string            `json:"ref_id"`
	Name        string            `json:"name"`
	UEI         string            `json:"uei,omitempty"`
	DUNS        string            `json:"duns,omitempty"`
	CAGE        string            `json:"cage,omitempty"`
	ExtraFields map[string]string `json:"extra_fields,omitempty"`
}

// InputRecord is a record to be resolved against the reference set
type InputRecord struct {
	RecordID    string            `json:"record_id,omitempty"`
	Name        string            `json:"name" validate:"required_without_all=UEI DUNS CAGE"`
	UEI         string            `json:"uei,omitempty"`
	DUNS        string            `json:"duns,omitempty"`
	CAGE        string            `json:"cage,omitempty"`
	ExtraFields map[string]string `json:"extra_fields,omitempty"`
}

// IsEmpty reports whether the record has neither a name nor any identifier
func (r InputRecord) IsEmpty() bool {
	return strings.TrimSpace(r.Name) == "" &&
		strings.TrimSpace(r.UEI) == "" &&
		strings.TrimSpace(r.DUNS) == "" &&
		strings.TrimSpace(r.CAGE) == ""
}
