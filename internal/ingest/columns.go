// Package ingest reads reference organizations and input records from CSV,
// discovering the name and identifier columns from loosely named headers
package ingest

import (
	"strings"

	"github.com/Gobusters/ectolinq"

	"github.com/hollomancer/sbir-analytics-sub004/pkg/normalizers"
	"github.com/hollomancer/sbir-analytics-sub004/pkg/resolveerr"
)

// Field is a column the resolver understands
type Field string

const (
	FieldID   Field = "id"
	FieldName Field = "name"
	FieldUEI  Field = "uei"
	FieldDUNS Field = "duns"
	FieldCAGE Field = "cage"
)

// headerAliases lists accepted headers per field after normalizeHeader
var headerAliases = map[Field][]string{
	FieldName: {"name", "company", "company name", "organization", "organization name", "vendor", "vendor name", "recipient", "recipient name"},
	FieldUEI:  {"uei", "uei sam", "sam uei"},
	FieldDUNS: {"duns", "duns number"},
	FieldCAGE: {"cage", "cage code"},
	FieldID:   {"id", "ref id", "record id"},
}

// fieldNormalizers are the registered normalizers applied to each cell as it
// is read. Identifiers are reduced to their comparable form.
var fieldNormalizers = map[Field][]string{
	FieldID:   {"trim"},
	FieldName: {"trim"},
	FieldUEI:  {"trim", "uei"},
	FieldDUNS: {"trim", "duns"},
	FieldCAGE: {"trim", "cage"},
}

// fieldOrder fixes the discovery order so a header is claimed once
var fieldOrder = []Field{FieldID, FieldName, FieldUEI, FieldDUNS, FieldCAGE}

// Columns maps fields to header positions. Unknown headers are extras.
type Columns struct {
	Header []string
	index  map[Field]int
	extras []int
}

// normalizeHeader lowercases and folds separators ("Company_Name" -> "company name")
func normalizeHeader(h string) string {
	h = strings.TrimPrefix(h, "\ufeff")
	h = strings.Map(func(r rune) rune {
		if r == '_' || r == '-' || r == '.' {
			return ' '
		}
		return r
	}, strings.ToLower(h))
	return strings.Join(strings.Fields(h), " ")
}

// DiscoverColumns resolves a header row. A header with neither a name column
// nor any identifier column is a DataError.
func DiscoverColumns(header []string) (*Columns, error) {
	normalized := ectolinq.Map(header, normalizeHeader)

	cols := &Columns{Header: header, index: make(map[Field]int)}
	claimed := make(map[int]bool, len(header))
	for _, field := range fieldOrder {
		for _, alias := range headerAliases[field] {
			pos := indexOf(normalized, alias, claimed)
			if pos >= 0 {
				cols.index[field] = pos
				claimed[pos] = true
				break
			}
		}
	}

	for i := range header {
		if !claimed[i] {
			cols.extras = append(cols.extras, i)
		}
	}

	if !cols.Has(FieldName) && !cols.Has(FieldUEI) && !cols.Has(FieldDUNS) && !cols.Has(FieldCAGE) {
		return nil, &resolveerr.DataError{
			Reason: "no name or identifier column found in header " + strings.Join(header, ","),
			Row:    1,
			Column: string(FieldName),
		}
	}
	return cols, nil
}

func indexOf(headers []string, alias string, claimed map[int]bool) int {
	for i, h := range headers {
		if h == alias && !claimed[i] {
			return i
		}
	}
	return -1
}

// Has reports whether the field was discovered
func (c *Columns) Has(f Field) bool {
	_, ok := c.index[f]
	return ok
}

// Get returns the value of f in row after its field normalizers, or "" when
// f is absent
func (c *Columns) Get(row []string, f Field) string {
	pos, ok := c.index[f]
	if !ok || pos >= len(row) {
		return ""
	}
	return normalizers.ApplyChain(row[pos], fieldNormalizers[f]...)
}

// Extras returns the non-empty unrecognized columns of row keyed by header
func (c *Columns) Extras(row []string) map[string]string {
	if len(c.extras) == 0 {
		return nil
	}
	out := make(map[string]string, len(c.extras))
	for _, pos := range c.extras {
		if pos >= len(row) {
			continue
		}
		if v := strings.TrimSpace(row[pos]); v != "" {
			out[strings.TrimSpace(c.Header[pos])] = v
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// ExtraHeaders returns the unrecognized headers in file order
func (c *Columns) ExtraHeaders() []string {
	return ectolinq.Map(c.extras, func(pos int) string { return strings.TrimSpace(c.Header[pos]) })
}
