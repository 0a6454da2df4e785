package matching

import (
	"github.com/hollomancer/sbir-analytics-sub004/pkg/normalizers"
	"github.com/hollomancer/sbir-analytics-sub004/pkg/resolveerr"
)

// Identifier kinds
const (
	IdentifierUEI  = "uei"
	IdentifierDUNS = "duns"
	IdentifierCAGE = "cage"
)

// IdentifierIndices are exact-match maps from cleaned identifiers to
// reference set positions
type IdentifierIndices struct {
	uei  map[string]int
	duns map[string]int
	cage map[string]int
}

// BuildIdentifierIndices indexes every non-empty UEI, DUNS and CAGE in set.
// When two organizations share an identifier the later one wins and a
// collision warning is returned for the caller to count and report.
func BuildIdentifierIndices(set *ReferenceSet) (*IdentifierIndices, []resolveerr.IdentifierCollisionWarning) {
	n := set.Len()
	idx := &IdentifierIndices{
		uei:  make(map[string]int, n),
		duns: make(map[string]int, n),
		cage: make(map[string]int, n),
	}

	var warnings []resolveerr.IdentifierCollisionWarning
	put := func(kind string, index map[string]int, value string, pos int) {
		if value == "" {
			return
		}
		if prev, ok := index[value]; ok && prev != pos {
			warnings = append(warnings, resolveerr.IdentifierCollisionWarning{
				Kind:          kind,
				Value:         value,
				PreviousRefID: set.At(prev).RefID,
				RefID:         set.At(pos).RefID,
			})
		}
		index[value] = pos
	}

	for i := 0; i < n; i++ {
		org := set.At(i)
		put(IdentifierUEI, idx.uei, normalizers.CleanUEI(org.UEI), i)
		put(IdentifierDUNS, idx.duns, normalizers.CleanDUNS(org.DUNS), i)
		put(IdentifierCAGE, idx.cage, normalizers.CleanCAGE(org.CAGE), i)
	}

	return idx, warnings
}

// LookupUEI finds a cleaned UEI
func (x *IdentifierIndices) LookupUEI(cleaned string) (int, bool) {
	if x == nil {
		return 0, false
	}
	return lookup(x.uei, cleaned)
}

// LookupDUNS finds a cleaned DUNS
func (x *IdentifierIndices) LookupDUNS(cleaned string) (int, bool) {
	if x == nil {
		return 0, false
	}
	return lookup(x.duns, cleaned)
}

// LookupCAGE finds a cleaned CAGE code
func (x *IdentifierIndices) LookupCAGE(cleaned string) (int, bool) {
	if x == nil {
		return 0, false
	}
	return lookup(x.cage, cleaned)
}

// Sizes returns the number of indexed UEI, DUNS and CAGE values
func (x *IdentifierIndices) Sizes() (uei, duns, cage int) {
	if x == nil {
		return 0, 0, 0
	}
	return len(x.uei), len(x.duns), len(x.cage)
}

func lookup(index map[string]int, cleaned string) (int, bool) {
	if cleaned == "" {
		return 0, false
	}
	pos, ok := index[cleaned]
	return pos, ok
}
