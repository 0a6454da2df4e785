package matching

import (
	"fmt"

	"github.com/hollomancer/sbir-analytics-sub004/pkg/fingerprint"
	"github.com/hollomancer/sbir-analytics-sub004/pkg/models"
	"github.com/hollomancer/sbir-analytics-sub004/pkg/normalizers"
	"github.com/hollomancer/sbir-analytics-sub004/pkg/resolveerr"
)

// ReferenceSet is the single backing store of reference organizations.
// Blocking and identifier indices hold positions into it, never copies,
// and match results point at its elements.
type ReferenceSet struct {
	orgs    []models.OrganizationRef
	names   []string
	byID    map[string]int
	version string
}

// NewReferenceSet copies orgs into an owned store and caches each normalized name.
// An empty or duplicated RefID is a DataError.
func NewReferenceSet(orgs []models.OrganizationRef, normalizer *normalizers.NameNormalizer) (*ReferenceSet, error) {
	s := &ReferenceSet{
		orgs:  make([]models.OrganizationRef, len(orgs)),
		names: make([]string, len(orgs)),
		byID:  make(map[string]int, len(orgs)),
	}
	copy(s.orgs, orgs)

	parts := make([]string, 0, len(orgs)*5)
	for i := range s.orgs {
		org := &s.orgs[i]
		if org.RefID == "" {
			return nil, &resolveerr.DataError{Reason: "reference organization has no ref_id", Row: i + 1, Column: "ref_id"}
		}
		if prev, ok := s.byID[org.RefID]; ok {
			return nil, &resolveerr.DataError{
				Reason: fmt.Sprintf("duplicate ref_id %s (first seen at row %d)", org.RefID, prev+1),
				Row:    i + 1,
				Column: "ref_id",
			}
		}
		s.byID[org.RefID] = i
		s.names[i] = normalizer.Normalize(org.Name)
		parts = append(parts, org.RefID, s.names[i], org.UEI, org.DUNS, org.CAGE)
	}
	s.version = fingerprint.Strings(parts...)

	return s, nil
}

// Len returns the number of organizations
func (s *ReferenceSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.orgs)
}

// At returns the organization at position i
func (s *ReferenceSet) At(i int) *models.OrganizationRef {
	return &s.orgs[i]
}

// NormalizedName returns the cached normalized name at position i
func (s *ReferenceSet) NormalizedName(i int) string {
	return s.names[i]
}

// Lookup finds an organization by RefID
func (s *ReferenceSet) Lookup(refID string) (*models.OrganizationRef, bool) {
	if s == nil {
		return nil, false
	}
	i, ok := s.byID[refID]
	if !ok {
		return nil, false
	}
	return &s.orgs[i], true
}

// Version fingerprints the set's contents
func (s *ReferenceSet) Version() string {
	if s == nil {
		return ""
	}
	return s.version
}
