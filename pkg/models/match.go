package models

import (
	"fmt"
	"strings"
)

// MatchMethod classifies how a record was resolved.
// Declaration order is the reporting order: exact methods rank above fuzzy ones.
type MatchMethod int

const (
	// zero value; never produced by the matcher and rejected by MarshalText
	matchMethodUnset MatchMethod = iota
	MatchMethodUEIExact
	MatchMethodDUNSExact
	MatchMethodCAGEExact
	MatchMethodFuzzyAuto
	MatchMethodFuzzyCandidate
	MatchMethodFuzzyLow
	MatchMethodNoCandidates
)

var matchMethodNames = [...]string{
	"uei_exact",
	"duns_exact",
	"cage_exact",
	"fuzzy_auto",
	"fuzzy_candidate",
	"fuzzy_low",
	"no_candidates",
}

// AllMatchMethods returns every method in reporting order
func AllMatchMethods() []MatchMethod {
	return []MatchMethod{
		MatchMethodUEIExact,
		MatchMethodDUNSExact,
		MatchMethodCAGEExact,
		MatchMethodFuzzyAuto,
		MatchMethodFuzzyCandidate,
		MatchMethodFuzzyLow,
		MatchMethodNoCandidates,
	}
}

func (m MatchMethod) String() string {
	if !m.valid() {
		return fmt.Sprintf("match_method(%d)", int(m))
	}
	return matchMethodNames[m-1]
}

func (m MatchMethod) valid() bool {
	return m > matchMethodUnset && int(m) <= len(matchMethodNames)
}

// IsExact reports whether the method is an identifier match
func (m MatchMethod) IsExact() bool {
	return m == MatchMethodUEIExact || m == MatchMethodDUNSExact || m == MatchMethodCAGEExact
}

// IsAccepted reports whether the method carries a matched reference
func (m MatchMethod) IsAccepted() bool {
	return m.IsExact() || m == MatchMethodFuzzyAuto
}

// MarshalText implements encoding.TextMarshaler
func (m MatchMethod) MarshalText() ([]byte, error) {
	if !m.valid() {
		return nil, fmt.Errorf("unknown match method %d", int(m))
	}
	return []byte(matchMethodNames[m-1]), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (m *MatchMethod) UnmarshalText(text []byte) error {
	method, err := ParseMatchMethod(string(text))
	if err != nil {
		return err
	}
	*m = method
	return nil
}

// ParseMatchMethod parses the text form of a method
func ParseMatchMethod(s string) (MatchMethod, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for i, name := range matchMethodNames {
		if name == s {
			return MatchMethod(i + 1), nil
		}
	}
	return MatchMethodNoCandidates, fmt.Errorf("unknown match method %q", s)
}

// Candidate is one scored reference organization on a match's audit trail
type Candidate struct {
	Ref   *OrganizationRef `json:"ref"`
	Score int              `json:"score"`
}

// MatchResult is the classified outcome of matching one input record.
// Matched is set iff Method is an exact method or fuzzy_auto.
type MatchResult struct {
	Matched    *OrganizationRef `json:"matched_ref,omitempty"`
	Score      int              `json:"score"`
	Method     MatchMethod      `json:"method"`
	Candidates []Candidate      `json:"candidates,omitempty"`
	Skipped    bool             `json:"skipped,omitempty"`
}

// MatchedRefID returns the matched reference id or an empty string
func (r MatchResult) MatchedRefID() string {
	if r.Matched == nil {
		return ""
	}
	return r.Matched.RefID
}
