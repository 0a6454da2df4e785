// Package normalizers turns raw organization names and identifiers into comparable canonical forms
package normalizers

import (
	"strings"
	"unicode"
)

// Normalizer is a function that normalizes a string value
type Normalizer func(string) string

// registry holds all registered normalizers
var registry = make(map[string]Normalizer)

func init() {
	Register("trim", Trim)
	Register("uei", CleanUEI)
	Register("cage", CleanCAGE)
	Register("duns", CleanDUNS)
}

// Register adds a normalizer to the registry
func Register(name string, fn Normalizer) {
	registry[name] = fn
}

// Get retrieves a normalizer by name
func Get(name string) (Normalizer, bool) {
	fn, ok := registry[name]
	return fn, ok
}

// Apply applies a named normalizer to a value
func Apply(value, normalizer string) string {
	fn, ok := registry[normalizer]
	if !ok {
		return value
	}
	return fn(value)
}

// ApplyChain applies multiple normalizers in sequence
func ApplyChain(value string, normalizers ...string) string {
	result := value
	for _, name := range normalizers {
		result = Apply(result, name)
	}
	return result
}

// Trim removes leading and trailing whitespace
func Trim(s string) string {
	return strings.TrimSpace(s)
}

// DigitsOnly keeps only ASCII digits
func DigitsOnly(s string) string {
	var result strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			result.WriteRune(r)
		}
	}
	return result.String()
}

// Alphanumeric keeps only letters and digits
func Alphanumeric(s string) string {
	var result strings.Builder
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			result.WriteRune(r)
		}
	}
	return result.String()
}

// CleanIdentifier strips an identifier down to its comparable form.
// With alnumOnly it keeps letters and digits, uppercased (UEI, CAGE);
// otherwise it keeps digits only (DUNS). Empty input yields "".
func CleanIdentifier(raw string, alnumOnly bool) string {
	if raw == "" {
		return ""
	}
	if alnumOnly {
		return strings.ToUpper(Alphanumeric(raw))
	}
	return DigitsOnly(raw)
}

// CleanUEI cleans a Unique Entity Identifier
func CleanUEI(raw string) string {
	return CleanIdentifier(raw, true)
}

// CleanCAGE cleans a CAGE code
func CleanCAGE(raw string) string {
	return CleanIdentifier(raw, true)
}

// CleanDUNS cleans a DUNS number
func CleanDUNS(raw string) string {
	return CleanIdentifier(raw, false)
}
