package normalizers

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// maxRewritePasses bounds per-token suffix/abbreviation rewriting
const maxRewritePasses = 8

// corporateSuffixes is the closed set of tokens dropped when suffixes are removed
var corporateSuffixes = map[string]bool{
	"incorporated":  true,
	"incorporation": true,
	"inc":           true,
	"corp":          true,
	"corporation":   true,
	"llc":           true,
	"ltd":           true,
	"limited":       true,
	"co":            true,
	"company":       true,
}

// suffixStandard maps synonymous suffix tokens to one spelling when suffixes are kept
var suffixStandard = map[string]string{
	"incorporated":  "inc",
	"incorporation": "inc",
	"company":       "company",
	"co":            "company",
	"limited":       "ltd",
	"ltd":           "ltd",
}

// DefaultAbbreviations is the built-in abbreviation table
var DefaultAbbreviations = map[string]string{
	"technologies":  "tech",
	"technology":    "tech",
	"international": "intl",
	"laboratories":  "labs",
	"laboratory":    "lab",
	"engineering":   "eng",
	"manufacturing": "mfg",
	"associates":    "assoc",
	"systems":       "sys",
	"services":      "svcs",
	"university":    "univ",
	"national":      "natl",
}

// NameOptions controls name normalization
type NameOptions struct {
	RemoveSuffixes     bool
	ApplyAbbreviations bool
	// Abbreviations are merged over DefaultAbbreviations
	Abbreviations map[string]string
}

// NameNormalizer normalizes organization names with a fixed set of options.
// It is immutable after construction and safe for concurrent use.
type NameNormalizer struct {
	removeSuffixes     bool
	applyAbbreviations bool
	abbreviations      map[string]string
}

// NewNameNormalizer builds a normalizer, resolving abbreviation chains up front
func NewNameNormalizer(opts NameOptions) *NameNormalizer {
	n := &NameNormalizer{
		removeSuffixes:     opts.RemoveSuffixes,
		applyAbbreviations: opts.ApplyAbbreviations,
	}
	if opts.ApplyAbbreviations {
		n.abbreviations = buildAbbreviationTable(opts.Abbreviations)
	}
	return n
}

// DefaultNameNormalizer removes suffixes and leaves abbreviations alone
func DefaultNameNormalizer() *NameNormalizer {
	return NewNameNormalizer(NameOptions{RemoveSuffixes: true})
}

// NormalizeName is the one-shot form of NameNormalizer.Normalize
func NormalizeName(raw string, opts NameOptions) string {
	return NewNameNormalizer(opts).Normalize(raw)
}

// Normalize returns the canonical form of raw: lowercase letters and digits
// separated by single spaces. It is deterministic and idempotent.
func (n *NameNormalizer) Normalize(raw string) string {
	if raw == "" {
		return ""
	}

	s := foldAccents(strings.ToLower(raw))

	var cleaned strings.Builder
	cleaned.Grow(len(s))
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			cleaned.WriteRune(r)
		} else {
			cleaned.WriteByte(' ')
		}
	}

	tokens := strings.Fields(cleaned.String())
	out := tokens[:0]
	for _, tok := range tokens {
		if tok = n.rewrite(tok); tok != "" {
			out = append(out, tok)
		}
	}
	return strings.Join(out, " ")
}

// Tokens splits a normalized name into its tokens
func Tokens(normalized string) []string {
	return strings.Fields(normalized)
}

func (n *NameNormalizer) rewrite(tok string) string {
	for i := 0; i < maxRewritePasses; i++ {
		next := n.rewriteOnce(tok)
		if next == tok || next == "" {
			return next
		}
		tok = next
	}
	return tok
}

func (n *NameNormalizer) rewriteOnce(tok string) string {
	if n.removeSuffixes {
		if corporateSuffixes[tok] {
			return ""
		}
	} else if std, ok := suffixStandard[tok]; ok {
		tok = std
	}

	if n.applyAbbreviations {
		if abbr, ok := n.abbreviations[tok]; ok {
			tok = abbr
		}
	}
	return tok
}

// buildAbbreviationTable merges custom entries over the defaults and resolves
// chains so every value is terminal. Entries that are not single tokens after
// cleaning are ignored; entries on a cycle map to nothing.
func buildAbbreviationTable(custom map[string]string) map[string]string {
	raw := make(map[string]string, len(DefaultAbbreviations)+len(custom))
	for k, v := range DefaultAbbreviations {
		raw[k] = v
	}
	for k, v := range custom {
		key := cleanToken(k)
		val := cleanToken(v)
		if key == "" || strings.Contains(key, " ") || strings.Contains(val, " ") {
			continue
		}
		raw[key] = val
	}

	resolved := make(map[string]string, len(raw))
	for key := range raw {
		seen := map[string]bool{key: true}
		cur := raw[key]
		for {
			next, ok := raw[cur]
			if !ok || next == cur {
				break
			}
			if seen[cur] {
				cur = key
				break
			}
			seen[cur] = true
			cur = next
		}
		if cur != key {
			resolved[key] = cur
		}
	}
	return resolved
}

// cleanToken applies the character-level steps of name normalization
func cleanToken(s string) string {
	s = foldAccents(strings.ToLower(s))
	var b strings.Builder
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		} else {
			b.WriteByte(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// foldAccents strips combining marks ("Société" -> "Societe").
// Transformers keep state, so one is built per call.
func foldAccents(s string) string {
	if isASCII(s) {
		return s
	}
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return folded
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= 0x80 {
			return false
		}
	}
	return true
}
