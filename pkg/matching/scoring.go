package matching

import (
	"math"
	"slices"
	"strings"
	"unicode"
)

// maxWinklerPrefix caps the common prefix rewarded by Jaro-Winkler
const maxWinklerPrefix = 4

// Jaro calculates the Jaro similarity between two strings.
// Returns a value between 0.0 (no similarity) and 1.0 (exact match)
func Jaro(a, b string) float64 {
	if a == b {
		if a == "" {
			return 0.0
		}
		return 1.0
	}
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 || len(rb) == 0 {
		return 0.0
	}

	// Maximum distance for character matching
	matchDist := max(len(ra), len(rb))/2 - 1
	if matchDist < 0 {
		matchDist = 0
	}

	aMatches := make([]bool, len(ra))
	bMatches := make([]bool, len(rb))

	matches := 0
	for i := range ra {
		start := max(0, i-matchDist)
		end := min(len(rb), i+matchDist+1)

		for j := start; j < end; j++ {
			if bMatches[j] || ra[i] != rb[j] {
				continue
			}
			aMatches[i] = true
			bMatches[j] = true
			matches++
			break
		}
	}

	if matches == 0 {
		return 0.0
	}

	// Count transpositions
	transpositions := 0
	k := 0
	for i := range ra {
		if !aMatches[i] {
			continue
		}
		for !bMatches[k] {
			k++
		}
		if ra[i] != rb[k] {
			transpositions++
		}
		k++
	}

	m := float64(matches)
	t := float64(transpositions) / 2

	return (m/float64(len(ra)) + m/float64(len(rb)) + (m-t)/m) / 3
}

// JaroWinkler boosts Jaro similarity by prefixWeight for each leading rune in
// common, up to four. prefixWeight is clamped to [0, 0.25] so the result stays in [0, 1].
func JaroWinkler(a, b string, prefixWeight float64) float64 {
	jaro := Jaro(a, b)
	if jaro == 0 || jaro == 1 {
		return jaro
	}
	prefixWeight = math.Max(0, math.Min(prefixWeight, 1.0/maxWinklerPrefix))

	ra, rb := []rune(a), []rune(b)
	prefixLen := 0
	for i := 0; i < len(ra) && i < len(rb) && i < maxWinklerPrefix; i++ {
		if ra[i] != rb[i] {
			break
		}
		prefixLen++
	}

	return jaro + float64(prefixLen)*prefixWeight*(1.0-jaro)
}

// IndelRatio is 2*LCS/(len(a)+len(b)): the normalized insert/delete similarity
// used by token-set comparison.
func IndelRatio(a, b string) float64 {
	ra, rb := []rune(a), []rune(b)
	total := len(ra) + len(rb)
	if total == 0 {
		return 0.0
	}
	return 2 * float64(longestCommonSubsequence(ra, rb)) / float64(total)
}

func longestCommonSubsequence(a, b []rune) int {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	prev := make([]int, len(b)+1)
	row := make([]int, len(b)+1)
	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			if a[i-1] == b[j-1] {
				row[j] = prev[j-1] + 1
			} else {
				row[j] = max(row[j-1], prev[j])
			}
		}
		row, prev = prev, row
	}
	return prev[len(b)]
}

// TokenSetRatio compares two names as token sets. Shared tokens are sorted and
// joined, each side's remaining tokens are appended, and the best indel ratio
// among (shared, shared+restA), (shared, shared+restB) and (shared+restA,
// shared+restB) wins. A name whose tokens are a subset of the other scores 1.0.
func TokenSetRatio(a, b string) float64 {
	ta := uniqueSortedTokens(a)
	tb := uniqueSortedTokens(b)
	if len(ta) == 0 || len(tb) == 0 {
		return 0.0
	}

	var shared, onlyA, onlyB []string
	i, j := 0, 0
	for i < len(ta) && j < len(tb) {
		switch {
		case ta[i] == tb[j]:
			shared = append(shared, ta[i])
			i++
			j++
		case ta[i] < tb[j]:
			onlyA = append(onlyA, ta[i])
			i++
		default:
			onlyB = append(onlyB, tb[j])
			j++
		}
	}
	onlyA = append(onlyA, ta[i:]...)
	onlyB = append(onlyB, tb[j:]...)

	sect := strings.Join(shared, " ")
	restA := strings.Join(onlyA, " ")
	restB := strings.Join(onlyB, " ")

	if sect == "" {
		return IndelRatio(restA, restB)
	}
	if restA == "" || restB == "" {
		return 1.0
	}

	combinedA := sect + " " + restA
	combinedB := sect + " " + restB
	return max(
		IndelRatio(sect, combinedA),
		IndelRatio(sect, combinedB),
		IndelRatio(combinedA, combinedB),
	)
}

func uniqueSortedTokens(s string) []string {
	tokens := strings.Fields(s)
	slices.Sort(tokens)
	return slices.Compact(tokens)
}

// PhoneticCode computes a consonant skeleton for a normalized name, one code
// per token joined by a space. Vowels are dropped except word-initial,
// similar-sounding consonants collapse to one representative letter and
// repeated codes collapse to one.
func PhoneticCode(normalized string) string {
	tokens := strings.Fields(normalized)
	codes := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		if code := tokenPhoneticCode(tok); code != "" {
			codes = append(codes, code)
		}
	}
	return strings.Join(codes, " ")
}

func tokenPhoneticCode(tok string) string {
	word := []rune(strings.ToUpper(tok))
	var code strings.Builder
	prev := rune(0)
	for i, char := range word {
		c := phoneticRune(char, i, word)
		if c != 0 && c != prev {
			code.WriteRune(c)
		}
		prev = c
	}
	return code.String()
}

// phoneticRune returns the phonetic code for a rune, or 0 when it is silent
func phoneticRune(char rune, pos int, word []rune) rune {
	next := rune(0)
	if pos+1 < len(word) {
		next = word[pos+1]
	}

	switch char {
	case 'A', 'E', 'I', 'O', 'U':
		if pos == 0 {
			return char
		}
		return 0
	case 'B', 'F', 'J', 'K', 'L', 'M', 'N', 'R', 'S', 'T':
		return char
	case 'C':
		if next == 'E' || next == 'I' || next == 'Y' {
			return 'S'
		}
		return 'K'
	case 'D':
		return 'T'
	case 'G':
		if next == 'E' || next == 'I' || next == 'Y' {
			return 'J'
		}
		return 'K'
	case 'H', 'W', 'Y':
		return 0
	case 'P':
		if next == 'H' {
			return 'F'
		}
		return 'P'
	case 'Q':
		return 'K'
	case 'V':
		return 'F'
	case 'X', 'Z':
		return 'S'
	}

	if unicode.IsDigit(char) || unicode.IsLetter(char) {
		return char
	}
	return 0
}

// toPercent converts a [0,1] similarity to an int in [0,100], rounding half up
func toPercent(similarity float64) int {
	pct := int(math.Floor(similarity*100 + 0.5))
	return max(0, min(100, pct))
}
