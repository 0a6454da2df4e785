package matching

// Strategy scores two normalized names in [0,100]. Implementations are
// symmetric, score identical non-empty names 100 and score an empty side 0.
type Strategy interface {
	Name() string
	Score(a, b string) int
}

// Strategy names
const (
	StrategyTokenSet    = "token_set"
	StrategyJaroWinkler = "jaro_winkler"
)

// DefaultPhoneticBoost is added when phonetic codes match
const DefaultPhoneticBoost = 5

// DefaultJaroWinklerPrefixWeight is the Winkler scaling factor
const DefaultJaroWinklerPrefixWeight = 0.1

// ordered puts a pair in a fixed order so every strategy is symmetric
func ordered(a, b string) (string, string) {
	if a > b {
		return b, a
	}
	return a, b
}

// TokenSetScorer is the default, order- and duplicate-insensitive scorer
type TokenSetScorer struct{}

func (TokenSetScorer) Name() string { return StrategyTokenSet }

func (TokenSetScorer) Score(a, b string) int {
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return 100
	}
	a, b = ordered(a, b)
	return toPercent(TokenSetRatio(a, b))
}

// JaroWinklerScorer rewards a shared prefix on top of Jaro similarity
type JaroWinklerScorer struct {
	PrefixWeight float64
}

func (JaroWinklerScorer) Name() string { return StrategyJaroWinkler }

func (s JaroWinklerScorer) Score(a, b string) int {
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return 100
	}
	a, b = ordered(a, b)
	return toPercent(JaroWinkler(a, b, s.PrefixWeight))
}

// PhoneticBoost adds Boost to a base score when both names share a phonetic code.
// It modifies a score; it never scores on its own.
type PhoneticBoost struct {
	Boost int
}

// Matches reports whether both names have the same non-empty phonetic code
func (p PhoneticBoost) Matches(a, b string) bool {
	ca := PhoneticCode(a)
	return ca != "" && ca == PhoneticCode(b)
}

// Apply returns base plus the boost when the codes match, capped at 100
func (p PhoneticBoost) Apply(base int, a, b string) int {
	if p.Boost > 0 && p.Matches(a, b) {
		return min(100, base+p.Boost)
	}
	return base
}

// ComposedScorer combines a primary scorer with an optional secondary scorer
// and phonetic boost: min(100, max(primary, secondary) + boost).
type ComposedScorer struct {
	Primary   Strategy
	Secondary Strategy
	Phonetic  *PhoneticBoost
}

// NewComposedScorer selects scorers from the matching configuration
func NewComposedScorer(cfg Config) *ComposedScorer {
	jw := JaroWinklerScorer{PrefixWeight: cfg.JaroWinklerPrefixWeight}

	s := &ComposedScorer{Primary: TokenSetScorer{}}
	if cfg.EnableJaroWinkler {
		if cfg.JaroWinklerUseAsPrimary {
			s.Primary = jw
			s.Secondary = TokenSetScorer{}
		} else {
			s.Secondary = jw
		}
	}
	if cfg.EnablePhoneticMatching {
		s.Phonetic = &PhoneticBoost{Boost: cfg.PhoneticBoost}
	}
	return s
}

// NewNameLookupScorer is the composition used to look canonical names up:
// the configured primary and secondary scorers with the phonetic boost always
// applied, whatever enable_phonetic_matching says
func NewNameLookupScorer(cfg Config) *ComposedScorer {
	cfg.EnablePhoneticMatching = true
	return NewComposedScorer(cfg)
}

// Name describes the composition, e.g. "token_set+jaro_winkler+phonetic"
func (s *ComposedScorer) Name() string {
	name := s.Primary.Name()
	if s.Secondary != nil {
		name += "+" + s.Secondary.Name()
	}
	if s.Phonetic != nil {
		name += "+phonetic"
	}
	return name
}

// Score implements Strategy
func (s *ComposedScorer) Score(a, b string) int {
	if a == "" || b == "" {
		return 0
	}
	score := s.Primary.Score(a, b)
	if s.Secondary != nil {
		score = max(score, s.Secondary.Score(a, b))
	}
	if s.Phonetic != nil {
		score = s.Phonetic.Apply(score, a, b)
	}
	return min(100, score)
}
