package matching

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

var scorerPairs = [][2]string{
	{"acme tech", "acme technologies"},
	{"smith tech", "smyth tech"},
	{"martha", "marhta"},
	{"global dynamics", "dynamics global"},
	{"a", "b"},
	{"nova labs", "novalabs"},
}

func TestStrategiesIdentityAndSymmetry(t *testing.T) {
	cfg := DefaultConfig()
	cfg.EnableJaroWinkler = true
	cfg.EnablePhoneticMatching = true

	strategies := []Strategy{
		TokenSetScorer{},
		JaroWinklerScorer{PrefixWeight: DefaultJaroWinklerPrefixWeight},
		NewComposedScorer(cfg),
	}

	for _, s := range strategies {
		t.Run(s.Name(), func(t *testing.T) {
			for _, pair := range scorerPairs {
				a, b := pair[0], pair[1]
				assert.Equal(t, 100, s.Score(a, a), "identity for %q", a)
				assert.Equal(t, s.Score(a, b), s.Score(b, a), "symmetry for %q/%q", a, b)

				score := s.Score(a, b)
				assert.GreaterOrEqual(t, score, 0)
				assert.LessOrEqual(t, score, 100)
			}
			assert.Equal(t, 0, s.Score("", "acme"))
			assert.Equal(t, 0, s.Score("acme", ""))
		})
	}
}

func TestJaroWinklerScorer(t *testing.T) {
	s := JaroWinklerScorer{PrefixWeight: 0.1}
	assert.Equal(t, 96, s.Score("martha", "marhta"))
	assert.Equal(t, 96, s.Score("marhta", "martha"))
}

func TestPhoneticBoost(t *testing.T) {
	p := PhoneticBoost{Boost: 5}

	assert.True(t, p.Matches("smith tech", "smyth tech"))
	assert.False(t, p.Matches("smith tech", "jones tech"))
	assert.False(t, p.Matches("", ""))

	assert.Equal(t, 95, p.Apply(90, "smith tech", "smyth tech"))
	assert.Equal(t, 100, p.Apply(98, "smith tech", "smyth tech"))
	assert.Equal(t, 90, p.Apply(90, "smith tech", "jones tech"))
	assert.Equal(t, 90, PhoneticBoost{}.Apply(90, "smith tech", "smyth tech"))
}

func TestNewComposedScorer(t *testing.T) {
	t.Run("default is token set only", func(t *testing.T) {
		s := NewComposedScorer(DefaultConfig())
		assert.Equal(t, "token_set", s.Name())
		assert.Nil(t, s.Secondary)
		assert.Nil(t, s.Phonetic)
	})

	t.Run("jaro winkler as secondary", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.EnableJaroWinkler = true
		assert.Equal(t, "token_set+jaro_winkler", NewComposedScorer(cfg).Name())
	})

	t.Run("jaro winkler as primary with phonetic", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.EnableJaroWinkler = true
		cfg.JaroWinklerUseAsPrimary = true
		cfg.EnablePhoneticMatching = true
		assert.Equal(t, "jaro_winkler+token_set+phonetic", NewComposedScorer(cfg).Name())
	})

	t.Run("use as primary needs jaro winkler enabled", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.JaroWinklerUseAsPrimary = true
		assert.Equal(t, "token_set", NewComposedScorer(cfg).Name())
	})
}

func TestComposedScorerTakesBestOfPrimaryAndSecondary(t *testing.T) {
	cfg := DefaultConfig()
	base := NewComposedScorer(cfg)

	cfg.EnableJaroWinkler = true
	withJW := NewComposedScorer(cfg)

	a, b := "martha", "marhta"
	assert.Equal(t, max(base.Score(a, b), JaroWinklerScorer{PrefixWeight: 0.1}.Score(a, b)), withJW.Score(a, b))
	assert.GreaterOrEqual(t, withJW.Score(a, b), base.Score(a, b))
}

func TestSmithSmythPinnedScore(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ApplyAbbreviations = true
	cfg.EnablePhoneticMatching = true
	m := NewMatcher(cfg, testLogger())

	a := m.Normalizer().Normalize("Smith Technologies")
	b := m.Normalizer().Normalize("Smyth Tech")
	assert.Equal(t, "smith tech", a)
	assert.Equal(t, "smyth tech", b)

	assert.Equal(t, 90, TokenSetScorer{}.Score(a, b))
	assert.Equal(t, 95, m.Scorer().Score(a, b))
}
