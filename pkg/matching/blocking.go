package matching

// DefaultBlockPrefixLen is the number of leading runes forming a block key
const DefaultBlockPrefixLen = 2

// DefaultFallbackSampleSize bounds the candidates returned for an empty bucket
const DefaultFallbackSampleSize = 500

// BlockKey returns the first prefixLen runes of a normalized name.
// Names shorter than prefixLen are their own key; prefixLen <= 0 puts every
// name in the single "" bucket.
func BlockKey(normalized string, prefixLen int) string {
	if prefixLen <= 0 || normalized == "" {
		return ""
	}
	n := 0
	for i := range normalized {
		if n == prefixLen {
			return normalized[:i]
		}
		n++
	}
	return normalized
}

// BlockingIndex groups reference organizations by block key so that fuzzy
// scoring only compares names that share a prefix.
//
// When a query's bucket is empty, the index returns the first fallbackSize
// organizations in insertion order instead of the whole set. This bounds cost
// at the price of recall: a true match outside that sample is not found.
type BlockingIndex struct {
	set          *ReferenceSet
	prefixLen    int
	buckets      map[string][]int
	fallback     []int
	fallbackSize int
}

// BlockingStats summarizes bucket sizes
type BlockingStats struct {
	Organizations int `json:"organizations"`
	Buckets       int `json:"buckets"`
	LargestBucket int `json:"largest_bucket"`
	FallbackSize  int `json:"fallback_size"`
}

// BuildBlockingIndex indexes every organization of set under its block key
func BuildBlockingIndex(set *ReferenceSet, prefixLen, fallbackSize int) *BlockingIndex {
	idx := &BlockingIndex{
		set:          set,
		prefixLen:    max(0, prefixLen),
		buckets:      make(map[string][]int),
		fallbackSize: max(0, fallbackSize),
	}

	n := set.Len()
	for i := 0; i < n; i++ {
		key := BlockKey(set.NormalizedName(i), idx.prefixLen)
		idx.buckets[key] = append(idx.buckets[key], i)
	}

	sample := min(idx.fallbackSize, n)
	idx.fallback = make([]int, sample)
	for i := range idx.fallback {
		idx.fallback[i] = i
	}

	return idx
}

// PrefixLen returns the prefix length the index was built with
func (b *BlockingIndex) PrefixLen() int {
	return b.prefixLen
}

// CandidatesFor returns positions of the organizations sharing the name's
// block key, in insertion order, falling back to the bounded sample when the
// bucket is empty. A prefixLen other than the built one is answered by a
// linear scan. The returned slice must not be modified.
func (b *BlockingIndex) CandidatesFor(normalizedName string, prefixLen int) []int {
	if b == nil {
		return nil
	}

	var members []int
	if max(0, prefixLen) == b.prefixLen {
		members = b.buckets[BlockKey(normalizedName, b.prefixLen)]
	} else {
		members = b.scan(BlockKey(normalizedName, prefixLen), prefixLen)
	}

	if len(members) == 0 {
		return b.fallback
	}
	return members
}

func (b *BlockingIndex) scan(key string, prefixLen int) []int {
	var members []int
	n := b.set.Len()
	for i := 0; i < n; i++ {
		if BlockKey(b.set.NormalizedName(i), prefixLen) == key {
			members = append(members, i)
		}
	}
	return members
}

// Stats reports bucket counts
func (b *BlockingIndex) Stats() BlockingStats {
	stats := BlockingStats{
		Organizations: b.set.Len(),
		Buckets:       len(b.buckets),
		FallbackSize:  len(b.fallback),
	}
	for _, members := range b.buckets {
		stats.LargestBucket = max(stats.LargestBucket, len(members))
	}
	return stats
}
