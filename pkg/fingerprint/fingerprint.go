// Package fingerprint builds deterministic hashes used as cache keys and
// reference-set versions
package fingerprint

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"sort"
	"strings"
)

// Strings fingerprints an ordered list of strings. Each part is length-prefixed
// so ("ab", "c") and ("a", "bc") differ.
func Strings(parts ...string) string {
	h := sha256.New()
	var size [8]byte
	for _, p := range parts {
		binary.BigEndian.PutUint64(size[:], uint64(len(p)))
		h.Write(size[:])
		h.Write([]byte(p))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Struct fingerprints any JSON-marshalable value by canonicalizing its JSON form
func Struct(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	var generic any
	if err := json.Unmarshal(b, &generic); err != nil {
		return "", err
	}
	hash := sha256.Sum256([]byte(canonicalize(generic)))
	return hex.EncodeToString(hash[:]), nil
}

// canonicalize creates a deterministic string by sorting map keys and
// recursing into nested structures
func canonicalize(data any) string {
	switch v := data.(type) {
	case map[string]any:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		var b strings.Builder
		b.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				b.WriteByte(',')
			}
			keyJSON, _ := json.Marshal(k)
			b.Write(keyJSON)
			b.WriteByte(':')
			b.WriteString(canonicalize(v[k]))
		}
		b.WriteByte('}')
		return b.String()
	case []any:
		var b strings.Builder
		b.WriteByte('[')
		for i, item := range v {
			if i > 0 {
				b.WriteByte(',')
			}
			b.WriteString(canonicalize(item))
		}
		b.WriteByte(']')
		return b.String()
	default:
		out, _ := json.Marshal(v)
		return string(out)
	}
}
