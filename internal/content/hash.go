package content

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"strings"
)

// Hash returns the SHA-256 digest of a canonical serialization of doc as
// lowercase hex. Mapping keys are sorted lexicographically at every nesting
// level so two structurally equal documents hash identically regardless of
// key insertion order. Sequence element order is significant and preserved.
func Hash(doc any) string {
	var sb strings.Builder
	writeCanonical(&sb, doc)
	sum := sha256.Sum256([]byte(sb.String()))
	return hex.EncodeToString(sum[:])
}

func writeCanonical(sb *strings.Builder, v any) {
	switch val := v.(type) {
	case nil:
		sb.WriteString("null")
	case Document:
		writeCanonicalMap(sb, val)
	case map[string]any:
		writeCanonicalMap(sb, val)
	case map[string]string:
		m := make(map[string]any, len(val))
		for k, s := range val {
			m[k] = s
		}
		writeCanonicalMap(sb, m)
	case []any:
		sb.WriteByte('[')
		for i, item := range val {
			if i > 0 {
				sb.WriteByte(',')
			}
			writeCanonical(sb, item)
		}
		sb.WriteByte(']')
	case []string:
		sb.WriteByte('[')
		for i, item := range val {
			if i > 0 {
				sb.WriteByte(',')
			}
			writeCanonical(sb, item)
		}
		sb.WriteByte(']')
	default:
		// Scalars: strings, numbers, booleans. json.Marshal gives a stable
		// rendering for each.
		b, err := json.Marshal(val)
		if err != nil {
			sb.WriteString("null")
			return
		}
		sb.Write(b)
	}
}

func writeCanonicalMap(sb *strings.Builder, m map[string]any) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	sb.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			sb.WriteByte(',')
		}
		kb, _ := json.Marshal(k)
		sb.Write(kb)
		sb.WriteByte(':')
		writeCanonical(sb, m[k])
	}
	sb.WriteByte('}')
}
