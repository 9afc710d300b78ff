package content

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashKeyOrderInsensitive(t *testing.T) {
	a := Document{
		"message_1": map[string]any{"message": "Hey!", "tone": "casual"},
		"message_2": map[string]any{"tone": "direct", "message": "Still there?"},
	}
	b := Document{
		"message_2": map[string]any{"message": "Still there?", "tone": "direct"},
		"message_1": map[string]any{"tone": "casual", "message": "Hey!"},
	}
	require.Equal(t, Hash(a), Hash(b))
}

func TestHashMapRepresentationIrrelevant(t *testing.T) {
	// The same structure built as Document, map[string]any, or
	// map[string]string must hash identically.
	asDoc := Document{"headline": "Grow faster", "meta": Document{"lang": "en"}}
	asAny := map[string]any{"meta": map[string]any{"lang": "en"}, "headline": "Grow faster"}
	asStr := map[string]any{"headline": "Grow faster", "meta": map[string]string{"lang": "en"}}
	require.Equal(t, Hash(asDoc), Hash(asAny))
	require.Equal(t, Hash(asDoc), Hash(asStr))
}

func TestHashSequenceOrderSignificant(t *testing.T) {
	a := Document{"benefits": []string{"speed", "savings"}}
	b := Document{"benefits": []string{"savings", "speed"}}
	assert.NotEqual(t, Hash(a), Hash(b))
}

func TestHashValueChangeChangesDigest(t *testing.T) {
	a := Document{"message_1": map[string]any{"message": "Hello"}}
	b := Document{"message_1": map[string]any{"message": "Hello!"}}
	assert.NotEqual(t, Hash(a), Hash(b))
}

func TestHashDeterministic(t *testing.T) {
	doc := Document{
		"headline": "Book more calls",
		"faq":      map[string]any{"copy": "Q&A", "count": 3},
		"tags":     []any{"a", 1, true, nil},
	}
	first := Hash(doc)
	for range 10 {
		require.Equal(t, first, Hash(doc))
	}
}

func TestHashShape(t *testing.T) {
	h := Hash(Document{"k": "v"})
	assert.Regexp(t, regexp.MustCompile(`^[0-9a-f]{64}$`), h)
	assert.NotEqual(t, Hash(Document{}), h)
}
