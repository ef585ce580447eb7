package matching

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScorer_LevenshteinDistance(t *testing.T) {
	s := NewScorer()

	tests := []struct {
		a, b     string
		expected int
	}{
		{"", "", 0},
		{"acme", "", 4},
		{"kitten", "sitting", 3},
		{"acme", "acme", 0},
		{"über", "uber", 1},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, s.LevenshteinDistance(tt.a, tt.b), "%q vs %q", tt.a, tt.b)
	}
}

func TestScorer_JaroWinkler(t *testing.T) {
	s := NewScorer()

	assert.Equal(t, 1.0, s.JaroWinkler("acme", "acme"))
	assert.Equal(t, 0.0, s.JaroWinkler("", "acme"))
	assert.InDelta(t, 0.961, s.JaroWinkler("martha", "marhta"), 0.001)
	assert.Greater(t, s.JaroWinkler("bigtech", "big tech"), s.JaroWinkler("bigtech", "acme"))
}

func TestScorer_Similarity(t *testing.T) {
	s := NewScorer()

	assert.Equal(t, 1.0, s.Similarity("acme", "acme"))
	assert.Greater(t, s.Similarity("acmee", "acme"), 0.8)
	assert.Less(t, s.Similarity("apex", "acme"), 0.6)
}
