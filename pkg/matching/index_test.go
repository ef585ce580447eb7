package matching

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFuzzyIndex_Search(t *testing.T) {
	idx := NewFuzzyIndex()
	idx.Index([]Candidate{
		{ID: "1", Value: "acme"},
		{ID: "2", Value: "big tech"},
		{ID: "3", Value: "globex"},
		{ID: "4", Value: ""},
	})
	assert.Equal(t, 3, idx.Len())

	t.Run("exact match has zero distance", func(t *testing.T) {
		matches := idx.Search("acme")
		require.NotEmpty(t, matches)
		assert.Equal(t, "1", matches[0].ID)
		assert.Equal(t, 0.0, matches[0].Distance)
	})

	t.Run("token window finds value inside a longer title", func(t *testing.T) {
		matches := idx.Search("discovery call with big tech team")
		require.NotEmpty(t, matches)
		assert.Equal(t, "2", matches[0].ID)
		assert.Equal(t, 0.0, matches[0].Distance)
	})

	t.Run("typo is within threshold", func(t *testing.T) {
		matches := idx.Search("globx")
		require.NotEmpty(t, matches)
		assert.Equal(t, "3", matches[0].ID)
		assert.Greater(t, matches[0].Distance, 0.0)
		assert.LessOrEqual(t, matches[0].Distance, DefaultThreshold)
	})

	t.Run("unrelated query finds nothing", func(t *testing.T) {
		assert.Empty(t, idx.Search("weekly standup"))
	})

	t.Run("empty query finds nothing", func(t *testing.T) {
		assert.Empty(t, idx.Search("   "))
	})
}

func TestFuzzyIndex_ResultsSortedByDistance(t *testing.T) {
	idx := NewFuzzyIndex(WithThreshold(1))
	idx.Index([]Candidate{
		{ID: "far", Value: "zzzz"},
		{ID: "near", Value: "acmx"},
		{ID: "exact", Value: "acme"},
	})

	matches := idx.Search("acme")
	require.Len(t, matches, 3)
	assert.Equal(t, "exact", matches[0].ID)
	assert.Equal(t, "near", matches[1].ID)
	assert.Equal(t, "far", matches[2].ID)
	for i := 1; i < len(matches); i++ {
		assert.LessOrEqual(t, matches[i-1].Distance, matches[i].Distance)
	}
}

func TestFuzzyIndex_ReindexReplaces(t *testing.T) {
	idx := NewFuzzyIndex()
	idx.Index([]Candidate{{ID: "1", Value: "acme"}})
	idx.Index([]Candidate{{ID: "2", Value: "globex"}})

	assert.Empty(t, idx.Search("acme"))
	assert.Len(t, idx.Search("globex"), 1)
}
