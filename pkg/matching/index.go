package matching

import (
	"sort"
	"strings"
)

// DefaultThreshold is the largest distance a match may have and still be returned.
const DefaultThreshold = 0.4

type Candidate struct {
	ID    string
	Value string
}

// Match is an indexed candidate together with its distance from the query.
// Distance is in [0, 1]; 0 means identical.
type Match struct {
	ID       string
	Value    string
	Distance float64
}

// SimilarityIndex answers "which indexed values look like this string".
type SimilarityIndex interface {
	Index(candidates []Candidate)
	Search(query string) []Match
}

type entry struct {
	Candidate
	tokens []string
}

// FuzzyIndex is an in-memory SimilarityIndex. A query is compared to each value
// as a whole and, when the value is shorter, to every window of query tokens of
// the value's token length, so "discovery call acme" finds "acme".
type FuzzyIndex struct {
	scorer    *Scorer
	threshold float64
	entries   []entry
}

type Option func(*FuzzyIndex)

// WithThreshold overrides DefaultThreshold.
func WithThreshold(threshold float64) Option {
	return func(f *FuzzyIndex) {
		f.threshold = threshold
	}
}

func NewFuzzyIndex(opts ...Option) *FuzzyIndex {
	f := &FuzzyIndex{
		scorer:    NewScorer(),
		threshold: DefaultThreshold,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Index replaces the indexed set. Empty values are ignored.
func (f *FuzzyIndex) Index(candidates []Candidate) {
	f.entries = make([]entry, 0, len(candidates))
	for _, c := range candidates {
		tokens := strings.Fields(c.Value)
		if len(tokens) == 0 {
			continue
		}
		f.entries = append(f.entries, entry{Candidate: c, tokens: tokens})
	}
}

func (f *FuzzyIndex) Len() int {
	return len(f.entries)
}

// Search returns every indexed value within the threshold, closest first.
// Ties keep index order.
func (f *FuzzyIndex) Search(query string) []Match {
	queryTokens := strings.Fields(query)
	if len(queryTokens) == 0 {
		return nil
	}
	whole := strings.Join(queryTokens, " ")

	var matches []Match
	for _, e := range f.entries {
		similarity := f.scorer.Similarity(whole, e.Value)
		if n := len(e.tokens); n < len(queryTokens) {
			for i := 0; i+n <= len(queryTokens); i++ {
				window := strings.Join(queryTokens[i:i+n], " ")
				if s := f.scorer.Similarity(window, e.Value); s > similarity {
					similarity = s
				}
			}
		}

		distance := 1 - similarity
		if distance <= f.threshold {
			matches = append(matches, Match{ID: e.ID, Value: e.Value, Distance: distance})
		}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Distance < matches[j].Distance
	})
	return matches
}
