package normalizers

import "strings"

// legalSuffixes holds the normalized form of legal entity designators. "Inc." and
// "Inc" collapse to the same token once punctuation becomes whitespace.
var legalSuffixes = map[string]struct{}{
	"inc":          {},
	"incorporated": {},
	"corp":         {},
	"corporation":  {},
	"llc":          {},
	"ltd":          {},
	"limited":      {},
	"co":           {},
	"company":      {},
	"group":        {},
	"holdings":     {},
	"plc":          {},
	"gmbh":         {},
	"sa":           {},
	"ag":           {},
}

// NormalizeCompanyName lowercases name, turns punctuation and hyphens into
// spaces, collapses whitespace and strips trailing legal suffixes until none is
// left. A name made only of suffixes normalizes to "".
func NormalizeCompanyName(name string) string {
	tokens := strings.Fields(collapse(strings.ToLower(name), true))
	for len(tokens) > 0 {
		if _, ok := legalSuffixes[tokens[len(tokens)-1]]; !ok {
			break
		}
		tokens = tokens[:len(tokens)-1]
	}
	return strings.Join(tokens, " ")
}
