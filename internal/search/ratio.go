package search

import (
	"sort"
	"strings"

	"github.com/antzucaro/matchr"
)

// Ratio returns a normalized edit-distance similarity in [0, 1]. It is the
// fast scorer used for short queries, where a single transposed or dropped
// character should cost proportionally.
func Ratio(a, b string) float64 {
	if a == b {
		return 1.0
	}
	la, lb := len(a), len(b)
	if la == 0 || lb == 0 {
		return 0.0
	}
	longest := la
	if lb > longest {
		longest = lb
	}
	d := matchr.Levenshtein(a, b)
	if d >= longest {
		return 0.0
	}
	return 1.0 - float64(d)/float64(longest)
}

// TokenSetRatio compares the token multisets of a and b the way rapidfuzz's
// token_set_ratio does: shared tokens are factored out so that word order and
// one-sided extra words are cheap. Tokens split on any non-alphanumeric rune.
// Inputs without at least two tokens on one side degrade to [Ratio].
func TokenSetRatio(a, b string) float64 {
	ta, tb := tokens(a), tokens(b)
	if len(ta) <= 1 && len(tb) <= 1 {
		return Ratio(a, b)
	}

	common, restA := partition(ta, tb)
	_, restB := partition(tb, ta)

	sorted := strings.Join(common, " ")
	combinedA := strings.TrimSpace(sorted + " " + strings.Join(restA, " "))
	combinedB := strings.TrimSpace(sorted + " " + strings.Join(restB, " "))

	best := Ratio(combinedA, combinedB)
	if sorted != "" {
		if s := Ratio(sorted, combinedA); s > best {
			best = s
		}
		if s := Ratio(sorted, combinedB); s > best {
			best = s
		}
	}
	return best
}

func tokens(s string) []string {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	})
	sort.Strings(fields)
	return fields
}

// partition splits a into the tokens shared with b (common) and the rest.
// Both inputs must be sorted; the outputs stay sorted.
func partition(a, b []string) (common, rest []string) {
	inB := make(map[string]int, len(b))
	for _, t := range b {
		inB[t]++
	}
	for _, t := range a {
		if inB[t] > 0 {
			inB[t]--
			common = append(common, t)
		} else {
			rest = append(rest, t)
		}
	}
	return common, rest
}
