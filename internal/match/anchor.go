package match

import (
	"log/slog"
	"regexp"
	"strings"

	"github.com/Herselfta/ludiglot/internal/corpus"
)

var anchorTokenRE = regexp.MustCompile(`[a-z][a-z0-9']+`)

// anchorStop lists connective and template words too common to tell apart
// entries that share boilerplate phrasing.
var anchorStop = map[string]struct{}{
	"the": {}, "and": {}, "with": {}, "when": {}, "after": {}, "before": {},
	"while": {}, "within": {}, "without": {}, "into": {}, "from": {},
	"that": {}, "this": {}, "your": {}, "their": {}, "there": {},
	"where": {}, "which": {}, "press": {}, "cast": {}, "skill": {},
	"resonance": {}, "basic": {}, "attack": {}, "normal": {}, "stage": {},
	"points": {}, "point": {}, "cost": {}, "rate": {}, "dealing": {},
	"damage": {}, "dmg": {}, "considered": {}, "switch": {}, "form": {},
	"ground": {}, "period": {}, "certain": {}, "close": {}, "less": {},
	"than": {}, "no": {}, "more": {}, "can": {}, "be": {}, "to": {},
	"of": {}, "in": {}, "is": {}, "at": {}, "on": {}, "for": {},
	"fusion": {}, "liberation": {},
}

// extractAnchorTokens pulls the distinctive long words out of a text block in
// first-occurrence order, capped at eight. Anchors are the terms OCR tends to
// get right even when the connective text around them is mangled.
func extractAnchorTokens(text string) []string {
	var tokens []string
	seen := make(map[string]struct{})
	for _, w := range anchorTokenRE.FindAllString(strings.ToLower(text), -1) {
		w = strings.Trim(w, "'")
		if len(w) < 6 {
			continue
		}
		if _, stop := anchorStop[w]; stop {
			continue
		}
		if _, dup := seen[w]; dup {
			continue
		}
		seen[w] = struct{}{}
		tokens = append(tokens, w)
		if len(tokens) == 8 {
			break
		}
	}
	return tokens
}

// anchorRescue retrieves a long body entry by anchor-token consistency when
// the weighted scan came up empty-handed. Heavily garbled connective text
// sinks the edit-distance scorers, but the distinctive terms usually survive,
// so long keys carrying enough of them are ranked directly.
func (m *Matcher) anchorRescue(contextText string) *Result {
	queryKey := corpus.NormalizeKey(contextText)
	if len(queryKey) < 120 {
		return nil
	}
	anchors := extractAnchorTokens(contextText)
	if len(anchors) < 2 {
		return nil
	}

	headWords := strings.Fields(contextText)
	if len(headWords) > 8 {
		headWords = headWords[:8]
	}
	head := corpus.NormalizeKey(strings.Join(headWords, " "))

	required := len(anchors)
	if required > 4 {
		required = 4
	}
	if required < 2 {
		required = 2
	}

	bestKey := ""
	bestRank := -1.0
	bestHits := 0
	minLen := len(queryKey) * 3 / 4
	for _, dbKey := range m.corpus.Keys() {
		if len(dbKey) < minLen {
			continue
		}
		hits := 0
		for _, tok := range anchors {
			if strings.Contains(dbKey, tok) {
				hits++
			}
		}
		if hits < required {
			continue
		}

		rank := float64(hits) / float64(len(anchors)) * 2.0
		if head != "" && strings.Contains(dbKey, head) {
			rank += 1.2
		}
		stretch := float64(len(dbKey)) / float64(len(queryKey))
		switch {
		case stretch <= 6:
			rank += 0.6
		case stretch <= 12:
			rank += 0.2
		default:
			rank -= 0.2
		}

		if rank > bestRank {
			bestRank = rank
			bestKey = dbKey
			bestHits = hits
		}
	}
	if bestKey == "" {
		return nil
	}

	score := 0.55 + 0.07*float64(bestHits)
	if bestRank > 1.0 {
		score += (bestRank - 1.0) * 0.05
	}
	if score > 0.92 {
		score = 0.92
	}
	slog.Debug("match: anchor rescue hit",
		"key", bestKey, "hits", bestHits, "anchors", len(anchors), "score", score)
	return &Result{
		MatchedKey: bestKey,
		Score:      score,
		Weighted:   score,
		Matches:    m.corpus.Lookup(bestKey),
		QueryKey:   queryKey,
		OCRText:    contextText,
	}
}
