package match

import "github.com/Herselfta/ludiglot/internal/corpus"

// Item is one entry of a multi-entry result: an independently matched line
// (or group of lines that collapsed onto the same entry).
type Item struct {
	// OCRText is the cleaned recognized text that produced this item.
	OCRText string

	// QueryKey is the normalized projection of OCRText.
	QueryKey string

	// Score is the raw engine score for the item's own query.
	Score float64

	// EntryID identifies the matched corpus entry.
	EntryID string

	// RenderedPrimary and RenderedSecondary are the entry's two
	// parallel-language renderings, with any time suffix re-attached.
	RenderedPrimary   string
	RenderedSecondary string
}

// Result is the outcome of matching one capture's line batch. A nil *Result
// means no corpus entry cleared the acceptance floor.
type Result struct {
	// MatchedKey is the winning normalized corpus key. Empty for
	// multi-entry results, which carry per-item keys instead.
	MatchedKey string

	// Score is the raw engine score of the winning query; Weighted is the
	// score after length/word weighting, penalties, and the audio bonus.
	Score    float64
	Weighted float64

	// Matches are the corpus matches stored under MatchedKey, in corpus
	// order (homographs preserved).
	Matches []corpus.Match

	// QueryKey and OCRText record the query that won, for display and
	// debugging.
	QueryKey string
	OCRText  string

	// Confidence is the OCR confidence of the winning candidate.
	Confidence float64

	// TitleHint carries the title line's text when a mixed title+body batch
	// resolved to the body. Display metadata only.
	TitleHint string

	// Items is non-empty for multi-entry outcomes; the scalar fields above
	// are then summaries.
	Items []Item
}

// Multi reports whether the result is a multi-entry outcome.
func (r *Result) Multi() bool {
	return r != nil && len(r.Items) > 0
}

// Best returns the first match under the winning key, if any.
func (r *Result) Best() (corpus.Match, bool) {
	if r == nil || len(r.Matches) == 0 {
		return corpus.Match{}, false
	}
	return r.Matches[0], true
}
