// Package corpus defines the canonical text-entry model shared by the whole
// retrieval pipeline and the ingestion sources that populate it.
//
// Every upstream shape (flat JSON mapping documents, Postgres rows) is
// normalized at load time into one representation: a map from normalized key
// to an ordered list of [Match] values. Homographs — distinct entry IDs whose
// renderings collapse onto the same normalized key — are appended under that
// key, never overwritten.
package corpus

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Match is one corpus record: a stable entry identifier, up to two
// parallel-language renderings, and an optional externally recorded audio
// resource hint.
type Match struct {
	// EntryID is the stable identifier of the source entry (e.g. a text key
	// from the upstream data dump).
	EntryID string `json:"entry_id"`

	// SourcePrimary and SourceSecondary are the two parallel-language
	// renderings. Either may be empty, not both.
	SourcePrimary   string `json:"source_primary"`
	SourceSecondary string `json:"source_secondary,omitempty"`

	// HintName is an externally recorded audio resource name, when the
	// upstream data carried one. Empty otherwise.
	HintName string `json:"hint_name,omitempty"`

	// HintHash is the precomputed content hash of HintName, when recorded.
	// Zero means absent.
	HintHash uint32 `json:"hint_hash,omitempty"`
}

// HasAudioHint reports whether the match carries any audio association.
func (m Match) HasAudioHint() bool {
	return m.HintName != "" || m.HintHash != 0
}

// Corpus is the read-mostly entry store. It is immutable after load and safe
// for concurrent readers.
type Corpus struct {
	entries map[string][]Match
	keys    []string
}

// New builds a Corpus from an already-normalized entry map. The map is owned
// by the Corpus after the call.
func New(entries map[string][]Match) *Corpus {
	keys := make([]string, 0, len(entries))
	for k := range entries {
		keys = append(keys, k)
	}
	return &Corpus{entries: entries, keys: keys}
}

// Lookup returns the matches stored under the normalized key, or nil.
func (c *Corpus) Lookup(key string) []Match {
	return c.entries[key]
}

// Keys returns the full normalized key set. Callers must not mutate it.
func (c *Corpus) Keys() []string {
	return c.keys
}

// Len returns the number of distinct normalized keys.
func (c *Corpus) Len() int {
	return len(c.entries)
}

// Add appends a match under the normalized projection of text. Used by
// ingestion sources during load; not safe for use after the Corpus has been
// shared.
func (c *Corpus) Add(text string, m Match) {
	key := NormalizeKey(text)
	if key == "" {
		return
	}
	existing, ok := c.entries[key]
	for _, prev := range existing {
		if prev.EntryID == m.EntryID {
			return
		}
	}
	if !ok {
		c.keys = append(c.keys, key)
	}
	c.entries[key] = append(existing, m)
}

// foldMarks decomposes to NFKC-compatible form and strips combining marks, so
// that accented and full-width renderings project onto the same key.
var foldMarks = transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFKC)

// NormalizeKey projects text onto the corpus lookup key: Unicode-folded,
// lowercased, alphanumeric runes only. Whitespace and punctuation vanish, so
// line breaks and OCR-mangled separators cannot split a key.
func NormalizeKey(text string) string {
	folded, _, err := transform.String(foldMarks, text)
	if err != nil {
		folded = text
	}
	var b strings.Builder
	b.Grow(len(folded))
	for _, r := range folded {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(unicode.ToLower(r))
		}
	}
	return b.String()
}
