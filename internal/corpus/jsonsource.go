package corpus

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/Herselfta/ludiglot/internal/wwise"
)

// Document is the serialized flat-mapping form of a corpus: normalized key →
// ordered match list. It is what the asset-ingestion pipeline emits.
type Document struct {
	Entries map[string][]Match `json:"entries"`
}

// LoadFile reads a corpus document from path and verifies recorded hint
// hashes against the content hasher.
//
// Hash conformance matters more than a single bad row: a mismatch means the
// hasher and the ingestion pipeline disagree on the algorithm, which would
// silently break every cache lookup. Mismatches are therefore counted and
// logged loudly, but the entries are still loaded (the recorded hash wins —
// it came from the real resource inventory).
func LoadFile(path string) (*Corpus, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("corpus: read %q: %w", path, err)
	}
	return loadDocument(raw, path)
}

func loadDocument(raw []byte, origin string) (*Corpus, error) {
	var doc Document
	if err := json.Unmarshal(raw, &doc.Entries); err != nil {
		// Tolerate the wrapped {"entries": {...}} form as well.
		if err2 := json.Unmarshal(raw, &doc); err2 != nil {
			return nil, fmt.Errorf("corpus: decode %q: %w", origin, err)
		}
	}

	entries := make(map[string][]Match, len(doc.Entries))
	mismatches := 0
	total := 0
	for key, matches := range doc.Entries {
		norm := NormalizeKey(key)
		if norm == "" {
			continue
		}
		for _, m := range matches {
			total++
			if m.HintName != "" && m.HintHash != 0 {
				if got := wwise.Hash(m.HintName); got != m.HintHash {
					mismatches++
					if mismatches == 1 {
						slog.Warn("corpus: hint hash does not match FNV-1a re-hash; hashing constants may have drifted",
							"entry_id", m.EntryID, "hint_name", m.HintName,
							"recorded", m.HintHash, "computed", got)
					}
				}
			}
		}
		entries[norm] = append(entries[norm], matches...)
	}

	if mismatches > 0 {
		slog.Warn("corpus: hash conformance check failed",
			"mismatches", mismatches, "total_matches", total, "origin", origin)
	}
	slog.Info("corpus: loaded", "keys", len(entries), "matches", total, "origin", origin)
	return New(entries), nil
}
