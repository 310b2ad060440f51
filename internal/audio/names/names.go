// Package names generates ordered voice-event name candidates for a matched
// entry. Event names in the shipped banks follow loose conventions (vo_ and
// play_ prefix families, camel-cased or underscored cores, optional gender
// suffixes), so resolution tries a widening set of spellings derived from the
// entry's recorded hint and its text key.
package names

import (
	"regexp"
	"strings"
)

var camelSplitRE = regexp.MustCompile(`([a-z0-9])([A-Z])`)

// prefixFamily is the set of event-name prefixes observed in the banks,
// ordered by how often each spelling actually occurs.
var prefixFamily = []string{"vo_", "play_vo_", "p_vo_", "play_", "p_", "v_", "voice_"}

// strippable are prefixes worth removing before re-adding the family; longer
// compounds first so "play_vo_" wins over "play_".
var strippable = []string{"play_vo_", "p_vo_", "play_", "vo_", "p_"}

// ParseEventName extracts the bare event name from a recorded hint, which may
// be a full object path ("/Game/Aki/WwiseAudio/Events/vo_x.vo_x") or already
// bare. The last path segment is taken, then the part after its last dot.
func ParseEventName(hint string) string {
	raw := strings.TrimSpace(hint)
	if raw == "" {
		return ""
	}
	if i := strings.LastIndexByte(raw, '/'); i >= 0 {
		raw = raw[i+1:]
	}
	if i := strings.LastIndexByte(raw, '.'); i >= 0 {
		raw = raw[i+1:]
	}
	return raw
}

// Build returns the ordered, deduplicated candidate list for an entry. The
// recorded hint's variants come first (they are near-certain when present),
// then heuristic guesses from the text key, then gender-suffixed copies of
// every unmarked name. Both inputs empty yields an empty list.
func Build(textKey, hint string) []string {
	var cands []string

	if ev := ParseEventName(hint); ev != "" {
		cands = append(cands, ev)
		cands = addVariants(cands, ev)
	}
	if textKey != "" {
		cands = append(cands, textKey)
		cands = addVariants(cands, textKey)
	}

	// Dialogue lines voiced per protagonist gender store the base name
	// unsuffixed; try both suffixes on every unmarked candidate.
	var gendered []string
	for _, name := range cands {
		if HasGenderMark(name) {
			continue
		}
		gendered = append(gendered, name+"_f", name+"_m")
	}
	cands = append(cands, gendered...)

	dedup := make([]string, 0, len(cands))
	seen := make(map[string]struct{}, len(cands))
	for _, name := range cands {
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		dedup = append(dedup, name)
	}
	return dedup
}

// HasGenderMark reports whether a name already carries a protagonist gender
// marker, either infix ("_f_") or as the final suffix.
func HasGenderMark(name string) bool {
	lower := strings.ToLower(name)
	return strings.Contains(lower, "_f_") || strings.HasSuffix(lower, "_f") ||
		strings.Contains(lower, "_m_") || strings.HasSuffix(lower, "_m")
}

// addVariants appends the prefix-family spellings of base: the normalized
// (separator-folded, camel-split, lowercased) form, every family prefix on
// the base, strip-then-re-prefix when base already carries one, and the
// _sys_/_toplayer cleanups seen in system voice lines.
func addVariants(cands []string, base string) []string {
	normalized := normalize(base)
	if normalized != "" && normalized != base {
		cands = append(cands, normalized)
		for _, p := range prefixFamily {
			if !strings.HasPrefix(normalized, p) {
				cands = append(cands, p+normalized)
			}
		}
	}

	for _, p := range prefixFamily {
		if !strings.HasPrefix(base, p) {
			cands = append(cands, p+base)
		}
	}

	for _, p := range strippable {
		if strings.HasPrefix(base, p) {
			stripped := base[len(p):]
			cands = append(cands, stripped)
			for _, p2 := range prefixFamily {
				cands = append(cands, p2+stripped)
			}
			break
		}
	}

	if strings.Contains(base, "_sys_") || strings.Contains(base, "_toplayer") {
		clean := strings.ReplaceAll(base, "_sys_", "")
		clean = strings.ReplaceAll(clean, "_toplayer", "")
		if clean != base {
			cands = append(cands, clean)
			for _, p := range prefixFamily {
				cands = append(cands, p+clean)
			}
		}
		semi := strings.ReplaceAll(base, "_sys_", "_")
		semi = strings.ReplaceAll(semi, "_toplayer", "")
		if semi != base && semi != clean {
			cands = append(cands, semi)
			for _, p := range prefixFamily {
				cands = append(cands, p+semi)
			}
		}
	}

	if strings.Contains(base, "toplayer") {
		cands = appendSwap(cands, base, "toplayer", "to_player")
	}
	if strings.Contains(base, "to_player") {
		cands = appendSwap(cands, base, "to_player", "toplayer")
	}
	return cands
}

func appendSwap(cands []string, base, from, to string) []string {
	swapped := strings.ReplaceAll(base, from, to)
	if swapped == base {
		return cands
	}
	cands = append(cands, swapped)
	for _, p := range prefixFamily {
		cands = append(cands, p+swapped)
	}
	return cands
}

// normalize folds separators to underscores, splits camel-case boundaries,
// and lowercases, matching how bank tooling flattens designer-facing names.
func normalize(base string) string {
	r := strings.NewReplacer("-", "_", ".", "_", " ", "_")
	s := r.Replace(base)
	s = camelSplitRE.ReplaceAllString(s, "${1}_${2}")
	return strings.ToLower(s)
}
