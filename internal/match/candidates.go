// Package match implements the top-level retrieval policy: it classifies a
// batch of recognized display lines, builds query candidates from them, and
// decides between single-entry, multi-entry, and mixed title+body outcomes
// against the corpus.
package match

import "strings"

// Line is one recognized display line and its OCR confidence.
type Line struct {
	Text       string
	Confidence float64
}

// Strategy names the candidate-building decision for a line batch.
type Strategy string

const (
	// StrategyMixed is a title-like first line followed by long-form body.
	StrategyMixed Strategy = "mixed"
	// StrategyList is three or more independent short labels.
	StrategyList Strategy = "list"
	// StrategyLong is a multi-line block forming one long text.
	StrategyLong Strategy = "long"
	// StrategySingle is a lone line.
	StrategySingle Strategy = "single"
	// StrategyEmpty means no usable input survived cleaning.
	StrategyEmpty Strategy = "empty"
)

// Candidate is one query string to try against the corpus.
type Candidate struct {
	Text       string
	Confidence float64
}

// CandidateSet is the output of [BuildCandidates].
type CandidateSet struct {
	Strategy   Strategy
	Candidates []Candidate

	// TitleText and ContentText are set for StrategyMixed.
	TitleText   string
	ContentText string

	// FullText is the space-joined cleaned input.
	FullText string
}

type lineTraits struct {
	cleaned   string
	words     int
	chars     int
	titleLike bool
	long      bool
	punct     bool
	conf      float64
}

// abbreviations whose trailing period must not count as sentence punctuation
// when deciding whether a line is a title.
var abbreviations = []string{"Ms.", "Mr.", "Mrs.", "Dr.", "Prof.", "St."}

func analyzeLine(l Line) lineTraits {
	cleaned := strings.TrimSpace(l.Text)
	words := len(strings.Fields(cleaned))
	chars := len(cleaned)

	test := cleaned
	for _, abbr := range abbreviations {
		test = strings.ReplaceAll(test, abbr, abbr[:len(abbr)-1])
	}
	short := words <= 3 && chars <= 25
	titleLike := short && !strings.ContainsAny(test, ",.!?;")
	punct := strings.ContainsAny(cleaned, ",.!?")

	return lineTraits{
		cleaned:   cleaned,
		words:     words,
		chars:     chars,
		titleLike: titleLike,
		long:      words >= 6 || chars >= 40 || punct,
		punct:     punct,
		conf:      l.Confidence,
	}
}

// BuildCandidates classifies the batch and emits the query strings worth
// scoring, ordered by expected value. For mixed content the body candidate
// comes first: content is worth more than a label.
func BuildCandidates(lines []Line) CandidateSet {
	traits := make([]lineTraits, 0, len(lines))
	for _, l := range lines {
		t := analyzeLine(l)
		if t.cleaned != "" {
			traits = append(traits, t)
		}
	}
	if len(traits) == 0 {
		return CandidateSet{Strategy: StrategyEmpty}
	}

	full := joinCleaned(traits)

	// Mixed: title-like first line, substantial remainder.
	if len(traits) >= 2 && traits[0].titleLike {
		rest := traits[1:]
		restWords := 0
		restLong := false
		for _, t := range rest {
			restWords += t.words
			restLong = restLong || t.long
		}
		if restWords >= 6 || restLong {
			content := joinCleaned(rest)
			return CandidateSet{
				Strategy:    StrategyMixed,
				TitleText:   traits[0].cleaned,
				ContentText: content,
				FullText:    full,
				Candidates: []Candidate{
					{content, avgConf(rest)},
					{traits[0].cleaned, traits[0].conf},
					{full, avgConf(traits)},
				},
			}
		}
	}

	// List: independent short labels, one candidate per line, unchanged.
	if len(traits) >= 3 && allShort(traits) {
		set := CandidateSet{Strategy: StrategyList, FullText: full}
		for _, t := range traits {
			set.Candidates = append(set.Candidates, Candidate{t.cleaned, t.conf})
		}
		return set
	}

	// Long: one joined block plus sliding sub-joins, so a corpus entry that
	// is a substring of a partial-screen capture can still be found.
	if len(traits) >= 2 {
		set := CandidateSet{
			Strategy:   StrategyLong,
			FullText:   full,
			Candidates: []Candidate{{full, avgConf(traits)}},
		}
		set.Candidates = append(set.Candidates, slidingWindows(full)...)
		return set
	}

	return CandidateSet{
		Strategy:   StrategySingle,
		FullText:   traits[0].cleaned,
		Candidates: []Candidate{{traits[0].cleaned, traits[0].conf}},
	}
}

// slidingWindows emits word-window sub-joins of the full text, stride 3, for
// window sizes between 8 and 24 words. Deduplicated; capped to keep the
// candidate list bounded.
func slidingWindows(full string) []Candidate {
	words := strings.Fields(full)
	if len(words) < 10 {
		return nil
	}
	const stride = 3
	const maxWindows = 40

	var out []Candidate
	seen := make(map[string]struct{})
	for _, size := range []int{8, 16, 24} {
		if size >= len(words) {
			break
		}
		for start := 0; start+size <= len(words) && len(out) < maxWindows; start += stride {
			segment := strings.Join(words[start:start+size], " ")
			if _, dup := seen[segment]; dup {
				continue
			}
			seen[segment] = struct{}{}
			out = append(out, Candidate{segment, 0.8})
		}
	}
	return out
}

func joinCleaned(traits []lineTraits) string {
	parts := make([]string, len(traits))
	for i, t := range traits {
		parts[i] = t.cleaned
	}
	return strings.Join(parts, " ")
}

func avgConf(traits []lineTraits) float64 {
	if len(traits) == 0 {
		return 0
	}
	sum := 0.0
	for _, t := range traits {
		sum += t.conf
	}
	return sum / float64(len(traits))
}

func allShort(traits []lineTraits) bool {
	for _, t := range traits {
		if !(t.words <= 3 && t.chars <= 25) {
			return false
		}
	}
	return true
}
