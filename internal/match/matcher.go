package match

import (
	"context"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/Herselfta/ludiglot/internal/corpus"
	"github.com/Herselfta/ludiglot/internal/observe"
	"github.com/Herselfta/ludiglot/internal/search"
)

// AudioProber reports whether a matched entry has a resolvable audio
// resource beyond its recorded hint fields. Implemented by the resource
// inventory; nil disables the probe and only hint fields count.
type AudioProber interface {
	HasAudio(entryID, hintName string) bool
}

// Option configures a [Matcher].
type Option func(*Matcher)

// WithAliases installs a query-key alias map applied after normalization
// (e.g. "def" → "maindef" for stat labels whose on-screen form is shortened).
func WithAliases(aliases map[string]string) Option {
	return func(m *Matcher) { m.aliases = aliases }
}

// WithAcceptanceFloor sets the weighted-score floor under which a result is
// rejected as low-confidence. Default: 0.35.
func WithAcceptanceFloor(floor float64) Option {
	return func(m *Matcher) { m.floor = floor }
}

// WithAudioProber installs the audio presence probe used by the mixed-content
// heuristic and the audio scoring bonus.
func WithAudioProber(p AudioProber) Option {
	return func(m *Matcher) { m.prober = p }
}

// WithMetrics installs the metric instruments recorded per match pass.
func WithMetrics(met *observe.Metrics) Option {
	return func(m *Matcher) { m.metrics = met }
}

// Matcher is the top-level retrieval policy over a loaded corpus. It is
// read-only after construction and safe for concurrent use.
type Matcher struct {
	corpus  *corpus.Corpus
	engine  *search.Engine
	aliases map[string]string
	floor   float64
	prober  AudioProber
	metrics *observe.Metrics
}

// New builds a Matcher over the corpus and its search engine.
func New(c *corpus.Corpus, e *search.Engine, opts ...Option) *Matcher {
	m := &Matcher{
		corpus: c,
		engine: e,
		floor:  0.35,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

var (
	brTagRE    = regexp.MustCompile(`(?i)<\s*/?\s*br\s*/?\s*>`)
	timeSpanRE = regexp.MustCompile(`^\d+[dhms](\s+\d+[dhms])*$`)
	specialRE  = regexp.MustCompile(`[^\w\s\-]`)
)

// cleanLine strips markup remnants and icon/separator noise from a raw OCR
// line, keeping letters, digits, and single spaces.
func cleanLine(text string) string {
	text = brTagRE.ReplaceAllString(text, " ")
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range text {
		switch {
		case r == ' ' || r == '\t' || r == '\n':
			b.WriteRune(' ')
		case isAlnum(r):
			b.WriteRune(r)
		default:
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

func isAlnum(r rune) bool {
	return r >= '0' && r <= '9' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r > 127
}

type lineInfo struct {
	idx        int
	raw        string
	cleaned    string
	key        string
	conf       float64
	hit        search.Result
	matches    []corpus.Match
	titleLike  bool
	polluted   bool
	timeSuffix string
}

// Match finds the best corpus entry (or entries) for one batch of recognized
// lines. Returns nil when nothing clears the acceptance floor — absence of a
// match is a normal outcome, not an error.
func (m *Matcher) Match(lines []Line) *Result {
	start := time.Now()
	res := m.lookupBest(lines)
	elapsed := time.Since(start)

	if m.metrics != nil {
		ctx := context.Background()
		m.metrics.MatchDuration.Record(ctx, elapsed.Seconds())
		m.metrics.RecordMatchOutcome(ctx, outcomeKind(res))
	}
	if elapsed > time.Second {
		slog.Warn("match: slow pass", "elapsed", elapsed, "lines", len(lines))
	}
	return res
}

func outcomeKind(r *Result) string {
	switch {
	case r == nil:
		return "none"
	case r.Multi():
		return "multi"
	case r.TitleHint != "":
		return "mixed"
	default:
		return "single"
	}
}

// searchKey runs the engine cascade for one normalized key and attaches the
// corpus matches of the winning key.
func (m *Matcher) searchKey(key string) (search.Result, []corpus.Match) {
	hit := m.engine.SmartSearch(key)
	if hit.Key == "" {
		return hit, nil
	}
	return hit, m.corpus.Lookup(hit.Key)
}

func (m *Matcher) analyze(lines []Line) []lineInfo {
	infos := make([]lineInfo, 0, len(lines))
	for idx, l := range lines {
		cleaned := cleanLine(l.Text)
		if cleaned == "" {
			continue
		}
		key := corpus.NormalizeKey(cleaned)
		if key == "" {
			continue
		}
		if alias, ok := m.aliases[key]; ok {
			key = alias
		}
		hit, matches := m.searchKey(key)

		raw := strings.TrimSpace(l.Text)
		pollution := 0.0
		if len(raw) > 0 {
			pollution = float64(len(specialRE.FindAllString(raw, -1))) / float64(len(raw))
		}
		words := len(strings.Fields(cleaned))

		infos = append(infos, lineInfo{
			idx:       idx,
			raw:       raw,
			cleaned:   cleaned,
			key:       key,
			conf:      l.Confidence,
			hit:       hit,
			matches:   matches,
			titleLike: words <= 3 && len(cleaned) <= 20 && !strings.ContainsAny(cleaned, ",.!?"),
			polluted:  pollution > 0.15,
		})
	}
	return infos
}

func (m *Matcher) lookupBest(lines []Line) *Result {
	infos := m.analyze(lines)
	if len(infos) == 0 {
		return nil
	}

	contextText := joinLines(infos)
	contextKey := corpus.NormalizeKey(contextText)

	// Full-block pass first: a long sentence split across lines often exists
	// verbatim as one corpus entry.
	if len(contextKey) > 30 {
		hit, matches := m.searchKey(contextKey)
		coverage := 0.0
		if hit.Key != "" {
			coverage = float64(len(hit.Key)) / float64(len(contextKey))
		}
		if hit.Score >= 0.82 || (hit.Score >= 0.72 && coverage >= 0.75) {
			return &Result{
				MatchedKey: hit.Key,
				Score:      hit.Score,
				Weighted:   hit.Score,
				Matches:    matches,
				QueryKey:   contextKey,
				OCRText:    contextText,
			}
		}
	}

	if r := m.multiItemResult(infos, len(contextKey)); r != nil {
		return r
	}
	if r := m.mixedContentResult(infos); r != nil {
		return r
	}
	if r := m.listModeResult(infos); r != nil {
		return r
	}
	if r := m.singleLineFastPath(infos); r != nil {
		return r
	}
	return m.weightedScan(lines, infos, len(contextKey))
}

func joinLines(infos []lineInfo) string {
	parts := make([]string, len(infos))
	for i, l := range infos {
		parts[i] = l.cleaned
	}
	return strings.Join(parts, " ")
}

// multiItemResult detects batches of independently matchable lines (stat
// panels, reward lists). Time-duration tokens are merged onto the previous
// kept item as a display suffix instead of matching on their own.
func (m *Matcher) multiItemResult(infos []lineInfo, contextLen int) *Result {
	var kept []lineInfo
	for _, l := range infos {
		lower := strings.ToLower(l.cleaned)
		if timeSpanRE.MatchString(lower) {
			if len(kept) > 0 {
				kept[len(kept)-1].timeSuffix = l.cleaned
			}
			continue
		}
		if digitRatio(l.cleaned) > 0.8 {
			continue
		}
		if l.polluted && l.hit.Score < 0.85 {
			continue
		}

		keyLen, matchedLen := len(l.key), len(l.hit.Key)
		if keyLen >= 15 && matchedLen > keyLen*3 && l.hit.Score < 0.98 {
			continue
		}

		highScore := l.hit.Score >= 0.75 && !l.polluted
		lengthMatch := matchedLen*2 >= keyLen && matchedLen <= keyLen*2 && l.hit.Score >= 0.55
		longText := keyLen > 50 && l.hit.Score >= 0.60
		shortStrict := keyLen < 15 && l.hit.Score >= 0.85
		if highScore || lengthMatch || longText || shortStrict {
			kept = append(kept, l)
		}
	}
	if len(kept) < 3 {
		return nil
	}

	// Group lines that matched the same entry: a split paragraph is one
	// entry, not many.
	type group struct {
		entryID string
		lines   []lineInfo
	}
	var groups []group
	byEntry := make(map[string]int)
	for _, l := range kept {
		if len(l.matches) == 0 {
			continue
		}
		id := l.matches[0].EntryID
		if gi, ok := byEntry[id]; ok {
			groups[gi].lines = append(groups[gi].lines, l)
			continue
		}
		byEntry[id] = len(groups)
		groups = append(groups, group{entryID: id, lines: []lineInfo{l}})
	}
	if len(groups) == 0 {
		return nil
	}

	// Cohesive-text guards: dense lines over a long context are a split
	// narrative block, not a list of independent entries. The shorter
	// cohesive form additionally requires that at most two entries matched
	// with real confidence, so genuine reward lists stay multi.
	dense := 0
	for _, l := range infos {
		if len(strings.Fields(l.cleaned)) >= 4 {
			dense++
		}
	}
	highConf := 0
	for _, g := range groups {
		for _, l := range g.lines {
			if l.hit.Score >= 0.85 {
				highConf++
				break
			}
		}
	}
	paragraphLike := len(infos) >= 6 && contextLen >= 120 && dense >= 4
	minDense := 2
	if len(infos)-1 > minDense {
		minDense = len(infos) - 1
	}
	blockLike := len(infos) >= 3 && contextLen >= 80 && dense >= minDense && !isListMode(infos)
	if len(groups) >= 3 && (paragraphLike || (blockLike && highConf <= 2)) {
		slog.Debug("match: multi-item suppressed for cohesive batch",
			"lines", len(infos), "context_len", contextLen, "dense", dense,
			"groups", len(groups), "high_conf", highConf)
		return nil
	}

	if len(groups) == 1 {
		// OCR split one entry across several lines; collapse to single.
		g := groups[0]
		merged := make([]string, len(g.lines))
		best := g.lines[0]
		for i, l := range g.lines {
			merged[i] = l.cleaned
			if l.hit.Score > best.hit.Score {
				best = l
			}
		}
		text := strings.Join(merged, " ")
		return &Result{
			MatchedKey: best.hit.Key,
			Score:      best.hit.Score,
			Weighted:   best.hit.Score,
			Matches:    best.matches,
			QueryKey:   corpus.NormalizeKey(text),
			OCRText:    text,
			Confidence: best.conf,
		}
	}
	items := make([]Item, 0, len(groups))
	for _, g := range groups {
		merged := make([]string, len(g.lines))
		best := g.lines[0]
		suffix := ""
		for i, l := range g.lines {
			merged[i] = l.cleaned
			if l.hit.Score > best.hit.Score {
				best = l
			}
			if l.timeSuffix != "" {
				suffix = l.timeSuffix
			}
		}
		text := strings.Join(merged, " ")
		first := best.matches[0]
		primary, secondary := first.SourcePrimary, first.SourceSecondary
		if suffix != "" {
			primary = appendSuffix(primary, suffix)
			secondary = appendSuffix(secondary, suffix)
		}
		items = append(items, Item{
			OCRText:           text,
			QueryKey:          corpus.NormalizeKey(text),
			Score:             best.hit.Score,
			EntryID:           g.entryID,
			RenderedPrimary:   primary,
			RenderedSecondary: secondary,
		})
	}
	return multiResult(items)
}

func appendSuffix(text, suffix string) string {
	if text == "" {
		return ""
	}
	if strings.HasSuffix(strings.TrimSpace(text), ":") {
		return text + " " + suffix
	}
	return text + ": " + suffix
}

func multiResult(items []Item) *Result {
	ocr := make([]string, len(items))
	keys := make([]string, len(items))
	best := 0.0
	for i, it := range items {
		ocr[i] = it.OCRText
		keys[i] = it.QueryKey
		if it.Score > best {
			best = it.Score
		}
	}
	return &Result{
		Score:    best,
		Weighted: best,
		QueryKey: strings.Join(keys, " / "),
		OCRText:  strings.Join(ocr, " / "),
		Items:    items,
	}
}

// mixedContentResult handles a title-like first line over a long-form body:
// the body's entry is returned, the title travels along as display metadata.
func (m *Matcher) mixedContentResult(infos []lineInfo) *Result {
	if len(infos) < 2 || !infos[0].titleLike {
		return nil
	}
	first := infos[0]
	rest := infos[1:]

	restText := joinLines(rest)
	restKey := corpus.NormalizeKey(restText)
	if len(strings.Fields(restText)) < 3 {
		return nil
	}
	hit, matches := m.searchKey(restKey)
	if hit.Score < 0.5 {
		return nil
	}
	if len(hit.Key)*10 < len(restKey)*6 { // coverage < 60%
		return nil
	}

	restAudio := m.hasAudio(matches)
	firstAudio := m.hasAudio(first.matches)
	if len(restKey) > 100 || restAudio || (!firstAudio && hit.Score > first.hit.Score) {
		return &Result{
			MatchedKey: hit.Key,
			Score:      hit.Score,
			Weighted:   hit.Score,
			Matches:    matches,
			QueryKey:   restKey,
			OCRText:    restText,
			TitleHint:  first.cleaned,
		}
	}
	return nil
}

func (m *Matcher) hasAudio(matches []corpus.Match) bool {
	if len(matches) == 0 {
		return false
	}
	first := matches[0]
	if first.HasAudioHint() {
		return true
	}
	if m.prober != nil {
		return m.prober.HasAudio(first.EntryID, first.HintName)
	}
	return false
}

// listModeResult returns all strong lines of a short-label list batch.
func (m *Matcher) listModeResult(infos []lineInfo) *Result {
	if !isListMode(infos) {
		return nil
	}
	var items []Item
	for _, l := range infos {
		if l.hit.Score < 0.9 || len(l.matches) == 0 {
			continue
		}
		first := l.matches[0]
		items = append(items, Item{
			OCRText:           l.cleaned,
			QueryKey:          l.key,
			Score:             l.hit.Score,
			EntryID:           first.EntryID,
			RenderedPrimary:   first.SourcePrimary,
			RenderedSecondary: first.SourceSecondary,
		})
	}
	if len(items) < 3 {
		return nil
	}
	return multiResult(items)
}

func isListMode(infos []lineInfo) bool {
	if len(infos) < 4 {
		return false
	}
	var filtered []lineInfo
	for _, l := range infos {
		if len(strings.Fields(l.cleaned)) > 3 || len(l.cleaned) > 20 {
			continue
		}
		if digitRatio(l.cleaned) > 0.4 {
			continue
		}
		filtered = append(filtered, l)
	}
	if len(filtered) < 3 {
		return false
	}
	maxLen, totalWords := 0, 0
	for _, l := range filtered {
		if len(l.cleaned) > maxLen {
			maxLen = len(l.cleaned)
		}
		totalWords += len(strings.Fields(l.cleaned))
	}
	avgWords := float64(totalWords) / float64(len(filtered))
	return maxLen <= 16 && avgWords <= 2.2
}

// singleLineFastPath returns a lone high-confidence line immediately, so
// short dialogue is not lost to the later length filters.
func (m *Matcher) singleLineFastPath(infos []lineInfo) *Result {
	if len(infos) != 1 {
		return nil
	}
	l := infos[0]
	keyLen, matchedLen := len(l.key), len(l.hit.Key)
	minMatched := keyLen * 3 / 4
	if minMatched < 10 {
		minMatched = 10
	}
	if l.hit.Score >= 0.95 && keyLen >= 12 && matchedLen >= minMatched && matchedLen <= keyLen*2 {
		return &Result{
			MatchedKey: l.hit.Key,
			Score:      l.hit.Score,
			Weighted:   l.hit.Score,
			Matches:    l.matches,
			QueryKey:   l.key,
			OCRText:    l.cleaned,
			Confidence: l.conf,
		}
	}
	return nil
}

// weightedScan is the general path: score every smart candidate, weight by
// length and word count, penalize length mismatches, boost audio-backed
// entries, and keep the best above the acceptance floor.
func (m *Matcher) weightedScan(lines []Line, infos []lineInfo, contextLen int) *Result {
	set := BuildCandidates(lines)
	candidates := set.Candidates
	if len(candidates) > 10 {
		// Short contexts get a tight cap: their trailing sub-joins are
		// mostly noise and each one is a chance for a false hit.
		limit := 5
		if contextLen >= 120 {
			limit = 12
		}
		if len(candidates) > limit {
			candidates = candidates[:limit]
		}
	}

	var contextAnchors []string
	if contextLen >= 120 {
		contextAnchors = extractAnchorTokens(joinLines(infos))
	}

	var best *Result
	bestWeighted := -1.0
	bestWords := 0

	for _, cand := range candidates {
		if bestWeighted > 0.96 && bestWords > 5 {
			break
		}
		key := corpus.NormalizeKey(cand.Text)
		if key == "" {
			continue
		}
		words := len(strings.Fields(cand.Text))
		if contextLen >= 40 && (words <= 3 || len(key) < 20) {
			continue
		}

		hit, matches := m.searchKey(key)
		if hit.Key == "" {
			continue
		}

		lengthBonus := minf(float64(len(key))/100.0, 1.0)
		wordBonus := minf(float64(words)/8.0, 1.0)
		weighted := hit.Score * (0.6 + 0.2*lengthBonus + 0.2*wordBonus)

		keyLen, matchedLen := len(key), len(hit.Key)
		gap := keyLen - matchedLen
		if gap < 0 {
			gap = -gap
		}
		ratio := float64(matchedLen) / float64(keyLen)
		switch {
		case keyLen > 25 && matchedLen < 20:
			weighted *= 0.2
		case gap > 15 && ratio < 0.6:
			weighted *= 0.4
		case keyLen > matchedLen*2:
			weighted *= 0.5
		case keyLen*2 > matchedLen*3 && hit.Score < 0.97:
			weighted *= 0.75
		}

		// Anchor consistency over long contexts: a candidate whose matched
		// key lacks the block's distinctive terms is a template collision.
		if len(contextAnchors) > 0 {
			hits := 0
			for _, tok := range contextAnchors {
				if strings.Contains(hit.Key, tok) {
					hits++
				}
			}
			anchorRatio := float64(hits) / float64(len(contextAnchors))
			switch {
			case hits == 0:
				weighted *= 0.20
			case anchorRatio < 0.35:
				weighted *= 0.45
			case anchorRatio < 0.6:
				weighted *= 0.75
			case anchorRatio >= 0.8:
				weighted *= 1.12
			}
		}

		if m.hasAudio(matches) && hit.Score > 0.8 {
			weighted *= 1.15
		}

		if weighted > bestWeighted {
			bestWeighted = weighted
			bestWords = words
			best = &Result{
				MatchedKey: hit.Key,
				Score:      hit.Score,
				Weighted:   weighted,
				Matches:    matches,
				QueryKey:   key,
				OCRText:    cand.Text,
				Confidence: cand.Confidence,
			}
		}
	}

	// Long paragraph with no convincing winner: retrieve by anchor-token
	// consistency before giving up.
	if contextLen >= 120 && (best == nil || best.Weighted < 0.65) {
		if r := m.anchorRescue(joinLines(infos)); r != nil {
			return r
		}
	}

	if best == nil || best.Weighted < m.floor {
		if best != nil {
			slog.Debug("match: best candidate under acceptance floor",
				"weighted", best.Weighted, "floor", m.floor)
		}
		return nil
	}
	if set.Strategy == StrategyMixed && best.OCRText == set.ContentText {
		best.TitleHint = set.TitleText
	}
	return best
}

func digitRatio(s string) float64 {
	if s == "" {
		return 0
	}
	digits := 0
	for _, r := range s {
		if r >= '0' && r <= '9' {
			digits++
		}
	}
	return float64(digits) / float64(len(s))
}

func minf(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
