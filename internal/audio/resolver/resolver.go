// Package resolver turns a matched entry into a playable audio artifact. The
// event name space is noisy, so resolution fans a matched entry out into name
// candidates, orders them by voice-gender preference, and probes the cache,
// the loose media tree, and the banks until one holds the content.
package resolver

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/Herselfta/ludiglot/internal/audio/bnk"
	"github.com/Herselfta/ludiglot/internal/audio/cacheindex"
	"github.com/Herselfta/ludiglot/internal/audio/inventory"
	"github.com/Herselfta/ludiglot/internal/audio/names"
	"github.com/Herselfta/ludiglot/internal/observe"
	"github.com/Herselfta/ludiglot/internal/wwise"
)

// Source identifies where a resolved artifact lives.
type Source string

const (
	// SourceCache is a previously materialized artifact.
	SourceCache Source = "cache"
	// SourceWem is a loose media file addressed by hash.
	SourceWem Source = "wem"
	// SourceBnk is media embedded in a bank.
	SourceBnk Source = "bnk"
	// SourceUnknown is a blind best guess: the hash is plausible but no
	// local resource backs it yet.
	SourceUnknown Source = "unknown"
)

// Resolution is one resolved audio reference.
type Resolution struct {
	Hash      uint32
	EventName string
	Source    Source

	// Path is the local file backing the resolution: the cached artifact,
	// the loose media file, or the containing bank. Empty for SourceUnknown.
	Path string
}

// Gender preference values.
const (
	GenderFemale = "female"
	GenderMale   = "male"
)

var (
	femaleMarks = []string{"_f_", "nvzhu", "roverf", "_female"}
	maleMarks   = []string{"_m_", "nanzhu", "roverm", "_male"}
)

// Option configures a [Resolver].
type Option func(*Resolver)

// WithGenderPreference selects which protagonist voice wins when an entry has
// both. Default: female.
func WithGenderPreference(g string) Option {
	return func(r *Resolver) { r.gender = strings.ToLower(g) }
}

// WithCacheIndex installs the materialized-artifact cache.
func WithCacheIndex(ix *cacheindex.Index) Option {
	return func(r *Resolver) { r.cache = ix }
}

// WithInventory installs the resource-name inventory used to widen candidate
// generation.
func WithInventory(ix *inventory.Index) Option {
	return func(r *Resolver) { r.inventory = ix }
}

// WithMetrics installs the instruments recorded per resolution.
func WithMetrics(met *observe.Metrics) Option {
	return func(r *Resolver) { r.metrics = met }
}

// Resolver probes local audio resources. Read-only after construction and
// safe for concurrent use.
type Resolver struct {
	wemRoot   string
	bnkRoot   string
	gender    string
	cache     *cacheindex.Index
	inventory *inventory.Index
	metrics   *observe.Metrics
}

// New creates a resolver over the loose-media and bank roots. Either root may
// be empty to skip that probe.
func New(wemRoot, bnkRoot string, opts ...Option) *Resolver {
	r := &Resolver{
		wemRoot: wemRoot,
		bnkRoot: bnkRoot,
		gender:  GenderFemale,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Resolve finds the best local audio resource for an entry. textKey is the
// entry's normalized key, hint its recorded event reference, hintHash its
// recorded precomputed hash; any of them may be zero. The second return is
// false only when no candidate name could be generated and no hash was
// recorded — a blind SourceUnknown guess still counts as a result so callers
// can attempt materialization later.
func (r *Resolver) Resolve(ctx context.Context, textKey, hint string, hintHash uint32) (Resolution, bool) {
	res, ok := r.resolve(ctx, textKey, hint, hintHash)
	if r.metrics != nil {
		outcome := "none"
		if ok {
			outcome = string(res.Source)
		}
		r.metrics.RecordResolveOutcome(ctx, outcome)
	}
	return res, ok
}

func (r *Resolver) resolve(ctx context.Context, textKey, hint string, hintHash uint32) (Resolution, bool) {
	cands := names.Build(textKey, hint)

	// The inventory widens the net for short conversational keys. Long-form
	// IDs (underscored, several digit groups) are precise already; fuzzy
	// neighbors of those are usually wrong lines that happen to share a
	// quest prefix.
	if r.inventory != nil && !longFormID(textKey) {
		seed := hint
		if seed == "" && len(cands) > 0 {
			seed = cands[0]
		}
		for _, n := range r.inventory.FindCandidates(textKey, seed, 8) {
			cands = append(cands, n)
		}
		cands = dedup(cands)
	}
	if len(cands) == 0 {
		if hintHash != 0 {
			return Resolution{Hash: hintHash, EventName: hint, Source: SourceUnknown}, true
		}
		return Resolution{}, false
	}

	// Stable sort: preferred gender first, unmarked names next, the other
	// gender last. Within a class, generation order is retrieval order.
	sort.SliceStable(cands, func(i, j int) bool {
		return r.genderPriority(cands[i]) < r.genderPriority(cands[j])
	})

	for _, name := range cands {
		if err := ctx.Err(); err != nil {
			return Resolution{}, false
		}
		h := wwise.Hash(name)
		if r.cache != nil {
			if path, ok := r.cache.Find(h); ok {
				return Resolution{Hash: h, EventName: name, Source: SourceCache, Path: path}, true
			}
		}
		if r.wemRoot != "" {
			if path, ok := findWemByHash(r.wemRoot, h); ok {
				return Resolution{Hash: h, EventName: name, Source: SourceWem, Path: path}, true
			}
		}
		if r.bnkRoot != "" {
			if path, ok := bnk.FindForEvent(r.bnkRoot, name); ok {
				return Resolution{Hash: h, EventName: name, Source: SourceBnk, Path: path}, true
			}
		}
	}

	// Loose media named by event stem rather than hash.
	if r.wemRoot != "" {
		if path, ok := findWemByStem(r.wemRoot, cands[0]); ok {
			return Resolution{Hash: wwise.Hash(cands[0]), EventName: cands[0], Source: SourceWem, Path: path}, true
		}
	}

	// Banks whose filename gives nothing away can still embed the media.
	// Opening every bank is expensive, so only the top candidate's hash gets
	// this probe.
	if r.bnkRoot != "" {
		h := wwise.Hash(cands[0])
		if path, ok := findBnkByMediaID(r.bnkRoot, h); ok {
			return Resolution{Hash: h, EventName: cands[0], Source: SourceBnk, Path: path}, true
		}
	}

	// Nothing local: a recorded hash outranks a hash guessed from a
	// generated name.
	if hintHash != 0 {
		name := hint
		if name == "" {
			name = cands[0]
		}
		return Resolution{Hash: hintHash, EventName: name, Source: SourceUnknown}, true
	}
	best := cands[0]
	slog.Debug("resolver: no local resource, returning blind guess", "event", best)
	return Resolution{Hash: wwise.Hash(best), EventName: best, Source: SourceUnknown}, true
}

// genderPriority ranks a candidate name against the configured preference:
// 0 preferred, 1 unmarked, 2 the other gender.
func (r *Resolver) genderPriority(name string) int {
	target, other := femaleMarks, maleMarks
	targetSuffix, otherSuffix := "_f", "_m"
	if r.gender == GenderMale {
		target, other = maleMarks, femaleMarks
		targetSuffix, otherSuffix = "_m", "_f"
	}
	lower := strings.ToLower(name)
	for _, w := range target {
		if strings.Contains(lower, w) {
			return 0
		}
	}
	if strings.HasSuffix(lower, targetSuffix) {
		return 0
	}
	for _, w := range other {
		if strings.Contains(lower, w) {
			return 2
		}
	}
	if strings.HasSuffix(lower, otherSuffix) {
		return 2
	}
	return 1
}

// longFormID reports whether a key looks like a precise line identifier:
// underscore-separated with three or more digit groups.
func longFormID(key string) bool {
	if !strings.Contains(key, "_") {
		return false
	}
	digitGroups := 0
	inDigits := false
	for _, r := range key {
		if r >= '0' && r <= '9' {
			if !inDigits {
				digitGroups++
				inDigits = true
			}
			continue
		}
		inDigits = false
	}
	return digitGroups >= 3
}

// findWemByHash looks for <hash>.wem directly under root, then anywhere in
// the tree.
func findWemByHash(root string, hash uint32) (string, bool) {
	name := strconv.FormatUint(uint64(hash), 10) + ".wem"
	direct := filepath.Join(root, name)
	if info, err := os.Stat(direct); err == nil && !info.IsDir() {
		return direct, true
	}
	var found string
	filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || found != "" {
			return nil
		}
		if filepath.Base(path) == name {
			found = path
			return filepath.SkipAll
		}
		return nil
	})
	return found, found != ""
}

// findWemByStem looks for media whose stem contains the event's core token.
// Shorter paths win: they are more likely direct sources than deep variants.
func findWemByStem(root, eventName string) (string, bool) {
	token := strings.ToLower(strings.TrimSpace(eventName))
	if token == "" {
		return "", false
	}
	for _, p := range []string{"play_vo_", "p_vo_", "play_", "vo_"} {
		if strings.HasPrefix(token, p) {
			token = token[len(p):]
			break
		}
	}
	if token == "" {
		return "", false
	}

	var matches []string
	filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if !strings.EqualFold(filepath.Ext(path), ".wem") {
			return nil
		}
		stem := strings.ToLower(strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)))
		if strings.Contains(stem, token) {
			matches = append(matches, path)
		}
		return nil
	})
	if len(matches) == 0 {
		return "", false
	}
	sort.Slice(matches, func(i, j int) bool { return len(matches[i]) < len(matches[j]) })
	return matches[0], true
}

// findBnkByMediaID opens each bank under root and checks its media directory
// for the hash. First hit wins; unreadable banks are skipped.
func findBnkByMediaID(root string, hash uint32) (string, bool) {
	var found string
	filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || !strings.EqualFold(filepath.Ext(path), ".bnk") {
			return nil
		}
		b, err := bnk.Open(path)
		if err != nil {
			return nil
		}
		ok := b.ContainsMedia(hash)
		b.Close()
		if ok {
			found = path
			return filepath.SkipAll
		}
		return nil
	})
	return found, found != ""
}

func dedup(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := in[:0]
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
