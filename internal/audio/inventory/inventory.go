// Package inventory indexes the voice-resource trees (banks and loose media)
// by name so resolution can fall back to fuzzy stem lookup when an entry's
// recorded hint is stale or missing. The index is a flat name list with an
// inverted token map; rebuilds produce a fresh snapshot and swap it in whole.
package inventory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/Herselfta/ludiglot/internal/observe"
	"github.com/Herselfta/ludiglot/internal/search"
)

// schemaVersion invalidates persisted snapshots when the index layout or the
// normalization rules change.
const schemaVersion = 2

// noiseTokens are prefix words so common across event names that they carry
// no selectivity.
var noiseTokens = map[string]struct{}{
	"play": {}, "vo": {}, "v": {}, "p": {}, "voice": {}, "audio": {}, "event": {},
}

var (
	camelSplitRE = regexp.MustCompile(`([a-z0-9])([A-Z])`)
	nonWordRE    = regexp.MustCompile(`[^a-zA-Z0-9_]+`)
	multiUnderRE = regexp.MustCompile(`_+`)
)

// Option configures an [Index].
type Option func(*Index)

// WithCachePath enables snapshot persistence at path.
func WithCachePath(path string) Option {
	return func(ix *Index) { ix.cachePath = path }
}

// WithExtraNames seeds the index with names not derivable from the resource
// trees, typically hint names collected from the corpus.
func WithExtraNames(names ...string) Option {
	return func(ix *Index) { ix.extraNames = append(ix.extraNames, names...) }
}

// WithMinScore sets the fuzzy acceptance threshold. Default: 0.65.
func WithMinScore(s float64) Option {
	return func(ix *Index) { ix.minScore = s }
}

// WithMetrics installs the instruments used to count rebuilds.
func WithMetrics(met *observe.Metrics) Option {
	return func(ix *Index) { ix.metrics = met }
}

// snapshot is one immutable generation of the index.
type snapshot struct {
	names      []string
	normalized []string
	compact    []string
	tokenIdx   map[string][]int
}

// cacheFile is the persisted snapshot format.
type cacheFile struct {
	Schema int      `json:"schema"`
	MTime  int64    `json:"mtime"`
	Names  []string `json:"names"`
}

// Index is the resource-name inventory. Safe for concurrent use; lookups see
// the last fully built snapshot.
type Index struct {
	bnkRoot    string
	wemRoot    string
	cachePath  string
	extraNames []string
	minScore   float64
	metrics    *observe.Metrics

	mu   sync.RWMutex
	snap *snapshot

	building singleflight.Group
}

// New creates an inventory over the two resource trees. Either root may be
// empty. Call [Index.LoadOrBuild] before lookups.
func New(bnkRoot, wemRoot string, opts ...Option) *Index {
	ix := &Index{
		bnkRoot:  bnkRoot,
		wemRoot:  wemRoot,
		minScore: 0.65,
	}
	for _, o := range opts {
		o(ix)
	}
	return ix
}

// LoadOrBuild installs a snapshot, reusing the persisted one when it is at
// least as new as every file under the resource trees. Concurrent callers
// share a single build.
func (ix *Index) LoadOrBuild() error {
	_, err, _ := ix.building.Do("build", func() (any, error) {
		latest := ix.latestMTime()

		if names, ok := ix.loadCache(latest); ok {
			ix.install(names)
			return nil, nil
		}

		names := ix.collectNames()
		ix.install(names)
		if ix.metrics != nil {
			ix.metrics.InventoryRebuilds.Add(context.Background(), 1)
		}
		if ix.cachePath != "" {
			if err := ix.saveCache(latest, names); err != nil {
				slog.Warn("inventory: snapshot save failed", "path", ix.cachePath, "error", err)
			}
		}
		slog.Info("inventory: rebuilt", "names", len(names))
		return nil, nil
	})
	return err
}

// Rebuild discards any persisted snapshot and reindexes the trees.
func (ix *Index) Rebuild() error {
	if ix.cachePath != "" {
		if err := os.Remove(ix.cachePath); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("inventory: drop snapshot: %w", err)
		}
	}
	return ix.LoadOrBuild()
}

// Len returns the number of indexed names.
func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	if ix.snap == nil {
		return 0
	}
	return len(ix.snap.names)
}

func (ix *Index) install(names []string) {
	snap := buildSnapshot(names)
	ix.mu.Lock()
	ix.snap = snap
	ix.mu.Unlock()
}

func (ix *Index) latestMTime() int64 {
	var latest int64
	for _, root := range []string{ix.bnkRoot, ix.wemRoot} {
		if root == "" {
			continue
		}
		filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil || d.IsDir() {
				return nil
			}
			info, err := d.Info()
			if err != nil {
				return nil
			}
			if m := info.ModTime().Unix(); m > latest {
				latest = m
			}
			return nil
		})
	}
	return latest
}

func (ix *Index) loadCache(latest int64) ([]string, bool) {
	if ix.cachePath == "" {
		return nil, false
	}
	raw, err := os.ReadFile(ix.cachePath)
	if err != nil {
		return nil, false
	}
	var c cacheFile
	if err := json.Unmarshal(raw, &c); err != nil {
		slog.Warn("inventory: corrupt snapshot, rebuilding", "path", ix.cachePath, "error", err)
		return nil, false
	}
	if c.Schema != schemaVersion || c.MTime < latest {
		return nil, false
	}
	return c.Names, true
}

func (ix *Index) saveCache(latest int64, names []string) error {
	raw, err := json.MarshalIndent(cacheFile{Schema: schemaVersion, MTime: latest, Names: names}, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(ix.cachePath), 0o755); err != nil {
		return err
	}
	return os.WriteFile(ix.cachePath, raw, 0o644)
}

// collectNames gathers file stems from both trees plus the extra names,
// deduplicated and sorted.
func (ix *Index) collectNames() []string {
	set := make(map[string]struct{})

	collect := func(root, ext string) {
		if root == "" {
			return
		}
		filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil || d.IsDir() {
				return nil
			}
			if !strings.EqualFold(filepath.Ext(path), ext) {
				return nil
			}
			stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
			if stem != "" {
				set[stem] = struct{}{}
			}
			return nil
		})
	}
	collect(ix.bnkRoot, ".bnk")
	collect(ix.wemRoot, ".wem")

	for _, n := range ix.extraNames {
		if n = strings.TrimSpace(n); n != "" {
			set[n] = struct{}{}
		}
	}

	names := make([]string, 0, len(set))
	for n := range set {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func buildSnapshot(names []string) *snapshot {
	s := &snapshot{
		names:      names,
		normalized: make([]string, len(names)),
		compact:    make([]string, len(names)),
		tokenIdx:   make(map[string][]int),
	}
	for i, name := range names {
		norm := normalizeName(name)
		s.normalized[i] = norm
		s.compact[i] = strings.ReplaceAll(norm, "_", "")
		for _, tok := range tokenize(norm) {
			s.tokenIdx[tok] = append(s.tokenIdx[tok], i)
		}
	}
	return s
}

// normalizeName flattens a resource name for comparison: path separators and
// dots fold to underscores, camel-case boundaries split, everything
// lowercases, and underscore runs collapse.
func normalizeName(name string) string {
	raw := strings.TrimSpace(name)
	if raw == "" {
		return ""
	}
	r := strings.NewReplacer("/", "_", "\\", "_", ".", "_")
	raw = r.Replace(raw)
	raw = camelSplitRE.ReplaceAllString(raw, "${1}_${2}")
	raw = nonWordRE.ReplaceAllString(raw, "_")
	raw = strings.ToLower(raw)
	raw = multiUnderRE.ReplaceAllString(raw, "_")
	return strings.Trim(raw, "_")
}

func tokenize(norm string) []string {
	var out []string
	for _, t := range strings.Split(norm, "_") {
		if t == "" {
			continue
		}
		if _, noisy := noiseTokens[t]; noisy {
			continue
		}
		out = append(out, t)
	}
	return out
}

// candidateIndices narrows the scan set through the token map: intersection
// of the seed's token buckets first, their union when the intersection is
// empty, the full name list when no token matched at all.
func (s *snapshot) candidateIndices(tokens []string) []int {
	if len(tokens) == 0 {
		return allIndices(len(s.names))
	}
	buckets := make([][]int, 0, len(tokens))
	for _, t := range tokens {
		if b, ok := s.tokenIdx[t]; ok {
			buckets = append(buckets, b)
		}
	}
	if len(buckets) == 0 {
		return allIndices(len(s.names))
	}

	counts := make(map[int]int)
	for _, b := range buckets {
		for _, idx := range b {
			counts[idx]++
		}
	}
	var inter, union []int
	for idx, n := range counts {
		union = append(union, idx)
		if n == len(buckets) {
			inter = append(inter, idx)
		}
	}
	if len(inter) > 0 {
		sort.Ints(inter)
		return inter
	}
	sort.Ints(union)
	return union
}

func allIndices(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}

// score compares a seed against one indexed name: exact normalized match,
// compact-form match, containment floor, or token-set similarity.
func score(seedNorm, seedComp, candNorm, candComp string) float64 {
	if seedNorm == candNorm {
		return 1.0
	}
	if seedComp != "" && seedComp == candComp {
		return 0.98
	}
	base := 0.0
	if strings.Contains(candNorm, seedNorm) || strings.Contains(seedNorm, candNorm) {
		base = 0.9
	}
	if r := search.TokenSetRatio(seedNorm, candNorm); r > base {
		return r
	}
	return base
}

// FindCandidates returns up to limit indexed names similar to either seed,
// best first. seedEvent is tried alongside textKey; both may be empty.
func (ix *Index) FindCandidates(textKey, seedEvent string, limit int) []string {
	ix.mu.RLock()
	snap := ix.snap
	ix.mu.RUnlock()
	if snap == nil || len(snap.names) == 0 || limit <= 0 {
		return nil
	}

	scored := make(map[int]float64)
	for _, seed := range []string{seedEvent, textKey} {
		seedNorm := normalizeName(seed)
		if seedNorm == "" {
			continue
		}
		seedComp := strings.ReplaceAll(seedNorm, "_", "")
		for _, idx := range snap.candidateIndices(tokenize(seedNorm)) {
			sc := score(seedNorm, seedComp, snap.normalized[idx], snap.compact[idx])
			if sc >= ix.minScore && sc > scored[idx] {
				scored[idx] = sc
			}
		}
	}
	if len(scored) == 0 {
		return nil
	}

	idxs := make([]int, 0, len(scored))
	for idx := range scored {
		idxs = append(idxs, idx)
	}
	sort.Slice(idxs, func(i, j int) bool {
		if scored[idxs[i]] != scored[idxs[j]] {
			return scored[idxs[i]] > scored[idxs[j]]
		}
		return idxs[i] < idxs[j]
	})
	if len(idxs) > limit {
		idxs = idxs[:limit]
	}
	out := make([]string, len(idxs))
	for i, idx := range idxs {
		out[i] = snap.names[idx]
	}
	return out
}

// HasAudio reports whether any indexed resource plausibly backs the entry.
// Satisfies the matcher's audio-probe interface.
func (ix *Index) HasAudio(entryID, hintName string) bool {
	return len(ix.FindCandidates(entryID, hintName, 1)) > 0
}
