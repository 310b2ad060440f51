// Package search implements the indexed lookup primitives over the corpus's
// normalized key set: exact membership, prefix and substring probes, and a
// length-bucketed fuzzy fallback, combined into a single smart-search cascade.
//
// The engine is built once per loaded corpus and is safe for concurrent
// queries; only the bounded memo maps mutate after construction and they are
// guarded internally.
package search

import (
	"log/slog"
	"math/rand"
	"sort"
	"strconv"
	"strings"
	"sync"
)

// Result is one scored key. A zero Result (empty key, score 0) means no match.
type Result struct {
	Key   string
	Score float64
}

// Stats reports memo-map effectiveness across the engine's lifetime.
type Stats struct {
	Hits   int64
	Misses int64
}

// Option configures an [Engine].
type Option func(*Engine)

// WithBucketWidth sets the length-bucket width. Default: 5.
func WithBucketWidth(w int) Option {
	return func(e *Engine) { e.bucketWidth = w }
}

// WithPrefixLength sets the number of leading bytes used by the prefix
// index. Default: 3.
func WithPrefixLength(n int) Option {
	return func(e *Engine) { e.prefixLen = n }
}

// WithMinSubstringLength sets the minimum query length for substring probes.
// True substring search over 10^5 keys is linear, so very short queries are
// excluded to bound cost. Default: 10.
func WithMinSubstringLength(n int) Option {
	return func(e *Engine) { e.minSubstringLen = n }
}

// WithMemoCapacity bounds the exact and fuzzy memo maps. Default: 1000.
func WithMemoCapacity(n int) Option {
	return func(e *Engine) { e.memoCap = n }
}

// WithMaxFuzzyPool caps the candidate pool handed to the fuzzy scorer;
// larger pools are prefix-narrowed and then randomly subsampled. Default: 5000.
func WithMaxFuzzyPool(n int) Option {
	return func(e *Engine) { e.maxPool = n }
}

// Engine indexes a fixed key set for the lookup cascade.
type Engine struct {
	bucketWidth     int
	prefixLen       int
	minSubstringLen int
	memoCap         int
	maxPool         int

	keys      []string
	keySet    map[string]struct{}
	lengthIdx *lengthBucketIndex
	prefixIdx *prefixIndex

	mu        sync.Mutex
	exactMemo *fifoMemo[bool]
	fuzzyMemo *fifoMemo[[]Result]
	hits      int64
	misses    int64
}

// NewEngine builds all indexes over keys. The slice is not copied; callers
// must not mutate it afterwards.
func NewEngine(keys []string, opts ...Option) *Engine {
	e := &Engine{
		bucketWidth:     5,
		prefixLen:       3,
		minSubstringLen: 10,
		memoCap:         1000,
		maxPool:         5000,
		keys:            keys,
	}
	for _, o := range opts {
		o(e)
	}

	e.keySet = make(map[string]struct{}, len(keys))
	for _, k := range keys {
		e.keySet[k] = struct{}{}
	}
	e.lengthIdx = newLengthBucketIndex(keys, e.bucketWidth)
	e.prefixIdx = newPrefixIndex(keys, e.prefixLen)
	e.exactMemo = newFIFOMemo[bool](e.memoCap)
	e.fuzzyMemo = newFIFOMemo[[]Result](e.memoCap)

	slog.Debug("search: indexes built", "keys", len(keys), "bucket_width", e.bucketWidth, "prefix_len", e.prefixLen)
	return e
}

// Exact reports whether query is a corpus key.
func (e *Engine) Exact(query string) bool {
	e.mu.Lock()
	if v, ok := e.exactMemo.get(query); ok {
		e.hits++
		e.mu.Unlock()
		return v
	}
	e.misses++
	e.mu.Unlock()

	_, ok := e.keySet[query]

	e.mu.Lock()
	e.exactMemo.put(query, ok)
	e.mu.Unlock()
	return ok
}

// Prefix returns up to max keys that query is a true prefix of, shortest
// first. Queries shorter than the prefix index width return nothing.
func (e *Engine) Prefix(query string, max int) []string {
	var out []string
	for _, k := range e.prefixIdx.byPrefix(query) {
		if strings.HasPrefix(k, query) {
			out = append(out, k)
		}
	}
	sort.Slice(out, func(i, j int) bool { return len(out[i]) < len(out[j]) })
	if len(out) > max {
		out = out[:max]
	}
	return out
}

// Containing returns keys that contain query as a substring. Applied only to
// keys at least as long as the substring threshold.
func (e *Engine) Containing(query string) []string {
	if len(query) < e.minSubstringLen {
		return nil
	}
	var out []string
	for _, k := range e.keys {
		if len(k) >= e.minSubstringLen && strings.Contains(k, query) {
			out = append(out, k)
		}
	}
	return out
}

// ContainedIn returns keys that are substrings of query, bounded below by the
// substring threshold and above by the query length.
func (e *Engine) ContainedIn(query string) []string {
	if len(query) < e.minSubstringLen {
		return nil
	}
	var out []string
	for _, k := range e.keys {
		if len(k) >= e.minSubstringLen && len(k) <= len(query) && strings.Contains(query, k) {
			out = append(out, k)
		}
	}
	return out
}

// Fuzzy scores query against a length-bucketed candidate pool and returns up
// to topK results at or above threshold, best first.
func (e *Engine) Fuzzy(query string, topK int, threshold float64) []Result {
	// topK and threshold shape the result set, so both belong in the memo
	// key: a topK=1 answer must not be replayed for a wider request.
	memoKey := query + "\x00" + strconv.Itoa(topK) + "\x00" + strconv.FormatFloat(threshold, 'f', -1, 64)
	e.mu.Lock()
	if r, ok := e.fuzzyMemo.get(memoKey); ok {
		e.hits++
		e.mu.Unlock()
		return r
	}
	e.misses++
	e.mu.Unlock()

	pool := e.fuzzyPool(query)
	if len(pool) == 0 {
		return nil
	}

	// Short keys punish single-character noise proportionally; long joined
	// lines tolerate word-order and coverage differences better under the
	// token-set scorer.
	scorer := Ratio
	if len(query) >= 40 {
		scorer = TokenSetRatio
	}

	results := make([]Result, 0, len(pool))
	for _, k := range pool {
		if s := scorer(query, k); s >= threshold {
			results = append(results, Result{Key: k, Score: s})
		}
	}
	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if len(results) > topK {
		results = results[:topK]
	}

	if len(results) > 0 {
		e.mu.Lock()
		e.fuzzyMemo.put(memoKey, results)
		e.mu.Unlock()
	}
	return results
}

// fuzzyPool assembles the candidate set for fuzzy scoring: length buckets
// with a tolerance that widens for longer queries, prefix-narrowed and
// subsampled when oversized, prefix-expanded when starved.
func (e *Engine) fuzzyPool(query string) []string {
	tolerance := 0.3
	switch {
	case len(query) >= 50:
		tolerance = 0.5
	case len(query) >= 20:
		tolerance = 0.4
	}
	pool := e.lengthIdx.candidatesByLength(len(query), tolerance)

	if len(pool) > e.maxPool && len(query) >= e.prefixLen {
		if narrowed := intersect(e.prefixIdx.byPrefix(query), pool); len(narrowed) > 0 {
			pool = narrowed
		}
	}
	if len(pool) > e.maxPool {
		sampled := make([]string, len(pool))
		copy(sampled, pool)
		rand.Shuffle(len(sampled), func(i, j int) { sampled[i], sampled[j] = sampled[j], sampled[i] })
		pool = sampled[:e.maxPool]
	}
	if len(pool) < 50 && len(query) >= e.prefixLen {
		pool = union(pool, e.prefixIdx.byPrefix(query))
	}
	return pool
}

// SmartSearch runs the full cascade: exact, prefix, substring containment in
// both directions, then fuzzy. A zero Result means nothing cleared the
// cascade's thresholds.
func (e *Engine) SmartSearch(query string) Result {
	if e.Exact(query) {
		return Result{Key: query, Score: 1.0}
	}

	if len(query) >= 10 {
		if hits := e.Prefix(query, 1); len(hits) > 0 {
			return Result{Key: hits[0], Score: 0.99}
		}

		// A key containing the whole query: partial-screen capture of a
		// longer entry. Score by how much of the key the query covers.
		if containing := e.Containing(query); len(containing) > 0 {
			best := shortest(containing)
			coverage := float64(len(query)) / float64(len(best))
			if coverage >= 0.6 {
				score := 0.90
				if coverage >= 0.85 {
					score = 0.95
				}
				return Result{Key: best, Score: score}
			}
		}

		// A key inside the query: the capture picked up surrounding chrome.
		// Only long captures qualify, and the key must cover enough of the
		// query that a short generic label inside a long sentence cannot
		// swallow it. Shortest contained key first, so an overlong
		// description entry does not absorb the capture either.
		if len(query) >= 50 {
			if contained := e.ContainedIn(query); len(contained) > 0 {
				best := shortest(contained)
				qLen, bLen := float64(len(query)), float64(len(best))
				if bLen > qLen*0.7 || (len(best) >= 20 && bLen > qLen*0.4) {
					return Result{Key: best, Score: 0.98}
				}
			}
		}
	}

	if results := e.Fuzzy(query, 1, 0.5); len(results) > 0 {
		return results[0]
	}
	return Result{}
}

// CacheStats returns memo hit/miss totals.
func (e *Engine) CacheStats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Stats{Hits: e.hits, Misses: e.misses}
}

// ClearCache drops both memo maps, e.g. after a corpus reload.
func (e *Engine) ClearCache() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.exactMemo = newFIFOMemo[bool](e.memoCap)
	e.fuzzyMemo = newFIFOMemo[[]Result](e.memoCap)
	e.hits, e.misses = 0, 0
}

func shortest(keys []string) string {
	best := keys[0]
	for _, k := range keys[1:] {
		if len(k) < len(best) {
			best = k
		}
	}
	return best
}

func intersect(a, b []string) []string {
	set := make(map[string]struct{}, len(b))
	for _, k := range b {
		set[k] = struct{}{}
	}
	var out []string
	for _, k := range a {
		if _, ok := set[k]; ok {
			out = append(out, k)
		}
	}
	return out
}

func union(a, b []string) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, s := range [][]string{a, b} {
		for _, k := range s {
			if _, ok := seen[k]; !ok {
				seen[k] = struct{}{}
				out = append(out, k)
			}
		}
	}
	return out
}

// fifoMemo is a size-bounded map with insertion-order eviction. Amortizes
// repeated queries across consecutive frames of the same on-screen content.
type fifoMemo[V any] struct {
	cap    int
	values map[string]V
	order  []string
}

func newFIFOMemo[V any](cap int) *fifoMemo[V] {
	return &fifoMemo[V]{cap: cap, values: make(map[string]V, cap)}
}

func (m *fifoMemo[V]) get(k string) (V, bool) {
	v, ok := m.values[k]
	return v, ok
}

func (m *fifoMemo[V]) put(k string, v V) {
	if _, exists := m.values[k]; !exists {
		if len(m.order) >= m.cap {
			// Evict the oldest half in one sweep.
			drop := m.order[:m.cap/2]
			for _, old := range drop {
				delete(m.values, old)
			}
			m.order = append([]string(nil), m.order[m.cap/2:]...)
		}
		m.order = append(m.order, k)
	}
	m.values[k] = v
}
