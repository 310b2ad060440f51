// Package cacheindex maintains the on-disk cache of materialized audio
// artifacts. Files are content-addressed: each artifact is stored under its
// decimal event hash plus a playable extension, and a JSON manifest lets the
// index come back without rescanning on every start.
package cacheindex

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/Herselfta/ludiglot/internal/observe"
)

// Entry records one cached artifact.
type Entry struct {
	Hash  uint32 `json:"hash"`
	Path  string `json:"path"`
	Size  int64  `json:"size"`
	MTime int64  `json:"mtime"`
}

type manifest struct {
	GeneratedAt int64   `json:"generated_at"`
	Entries     []Entry `json:"entries"`
}

// Option configures an [Index].
type Option func(*Index)

// WithManifestPath overrides the manifest location. Default:
// <dir>/audio_index.json.
func WithManifestPath(path string) Option {
	return func(ix *Index) { ix.manifestPath = path }
}

// WithMaxMB sets the cache size cap in mebibytes. Zero or negative disables
// eviction. Default: 2048.
func WithMaxMB(mb int) Option {
	return func(ix *Index) { ix.maxBytes = int64(mb) * 1024 * 1024 }
}

// WithMaxBytes sets the cache size cap in bytes.
func WithMaxBytes(n int64) Option {
	return func(ix *Index) { ix.maxBytes = n }
}

// WithExtensions replaces the set of file extensions treated as artifacts.
func WithExtensions(exts ...string) Option {
	return func(ix *Index) {
		ix.exts = make(map[string]struct{}, len(exts))
		for _, e := range exts {
			ix.exts[strings.ToLower(e)] = struct{}{}
		}
	}
}

// WithMetrics installs the instruments used to count evictions.
func WithMetrics(met *observe.Metrics) Option {
	return func(ix *Index) { ix.metrics = met }
}

// Index is the hash-to-artifact cache index. Safe for concurrent use.
type Index struct {
	dir          string
	manifestPath string
	maxBytes     int64
	exts         map[string]struct{}
	metrics      *observe.Metrics

	mu      sync.RWMutex
	entries map[uint32]Entry
}

// New creates an index over dir. Call [Index.Load] and [Index.Scan] before
// first use.
func New(dir string, opts ...Option) *Index {
	ix := &Index{
		dir:          dir,
		manifestPath: filepath.Join(dir, "audio_index.json"),
		maxBytes:     2048 * 1024 * 1024,
		exts: map[string]struct{}{
			".ogg": {}, ".wem": {}, ".wav": {}, ".mp3": {}, ".flac": {},
		},
		entries: make(map[uint32]Entry),
	}
	for _, o := range opts {
		o(ix)
	}
	return ix
}

// Load reads the manifest, dropping entries whose files no longer exist. A
// missing or corrupt manifest leaves the index empty without error: the next
// [Index.Scan] rebuilds it from disk.
func (ix *Index) Load() error {
	raw, err := os.ReadFile(ix.manifestPath)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("cacheindex: read manifest: %w", err)
	}
	var m manifest
	if err := json.Unmarshal(raw, &m); err != nil {
		slog.Warn("cacheindex: corrupt manifest, starting empty", "path", ix.manifestPath, "error", err)
		return nil
	}

	entries := make(map[uint32]Entry, len(m.Entries))
	for _, e := range m.Entries {
		info, err := os.Stat(e.Path)
		if err != nil || info.IsDir() {
			continue
		}
		if e.Size == 0 {
			e.Size = info.Size()
		}
		if e.MTime == 0 {
			e.MTime = info.ModTime().Unix()
		}
		entries[e.Hash] = e
	}

	ix.mu.Lock()
	ix.entries = entries
	ix.mu.Unlock()
	return nil
}

// Scan rebuilds the index by walking the cache directory, enforces the size
// cap, and rewrites the manifest.
func (ix *Index) Scan() error {
	if err := os.MkdirAll(ix.dir, 0o755); err != nil {
		return fmt.Errorf("cacheindex: create cache dir: %w", err)
	}

	entries := make(map[uint32]Entry)
	err := filepath.WalkDir(ix.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		e, ok := ix.entryFor(path)
		if !ok {
			return nil
		}
		entries[e.Hash] = e
		return nil
	})
	if err != nil {
		return fmt.Errorf("cacheindex: scan %s: %w", ix.dir, err)
	}

	ix.mu.Lock()
	ix.entries = entries
	ix.evictLocked()
	ix.mu.Unlock()
	return ix.Save()
}

// entryFor parses one cache file path into an Entry. Files with a non-numeric
// stem or an unknown extension are not artifacts.
func (ix *Index) entryFor(path string) (Entry, bool) {
	ext := strings.ToLower(filepath.Ext(path))
	if _, ok := ix.exts[ext]; !ok {
		return Entry{}, false
	}
	stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	hash, err := strconv.ParseUint(stem, 10, 32)
	if err != nil {
		return Entry{}, false
	}
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return Entry{}, false
	}
	return Entry{
		Hash:  uint32(hash),
		Path:  path,
		Size:  info.Size(),
		MTime: info.ModTime().Unix(),
	}, true
}

// Save writes the manifest.
func (ix *Index) Save() error {
	ix.mu.RLock()
	m := manifest{
		GeneratedAt: time.Now().Unix(),
		Entries:     make([]Entry, 0, len(ix.entries)),
	}
	for _, e := range ix.entries {
		m.Entries = append(m.Entries, e)
	}
	ix.mu.RUnlock()
	sort.Slice(m.Entries, func(i, j int) bool { return m.Entries[i].Hash < m.Entries[j].Hash })

	raw, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("cacheindex: encode manifest: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(ix.manifestPath), 0o755); err != nil {
		return fmt.Errorf("cacheindex: create manifest dir: %w", err)
	}
	if err := os.WriteFile(ix.manifestPath, raw, 0o644); err != nil {
		return fmt.Errorf("cacheindex: write manifest: %w", err)
	}
	return nil
}

// Find returns the artifact path for hash if the file still exists.
func (ix *Index) Find(hash uint32) (string, bool) {
	ix.mu.RLock()
	e, ok := ix.entries[hash]
	ix.mu.RUnlock()
	if !ok {
		return "", false
	}
	if _, err := os.Stat(e.Path); err != nil {
		return "", false
	}
	return e.Path, true
}

// AddFile registers a freshly materialized artifact, enforces the size cap,
// and persists the manifest.
func (ix *Index) AddFile(path string) error {
	e, ok := ix.entryFor(path)
	if !ok {
		return fmt.Errorf("cacheindex: %s is not a cache artifact", path)
	}
	ix.mu.Lock()
	ix.entries[e.Hash] = e
	ix.evictLocked()
	ix.mu.Unlock()
	return ix.Save()
}

// Len returns the number of indexed artifacts.
func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.entries)
}

// TotalSize returns the summed artifact size in bytes.
func (ix *Index) TotalSize() int64 {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.totalLocked()
}

func (ix *Index) totalLocked() int64 {
	var total int64
	for _, e := range ix.entries {
		total += e.Size
	}
	return total
}

// evictLocked deletes oldest artifacts until the total drops under the cap.
// Caller holds the write lock.
func (ix *Index) evictLocked() {
	if ix.maxBytes <= 0 {
		return
	}
	total := ix.totalLocked()
	if total <= ix.maxBytes {
		return
	}

	ordered := make([]Entry, 0, len(ix.entries))
	for _, e := range ix.entries {
		ordered = append(ordered, e)
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].MTime < ordered[j].MTime })

	evicted := 0
	for _, e := range ordered {
		if total <= ix.maxBytes {
			break
		}
		if err := os.Remove(e.Path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			slog.Warn("cacheindex: evict failed", "path", e.Path, "error", err)
		}
		total -= e.Size
		delete(ix.entries, e.Hash)
		evicted++
	}
	if evicted > 0 {
		slog.Info("cacheindex: evicted artifacts over size cap",
			"evicted", evicted, "remaining_bytes", total, "cap_bytes", ix.maxBytes)
		if ix.metrics != nil {
			ix.metrics.CacheEvictions.Add(context.Background(), int64(evicted))
		}
	}
}
