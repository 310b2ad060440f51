package resolver

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/Herselfta/ludiglot/internal/audio/bnk"
	"github.com/Herselfta/ludiglot/internal/audio/cacheindex"
	"github.com/Herselfta/ludiglot/internal/observe"
)

// MaterializerOption configures a [Materializer].
type MaterializerOption func(*Materializer)

// WithConcurrency caps parallel decode-tool invocations. Default: 2.
func WithConcurrency(n int) MaterializerOption {
	return func(m *Materializer) { m.concurrency = n }
}

// WithMaterializeMetrics installs the instruments recorded per decode.
func WithMaterializeMetrics(met *observe.Metrics) MaterializerOption {
	return func(m *Materializer) { m.metrics = met }
}

// Materializer decodes resolved media into playable cached artifacts by
// shelling out to an external decode tool (vgmstream-compatible: takes the
// source file and an -o output path). Concurrent requests for the same hash
// share one decode.
type Materializer struct {
	tool        string
	outDir      string
	cache       *cacheindex.Index
	concurrency int
	metrics     *observe.Metrics

	sf singleflight.Group
}

// NewMaterializer creates a materializer writing artifacts into outDir and
// registering them with cache. cache may be nil.
func NewMaterializer(tool, outDir string, cache *cacheindex.Index, opts ...MaterializerOption) *Materializer {
	m := &Materializer{
		tool:        tool,
		outDir:      outDir,
		cache:       cache,
		concurrency: 2,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Materialize produces the playable artifact for a resolution and returns its
// path. Cache hits return immediately; SourceUnknown resolutions cannot be
// materialized.
func (m *Materializer) Materialize(ctx context.Context, res Resolution) (string, error) {
	if res.Source == SourceCache {
		return res.Path, nil
	}
	if res.Source == SourceUnknown || res.Path == "" {
		return "", fmt.Errorf("materialize: no local source for event %q", res.EventName)
	}

	key := strconv.FormatUint(uint64(res.Hash), 10)
	out, err, _ := m.sf.Do(key, func() (any, error) {
		if m.cache != nil {
			if path, ok := m.cache.Find(res.Hash); ok {
				return path, nil
			}
		}
		switch res.Source {
		case SourceWem:
			return m.decode(ctx, res.Path, res.Hash)
		case SourceBnk:
			return m.decodeFromBank(ctx, res.Path, res.Hash)
		default:
			return "", fmt.Errorf("materialize: unsupported source %q", res.Source)
		}
	})
	if err != nil {
		return "", err
	}
	return out.(string), nil
}

// MaterializeAll decodes a batch with bounded parallelism, stopping on the
// first failure.
func (m *Materializer) MaterializeAll(ctx context.Context, batch []Resolution) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(m.concurrency)
	for _, res := range batch {
		g.Go(func() error {
			_, err := m.Materialize(ctx, res)
			return err
		})
	}
	return g.Wait()
}

// decode runs the external tool on one media file and registers the artifact.
func (m *Materializer) decode(ctx context.Context, srcPath string, hash uint32) (string, error) {
	if err := os.MkdirAll(m.outDir, 0o755); err != nil {
		return "", fmt.Errorf("materialize: create output dir: %w", err)
	}
	out := filepath.Join(m.outDir, strconv.FormatUint(uint64(hash), 10)+".wav")

	start := time.Now()
	cmd := exec.CommandContext(ctx, m.tool, "-o", out, srcPath)
	raw, err := cmd.CombinedOutput()
	elapsed := time.Since(start)
	if m.metrics != nil {
		m.metrics.MaterializeDuration.Record(ctx, elapsed.Seconds())
	}
	if err != nil {
		return "", fmt.Errorf("materialize: decode %s: %w (%s)", srcPath, err, firstLine(raw))
	}
	slog.Debug("materialize: decoded", "src", srcPath, "out", out, "elapsed", elapsed)

	if m.cache != nil {
		if err := m.cache.AddFile(out); err != nil {
			slog.Warn("materialize: cache registration failed", "path", out, "error", err)
		}
	}
	return out, nil
}

// decodeFromBank extracts the embedded media payload to a scratch file first,
// then decodes it like loose media.
func (m *Materializer) decodeFromBank(ctx context.Context, bankPath string, hash uint32) (string, error) {
	b, err := bnk.Open(bankPath)
	if err != nil {
		return "", err
	}
	defer b.Close()

	payload, err := b.MediaData(hash)
	if err != nil {
		return "", fmt.Errorf("materialize: extract %d from %s: %w", hash, bankPath, err)
	}

	scratch, err := os.CreateTemp("", "ludiglot-*.wem")
	if err != nil {
		return "", fmt.Errorf("materialize: scratch file: %w", err)
	}
	defer os.Remove(scratch.Name())
	if _, err := scratch.Write(payload); err != nil {
		scratch.Close()
		return "", fmt.Errorf("materialize: write scratch: %w", err)
	}
	if err := scratch.Close(); err != nil {
		return "", fmt.Errorf("materialize: close scratch: %w", err)
	}
	return m.decode(ctx, scratch.Name(), hash)
}

func firstLine(raw []byte) string {
	for i, b := range raw {
		if b == '\n' {
			return string(raw[:i])
		}
	}
	return string(raw)
}
