// Command ludiglot is the main entry point for the ludiglot retrieval
// service. It reads capture batches from stdin — one recognized line per
// input line as "text<TAB>confidence", a blank line closing each batch —
// matches them against the loaded corpus, resolves the winning entry to a
// local audio resource, and emits one JSON result per batch on stdout.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Herselfta/ludiglot/internal/audio/cacheindex"
	"github.com/Herselfta/ludiglot/internal/audio/inventory"
	"github.com/Herselfta/ludiglot/internal/audio/resolver"
	"github.com/Herselfta/ludiglot/internal/config"
	"github.com/Herselfta/ludiglot/internal/corpus"
	"github.com/Herselfta/ludiglot/internal/health"
	"github.com/Herselfta/ludiglot/internal/match"
	"github.com/Herselfta/ludiglot/internal/observe"
	"github.com/Herselfta/ludiglot/internal/search"
)

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	rebuildInventory := flag.Bool("rebuild-inventory", false, "discard the inventory snapshot and rescan the resource trees")
	flag.Parse()

	// A local .env file supplies LUDIGLOT_* overrides; absence is fine.
	_ = godotenv.Load()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "ludiglot: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "ludiglot: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	// The handler reads its level through a LevelVar so a config reload can
	// change verbosity without swapping the logger.
	logLevel := new(slog.LevelVar)
	logLevel.Set(slogLevel(cfg.Server.LogLevel))
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))

	slog.Info("ludiglot starting",
		"config", *configPath,
		"log_level", cfg.Server.LogLevel,
		"metrics_addr", cfg.Server.MetricsAddr,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := otelShutdown(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()
	metrics := observe.DefaultMetrics()

	// ── Corpus ────────────────────────────────────────────────────────────────
	c, err := loadCorpus(ctx, cfg)
	if err != nil {
		slog.Error("failed to load corpus", "err", err)
		return 1
	}

	// ── Metrics and health endpoints ──────────────────────────────────────────
	var metricsSrv *http.Server
	if cfg.Server.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		checkers := []health.Checker{health.CorpusCheck(c)}
		if cfg.Audio.WemRoot != "" {
			checkers = append(checkers, health.DirCheck("wem_root", cfg.Audio.WemRoot))
		}
		if cfg.Audio.BnkRoot != "" {
			checkers = append(checkers, health.DirCheck("bnk_root", cfg.Audio.BnkRoot))
		}
		health.New(checkers...).Register(mux)
		metricsSrv = &http.Server{Addr: cfg.Server.MetricsAddr, Handler: mux}
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("metrics server error", "err", err)
			}
		}()
		slog.Info("metrics endpoint listening", "addr", cfg.Server.MetricsAddr)
	}

	engine := search.NewEngine(c.Keys(), searchOptions(cfg.Search)...)

	// ── Audio resources ───────────────────────────────────────────────────────
	var inv *inventory.Index
	if cfg.Audio.WemRoot != "" || cfg.Audio.BnkRoot != "" {
		var invOpts []inventory.Option
		if cfg.Audio.InventorySnapshot != "" {
			invOpts = append(invOpts, inventory.WithCachePath(cfg.Audio.InventorySnapshot))
		}
		invOpts = append(invOpts, inventory.WithMetrics(metrics))
		inv = inventory.New(cfg.Audio.BnkRoot, cfg.Audio.WemRoot, invOpts...)

		build := inv.LoadOrBuild
		if *rebuildInventory {
			build = inv.Rebuild
		}
		if err := build(); err != nil {
			slog.Error("failed to build resource inventory", "err", err)
			return 1
		}
		slog.Info("resource inventory ready", "names", inv.Len())
	}

	var cache *cacheindex.Index
	if cfg.Audio.CacheDir != "" {
		cacheOpts := []cacheindex.Option{cacheindex.WithMetrics(metrics)}
		if cfg.Audio.CacheMaxMB != 0 {
			cacheOpts = append(cacheOpts, cacheindex.WithMaxMB(cfg.Audio.CacheMaxMB))
		}
		cache = cacheindex.New(cfg.Audio.CacheDir, cacheOpts...)
		if err := cache.Load(); err != nil {
			slog.Error("failed to load artifact cache", "err", err)
			return 1
		}
		if err := cache.Scan(); err != nil {
			slog.Warn("artifact cache scan failed; continuing with manifest only", "err", err)
		}
		slog.Info("artifact cache ready", "artifacts", cache.Len(), "bytes", cache.TotalSize())
	}

	// ── Pipeline ──────────────────────────────────────────────────────────────
	// The matcher and resolver are cheap, read-only views over the loaded
	// indexes, so a config reload rebuilds them and swaps the pointer while
	// the corpus, engine, inventory, and cache carry over untouched.
	var pipe atomic.Pointer[pipeline]
	pipe.Store(newPipeline(cfg, c, engine, inv, cache, metrics))

	watcher, err := config.NewWatcher(*configPath, func(old, newCfg *config.Config) {
		d := config.Diff(old, newCfg)
		if !d.Changed() {
			return
		}
		if d.LogLevelChanged {
			logLevel.Set(slogLevel(d.NewLogLevel))
			slog.Info("log level changed", "level", d.NewLogLevel)
		}
		if d.GenderPreferenceChanged || d.AcceptanceFloorChanged || d.AliasesChanged {
			pipe.Store(newPipeline(newCfg, c, engine, inv, cache, metrics))
			slog.Info("match pipeline rebuilt from updated config")
		}
	})
	if err != nil {
		slog.Warn("config watcher unavailable; edits require a restart", "err", err)
	} else {
		defer watcher.Stop()
	}

	// ── Startup summary ───────────────────────────────────────────────────────
	printStartupSummary(cfg, c, inv, cache)

	slog.Info("ready — reading capture batches from stdin, Ctrl+C to shut down")

	if err := serve(ctx, &pipe, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	slog.Info("shutting down…")

	// Fold the engine's memo-map totals into the counters once, at exit.
	stats := engine.CacheStats()
	metrics.SearchCacheHits.Add(context.Background(), stats.Hits)
	metrics.SearchCacheMisses.Add(context.Background(), stats.Misses)

	if metricsSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
			slog.Warn("metrics server shutdown error", "err", err)
		}
	}
	slog.Info("goodbye")
	return 0
}

// ── Component wiring ──────────────────────────────────────────────────────────

// pipeline bundles the per-config stages. Swapped atomically on reload.
type pipeline struct {
	matcher      *match.Matcher
	resolver     *resolver.Resolver
	materializer *resolver.Materializer
}

func newPipeline(cfg *config.Config, c *corpus.Corpus, engine *search.Engine, inv *inventory.Index, cache *cacheindex.Index, metrics *observe.Metrics) *pipeline {
	matchOpts := []match.Option{match.WithMetrics(metrics)}
	if len(cfg.Match.Aliases) > 0 {
		matchOpts = append(matchOpts, match.WithAliases(cfg.Match.Aliases))
	}
	if cfg.Match.AcceptanceFloor > 0 {
		matchOpts = append(matchOpts, match.WithAcceptanceFloor(cfg.Match.AcceptanceFloor))
	}
	if inv != nil {
		matchOpts = append(matchOpts, match.WithAudioProber(inv))
	}

	resOpts := []resolver.Option{resolver.WithMetrics(metrics)}
	if cfg.Audio.GenderPreference != "" {
		resOpts = append(resOpts, resolver.WithGenderPreference(string(cfg.Audio.GenderPreference)))
	}
	if cache != nil {
		resOpts = append(resOpts, resolver.WithCacheIndex(cache))
	}
	if inv != nil {
		resOpts = append(resOpts, resolver.WithInventory(inv))
	}

	p := &pipeline{
		matcher:  match.New(c, engine, matchOpts...),
		resolver: resolver.New(cfg.Audio.WemRoot, cfg.Audio.BnkRoot, resOpts...),
	}
	if cfg.Audio.DecodeTool != "" && cfg.Audio.CacheDir != "" {
		var matOpts []resolver.MaterializerOption
		if cfg.Audio.MaterializeConcurrency > 0 {
			matOpts = append(matOpts, resolver.WithConcurrency(cfg.Audio.MaterializeConcurrency))
		}
		matOpts = append(matOpts, resolver.WithMaterializeMetrics(metrics))
		p.materializer = resolver.NewMaterializer(cfg.Audio.DecodeTool, cfg.Audio.CacheDir, cache, matOpts...)
	}
	return p
}

func loadCorpus(ctx context.Context, cfg *config.Config) (*corpus.Corpus, error) {
	if cfg.Corpus.File != "" {
		return corpus.LoadFile(cfg.Corpus.File)
	}
	pool, err := pgxpool.New(ctx, cfg.Corpus.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	defer pool.Close()
	src := corpus.NewPostgresSource(pool)
	if err := src.Migrate(ctx); err != nil {
		return nil, err
	}
	return src.Load(ctx)
}

func searchOptions(cfg config.SearchConfig) []search.Option {
	var opts []search.Option
	if cfg.BucketWidth > 0 {
		opts = append(opts, search.WithBucketWidth(cfg.BucketWidth))
	}
	if cfg.PrefixLength > 0 {
		opts = append(opts, search.WithPrefixLength(cfg.PrefixLength))
	}
	if cfg.MinSubstringLength > 0 {
		opts = append(opts, search.WithMinSubstringLength(cfg.MinSubstringLength))
	}
	if cfg.MemoCapacity > 0 {
		opts = append(opts, search.WithMemoCapacity(cfg.MemoCapacity))
	}
	if cfg.MaxFuzzyPool > 0 {
		opts = append(opts, search.WithMaxFuzzyPool(cfg.MaxFuzzyPool))
	}
	return opts
}

// ── Batch loop ────────────────────────────────────────────────────────────────

// serve reads capture batches from in until EOF or context cancellation and
// writes one JSON result per batch to out.
func serve(ctx context.Context, pipe *atomic.Pointer[pipeline], in io.Reader, out io.Writer) error {
	batches := make(chan []match.Line)
	errc := make(chan error, 1)
	go func() {
		errc <- readBatches(in, batches)
		close(batches)
	}()

	enc := json.NewEncoder(out)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case batch, ok := <-batches:
			if !ok {
				return <-errc
			}
			result := processBatch(ctx, pipe.Load(), batch)
			if err := enc.Encode(result); err != nil {
				return fmt.Errorf("encode result: %w", err)
			}
		}
	}
}

// readBatches splits the input stream into line batches. Each input line is
// "text<TAB>confidence"; a missing or malformed confidence defaults to 1. A
// blank line closes the current batch.
func readBatches(in io.Reader, batches chan<- []match.Line) error {
	sc := bufio.NewScanner(in)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var batch []match.Line
	flush := func() {
		if len(batch) > 0 {
			batches <- batch
			batch = nil
		}
	}
	for sc.Scan() {
		raw := sc.Text()
		if strings.TrimSpace(raw) == "" {
			flush()
			continue
		}
		line := match.Line{Text: raw, Confidence: 1}
		if text, conf, ok := strings.Cut(raw, "\t"); ok {
			line.Text = text
			if v, err := strconv.ParseFloat(strings.TrimSpace(conf), 64); err == nil {
				line.Confidence = v
			}
		}
		batch = append(batch, line)
	}
	flush()
	if err := sc.Err(); err != nil {
		return fmt.Errorf("read input: %w", err)
	}
	return nil
}

// ── Output shape ──────────────────────────────────────────────────────────────

type batchResult struct {
	Matched   bool    `json:"matched"`
	Key       string  `json:"key,omitempty"`
	EntryID   string  `json:"entry_id,omitempty"`
	Score     float64 `json:"score,omitempty"`
	Weighted  float64 `json:"weighted,omitempty"`
	Primary   string  `json:"primary,omitempty"`
	Secondary string  `json:"secondary,omitempty"`
	TitleHint string  `json:"title_hint,omitempty"`

	Items []itemResult `json:"items,omitempty"`
	Audio *audioResult `json:"audio,omitempty"`
}

type itemResult struct {
	EntryID   string  `json:"entry_id"`
	Score     float64 `json:"score"`
	Primary   string  `json:"primary"`
	Secondary string  `json:"secondary,omitempty"`
}

type audioResult struct {
	Event    string `json:"event"`
	Hash     uint32 `json:"hash"`
	Source   string `json:"source"`
	Path     string `json:"path,omitempty"`
	Artifact string `json:"artifact,omitempty"`
}

func processBatch(ctx context.Context, p *pipeline, batch []match.Line) batchResult {
	result := p.matcher.Match(batch)
	if result == nil {
		return batchResult{}
	}

	out := batchResult{
		Matched:   true,
		Key:       result.MatchedKey,
		Score:     result.Score,
		Weighted:  result.Weighted,
		TitleHint: result.TitleHint,
	}
	for _, item := range result.Items {
		out.Items = append(out.Items, itemResult{
			EntryID:   item.EntryID,
			Score:     item.Score,
			Primary:   item.RenderedPrimary,
			Secondary: item.RenderedSecondary,
		})
	}
	best, ok := result.Best()
	if !ok {
		return out
	}
	out.EntryID = best.EntryID
	out.Primary = best.SourcePrimary
	out.Secondary = best.SourceSecondary

	res, ok := p.resolver.Resolve(ctx, best.EntryID, best.HintName, best.HintHash)
	if !ok {
		return out
	}
	out.Audio = &audioResult{
		Event:  res.EventName,
		Hash:   res.Hash,
		Source: string(res.Source),
		Path:   res.Path,
	}
	if p.materializer != nil && res.Source != resolver.SourceUnknown {
		artifact, err := p.materializer.Materialize(ctx, res)
		if err != nil {
			slog.Warn("materialization failed", "event", res.EventName, "err", err)
		} else {
			out.Audio.Artifact = artifact
		}
	}
	return out
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config, c *corpus.Corpus, inv *inventory.Index, cache *cacheindex.Index) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║         ludiglot — startup summary    ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printRow("Corpus keys", strconv.Itoa(c.Len()))
	if inv != nil {
		printRow("Inventory", strconv.Itoa(inv.Len())+" names")
	} else {
		printRow("Inventory", "(disabled)")
	}
	if cache != nil {
		printRow("Cache", strconv.Itoa(cache.Len())+" artifacts")
	} else {
		printRow("Cache", "(disabled)")
	}
	if cfg.Audio.DecodeTool != "" {
		printRow("Decode tool", cfg.Audio.DecodeTool)
	} else {
		printRow("Decode tool", "(not configured)")
	}
	gender := cfg.Audio.GenderPreference
	if gender == "" {
		gender = config.GenderFemale
	}
	printRow("Voice pref", string(gender))
	if cfg.Server.MetricsAddr != "" {
		printRow("Metrics", cfg.Server.MetricsAddr)
	}
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printRow(label, value string) {
	if len([]rune(value)) > 19 {
		value = string([]rune(value)[:16]) + "…"
	}
	fmt.Printf("║  %-15s : %-19s ║\n", label, value)
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func slogLevel(level config.LogLevel) slog.Level {
	switch level {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
