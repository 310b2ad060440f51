package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"
)

// Load reads the YAML configuration file at path and returns a validated
// [Config]. Environment overrides (see [ApplyEnvOverrides]) are applied
// before validation, so secrets like the database DSN can stay out of the
// file.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg := &Config{}
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	ApplyEnvOverrides(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals. No
// environment overrides are applied.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg, err := decodeStrict(r)
	if err != nil {
		return nil, err
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// decodeStrict decodes YAML with unknown fields rejected, deferring
// validation to the caller so overrides can be applied first.
func decodeStrict(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	return cfg, nil
}

// ApplyEnvOverrides overlays select settings from the environment:
//
//	LUDIGLOT_POSTGRES_DSN  — corpus.postgres_dsn
//	LUDIGLOT_LOG_LEVEL     — server.log_level
//	LUDIGLOT_DECODE_TOOL   — audio.decode_tool
//
// Pair with godotenv in main() to source these from a local .env file.
func ApplyEnvOverrides(cfg *Config) {
	if v := os.Getenv("LUDIGLOT_POSTGRES_DSN"); v != "" {
		cfg.Corpus.PostgresDSN = v
	}
	if v := os.Getenv("LUDIGLOT_LOG_LEVEL"); v != "" {
		cfg.Server.LogLevel = LogLevel(v)
	}
	if v := os.Getenv("LUDIGLOT_DECODE_TOOL"); v != "" {
		cfg.Audio.DecodeTool = v
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	// Corpus source
	if cfg.Corpus.File == "" && cfg.Corpus.PostgresDSN == "" {
		errs = append(errs, errors.New("corpus: either corpus.file or corpus.postgres_dsn is required"))
	}
	if cfg.Corpus.File != "" && cfg.Corpus.PostgresDSN != "" {
		errs = append(errs, errors.New("corpus: corpus.file and corpus.postgres_dsn are mutually exclusive"))
	}

	// Search tuning: zero means default, anything else must be positive.
	for _, f := range []struct {
		name  string
		value int
	}{
		{"search.bucket_width", cfg.Search.BucketWidth},
		{"search.prefix_length", cfg.Search.PrefixLength},
		{"search.min_substring_length", cfg.Search.MinSubstringLength},
		{"search.memo_capacity", cfg.Search.MemoCapacity},
		{"search.max_fuzzy_pool", cfg.Search.MaxFuzzyPool},
	} {
		if f.value < 0 {
			errs = append(errs, fmt.Errorf("%s %d must not be negative", f.name, f.value))
		}
	}

	if floor := cfg.Match.AcceptanceFloor; floor < 0 || floor > 1 {
		errs = append(errs, fmt.Errorf("match.acceptance_floor %.2f is out of range [0, 1]", floor))
	}

	if g := cfg.Audio.GenderPreference; g != "" && !g.IsValid() {
		errs = append(errs, fmt.Errorf("audio.gender_preference %q is invalid; valid values: female, male", g))
	}
	if cfg.Audio.MaterializeConcurrency < 0 {
		errs = append(errs, fmt.Errorf("audio.materialize_concurrency %d must not be negative", cfg.Audio.MaterializeConcurrency))
	}
	if cfg.Audio.DecodeTool != "" && cfg.Audio.CacheDir == "" {
		slog.Warn("audio.decode_tool is set but audio.cache_dir is empty; materialized artifacts will not be cached")
	}
	if cfg.Audio.WemRoot == "" && cfg.Audio.BnkRoot == "" && cfg.Audio.CacheDir == "" {
		slog.Warn("no audio roots configured; audio resolution will only produce blind hash guesses")
	}

	return errors.Join(errs...)
}
