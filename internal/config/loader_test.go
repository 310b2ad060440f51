package config_test

import (
	"strings"
	"testing"

	"github.com/Herselfta/ludiglot/internal/config"
)

func TestLoadFromReader_FullConfig(t *testing.T) {
	t.Parallel()
	yaml := `
server:
  log_level: debug
  metrics_addr: ":9090"
corpus:
  file: corpus.json
search:
  bucket_width: 5
  prefix_length: 3
match:
  acceptance_floor: 0.35
  aliases:
    def: maindef
audio:
  gender_preference: male
  wem_root: /data/media
  bnk_root: /data/banks
  cache_dir: /data/cache
  cache_max_mb: 1024
  decode_tool: /usr/local/bin/vgmstream-cli
`
	cfg, err := config.LoadFromReader(strings.NewReader(yaml))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.LogLevel != config.LogDebug {
		t.Errorf("LogLevel = %q", cfg.Server.LogLevel)
	}
	if cfg.Audio.GenderPreference != config.GenderMale {
		t.Errorf("GenderPreference = %q", cfg.Audio.GenderPreference)
	}
	if cfg.Match.Aliases["def"] != "maindef" {
		t.Errorf("Aliases = %v", cfg.Match.Aliases)
	}
}

func TestValidate_CorpusSourceRequired(t *testing.T) {
	t.Parallel()
	yaml := `
server:
  log_level: info
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for missing corpus source, got nil")
	}
	if !strings.Contains(err.Error(), "corpus") {
		t.Errorf("error should mention corpus, got: %v", err)
	}
}

func TestValidate_CorpusSourcesMutuallyExclusive(t *testing.T) {
	t.Parallel()
	yaml := `
corpus:
  file: corpus.json
  postgres_dsn: "postgres://localhost/ludiglot"
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for both corpus sources set, got nil")
	}
	if !strings.Contains(err.Error(), "mutually exclusive") {
		t.Errorf("error should mention mutual exclusion, got: %v", err)
	}
}

func TestValidate_MultipleErrors(t *testing.T) {
	t.Parallel()
	yaml := `
server:
  log_level: loud
match:
  acceptance_floor: 1.5
audio:
  gender_preference: both
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected errors, got nil")
	}
	errStr := err.Error()
	for _, want := range []string{"log_level", "acceptance_floor", "gender_preference", "corpus"} {
		if !strings.Contains(errStr, want) {
			t.Errorf("joined error should mention %s, got: %v", want, err)
		}
	}
}

func TestLoadFromReader_RejectsUnknownFields(t *testing.T) {
	t.Parallel()
	yaml := `
corpus:
  file: corpus.json
matcher:
  floor: 0.5
`
	if _, err := config.LoadFromReader(strings.NewReader(yaml)); err == nil {
		t.Fatal("expected error for unknown top-level field, got nil")
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv("LUDIGLOT_POSTGRES_DSN", "postgres://env/ludiglot")
	t.Setenv("LUDIGLOT_LOG_LEVEL", "warn")

	cfg := &config.Config{}
	cfg.Corpus.File = "corpus.json"
	config.ApplyEnvOverrides(cfg)

	if cfg.Corpus.PostgresDSN != "postgres://env/ludiglot" {
		t.Errorf("PostgresDSN = %q", cfg.Corpus.PostgresDSN)
	}
	if cfg.Server.LogLevel != config.LogWarn {
		t.Errorf("LogLevel = %q", cfg.Server.LogLevel)
	}
}
