package resolver_test

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/Herselfta/ludiglot/internal/audio/resolver"
)

// fakeDecoder writes a shell script that mimics a vgmstream-style CLI:
// it copies the source file to the -o target.
func fakeDecoder(t *testing.T) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake decoder script requires a POSIX shell")
	}
	path := filepath.Join(t.TempDir(), "decode.sh")
	script := "#!/bin/sh\n# usage: decode.sh -o <out> <src>\ncp \"$3\" \"$2\"\n"
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestMaterialize_DecodesAndRegisters(t *testing.T) {
	t.Parallel()
	outDir := t.TempDir()
	cache := scannedCache(t, outDir)
	src := writeFile(t, t.TempDir(), "1115874808.wem")

	m := resolver.NewMaterializer(fakeDecoder(t), outDir, cache)
	got, err := m.Materialize(context.Background(), resolver.Resolution{
		Hash:      1115874808,
		EventName: "vo_evt_1",
		Source:    resolver.SourceWem,
		Path:      src,
	})
	if err != nil {
		t.Fatalf("Materialize: %v", err)
	}
	if got != filepath.Join(outDir, "1115874808.wav") {
		t.Errorf("artifact path = %q", got)
	}
	if _, err := os.Stat(got); err != nil {
		t.Errorf("artifact not written: %v", err)
	}
	if path, ok := cache.Find(1115874808); !ok || path != got {
		t.Errorf("cache.Find = %q, %v; want the fresh artifact", path, ok)
	}
}

func TestMaterialize_CacheShortCircuits(t *testing.T) {
	t.Parallel()
	outDir := t.TempDir()
	cached := writeFile(t, outDir, "774040909.wav")
	cache := scannedCache(t, outDir)

	// A broken tool path proves the decoder is never invoked on a hit.
	m := resolver.NewMaterializer("/nonexistent/decoder", outDir, cache)
	got, err := m.Materialize(context.Background(), resolver.Resolution{
		Hash:   774040909,
		Source: resolver.SourceWem,
		Path:   writeFile(t, t.TempDir(), "774040909.wem"),
	})
	if err != nil {
		t.Fatalf("Materialize: %v", err)
	}
	if got != cached {
		t.Errorf("got %q, want cached artifact %q", got, cached)
	}
}

func TestMaterialize_RefusesBlindGuess(t *testing.T) {
	t.Parallel()
	m := resolver.NewMaterializer("/nonexistent/decoder", t.TempDir(), nil)
	if _, err := m.Materialize(context.Background(), resolver.Resolution{
		Hash:      42,
		EventName: "vo_missing",
		Source:    resolver.SourceUnknown,
	}); err == nil {
		t.Error("Materialize accepted a SourceUnknown resolution")
	}
}

func TestMaterializeAll_StopsOnFailure(t *testing.T) {
	t.Parallel()
	outDir := t.TempDir()
	m := resolver.NewMaterializer("/nonexistent/decoder", outDir, nil)

	batch := []resolver.Resolution{
		{Hash: 1, Source: resolver.SourceWem, Path: writeFile(t, t.TempDir(), "1.wem")},
		{Hash: 2, Source: resolver.SourceWem, Path: writeFile(t, t.TempDir(), "2.wem")},
	}
	if err := m.MaterializeAll(context.Background(), batch); err == nil {
		t.Error("MaterializeAll must surface decode failures")
	}
}
