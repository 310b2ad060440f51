package cacheindex_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Herselfta/ludiglot/internal/audio/cacheindex"
)

func writeArtifact(t *testing.T, dir, name string, size int, mtime time.Time) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, make([]byte, size), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Chtimes(path, mtime, mtime); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestScanAndFind(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	now := time.Now()

	want := writeArtifact(t, dir, "1115874808.ogg", 64, now)
	writeArtifact(t, dir, "notahash.ogg", 64, now)   // non-numeric stem ignored
	writeArtifact(t, dir, "774040909.txt", 64, now)  // unknown extension ignored

	ix := cacheindex.New(dir)
	if err := ix.Scan(); err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if ix.Len() != 1 {
		t.Fatalf("Len = %d, want 1", ix.Len())
	}
	got, ok := ix.Find(1115874808)
	if !ok || got != want {
		t.Errorf("Find(1115874808) = %q, %v; want %q, true", got, ok, want)
	}
	if _, ok := ix.Find(774040909); ok {
		t.Error("Find returned a hit for an unindexed hash")
	}
}

func TestFindVerifiesFileStillExists(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := writeArtifact(t, dir, "2170045372.wem", 32, time.Now())

	ix := cacheindex.New(dir)
	if err := ix.Scan(); err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if _, ok := ix.Find(2170045372); !ok {
		t.Fatal("Find missed a scanned artifact")
	}
	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}
	if _, ok := ix.Find(2170045372); ok {
		t.Error("Find returned a path whose file was deleted")
	}
}

func TestEvictionDropsOldestFirst(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	base := time.Now().Add(-time.Hour)

	oldest := writeArtifact(t, dir, "100.ogg", 1024, base)
	middle := writeArtifact(t, dir, "200.ogg", 1024, base.Add(10*time.Minute))
	newest := writeArtifact(t, dir, "300.ogg", 1024, base.Add(20*time.Minute))

	// Cap fits two artifacts; scan must evict exactly the oldest.
	ix2 := cacheindex.New(dir, cacheindex.WithMaxBytes(2048))
	if err := ix2.Scan(); err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if _, err := os.Stat(oldest); !os.IsNotExist(err) {
		t.Error("oldest artifact was not deleted")
	}
	for _, p := range []string{middle, newest} {
		if _, err := os.Stat(p); err != nil {
			t.Errorf("artifact %s should have survived eviction: %v", p, err)
		}
	}
	if ix2.TotalSize() > 2048 {
		t.Errorf("TotalSize = %d, want <= cap", ix2.TotalSize())
	}
}

func TestManifestRoundTrip(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	writeArtifact(t, dir, "3107296904.ogg", 16, time.Now())

	first := cacheindex.New(dir)
	if err := first.Scan(); err != nil {
		t.Fatalf("Scan: %v", err)
	}

	second := cacheindex.New(dir)
	if err := second.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if _, ok := second.Find(3107296904); !ok {
		t.Error("Load did not restore the scanned entry")
	}
}

func TestLoadCorruptManifestStartsEmpty(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "audio_index.json"), []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	ix := cacheindex.New(dir)
	if err := ix.Load(); err != nil {
		t.Fatalf("Load on corrupt manifest must not error, got %v", err)
	}
	if ix.Len() != 0 {
		t.Errorf("Len = %d, want 0 after corrupt manifest", ix.Len())
	}
}

func TestAddFileIndexesNewArtifact(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	ix := cacheindex.New(dir)
	if err := ix.Scan(); err != nil {
		t.Fatalf("Scan: %v", err)
	}

	path := writeArtifact(t, dir, "1439851426.ogg", 8, time.Now())
	if err := ix.AddFile(path); err != nil {
		t.Fatalf("AddFile: %v", err)
	}
	if got, ok := ix.Find(1439851426); !ok || got != path {
		t.Errorf("Find after AddFile = %q, %v", got, ok)
	}
	if err := ix.AddFile(filepath.Join(dir, "readme.txt")); err == nil {
		t.Error("AddFile accepted a non-artifact file")
	}
}
