package inventory_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/Herselfta/ludiglot/internal/audio/inventory"
)

func touch(t *testing.T, dir, name string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
}

func newTree(t *testing.T) (bnkRoot, wemRoot string) {
	t.Helper()
	bnkRoot, wemRoot = t.TempDir(), t.TempDir()
	touch(t, bnkRoot, "vo_dialog_1001_1.bnk")
	touch(t, bnkRoot, "play_vo_main_1_1_nosub_01.bnk")
	touch(t, bnkRoot, "VO_FavorWord_Jinhsi_001.bnk")
	touch(t, wemRoot, "1115874808.wem")
	touch(t, wemRoot, "bgm_title.wem")
	return bnkRoot, wemRoot
}

func TestLoadOrBuild_IndexesBothTrees(t *testing.T) {
	t.Parallel()
	bnkRoot, wemRoot := newTree(t)

	ix := inventory.New(bnkRoot, wemRoot, inventory.WithExtraNames("vo_extra_hint_099"))
	if err := ix.LoadOrBuild(); err != nil {
		t.Fatalf("LoadOrBuild: %v", err)
	}
	if ix.Len() != 6 {
		t.Errorf("Len = %d, want 6 (3 banks + 2 media + 1 extra)", ix.Len())
	}
}

func TestFindCandidates_ExactAndFuzzy(t *testing.T) {
	t.Parallel()
	bnkRoot, wemRoot := newTree(t)
	ix := inventory.New(bnkRoot, wemRoot)
	if err := ix.LoadOrBuild(); err != nil {
		t.Fatalf("LoadOrBuild: %v", err)
	}

	// Exact normalized match ranks first.
	got := ix.FindCandidates("vo_dialog_1001_1", "", 8)
	if len(got) == 0 || got[0] != "vo_dialog_1001_1" {
		t.Errorf("FindCandidates exact = %v, want vo_dialog_1001_1 first", got)
	}

	// Camel-cased bank names are found from flat lowercase keys.
	got = ix.FindCandidates("favorword_jinhsi_001", "", 8)
	if len(got) == 0 || got[0] != "VO_FavorWord_Jinhsi_001" {
		t.Errorf("FindCandidates camel = %v, want the FavorWord bank first", got)
	}

	// An unrelated key yields nothing above the threshold.
	if got := ix.FindCandidates("zzqj_xkwv_unrelated", "", 8); len(got) != 0 {
		t.Errorf("FindCandidates unrelated = %v, want none", got)
	}
}

func TestFindCandidates_SeedEventPreferred(t *testing.T) {
	t.Parallel()
	bnkRoot, wemRoot := newTree(t)
	ix := inventory.New(bnkRoot, wemRoot)
	if err := ix.LoadOrBuild(); err != nil {
		t.Fatalf("LoadOrBuild: %v", err)
	}

	got := ix.FindCandidates("", "play_vo_main_1_1_nosub_01", 4)
	if len(got) == 0 || got[0] != "play_vo_main_1_1_nosub_01" {
		t.Errorf("FindCandidates seed = %v", got)
	}
	if got := ix.FindCandidates("", "", 4); got != nil {
		t.Errorf("both seeds empty returned %v, want nil", got)
	}
}

func TestSnapshotCacheReusedAndInvalidated(t *testing.T) {
	t.Parallel()
	bnkRoot, wemRoot := newTree(t)
	cache := filepath.Join(t.TempDir(), "inventory.json")

	first := inventory.New(bnkRoot, wemRoot, inventory.WithCachePath(cache))
	if err := first.LoadOrBuild(); err != nil {
		t.Fatalf("LoadOrBuild: %v", err)
	}
	if _, err := os.Stat(cache); err != nil {
		t.Fatalf("snapshot not persisted: %v", err)
	}

	// A second index over the same trees reuses the snapshot.
	second := inventory.New(bnkRoot, wemRoot, inventory.WithCachePath(cache))
	if err := second.LoadOrBuild(); err != nil {
		t.Fatalf("LoadOrBuild from cache: %v", err)
	}
	if second.Len() != first.Len() {
		t.Errorf("cached Len = %d, want %d", second.Len(), first.Len())
	}

	// Rebuild must pick up files added after the snapshot.
	touch(t, bnkRoot, "vo_new_event.bnk")
	third := inventory.New(bnkRoot, wemRoot, inventory.WithCachePath(cache))
	if err := third.Rebuild(); err != nil {
		t.Fatalf("Rebuild: %v", err)
	}
	if got := third.FindCandidates("vo_new_event", "", 1); len(got) != 1 {
		t.Errorf("rebuilt index missed the new bank: %v", got)
	}
}

func TestCorruptSnapshotTriggersRebuild(t *testing.T) {
	t.Parallel()
	bnkRoot, wemRoot := newTree(t)
	cache := filepath.Join(t.TempDir(), "inventory.json")
	if err := os.WriteFile(cache, []byte("{bad"), 0o644); err != nil {
		t.Fatal(err)
	}

	ix := inventory.New(bnkRoot, wemRoot, inventory.WithCachePath(cache))
	if err := ix.LoadOrBuild(); err != nil {
		t.Fatalf("LoadOrBuild: %v", err)
	}
	if ix.Len() != 5 {
		t.Errorf("Len = %d, want 5 after rebuilding past the corrupt snapshot", ix.Len())
	}
}

func TestHasAudio(t *testing.T) {
	t.Parallel()
	bnkRoot, wemRoot := newTree(t)
	ix := inventory.New(bnkRoot, wemRoot)
	if err := ix.LoadOrBuild(); err != nil {
		t.Fatalf("LoadOrBuild: %v", err)
	}

	if !ix.HasAudio("dialog_1001_1", "vo_dialog_1001_1") {
		t.Error("HasAudio missed an indexed event")
	}
	if ix.HasAudio("qqq_www_eee", "") {
		t.Error("HasAudio reported audio for an unknown entry")
	}
}
