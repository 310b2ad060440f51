package wwise_test

import (
	"testing"

	"github.com/Herselfta/ludiglot/internal/wwise"
)

// Reference values computed with the FNV-1a 32 parameters the audio pipeline
// has always used (offset 0x811C9DC5, prime 16777619, lowercase fold).
func TestHash_KnownVectors(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		want uint32
	}{
		{"", 2166136261},
		{"a", 3826002220},
		{"vo_evt_1", 1115874808},
		{"play_vo_main_1_1_nosub_01", 774040909},
		{"vo_favorword_jinhsi_001_f", 3107296904},
		{"bgm_title", 2170045372},
		{"vo_dialog_1001_1", 1439851426},
	}
	for _, tc := range cases {
		if got := wwise.Hash(tc.name); got != tc.want {
			t.Errorf("Hash(%q) = %d, want %d", tc.name, got, tc.want)
		}
	}
}

func TestHash_CaseInsensitive(t *testing.T) {
	t.Parallel()

	pairs := [][2]string{
		{"vo_evt_1", "VO_Evt_1"},
		{"Play_VO_Main", "play_vo_main"},
		{"ABCxyz123", "abcXYZ123"},
	}
	for _, p := range pairs {
		if wwise.Hash(p[0]) != wwise.Hash(p[1]) {
			t.Errorf("Hash(%q) != Hash(%q), want equal", p[0], p[1])
		}
	}
}

func TestHash_Deterministic(t *testing.T) {
	t.Parallel()

	const name = "vo_favorword_changli_007_f"
	first := wwise.Hash(name)
	for i := 0; i < 100; i++ {
		if got := wwise.Hash(name); got != first {
			t.Fatalf("Hash(%q) unstable: %d then %d", name, first, got)
		}
	}
}

func TestHashString_DecimalForm(t *testing.T) {
	t.Parallel()

	if got := wwise.HashString("vo_evt_1"); got != "1115874808" {
		t.Errorf("HashString(%q) = %q, want %q", "vo_evt_1", got, "1115874808")
	}
}
