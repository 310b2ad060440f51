package match_test

import (
	"strings"
	"testing"

	"github.com/Herselfta/ludiglot/internal/match"
)

func TestBuildCandidates_Strategies(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		lines []match.Line
		want  match.Strategy
	}{
		{
			name:  "empty input",
			lines: nil,
			want:  match.StrategyEmpty,
		},
		{
			name:  "blank lines only",
			lines: lines("", "   "),
			want:  match.StrategyEmpty,
		},
		{
			name:  "single line",
			lines: lines("Resonance Crest"),
			want:  match.StrategySingle,
		},
		{
			name: "title over long body",
			lines: lines(
				"Tactical Briefing",
				"Hold the northern gate until the resonance beacon finishes charging, then fall back.",
			),
			want: match.StrategyMixed,
		},
		{
			name:  "short labels form a list",
			lines: lines("HP", "ATK", "Crit Rate", "Crit DMG"),
			want:  match.StrategyList,
		},
		{
			name: "two sentence lines form a long block",
			lines: lines(
				"The frequency here is far beyond anything recorded.",
				"We should fall back and report to the outpost at once.",
			),
			want: match.StrategyLong,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := match.BuildCandidates(tt.lines)
			if got.Strategy != tt.want {
				t.Fatalf("Strategy = %q, want %q", got.Strategy, tt.want)
			}
		})
	}
}

func TestBuildCandidates_MixedOrdersContentFirst(t *testing.T) {
	t.Parallel()

	set := match.BuildCandidates(lines(
		"Echo Hunt",
		"Defeat the tacet discord lurking in the depths before it calls for reinforcements.",
	))
	if set.Strategy != match.StrategyMixed {
		t.Fatalf("Strategy = %q, want mixed", set.Strategy)
	}
	if set.TitleText != "Echo Hunt" {
		t.Errorf("TitleText = %q", set.TitleText)
	}
	if len(set.Candidates) < 2 {
		t.Fatalf("got %d candidates, want content, title, full", len(set.Candidates))
	}
	if set.Candidates[0].Text != set.ContentText {
		t.Errorf("first candidate = %q, want the body %q", set.Candidates[0].Text, set.ContentText)
	}
	if set.Candidates[1].Text != "Echo Hunt" {
		t.Errorf("second candidate = %q, want the title", set.Candidates[1].Text)
	}
}

func TestBuildCandidates_AbbreviationDoesNotBreakTitle(t *testing.T) {
	t.Parallel()

	set := match.BuildCandidates(lines(
		"Dr. Verne",
		"The lab records show the experiment ran for three days without supervision.",
	))
	if set.Strategy != match.StrategyMixed {
		t.Fatalf("Strategy = %q, want mixed: an honorific period is not sentence punctuation", set.Strategy)
	}
	if set.TitleText != "Dr. Verne" {
		t.Errorf("TitleText = %q", set.TitleText)
	}
}

func TestBuildCandidates_ListEmitsOneCandidatePerLabel(t *testing.T) {
	t.Parallel()

	set := match.BuildCandidates(lines("HP", "ATK", "DEF"))
	if set.Strategy != match.StrategyList {
		t.Fatalf("Strategy = %q, want list", set.Strategy)
	}
	if len(set.Candidates) != 3 {
		t.Fatalf("got %d candidates, want 3", len(set.Candidates))
	}
	for i, want := range []string{"HP", "ATK", "DEF"} {
		if set.Candidates[i].Text != want {
			t.Errorf("candidate[%d] = %q, want %q", i, set.Candidates[i].Text, want)
		}
	}
}

func TestBuildCandidates_LongBlockEmitsSlidingWindows(t *testing.T) {
	t.Parallel()

	set := match.BuildCandidates(lines(
		"When the first sentinel fell silent the harbor lights went out one by one",
		"and the watchers on the wall counted the waves until morning came again",
	))
	if set.Strategy != match.StrategyLong {
		t.Fatalf("Strategy = %q, want long", set.Strategy)
	}
	if set.Candidates[0].Text != set.FullText {
		t.Fatalf("first candidate must be the full join, got %q", set.Candidates[0].Text)
	}
	if len(set.Candidates) < 2 {
		t.Fatal("expected sub-join window candidates for a long block")
	}
	for _, c := range set.Candidates[1:] {
		if !strings.Contains(set.FullText, c.Text) {
			t.Errorf("window %q is not a substring of the full text", c.Text)
		}
		if n := len(strings.Fields(c.Text)); n < 8 || n > 24 {
			t.Errorf("window has %d words, want between 8 and 24", n)
		}
	}
}
