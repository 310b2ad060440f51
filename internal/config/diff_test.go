package config_test

import (
	"testing"

	"github.com/Herselfta/ludiglot/internal/config"
)

func TestDiff_NoChanges(t *testing.T) {
	t.Parallel()
	a := &config.Config{}
	a.Server.LogLevel = config.LogInfo
	b := &config.Config{}
	b.Server.LogLevel = config.LogInfo

	if d := config.Diff(a, b); d.Changed() {
		t.Errorf("Diff reported changes for identical configs: %+v", d)
	}
}

func TestDiff_TracksHotReloadableFields(t *testing.T) {
	t.Parallel()
	old := &config.Config{}
	old.Server.LogLevel = config.LogInfo
	old.Audio.GenderPreference = config.GenderFemale
	old.Match.AcceptanceFloor = 0.35
	old.Match.Aliases = map[string]string{"def": "maindef"}

	newCfg := &config.Config{}
	newCfg.Server.LogLevel = config.LogDebug
	newCfg.Audio.GenderPreference = config.GenderMale
	newCfg.Match.AcceptanceFloor = 0.5
	newCfg.Match.Aliases = map[string]string{"def": "maindef", "er": "energyregen"}

	d := config.Diff(old, newCfg)
	if !d.LogLevelChanged || d.NewLogLevel != config.LogDebug {
		t.Errorf("log level diff = %+v", d)
	}
	if !d.GenderPreferenceChanged || d.NewGenderPreference != config.GenderMale {
		t.Errorf("gender diff = %+v", d)
	}
	if !d.AcceptanceFloorChanged || d.NewAcceptanceFloor != 0.5 {
		t.Errorf("floor diff = %+v", d)
	}
	if !d.AliasesChanged {
		t.Error("alias change not detected")
	}
	if !d.Changed() {
		t.Error("Changed() = false")
	}
}
