package config

import "maps"

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked; anything touching
// loaded indexes (corpus source, resource roots) needs a restart.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	GenderPreferenceChanged bool
	NewGenderPreference     GenderPreference

	AcceptanceFloorChanged bool
	NewAcceptanceFloor     float64

	AliasesChanged bool
}

// Changed reports whether the diff contains any change at all.
func (d ConfigDiff) Changed() bool {
	return d.LogLevelChanged || d.GenderPreferenceChanged ||
		d.AcceptanceFloorChanged || d.AliasesChanged
}

// Diff compares old and new configs and returns what changed.
// Only tracks changes that are safe to apply without restart.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}
	if old.Audio.GenderPreference != new.Audio.GenderPreference {
		d.GenderPreferenceChanged = true
		d.NewGenderPreference = new.Audio.GenderPreference
	}
	if old.Match.AcceptanceFloor != new.Match.AcceptanceFloor {
		d.AcceptanceFloorChanged = true
		d.NewAcceptanceFloor = new.Match.AcceptanceFloor
	}
	if !maps.Equal(old.Match.Aliases, new.Match.Aliases) {
		d.AliasesChanged = true
	}
	return d
}
