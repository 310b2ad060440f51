package bnk

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// FindForEvent locates a bank file plausibly holding the given voice event.
// Bank names usually mirror their event names, so an exact stem match is
// tried first, then a walk looking for stems containing the event token, its
// prefix-stripped core, or the core's trailing ID segment.
func FindForEvent(root, eventName string) (string, bool) {
	token := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(eventName)), ".", "_")
	if token == "" {
		return "", false
	}
	core := strings.TrimPrefix(token, "play_")

	direct := filepath.Join(root, token+".bnk")
	if info, err := os.Stat(direct); err == nil && !info.IsDir() {
		return direct, true
	}

	// Long event names often end with the numeric line ID the bank is named
	// after; keep the last two segments as a narrower probe.
	subToken := ""
	if parts := strings.Split(core, "_"); len(parts) > 2 {
		subToken = strings.Join(parts[len(parts)-2:], "_")
	}

	var found string
	filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || found != "" {
			return nil
		}
		if !strings.EqualFold(filepath.Ext(path), ".bnk") {
			return nil
		}
		stem := strings.ToLower(strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)))
		if strings.Contains(stem, token) || strings.Contains(stem, core) ||
			(subToken != "" && strings.Contains(stem, subToken)) {
			found = path
			return filepath.SkipAll
		}
		return nil
	})
	return found, found != ""
}
