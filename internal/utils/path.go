package utils

import (
	"os"
	"path/filepath"
	"strings"
)

// EnsureAbsPath resolves a destination root to an absolute path. A leading
// "~" expands to the user's home directory; empty means the working dir.
func EnsureAbsPath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		p = "."
	}
	if p == "~" || strings.HasPrefix(p, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			p = filepath.Join(home, strings.TrimPrefix(p[1:], "/"))
		}
	}
	abs, err := filepath.Abs(p)
	if err != nil {
		return p
	}
	return abs
}
