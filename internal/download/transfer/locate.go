package transfer

import (
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sort"

	"hf_downloader/internal/download/types"
)

// Locate finds the aria2c executable. Search order: the configured path, the
// directory of the running binary, the per-user tools dir, then $PATH.
func Locate(configured string, extraDirs ...string) (string, error) {
	name := types.Aria2Binary
	if runtime.GOOS == "windows" {
		name += ".exe"
	}

	var searched []string
	if configured != "" {
		if isExecutableFile(configured) {
			return configured, nil
		}
		return "", &types.ToolingMissingError{Binary: name, Searched: []string{configured}}
	}

	dirs := append([]string{}, extraDirs...)
	if exe, err := os.Executable(); err == nil {
		dirs = append([]string{filepath.Dir(exe)}, dirs...)
	}
	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		candidate := filepath.Join(dir, name)
		searched = append(searched, candidate)
		if isExecutableFile(candidate) {
			return candidate, nil
		}
	}

	if p, err := exec.LookPath(name); err == nil {
		return p, nil
	}
	searched = append(searched, "$PATH")
	return "", &types.ToolingMissingError{Binary: name, Searched: searched}
}

func isExecutableFile(path string) bool {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return false
	}
	if runtime.GOOS == "windows" {
		return true
	}
	return info.Mode()&0o111 != 0
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
