package config

import (
	"os"
	"path/filepath"
	"runtime"
)

const (
	// HomeEnv relocates every HFetch directory under one root, for portable
	// installs and tests.
	HomeEnv = "HFETCH_HOME"
	// RuntimeEnv overrides only the runtime directory (lock and port files).
	RuntimeEnv = "HFETCH_RUNTIME_DIR"

	appName = "HFetch"
)

// Layout is where HFetch keeps its files on this machine.
type Layout struct {
	Root     string // settings.yaml lives here
	State    string // history database, auth token
	Logs     string
	Runtime  string // lock and port files; may be removed between runs
	Tools    string // bundled aria2c, searched before $PATH
	Settings string
}

// Dirs lists the directories EnsureDirs creates.
func (l Layout) Dirs() []string {
	return []string{l.Root, l.State, l.Logs, l.Runtime}
}

// ResolveLayout computes the layout for goos from getenv and the user's home
// directory. HomeEnv puts everything, runtime files included, under one
// root; otherwise the OS conventions apply.
func ResolveLayout(goos string, getenv func(string) string, home string) Layout {
	root := getenv(HomeEnv)
	portable := root != ""
	if !portable {
		root = filepath.Join(configBase(goos, getenv, home), appName)
	}

	l := Layout{
		Root:     root,
		State:    filepath.Join(root, "state"),
		Logs:     filepath.Join(root, "logs"),
		Tools:    filepath.Join(root, "bin"),
		Settings: filepath.Join(root, "settings.yaml"),
	}
	switch {
	case getenv(RuntimeEnv) != "":
		l.Runtime = getenv(RuntimeEnv)
	case portable:
		l.Runtime = filepath.Join(root, "run")
	default:
		l.Runtime = runtimeBase(goos, getenv, l.State)
	}
	return l
}

func configBase(goos string, getenv func(string) string, home string) string {
	switch goos {
	case "windows":
		if appData := getenv("APPDATA"); appData != "" {
			return appData
		}
		return filepath.Join(getenv("USERPROFILE"), "AppData", "Roaming")
	case "darwin":
		return filepath.Join(home, "Library", "Application Support")
	default:
		if xdg := getenv("XDG_CONFIG_HOME"); xdg != "" {
			return xdg
		}
		return filepath.Join(home, ".config")
	}
}

// runtimeBase falls back to the state directory on Linux hosts without
// XDG_RUNTIME_DIR (containers, headless sessions).
func runtimeBase(goos string, getenv func(string) string, stateDir string) string {
	switch goos {
	case "windows":
		return filepath.Join(os.TempDir(), appName)
	case "darwin":
		return filepath.Join(os.TempDir(), appName+"-runtime")
	default:
		if xdg := getenv("XDG_RUNTIME_DIR"); xdg != "" {
			return filepath.Join(xdg, appName)
		}
		return stateDir
	}
}

// CurrentLayout resolves the layout for this process's environment.
func CurrentLayout() Layout {
	home, _ := os.UserHomeDir()
	return ResolveLayout(runtime.GOOS, os.Getenv, home)
}

func GetHFetchDir() string    { return CurrentLayout().Root }
func GetRuntimeDir() string   { return CurrentLayout().Runtime }
func GetStateDir() string     { return CurrentLayout().State }
func GetLogsDir() string      { return CurrentLayout().Logs }
func GetToolsDir() string     { return CurrentLayout().Tools }
func GetSettingsPath() string { return CurrentLayout().Settings }

// EnsureDirs creates the layout's directories.
func EnsureDirs() error {
	for _, dir := range CurrentLayout().Dirs() {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return nil
}
