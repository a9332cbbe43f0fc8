package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Settings is the persisted user configuration.
type Settings struct {
	General  GeneralSettings  `yaml:"general"`
	Transfer TransferSettings `yaml:"transfer"`
	Hub      HubSettings      `yaml:"hub"`
	Server   ServerSettings   `yaml:"server"`
}

type GeneralSettings struct {
	DefaultDownloadDir string `yaml:"default_download_dir"`
	LogRetentionCount  int    `yaml:"log_retention_count"`
}

type TransferSettings struct {
	Aria2Path      string        `yaml:"aria2c_path"`
	Connections    int           `yaml:"connections"`
	Segments       int           `yaml:"segments"`
	ParallelFiles  int           `yaml:"parallel_files"`
	PollInterval   time.Duration `yaml:"poll_interval"`
	TerminateGrace time.Duration `yaml:"terminate_grace"`
	SpeedLimit     string        `yaml:"speed_limit"`
}

type HubSettings struct {
	Endpoint string `yaml:"endpoint"`
	Revision string `yaml:"revision"`
	// Protocol selects the catalog transport: auto, http1, http2 or http3.
	Protocol string `yaml:"protocol"`
	// Token is never written to disk; it comes from HF_TOKEN.
	Token string `yaml:"-"`
}

type ServerSettings struct {
	Port int `yaml:"port"`
}

// DefaultSettings returns the built-in configuration.
func DefaultSettings() *Settings {
	return &Settings{
		General: GeneralSettings{
			DefaultDownloadDir: "./downloaded_model",
			LogRetentionCount:  5,
		},
		Transfer: TransferSettings{
			Connections:    16,
			Segments:       16,
			ParallelFiles:  5,
			PollInterval:   200 * time.Millisecond,
			TerminateGrace: 5 * time.Second,
		},
		Hub: HubSettings{
			Endpoint: "https://huggingface.co",
			Revision: "main",
			Protocol: "auto",
		},
	}
}

// LoadSettings reads settings.yaml, falling back to defaults for a missing
// file, then applies environment overrides (including a local .env).
func LoadSettings() (*Settings, error) {
	return LoadSettingsFrom(GetSettingsPath())
}

// LoadSettingsFrom is LoadSettings with an explicit file.
func LoadSettingsFrom(path string) (*Settings, error) {
	settings := DefaultSettings()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("failed to read settings: %w", err)
	default:
		if err := yaml.Unmarshal(data, settings); err != nil {
			return nil, fmt.Errorf("failed to parse settings %s: %w", path, err)
		}
	}

	applyEnv(settings)
	return settings, nil
}

// SaveSettings writes settings.yaml.
func SaveSettings(s *Settings) error {
	return SaveSettingsTo(GetSettingsPath(), s)
}

// SaveSettingsTo writes the settings to path, creating its directory.
func SaveSettingsTo(path string, s *Settings) error {
	data, err := yaml.Marshal(s)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// applyEnv layers HF_TOKEN, HF_ENDPOINT and HFETCH_ARIA2C over the file
// values. A .env file in the working directory is honoured when present.
func applyEnv(s *Settings) {
	_ = godotenv.Load()

	if v := os.Getenv("HF_TOKEN"); v != "" {
		s.Hub.Token = v
	}
	if v := os.Getenv("HF_ENDPOINT"); v != "" {
		s.Hub.Endpoint = v
	}
	if v := os.Getenv("HFETCH_ARIA2C"); v != "" {
		s.Transfer.Aria2Path = v
	}
}
