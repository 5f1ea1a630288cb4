// Package config provides configuration loading and structs for archivist.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Debug   bool          `yaml:"debug"`
	Backend BackendConfig `yaml:"backend"`
	Tracker TrackerConfig `yaml:"tracker"`
	Search  SearchConfig  `yaml:"search"`
	Recent  RecentConfig  `yaml:"recent"`
	Server  ServerConfig  `yaml:"server"`
	Watch   WatchConfig   `yaml:"watch"`
}

// BackendConfig describes how to reach the archive backend.
type BackendConfig struct {
	URL     string        `yaml:"url"`
	Timeout time.Duration `yaml:"timeout"`
	// RateLimit caps outgoing requests per second; 0 disables limiting.
	RateLimit float64 `yaml:"rate_limit"`
	Burst     int     `yaml:"burst"`
}

// TrackerConfig holds ingestion status polling settings.
type TrackerConfig struct {
	PollInterval time.Duration `yaml:"poll_interval"`
	RetireDelay  time.Duration `yaml:"retire_delay"`
	// MaxConsecutiveFailures marks a job failed after that many failed polls in a row; 0 never gives up.
	MaxConsecutiveFailures int `yaml:"max_consecutive_failures"`
}

// SearchConfig holds search defaults.
type SearchConfig struct {
	MaxResults    int   `yaml:"max_results"`
	DisplayLimit  int   `yaml:"display_limit"`
	SearchFrames  *bool `yaml:"search_frames"`
	SearchObjects *bool `yaml:"search_objects"`
}

// FramesOrDefault returns whether to search frames; defaults to true when unset.
func (s *SearchConfig) FramesOrDefault() bool {
	if s.SearchFrames != nil {
		return *s.SearchFrames
	}
	return true
}

// ObjectsOrDefault returns whether to search objects; defaults to true when unset.
func (s *SearchConfig) ObjectsOrDefault() bool {
	if s.SearchObjects != nil {
		return *s.SearchObjects
	}
	return true
}

// RecentConfig holds recent-image history settings.
type RecentConfig struct {
	// Backend is one of "sqlite", "file" or "memory".
	Backend      string `yaml:"backend"`
	DatabasePath string `yaml:"database_path"`
	FilePath     string `yaml:"file_path"`
	Capacity     int    `yaml:"capacity"`
}

// ServerConfig holds the local companion HTTP server settings.
type ServerConfig struct {
	Host        string   `yaml:"host"`
	Port        int      `yaml:"port"`
	CORSOrigins []string `yaml:"cors_origins"`
}

// WatchConfig holds drop-folder settings.
type WatchConfig struct {
	Directories []string `yaml:"directories"`
	Extensions  []string `yaml:"extensions"`
	Recursive   *bool    `yaml:"recursive"`
	// AutoTrack follows the ingestion job of every dropped file.
	AutoTrack *bool `yaml:"auto_track"`
}

// RecursiveOrDefault returns whether to watch recursively; defaults to true when unset.
func (w *WatchConfig) RecursiveOrDefault() bool {
	if w.Recursive != nil {
		return *w.Recursive
	}
	return true
}

// AutoTrackOrDefault reports whether dropped files are tracked; defaults to true.
func (w *WatchConfig) AutoTrackOrDefault() bool {
	if w.AutoTrack != nil {
		return *w.AutoTrack
	}
	return true
}

// Load reads and parses the config file at path, applies environment overrides,
// expands paths, and applies defaults.
// Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	configDir := filepath.Dir(path)
	if err := ApplyEnv(&cfg, filepath.Join(configDir, ".env")); err != nil {
		return nil, err
	}
	ApplyDefaults(&cfg)

	cfg.Recent.DatabasePath = expandPath(cfg.Recent.DatabasePath, configDir)
	cfg.Recent.FilePath = expandPath(cfg.Recent.FilePath, configDir)
	for i := range cfg.Watch.Directories {
		cfg.Watch.Directories[i] = expandPath(cfg.Watch.Directories[i], configDir)
	}

	return &cfg, nil
}

// Default returns a config built only from defaults and the environment.
// Used when no config file exists.
func Default() (*Config, error) {
	var cfg Config
	if err := ApplyEnv(&cfg, ".env"); err != nil {
		return nil, err
	}
	ApplyDefaults(&cfg)
	home, _ := os.UserHomeDir()
	cfg.Recent.DatabasePath = expandPath(cfg.Recent.DatabasePath, home)
	cfg.Recent.FilePath = expandPath(cfg.Recent.FilePath, home)
	return &cfg, nil
}

// Environment variables that override the file.
const (
	EnvBackendURL = "ARCHIVIST_BACKEND_URL"
	EnvDebug      = "ARCHIVIST_DEBUG"
	// EnvViteAPIURL is honoured so a checkout of the web client shares one .env.
	EnvViteAPIURL = "VITE_API_URL"
)

// ApplyEnv loads dotenvPath when it exists (without overriding variables that
// are already set) and then applies environment overrides to cfg.
func ApplyEnv(cfg *Config, dotenvPath string) error {
	if dotenvPath != "" {
		if _, err := os.Stat(dotenvPath); err == nil {
			if err := godotenv.Load(dotenvPath); err != nil {
				return fmt.Errorf("failed to load %s: %w", dotenvPath, err)
			}
		}
	}
	if v := os.Getenv(EnvViteAPIURL); v != "" {
		cfg.Backend.URL = v
	}
	if v := os.Getenv(EnvBackendURL); v != "" {
		cfg.Backend.URL = v
	}
	if v := os.Getenv(EnvDebug); v != "" {
		debug, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvDebug, err)
		}
		cfg.Debug = debug
	}
	return nil
}

// Save writes the config to path. Used for persisting watch directory changes.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory.
func expandPath(path string, configDir string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if strings.HasPrefix(path, "~/") {
		path = strings.TrimPrefix(path, "~/")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
