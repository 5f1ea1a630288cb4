package config

import (
	"strings"
	"time"
)

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Backend.URL == "" {
		cfg.Backend.URL = "http://localhost:8000"
	}
	cfg.Backend.URL = strings.TrimRight(cfg.Backend.URL, "/")
	if cfg.Backend.Timeout == 0 {
		// Image searches go through a hosted embedding model and can be slow.
		cfg.Backend.Timeout = 120 * time.Second
	}
	if cfg.Backend.RateLimit > 0 && cfg.Backend.Burst == 0 {
		cfg.Backend.Burst = 5
	}
	if cfg.Tracker.PollInterval == 0 {
		cfg.Tracker.PollInterval = 3 * time.Second
	}
	if cfg.Tracker.RetireDelay == 0 {
		cfg.Tracker.RetireDelay = 5 * time.Second
	}
	if cfg.Search.MaxResults == 0 {
		cfg.Search.MaxResults = 20
	}
	if cfg.Search.DisplayLimit == 0 {
		cfg.Search.DisplayLimit = 20
	}
	if cfg.Recent.Backend == "" {
		cfg.Recent.Backend = "sqlite"
	}
	if cfg.Recent.DatabasePath == "" {
		cfg.Recent.DatabasePath = ".archivist/recent.db"
	}
	if cfg.Recent.FilePath == "" {
		cfg.Recent.FilePath = ".archivist/recent.json"
	}
	if cfg.Recent.Capacity == 0 {
		cfg.Recent.Capacity = 10
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 5173
	}
	if cfg.Server.CORSOrigins == nil {
		cfg.Server.CORSOrigins = []string{"*"}
	}
	if cfg.Watch.Extensions == nil {
		cfg.Watch.Extensions = []string{".mp4", ".mov", ".mkv", ".avi", ".webm"}
	}
	// Recursive defaults to true when unset (nil).
	if len(cfg.Watch.Directories) > 0 && cfg.Watch.Recursive == nil {
		t := true
		cfg.Watch.Recursive = &t
	}
}
