package main

import (
	"bytes"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/hyperjump/archivist/internal/cli"
	"github.com/hyperjump/archivist/internal/config"
	"github.com/hyperjump/archivist/internal/models"
	"github.com/hyperjump/archivist/internal/recent"
)

func TestArgsReorder(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		expected []string
	}{
		{
			name:     "flags after query are moved first",
			args:     []string{"dog on the beach", "-limit", "5"},
			expected: []string{"-limit", "5", "dog on the beach"},
		},
		{
			name:     "flags first returns unchanged",
			args:     []string{"-limit", "5", "dog on the beach"},
			expected: []string{"-limit", "5", "dog on the beach"},
		},
		{
			name:     "query only returns unchanged",
			args:     []string{"dog on the beach"},
			expected: []string{"dog on the beach"},
		},
		{
			name:     "empty args returns unchanged",
			args:     []string{},
			expected: []string{},
		},
		{
			name:     "multiple positionals then flags",
			args:     []string{"red", "car", "--videos", "city_walk"},
			expected: []string{"--videos", "city_walk", "red", "car"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := argsReorder(tt.args)
			if !reflect.DeepEqual(got, tt.expected) {
				t.Errorf("argsReorder() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestBuildSearchQuery(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		expected string
	}{
		{"single word", []string{"sunset"}, "sunset"},
		{"multiple words", []string{"red", "car"}, "red car"},
		{"single quoted phrase", []string{"red car"}, "red car"},
		{"empty args", []string{}, ""},
		{"blank args", []string{"  ", "  "}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := buildSearchQuery(tt.args)
			if got != tt.expected {
				t.Errorf("buildSearchQuery(%v) = %q, want %q", tt.args, got, tt.expected)
			}
		})
	}
}

func TestSplitList(t *testing.T) {
	got := splitList(" beach_day, ,city_walk,")
	if !reflect.DeepEqual(got, []string{"beach_day", "city_walk"}) {
		t.Errorf("splitList() = %v", got)
	}
	if splitList("") != nil {
		t.Error("empty value should give no names")
	}
}

func TestLoadConfig_prefersCwdConfigWhenDefaultPath(t *testing.T) {
	t.Setenv(config.EnvBackendURL, "")
	t.Setenv(config.EnvViteAPIURL, "")
	t.Setenv(config.EnvDebug, "")
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	content := `
debug: true
backend:
  url: "http://archive.local:9000"
`
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	origWd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = os.Chdir(origWd) }()
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}

	cfg, resolved, err := loadConfig(defaultConfigPath)
	if err != nil {
		t.Fatal(err)
	}
	// On macOS, cwd can be /private/var/... while t.TempDir() is /var/...; compare canonical paths.
	resolvedCanon, _ := filepath.EvalSymlinks(resolved)
	configPathCanon, _ := filepath.EvalSymlinks(configPath)
	if resolvedCanon != configPathCanon {
		t.Errorf("resolved path = %s, want %s", resolved, configPath)
	}
	if !cfg.Debug || cfg.Backend.URL != "http://archive.local:9000" {
		t.Errorf("unexpected config: debug=%v backend=%s", cfg.Debug, cfg.Backend.URL)
	}
}

func TestLoadConfig_usesExplicitPath(t *testing.T) {
	t.Setenv(config.EnvBackendURL, "")
	t.Setenv(config.EnvViteAPIURL, "")
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	content := `
server:
  host: "127.0.0.1"
  port: 9000
`
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, resolved, err := loadConfig(configPath)
	if err != nil {
		t.Fatal(err)
	}
	if resolved != configPath {
		t.Errorf("resolved path = %s, want %s", resolved, configPath)
	}
	if cfg.Server.Host != "127.0.0.1" || cfg.Server.Port != 9000 {
		t.Errorf("unexpected server config: %+v", cfg.Server)
	}
	if cfg.Backend.URL != "http://localhost:8000" {
		t.Errorf("backend default = %s", cfg.Backend.URL)
	}
}

func TestLoadConfig_missingExplicitPath(t *testing.T) {
	if _, _, err := loadConfig(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("an explicit missing config should be an error")
	}
}

func TestOpenRecentBackend(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		cfg     config.RecentConfig
		want    interface{}
		wantErr bool
	}{
		{config.RecentConfig{Backend: "sqlite", DatabasePath: filepath.Join(dir, "r.db")}, &recent.SQLiteBackend{}, false},
		{config.RecentConfig{Backend: "file", FilePath: filepath.Join(dir, "r.json")}, &recent.FileBackend{}, false},
		{config.RecentConfig{Backend: "memory"}, &recent.MemoryBackend{}, false},
		{config.RecentConfig{Backend: "redis"}, nil, true},
	}
	for _, tt := range tests {
		b, err := openRecentBackend(tt.cfg)
		if (err != nil) != tt.wantErr {
			t.Errorf("openRecentBackend(%q) error = %v", tt.cfg.Backend, err)
			continue
		}
		if err != nil {
			continue
		}
		if reflect.TypeOf(b) != reflect.TypeOf(tt.want) {
			t.Errorf("openRecentBackend(%q) = %T, want %T", tt.cfg.Backend, b, tt.want)
		}
		_ = b.Close()
	}
}

func TestProgressPrinter_onlyPrintsChanges(t *testing.T) {
	var buf bytes.Buffer
	p := &progressPrinter{w: &buf, format: cli.OutputText, last: map[string]string{}}
	job := &models.IngestionJob{VideoName: "clip", Status: models.StatusExtractingFrames, Progress: 10}
	p.print(job)
	p.print(job)
	job.Progress = 40
	p.print(job)
	job.Status = models.StatusCompleted
	job.Progress = 100
	p.print(job)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected 3 lines, got %q", buf.String())
	}
	if lines[2] != "clip\tCOMPLETED\t100%" {
		t.Errorf("last line = %q", lines[2])
	}
}

func TestEditWatchDirs(t *testing.T) {
	dirs := []string{"/srv/drop"}

	got, changed := editWatchDirs(dirs, "add", "/srv/incoming/")
	if !changed || !reflect.DeepEqual(got, []string{"/srv/drop", "/srv/incoming"}) {
		t.Errorf("add = %v %v", got, changed)
	}
	if len(dirs) != 1 {
		t.Error("add must not modify the input slice")
	}
	if _, changed := editWatchDirs(got, "add", "/srv/drop"); changed {
		t.Error("adding a watched dir should be a no-op")
	}

	got, changed = editWatchDirs(got, "remove", "/srv/drop/")
	if !changed || !reflect.DeepEqual(got, []string{"/srv/incoming"}) {
		t.Errorf("remove = %v %v", got, changed)
	}
	if _, changed := editWatchDirs(got, "remove", "/srv/missing"); changed {
		t.Error("removing an unknown dir should be a no-op")
	}
}
