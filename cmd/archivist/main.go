// Package main is the archivist CLI entry point.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hyperjump/archivist/internal/archive"
	"github.com/hyperjump/archivist/internal/catalog"
	"github.com/hyperjump/archivist/internal/config"
	"github.com/hyperjump/archivist/internal/recent"
	"github.com/hyperjump/archivist/internal/search"
	"github.com/hyperjump/archivist/internal/tracker"
	"github.com/hyperjump/archivist/pkg/utils"
	"go.uber.org/zap"
)

var version = "dev"

const defaultConfigPath = "/usr/local/etc/archivist/config.yaml"

// loadConfig loads config from path. When path is the default, config.yaml in
// the current directory is preferred (for development), and a missing default
// file falls back to built-in defaults plus environment overrides.
// Returns the config and the path that was actually loaded ("" for defaults).
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				cfg, loadErr := config.Load(fallback)
				if loadErr != nil {
					return nil, "", loadErr
				}
				return cfg, fallback, nil
			}
		}
		if _, statErr := os.Stat(path); errors.Is(statErr, fs.ErrNotExist) {
			cfg, err := config.Default()
			if err != nil {
				return nil, "", err
			}
			return cfg, "", nil
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]
	switch command {
	case "serve", "server":
		runServe()
	case "search":
		runSearch()
	case "videos":
		runVideos()
	case "status":
		runStatus()
	case "upload":
		runUpload()
	case "process":
		runProcess()
	case "delete":
		runDelete()
	case "recent":
		runRecent()
	case "health":
		runHealth()
	case "watch":
		runWatch()
	case "version", "--version", "-v":
		fmt.Printf("archivist version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

// commonFlags are accepted by every subcommand that talks to the archive.
type commonFlags struct {
	configPath *string
	backend    *string
	debug      *bool
}

func addCommonFlags(fs *flag.FlagSet) *commonFlags {
	return &commonFlags{
		configPath: fs.String("config", defaultConfigPath, "config file path"),
		backend:    fs.String("backend", "", "archive backend URL (overrides config and ARCHIVIST_BACKEND_URL)"),
		debug:      fs.Bool("debug", false, "enable debug logging"),
	}
}

// setup loads config and builds a logger suitable for one-shot commands.
func (c *commonFlags) setup() (*config.Config, *zap.Logger) {
	cfg, _, err := loadConfig(*c.configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *c.backend != "" {
		cfg.Backend.URL = strings.TrimRight(*c.backend, "/")
	}
	logger, err := utils.NewCLILogger(cfg.Debug || *c.debug)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	return cfg, logger
}

// argsReorder moves any flags (and their values) that appear after the
// positional arguments to the front so that flag.Parse() sees them. Go's flag
// package stops at the first non-flag argument, so "archivist search cats
// --limit 5" would otherwise leave --limit unparsed.
func argsReorder(args []string) []string {
	for i, a := range args {
		if len(a) > 0 && a[0] == '-' {
			if i == 0 {
				return args
			}
			reordered := make([]string, 0, len(args))
			reordered = append(reordered, args[i:]...)
			reordered = append(reordered, args[:i]...)
			return reordered
		}
	}
	return args
}

// buildSearchQuery joins all positional args with spaces so multi-word queries
// work the same with or without shell quoting.
func buildSearchQuery(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

// splitList parses a comma-separated flag value, dropping blanks.
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func newClient(cfg *config.Config, logger *zap.Logger) *archive.Client {
	opts := []archive.Option{
		archive.WithTimeout(cfg.Backend.Timeout),
		archive.WithLogger(logger),
	}
	if cfg.Backend.RateLimit > 0 {
		opts = append(opts, archive.WithRateLimit(cfg.Backend.RateLimit, cfg.Backend.Burst))
	}
	return archive.NewClient(cfg.Backend.URL, opts...)
}

func trackerOptions(cfg *config.Config, logger *zap.Logger) []tracker.Option {
	return []tracker.Option{
		tracker.WithPollInterval(cfg.Tracker.PollInterval),
		tracker.WithRetireDelay(cfg.Tracker.RetireDelay),
		tracker.WithMaxConsecutiveFailures(cfg.Tracker.MaxConsecutiveFailures),
		tracker.WithLogger(logger),
	}
}

// openRecentBackend returns the persistence layer named by cfg.Backend.
func openRecentBackend(cfg config.RecentConfig) (recent.Backend, error) {
	switch cfg.Backend {
	case "", "sqlite":
		return recent.NewSQLiteBackend(cfg.DatabasePath)
	case "file":
		return recent.NewFileBackend(cfg.FilePath)
	case "memory":
		return recent.NewMemoryBackend(), nil
	}
	return nil, fmt.Errorf("unknown recent backend %q; use sqlite, file, or memory", cfg.Backend)
}

// Components holds initialized services.
type Components struct {
	Client  *archive.Client
	Recent  *recent.Store
	Catalog *catalog.Catalog
	Search  *search.Orchestrator
	Tracker *tracker.Tracker
}

// Close stops tracking and releases local storage.
func (c *Components) Close() {
	if c.Tracker != nil {
		c.Tracker.Shutdown()
	}
	if c.Recent != nil {
		_ = c.Recent.Close()
	}
	if c.Catalog != nil {
		_ = c.Catalog.Close()
	}
}

func initializeComponents(cfg *config.Config, logger *zap.Logger, trackerOpts ...tracker.Option) (*Components, error) {
	client := newClient(cfg, logger)

	backend, err := openRecentBackend(cfg.Recent)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize recent image storage: %w", err)
	}
	store := recent.NewStore(backend,
		recent.WithCapacity(cfg.Recent.Capacity),
		recent.WithLogger(logger))

	cat, err := catalog.New(catalog.WithLogger(logger))
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to initialize video catalog: %w", err)
	}

	orch := search.NewOrchestrator(client,
		search.WithRecentStore(store),
		search.WithMaxResults(cfg.Search.MaxResults),
		search.WithDisplayLimit(cfg.Search.DisplayLimit),
		search.WithLogger(logger))

	opts := append(trackerOptions(cfg, logger), trackerOpts...)
	tr := tracker.New(client, opts...)

	logger.Debug("components initialized",
		zap.String("backend", client.BaseURL()),
		zap.String("recent_backend", cfg.Recent.Backend),
		zap.Duration("poll_interval", cfg.Tracker.PollInterval))

	return &Components{
		Client:  client,
		Recent:  store,
		Catalog: cat,
		Search:  orch,
		Tracker: tr,
	}, nil
}

// waitTimeout bounds how long --wait follows a job before giving up.
const waitTimeout = 6 * time.Hour

func printUsage() {
	fmt.Println(`archivist - Video archive search client

Usage:
  archivist serve [flags]                 Start the local companion API
  archivist search [flags] <query>        Search frames and objects by text
  archivist search --image <file>         Search by example image
  archivist videos [flags]                List videos in the archive
  archivist status [flags] <video...>     Show ingestion status (--watch to follow)
  archivist upload [flags] <file>         Upload a video for ingestion
  archivist process [flags] <url>         Ingest a video from YouTube or Google Drive
  archivist delete [flags] <video...>     Delete finished videos
  archivist recent <list|rm|search|clear> Manage recent image searches
  archivist health [flags]                Check the archive backend
  archivist watch <add|remove|list>       Manage drop folders uploaded by serve
  archivist version                       Show version
  archivist help                          Show this help

Common Flags:
  --config string    Config file path (default: /usr/local/etc/archivist/config.yaml)
  --backend string   Archive backend URL (default from config, ARCHIVIST_BACKEND_URL, or http://localhost:8000)
  --debug            Enable debug logging

Search Flags:
  --image string     Search by this image instead of text
  --videos string    Comma-separated video names to search (default: all videos)
  --frames           Search frames (default from config)
  --objects          Search detected objects (default from config)
  --max int          Results requested from the archive (default from config, 20)
  --limit int        Results shown, 5-50 (default from config, 20)
  --output string    Output format: text, compact, or json (default: text)

Upload / Process Flags:
  --wait             Follow the ingestion job until it finishes
  --force            Submit even while another video is still processing
  --name string      Video name (process; default derived from the URL)
  --source string    youtube or drive (process; default: youtube)
  --fps int          Frames per second to extract, 1-30 (process; default: 1)
  --reprocess        Ask the archive to reprocess an existing video (process)

Examples:
  archivist serve
  archivist search dog running on the beach
  archivist search --videos beach_day,city_walk --limit 10 red car
  archivist search --image ./query.jpg --output json
  archivist upload --wait ~/Movies/holiday.mp4
  archivist process --name keynote https://www.youtube.com/watch?v=abc123
  archivist status --watch keynote
  archivist recent list
  archivist watch add ~/Movies/incoming
  archivist recent search <id>`)
}
