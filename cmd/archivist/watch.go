package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/hyperjump/archivist/internal/config"
)

func printWatchUsage() {
	fmt.Println(`Usage: archivist watch <add|remove|list> [flags] [dir]
  archivist watch add <dir>      Upload videos dropped into dir (applies on next serve)
  archivist watch remove <dir>   Stop watching dir
  archivist watch list           List drop folders`)
}

// editWatchDirs returns dirs with dir added or removed and whether anything changed.
func editWatchDirs(dirs []string, sub, dir string) ([]string, bool) {
	dir = filepath.Clean(dir)
	idx := -1
	for i, d := range dirs {
		if filepath.Clean(d) == dir {
			idx = i
			break
		}
	}
	switch sub {
	case "add":
		if idx >= 0 {
			return dirs, false
		}
		return append(append([]string(nil), dirs...), dir), true
	case "remove":
		if idx < 0 {
			return dirs, false
		}
		out := append([]string(nil), dirs[:idx]...)
		return append(out, dirs[idx+1:]...), true
	}
	return dirs, false
}

func runWatch() {
	if len(os.Args) < 3 {
		printWatchUsage()
		os.Exit(1)
	}
	sub := os.Args[2]
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	_ = fs.Parse(argsReorder(os.Args[3:]))

	cfg, loaded, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	switch sub {
	case "list":
		if len(cfg.Watch.Directories) == 0 {
			fmt.Println("No drop folders configured")
			return
		}
		for _, d := range cfg.Watch.Directories {
			fmt.Println(d)
		}
		return
	case "add", "remove":
	default:
		fmt.Printf("Unknown watch subcommand: %s\n", sub)
		printWatchUsage()
		os.Exit(1)
	}

	if fs.NArg() < 1 {
		printWatchUsage()
		os.Exit(1)
	}
	dir, err := filepath.Abs(fs.Arg(0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid path: %v\n", err)
		os.Exit(1)
	}
	dirs, changed := editWatchDirs(cfg.Watch.Directories, sub, dir)
	if !changed {
		fmt.Printf("Nothing to do: %s\n", dir)
		return
	}
	cfg.Watch.Directories = dirs

	target := loaded
	if target == "" {
		target = *configPath
		if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to create config directory: %v\n", err)
			os.Exit(1)
		}
	}
	if err := config.Save(target, cfg); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	if sub == "add" {
		fmt.Printf("Watching %s (saved to %s)\n", dir, target)
	} else {
		fmt.Printf("Stopped watching %s (saved to %s)\n", dir, target)
	}
}
