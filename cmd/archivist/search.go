package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/gabriel-vasile/mimetype"
	"github.com/hyperjump/archivist/internal/cli"
	"github.com/hyperjump/archivist/internal/models"
	"github.com/hyperjump/archivist/internal/recent"
	"github.com/hyperjump/archivist/internal/search"
	"go.uber.org/zap"
)

func printSearchUsage(fs *flag.FlagSet) {
	fmt.Fprintf(fs.Output(), "Usage: archivist search [flags] <query>\n       archivist search [flags] --image <file>\n\n")
	fmt.Fprintf(fs.Output(), "Query is all remaining arguments joined by spaces. Multi-word queries work with or without quotes.\n\n")
	fs.PrintDefaults()
	fmt.Fprintf(fs.Output(), `
Results keep the archive's ranking. Frame hits show the time and frame index;
object hits show the detected class and confidence.
  • --videos restricts the search; names are matched against the archive with typo suggestions.
  • When neither --frames nor --objects is set, both are searched.

Examples:
  archivist search dog running on the beach
  archivist search --objects=false --frames sunset
  archivist search --videos beach_day --limit 5 surfer
  archivist search --image ./query.jpg
`)
}

// searchFlags are shared by "search" and "recent search".
type searchFlags struct {
	frames  *bool
	objects *bool
	max     *int
	limit   *int
	videos  *string
	output  *string
}

func addSearchFlags(fs *flag.FlagSet) *searchFlags {
	return &searchFlags{
		frames:  fs.Bool("frames", true, "search frames"),
		objects: fs.Bool("objects", true, "search detected objects"),
		max:     fs.Int("max", 0, "results requested from the archive (0 = config default)"),
		limit:   fs.Int("limit", 0, "results shown, 5-50 (0 = config default)"),
		videos:  fs.String("videos", "", "comma-separated video names to search (default: all)"),
		output:  fs.String("output", "text", "output format: text (human-readable), compact (one result per line), or json (parseable)"),
	}
}

// run applies the filter and limits, runs in, and prints the visible results.
func (sf *searchFlags) run(ctx context.Context, comps *Components, logger *zap.Logger, in search.Input) {
	format, err := cli.ParseOutputFormat(*sf.output)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if names := splitList(*sf.videos); len(names) > 0 {
		if err := comps.Catalog.Refresh(ctx, comps.Client); err != nil {
			logger.Warn("video catalog unavailable, using names as given", zap.Error(err))
		} else {
			resolved, misses := comps.Catalog.ResolveAll(names)
			if len(misses) > 0 {
				cli.WriteResolutions(os.Stderr, misses)
				os.Exit(1)
			}
			names = resolved
		}
		comps.Search.SetVideoFilter(names...)
	}
	if *sf.limit > 0 {
		comps.Search.SetDisplayLimit(*sf.limit)
	}
	in.SearchFrames = *sf.frames
	in.SearchObjects = *sf.objects
	in.MaxResults = *sf.max

	if _, err := comps.Search.Prepare(in); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid search: %v\n", err)
		os.Exit(1)
	}
	st, _ := comps.Search.RunSearch(ctx, in)
	if st.Phase == search.PhaseError {
		fmt.Fprintf(os.Stderr, "Search failed: %s\n", st.ErrorMessage)
		os.Exit(1)
	}
	if err := cli.WriteSearchResults(os.Stdout, st.LastQuery, comps.Search.Visible(), format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

// readImage loads a query image from disk, detecting its content type.
func readImage(path string) (*models.ImageFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read image: %w", err)
	}
	return &models.ImageFile{
		Filename:    filepath.Base(path),
		ContentType: mimetype.Detect(data).String(),
		Data:        data,
	}, nil
}

func runSearch() {
	fs := flag.NewFlagSet("search", flag.ExitOnError)
	common := addCommonFlags(fs)
	sf := addSearchFlags(fs)
	imagePath := fs.String("image", "", "search by this image file instead of text")
	fs.Usage = func() { printSearchUsage(fs) }
	_ = fs.Parse(argsReorder(os.Args[2:]))

	cfg, logger := common.setup()
	defer logger.Sync()
	if !flagSet(fs, "frames") {
		*sf.frames = cfg.Search.FramesOrDefault()
	}
	if !flagSet(fs, "objects") {
		*sf.objects = cfg.Search.ObjectsOrDefault()
	}

	var in search.Input
	if *imagePath != "" {
		img, err := readImage(*imagePath)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		in.Image = img
	} else {
		in.Query = buildSearchQuery(fs.Args())
		if in.Query == "" {
			printSearchUsage(fs)
			os.Exit(1)
		}
	}

	comps, err := initializeComponents(cfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize: %v\n", err)
		os.Exit(1)
	}
	defer comps.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	sf.run(ctx, comps, logger, in)
}

// flagSet reports whether name was given explicitly on the command line.
func flagSet(fs *flag.FlagSet, name string) bool {
	found := false
	fs.Visit(func(f *flag.Flag) {
		if f.Name == name {
			found = true
		}
	})
	return found
}

func runRecent() {
	sub := "list"
	args := os.Args[2:]
	if len(args) > 0 && args[0] != "" && args[0][0] != '-' {
		sub, args = args[0], args[1:]
	}
	fs := flag.NewFlagSet("recent", flag.ExitOnError)
	common := addCommonFlags(fs)
	sf := addSearchFlags(fs)
	_ = fs.Parse(argsReorder(args))

	cfg, logger := common.setup()
	defer logger.Sync()
	comps, err := initializeComponents(cfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize: %v\n", err)
		os.Exit(1)
	}
	defer comps.Close()
	ctx := context.Background()

	switch sub {
	case "list":
		format, err := cli.ParseOutputFormat(*sf.output)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		if err := cli.WriteRecent(os.Stdout, comps.Recent.List(ctx), format); err != nil {
			fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
			os.Exit(1)
		}
	case "rm", "remove":
		if fs.NArg() < 1 {
			fmt.Println("Usage: archivist recent rm <id>")
			os.Exit(1)
		}
		for _, id := range fs.Args() {
			if !comps.Recent.Remove(ctx, id) {
				fmt.Fprintf(os.Stderr, "No recent image %s\n", id)
				os.Exit(1)
			}
			fmt.Printf("Removed: %s\n", id)
		}
	case "clear":
		comps.Recent.Clear(ctx)
		fmt.Println("Recent image searches cleared")
	case "search":
		if fs.NArg() < 1 {
			fmt.Println("Usage: archivist recent search [flags] <id>")
			os.Exit(1)
		}
		entry, ok := comps.Recent.Get(ctx, fs.Arg(0))
		if !ok {
			fmt.Fprintf(os.Stderr, "No recent image %s\n", fs.Arg(0))
			os.Exit(1)
		}
		img, err := recent.Materialize(entry)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Recent image is unreadable: %v\n", err)
			os.Exit(1)
		}
		if !flagSet(fs, "frames") {
			*sf.frames = cfg.Search.FramesOrDefault()
		}
		if !flagSet(fs, "objects") {
			*sf.objects = cfg.Search.ObjectsOrDefault()
		}
		sf.run(ctx, comps, logger, search.Input{Image: img})
	default:
		fmt.Printf("Unknown recent subcommand: %s\n", sub)
		fmt.Println("Usage: archivist recent <list|rm|search|clear>")
		os.Exit(1)
	}
}
