package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"sync"
	"syscall"

	"github.com/hyperjump/archivist/internal/archive"
	"github.com/hyperjump/archivist/internal/cli"
	"github.com/hyperjump/archivist/internal/config"
	"github.com/hyperjump/archivist/internal/models"
	"github.com/hyperjump/archivist/internal/tracker"
	"go.uber.org/zap"
)

func parseFormat(s string) cli.OutputFormat {
	format, err := cli.ParseOutputFormat(s)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	return format
}

func runVideos() {
	fs := flag.NewFlagSet("videos", flag.ExitOnError)
	common := addCommonFlags(fs)
	status := fs.String("status", "", "only list videos with this status (e.g. completed)")
	output := fs.String("output", "text", "output format: text, compact, or json")
	_ = fs.Parse(os.Args[2:])
	format := parseFormat(*output)

	cfg, logger := common.setup()
	defer logger.Sync()
	client := newClient(cfg, logger)

	videos, err := client.ListVideos(context.Background())
	if err != nil {
		fmt.Fprintf(os.Stderr, "List videos failed: %v\n", err)
		os.Exit(1)
	}
	out := videos[:0]
	for _, v := range videos {
		if *status == "" || string(v.Status) == *status {
			out = append(out, v)
		}
	}
	if err := cli.WriteVideos(os.Stdout, out, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

func runStatus() {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	common := addCommonFlags(fs)
	watch := fs.Bool("watch", false, "follow the jobs until they finish")
	output := fs.String("output", "text", "output format: text, compact, or json")
	_ = fs.Parse(argsReorder(os.Args[2:]))
	format := parseFormat(*output)

	if fs.NArg() < 1 {
		fmt.Println("Usage: archivist status [flags] <video...>")
		os.Exit(1)
	}
	cfg, logger := common.setup()
	defer logger.Sync()

	if *watch {
		if !waitForJobs(cfg, logger, fs.Args(), format) {
			os.Exit(1)
		}
		return
	}

	client := newClient(cfg, logger)
	var jobs []*models.IngestionJob
	for _, name := range fs.Args() {
		job, err := client.GetJobStatus(context.Background(), name)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Status failed: %v\n", err)
			os.Exit(1)
		}
		jobs = append(jobs, job)
	}
	if err := cli.WriteJobs(os.Stdout, jobs, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

// progressPrinter prints a job line whenever its status or progress changes.
type progressPrinter struct {
	mu     sync.Mutex
	w      io.Writer
	format cli.OutputFormat
	last   map[string]string
}

func (p *progressPrinter) print(job *models.IngestionJob) {
	key := fmt.Sprintf("%s/%.0f", job.Status, job.Progress)
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.last[job.VideoName] == key {
		return
	}
	p.last[job.VideoName] = key
	format := p.format
	if format == cli.OutputText {
		format = cli.OutputCompact
	}
	_ = cli.WriteJobs(p.w, []*models.IngestionJob{job}, format)
}

// waitForJobs tracks names until every job is terminal or the user interrupts.
// It reports whether all of them completed.
func waitForJobs(cfg *config.Config, logger *zap.Logger, names []string, format cli.OutputFormat) bool {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, waitTimeout)
	defer cancel()

	printer := &progressPrinter{w: os.Stdout, format: format, last: map[string]string{}}
	finished := make(chan *models.IngestionJob, len(names))
	opts := append(trackerOptions(cfg, logger), tracker.WithListener(func(ev tracker.Event) {
		switch ev.Type {
		case tracker.EventProgress:
			printer.print(ev.Job)
		case tracker.EventTerminal:
			printer.print(ev.Job)
			finished <- ev.Job
		case tracker.EventPollError:
			logger.Warn("status poll failed", zap.String("video_name", ev.VideoName), zap.Error(ev.Err))
		}
	}))
	tr := tracker.New(newClient(cfg, logger), opts...)
	defer tr.Shutdown()

	pending := map[string]bool{}
	for _, name := range names {
		snap, err := tr.Track(name)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Cannot track %s: %v\n", name, err)
			return false
		}
		pending[snap.VideoName] = true
	}

	ok := true
	for len(pending) > 0 {
		select {
		case job := <-finished:
			delete(pending, job.VideoName)
			if job.Status != models.StatusCompleted {
				ok = false
				if job.ErrorMessage != "" {
					fmt.Fprintf(os.Stderr, "%s failed: %s\n", job.VideoName, job.ErrorMessage)
				}
			}
		case <-ctx.Done():
			fmt.Fprintf(os.Stderr, "Stopped waiting: %v\n", ctx.Err())
			return false
		}
	}
	return ok
}

// guardSubmission refuses to submit while the archive reports a video that
// is still being processed, unless forced.
func guardSubmission(ctx context.Context, client *archive.Client, force bool) {
	if force {
		return
	}
	videos, err := client.ListVideos(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Cannot check for running jobs: %v\nUse --force to submit anyway.\n", err)
		os.Exit(1)
	}
	for _, v := range videos {
		if v.Status != "" && !v.Status.IsTerminal() {
			fmt.Fprintf(os.Stderr, "%s is still processing (%s). Use --force to submit anyway.\n", v.VideoName, v.Status.Label())
			os.Exit(1)
		}
	}
}

func printAccepted(acc *models.Accepted, format cli.OutputFormat) {
	if format == cli.OutputJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(acc)
		return
	}
	fmt.Printf("Accepted: %s", acc.VideoName)
	if acc.Message != "" {
		fmt.Printf(" (%s)", acc.Message)
	}
	fmt.Println()
}

func runUpload() {
	fs := flag.NewFlagSet("upload", flag.ExitOnError)
	common := addCommonFlags(fs)
	wait := fs.Bool("wait", false, "follow the ingestion job until it finishes")
	force := fs.Bool("force", false, "upload even while another video is still processing")
	output := fs.String("output", "text", "output format: text, compact, or json")
	_ = fs.Parse(argsReorder(os.Args[2:]))
	format := parseFormat(*output)

	if fs.NArg() < 1 {
		fmt.Println("Usage: archivist upload [flags] <file>")
		os.Exit(1)
	}
	path := fs.Arg(0)
	cfg, logger := common.setup()
	defer logger.Sync()
	client := newClient(cfg, logger)
	ctx := context.Background()

	f, err := os.Open(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open file: %v\n", err)
		os.Exit(1)
	}
	defer f.Close()

	guardSubmission(ctx, client, *force)
	acc, err := client.SubmitUpload(ctx, filepath.Base(path), f)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Upload failed: %v\n", err)
		os.Exit(1)
	}
	printAccepted(acc, format)
	if *wait && !waitForJobs(cfg, logger, []string{acc.VideoName}, format) {
		os.Exit(1)
	}
}

func runProcess() {
	fs := flag.NewFlagSet("process", flag.ExitOnError)
	common := addCommonFlags(fs)
	name := fs.String("name", "", "video name (default derived from the URL)")
	source := fs.String("source", string(models.SourceYouTube), "source type: youtube or drive")
	fps := fs.Int("fps", models.MinFPS, "frames per second to extract (1-30)")
	reprocess := fs.Bool("reprocess", false, "reprocess a video the archive already has")
	wait := fs.Bool("wait", false, "follow the ingestion job until it finishes")
	force := fs.Bool("force", false, "submit even while another video is still processing")
	output := fs.String("output", "text", "output format: text, compact, or json")
	_ = fs.Parse(argsReorder(os.Args[2:]))
	format := parseFormat(*output)

	if fs.NArg() < 1 {
		fmt.Println("Usage: archivist process [flags] <url>")
		os.Exit(1)
	}
	job := &models.URLJob{
		VideoName:  *name,
		SourceType: models.SourceType(*source),
		SourceURL:  fs.Arg(0),
		FPS:        *fps,
		Force:      *reprocess,
	}
	if job.VideoName == "" {
		job.VideoName = archive.VideoNameFromURL(job.SourceURL)
	}

	cfg, logger := common.setup()
	defer logger.Sync()
	client := newClient(cfg, logger)
	ctx := context.Background()

	if err := job.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid job: %v\n", err)
		os.Exit(1)
	}
	guardSubmission(ctx, client, *force)
	acc, err := client.SubmitURLJob(ctx, job)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Process failed: %v\n", err)
		os.Exit(1)
	}
	printAccepted(acc, format)
	if *wait && !waitForJobs(cfg, logger, []string{acc.VideoName}, format) {
		os.Exit(1)
	}
}

func runDelete() {
	fs := flag.NewFlagSet("delete", flag.ExitOnError)
	common := addCommonFlags(fs)
	_ = fs.Parse(argsReorder(os.Args[2:]))

	if fs.NArg() < 1 {
		fmt.Println("Usage: archivist delete [flags] <video...>")
		os.Exit(1)
	}
	cfg, logger := common.setup()
	defer logger.Sync()
	client := newClient(cfg, logger)

	failed := false
	for _, name := range fs.Args() {
		if err := client.DeleteVideo(context.Background(), name); err != nil {
			fmt.Fprintf(os.Stderr, "Delete %s failed: %v\n", name, err)
			failed = true
			continue
		}
		fmt.Printf("Video deleted: %s\n", models.NormalizeVideoName(name))
	}
	if failed {
		os.Exit(1)
	}
}

func runHealth() {
	fs := flag.NewFlagSet("health", flag.ExitOnError)
	common := addCommonFlags(fs)
	output := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])
	format := parseFormat(*output)

	cfg, logger := common.setup()
	defer logger.Sync()
	client := newClient(cfg, logger)
	ctx := context.Background()

	status, err := client.Health(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Archive at %s is unavailable: %v\n", client.BaseURL(), err)
		os.Exit(1)
	}
	resp := map[string]interface{}{"backend": client.BaseURL(), "status": status}
	if info, err := client.StorageInfo(ctx); err == nil {
		resp["storage"] = info
	} else {
		logger.Debug("storage info unavailable", zap.Error(err))
	}

	if format == cli.OutputJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(resp)
		return
	}
	fmt.Printf("backend:  %s\n", client.BaseURL())
	printMap("status", status)
	if info, ok := resp["storage"].(map[string]interface{}); ok {
		printMap("storage", info)
	}
}

func printMap(prefix string, m map[string]interface{}) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Printf("%s.%s: %v\n", prefix, k, m[k])
	}
}
