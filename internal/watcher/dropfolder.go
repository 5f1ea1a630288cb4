package watcher

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/hyperjump/archivist/internal/fileid"
	"github.com/hyperjump/archivist/internal/models"
	"github.com/hyperjump/archivist/internal/tracker"
	"go.uber.org/zap"
)

// Uploader submits video files to the archive.
type Uploader interface {
	SubmitUpload(ctx context.Context, filename string, r io.Reader) (*models.Accepted, error)
}

// JobTracker follows submitted jobs.
type JobTracker interface {
	Track(videoName string) (tracker.Snapshot, error)
}

// DropFolder uploads every settled file from the watched folders once and
// tracks the resulting ingestion job.
type DropFolder struct {
	uploader Uploader
	tracker  JobTracker
	logger   *zap.Logger

	mu        sync.Mutex
	submitted map[string]string // path id -> video name
}

// NewDropFolder returns a DropFolder. tr may be nil to upload without tracking.
func NewDropFolder(u Uploader, tr JobTracker, logger *zap.Logger) *DropFolder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DropFolder{uploader: u, tracker: tr, logger: logger, submitted: map[string]string{}}
}

// Handle uploads path unless it was already submitted. It is suitable as a
// Watcher onReady callback.
func (d *DropFolder) Handle(path string) {
	if _, err := d.Submit(context.Background(), path); err != nil {
		d.logger.Warn("Drop folder upload failed", zap.String("path", path), zap.Error(err))
	}
}

// Submit uploads path and returns the accepted video name. A path that was
// already submitted returns its earlier name without uploading again.
func (d *DropFolder) Submit(ctx context.Context, path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	id := fileid.PathID(abs)

	d.mu.Lock()
	if name, ok := d.submitted[id]; ok {
		d.mu.Unlock()
		return name, nil
	}
	// Reserve the path so concurrent events do not upload twice.
	d.submitted[id] = ""
	d.mu.Unlock()

	name, err := d.upload(ctx, abs)
	d.mu.Lock()
	if err != nil {
		delete(d.submitted, id)
	} else {
		d.submitted[id] = name
	}
	d.mu.Unlock()
	return name, err
}

func (d *DropFolder) upload(ctx context.Context, abs string) (string, error) {
	f, err := os.Open(abs)
	if err != nil {
		return "", fmt.Errorf("failed to open %s: %w", abs, err)
	}
	defer f.Close()

	acc, err := d.uploader.SubmitUpload(ctx, filepath.Base(abs), f)
	if err != nil {
		return "", err
	}
	d.logger.Info("Drop folder upload accepted",
		zap.String("path", abs),
		zap.String("video_name", acc.VideoName))
	if d.tracker != nil {
		if _, err := d.tracker.Track(acc.VideoName); err != nil {
			d.logger.Warn("Failed to track uploaded video", zap.String("video_name", acc.VideoName), zap.Error(err))
		}
	}
	return acc.VideoName, nil
}

// Submitted returns how many paths have been uploaded.
func (d *DropFolder) Submitted() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, name := range d.submitted {
		if name != "" {
			n++
		}
	}
	return n
}
