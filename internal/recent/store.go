// Package recent keeps a bounded, persisted history of images used as search queries.
package recent

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/hyperjump/archivist/internal/fileid"
	"github.com/hyperjump/archivist/internal/models"
	"go.uber.org/zap"
)

// Namespace is the key the history is stored under.
const Namespace = "recentImageSearches"

// DefaultCapacity is the number of entries kept.
const DefaultCapacity = 10

// Store is the recent-image history. Each mutation runs a full
// read-merge-cap-write cycle under one lock.
type Store struct {
	mu       sync.Mutex
	backend  Backend
	capacity int
	logger   *zap.Logger
	now      func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithCapacity sets how many entries are kept. Values below 1 are ignored.
func WithCapacity(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.capacity = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock sets the time source for CapturedAt.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// NewStore returns a Store persisting to backend.
func NewStore(backend Backend, opts ...Option) *Store {
	s := &Store{
		backend:  backend,
		capacity: DefaultCapacity,
		logger:   zap.NewNop(),
		now:      time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Record prepends img to the history and returns the new entry. An earlier
// entry with identical bytes moves to the front with its id kept and a fresh
// capture time; entries beyond capacity are evicted
// oldest first. Only validation failures are returned as errors; persistence
// failures are logged.
func (s *Store) Record(ctx context.Context, img *models.ImageFile) (*models.RecentImageEntry, error) {
	if img == nil || len(img.Data) == 0 {
		return nil, &models.ValidationError{Field: "image", Message: "image is empty"}
	}
	contentType, err := imageContentType(img)
	if err != nil {
		return nil, err
	}

	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	entry := models.RecentImageEntry{
		ID:         id.String(),
		Filename:   img.Filename,
		ImageData:  encodeDataURL(contentType, img.Data),
		CapturedAt: s.now().UTC(),
		Digest:     fileid.ContentDigest(img.Data),
	}
	if entry.Filename == "" {
		entry.Filename = "image"
		if m := mimetype.Lookup(contentType); m != nil {
			entry.Filename += m.Extension()
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entries := s.load(ctx)
	next := make([]models.RecentImageEntry, 0, len(entries)+1)
	next = append(next, entry)
	for _, e := range entries {
		if e.Digest != "" && e.Digest == entry.Digest {
			// Same image: keep its id so listed references stay valid.
			next[0].ID = e.ID
			continue
		}
		next = append(next, e)
	}
	entry = next[0]
	if len(next) > s.capacity {
		s.logger.Debug("Evicting recent images", zap.Int("count", len(next)-s.capacity))
		next = next[:s.capacity]
	}
	s.save(ctx, next)
	return &entry, nil
}

// Remove deletes the entry with id and reports whether it existed.
func (s *Store) Remove(ctx context.Context, id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := s.load(ctx)
	next := entries[:0]
	removed := false
	for _, e := range entries {
		if e.ID == id {
			removed = true
			continue
		}
		next = append(next, e)
	}
	if removed {
		s.save(ctx, next)
	}
	return removed
}

// List returns the entries newest first.
func (s *Store) List(ctx context.Context) []models.RecentImageEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load(ctx)
}

// Get returns the entry with id.
func (s *Store) Get(ctx context.Context, id string) (*models.RecentImageEntry, bool) {
	for _, e := range s.List(ctx) {
		if e.ID == id {
			return &e, true
		}
	}
	return nil, false
}

// Clear removes every entry.
func (s *Store) Clear(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.save(ctx, []models.RecentImageEntry{})
}

// UsageBytes returns the on-disk size of the history, or 0 for in-memory backends.
func (s *Store) UsageBytes() (int64, error) {
	pb, ok := s.backend.(pathsBackend)
	if !ok {
		return 0, nil
	}
	return diskUsageBytes(pb.Paths()...)
}

// Close closes the backend.
func (s *Store) Close() error {
	return s.backend.Close()
}

// load reads the history. Unreadable or corrupt state yields an empty history.
func (s *Store) load(ctx context.Context) []models.RecentImageEntry {
	data, err := s.backend.Load(ctx, Namespace)
	if err != nil {
		s.logger.Warn("Failed to read recent images, starting empty",
			zap.Error(&models.StorageError{Op: "read", Err: err}))
		return nil
	}
	if len(data) == 0 {
		return nil
	}
	var entries []models.RecentImageEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		s.logger.Warn("Recent images are corrupt, starting empty",
			zap.Error(&models.StorageError{Op: "decode", Err: err}))
		return nil
	}
	valid := entries[:0]
	for _, e := range entries {
		if e.ID == "" || !strings.HasPrefix(e.ImageData, "data:") {
			continue
		}
		valid = append(valid, e)
	}
	if len(valid) > s.capacity {
		valid = valid[:s.capacity]
	}
	return valid
}

func (s *Store) save(ctx context.Context, entries []models.RecentImageEntry) {
	data, err := json.Marshal(entries)
	if err != nil {
		s.logger.Warn("Failed to encode recent images", zap.Error(err))
		return
	}
	if err := s.backend.Save(ctx, Namespace, data); err != nil {
		s.logger.Warn("Failed to persist recent images",
			zap.Error(&models.StorageError{Op: "write", Err: err}))
	}
}

// Materialize decodes an entry back into the image it was recorded from.
func Materialize(e *models.RecentImageEntry) (*models.ImageFile, error) {
	contentType, data, err := decodeDataURL(e.ImageData)
	if err != nil {
		return nil, fmt.Errorf("recent image %s: %w", e.ID, err)
	}
	return &models.ImageFile{Filename: e.Filename, ContentType: contentType, Data: data}, nil
}

// imageContentType returns the declared content type, or detects one when
// absent. Non-image content is rejected.
func imageContentType(img *models.ImageFile) (string, error) {
	ct := strings.TrimSpace(img.ContentType)
	if ct == "" || ct == "application/octet-stream" {
		ct = mimetype.Detect(img.Data).String()
	}
	if i := strings.Index(ct, ";"); i >= 0 {
		ct = strings.TrimSpace(ct[:i])
	}
	if !strings.HasPrefix(ct, "image/") {
		return "", &models.ValidationError{Field: "image", Message: fmt.Sprintf("unsupported file type %q, expected an image", ct)}
	}
	return ct, nil
}

func encodeDataURL(contentType string, data []byte) string {
	return "data:" + contentType + ";base64," + base64.StdEncoding.EncodeToString(data)
}

func decodeDataURL(s string) (string, []byte, error) {
	rest, ok := strings.CutPrefix(s, "data:")
	if !ok {
		return "", nil, fmt.Errorf("not a data URL")
	}
	meta, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return "", nil, fmt.Errorf("malformed data URL")
	}
	contentType, isBase64 := strings.CutSuffix(meta, ";base64")
	if !isBase64 {
		return "", nil, fmt.Errorf("data URL is not base64 encoded")
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", nil, fmt.Errorf("failed to decode image data: %w", err)
	}
	return contentType, data, nil
}
