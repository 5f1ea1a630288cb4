// Package catalog indexes the archive's video names so user-typed filter
// entries can be resolved to exact names, with suggestions for near misses.
package catalog

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	blevequery "github.com/blevesearch/bleve/v2/search/query"
	"github.com/hyperjump/archivist/internal/models"
	"go.uber.org/zap"
)

// Lister returns the videos known to the backend.
type Lister interface {
	ListVideos(ctx context.Context) ([]models.VideoInfo, error)
}

// videoDoc is the indexed form of a video.
type videoDoc struct {
	Name   string `json:"name"`
	Words  string `json:"words"`
	Status string `json:"status"`
}

// Catalog is an in-memory index of video names. It is safe for concurrent use.
type Catalog struct {
	maxDistance    int
	maxSuggestions int
	logger         *zap.Logger

	mu     sync.RWMutex
	index  bleve.Index
	videos map[string]models.JobStatus
}

// Option configures a Catalog.
type Option func(*Catalog)

// WithMaxDistance sets the largest edit distance offered as a suggestion.
func WithMaxDistance(d int) Option {
	return func(c *Catalog) {
		if d > 0 {
			c.maxDistance = d
		}
	}
}

// WithMaxSuggestions caps the suggestions returned per entry.
func WithMaxSuggestions(n int) Option {
	return func(c *Catalog) {
		if n > 0 {
			c.maxSuggestions = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Catalog) {
		if l != nil {
			c.logger = l
		}
	}
}

// New returns an empty catalog.
func New(opts ...Option) (*Catalog, error) {
	c := &Catalog{
		maxDistance:    3,
		maxSuggestions: 3,
		logger:         zap.NewNop(),
		videos:         map[string]models.JobStatus{},
	}
	for _, o := range opts {
		o(c)
	}
	idx, err := newIndex()
	if err != nil {
		return nil, err
	}
	c.index = idx
	return c, nil
}

func newIndex() (bleve.Index, error) {
	im := bleve.NewIndexMapping()
	docMapping := bleve.NewDocumentMapping()

	nameField := bleve.NewTextFieldMapping()
	nameField.Analyzer = keyword.Name
	docMapping.AddFieldMappingsAt("name", nameField)

	wordsField := bleve.NewTextFieldMapping()
	wordsField.Analyzer = standard.Name
	docMapping.AddFieldMappingsAt("words", wordsField)

	statusField := bleve.NewKeywordFieldMapping()
	docMapping.AddFieldMappingsAt("status", statusField)

	im.AddDocumentMapping("video", docMapping)
	im.DefaultType = "video"
	im.DefaultMapping = docMapping

	idx, err := bleve.NewMemOnly(im)
	if err != nil {
		return nil, fmt.Errorf("failed to create video index: %w", err)
	}
	return idx, nil
}

// Refresh replaces the catalog with the backend's current video list.
func (c *Catalog) Refresh(ctx context.Context, l Lister) error {
	videos, err := l.ListVideos(ctx)
	if err != nil {
		return fmt.Errorf("failed to list videos: %w", err)
	}
	return c.Load(videos)
}

// Load replaces the catalog contents with videos.
func (c *Catalog) Load(videos []models.VideoInfo) error {
	idx, err := newIndex()
	if err != nil {
		return err
	}
	batch := idx.NewBatch()
	byName := make(map[string]models.JobStatus, len(videos))
	for _, v := range videos {
		if v.VideoName == "" {
			continue
		}
		byName[v.VideoName] = v.Status
		doc := videoDoc{Name: v.VideoName, Words: splitWords(v.VideoName), Status: string(v.Status)}
		if err := batch.Index(v.VideoName, doc); err != nil {
			_ = idx.Close()
			return fmt.Errorf("failed to index %s: %w", v.VideoName, err)
		}
	}
	if err := idx.Batch(batch); err != nil {
		_ = idx.Close()
		return fmt.Errorf("failed to index videos: %w", err)
	}

	c.mu.Lock()
	old := c.index
	c.index = idx
	c.videos = byName
	c.mu.Unlock()
	if old != nil {
		_ = old.Close()
	}
	c.logger.Debug("Video catalog loaded", zap.Int("videos", len(byName)))
	return nil
}

// Names returns every video name, sorted. When status is non-empty only
// videos with that status are returned.
func (c *Catalog) Names(status models.JobStatus) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.videos))
	for name, s := range c.videos {
		if status == "" || s == status {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// Status returns the status of a known video.
func (c *Catalog) Status(name string) (models.JobStatus, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.videos[name]
	return s, ok
}

// Len returns the number of videos in the catalog.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.videos)
}

// Close releases the index.
func (c *Catalog) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.index == nil {
		return nil
	}
	err := c.index.Close()
	c.index = nil
	return err
}

// candidates returns names the index considers close to input.
func (c *Catalog) candidates(input string) ([]string, error) {
	terms := strings.Fields(splitWords(input))
	queries := make([]blevequery.Query, 0, len(terms)*2+1)
	prefix := bleve.NewPrefixQuery(input)
	prefix.SetField("name")
	queries = append(queries, prefix)
	for _, term := range terms {
		fq := bleve.NewFuzzyQuery(term)
		fq.SetFuzziness(2)
		fq.SetField("words")
		queries = append(queries, fq)
		pq := bleve.NewPrefixQuery(term)
		pq.SetField("words")
		queries = append(queries, pq)
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.index == nil {
		return nil, fmt.Errorf("catalog is closed")
	}
	req := bleve.NewSearchRequest(bleve.NewDisjunctionQuery(queries...))
	req.Size = 50
	res, err := c.index.Search(req)
	if err != nil {
		return nil, fmt.Errorf("video index search failed: %w", err)
	}
	out := make([]string, len(res.Hits))
	for i, hit := range res.Hits {
		out[i] = hit.ID
	}
	return out, nil
}

// splitWords turns a video name into space-separated words for the analyzer.
func splitWords(name string) string {
	return strings.NewReplacer("_", " ", "-", " ").Replace(strings.ToLower(name))
}
