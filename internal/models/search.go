// Package models defines the data exchanged with the archive backend: search
// requests and results, ingestion jobs, recent image entries, and the error taxonomy.
package models

import (
	"strings"
)

// ResultType distinguishes frame hits from detected-object hits.
type ResultType string

const (
	// ResultFrame is a hit anchored to a video timestamp/frame.
	ResultFrame ResultType = "frame"
	// ResultObject is a hit anchored to a detected object within a frame.
	ResultObject ResultType = "object"
)

// Display limit bounds for the result grid.
const (
	MinDisplayLimit     = 5
	MaxDisplayLimit     = 50
	DefaultDisplayLimit = 20
	DefaultMaxResults   = 20
)

// ImageFile is an image held in memory, used both as a search query and as
// the materialized form of a recent image entry.
type ImageFile struct {
	Filename    string
	ContentType string
	Data        []byte
}

// SearchRequest describes one search against the archive. Exactly one of
// Query or Image must be set. An empty VideoNames means "search all videos".
type SearchRequest struct {
	Query         string
	Image         *ImageFile
	SearchFrames  bool
	SearchObjects bool
	MaxResults    int
	VideoNames    []string
}

// IsImage reports whether the request is an image search.
func (r *SearchRequest) IsImage() bool {
	return r.Image != nil
}

// Validate checks the request and normalizes the query text.
// The result-type flags are sent as given, including both false.
func (r *SearchRequest) Validate() error {
	r.Query = strings.TrimSpace(r.Query)
	hasImage := r.Image != nil && len(r.Image.Data) > 0
	switch {
	case r.Query == "" && !hasImage:
		if r.Image != nil {
			return &ValidationError{Field: "image", Message: "image is empty"}
		}
		return &ValidationError{Field: "query", Message: "query cannot be empty"}
	case r.Query != "" && r.Image != nil:
		return &ValidationError{Field: "query", Message: "query text and image are mutually exclusive"}
	}
	if r.MaxResults <= 0 {
		return &ValidationError{Field: "max_results", Message: "must be greater than 0"}
	}
	return nil
}

// FilterNames returns the video-name filter to send, or nil when the filter is empty.
func (r *SearchRequest) FilterNames() []string {
	if len(r.VideoNames) == 0 {
		return nil
	}
	return r.VideoNames
}

// TextSearchBody is the JSON body of POST /api/search/text.
// VideoNames is serialized as null when no filter is active.
type TextSearchBody struct {
	Query         string   `json:"query"`
	SearchFrames  bool     `json:"search_frames"`
	SearchObjects bool     `json:"search_objects"`
	MaxResults    int      `json:"max_results"`
	VideoNames    []string `json:"video_names"`
}

// DetectedObject is one detection listed on a frame result.
type DetectedObject struct {
	ClassName  string  `json:"class_name"`
	Confidence float64 `json:"confidence"`
}

// ResultMetadata carries per-hit details returned by the backend.
type ResultMetadata struct {
	VideoName   string           `json:"video_name"`
	Timestamp   *float64         `json:"timestamp,omitempty"`
	FrameIndex  *int             `json:"frame_index,omitempty"`
	ObjectIndex *int             `json:"object_index,omitempty"`
	BBox        []float64        `json:"bbox,omitempty"`
	ClassName   string           `json:"class_name,omitempty"`
	Confidence  *float64         `json:"confidence,omitempty"`
	Objects     []DetectedObject `json:"objects,omitempty"`
}

// SearchResult is a single ranked hit. Results arrive ordered by similarity
// descending and are never re-sorted by the client.
type SearchResult struct {
	ResultType ResultType     `json:"result_type"`
	Similarity float64        `json:"similarity"`
	URL        string         `json:"url"`
	FrameURL   string         `json:"frame_url,omitempty"`
	Path       string         `json:"path,omitempty"`
	Metadata   ResultMetadata `json:"metadata"`
}

// Title returns the video name, falling back to the last path segment.
func (r *SearchResult) Title() string {
	if r.Metadata.VideoName != "" {
		return r.Metadata.VideoName
	}
	if r.Path != "" {
		parts := strings.Split(r.Path, "/")
		if last := parts[len(parts)-1]; last != "" {
			return last
		}
	}
	return "Untitled"
}

// SearchResponse is the body returned by both search endpoints.
type SearchResponse struct {
	Results []*SearchResult `json:"results"`
}

// TruncateResults returns the first min(limit, len(results)) results in their original order.
func TruncateResults(results []*SearchResult, limit int) []*SearchResult {
	if limit < 0 {
		limit = 0
	}
	if limit >= len(results) {
		return results
	}
	return results[:limit]
}

// ClampDisplayLimit bounds n to [MinDisplayLimit, MaxDisplayLimit].
func ClampDisplayLimit(n int) int {
	if n < MinDisplayLimit {
		return MinDisplayLimit
	}
	if n > MaxDisplayLimit {
		return MaxDisplayLimit
	}
	return n
}
