package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// JobStatus is a stage of the ingestion pipeline.
type JobStatus string

const (
	StatusPending             JobStatus = "pending"
	StatusDownloading         JobStatus = "downloading"
	StatusExtractingFrames    JobStatus = "extracting_frames"
	StatusDetectingObjects    JobStatus = "detecting_objects"
	StatusComputingEmbeddings JobStatus = "computing_embeddings"
	StatusUploading           JobStatus = "uploading"
	StatusCompleted           JobStatus = "completed"
	StatusFailed              JobStatus = "failed"
)

// IsTerminal reports whether no further transitions are expected.
func (s JobStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Label renders the status for display, e.g. "EXTRACTING FRAMES".
func (s JobStatus) Label() string {
	return strings.ToUpper(strings.ReplaceAll(string(s), "_", " "))
}

// Timestamp accepts RFC3339 as well as the timezone-less ISO-8601 produced by
// Python's datetime.isoformat(). Naive values are interpreted as UTC.
type Timestamp struct {
	time.Time
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05",
}

// UnmarshalJSON implements json.Unmarshaler.
func (t *Timestamp) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("timestamp: %w", err)
	}
	if s == "" {
		t.Time = time.Time{}
		return nil
	}
	for _, layout := range timestampLayouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			t.Time = parsed
			return nil
		}
	}
	return fmt.Errorf("timestamp: unrecognized format %q", s)
}

// MarshalJSON implements json.Marshaler.
func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte(`""`), nil
	}
	return json.Marshal(t.Time.Format(time.RFC3339Nano))
}

// IngestionJob is the backend's view of one video moving through the pipeline.
// VideoName is the unique key.
type IngestionJob struct {
	VideoName      string     `json:"video_name"`
	Status         JobStatus  `json:"status"`
	Progress       float64    `json:"progress"`
	StepsCompleted []string   `json:"steps_completed,omitempty"`
	FrameCount     int        `json:"frame_count"`
	ObjectCount    int        `json:"object_count"`
	ErrorMessage   string     `json:"error_message,omitempty"`
	CreatedAt      Timestamp  `json:"created_at"`
	CompletedAt    *Timestamp `json:"completed_at,omitempty"`
}

// Clone returns a deep copy so snapshots can be handed out safely.
func (j *IngestionJob) Clone() *IngestionJob {
	if j == nil {
		return nil
	}
	c := *j
	c.StepsCompleted = append([]string(nil), j.StepsCompleted...)
	if j.CompletedAt != nil {
		ts := *j.CompletedAt
		c.CompletedAt = &ts
	}
	return &c
}

// SourceType is where the backend fetches a video from.
type SourceType string

const (
	SourceUpload  SourceType = "upload"
	SourceYouTube SourceType = "youtube"
	SourceDrive   SourceType = "drive"
)

// FPS bounds for frame extraction.
const (
	MinFPS = 1
	MaxFPS = 30
)

// URLJob asks the backend to fetch and process a remote video.
type URLJob struct {
	VideoName  string     `json:"video_name"`
	SourceType SourceType `json:"source_type"`
	SourceURL  string     `json:"source_url"`
	FPS        int        `json:"fps"`
	Force      bool       `json:"force"`
}

// Validate normalizes the video name and checks required fields.
func (j *URLJob) Validate() error {
	if strings.TrimSpace(j.VideoName) == "" {
		return &ValidationError{Field: "video_name", Message: "video name is required"}
	}
	if strings.TrimSpace(j.SourceURL) == "" {
		return &ValidationError{Field: "source_url", Message: "video URL is required"}
	}
	j.VideoName = NormalizeVideoName(j.VideoName)
	if j.VideoName == "" {
		return &ValidationError{Field: "video_name", Message: "video name has no usable characters"}
	}
	j.SourceURL = strings.TrimSpace(j.SourceURL)
	switch j.SourceType {
	case "":
		j.SourceType = SourceYouTube
	case SourceYouTube, SourceDrive, SourceUpload:
	default:
		return &ValidationError{Field: "source_type", Message: fmt.Sprintf("unsupported source type %q", j.SourceType)}
	}
	if j.FPS < MinFPS {
		j.FPS = MinFPS
	}
	if j.FPS > MaxFPS {
		j.FPS = MaxFPS
	}
	return nil
}

// Accepted is the acknowledgement of an upload or process request.
type Accepted struct {
	VideoName string `json:"video_name"`
	Message   string `json:"message"`
}
