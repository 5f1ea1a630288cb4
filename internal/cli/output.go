// Package cli renders archive data for the archivist command line.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/hyperjump/archivist/internal/catalog"
	"github.com/hyperjump/archivist/internal/models"
	"github.com/hyperjump/archivist/internal/recent"
	"github.com/hyperjump/archivist/pkg/utils"
)

// OutputFormat selects how results are written.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputCompact is one line per item.
	OutputCompact OutputFormat = "compact"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

// MaxObjectsShown caps the detected objects listed under a frame result.
const MaxObjectsShown = 5

// maxErrorShown caps pipeline error messages on a job card; tracebacks can be long.
const maxErrorShown = 200

// ParseOutputFormat maps a flag value to an OutputFormat.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch OutputFormat(strings.ToLower(strings.TrimSpace(s))) {
	case "", OutputText:
		return OutputText, nil
	case OutputCompact:
		return OutputCompact, nil
	case OutputJSON:
		return OutputJSON, nil
	}
	return "", fmt.Errorf("unknown output format %q; use text, compact, or json", s)
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// SearchOutput is the JSON shape of a search listing.
type SearchOutput struct {
	Query   string                 `json:"query"`
	Total   int                    `json:"total"`
	Results []*models.SearchResult `json:"results"`
}

// WriteSearchResults writes results for query. Results are shown in the order given.
func WriteSearchResults(w io.Writer, query string, results []*models.SearchResult, format OutputFormat) error {
	if results == nil {
		results = []*models.SearchResult{}
	}
	switch format {
	case OutputJSON:
		return writeJSON(w, SearchOutput{Query: query, Total: len(results), Results: results})
	case OutputCompact:
		for i, r := range results {
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n", i+1, utils.Percent(r.Similarity), resultBadge(r), r.Title(), resultClock(r))
		}
		return nil
	}
	if len(results) == 0 {
		fmt.Fprintf(w, "\nNo results for %q\n", query)
		return nil
	}
	fmt.Fprintf(w, "\nFound %d results for %q\n\n", len(results), query)
	for i, r := range results {
		writeOneResult(w, i+1, r)
	}
	return nil
}

func writeOneResult(w io.Writer, rank int, r *models.SearchResult) {
	fmt.Fprintf(w, "─────────────────────────────────────────────────────────\n")
	fmt.Fprintf(w, "#%d [%s] %s  %s match\n", rank, resultBadge(r), r.Title(), utils.Percent(r.Similarity))
	var where []string
	if clock := resultClock(r); clock != "" {
		where = append(where, "at "+clock)
	}
	if r.Metadata.FrameIndex != nil {
		where = append(where, fmt.Sprintf("frame %d", *r.Metadata.FrameIndex))
	}
	if len(where) > 0 {
		fmt.Fprintf(w, "%s\n", strings.Join(where, ", "))
	}
	if r.ResultType == models.ResultObject && r.Metadata.ClassName != "" {
		fmt.Fprintf(w, "Object: %s\n", objectLabel(r.Metadata.ClassName, r.Metadata.Confidence))
	}
	if objs := topObjects(r.Metadata.Objects, MaxObjectsShown); len(objs) > 0 {
		labels := make([]string, len(objs))
		for i, o := range objs {
			conf := o.Confidence
			labels[i] = objectLabel(o.ClassName, &conf)
		}
		fmt.Fprintf(w, "Objects: %s\n", strings.Join(labels, ", "))
	}
	if r.URL != "" {
		fmt.Fprintf(w, "URL: %s\n", r.URL)
	}
	fmt.Fprintln(w)
}

func resultBadge(r *models.SearchResult) string {
	if r.ResultType == "" {
		return string(models.ResultFrame)
	}
	return string(r.ResultType)
}

func resultClock(r *models.SearchResult) string {
	if r.Metadata.Timestamp == nil {
		return ""
	}
	return utils.FormatClock(*r.Metadata.Timestamp)
}

func objectLabel(class string, conf *float64) string {
	if conf == nil {
		return class
	}
	return fmt.Sprintf("%s (%s)", class, utils.Percent(*conf))
}

// topObjects returns the n most confident objects, keeping backend order on ties.
func topObjects(objs []models.DetectedObject, n int) []models.DetectedObject {
	sorted := append([]models.DetectedObject(nil), objs...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Confidence > sorted[j].Confidence })
	if len(sorted) > n {
		sorted = sorted[:n]
	}
	return sorted
}

// WriteJob writes a single job card.
func WriteJob(w io.Writer, job *models.IngestionJob, format OutputFormat) error {
	switch format {
	case OutputJSON:
		return writeJSON(w, job)
	case OutputCompact:
		writeJobLine(w, job)
		return nil
	}
	fmt.Fprintf(w, "%s\n", job.VideoName)
	fmt.Fprintf(w, "  status:    %s\n", job.Status.Label())
	fmt.Fprintf(w, "  progress:  %s\n", progressText(job.Progress))
	if len(job.StepsCompleted) > 0 {
		fmt.Fprintf(w, "  steps:     %s\n", strings.Join(job.StepsCompleted, ", "))
	}
	fmt.Fprintf(w, "  frames:    %d\n", job.FrameCount)
	fmt.Fprintf(w, "  objects:   %d\n", job.ObjectCount)
	if job.ErrorMessage != "" {
		fmt.Fprintf(w, "  error:     %s\n", utils.Truncate(job.ErrorMessage, maxErrorShown))
	}
	if !job.CreatedAt.IsZero() {
		fmt.Fprintf(w, "  created:   %s\n", formatTime(job.CreatedAt.Time))
	}
	if job.CompletedAt != nil && !job.CompletedAt.IsZero() {
		fmt.Fprintf(w, "  completed: %s\n", formatTime(job.CompletedAt.Time))
	}
	return nil
}

// WriteJobs writes several job cards.
func WriteJobs(w io.Writer, jobs []*models.IngestionJob, format OutputFormat) error {
	if jobs == nil {
		jobs = []*models.IngestionJob{}
	}
	switch format {
	case OutputJSON:
		return writeJSON(w, jobs)
	case OutputCompact:
		for _, j := range jobs {
			writeJobLine(w, j)
		}
		return nil
	}
	if len(jobs) == 0 {
		fmt.Fprintln(w, "No tracked jobs")
		return nil
	}
	for i, j := range jobs {
		if i > 0 {
			fmt.Fprintln(w)
		}
		if err := WriteJob(w, j, OutputText); err != nil {
			return err
		}
	}
	return nil
}

func writeJobLine(w io.Writer, job *models.IngestionJob) {
	line := fmt.Sprintf("%s\t%s\t%s", job.VideoName, job.Status.Label(), progressText(job.Progress))
	if job.ErrorMessage != "" {
		line += "\t" + job.ErrorMessage
	}
	fmt.Fprintln(w, line)
}

// progressText renders a 0-100 progress value rounded to a whole percent.
func progressText(p float64) string {
	if p < 0 {
		p = 0
	}
	if p > 100 {
		p = 100
	}
	return fmt.Sprintf("%.0f%%", p)
}

func formatTime(t time.Time) string {
	return t.Local().Format("2006-01-02 15:04:05")
}

// WriteVideos writes the archive's video list.
func WriteVideos(w io.Writer, videos []models.VideoInfo, format OutputFormat) error {
	if videos == nil {
		videos = []models.VideoInfo{}
	}
	if format == OutputJSON {
		return writeJSON(w, videos)
	}
	if len(videos) == 0 && format == OutputText {
		fmt.Fprintln(w, "No videos in the archive")
		return nil
	}
	for _, v := range videos {
		fmt.Fprintf(w, "%s\t%s\n", v.VideoName, v.Status.Label())
	}
	return nil
}

// RecentOutput is the JSON shape of a recent image entry. Image bytes are
// omitted; ImageBytes reports their size.
type RecentOutput struct {
	ID         string    `json:"id"`
	Filename   string    `json:"filename"`
	CapturedAt time.Time `json:"captured_at"`
	ImageBytes int       `json:"image_bytes"`
	Digest     string    `json:"digest,omitempty"`
}

func recentOutput(e *models.RecentImageEntry) RecentOutput {
	out := RecentOutput{ID: e.ID, Filename: e.Filename, CapturedAt: e.CapturedAt, Digest: e.Digest}
	if img, err := recent.Materialize(e); err == nil {
		out.ImageBytes = len(img.Data)
	}
	return out
}

// WriteRecent writes the recent image list, newest first.
func WriteRecent(w io.Writer, entries []models.RecentImageEntry, format OutputFormat) error {
	switch format {
	case OutputJSON:
		out := make([]RecentOutput, 0, len(entries))
		for i := range entries {
			out = append(out, recentOutput(&entries[i]))
		}
		return writeJSON(w, out)
	case OutputCompact:
		for _, e := range entries {
			fmt.Fprintf(w, "%s\t%s\n", e.ID, e.Filename)
		}
		return nil
	}
	if len(entries) == 0 {
		fmt.Fprintln(w, "No recent image searches")
		return nil
	}
	for i, e := range entries {
		fmt.Fprintf(w, "%2d. %s  %s  (%s)\n", i+1, e.Filename, formatTime(e.CapturedAt), e.ID)
	}
	return nil
}

// WriteResolutions reports video names that did not match the catalog,
// with suggestions when there are any.
func WriteResolutions(w io.Writer, unresolved []catalog.Resolution) {
	for _, r := range unresolved {
		if len(r.Suggestions) == 0 {
			fmt.Fprintf(w, "Unknown video %q\n", r.Input)
			continue
		}
		names := make([]string, len(r.Suggestions))
		for i, s := range r.Suggestions {
			names[i] = s.Name
		}
		fmt.Fprintf(w, "Unknown video %q. Did you mean: %s?\n", r.Input, strings.Join(names, ", "))
	}
}
