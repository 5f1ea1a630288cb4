package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/hyperjump/archivist/internal/models"
	"go.uber.org/zap"
)

// ListVideoNames returns the names of videos with the given status.
// An empty status lists every video.
func (c *Client) ListVideoNames(ctx context.Context, status models.JobStatus) ([]string, error) {
	var q url.Values
	if status != "" {
		q = url.Values{"status": {string(status)}}
	}
	var out struct {
		VideoNames []string `json:"video_names"`
	}
	err := c.do(ctx, request{op: "list video names", method: http.MethodGet, path: "/api/videos/names", query: q}, &out)
	if err != nil {
		return nil, err
	}
	return out.VideoNames, nil
}

// ListVideos returns every video the backend knows about.
func (c *Client) ListVideos(ctx context.Context) ([]models.VideoInfo, error) {
	var out struct {
		Videos []models.VideoInfo `json:"videos"`
	}
	if err := c.do(ctx, request{op: "list videos", method: http.MethodGet, path: "/api/videos/list"}, &out); err != nil {
		return nil, err
	}
	return out.Videos, nil
}

// GetJobStatus returns the ingestion state of one video.
func (c *Client) GetJobStatus(ctx context.Context, videoName string) (*models.IngestionJob, error) {
	if videoName == "" {
		return nil, &models.ValidationError{Field: "video_name", Message: "video name is required"}
	}
	var job models.IngestionJob
	err := c.do(ctx, request{
		op:     "job status",
		method: http.MethodGet,
		path:   "/api/videos/status/" + escapeName(videoName),
	}, &job)
	if err != nil {
		return nil, notFound(err, videoName)
	}
	if job.VideoName == "" {
		job.VideoName = videoName
	}
	return &job, nil
}

// SubmitUpload streams a video file to the backend. The accepted name is the
// normalized filename without its extension, which is what the backend keys
// the job by.
func (c *Client) SubmitUpload(ctx context.Context, filename string, r io.Reader) (*models.Accepted, error) {
	name := models.VideoNameFromFilename(filename)
	if name == "" {
		return nil, &models.ValidationError{Field: "file", Message: "a video file is required"}
	}

	pr, pw := io.Pipe()
	w := multipart.NewWriter(pw)
	go func() {
		part, err := w.CreateFormFile("file", filename)
		if err == nil {
			_, err = io.Copy(part, r)
		}
		if err == nil {
			err = w.Close()
		}
		pw.CloseWithError(err)
	}()

	var out models.Accepted
	err := c.do(ctx, request{
		op:          "upload",
		method:      http.MethodPost,
		path:        "/api/videos/upload",
		body:        pr,
		contentType: w.FormDataContentType(),
	}, &out)
	_ = pr.Close()
	if err != nil {
		return nil, err
	}
	if out.VideoName == "" {
		out.VideoName = name
	}
	c.logger.Info("Upload accepted", zap.String("video_name", out.VideoName))
	return &out, nil
}

// SubmitURLJob asks the backend to fetch and process a remote video.
// The job is validated and its name normalized before sending.
func (c *Client) SubmitURLJob(ctx context.Context, job *models.URLJob) (*models.Accepted, error) {
	if err := job.Validate(); err != nil {
		return nil, err
	}
	body, err := json.Marshal(job)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal job: %w", err)
	}
	var out models.Accepted
	err = c.do(ctx, request{
		op:          "process",
		method:      http.MethodPost,
		path:        "/api/videos/process",
		body:        bytes.NewReader(body),
		contentType: "application/json",
	}, &out)
	if err != nil {
		return nil, err
	}
	if out.VideoName == "" {
		out.VideoName = job.VideoName
	}
	c.logger.Info("Processing job accepted",
		zap.String("video_name", out.VideoName),
		zap.String("source_type", string(job.SourceType)))
	return &out, nil
}

// DeleteVideo removes a video and its indexed data. Only completed or failed
// videos can be deleted; the status is checked first.
func (c *Client) DeleteVideo(ctx context.Context, videoName string) error {
	job, err := c.GetJobStatus(ctx, videoName)
	if err != nil {
		return err
	}
	if !job.Status.IsTerminal() {
		return fmt.Errorf("cannot delete %s (%s): %w", videoName, job.Status, models.ErrJobNotTerminal)
	}
	err = c.do(ctx, request{
		op:     "delete",
		method: http.MethodDelete,
		path:   "/api/videos/" + escapeName(videoName),
	}, nil)
	if err != nil {
		return notFound(err, videoName)
	}
	c.logger.Info("Video deleted", zap.String("video_name", videoName))
	return nil
}

// StreamURL returns a playback URL for a video. The query carries a
// cache-busting timestamp; a positive offset becomes a media fragment so
// players start at that second.
func (c *Client) StreamURL(videoName string, offsetSeconds float64) string {
	u := c.endpoint("/api/videos/stream/"+escapeName(videoName), url.Values{
		"t": {strconv.FormatInt(c.now().UnixMilli(), 10)},
	})
	if offsetSeconds > 0 {
		u += "#t=" + strconv.FormatFloat(offsetSeconds, 'f', -1, 64)
	}
	return u
}

// OpenStream opens the media stream for proxying. rangeHeader is passed
// through when set. No deadline is applied beyond ctx; the caller must close
// the response body.
func (c *Client) OpenStream(ctx context.Context, videoName, rangeHeader string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint("/api/videos/stream/"+escapeName(videoName), nil), nil)
	if err != nil {
		return nil, fmt.Errorf("stream: failed to build request: %w", err)
	}
	if rangeHeader != "" {
		req.Header.Set("Range", rangeHeader)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("stream: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		return nil, notFound(c.requestError(request{op: "stream"}, resp), videoName)
	}
	return resp, nil
}

// notFound converts a 404 RequestError into a NotFoundError for videoName.
func notFound(err error, videoName string) error {
	var re *models.RequestError
	if errors.As(err, &re) && re.Status == http.StatusNotFound {
		return &models.NotFoundError{VideoName: videoName}
	}
	return err
}

// VideoNameFromURL suggests a video name for a remote source, used when the
// caller did not provide one.
func VideoNameFromURL(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return ""
	}
	if v := u.Query().Get("v"); v != "" {
		return models.NormalizeVideoName(v)
	}
	segs := strings.Split(strings.Trim(u.Path, "/"), "/")
	return models.VideoNameFromFilename(segs[len(segs)-1])
}
