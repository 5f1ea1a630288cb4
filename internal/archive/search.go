package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strconv"
	"strings"

	"github.com/hyperjump/archivist/internal/models"
)

// SearchByText runs a text query. An empty VideoNames filter is sent as null.
func (c *Client) SearchByText(ctx context.Context, req *models.SearchRequest) ([]*models.SearchResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if req.IsImage() {
		return nil, &models.ValidationError{Field: "query", Message: "image requests must use SearchByImage"}
	}
	body, err := json.Marshal(models.TextSearchBody{
		Query:         req.Query,
		SearchFrames:  req.SearchFrames,
		SearchObjects: req.SearchObjects,
		MaxResults:    req.MaxResults,
		VideoNames:    req.FilterNames(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal search: %w", err)
	}
	var out models.SearchResponse
	err = c.do(ctx, request{
		op:          "text search",
		method:      http.MethodPost,
		path:        "/api/search/text",
		body:        bytes.NewReader(body),
		contentType: "application/json",
	}, &out)
	if err != nil {
		return nil, err
	}
	return out.Results, nil
}

// SearchByImage runs an image query as a multipart upload. The video_names
// field is comma-joined and omitted when the filter is empty.
func (c *Client) SearchByImage(ctx context.Context, req *models.SearchRequest) ([]*models.SearchResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if !req.IsImage() {
		return nil, &models.ValidationError{Field: "image", Message: "image is required"}
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if err := writeImagePart(w, req.Image); err != nil {
		return nil, err
	}
	fields := [][2]string{
		{"search_frames", strconv.FormatBool(req.SearchFrames)},
		{"search_objects", strconv.FormatBool(req.SearchObjects)},
		{"max_results", strconv.Itoa(req.MaxResults)},
	}
	if names := req.FilterNames(); names != nil {
		fields = append(fields, [2]string{"video_names", strings.Join(names, ",")})
	}
	for _, f := range fields {
		if err := w.WriteField(f[0], f[1]); err != nil {
			return nil, fmt.Errorf("failed to write %s: %w", f[0], err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("failed to finish multipart body: %w", err)
	}

	var out models.SearchResponse
	err := c.do(ctx, request{
		op:          "image search",
		method:      http.MethodPost,
		path:        "/api/search/image",
		body:        &buf,
		contentType: w.FormDataContentType(),
	}, &out)
	if err != nil {
		return nil, err
	}
	return out.Results, nil
}

// Search dispatches to SearchByText or SearchByImage.
func (c *Client) Search(ctx context.Context, req *models.SearchRequest) ([]*models.SearchResult, error) {
	if req.IsImage() {
		return c.SearchByImage(ctx, req)
	}
	return c.SearchByText(ctx, req)
}

func writeImagePart(w *multipart.Writer, img *models.ImageFile) error {
	filename := img.Filename
	if filename == "" {
		filename = "image"
	}
	contentType := img.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="image"; filename="%s"`, quoteEscaper.Replace(filename)))
	h.Set("Content-Type", contentType)
	part, err := w.CreatePart(h)
	if err != nil {
		return fmt.Errorf("failed to create image part: %w", err)
	}
	if _, err := part.Write(img.Data); err != nil {
		return fmt.Errorf("failed to write image part: %w", err)
	}
	return nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")
