package server

import (
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/hyperjump/archivist/internal/overlay"
	"go.uber.org/zap"
)

// proxiedHeaders are copied from the archive's stream response.
var proxiedHeaders = []string{
	"Content-Type",
	"Content-Length",
	"Content-Range",
	"Accept-Ranges",
	"Last-Modified",
	"ETag",
}

// handleStream proxies a video stream, passing Range through so players can seek.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	resp, err := s.archive.OpenStream(r.Context(), name, r.Header.Get("Range"))
	if err != nil {
		s.respondErr(w, "stream", err)
		return
	}
	defer resp.Body.Close()
	for _, h := range proxiedHeaders {
		if v := resp.Header.Get(h); v != "" {
			w.Header().Set(h, v)
		}
	}
	w.WriteHeader(resp.StatusCode)
	if _, err := io.Copy(w, resp.Body); err != nil {
		s.logger.Debug("Stream copy ended", zap.String("video_name", name), zap.Error(err))
	}
}

// handleStreamURL returns a direct playback URL, optionally starting at ?t=seconds.
func (s *Server) handleStreamURL(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	var offset float64
	if t := r.URL.Query().Get("t"); t != "" {
		v, err := strconv.ParseFloat(t, 64)
		if err != nil || v < 0 {
			s.respondError(w, http.StatusBadRequest, "t must be a non-negative number of seconds")
			return
		}
		offset = v
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"url": s.archive.StreamURL(name, offset)})
}

type overlayRequest struct {
	Natural    overlay.Size `json:"natural"`
	Display    overlay.Size `json:"display"`
	BBox       []float64    `json:"bbox"`
	ClassName  string       `json:"class_name"`
	Confidence *float64     `json:"confidence,omitempty"`
	Clamp      bool         `json:"clamp"`
}

type overlayResponse struct {
	Visible bool             `json:"visible"`
	Overlay *overlay.Overlay `json:"overlay,omitempty"`
}

// handleOverlay maps a detection box onto the displayed frame size. A box that
// cannot be placed is reported as not visible rather than as an error.
func (s *Server) handleOverlay(w http.ResponseWriter, r *http.Request) {
	var req overlayRequest
	if err := decodeJSON(r, &req); err != nil {
		s.respondErr(w, "overlay", err)
		return
	}
	var opts []overlay.Option
	if req.Clamp {
		opts = append(opts, overlay.WithLabelClamp())
	}
	ov, ok := overlay.Compute(req.Natural, req.Display, req.BBox, overlay.Label(req.ClassName, req.Confidence), opts...)
	if !ok {
		s.respondJSON(w, http.StatusOK, overlayResponse{})
		return
	}
	s.respondJSON(w, http.StatusOK, overlayResponse{Visible: true, Overlay: &ov})
}
