package server

import (
	"io"
	"net/http"
	"strconv"

	"github.com/hyperjump/archivist/internal/catalog"
	"github.com/hyperjump/archivist/internal/models"
	"github.com/hyperjump/archivist/internal/search"
	"go.uber.org/zap"
)

// maxImageBytes bounds an uploaded query image.
const maxImageBytes = 32 << 20

// searchResponse is the search slot as the UI renders it.
type searchResponse struct {
	search.State
	Visible      []*models.SearchResult `json:"visible"`
	DisplayLimit int                    `json:"display_limit"`
	VideoFilter  []string               `json:"video_filter"`
}

func (s *Server) searchView(st search.State) searchResponse {
	visible := models.TruncateResults(st.Results, s.search.DisplayLimit())
	filter := s.search.VideoFilter()
	if filter == nil {
		filter = []string{}
	}
	return searchResponse{State: st, Visible: visible, DisplayLimit: s.search.DisplayLimit(), VideoFilter: filter}
}

// Omitted result-type flags default to true; explicit false is kept.
type textSearchRequest struct {
	Query         string `json:"query"`
	SearchFrames  *bool  `json:"search_frames"`
	SearchObjects *bool  `json:"search_objects"`
	MaxResults    int    `json:"max_results"`
}

func flagOrTrue(b *bool) bool {
	return b == nil || *b
}

func (s *Server) handleSearchText(w http.ResponseWriter, r *http.Request) {
	var req textSearchRequest
	if err := decodeJSON(r, &req); err != nil {
		s.respondErr(w, "text search", err)
		return
	}
	in := search.Input{
		Query:         req.Query,
		SearchFrames:  flagOrTrue(req.SearchFrames),
		SearchObjects: flagOrTrue(req.SearchObjects),
		MaxResults:    req.MaxResults,
	}
	s.runSearch(w, r, in)
}

func (s *Server) handleSearchImage(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxImageBytes); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid multipart body")
		return
	}
	file, header, err := r.FormFile("image")
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "image is required")
		return
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "failed to read image")
		return
	}
	maxResults, _ := strconv.Atoi(r.FormValue("max_results"))
	in := search.Input{
		Image: &models.ImageFile{
			Filename:    header.Filename,
			ContentType: header.Header.Get("Content-Type"),
			Data:        data,
		},
		SearchFrames:  formBool(r, "search_frames"),
		SearchObjects: formBool(r, "search_objects"),
		MaxResults:    maxResults,
	}
	s.runSearch(w, r, in)
}

// formBool reads a boolean form field, true when absent or unparsable.
func formBool(r *http.Request, key string) bool {
	b, err := strconv.ParseBool(r.FormValue(key))
	if err != nil {
		return true
	}
	return b
}

// runSearch validates in, then runs it through the search slot. A response
// superseded by a newer search still returns the current state.
func (s *Server) runSearch(w http.ResponseWriter, r *http.Request, in search.Input) {
	if _, err := s.search.Prepare(in); err != nil {
		s.respondErr(w, "search", err)
		return
	}
	st, applied := s.search.RunSearch(r.Context(), in)
	if !applied {
		s.logger.Debug("Search superseded", zap.Uint64("generation", st.Generation))
	}
	s.respondJSON(w, http.StatusOK, s.searchView(st))
}

func (s *Server) handleSearchState(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, s.searchView(s.search.State()))
}

// Filter update modes. An empty mode means filterSet.
const (
	filterSet    = "set"
	filterToggle = "toggle"
	filterAll    = "all"
	filterNone   = "none"
)

type filterRequest struct {
	Mode   string   `json:"mode,omitempty"`
	Videos []string `json:"videos"`
}

type filterResponse struct {
	Videos     []string             `json:"videos"`
	All        bool                 `json:"all"`
	Unresolved []catalog.Resolution `json:"unresolved,omitempty"`
	Error      string               `json:"error,omitempty"`
}

func (s *Server) handleGetFilter(w http.ResponseWriter, r *http.Request) {
	names := s.search.VideoFilter()
	if names == nil {
		names = []string{}
	}
	s.respondJSON(w, http.StatusOK, filterResponse{Videos: names, All: len(names) == 0})
}

// handleSetFilter updates the video filter. "set" replaces it with the given
// videos, "toggle" flips each one, "all" selects every completed video in the
// catalog and "none" clears it. Names are checked against the catalog when one
// is loaded; unknown names reject the whole update so a typo never widens the
// search to every video.
func (s *Server) handleSetFilter(w http.ResponseWriter, r *http.Request) {
	var req filterRequest
	if err := decodeJSON(r, &req); err != nil {
		s.respondErr(w, "set filter", err)
		return
	}
	switch req.Mode {
	case "", filterSet, filterToggle:
	case filterAll:
		var available []string
		if s.catalog != nil {
			available = s.catalog.Names(models.StatusCompleted)
		}
		s.search.SelectAllVideos(available)
		s.handleGetFilter(w, r)
		return
	case filterNone:
		s.search.ClearVideoFilter()
		s.handleGetFilter(w, r)
		return
	default:
		s.respondError(w, http.StatusBadRequest, "unknown filter mode: "+req.Mode)
		return
	}
	names := req.Videos
	if s.catalog != nil && s.catalog.Len() > 0 && len(names) > 0 {
		resolved, misses := s.catalog.ResolveAll(names)
		if len(misses) > 0 {
			s.respondJSON(w, http.StatusBadRequest, filterResponse{
				Videos:     s.search.VideoFilter(),
				Unresolved: misses,
				Error:      "unknown video names",
			})
			return
		}
		names = resolved
	}
	if req.Mode == filterToggle {
		s.search.ToggleVideos(names...)
	} else {
		s.search.SetVideoFilter(names...)
	}
	s.handleGetFilter(w, r)
}

type limitRequest struct {
	Limit int `json:"limit"`
}

func (s *Server) handleSetLimit(w http.ResponseWriter, r *http.Request) {
	var req limitRequest
	if err := decodeJSON(r, &req); err != nil {
		s.respondErr(w, "set limit", err)
		return
	}
	applied := s.search.SetDisplayLimit(req.Limit)
	s.respondJSON(w, http.StatusOK, map[string]int{"limit": applied})
}

// handleListVideos lists the archive and refreshes the name catalog.
func (s *Server) handleListVideos(w http.ResponseWriter, r *http.Request) {
	videos, err := s.archive.ListVideos(r.Context())
	if err != nil {
		s.respondErr(w, "list videos", err)
		return
	}
	if s.catalog != nil {
		if err := s.catalog.Load(videos); err != nil {
			s.logger.Warn("Failed to refresh video catalog", zap.Error(err))
		}
	}
	status := models.JobStatus(r.URL.Query().Get("status"))
	out := make([]models.VideoInfo, 0, len(videos))
	for _, v := range videos {
		if status == "" || v.Status == status {
			out = append(out, v)
		}
	}
	s.respondJSON(w, http.StatusOK, out)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := map[string]interface{}{"status": "ok"}
	if s.tracker != nil {
		resp["tracked_jobs"] = len(s.tracker.Jobs())
	}
	if s.recent != nil {
		if n, err := s.recent.UsageBytes(); err == nil {
			resp["recent_usage_bytes"] = n
		}
	}
	backend, err := s.archive.Health(r.Context())
	if err != nil {
		resp["status"] = "degraded"
		resp["error"] = err.Error()
		s.respondJSON(w, statusFor(err), resp)
		return
	}
	resp["archive"] = backend
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleWatchDirectoriesList(w http.ResponseWriter, r *http.Request) {
	if s.watch == nil {
		s.respondError(w, http.StatusNotImplemented, "watch not enabled")
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"directories": s.watch.Directories()})
}
