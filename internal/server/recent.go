package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hyperjump/archivist/internal/models"
	"github.com/hyperjump/archivist/internal/recent"
	"github.com/hyperjump/archivist/internal/search"
)

func (s *Server) recentEnabled(w http.ResponseWriter) bool {
	if s.recent == nil {
		s.respondError(w, http.StatusNotImplemented, "recent images not enabled")
		return false
	}
	return true
}

func (s *Server) handleListRecent(w http.ResponseWriter, r *http.Request) {
	if !s.recentEnabled(w) {
		return
	}
	entries := s.recent.List(r.Context())
	if entries == nil {
		entries = []models.RecentImageEntry{}
	}
	s.respondJSON(w, http.StatusOK, entries)
}

func (s *Server) handleRemoveRecent(w http.ResponseWriter, r *http.Request) {
	if !s.recentEnabled(w) {
		return
	}
	id := chi.URLParam(r, "id")
	if !s.recent.Remove(r.Context(), id) {
		s.respondError(w, http.StatusNotFound, "recent image not found")
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"id": id, "status": "removed"})
}

func (s *Server) handleClearRecent(w http.ResponseWriter, r *http.Request) {
	if !s.recentEnabled(w) {
		return
	}
	s.recent.Clear(r.Context())
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

type recentSearchRequest struct {
	SearchFrames  *bool `json:"search_frames"`
	SearchObjects *bool `json:"search_objects"`
	MaxResults    int   `json:"max_results"`
}

// handleRecentSearch repeats an image search from a recent entry.
func (s *Server) handleRecentSearch(w http.ResponseWriter, r *http.Request) {
	if !s.recentEnabled(w) {
		return
	}
	var req recentSearchRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &req); err != nil {
			s.respondErr(w, "recent search", err)
			return
		}
	}
	entry, ok := s.recent.Get(r.Context(), chi.URLParam(r, "id"))
	if !ok {
		s.respondError(w, http.StatusNotFound, "recent image not found")
		return
	}
	img, err := recent.Materialize(entry)
	if err != nil {
		s.respondError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	s.runSearch(w, r, search.Input{
		Image:         img,
		SearchFrames:  flagOrTrue(req.SearchFrames),
		SearchObjects: flagOrTrue(req.SearchObjects),
		MaxResults:    req.MaxResults,
	})
}
