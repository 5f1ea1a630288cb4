package server

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/hyperjump/archivist/internal/archive"
	"github.com/hyperjump/archivist/internal/models"
	"github.com/hyperjump/archivist/internal/tracker"
	"go.uber.org/zap"
)

// maxUploadBytes bounds the in-memory part of an upload; larger files spill to disk.
const maxUploadBytes = 64 << 20

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	jobs := s.tracker.Jobs()
	if jobs == nil {
		jobs = []tracker.Snapshot{}
	}
	s.respondJSON(w, http.StatusOK, jobs)
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	snap, ok := s.tracker.Get(name)
	if !ok {
		s.respondErr(w, "get job", &models.NotFoundError{VideoName: name})
		return
	}
	s.respondJSON(w, http.StatusOK, snap)
}

// guardSubmission refuses new work while a tracked job is still processing,
// unless the caller forces it.
func (s *Server) guardSubmission(w http.ResponseWriter, r *http.Request) bool {
	force, _ := strconv.ParseBool(r.URL.Query().Get("force"))
	if !force && s.tracker.Processing() {
		s.respondError(w, http.StatusConflict, "a video is still processing; retry with force=true to submit anyway")
		return false
	}
	return true
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if !s.guardSubmission(w, r) {
		return
	}
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid multipart body")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "file is required")
		return
	}
	defer file.Close()

	s.logger.Debug("upload request", zap.String("filename", header.Filename), zap.Int64("size", header.Size))
	acc, err := s.archive.SubmitUpload(r.Context(), header.Filename, file)
	if err != nil {
		s.respondErr(w, "upload", err)
		return
	}
	s.track(w, acc)
}

func (s *Server) handleProcessURL(w http.ResponseWriter, r *http.Request) {
	if !s.guardSubmission(w, r) {
		return
	}
	var job models.URLJob
	if err := decodeJSON(r, &job); err != nil {
		s.respondErr(w, "process url", err)
		return
	}
	if job.VideoName == "" {
		job.VideoName = archive.VideoNameFromURL(job.SourceURL)
	}
	acc, err := s.archive.SubmitURLJob(r.Context(), &job)
	if err != nil {
		s.respondErr(w, "process url", err)
		return
	}
	s.track(w, acc)
}

type acceptedResponse struct {
	*models.Accepted
	Job *tracker.Snapshot `json:"job,omitempty"`
}

func (s *Server) track(w http.ResponseWriter, acc *models.Accepted) {
	resp := acceptedResponse{Accepted: acc}
	snap, err := s.tracker.Track(acc.VideoName)
	if err != nil {
		s.logger.Warn("Failed to track accepted video", zap.String("video_name", acc.VideoName), zap.Error(err))
	} else {
		resp.Job = &snap
	}
	s.respondJSON(w, http.StatusAccepted, resp)
}

func (s *Server) handleCloseJob(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if err := s.tracker.Close(r.Context(), name); err != nil {
		s.respondErr(w, "close job", err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"video_name": models.NormalizeVideoName(name), "status": "closed"})
}

func (s *Server) handleDeleteJob(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if err := s.tracker.Delete(r.Context(), name); err != nil {
		s.respondErr(w, "delete job", err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"video_name": models.NormalizeVideoName(name), "status": "deleted"})
}
