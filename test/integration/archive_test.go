// Package integration exercises the client components together against an
// in-process archive backend.
package integration

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hyperjump/archivist/internal/archive"
	"github.com/hyperjump/archivist/internal/catalog"
	"github.com/hyperjump/archivist/internal/models"
	"github.com/hyperjump/archivist/internal/recent"
	"github.com/hyperjump/archivist/internal/search"
	"github.com/hyperjump/archivist/internal/tracker"
)

var pipeline = []models.JobStatus{
	models.StatusPending,
	models.StatusExtractingFrames,
	models.StatusDetectingObjects,
	models.StatusComputingEmbeddings,
	models.StatusUploading,
	models.StatusCompleted,
}

// archiveBackend advances each uploaded video one pipeline stage per status poll.
type archiveBackend struct {
	mu     sync.Mutex
	stages map[string]int
	last   models.TextSearchBody
}

func (b *archiveBackend) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/videos/upload", func(w http.ResponseWriter, r *http.Request) {
		_, header, err := r.FormFile("file")
		if err != nil {
			w.WriteHeader(http.StatusUnprocessableEntity)
			io.WriteString(w, `{"detail":[{"loc":["body","file"],"msg":"field required"}]}`)
			return
		}
		name := models.VideoNameFromFilename(header.Filename)
		b.mu.Lock()
		b.stages[name] = 0
		b.mu.Unlock()
		fmt.Fprintf(w, `{"video_name":%q,"message":"Video uploaded, processing started"}`, name)
	})
	mux.HandleFunc("GET /api/videos/status/{name}", func(w http.ResponseWriter, r *http.Request) {
		name := r.PathValue("name")
		b.mu.Lock()
		stage, ok := b.stages[name]
		if ok && stage < len(pipeline)-1 {
			b.stages[name] = stage + 1
		}
		b.mu.Unlock()
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			io.WriteString(w, `{"detail":"Video not found"}`)
			return
		}
		status := pipeline[stage]
		progress := float64(stage) * 100 / float64(len(pipeline)-1)
		fmt.Fprintf(w, `{"video_name":%q,"status":%q,"progress":%f,"frame_count":%d,"created_at":"2024-05-01T10:00:00.123456"}`,
			name, status, progress, stage*10)
	})
	mux.HandleFunc("GET /api/videos/list", func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		defer b.mu.Unlock()
		var videos []map[string]interface{}
		for name, stage := range b.stages {
			videos = append(videos, map[string]interface{}{"video_name": name, "status": pipeline[stage], "duration": 12.5})
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"videos": videos})
	})
	mux.HandleFunc("POST /api/search/text", func(w http.ResponseWriter, r *http.Request) {
		var body models.TextSearchBody
		_ = json.NewDecoder(r.Body).Decode(&body)
		b.mu.Lock()
		b.last = body
		b.mu.Unlock()
		io.WriteString(w, `{"results":[
			{"result_type":"frame","similarity":0.93,"url":"/frames/1.jpg","metadata":{"video_name":"summer_trip","timestamp":61,"frame_index":61}},
			{"result_type":"object","similarity":0.71,"url":"/objects/2.jpg","metadata":{"video_name":"summer_trip","bbox":[10,20,110,220],"class_name":"dog","confidence":0.88}}
		]}`)
	})
	mux.HandleFunc("POST /api/search/image", func(w http.ResponseWriter, r *http.Request) {
		if _, _, err := r.FormFile("image"); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		io.WriteString(w, `{"results":[]}`)
	})
	mux.HandleFunc("DELETE /api/videos/{name}", func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		delete(b.stages, r.PathValue("name"))
		b.mu.Unlock()
		io.WriteString(w, `{"message":"deleted"}`)
	})
	return mux
}

func (b *archiveBackend) lastSearch() models.TextSearchBody {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.last
}

func TestIntegration_UploadTrackSearchDelete(t *testing.T) {
	backend := &archiveBackend{stages: map[string]int{}}
	srv := httptest.NewServer(backend.handler())
	defer srv.Close()
	ctx := context.Background()

	client := archive.NewClient(srv.URL, archive.WithTimeout(5*time.Second))

	acc, err := client.SubmitUpload(ctx, "Summer Trip.mp4", strings.NewReader("not really a video"))
	if err != nil {
		t.Fatal(err)
	}
	if acc.VideoName != "summer_trip" {
		t.Fatalf("video name = %s", acc.VideoName)
	}

	var mu sync.Mutex
	var seen []models.JobStatus
	done := make(chan *models.IngestionJob, 1)
	tr := tracker.New(client,
		tracker.WithPollInterval(5*time.Millisecond),
		tracker.WithRetireDelay(time.Hour),
		tracker.WithListener(func(ev tracker.Event) {
			switch ev.Type {
			case tracker.EventProgress:
				mu.Lock()
				seen = append(seen, ev.Job.Status)
				mu.Unlock()
			case tracker.EventTerminal:
				done <- ev.Job
			}
		}))
	defer tr.Shutdown()

	if _, err := tr.Track(acc.VideoName); err != nil {
		t.Fatal(err)
	}
	select {
	case job := <-done:
		if job.Status != models.StatusCompleted || job.Progress != 100 {
			t.Errorf("final job = %+v", job)
		}
		if job.CreatedAt.IsZero() {
			t.Error("created_at should parse from a naive timestamp")
		}
	case <-time.After(3 * time.Second):
		t.Fatal("job never completed")
	}
	mu.Lock()
	if len(seen) != len(pipeline) {
		t.Errorf("progress events = %v, want one per stage", seen)
	}
	mu.Unlock()

	cat, err := catalog.New()
	if err != nil {
		t.Fatal(err)
	}
	defer cat.Close()
	if err := cat.Refresh(ctx, client); err != nil {
		t.Fatal(err)
	}
	names, misses := cat.ResolveAll([]string{"Summer Trip", "sumer_trip"})
	if len(names) != 1 || names[0] != "summer_trip" {
		t.Errorf("resolved = %v", names)
	}
	if len(misses) != 1 || len(misses[0].Suggestions) == 0 || misses[0].Suggestions[0].Name != "summer_trip" {
		t.Errorf("misses = %+v", misses)
	}

	dbPath := filepath.Join(t.TempDir(), "recent.db")
	sqliteBackend, err := recent.NewSQLiteBackend(dbPath)
	if err != nil {
		t.Fatal(err)
	}
	store := recent.NewStore(sqliteBackend)
	orch := search.NewOrchestrator(client, search.WithRecentStore(store), search.WithDisplayLimit(5))
	orch.SetVideoFilter(names...)

	st, applied := orch.RunSearch(ctx, search.Input{Query: "dog in the park", SearchFrames: true, SearchObjects: true})
	if !applied || st.Phase != search.PhaseDone || len(st.Results) != 2 {
		t.Fatalf("state = %+v", st)
	}
	if got := backend.lastSearch(); len(got.VideoNames) != 1 || got.VideoNames[0] != "summer_trip" || !got.SearchFrames || !got.SearchObjects {
		t.Errorf("backend request = %+v", got)
	}
	if *st.Results[0].Metadata.Timestamp != 61 || st.Results[1].Metadata.BBox[3] != 220 {
		t.Errorf("results = %+v", st.Results)
	}

	png := []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x06\x00\x00\x00")
	st, _ = orch.RunSearch(ctx, search.Input{Image: &models.ImageFile{Filename: "query.png", Data: png}, SearchFrames: true})
	if st.Phase != search.PhaseDone || st.LastQuery != "image search" || len(st.Results) != 0 {
		t.Errorf("image search state = %+v", st)
	}
	_ = store.Close()

	reopened, err := recent.NewSQLiteBackend(dbPath)
	if err != nil {
		t.Fatal(err)
	}
	store = recent.NewStore(reopened)
	defer store.Close()
	entries := store.List(ctx)
	if len(entries) != 1 || entries[0].Filename != "query.png" {
		t.Fatalf("recent after reopen = %+v", entries)
	}
	img, err := recent.Materialize(&entries[0])
	if err != nil || string(img.Data) != string(png) || img.ContentType != "image/png" {
		t.Errorf("materialized = %+v, %v", img, err)
	}

	if err := tr.Delete(ctx, "summer_trip"); err != nil {
		t.Fatal(err)
	}
	if _, ok := tr.Get("summer_trip"); ok {
		t.Error("deleted job should no longer be tracked")
	}
	if _, err := client.GetJobStatus(ctx, "summer_trip"); !models.IsNotFound(err) {
		t.Errorf("status after delete = %v, want not found", err)
	}
}
