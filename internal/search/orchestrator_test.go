package search

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/hyperjump/archivist/internal/models"
)

type call struct {
	req   *models.SearchRequest
	image bool
}

// fakeSearcher answers with respond; when gate is set the first call blocks on it.
type fakeSearcher struct {
	mu      sync.Mutex
	calls   []call
	respond func(req *models.SearchRequest) ([]*models.SearchResult, error)
	gate    chan struct{}
	entered chan struct{}
}

func (f *fakeSearcher) do(req *models.SearchRequest, image bool) ([]*models.SearchResult, error) {
	f.mu.Lock()
	f.calls = append(f.calls, call{req: req, image: image})
	first := len(f.calls) == 1
	gate := f.gate
	f.mu.Unlock()
	if first && gate != nil {
		close(f.entered)
		<-gate
	}
	return f.respond(req)
}

func (f *fakeSearcher) SearchByText(_ context.Context, req *models.SearchRequest) ([]*models.SearchResult, error) {
	return f.do(req, false)
}

func (f *fakeSearcher) SearchByImage(_ context.Context, req *models.SearchRequest) ([]*models.SearchResult, error) {
	return f.do(req, true)
}

func (f *fakeSearcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func results(prefix string, n int) []*models.SearchResult {
	out := make([]*models.SearchResult, n)
	for i := range out {
		out[i] = &models.SearchResult{
			ResultType: models.ResultFrame,
			Similarity: 1 - float64(i)/100,
			URL:        fmt.Sprintf("/%s/%d.jpg", prefix, i),
		}
	}
	return out
}

func TestRunSearch_text(t *testing.T) {
	api := &fakeSearcher{respond: func(req *models.SearchRequest) ([]*models.SearchResult, error) {
		return results("r", 3), nil
	}}
	var states []State
	o := NewOrchestrator(api, WithListener(func(s State) { states = append(states, s) }))

	st, applied := o.RunSearch(context.Background(), Input{Query: " red car ", SearchFrames: true})
	if !applied {
		t.Fatal("search should be applied")
	}
	if st.Phase != PhaseDone || st.Mode != ModeText || st.LastQuery != "red car" || len(st.Results) != 3 {
		t.Errorf("state = %+v", st)
	}
	if st.Generation != 1 {
		t.Errorf("generation = %d", st.Generation)
	}
	if len(states) != 2 || states[0].Phase != PhaseLoading || states[1].Phase != PhaseDone {
		t.Errorf("transitions = %+v", states)
	}
	req := api.calls[0].req
	if req.MaxResults != models.DefaultMaxResults || req.VideoNames != nil {
		t.Errorf("request = %+v", req)
	}
	if !req.SearchFrames || req.SearchObjects {
		t.Errorf("flags = %v/%v", req.SearchFrames, req.SearchObjects)
	}
}

func TestRunSearch_invalidSendsNothing(t *testing.T) {
	api := &fakeSearcher{respond: func(*models.SearchRequest) ([]*models.SearchResult, error) { return nil, nil }}
	o := NewOrchestrator(api)
	before := o.State()

	st, applied := o.RunSearch(context.Background(), Input{Query: "   "})
	if applied {
		t.Error("invalid input must not be applied")
	}
	if api.callCount() != 0 {
		t.Error("no request should be issued")
	}
	if st.Phase != before.Phase || st.Generation != before.Generation {
		t.Errorf("state changed: %+v", st)
	}
	if _, err := o.Prepare(Input{Query: "x", Image: &models.ImageFile{Data: []byte{1}}}); err == nil {
		t.Error("query and image together should be rejected")
	}
}

func TestRunSearch_staleResponseDiscarded(t *testing.T) {
	api := &fakeSearcher{
		gate:    make(chan struct{}),
		entered: make(chan struct{}),
		respond: func(req *models.SearchRequest) ([]*models.SearchResult, error) {
			return results(req.Query, 2), nil
		},
	}
	o := NewOrchestrator(api)

	type outcome struct {
		st      State
		applied bool
	}
	slow := make(chan outcome, 1)
	go func() {
		st, applied := o.RunSearch(context.Background(), Input{Query: "first"})
		slow <- outcome{st, applied}
	}()
	<-api.entered

	st, applied := o.RunSearch(context.Background(), Input{Query: "second"})
	if !applied || st.LastQuery != "second" {
		t.Fatalf("second search = %+v applied=%v", st, applied)
	}

	close(api.gate)
	var first outcome
	select {
	case first = <-slow:
	case <-time.After(2 * time.Second):
		t.Fatal("first search never returned")
	}
	if first.applied {
		t.Error("stale response must not be applied")
	}
	final := o.State()
	if final.LastQuery != "second" || final.Results[0].URL != "/second/0.jpg" {
		t.Errorf("stale response overwrote state: %+v", final)
	}
	if final.Generation != 2 {
		t.Errorf("generation = %d, want 2", final.Generation)
	}
}

func TestRunSearch_errorMessages(t *testing.T) {
	tests := []struct {
		name string
		err  error
		in   Input
		want string
	}{
		{
			name: "detail",
			err:  &models.RequestError{Status: 422, Detail: "query: too short"},
			in:   Input{Query: "x"},
			want: "query: too short",
		},
		{
			name: "text_fallback",
			err:  &models.RequestError{Status: 500},
			in:   Input{Query: "x"},
			want: textSearchFailed,
		},
		{
			name: "image_fallback",
			err:  errors.New("connection reset"),
			in:   Input{Image: &models.ImageFile{Filename: "a.png", ContentType: "image/png", Data: []byte{1}}},
			want: imageSearchFailed,
		},
		{
			name: "timeout",
			err:  &models.TimeoutError{Op: "text search", After: 2 * time.Minute},
			in:   Input{Query: "x"},
			want: "text search timed out after 2m0s",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := &fakeSearcher{respond: func(*models.SearchRequest) ([]*models.SearchResult, error) {
				return nil, tt.err
			}}
			o := NewOrchestrator(api)
			st, applied := o.RunSearch(context.Background(), tt.in)
			if !applied {
				t.Fatal("failure should be applied")
			}
			if st.Phase != PhaseError || st.ErrorMessage != tt.want {
				t.Errorf("state = %s %q, want error %q", st.Phase, st.ErrorMessage, tt.want)
			}
		})
	}
}

func TestRunSearch_errorKeepsPreviousResults(t *testing.T) {
	fail := false
	api := &fakeSearcher{respond: func(*models.SearchRequest) ([]*models.SearchResult, error) {
		if fail {
			return nil, errors.New("down")
		}
		return results("ok", 4), nil
	}}
	o := NewOrchestrator(api)
	o.RunSearch(context.Background(), Input{Query: "a"})
	fail = true
	st, _ := o.RunSearch(context.Background(), Input{Query: "b"})
	if st.Phase != PhaseError || len(st.Results) != 4 {
		t.Errorf("state = %s with %d results", st.Phase, len(st.Results))
	}

	fail = false
	st, _ = o.RunSearch(context.Background(), Input{Query: "c"})
	if st.ErrorMessage != "" {
		t.Errorf("error should be cleared by a new search: %q", st.ErrorMessage)
	}
}

type fakeRecorder struct {
	images []*models.ImageFile
}

func (f *fakeRecorder) Record(_ context.Context, img *models.ImageFile) (*models.RecentImageEntry, error) {
	f.images = append(f.images, img)
	return &models.RecentImageEntry{ID: "1"}, nil
}

func TestRunSearch_imageRecordsRecent(t *testing.T) {
	api := &fakeSearcher{respond: func(*models.SearchRequest) ([]*models.SearchResult, error) {
		return results("img", 1), nil
	}}
	rec := &fakeRecorder{}
	o := NewOrchestrator(api, WithRecentStore(rec))
	o.SetVideoFilter("cats", "dogs")

	img := &models.ImageFile{Filename: "q.png", ContentType: "image/png", Data: []byte{1, 2}}
	st, applied := o.RunSearch(context.Background(), Input{Image: img})
	if !applied || st.Mode != ModeImage || st.LastQuery != "image search" {
		t.Fatalf("state = %+v", st)
	}
	if len(rec.images) != 1 || rec.images[0] != img {
		t.Error("image search should be recorded")
	}
	if !api.calls[0].image {
		t.Error("image input should use the image endpoint")
	}
	if got := api.calls[0].req.VideoNames; len(got) != 2 || got[0] != "cats" {
		t.Errorf("filter = %v", got)
	}

	o.RunSearch(context.Background(), Input{Query: "text"})
	if len(rec.images) != 1 {
		t.Error("text searches must not be recorded")
	}
}

func TestVideoFilter_emptyMeansAll(t *testing.T) {
	o := NewOrchestrator(&fakeSearcher{})
	o.SetVideoFilter()
	if o.VideoFilter() != nil {
		t.Error("empty filter should be nil")
	}
	o.SetVideoFilter("a", " ", "a")
	if got := o.VideoFilter(); len(got) != 1 {
		t.Errorf("filter = %v", got)
	}
}

func TestVideoFilter_toggleSelectAllClear(t *testing.T) {
	o := NewOrchestrator(&fakeSearcher{})
	o.SelectAllVideos([]string{"a", "b", "c"})
	o.ToggleVideos("b")
	if got := o.VideoFilter(); len(got) != 2 || got[0] != "a" || got[1] != "c" {
		t.Errorf("after toggle off = %v", got)
	}
	o.ToggleVideos("b", "a")
	if got := o.VideoFilter(); len(got) != 2 || got[0] != "c" || got[1] != "b" {
		t.Errorf("after toggle = %v", got)
	}
	o.ClearVideoFilter()
	if o.VideoFilter() != nil {
		t.Error("cleared filter should mean all videos")
	}
}

func TestDisplayLimit(t *testing.T) {
	api := &fakeSearcher{respond: func(*models.SearchRequest) ([]*models.SearchResult, error) {
		return results("r", 30), nil
	}}
	o := NewOrchestrator(api)
	o.RunSearch(context.Background(), Input{Query: "x", MaxResults: 30})

	if got := len(o.Visible()); got != models.DefaultDisplayLimit {
		t.Errorf("visible = %d, want %d", got, models.DefaultDisplayLimit)
	}
	if got := o.SetDisplayLimit(1); got != models.MinDisplayLimit {
		t.Errorf("SetDisplayLimit(1) = %d", got)
	}
	visible := o.Visible()
	if len(visible) != models.MinDisplayLimit || visible[0].URL != "/r/0.jpg" || visible[4].URL != "/r/4.jpg" {
		t.Errorf("visible should keep server order: %d items", len(visible))
	}
	if got := o.SetDisplayLimit(500); got != models.MaxDisplayLimit {
		t.Errorf("SetDisplayLimit(500) = %d", got)
	}
	if got := len(o.Visible()); got != 30 {
		t.Errorf("visible = %d, want all 30", got)
	}
}
