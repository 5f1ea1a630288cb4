// Package search drives one logical search slot: it validates input, issues
// text or image searches against the archive, and keeps the derived state.
package search

import (
	"context"
	"errors"
	"sync"

	"github.com/hyperjump/archivist/internal/models"
	"go.uber.org/zap"
)

// Phase is the lifecycle stage of the search slot.
type Phase string

const (
	PhaseIdle    Phase = "idle"
	PhaseLoading Phase = "loading"
	PhaseError   Phase = "error"
	PhaseDone    Phase = "done"
)

// Mode is the kind of query last issued.
type Mode string

const (
	ModeText  Mode = "text"
	ModeImage Mode = "image"
)

// Fallback messages when the backend gives no detail.
const (
	textSearchFailed  = "Failed to search. Please try again."
	imageSearchFailed = "Failed to search by image. Please try again."
)

// imageQueryLabel is shown as the query of an image search.
const imageQueryLabel = "image search"

// State is a snapshot of the search slot. Results keep server order.
type State struct {
	Phase        Phase                  `json:"phase"`
	Mode         Mode                   `json:"mode"`
	LastQuery    string                 `json:"last_query"`
	Results      []*models.SearchResult `json:"results"`
	ErrorMessage string                 `json:"error_message,omitempty"`
	Generation   uint64                 `json:"generation"`
}

// Searcher runs searches against the archive.
type Searcher interface {
	SearchByText(ctx context.Context, req *models.SearchRequest) ([]*models.SearchResult, error)
	SearchByImage(ctx context.Context, req *models.SearchRequest) ([]*models.SearchResult, error)
}

// Recorder keeps images used as queries.
type Recorder interface {
	Record(ctx context.Context, img *models.ImageFile) (*models.RecentImageEntry, error)
}

// Listener is called with the new state after every transition.
type Listener func(State)

// Orchestrator owns the search state. It is safe for concurrent use; when
// searches overlap only the most recently issued one updates the state.
type Orchestrator struct {
	api        Searcher
	recorder   Recorder
	listeners  []Listener
	logger     *zap.Logger
	maxResults int

	mu           sync.Mutex
	state        State
	filter       models.VideoSelection
	displayLimit int
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithRecentStore records every image search in r.
func WithRecentStore(r Recorder) Option {
	return func(o *Orchestrator) { o.recorder = r }
}

// WithListener registers a state listener.
func WithListener(l Listener) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.listeners = append(o.listeners, l)
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithMaxResults sets the result count requested when Input leaves it zero.
func WithMaxResults(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.maxResults = n
		}
	}
}

// WithDisplayLimit sets the initial display limit.
func WithDisplayLimit(n int) Option {
	return func(o *Orchestrator) { o.displayLimit = models.ClampDisplayLimit(n) }
}

// NewOrchestrator returns an idle orchestrator.
func NewOrchestrator(api Searcher, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		api:          api,
		logger:       zap.NewNop(),
		maxResults:   models.DefaultMaxResults,
		displayLimit: models.DefaultDisplayLimit,
		state:        State{Phase: PhaseIdle, Mode: ModeText},
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Prepare validates in against the current filter without issuing anything.
func (o *Orchestrator) Prepare(in Input) (*models.SearchRequest, error) {
	o.mu.Lock()
	filter := models.NewVideoSelection(o.filter.Names()...)
	o.mu.Unlock()
	return ProcessInput(in, filter, o.maxResults)
}

// RunSearch issues a search and waits for it. Invalid input sends nothing and
// leaves the state unchanged. The returned bool reports whether this call's
// outcome was applied; it is false for invalid input and for responses that
// arrived after a newer search was issued.
func (o *Orchestrator) RunSearch(ctx context.Context, in Input) (State, bool) {
	req, err := o.Prepare(in)
	if err != nil {
		o.logger.Debug("Search rejected", zap.Error(err))
		return o.State(), false
	}

	mode := ModeText
	query := req.Query
	if req.IsImage() {
		mode = ModeImage
		query = imageQueryLabel
	}

	o.mu.Lock()
	o.state.Generation++
	gen := o.state.Generation
	o.state.Phase = PhaseLoading
	o.state.Mode = mode
	o.state.LastQuery = query
	o.state.ErrorMessage = ""
	loading := o.snapshotLocked()
	o.mu.Unlock()
	o.notify(loading)

	if mode == ModeImage && o.recorder != nil {
		if _, err := o.recorder.Record(ctx, req.Image); err != nil {
			o.logger.Warn("Failed to record recent image", zap.Error(err))
		}
	}

	var results []*models.SearchResult
	if mode == ModeImage {
		results, err = o.api.SearchByImage(ctx, req)
	} else {
		results, err = o.api.SearchByText(ctx, req)
	}

	o.mu.Lock()
	if gen != o.state.Generation {
		current := o.snapshotLocked()
		o.mu.Unlock()
		o.logger.Debug("Discarding stale search response",
			zap.Uint64("generation", gen),
			zap.Uint64("latest", current.Generation))
		return current, false
	}
	if err != nil {
		o.state.Phase = PhaseError
		o.state.ErrorMessage = errorMessage(err, mode)
		o.logger.Warn("Search failed", zap.String("mode", string(mode)), zap.Error(err))
	} else {
		if results == nil {
			results = []*models.SearchResult{}
		}
		o.state.Phase = PhaseDone
		o.state.Results = results
		o.logger.Debug("Search done", zap.String("mode", string(mode)), zap.Int("results", len(results)))
	}
	final := o.snapshotLocked()
	o.mu.Unlock()
	o.notify(final)
	return final, true
}

// errorMessage picks the single message shown for a failed search.
func errorMessage(err error, mode Mode) string {
	var re *models.RequestError
	if errors.As(err, &re) && re.Detail != "" {
		return re.Detail
	}
	var te *models.TimeoutError
	if errors.As(err, &te) {
		return te.Error()
	}
	if mode == ModeImage {
		return imageSearchFailed
	}
	return textSearchFailed
}

// State returns a snapshot of the current state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.snapshotLocked()
}

// Visible returns the results truncated to the display limit.
func (o *Orchestrator) Visible() []*models.SearchResult {
	o.mu.Lock()
	defer o.mu.Unlock()
	return models.TruncateResults(o.state.Results, o.displayLimit)
}

// SetDisplayLimit clamps n to the allowed range and returns the applied value.
func (o *Orchestrator) SetDisplayLimit(n int) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.displayLimit = models.ClampDisplayLimit(n)
	return o.displayLimit
}

// DisplayLimit returns the current display limit.
func (o *Orchestrator) DisplayLimit() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.displayLimit
}

// SetVideoFilter restricts later searches to names. No names means all videos.
func (o *Orchestrator) SetVideoFilter(names ...string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.filter = models.NewVideoSelection(names...)
}

// ToggleVideos flips each name in or out of the filter.
func (o *Orchestrator) ToggleVideos(names ...string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, n := range names {
		o.filter.Toggle(n)
	}
}

// SelectAllVideos restricts later searches to exactly the available names.
func (o *Orchestrator) SelectAllVideos(available []string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.filter.SelectAll(available)
}

// ClearVideoFilter drops the filter so later searches cover all videos.
func (o *Orchestrator) ClearVideoFilter() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.filter.Clear()
}

// VideoFilter returns the active filter names, or nil when searching all videos.
func (o *Orchestrator) VideoFilter() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.filter.Names()
}

func (o *Orchestrator) snapshotLocked() State {
	s := o.state
	s.Results = make([]*models.SearchResult, len(o.state.Results))
	copy(s.Results, o.state.Results)
	return s
}

func (o *Orchestrator) notify(s State) {
	for _, l := range o.listeners {
		l(s)
	}
}
