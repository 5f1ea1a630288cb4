// Package tracker follows ingestion jobs on the archive backend, one polling
// loop per video, until each job reaches a terminal status.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hyperjump/archivist/internal/models"
	"go.uber.org/zap"
)

// Defaults for polling and retirement.
const (
	DefaultPollInterval = 3 * time.Second
	DefaultRetireDelay  = 5 * time.Second
)

// ErrShutdown is returned by Track after Shutdown.
var ErrShutdown = errors.New("tracker is shut down")

// API is the subset of the archive client the tracker needs.
type API interface {
	GetJobStatus(ctx context.Context, videoName string) (*models.IngestionJob, error)
	DeleteVideo(ctx context.Context, videoName string) error
}

// EventType identifies a tracker notification.
type EventType string

const (
	// EventProgress is emitted after every successful non-anomalous poll.
	EventProgress EventType = "progress"
	// EventTerminal is emitted once when a job completes or fails.
	EventTerminal EventType = "terminal"
	// EventPollError is emitted when a poll fails; the job is unchanged.
	EventPollError EventType = "poll_error"
	// EventRetired is emitted when a job is removed from the tracker.
	EventRetired EventType = "retired"
)

// Event is delivered to listeners outside the tracker's lock.
type Event struct {
	Type      EventType            `json:"type"`
	VideoName string               `json:"video_name"`
	Job       *models.IngestionJob `json:"job,omitempty"`
	Err       error                `json:"-"`
}

// Listener receives tracker events. It is called from polling goroutines.
type Listener func(Event)

// Snapshot is a copy of one tracked job with its polling health.
type Snapshot struct {
	*models.IngestionJob
	// Confirmed is false until the backend has answered a status poll.
	Confirmed bool   `json:"confirmed"`
	Failures  int    `json:"poll_failures,omitempty"`
	LastError string `json:"last_error,omitempty"`
}

type entry struct {
	job       *models.IngestionJob
	confirmed bool
	failures  int
	lastError error
	cancel    context.CancelFunc
	retire    *time.Timer
}

// Tracker owns the tracked jobs and their polling loops.
type Tracker struct {
	api         API
	interval    time.Duration
	retireDelay time.Duration
	maxFailures int
	listeners   []Listener
	logger      *zap.Logger
	now         func() time.Time

	mu     sync.Mutex
	jobs   map[string]*entry
	order  []string
	closed bool

	wg     sync.WaitGroup
	active atomic.Int32
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithPollInterval sets the constant delay between polls.
func WithPollInterval(d time.Duration) Option {
	return func(t *Tracker) {
		if d > 0 {
			t.interval = d
		}
	}
}

// WithRetireDelay sets how long a terminal job stays visible before it is removed.
func WithRetireDelay(d time.Duration) Option {
	return func(t *Tracker) {
		if d > 0 {
			t.retireDelay = d
		}
	}
}

// WithMaxConsecutiveFailures marks a job failed after n polls in a row fail.
// Zero keeps polling indefinitely.
func WithMaxConsecutiveFailures(n int) Option {
	return func(t *Tracker) {
		if n >= 0 {
			t.maxFailures = n
		}
	}
}

// WithListener registers a listener for tracker events.
func WithListener(l Listener) Option {
	return func(t *Tracker) {
		if l != nil {
			t.listeners = append(t.listeners, l)
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(t *Tracker) {
		if l != nil {
			t.logger = l
		}
	}
}

// New returns a Tracker polling api.
func New(api API, opts ...Option) *Tracker {
	t := &Tracker{
		api:         api,
		interval:    DefaultPollInterval,
		retireDelay: DefaultRetireDelay,
		logger:      zap.NewNop(),
		now:         time.Now,
		jobs:        make(map[string]*entry),
	}
	for _, o := range opts {
		o(t)
	}
	return t
}

// Track starts following videoName. The job is shown as pending until the
// first successful poll. Tracking a name that is already tracked is a no-op.
func (t *Tracker) Track(videoName string) (Snapshot, error) {
	name := models.NormalizeVideoName(videoName)
	if name == "" {
		return Snapshot{}, &models.ValidationError{Field: "video_name", Message: "video name is required"}
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return Snapshot{}, ErrShutdown
	}
	if e, ok := t.jobs[name]; ok {
		return e.snapshot(), nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	e := &entry{
		job: &models.IngestionJob{
			VideoName: name,
			Status:    models.StatusPending,
			CreatedAt: models.Timestamp{Time: t.now().UTC()},
		},
		cancel: cancel,
	}
	t.jobs[name] = e
	t.order = append(t.order, name)

	t.wg.Add(1)
	t.active.Add(1)
	go t.loop(ctx, name, e)

	t.logger.Debug("Tracking job", zap.String("video_name", name))
	return e.snapshot(), nil
}

// loop polls immediately, then on every tick, until the job is terminal,
// retired, or the tracker shuts down.
func (t *Tracker) loop(ctx context.Context, name string, e *entry) {
	defer t.wg.Done()
	defer t.active.Add(-1)

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()
	for {
		if done := t.poll(ctx, name, e); done {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// poll fetches the status once and reports whether the loop should stop.
func (t *Tracker) poll(ctx context.Context, name string, e *entry) bool {
	job, err := t.api.GetJobStatus(ctx, name)
	if ctx.Err() != nil {
		return true
	}

	var events []Event
	done := func() bool {
		t.mu.Lock()
		defer t.mu.Unlock()
		if t.jobs[name] != e {
			return true
		}
		if err != nil {
			return t.pollFailedLocked(name, e, err, &events)
		}
		return t.pollSucceededLocked(name, e, job, &events)
	}()
	for _, ev := range events {
		t.emit(ev)
	}
	return done
}

func (t *Tracker) pollFailedLocked(name string, e *entry, err error, events *[]Event) bool {
	e.failures++
	e.lastError = err
	t.logger.Warn("Status poll failed",
		zap.String("video_name", name),
		zap.Int("consecutive_failures", e.failures),
		zap.Error(err))
	*events = append(*events, Event{Type: EventPollError, VideoName: name, Job: e.job.Clone(), Err: err})

	if t.maxFailures == 0 || e.failures < t.maxFailures {
		return false
	}
	completed := models.Timestamp{Time: t.now().UTC()}
	e.job.Status = models.StatusFailed
	e.job.ErrorMessage = fmt.Sprintf("status unavailable after %d attempts: %v", e.failures, err)
	e.job.CompletedAt = &completed
	t.logger.Warn("Giving up on job", zap.String("video_name", name), zap.Int("failures", e.failures))
	*events = append(*events, Event{Type: EventTerminal, VideoName: name, Job: e.job.Clone()})
	t.scheduleRetireLocked(name, e)
	return true
}

func (t *Tracker) pollSucceededLocked(name string, e *entry, job *models.IngestionJob, events *[]Event) bool {
	e.failures = 0
	e.lastError = nil
	if e.job.Status.IsTerminal() {
		if !job.Status.IsTerminal() {
			t.logger.Warn("Ignoring status regression after terminal state",
				zap.String("video_name", name),
				zap.String("status", string(e.job.Status)),
				zap.String("reported", string(job.Status)))
		}
		return true
	}

	next := job.Clone()
	next.VideoName = name
	if next.CreatedAt.IsZero() {
		next.CreatedAt = e.job.CreatedAt
	}
	e.job = next
	e.confirmed = true
	*events = append(*events, Event{Type: EventProgress, VideoName: name, Job: next.Clone()})
	if !next.Status.IsTerminal() {
		return false
	}
	t.logger.Info("Job finished",
		zap.String("video_name", name),
		zap.String("status", string(next.Status)),
		zap.Int("frames", next.FrameCount),
		zap.Int("objects", next.ObjectCount))
	*events = append(*events, Event{Type: EventTerminal, VideoName: name, Job: next.Clone()})
	t.scheduleRetireLocked(name, e)
	return true
}

func (t *Tracker) scheduleRetireLocked(name string, e *entry) {
	if e.retire != nil {
		return
	}
	e.retire = time.AfterFunc(t.retireDelay, func() {
		if ev, ok := t.remove(name, e); ok {
			t.emit(ev)
		}
	})
}

// remove drops e if it is still the tracked entry for name.
func (t *Tracker) remove(name string, e *entry) (Event, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.jobs[name] != e {
		return Event{}, false
	}
	e.cancel()
	if e.retire != nil {
		e.retire.Stop()
	}
	delete(t.jobs, name)
	for i, n := range t.order {
		if n == name {
			t.order = append(t.order[:i], t.order[i+1:]...)
			break
		}
	}
	t.logger.Debug("Job retired", zap.String("video_name", name))
	return Event{Type: EventRetired, VideoName: name, Job: e.job.Clone()}, true
}

// lookupTerminal returns the entry for name when it is tracked and terminal.
func (t *Tracker) lookupTerminal(name string) (*entry, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.jobs[name]
	if !ok {
		return nil, &models.NotFoundError{VideoName: name}
	}
	if !e.job.Status.IsTerminal() {
		return nil, fmt.Errorf("%s is %s: %w", name, e.job.Status, models.ErrJobNotTerminal)
	}
	return e, nil
}

// Close dismisses a finished job before its retire delay elapses. Jobs that
// are still processing stay tracked and ErrJobNotTerminal is returned. The
// backend is asked once more; if it reports the job as processing again the
// close is refused.
func (t *Tracker) Close(ctx context.Context, videoName string) error {
	name := models.NormalizeVideoName(videoName)
	e, err := t.lookupTerminal(name)
	if err != nil {
		return err
	}
	job, err := t.api.GetJobStatus(ctx, name)
	switch {
	case err == nil && !job.Status.IsTerminal():
		t.logger.Warn("Backend reports finished job as processing",
			zap.String("video_name", name), zap.String("reported", string(job.Status)))
		return fmt.Errorf("%s is %s on the backend: %w", name, job.Status, models.ErrJobNotTerminal)
	case err != nil:
		t.logger.Debug("Status re-check failed, closing anyway", zap.String("video_name", name), zap.Error(err))
	}
	if ev, ok := t.remove(name, e); ok {
		t.emit(ev)
	}
	return nil
}

// Delete removes a finished video from the backend, then stops tracking it.
// The job stays tracked when the backend refuses.
func (t *Tracker) Delete(ctx context.Context, videoName string) error {
	name := models.NormalizeVideoName(videoName)
	e, err := t.lookupTerminal(name)
	if err != nil {
		return err
	}
	if err := t.api.DeleteVideo(ctx, name); err != nil {
		return err
	}
	if ev, ok := t.remove(name, e); ok {
		t.emit(ev)
	}
	return nil
}

// Shutdown cancels every polling loop and pending retirement, then waits for
// the loops to exit. Tracked jobs are discarded.
func (t *Tracker) Shutdown() {
	t.mu.Lock()
	t.closed = true
	for _, e := range t.jobs {
		e.cancel()
		if e.retire != nil {
			e.retire.Stop()
		}
	}
	t.jobs = make(map[string]*entry)
	t.order = nil
	t.mu.Unlock()
	t.wg.Wait()
}

// Jobs returns snapshots of every tracked job in the order they were tracked.
func (t *Tracker) Jobs() []Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Snapshot, 0, len(t.order))
	for _, name := range t.order {
		out = append(out, t.jobs[name].snapshot())
	}
	return out
}

// Get returns a snapshot of one tracked job.
func (t *Tracker) Get(videoName string) (Snapshot, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.jobs[models.NormalizeVideoName(videoName)]
	if !ok {
		return Snapshot{}, false
	}
	return e.snapshot(), true
}

// Processing reports whether any tracked job is still in progress.
func (t *Tracker) Processing() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, e := range t.jobs {
		if !e.job.Status.IsTerminal() {
			return true
		}
	}
	return false
}

// ActiveLoops returns the number of polling goroutines still running.
func (t *Tracker) ActiveLoops() int {
	return int(t.active.Load())
}

func (t *Tracker) emit(ev Event) {
	for _, l := range t.listeners {
		l(ev)
	}
}

func (e *entry) snapshot() Snapshot {
	s := Snapshot{IngestionJob: e.job.Clone(), Confirmed: e.confirmed, Failures: e.failures}
	if e.lastError != nil {
		s.LastError = e.lastError.Error()
	}
	return s
}
