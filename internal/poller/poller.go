// ============================================================================
// ingestflow Status Poller - Tracking Session for One Job
// ============================================================================
//
// Package: internal/poller
// File: poller.go
// Function: Owns "am I watching job X", performs fetches and publishes a
//           derived View to subscribers
//
// State Machine:
//   idle ──Fetch()──> fetching ──2xx──> loaded
//                         └────error──> errored (status cleared, watch kept)
//   loaded/errored ──tick or Fetch()──> fetching
//   SetHandle(h') from any state ──> idle (timer cancelled, watch off)
//
// Watch Timer:
//   - At most one armed timer per Poller; SetWatch(true) twice is a no-op
//   - Ticks are wall-clock periodic from the moment the watch is armed
//   - A tick starts its fetch under the same lock that SetWatch(false),
//     SetHandle and Close take to disarm, so no tick fetch can start after
//     cancellation
//
// Stale Responses:
//   Every request is tagged with the handle generation and a sequence
//   number. A response whose generation is no longer current, or which is
//   older than a response already applied, is dropped with ErrStaleResponse.
//   In-flight requests are cancelled best-effort via a per-handle context.
//
// ============================================================================

package poller

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/Aryankaushal82/ingest-flow-ui-dashboard/internal/client"
	"github.com/Aryankaushal82/ingest-flow-ui-dashboard/pkg/types"
)

// DefaultInterval is the watch period
const DefaultInterval = 3 * time.Second

var (
	// ErrMissingHandle is returned by Fetch when no handle is tracked
	ErrMissingHandle = client.ErrMissingHandle

	// ErrWatchUnavailable is returned when watching a job that was never loaded
	ErrWatchUnavailable = errors.New("poller: watch is available after the job has loaded once")

	// ErrStaleResponse is returned when a response arrives for a superseded request
	ErrStaleResponse = errors.New("poller: stale response dropped")

	// ErrClosed is returned by every operation after Close
	ErrClosed = errors.New("poller: closed")
)

// State is the fetch state of the tracked job
type State string

const (
	StateIdle     State = "idle"
	StateFetching State = "fetching"
	StateLoaded   State = "loaded"
	StateErrored  State = "errored"
)

// StatusFetcher fetches the full current status of a job
type StatusFetcher interface {
	GetStatus(ctx context.Context, handle types.JobHandle) (*types.JobStatus, error)
}

// Recorder receives poller events, typically a metrics collector
type Recorder interface {
	RecordStaleResponse()
	SetWatching(watching bool)
	SetProgress(percent float64)
}

type nopRecorder struct{}

func (nopRecorder) RecordStaleResponse() {}
func (nopRecorder) SetWatching(bool)     {}
func (nopRecorder) SetProgress(float64)  {}

// View is an immutable snapshot published to subscribers
type View struct {
	Handle      types.JobHandle
	State       State
	Status      *types.JobStatus // nil when no status is held
	Err         error            // last fetch error, nil when loaded
	Watching    bool
	LastUpdated time.Time // time of the last successful fetch

	version uint64 // capture order, used to keep deliveries monotonic
}

// Progress derives the completed-batch percentage from Status
func (v View) Progress() float64 {
	return v.Status.Progress()
}

// CanWatch reports whether watching may be enabled for this view
func (v View) CanWatch() bool {
	return !v.LastUpdated.IsZero()
}

// request identifies one outstanding fetch
type request struct {
	handle types.JobHandle
	gen    uint64
	seq    uint64
	ctx    context.Context
	cancel context.CancelFunc
}

// Poller tracks the status of a single job handle
type Poller struct {
	mu sync.Mutex

	fetcher  StatusFetcher
	interval time.Duration
	logger   *slog.Logger
	recorder Recorder
	now      func() time.Time

	handle      types.JobHandle
	gen         uint64 // bumped on every handle change
	seq         uint64 // last issued request sequence
	appliedSeq  uint64 // last applied request sequence
	inFlight    int
	settled     State // state of the last applied response
	status      *types.JobStatus
	err         error
	lastUpdated time.Time

	genCtx    context.Context
	genCancel context.CancelFunc

	watching  bool
	watchID   uint64
	watchStop chan struct{}
	watchWg   sync.WaitGroup

	subscribers map[int]func(View)
	nextSubID   int
	closed      bool
	version     uint64 // last captured view version, guarded by mu

	// deliverMu serializes deliveries; delivered is guarded by it
	deliverMu sync.Mutex
	delivered uint64
}

// Option configures the Poller
type Option func(*Poller)

// WithInterval sets the watch period
func WithInterval(d time.Duration) Option {
	return func(p *Poller) {
		if d > 0 {
			p.interval = d
		}
	}
}

// WithLogger sets a logger
func WithLogger(logger *slog.Logger) Option {
	return func(p *Poller) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithRecorder sets an event recorder
func WithRecorder(recorder Recorder) Option {
	return func(p *Poller) {
		if recorder != nil {
			p.recorder = recorder
		}
	}
}

// WithClock sets the time source used for LastUpdated
func WithClock(now func() time.Time) Option {
	return func(p *Poller) {
		if now != nil {
			p.now = now
		}
	}
}

// New creates an idle Poller with no handle
func New(fetcher StatusFetcher, opts ...Option) *Poller {
	p := &Poller{
		fetcher:     fetcher,
		interval:    DefaultInterval,
		logger:      slog.Default(),
		recorder:    nopRecorder{},
		now:         time.Now,
		settled:     StateIdle,
		subscribers: make(map[int]func(View)),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.genCtx, p.genCancel = context.WithCancel(context.Background())
	return p
}

// Interval returns the watch period
func (p *Poller) Interval() time.Duration {
	return p.interval
}

// SetHandle switches the tracked job. The watch timer is disarmed and all
// outstanding requests for the previous handle become stale.
func (p *Poller) SetHandle(handle types.JobHandle) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrClosed
	}
	if handle == p.handle {
		p.mu.Unlock()
		return nil
	}

	p.stopWatchLocked()
	p.genCancel()
	p.genCtx, p.genCancel = context.WithCancel(context.Background())

	previous := p.handle
	p.handle = handle
	p.gen++
	p.appliedSeq = p.seq
	p.inFlight = 0
	p.settled = StateIdle
	p.status = nil
	p.err = nil
	p.lastUpdated = time.Time{}
	view := p.snapshotLocked()
	p.mu.Unlock()

	p.logger.Debug("Tracked handle changed", "from", previous, "to", handle)
	p.recorder.SetProgress(0)
	p.publish(view)
	return nil
}

// Fetch requests the current status of the tracked job once
func (p *Poller) Fetch(ctx context.Context) error {
	p.mu.Lock()
	req, err := p.beginLocked(ctx)
	if err != nil {
		view := p.snapshotLocked()
		p.mu.Unlock()
		if errors.Is(err, ErrMissingHandle) {
			p.publish(view)
		}
		return err
	}
	view := p.snapshotLocked()
	p.mu.Unlock()

	p.publish(view)
	return p.complete(req)
}

// beginLocked validates and registers a request; p.mu must be held
func (p *Poller) beginLocked(ctx context.Context) (request, error) {
	if p.closed {
		return request{}, ErrClosed
	}
	if p.handle.IsBlank() {
		p.err = ErrMissingHandle
		return request{}, ErrMissingHandle
	}

	p.seq++
	p.inFlight++

	reqCtx, cancel := mergeCancel(ctx, p.genCtx)
	return request{handle: p.handle, gen: p.gen, seq: p.seq, ctx: reqCtx, cancel: cancel}, nil
}

// complete performs the network call outside the lock and applies the result
func (p *Poller) complete(req request) error {
	status, fetchErr := p.fetcher.GetStatus(req.ctx, req.handle)
	req.cancel()

	p.mu.Lock()
	current := !p.closed && req.gen == p.gen
	if current && p.inFlight > 0 {
		p.inFlight--
	}
	if !current || req.seq <= p.appliedSeq {
		view := p.snapshotLocked()
		p.mu.Unlock()
		p.recorder.RecordStaleResponse()
		p.logger.Debug("Dropped stale status response", "handle", req.handle, "seq", req.seq)
		if current {
			p.publish(view)
		}
		return ErrStaleResponse
	}

	p.appliedSeq = req.seq
	if fetchErr != nil {
		p.status = nil
		p.err = fetchErr
		p.settled = StateErrored
	} else {
		p.status = status
		p.err = nil
		p.settled = StateLoaded
		p.lastUpdated = p.now()
	}
	view := p.snapshotLocked()
	p.mu.Unlock()

	if fetchErr != nil {
		p.logger.Warn("Status fetch failed",
			"handle", req.handle,
			"kind", client.KindOf(fetchErr),
			"error", fetchErr)
	} else {
		p.logger.Debug("Status fetched",
			"handle", req.handle,
			"status", status.Status,
			"progress", status.Progress())
	}

	p.recorder.SetProgress(view.Progress())
	p.publish(view)
	return fetchErr
}

// SetWatch enables or disables periodic fetching
func (p *Poller) SetWatch(enabled bool) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrClosed
	}

	if !enabled {
		if !p.watching {
			p.mu.Unlock()
			return nil
		}
		p.stopWatchLocked()
		view := p.snapshotLocked()
		p.mu.Unlock()
		p.logger.Debug("Watch disabled", "handle", view.Handle)
		p.publish(view)
		return nil
	}

	if p.watching {
		p.mu.Unlock()
		return nil
	}
	if p.lastUpdated.IsZero() {
		p.mu.Unlock()
		return ErrWatchUnavailable
	}

	p.watching = true
	p.watchID++
	p.watchStop = make(chan struct{})
	p.watchWg.Add(1)
	go p.watchLoop(p.watchID, p.watchStop)

	view := p.snapshotLocked()
	p.mu.Unlock()

	p.logger.Debug("Watch enabled", "handle", view.Handle, "interval", p.interval)
	p.recorder.SetWatching(true)
	p.publish(view)
	return nil
}

// stopWatchLocked disarms the timer; p.mu must be held
func (p *Poller) stopWatchLocked() {
	if !p.watching {
		return
	}
	p.watching = false
	close(p.watchStop)
	p.watchStop = nil
	p.recorder.SetWatching(false)
}

// watchLoop issues one fetch per tick until stop is closed
func (p *Poller) watchLoop(id uint64, stop <-chan struct{}) {
	defer p.watchWg.Done()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			p.mu.Lock()
			if !p.watching || p.watchID != id {
				p.mu.Unlock()
				return
			}
			req, err := p.beginLocked(context.Background())
			view := p.snapshotLocked()
			p.mu.Unlock()

			if err != nil {
				continue
			}
			p.publish(view)
			_ = p.complete(req)
		}
	}
}

// Subscribe registers fn to receive every View change. fn is called
// immediately with the current View. Views reach subscribers in the order
// they were captured and a view older than one already delivered is skipped,
// so the last view received always matches the current state.
// fn must not block or call back into the Poller.
func (p *Poller) Subscribe(fn func(View)) (cancel func()) {
	p.deliverMu.Lock()
	p.mu.Lock()
	id := p.nextSubID
	p.nextSubID++
	p.subscribers[id] = fn
	view := p.snapshotLocked()
	p.mu.Unlock()

	p.delivered = view.version
	fn(view)
	p.deliverMu.Unlock()

	return func() {
		p.mu.Lock()
		delete(p.subscribers, id)
		p.mu.Unlock()
	}
}

// View returns the current snapshot
func (p *Poller) View() View {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.viewLocked()
}

func (p *Poller) viewLocked() View {
	state := p.settled
	if p.inFlight > 0 {
		state = StateFetching
	}
	return View{
		Handle:      p.handle,
		State:       state,
		Status:      p.status,
		Err:         p.err,
		Watching:    p.watching,
		LastUpdated: p.lastUpdated,
	}
}

// snapshotLocked captures a view for publishing; p.mu must be held
func (p *Poller) snapshotLocked() View {
	p.version++
	view := p.viewLocked()
	view.version = p.version
	return view
}

// publish delivers view unless a newer one has already gone out
func (p *Poller) publish(view View) {
	p.deliverMu.Lock()
	defer p.deliverMu.Unlock()

	if view.version <= p.delivered {
		return
	}
	p.delivered = view.version

	p.mu.Lock()
	subs := make([]func(View), 0, len(p.subscribers))
	for _, fn := range p.subscribers {
		subs = append(subs, fn)
	}
	p.mu.Unlock()

	for _, fn := range subs {
		fn(view)
	}
}

// Close disarms the timer, cancels in-flight requests and waits for the
// watch goroutine to exit. Safe to call more than once.
func (p *Poller) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.stopWatchLocked()
	p.closed = true
	p.genCancel()
	p.mu.Unlock()

	p.watchWg.Wait()
	p.logger.Debug("Poller closed")
}

// mergeCancel returns a context derived from parent that is also cancelled
// when other is done
func mergeCancel(parent, other context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	stop := context.AfterFunc(other, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}
