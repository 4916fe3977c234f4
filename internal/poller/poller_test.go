package poller

// ============================================================================
// Status Poller Test File
// Purpose: Verify state transitions, watch timer lifecycle and stale-response
//          rejection
// ============================================================================

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/Aryankaushal82/ingest-flow-ui-dashboard/internal/client"
	"github.com/Aryankaushal82/ingest-flow-ui-dashboard/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ============================================================================
// Test Helper Functions
// ============================================================================

// fakeFetcher records calls and answers through respond
type fakeFetcher struct {
	mu      sync.Mutex
	calls   []types.JobHandle
	respond func(ctx context.Context, handle types.JobHandle) (*types.JobStatus, error)
}

func (f *fakeFetcher) GetStatus(ctx context.Context, handle types.JobHandle) (*types.JobStatus, error) {
	f.mu.Lock()
	f.calls = append(f.calls, handle)
	respond := f.respond
	f.mu.Unlock()

	if respond == nil {
		return statusFor(handle, types.StateTriggered), nil
	}
	return respond(ctx, handle)
}

func (f *fakeFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeFetcher) callsFor(handle types.JobHandle) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, h := range f.calls {
		if h == handle {
			n++
		}
	}
	return n
}

func (f *fakeFetcher) setRespond(fn func(ctx context.Context, handle types.JobHandle) (*types.JobStatus, error)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.respond = fn
}

type fakeRecorder struct {
	mu       sync.Mutex
	stale    int
	watching bool
	progress float64
}

func (r *fakeRecorder) RecordStaleResponse() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stale++
}

func (r *fakeRecorder) SetWatching(watching bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.watching = watching
}

func (r *fakeRecorder) SetProgress(percent float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.progress = percent
}

func statusFor(handle types.JobHandle, state types.JobState) *types.JobStatus {
	return &types.JobStatus{
		IngestionID: handle,
		Status:      state,
		Batches: []types.Batch{
			{BatchID: string(handle) + "-1", IDs: []int64{1, 2}, Status: types.StateCompleted},
			{BatchID: string(handle) + "-2", IDs: []int64{3}, Status: state},
		},
	}
}

// newTestPoller creates a poller with a short interval and registers Close
func newTestPoller(t *testing.T, fetcher StatusFetcher, opts ...Option) *Poller {
	t.Helper()
	opts = append([]Option{WithInterval(20 * time.Millisecond)}, opts...)
	p := New(fetcher, opts...)
	t.Cleanup(p.Close)
	return p
}

// loadedPoller returns a poller that has fetched handle once
func loadedPoller(t *testing.T, fetcher *fakeFetcher, handle types.JobHandle, opts ...Option) *Poller {
	t.Helper()
	p := newTestPoller(t, fetcher, opts...)
	require.NoError(t, p.SetHandle(handle))
	require.NoError(t, p.Fetch(context.Background()))
	return p
}

// ============================================================================
// Fetch and state transitions
// ============================================================================

func TestNewPoller(t *testing.T) {
	p := New(&fakeFetcher{})
	defer p.Close()

	view := p.View()
	assert.Equal(t, StateIdle, view.State)
	assert.Nil(t, view.Status)
	assert.False(t, view.Watching)
	assert.False(t, view.CanWatch())
	assert.Equal(t, DefaultInterval, p.Interval())
	assert.Equal(t, 0.0, view.Progress())
}

func TestFetch_MissingHandleMakesNoCall(t *testing.T) {
	fetcher := &fakeFetcher{}
	p := newTestPoller(t, fetcher)

	err := p.Fetch(context.Background())
	assert.ErrorIs(t, err, ErrMissingHandle)

	require.NoError(t, p.SetHandle("   "))
	err = p.Fetch(context.Background())
	assert.ErrorIs(t, err, ErrMissingHandle)

	assert.Equal(t, 0, fetcher.callCount())
	view := p.View()
	assert.ErrorIs(t, view.Err, ErrMissingHandle)
	assert.Equal(t, StateIdle, view.State)
}

func TestFetch_Loaded(t *testing.T) {
	fixed := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	fetcher := &fakeFetcher{}
	p := loadedPoller(t, fetcher, "job-1", WithClock(func() time.Time { return fixed }))

	view := p.View()
	assert.Equal(t, StateLoaded, view.State)
	require.NotNil(t, view.Status)
	assert.Equal(t, types.JobHandle("job-1"), view.Status.IngestionID)
	assert.Equal(t, 50.0, view.Progress())
	assert.Equal(t, fixed, view.LastUpdated)
	assert.NoError(t, view.Err)
	assert.True(t, view.CanWatch())
}

func TestFetch_ErrorClearsStatus(t *testing.T) {
	fetcher := &fakeFetcher{}
	p := loadedPoller(t, fetcher, "job-1")

	boom := &client.HTTPError{StatusCode: http.StatusBadGateway, Endpoint: "/status/job-1"}
	fetcher.setRespond(func(context.Context, types.JobHandle) (*types.JobStatus, error) {
		return nil, boom
	})

	err := p.Fetch(context.Background())
	assert.ErrorIs(t, err, boom)

	view := p.View()
	assert.Equal(t, StateErrored, view.State)
	assert.Nil(t, view.Status, "status should not be shown alongside a fresh error")
	assert.Equal(t, client.KindHTTP, client.KindOf(view.Err))
	assert.Equal(t, 0.0, view.Progress())
	assert.False(t, view.LastUpdated.IsZero(), "last successful fetch time is kept")
}

func TestFetch_NotFoundOverHTTP(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer server.Close()

	p := newTestPoller(t, client.New(server.URL, client.WithRateLimit(0)))
	require.NoError(t, p.SetHandle("x"))

	err := p.Fetch(context.Background())

	assert.ErrorIs(t, err, client.ErrJobNotFound)
	view := p.View()
	assert.Nil(t, view.Status)
	assert.Equal(t, client.KindJobNotFound, client.KindOf(view.Err))
	assert.NotEqual(t, client.KindHTTP, client.KindOf(view.Err))
}

func TestFetch_ReportsFetchingWhileInFlight(t *testing.T) {
	release := make(chan struct{})
	fetcher := &fakeFetcher{respond: func(_ context.Context, h types.JobHandle) (*types.JobStatus, error) {
		<-release
		return statusFor(h, types.StateTriggered), nil
	}}
	p := newTestPoller(t, fetcher)
	require.NoError(t, p.SetHandle("job-1"))

	done := make(chan error, 1)
	go func() { done <- p.Fetch(context.Background()) }()

	require.Eventually(t, func() bool { return fetcher.callCount() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, StateFetching, p.View().State)

	close(release)
	require.NoError(t, <-done)
	assert.Equal(t, StateLoaded, p.View().State)
}

// ============================================================================
// Stale responses
// ============================================================================

func TestStaleResponseAfterHandleChange(t *testing.T) {
	releaseA := make(chan struct{})
	fetcher := &fakeFetcher{respond: func(_ context.Context, h types.JobHandle) (*types.JobStatus, error) {
		if h == "A" {
			<-releaseA
		}
		return statusFor(h, types.StateTriggered), nil
	}}
	recorder := &fakeRecorder{}
	p := newTestPoller(t, fetcher, WithRecorder(recorder))
	require.NoError(t, p.SetHandle("A"))

	lateA := make(chan error, 1)
	go func() { lateA <- p.Fetch(context.Background()) }()
	require.Eventually(t, func() bool { return fetcher.callsFor("A") == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, p.SetHandle("B"))
	require.NoError(t, p.Fetch(context.Background()))

	close(releaseA)
	assert.ErrorIs(t, <-lateA, ErrStaleResponse)

	view := p.View()
	assert.Equal(t, types.JobHandle("B"), view.Handle)
	require.NotNil(t, view.Status)
	assert.Equal(t, types.JobHandle("B"), view.Status.IngestionID, "late A response must not overwrite B")
	assert.Equal(t, StateLoaded, view.State)

	recorder.mu.Lock()
	assert.Equal(t, 1, recorder.stale)
	recorder.mu.Unlock()
}

func TestStaleResponseOutOfOrderSameHandle(t *testing.T) {
	releaseFirst := make(chan struct{})
	var mu sync.Mutex
	call := 0
	fetcher := &fakeFetcher{respond: func(_ context.Context, h types.JobHandle) (*types.JobStatus, error) {
		mu.Lock()
		call++
		n := call
		mu.Unlock()
		if n == 1 {
			<-releaseFirst
			return statusFor(h, types.StateNotStarted), nil
		}
		return statusFor(h, types.StateCompleted), nil
	}}
	p := newTestPoller(t, fetcher)
	require.NoError(t, p.SetHandle("job-1"))

	first := make(chan error, 1)
	go func() { first <- p.Fetch(context.Background()) }()
	require.Eventually(t, func() bool { return fetcher.callCount() == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, p.Fetch(context.Background()))
	assert.Equal(t, StateFetching, p.View().State, "first request is still outstanding")

	close(releaseFirst)
	assert.ErrorIs(t, <-first, ErrStaleResponse)

	view := p.View()
	assert.Equal(t, StateLoaded, view.State)
	assert.Equal(t, types.StateCompleted, view.Status.Status, "older response must not replace a newer one")
}

func TestHandleChangeCancelsInFlightRequest(t *testing.T) {
	fetcher := &fakeFetcher{respond: func(ctx context.Context, h types.JobHandle) (*types.JobStatus, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}
	p := newTestPoller(t, fetcher)
	require.NoError(t, p.SetHandle("A"))

	done := make(chan error, 1)
	go func() { done <- p.Fetch(context.Background()) }()
	require.Eventually(t, func() bool { return fetcher.callCount() == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, p.SetHandle("B"))

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrStaleResponse)
	case <-time.After(time.Second):
		t.Fatal("in-flight request for the old handle was not cancelled")
	}
	assert.Equal(t, StateIdle, p.View().State)
}

// ============================================================================
// Watch timer
// ============================================================================

func TestWatch_RequiresLoadedJob(t *testing.T) {
	fetcher := &fakeFetcher{}
	p := newTestPoller(t, fetcher)
	require.NoError(t, p.SetHandle("job-1"))

	assert.ErrorIs(t, p.SetWatch(true), ErrWatchUnavailable)
	assert.False(t, p.View().Watching)

	require.NoError(t, p.Fetch(context.Background()))
	assert.NoError(t, p.SetWatch(true))
	assert.True(t, p.View().Watching)
}

func TestWatch_TicksPeriodically(t *testing.T) {
	fetcher := &fakeFetcher{}
	recorder := &fakeRecorder{}
	p := loadedPoller(t, fetcher, "job-1", WithRecorder(recorder))

	require.NoError(t, p.SetWatch(true))
	recorder.mu.Lock()
	assert.True(t, recorder.watching)
	recorder.mu.Unlock()

	require.Eventually(t, func() bool { return fetcher.callCount() >= 4 }, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, p.SetWatch(false))
	recorder.mu.Lock()
	assert.False(t, recorder.watching)
	recorder.mu.Unlock()

	after := fetcher.callCount()
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, after, fetcher.callCount(), "no tick may fire after watch is disabled")
}

func TestWatch_DisableBeforeFirstTick(t *testing.T) {
	fetcher := &fakeFetcher{}
	p := loadedPoller(t, fetcher, "job-1", WithInterval(50*time.Millisecond))

	require.NoError(t, p.SetWatch(true))
	require.NoError(t, p.SetWatch(false))

	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, 1, fetcher.callCount(), "only the initial manual fetch should have run")
}

func TestWatch_ReenableDoesNotStackTimers(t *testing.T) {
	fetcher := &fakeFetcher{}
	p := loadedPoller(t, fetcher, "job-1", WithInterval(40*time.Millisecond))

	for i := 0; i < 5; i++ {
		require.NoError(t, p.SetWatch(true))
	}
	time.Sleep(210 * time.Millisecond)
	require.NoError(t, p.SetWatch(false))

	ticks := fetcher.callCount() - 1
	assert.LessOrEqual(t, ticks, 6, "a single timer fires about five times in 210ms")
	assert.GreaterOrEqual(t, ticks, 1)

	// toggling off and on again still leaves a single timer
	require.NoError(t, p.SetWatch(true))
	require.NoError(t, p.SetWatch(false))
	require.NoError(t, p.SetWatch(true))
	before := fetcher.callCount()
	time.Sleep(210 * time.Millisecond)
	require.NoError(t, p.SetWatch(false))
	assert.LessOrEqual(t, fetcher.callCount()-before, 6)
}

func TestWatch_HandleChangeDisarmsTimer(t *testing.T) {
	fetcher := &fakeFetcher{}
	p := loadedPoller(t, fetcher, "A")
	require.NoError(t, p.SetWatch(true))
	require.Eventually(t, func() bool { return fetcher.callsFor("A") >= 2 }, time.Second, 5*time.Millisecond)

	require.NoError(t, p.SetHandle("B"))
	view := p.View()
	assert.False(t, view.Watching)
	assert.Equal(t, StateIdle, view.State)
	assert.Nil(t, view.Status)
	assert.False(t, view.CanWatch())

	countA := fetcher.callsFor("A")
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, countA, fetcher.callsFor("A"))
	assert.Equal(t, 0, fetcher.callsFor("B"))
	assert.ErrorIs(t, p.SetWatch(true), ErrWatchUnavailable)
}

func TestWatch_ErrorKeepsWatchingAndSelfHeals(t *testing.T) {
	fetcher := &fakeFetcher{}
	p := loadedPoller(t, fetcher, "job-1")

	var mu sync.Mutex
	failures := 0
	fetcher.setRespond(func(_ context.Context, h types.JobHandle) (*types.JobStatus, error) {
		mu.Lock()
		defer mu.Unlock()
		if failures < 2 {
			failures++
			return nil, &client.NetworkError{Endpoint: "/status/job-1", Cause: errors.New("connection reset")}
		}
		return statusFor(h, types.StateCompleted), nil
	})

	var seenErrored bool
	var viewMu sync.Mutex
	cancel := p.Subscribe(func(v View) {
		viewMu.Lock()
		defer viewMu.Unlock()
		if v.State == StateErrored {
			seenErrored = true
			assert.Nil(t, v.Status)
			assert.True(t, v.Watching, "errors must not disable watching")
		}
	})
	defer cancel()

	require.NoError(t, p.SetWatch(true))
	require.Eventually(t, func() bool {
		v := p.View()
		return v.State == StateLoaded && v.Status != nil && v.Status.IsComplete()
	}, 2*time.Second, 5*time.Millisecond)

	viewMu.Lock()
	assert.True(t, seenErrored)
	viewMu.Unlock()
	assert.True(t, p.View().Watching)
}

// ============================================================================
// Subscribers and lifecycle
// ============================================================================

func TestSubscribe_ReceivesEveryChange(t *testing.T) {
	fetcher := &fakeFetcher{}
	p := newTestPoller(t, fetcher)

	var mu sync.Mutex
	var states []State
	cancel := p.Subscribe(func(v View) {
		mu.Lock()
		defer mu.Unlock()
		states = append(states, v.State)
	})

	require.NoError(t, p.SetHandle("job-1"))
	require.NoError(t, p.Fetch(context.Background()))

	mu.Lock()
	assert.Equal(t, []State{StateIdle, StateIdle, StateFetching, StateLoaded}, states)
	mu.Unlock()

	cancel()
	require.NoError(t, p.SetHandle("job-2"))

	mu.Lock()
	assert.Len(t, states, 4, "cancelled subscriber receives nothing")
	mu.Unlock()
}

func TestSubscribe_WatchFlagChangesNotify(t *testing.T) {
	fetcher := &fakeFetcher{}
	p := loadedPoller(t, fetcher, "job-1", WithInterval(time.Hour))

	var mu sync.Mutex
	var flags []bool
	cancel := p.Subscribe(func(v View) {
		mu.Lock()
		defer mu.Unlock()
		flags = append(flags, v.Watching)
	})
	defer cancel()

	require.NoError(t, p.SetWatch(true))
	require.NoError(t, p.SetWatch(true))
	require.NoError(t, p.SetWatch(false))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []bool{false, true, false}, flags)
}

func TestSubscribe_LastViewMatchesCurrentHandle(t *testing.T) {
	fetcher := &fakeFetcher{}
	p := newTestPoller(t, fetcher)
	require.NoError(t, p.SetHandle("job-a"))

	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	var mu sync.Mutex
	var last View
	cancel := p.Subscribe(func(v View) {
		// 慢訂閱者：卡在 job-a 的 loaded view 上
		if v.Handle == "job-a" && v.State == StateLoaded {
			once.Do(func() {
				close(entered)
				<-release
			})
		}
		mu.Lock()
		last = v
		mu.Unlock()
	})
	defer cancel()

	fetchDone := make(chan error, 1)
	go func() { fetchDone <- p.Fetch(context.Background()) }()
	<-entered

	switched := make(chan error, 1)
	go func() { switched <- p.SetHandle("job-b") }()
	require.Eventually(t, func() bool { return p.View().Handle == "job-b" }, time.Second, 5*time.Millisecond)

	close(release)
	require.NoError(t, <-fetchDone)
	require.NoError(t, <-switched)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, types.JobHandle("job-b"), last.Handle, "last delivered view must describe the current handle")
	assert.Equal(t, StateIdle, last.State)
	assert.Nil(t, last.Status)
}

func TestRecorderProgress(t *testing.T) {
	fetcher := &fakeFetcher{}
	recorder := &fakeRecorder{}
	p := loadedPoller(t, fetcher, "job-1", WithRecorder(recorder))

	recorder.mu.Lock()
	assert.Equal(t, 50.0, recorder.progress)
	recorder.mu.Unlock()

	require.NoError(t, p.SetHandle("job-2"))
	recorder.mu.Lock()
	assert.Equal(t, 0.0, recorder.progress)
	recorder.mu.Unlock()
}

func TestClose(t *testing.T) {
	fetcher := &fakeFetcher{}
	p := New(fetcher, WithInterval(10*time.Millisecond))
	require.NoError(t, p.SetHandle("job-1"))
	require.NoError(t, p.Fetch(context.Background()))
	require.NoError(t, p.SetWatch(true))

	p.Close()
	p.Close()

	after := fetcher.callCount()
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, after, fetcher.callCount(), "no tick may fire after Close")

	assert.ErrorIs(t, p.Fetch(context.Background()), ErrClosed)
	assert.ErrorIs(t, p.SetWatch(true), ErrClosed)
	assert.ErrorIs(t, p.SetHandle("job-2"), ErrClosed)
	assert.False(t, p.View().Watching)
}

func TestCloseCancelsInFlightRequest(t *testing.T) {
	fetcher := &fakeFetcher{respond: func(ctx context.Context, h types.JobHandle) (*types.JobStatus, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}
	p := New(fetcher)
	require.NoError(t, p.SetHandle("job-1"))

	done := make(chan error, 1)
	go func() { done <- p.Fetch(context.Background()) }()
	require.Eventually(t, func() bool { return fetcher.callCount() == 1 }, time.Second, 5*time.Millisecond)

	p.Close()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrStaleResponse)
	case <-time.After(time.Second):
		t.Fatal("Close did not cancel the in-flight request")
	}
}
