package tracker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/progress-tracker/internal/clock/fake"
	"github.com/JakeFAU/progress-tracker/internal/events"
	"github.com/JakeFAU/progress-tracker/internal/lifecycle"
	"github.com/JakeFAU/progress-tracker/internal/progress"
	"github.com/JakeFAU/progress-tracker/internal/progressapi"
)

var epoch0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

type queryFunc func(n int) (progressapi.Result, error)

type fakeClient struct {
	mu       sync.Mutex
	queries  int
	stops    int
	stopErr  error
	stopGate chan struct{}
	respond  queryFunc
}

func (f *fakeClient) Query(_ context.Context, _ string) (progressapi.Result, error) {
	f.mu.Lock()
	f.queries++
	n := f.queries
	respond := f.respond
	f.mu.Unlock()
	return respond(n)
}

func (f *fakeClient) Stop(_ context.Context, _ string) error {
	f.mu.Lock()
	gate := f.stopGate
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
	return f.stopErr
}

func (f *fakeClient) Queries() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.queries
}

func (f *fakeClient) Stops() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stops
}

type recordingRenderer struct {
	mu         sync.Mutex
	snapshots  []progress.Snapshot
	errors     []string
	panicOnUse bool
}

func (r *recordingRenderer) Render(s progress.Snapshot) {
	r.mu.Lock()
	r.snapshots = append(r.snapshots, s)
	panicking := r.panicOnUse
	r.mu.Unlock()
	if panicking {
		panic("render exploded")
	}
}

func (r *recordingRenderer) ShowError(msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errors = append(r.errors, msg)
}

func (r *recordingRenderer) Renders() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.snapshots)
}

func (r *recordingRenderer) Errors() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.errors...)
}

type recordingEmitter struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recordingEmitter) Emit(evt events.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
}

func (r *recordingEmitter) Kinds() []events.Kind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]events.Kind, 0, len(r.events))
	for _, evt := range r.events {
		out = append(out, evt.Kind)
	}
	return out
}

func inProgress() (progressapi.Result, error) {
	return progressapi.Result{Envelope: progress.Envelope{
		Success: true,
		Progress: &progress.Snapshot{
			CurrentStep: 2,
			Steps: map[int]progress.Step{
				1: {Status: progress.StatusCompleted, Message: "Fetching"},
				2: {Status: progress.StatusActive, Message: "Parsing"},
			},
		},
	}}, nil
}

func finished() (progressapi.Result, error) {
	steps := make(map[int]progress.Step, progress.TotalSteps)
	for i := 1; i <= progress.TotalSteps; i++ {
		steps[i] = progress.Step{Status: progress.StatusCompleted}
	}
	return progressapi.Result{Envelope: progress.Envelope{
		Success:  true,
		Progress: &progress.Snapshot{CurrentStep: progress.TotalSteps, Steps: steps},
	}}, nil
}

func absent() (progressapi.Result, error) {
	return progressapi.Result{Envelope: progress.Envelope{Success: false, Message: "no job"}}, nil
}

func serverError() (progressapi.Result, error) {
	return progressapi.Result{}, &progressapi.StatusError{Method: "GET", URL: "http://x", Code: 500, Status: "500 Internal Server Error"}
}

type harness struct {
	clock    *fake.Clock
	client   *fakeClient
	renderer *recordingRenderer
	emitter  *recordingEmitter
	ctrl     *Controller
}

func newHarness(t *testing.T, cfg Config, respond queryFunc, opts ...Option) *harness {
	t.Helper()
	h := &harness{
		clock:    fake.New(epoch0),
		client:   &fakeClient{respond: respond},
		renderer: &recordingRenderer{},
		emitter:  &recordingEmitter{},
	}
	opts = append([]Option{WithClock(h.clock), WithEmitter(h.emitter)}, opts...)
	ctrl, err := New("user-42", h.client, h.renderer, cfg, opts...)
	require.NoError(t, err)
	h.ctrl = ctrl
	return h
}

func (h *harness) wait(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, h.ctrl.Wait(ctx))
}

func always(fn func() (progressapi.Result, error)) queryFunc {
	return func(int) (progressapi.Result, error) { return fn() }
}

func TestNewValidatesArguments(t *testing.T) {
	client := &fakeClient{respond: always(inProgress)}
	renderer := &recordingRenderer{}

	_, err := New("", client, renderer, Config{})
	require.Error(t, err)
	_, err = New("s", nil, renderer, Config{})
	require.Error(t, err)
	_, err = New("s", client, nil, Config{})
	require.Error(t, err)
	_, err = New("s", client, renderer, Config{BackoffBase: 5 * time.Second, BackoffMax: time.Second})
	require.Error(t, err)

	ctrl, err := New("s", client, renderer, Config{})
	require.NoError(t, err)
	require.Equal(t, DefaultConfig(), ctrl.Config())
	require.False(t, ctrl.Active())
	select {
	case <-ctrl.Done():
	default:
		t.Fatal("idle controller should report done")
	}
}

func TestStartPollsImmediatelyAndOnInterval(t *testing.T) {
	h := newHarness(t, Config{}, always(inProgress))

	h.ctrl.Start(context.Background())
	require.True(t, h.ctrl.Active())
	require.Equal(t, 1, h.client.Queries())
	require.Equal(t, 1, h.renderer.Renders())

	h.clock.Advance(2 * time.Second)
	require.Equal(t, 5, h.client.Queries())
	require.Equal(t, 5, h.renderer.Renders())
}

func TestStartIsIdempotent(t *testing.T) {
	h := newHarness(t, Config{}, always(inProgress))

	h.ctrl.Start(context.Background())
	h.ctrl.Start(context.Background())
	require.Equal(t, 1, h.client.Queries())
	require.Equal(t, 2, h.clock.Pending(), "one interval and one watchdog")

	h.clock.Advance(time.Second)
	require.Equal(t, 3, h.client.Queries())
}

func TestStopIsIdempotent(t *testing.T) {
	h := newHarness(t, Config{}, always(inProgress))
	h.ctrl.Start(context.Background())

	h.ctrl.Stop()
	h.wait(t)
	h.ctrl.Stop()
	h.wait(t)

	require.False(t, h.ctrl.Active())
	require.Equal(t, StopRequested, h.ctrl.Reason())
	require.Equal(t, 1, h.client.Stops())
	require.Zero(t, h.clock.Pending())

	h.clock.Advance(time.Minute)
	require.Equal(t, 1, h.client.Queries())
}

func TestStopBeforeStartDoesNothing(t *testing.T) {
	h := newHarness(t, Config{}, always(inProgress))
	h.ctrl.Stop()
	h.wait(t)
	require.Zero(t, h.client.Stops())
	require.Equal(t, StopReason(""), h.ctrl.Reason())
}

func TestJobAbsentStopsImmediately(t *testing.T) {
	h := newHarness(t, Config{PollInterval: 100 * time.Millisecond, Timeout: time.Second}, always(absent))

	h.ctrl.Start(context.Background())
	h.wait(t)

	require.False(t, h.ctrl.Active())
	require.Equal(t, StopJobAbsent, h.ctrl.Reason())
	require.Equal(t, 1, h.client.Queries())
	require.Equal(t, 1, h.client.Stops())
	require.Zero(t, h.renderer.Renders())
	require.Zero(t, h.clock.Pending())

	h.clock.Advance(2 * time.Second)
	require.Equal(t, 1, h.client.Queries())
	require.Equal(t, 1, h.client.Stops())
}

func TestCompletedStopsAfterGraceDelay(t *testing.T) {
	h := newHarness(t, Config{}, always(finished))

	h.ctrl.Start(context.Background())
	require.Equal(t, 1, h.renderer.Renders())

	h.clock.Advance(DefaultGraceDelay - time.Millisecond)
	require.True(t, h.ctrl.Active())
	require.Equal(t, 1, h.client.Queries(), "no polls during the grace window")

	h.clock.Advance(time.Millisecond)
	h.wait(t)
	require.False(t, h.ctrl.Active())
	require.Equal(t, StopCompleted, h.ctrl.Reason())
	require.Equal(t, 1, h.client.Stops())
	require.Contains(t, h.emitter.Kinds(), events.KindCompleted)

	h.clock.Advance(time.Minute)
	require.Equal(t, 1, h.client.Queries())
	require.Equal(t, 1, h.client.Stops())
}

func TestEmptyStepsNeverComplete(t *testing.T) {
	empty := func(int) (progressapi.Result, error) {
		return progressapi.Result{Envelope: progress.Envelope{
			Success:  true,
			Progress: &progress.Snapshot{CurrentStep: 1},
		}}, nil
	}
	h := newHarness(t, Config{}, empty)

	h.ctrl.Start(context.Background())
	h.clock.Advance(5 * time.Second)

	require.True(t, h.ctrl.Active())
	require.Equal(t, 11, h.client.Queries())
}

func TestMaxRetriesStopsAndShowsErrorOnce(t *testing.T) {
	h := newHarness(t, Config{}, always(serverError))

	h.ctrl.Start(context.Background())
	h.clock.Advance(20 * time.Second)
	h.wait(t)

	require.False(t, h.ctrl.Active())
	require.Equal(t, StopMaxRetries, h.ctrl.Reason())
	require.Equal(t, DefaultMaxRetries, h.client.Queries())
	require.Equal(t, []string{DefaultErrorMessage}, h.renderer.Errors())
	require.Equal(t, 1, h.client.Stops())
	require.Zero(t, h.clock.Pending())
}

func TestRetryBackoffThenRecovery(t *testing.T) {
	respond := func(n int) (progressapi.Result, error) {
		if n <= 3 {
			return serverError()
		}
		return inProgress()
	}
	// A long interval isolates the retry timers.
	h := newHarness(t, Config{PollInterval: time.Hour, Timeout: time.Minute}, respond)

	h.ctrl.Start(context.Background())
	require.Equal(t, 1, h.ctrl.RetryCount())

	h.clock.Advance(2 * time.Second)
	require.Equal(t, 2, h.client.Queries())
	require.Equal(t, 2, h.ctrl.RetryCount())

	h.clock.Advance(4 * time.Second)
	require.Equal(t, 3, h.client.Queries())
	require.Equal(t, 3, h.ctrl.RetryCount())
	require.Zero(t, h.renderer.Renders())

	h.clock.Advance(8*time.Second - time.Millisecond)
	require.Equal(t, 3, h.client.Queries())
	h.clock.Advance(time.Millisecond)
	require.Equal(t, 4, h.client.Queries())
	require.Equal(t, 0, h.ctrl.RetryCount())
	require.Equal(t, 1, h.renderer.Renders())
	require.True(t, h.ctrl.Active())

	kinds := h.emitter.Kinds()
	require.Contains(t, kinds, events.KindRetryScheduled)
	require.Contains(t, kinds, events.KindPollSucceeded)
}

func TestPendingRetryDroppedAfterStop(t *testing.T) {
	h := newHarness(t, Config{PollInterval: time.Hour}, always(serverError))

	h.ctrl.Start(context.Background())
	h.ctrl.Stop()
	h.clock.Advance(time.Minute)
	h.wait(t)

	require.Equal(t, 1, h.client.Queries())
	require.Empty(t, h.renderer.Errors())
}

func TestTimeoutForcesStop(t *testing.T) {
	h := newHarness(t, Config{Timeout: 3 * time.Second}, always(inProgress))

	h.ctrl.Start(context.Background())
	h.clock.Advance(3 * time.Second)
	h.wait(t)

	require.False(t, h.ctrl.Active())
	require.Equal(t, StopTimeout, h.ctrl.Reason())
	require.Equal(t, 1, h.client.Stops())
	queries := h.client.Queries()

	h.clock.Advance(time.Minute)
	require.Equal(t, queries, h.client.Queries())
}

func TestLateResponseAfterStopIsDiscarded(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	respond := func(int) (progressapi.Result, error) {
		close(started)
		<-release
		return finished()
	}
	h := newHarness(t, Config{}, respond)

	returned := make(chan struct{})
	go func() {
		h.ctrl.Start(context.Background())
		close(returned)
	}()
	<-started
	h.ctrl.Stop()
	close(release)
	<-returned
	h.wait(t)

	require.False(t, h.ctrl.Active())
	require.Equal(t, StopRequested, h.ctrl.Reason())
	require.Zero(t, h.renderer.Renders())
	require.Zero(t, h.clock.Pending())
	require.Equal(t, 1, h.client.Stops())
}

func TestRestartAfterStop(t *testing.T) {
	h := newHarness(t, Config{}, always(inProgress))

	h.ctrl.Start(context.Background())
	first := h.ctrl.Done()
	h.ctrl.Stop()
	<-first

	h.ctrl.Start(context.Background())
	require.True(t, h.ctrl.Active())
	require.Equal(t, StopReason(""), h.ctrl.Reason())
	select {
	case <-h.ctrl.Done():
		t.Fatal("new activation should not be done")
	default:
	}
	require.Equal(t, 2, h.client.Queries())
	h.ctrl.Stop()
	h.wait(t)
	require.Equal(t, 2, h.client.Stops())
}

func TestTeardownHookCleansUpOnce(t *testing.T) {
	hooks := lifecycle.New(nil)
	h := newHarness(t, Config{}, always(inProgress), WithLifecycle(hooks))
	require.Equal(t, 1, hooks.Len())

	h.ctrl.Start(context.Background())
	hooks.Teardown(context.Background())
	h.wait(t)

	require.False(t, h.ctrl.Active())
	require.Equal(t, StopTeardown, h.ctrl.Reason())
	require.Equal(t, 1, h.client.Stops())
}

func TestTeardownHookCleansUpWhenIdle(t *testing.T) {
	hooks := lifecycle.New(nil)
	h := newHarness(t, Config{}, always(absent), WithLifecycle(hooks))

	h.ctrl.Start(context.Background())
	h.wait(t)
	require.Equal(t, 1, h.client.Stops())

	hooks.Teardown(context.Background())
	require.Equal(t, 2, h.client.Stops(), "teardown notifies the server unconditionally")
	require.Equal(t, StopJobAbsent, h.ctrl.Reason())
}

func TestParentCancelStopsController(t *testing.T) {
	h := newHarness(t, Config{}, always(inProgress))
	ctx, cancel := context.WithCancel(context.Background())

	h.ctrl.Start(ctx)
	cancel()

	require.Eventually(t, func() bool { return !h.ctrl.Active() }, time.Second, 5*time.Millisecond)
	require.Equal(t, StopCanceled, h.ctrl.Reason())
	h.wait(t)
	require.Equal(t, 1, h.client.Stops())
}

func TestRendererPanicIsRecovered(t *testing.T) {
	h := newHarness(t, Config{}, always(inProgress))
	h.renderer.panicOnUse = true

	require.NotPanics(t, func() { h.ctrl.Start(context.Background()) })
	require.True(t, h.ctrl.Active())

	h.clock.Advance(500 * time.Millisecond)
	require.Equal(t, 2, h.renderer.Renders())
	require.True(t, h.ctrl.Active())
}

func TestCleanupFailureIsReportedNotReturned(t *testing.T) {
	h := newHarness(t, Config{}, always(absent))
	h.client.stopErr = errors.New("connection refused")

	h.ctrl.Start(context.Background())
	h.wait(t)

	require.Equal(t, 1, h.client.Stops())
	require.Contains(t, h.emitter.Kinds(), events.KindCleanupFailed)
}

func TestEventsCarrySubjectAndClockTime(t *testing.T) {
	h := newHarness(t, Config{}, always(absent))
	h.ctrl.Start(context.Background())
	h.wait(t)

	h.emitter.mu.Lock()
	defer h.emitter.mu.Unlock()
	require.NotEmpty(t, h.emitter.events)
	for _, evt := range h.emitter.events {
		require.Equal(t, "user-42", evt.Subject)
		require.Equal(t, epoch0, evt.TS)
		require.NoError(t, evt.Validate())
	}
	require.Equal(t, events.KindStarted, h.emitter.events[0].Kind)
}

func TestWaitBlocksUntilCleanupFinishes(t *testing.T) {
	h := newHarness(t, Config{}, always(inProgress))
	gate := make(chan struct{})
	h.client.stopGate = gate

	h.ctrl.Start(context.Background())
	h.ctrl.Stop()

	short, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, h.ctrl.Wait(short), context.DeadlineExceeded)
	require.Zero(t, h.client.Stops())

	close(gate)
	h.wait(t)
	require.Equal(t, 1, h.client.Stops())
}

func TestWaitConcurrentWithStop(t *testing.T) {
	h := newHarness(t, Config{}, always(inProgress))
	h.ctrl.Start(context.Background())

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(2)
		go func() {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			assert.NoError(t, h.ctrl.Wait(ctx))
		}()
		go func() {
			defer wg.Done()
			h.ctrl.Stop()
		}()
	}
	wg.Wait()

	h.wait(t)
	require.Equal(t, 1, h.client.Stops())
}

func TestWaitWhileIdleReturnsImmediately(t *testing.T) {
	h := newHarness(t, Config{}, always(inProgress))

	require.NoError(t, h.ctrl.Wait(context.Background()))
}
