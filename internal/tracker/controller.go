package tracker

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/JakeFAU/progress-tracker/internal/clock"
	"github.com/JakeFAU/progress-tracker/internal/clock/system"
	"github.com/JakeFAU/progress-tracker/internal/events"
	"github.com/JakeFAU/progress-tracker/internal/lifecycle"
	"github.com/JakeFAU/progress-tracker/internal/progress"
	"github.com/JakeFAU/progress-tracker/internal/progressapi"
)

// Client is the remote progress service as seen by the controller.
type Client interface {
	Query(ctx context.Context, subject string) (progressapi.Result, error)
	Stop(ctx context.Context, subject string) error
}

// Renderer displays snapshots and the terminal failure message.
type Renderer interface {
	Render(snapshot progress.Snapshot)
	ShowError(message string)
}

// StopReason records why an activation ended.
type StopReason string

// Stop reasons.
const (
	StopRequested  StopReason = "stopped"
	StopJobAbsent  StopReason = "job_absent"
	StopCompleted  StopReason = "completed"
	StopTimeout    StopReason = "timeout"
	StopMaxRetries StopReason = "max_retries"
	StopTeardown   StopReason = "teardown"
	StopCanceled   StopReason = "canceled"
)

// Option customizes a Controller.
type Option func(*Controller)

// WithClock replaces the system clock, typically with a fake in tests.
func WithClock(clk clock.Clock) Option {
	return func(c *Controller) {
		if clk != nil {
			c.clock = clk
		}
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Controller) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithEmitter forwards lifecycle events to emitter.
func WithEmitter(emitter events.Emitter) Option {
	return func(c *Controller) {
		if emitter != nil {
			c.emitter = emitter
		}
	}
}

// WithTracer traces every query and cleanup call.
func WithTracer(tracer trace.Tracer) Option {
	return func(c *Controller) {
		if tracer != nil {
			c.tracer = tracer
		}
	}
}

// WithLifecycle registers the controller's teardown hook with reg.
func WithLifecycle(reg lifecycle.Registrar) Option {
	return func(c *Controller) {
		c.registrar = reg
	}
}

// Controller polls the progress service for one subject. All methods are
// safe for concurrent use.
type Controller struct {
	subject   string
	client    Client
	renderer  Renderer
	cfg       Config
	clock     clock.Clock
	emitter   events.Emitter
	logger    *zap.Logger
	tracer    trace.Tracer
	registrar lifecycle.Registrar

	mu           sync.Mutex
	active       bool
	epoch        uint64
	retryCount   int
	inFlight     bool
	completing   bool
	pollTimer    clock.Timer
	timeoutTimer clock.Timer
	graceTimer   clock.Timer
	retryTimers  map[uint64]clock.Timer
	nextRetryID  uint64
	actCtx       context.Context
	cancelAct    context.CancelFunc
	releaseCtx   func() bool
	done         chan struct{}
	reason       StopReason
	background   int
	drained      chan struct{}
}

// New builds an idle Controller for subject. When a lifecycle registrar is
// supplied the controller registers exactly one teardown hook with it.
func New(subject string, client Client, renderer Renderer, cfg Config, opts ...Option) (*Controller, error) {
	if subject == "" {
		return nil, errors.New("subject is required")
	}
	if client == nil {
		return nil, errors.New("client is required")
	}
	if renderer == nil {
		return nil, errors.New("renderer is required")
	}
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid tracker config: %w", err)
	}
	done := make(chan struct{})
	close(done)
	drained := make(chan struct{})
	close(drained)
	c := &Controller{
		subject:     subject,
		client:      client,
		renderer:    renderer,
		cfg:         cfg,
		clock:       system.New(),
		emitter:     events.Discard,
		logger:      zap.NewNop(),
		tracer:      noop.NewTracerProvider().Tracer(""),
		retryTimers: make(map[uint64]clock.Timer),
		done:        done,
		drained:     drained,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With(zap.String("subject", subject))
	if c.registrar != nil {
		c.registrar.OnTeardown(c.teardown)
	}
	return c, nil
}

// Subject returns the tracked subject.
func (c *Controller) Subject() string {
	return c.subject
}

// Config returns the effective configuration.
func (c *Controller) Config() Config {
	return c.cfg
}

// Active reports whether polling is running.
func (c *Controller) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// RetryCount returns the number of consecutive failed polls.
func (c *Controller) RetryCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.retryCount
}

// Reason returns why the most recent activation ended, or "" while active or
// before the first Start.
func (c *Controller) Reason() StopReason {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reason
}

// Done returns a channel that is closed while the controller is idle. Each
// Start replaces it with a fresh channel.
func (c *Controller) Done() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.done
}

// Start activates polling. It is a no-op while already active. Start arms the
// interval and the timeout watchdog, then runs the first poll on the calling
// goroutine and returns once that poll has been handled. Cancelling ctx stops
// the activation.
func (c *Controller) Start(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	c.mu.Lock()
	if c.active {
		c.mu.Unlock()
		c.logger.Debug("progress polling already active")
		return
	}
	c.active = true
	c.retryCount = 0
	c.inFlight = false
	c.completing = false
	c.reason = ""
	c.epoch++
	epoch := c.epoch
	c.done = make(chan struct{})
	c.actCtx, c.cancelAct = context.WithCancel(ctx)
	c.releaseCtx = context.AfterFunc(ctx, func() { c.stopEpoch(epoch, StopCanceled) })
	c.pollTimer = c.clock.AfterFunc(c.cfg.PollInterval, func() { c.onTick(epoch) })
	c.timeoutTimer = c.clock.AfterFunc(c.cfg.Timeout, func() { c.onTimeout(epoch) })
	c.mu.Unlock()

	c.logger.Info("starting progress polling",
		zap.Duration("interval", c.cfg.PollInterval),
		zap.Duration("timeout", c.cfg.Timeout),
	)
	c.emit(events.Event{Kind: events.KindStarted})
	c.poll(epoch)
}

// Stop ends polling and fires the cleanup notification in the background. It
// is a no-op while idle and never blocks on the network.
func (c *Controller) Stop() {
	c.mu.Lock()
	stopped := c.deactivateLocked(StopRequested, true)
	c.mu.Unlock()
	if stopped {
		c.afterStop(StopRequested, true)
	}
}

// Poll runs one poll cycle for the current activation. It is a no-op while
// idle or while another cycle is in flight.
func (c *Controller) Poll() {
	c.mu.Lock()
	epoch := c.epoch
	c.mu.Unlock()
	c.poll(epoch)
}

// Cleanup tells the server to drop its tracking state for the subject. It is
// best-effort: failures are logged and never retried.
func (c *Controller) Cleanup(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, c.cfg.CleanupTimeout)
	defer cancel()
	ctx, span := c.tracer.Start(ctx, "tracker.cleanup", trace.WithAttributes(attribute.String("tracker.subject", c.subject)))
	err := c.client.Stop(ctx, c.subject)
	endSpan(span, err)
	if err != nil {
		c.logger.Warn("failed to clean up progress tracking", zap.Error(err))
		c.emit(events.Event{Kind: events.KindCleanupFailed, Note: err.Error()})
		return
	}
	c.logger.Debug("progress tracking cleaned up on server")
	c.emit(events.Event{Kind: events.KindCleanupOK})
}

// Wait blocks until no background work is left or ctx is done. Background
// work is the cleanup notification sent after a stop and the failure message
// shown after exhausted retries. Wait may be called from any goroutine at any
// time; called after Done is closed it covers the stop that closed it.
func (c *Controller) Wait(ctx context.Context) error {
	c.mu.Lock()
	drained := c.drained
	c.mu.Unlock()
	select {
	case <-drained:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("wait for cleanup: %w", ctx.Err())
	}
}

func (c *Controller) beginBackgroundLocked() {
	if c.background == 0 {
		c.drained = make(chan struct{})
	}
	c.background++
}

func (c *Controller) endBackground() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.background--
	if c.background == 0 {
		close(c.drained)
	}
}

func (c *Controller) current(epoch uint64) bool {
	return c.active && c.epoch == epoch
}

func (c *Controller) onTick(epoch uint64) {
	c.mu.Lock()
	if !c.current(epoch) || c.completing {
		c.mu.Unlock()
		return
	}
	c.pollTimer = c.clock.AfterFunc(c.cfg.PollInterval, func() { c.onTick(epoch) })
	c.mu.Unlock()
	c.poll(epoch)
}

func (c *Controller) onTimeout(epoch uint64) {
	c.mu.Lock()
	stopped := c.current(epoch) && c.deactivateLocked(StopTimeout, true)
	c.mu.Unlock()
	if stopped {
		c.logger.Info("progress polling timeout reached")
		c.afterStop(StopTimeout, true)
	}
}

func (c *Controller) onRetry(epoch, id uint64) {
	c.mu.Lock()
	delete(c.retryTimers, id)
	c.mu.Unlock()
	c.poll(epoch)
}

func (c *Controller) poll(epoch uint64) {
	c.mu.Lock()
	if !c.current(epoch) || c.completing || c.inFlight {
		c.mu.Unlock()
		return
	}
	c.inFlight = true
	ctx := c.actCtx
	c.mu.Unlock()

	reqCtx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
	reqCtx, span := c.tracer.Start(reqCtx, "tracker.poll", trace.WithAttributes(attribute.String("tracker.subject", c.subject)))
	res, err := c.client.Query(reqCtx, c.subject)
	if err == nil {
		span.SetAttributes(attribute.Bool("tracker.job_active", res.Envelope.Active()))
	}
	endSpan(span, err)
	cancel()

	c.mu.Lock()
	if !c.current(epoch) {
		// superseded by Stop; the response belongs to a finished activation
		c.mu.Unlock()
		return
	}
	if err != nil {
		c.inFlight = false
		c.mu.Unlock()
		c.handleFailure(epoch, err, res)
		return
	}
	if !res.Envelope.Active() {
		c.inFlight = false
		stopped := c.deactivateLocked(StopJobAbsent, true)
		c.mu.Unlock()
		if stopped {
			c.logger.Info("no active progress, stopping polling")
			c.afterStop(StopJobAbsent, true)
		}
		return
	}
	c.retryCount = 0
	c.mu.Unlock()

	snapshot := *res.Envelope.Progress
	c.emit(events.Event{Kind: events.KindPollSucceeded, Latency: res.Latency})
	c.render(snapshot)

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.current(epoch) {
		return
	}
	c.inFlight = false
	if snapshot.AllCompleted() {
		c.completing = true
		stopTimer(c.pollTimer)
		c.pollTimer = nil
		c.graceTimer = c.clock.AfterFunc(c.cfg.GraceDelay, func() { c.stopEpoch(epoch, StopCompleted) })
		c.logger.Info("all progress steps completed, stopping after grace delay",
			zap.Duration("grace", c.cfg.GraceDelay))
		c.emit(events.Event{Kind: events.KindCompleted})
	}
}

func (c *Controller) handleFailure(epoch uint64, err error, res progressapi.Result) {
	c.mu.Lock()
	if !c.current(epoch) {
		c.mu.Unlock()
		return
	}
	c.retryCount++
	attempt := c.retryCount
	c.emit(events.Event{Kind: events.KindPollFailed, Attempt: attempt, Latency: res.Latency, Note: err.Error()})

	if attempt >= c.cfg.MaxRetries {
		stopped := c.deactivateLocked(StopMaxRetries, true)
		if stopped {
			c.beginBackgroundLocked() // ShowError below
		}
		c.mu.Unlock()
		if stopped {
			c.logger.Error("max retries reached, stopping progress polling",
				zap.Int("max_retries", c.cfg.MaxRetries), zap.Error(err))
			c.afterStop(StopMaxRetries, true)
			c.showError(c.cfg.ErrorMessage)
			c.endBackground()
		}
		return
	}

	backoff := Backoff(c.cfg.BackoffBase, c.cfg.BackoffMax, attempt)
	c.nextRetryID++
	id := c.nextRetryID
	c.retryTimers[id] = c.clock.AfterFunc(backoff, func() { c.onRetry(epoch, id) })
	c.mu.Unlock()

	c.logger.Warn("progress polling error",
		zap.Error(err),
		zap.Int("attempt", attempt),
		zap.Int("max_retries", c.cfg.MaxRetries),
		zap.Duration("backoff", backoff),
	)
	c.emit(events.Event{Kind: events.KindRetryScheduled, Attempt: attempt, Backoff: backoff})
}

// stopEpoch ends the activation identified by epoch, if it is still current.
func (c *Controller) stopEpoch(epoch uint64, reason StopReason) {
	c.mu.Lock()
	stopped := c.current(epoch) && c.deactivateLocked(reason, true)
	c.mu.Unlock()
	if stopped {
		c.afterStop(reason, true)
	}
}

// deactivateLocked flips the controller to idle and cancels every pending
// timer. It reports false when already idle. When notify is set the cleanup
// goroutine is counted as background work before the lock is released.
func (c *Controller) deactivateLocked(reason StopReason, notify bool) bool {
	if !c.active {
		return false
	}
	c.active = false
	c.inFlight = false
	c.completing = false
	c.reason = reason

	stopTimer(c.pollTimer)
	stopTimer(c.timeoutTimer)
	stopTimer(c.graceTimer)
	c.pollTimer, c.timeoutTimer, c.graceTimer = nil, nil, nil
	for id, t := range c.retryTimers {
		stopTimer(t)
		delete(c.retryTimers, id)
	}
	if c.cancelAct != nil {
		c.cancelAct()
		c.cancelAct = nil
	}
	if c.releaseCtx != nil {
		c.releaseCtx()
		c.releaseCtx = nil
	}
	close(c.done)
	if notify {
		c.beginBackgroundLocked()
	}
	return true
}

func (c *Controller) afterStop(reason StopReason, notify bool) {
	c.logger.Info("progress polling stopped", zap.String("reason", string(reason)))
	c.emit(events.Event{Kind: events.KindStopped, Reason: string(reason)})
	if !notify {
		return
	}
	go func() {
		defer c.endBackground()
		c.Cleanup(context.Background())
	}()
}

// teardown is the host-dismissal hook: it stops polling without the
// background notification and then cleans up synchronously, whether or not
// polling was active.
func (c *Controller) teardown(ctx context.Context) {
	c.mu.Lock()
	stopped := c.deactivateLocked(StopTeardown, false)
	c.mu.Unlock()
	if stopped {
		c.afterStop(StopTeardown, false)
	}
	c.Cleanup(ctx)
}

func (c *Controller) render(snapshot progress.Snapshot) {
	defer c.recoverRenderer("render")
	c.renderer.Render(snapshot)
}

func (c *Controller) showError(message string) {
	defer c.recoverRenderer("show_error")
	c.renderer.ShowError(message)
}

func (c *Controller) recoverRenderer(op string) {
	if r := recover(); r != nil {
		c.logger.Error("renderer panicked", zap.String("op", op), zap.String("panic", fmt.Sprint(r)))
	}
}

func (c *Controller) emit(evt events.Event) {
	evt.Subject = c.subject
	evt.TS = c.clock.Now()
	c.emitter.Emit(evt)
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func stopTimer(t clock.Timer) {
	if t != nil {
		t.Stop()
	}
}
