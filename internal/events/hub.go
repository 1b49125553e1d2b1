package events

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

const (
	defaultBufferSize     = 256
	defaultMaxBatchEvents = 64
	defaultMaxBatchWait   = 250 * time.Millisecond
	defaultSinkTimeout    = 2 * time.Second
)

type hubConfig struct {
	bufferSize  int
	maxBatch    int
	maxWait     time.Duration
	sinkTimeout time.Duration
	logger      *zap.Logger
}

// HubOption tunes a Hub.
type HubOption func(*hubConfig)

// WithBuffer sets how many events may queue before Emit starts dropping.
func WithBuffer(n int) HubOption {
	return func(c *hubConfig) {
		if n > 0 {
			c.bufferSize = n
		}
	}
}

// WithBatching flushes once maxEvents are queued or maxWait after the first
// event of a batch, whichever comes first.
func WithBatching(maxEvents int, maxWait time.Duration) HubOption {
	return func(c *hubConfig) {
		if maxEvents > 0 {
			c.maxBatch = maxEvents
		}
		if maxWait > 0 {
			c.maxWait = maxWait
		}
	}
}

// WithSinkTimeout bounds each Consume call.
func WithSinkTimeout(d time.Duration) HubOption {
	return func(c *hubConfig) {
		if d > 0 {
			c.sinkTimeout = d
		}
	}
}

// WithHubLogger sets the logger used for sink failures and drop reports.
func WithHubLogger(logger *zap.Logger) HubOption {
	return func(c *hubConfig) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// Hub fans lifecycle events out to sinks in batches. Emit never blocks; when
// the buffer is full the event is dropped and counted.
type Hub struct {
	cfg   hubConfig
	sinks []Sink

	mu     sync.RWMutex
	closed bool
	events chan Event

	done      chan struct{}
	dropped   atomic.Int64
	closeOnce sync.Once
	closeCtx  context.Context
}

// NewHub starts the background batching goroutine for sinks.
func NewHub(sinks []Sink, opts ...HubOption) *Hub {
	cfg := hubConfig{
		bufferSize:  defaultBufferSize,
		maxBatch:    defaultMaxBatchEvents,
		maxWait:     defaultMaxBatchWait,
		sinkTimeout: defaultSinkTimeout,
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	h := &Hub{
		cfg:    cfg,
		sinks:  append([]Sink(nil), sinks...),
		events: make(chan Event, cfg.bufferSize),
		done:   make(chan struct{}),
	}
	go h.run()
	return h
}

// Emit enqueues evt. Invalid events and events emitted after Close are
// ignored.
func (h *Hub) Emit(evt Event) {
	if h == nil {
		return
	}
	if err := evt.Validate(); err != nil {
		h.cfg.logger.Debug("discarding invalid event", zap.Error(err))
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return
	}
	select {
	case h.events <- evt:
	default:
		h.dropped.Add(1)
	}
}

// Dropped reports how many events were lost to a full buffer.
func (h *Hub) Dropped() int64 {
	if h == nil {
		return 0
	}
	return h.dropped.Load()
}

// Close stops accepting events, delivers what is queued, closes the sinks and
// waits for the background goroutine. Later calls only wait.
func (h *Hub) Close(ctx context.Context) error {
	if h == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	h.closeOnce.Do(func() {
		h.mu.Lock()
		h.closed = true
		h.closeCtx = ctx
		close(h.events)
		h.mu.Unlock()
	})
	select {
	case <-h.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("event hub close wait: %w", ctx.Err())
	}
}

func (h *Hub) run() {
	defer close(h.done)
	var (
		batch []Event
		timer *time.Timer
		due   <-chan time.Time
	)
	flush := func() {
		if timer != nil {
			timer.Stop()
			timer, due = nil, nil
		}
		h.deliver(batch)
		batch = nil
	}
	for {
		select {
		case evt, ok := <-h.events:
			if !ok {
				flush()
				h.closeSinks()
				if n := h.dropped.Load(); n > 0 {
					h.cfg.logger.Warn("events dropped due to backpressure", zap.Int64("dropped", n))
				}
				return
			}
			batch = append(batch, evt)
			if len(batch) >= h.cfg.maxBatch {
				flush()
			} else if timer == nil {
				timer = time.NewTimer(h.cfg.maxWait)
				due = timer.C
			}
		case <-due:
			timer, due = nil, nil
			flush()
		}
	}
}

func (h *Hub) deliver(batch []Event) {
	if len(batch) == 0 {
		return
	}
	for _, sink := range h.sinks {
		if sink == nil {
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), h.cfg.sinkTimeout)
		if err := sink.Consume(ctx, batch); err != nil {
			h.cfg.logger.Warn("event sink consume failed", zap.Error(err))
		}
		cancel()
	}
}

func (h *Hub) closeSinks() {
	for _, sink := range h.sinks {
		if sink == nil {
			continue
		}
		if err := sink.Close(h.closeCtx); err != nil {
			h.cfg.logger.Warn("event sink close failed", zap.Error(err))
		}
	}
}
