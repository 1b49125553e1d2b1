package progressboard

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/progress-tracker/internal/clock"
	"github.com/JakeFAU/progress-tracker/internal/clock/system"
	"github.com/JakeFAU/progress-tracker/internal/progress"
)

// DefaultMessages label the simulated steps.
var DefaultMessages = []string{
	"Upload document",
	"Analyze document",
	"Extract learning objectives",
	"Process with AI",
	"Save to database",
}

// Simulator walks boards through their steps: every interval the current
// step completes and the next one becomes active.
type Simulator struct {
	board    *Board
	clock    clock.Clock
	interval time.Duration
	messages []string
	logger   *zap.Logger

	mu     sync.Mutex
	timers map[string]clock.Timer
}

// SimulatorOption customizes a Simulator.
type SimulatorOption func(*Simulator)

// WithClock overrides the system clock.
func WithClock(clk clock.Clock) SimulatorOption {
	return func(s *Simulator) {
		if clk != nil {
			s.clock = clk
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) SimulatorOption {
	return func(s *Simulator) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMessages replaces DefaultMessages.
func WithMessages(messages []string) SimulatorOption {
	return func(s *Simulator) {
		s.messages = messages
	}
}

// NewSimulator builds a Simulator advancing boards every interval.
func NewSimulator(board *Board, interval time.Duration, opts ...SimulatorOption) (*Simulator, error) {
	if board == nil {
		return nil, errors.New("board is required")
	}
	if interval <= 0 {
		return nil, errors.New("interval must be > 0")
	}
	s := &Simulator{
		board:    board,
		clock:    system.New(),
		interval: interval,
		messages: DefaultMessages,
		logger:   zap.NewNop(),
		timers:   make(map[string]clock.Timer),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Run starts a job for subject. The board is created immediately and the
// remaining steps advance on the simulator's interval.
func (s *Simulator) Run(ctx context.Context, subject string) error {
	if err := s.board.Begin(ctx, subject, s.messages); err != nil {
		return fmt.Errorf("run simulation: %w", err)
	}
	s.logger.Info("simulated job started", zap.String("subject", subject))
	s.schedule(subject, 1)
	return nil
}

// Cancel stops advancing subject's board and removes it. It reports whether a
// board existed.
func (s *Simulator) Cancel(ctx context.Context, subject string) bool {
	s.mu.Lock()
	if t, ok := s.timers[subject]; ok {
		t.Stop()
		delete(s.timers, subject)
	}
	s.mu.Unlock()
	return s.board.Remove(ctx, subject)
}

func (s *Simulator) schedule(subject string, current int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.timers[subject] = s.clock.AfterFunc(s.interval, func() { s.advance(subject, current) })
}

func (s *Simulator) advance(subject string, current int) {
	ctx := context.Background()
	if err := s.board.Update(ctx, subject, current, progress.StatusCompleted, ""); err != nil {
		// the board was removed between ticks
		s.forget(subject)
		return
	}
	next := current + 1
	if next > progress.TotalSteps {
		s.forget(subject)
		s.logger.Info("simulated job completed", zap.String("subject", subject))
		return
	}
	if err := s.board.Update(ctx, subject, next, progress.StatusActive, ""); err != nil {
		s.forget(subject)
		return
	}
	s.schedule(subject, next)
}

func (s *Simulator) forget(subject string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.timers, subject)
}

// Running reports how many boards are still advancing.
func (s *Simulator) Running() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}
