// Package progressboard keeps per-subject step boards in memory and drives
// them with a scripted simulator. It backs the local progress service.
package progressboard

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/JakeFAU/progress-tracker/internal/progress"
)

var (
	// ErrNotFound is returned when a subject has no board.
	ErrNotFound = errors.New("subject not tracked")
	// ErrExists is returned when Begin is called for a tracked subject.
	ErrExists = errors.New("subject already tracked")
)

// Board provides an in-memory store of step boards keyed by subject.
type Board struct {
	mu     sync.RWMutex
	boards map[string]progress.Snapshot
}

// New constructs an empty Board.
func New() *Board {
	return &Board{boards: make(map[string]progress.Snapshot)}
}

// Begin creates a board for subject with step 1 active and the rest pending.
func (b *Board) Begin(_ context.Context, subject string, messages []string) error {
	if subject == "" {
		return errors.New("subject is required")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, exists := b.boards[subject]; exists {
		return fmt.Errorf("begin %q: %w", subject, ErrExists)
	}
	steps := make(map[int]progress.Step, progress.TotalSteps)
	for i := 1; i <= progress.TotalSteps; i++ {
		step := progress.Step{Status: progress.StatusPending}
		if i <= len(messages) {
			step.Message = messages[i-1]
		}
		steps[i] = step
	}
	first := steps[1]
	first.Status = progress.StatusActive
	steps[1] = first
	b.boards[subject] = progress.Snapshot{CurrentStep: 1, Steps: steps}
	return nil
}

// Update sets one step and makes it the current step. An empty message keeps
// the existing one.
func (b *Board) Update(_ context.Context, subject string, index int, status progress.StepStatus, message string) error {
	if index < 1 || index > progress.TotalSteps {
		return fmt.Errorf("step %d out of range 1..%d", index, progress.TotalSteps)
	}
	if !status.Valid() {
		return fmt.Errorf("unknown status %q", status)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	snap, ok := b.boards[subject]
	if !ok {
		return fmt.Errorf("update %q: %w", subject, ErrNotFound)
	}
	step := snap.Steps[index]
	step.Status = status
	if message != "" {
		step.Message = message
	}
	snap.Steps[index] = step
	snap.CurrentStep = index
	b.boards[subject] = snap
	return nil
}

// Get returns a copy of the board for subject.
func (b *Board) Get(_ context.Context, subject string) (progress.Snapshot, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	snap, ok := b.boards[subject]
	if !ok {
		return progress.Snapshot{}, fmt.Errorf("get %q: %w", subject, ErrNotFound)
	}
	out := progress.Snapshot{CurrentStep: snap.CurrentStep, Steps: make(map[int]progress.Step, len(snap.Steps))}
	for idx, step := range snap.Steps {
		out.Steps[idx] = step
	}
	return out, nil
}

// Remove drops the board for subject and reports whether one existed.
func (b *Board) Remove(_ context.Context, subject string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.boards[subject]
	delete(b.boards, subject)
	return ok
}

// Subjects lists tracked subjects in lexical order.
func (b *Board) Subjects() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]string, 0, len(b.boards))
	for subject := range b.boards {
		out = append(out, subject)
	}
	sort.Strings(out)
	return out
}
