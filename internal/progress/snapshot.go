package progress

import (
	"errors"
	"fmt"
	"sort"
)

// StepStatus is the lifecycle state of a single step.
type StepStatus string

// Step states reported by the progress service.
const (
	StatusPending   StepStatus = "pending"
	StatusActive    StepStatus = "active"
	StatusCompleted StepStatus = "completed"
)

// TotalSteps is the number of slots the progress display renders.
const TotalSteps = 5

// Valid reports whether s is one of the known step states.
func (s StepStatus) Valid() bool {
	switch s {
	case StatusPending, StatusActive, StatusCompleted:
		return true
	default:
		return false
	}
}

// Step is one entry of a snapshot.
type Step struct {
	Status  StepStatus `json:"status"`
	Message string     `json:"message"`
}

// Snapshot is one decoded progress payload.
type Snapshot struct {
	// CurrentStep is the 1-based step the job is working on. Zero means the
	// server did not report one.
	CurrentStep int `json:"current_step"`
	// Steps maps step index to its state. It may be empty or sparse.
	Steps map[int]Step `json:"steps"`
}

// AllCompleted reports whether every reported step is completed. An empty
// Steps mapping is never complete, so a snapshot that arrives before any step
// data cannot end tracking early.
func (s Snapshot) AllCompleted() bool {
	if len(s.Steps) == 0 {
		return false
	}
	for _, step := range s.Steps {
		if step.Status != StatusCompleted {
			return false
		}
	}
	return true
}

// Indexes returns the step indexes in ascending order.
func (s Snapshot) Indexes() []int {
	out := make([]int, 0, len(s.Steps))
	for idx := range s.Steps {
		out = append(out, idx)
	}
	sort.Ints(out)
	return out
}

// Validate performs coarse validation on snapshot payloads.
func (s Snapshot) Validate() error {
	if s.CurrentStep < 0 {
		return errors.New("current_step must be >= 0")
	}
	for idx, step := range s.Steps {
		if idx <= 0 {
			return fmt.Errorf("step index %d must be > 0", idx)
		}
		if step.Status != "" && !step.Status.Valid() {
			return fmt.Errorf("step %d has unknown status %q", idx, step.Status)
		}
	}
	return nil
}
