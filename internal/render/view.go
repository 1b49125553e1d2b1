// Package render turns progress snapshots into something a person can read:
// a styled terminal panel, plain text lines, or structured log entries.
package render

import (
	"fmt"

	"github.com/JakeFAU/progress-tracker/internal/progress"
)

// Icons shown next to each slot.
const (
	IconCompleted = "✔"
	IconActive    = "➜"
	IconPending   = "○"
)

// Slot is one of the fixed display positions.
type Slot struct {
	Index   int
	Status  progress.StepStatus
	Message string
	Icon    string
}

// View is the display model derived from a snapshot.
type View struct {
	CurrentStep int
	Percent     float64
	Slots       []Slot
}

// BuildView maps a snapshot onto progress.TotalSteps slots. A missing current
// step counts as step 1, missing steps are pending and unnamed steps are
// labelled "Step i". Steps outside the slot range are not displayed and the
// percentage never exceeds 100.
func BuildView(s progress.Snapshot) View {
	current := s.CurrentStep
	if current <= 0 {
		current = 1
	}
	v := View{
		CurrentStep: current,
		Percent:     min(float64(current)/float64(progress.TotalSteps)*100, 100),
		Slots:       make([]Slot, 0, progress.TotalSteps),
	}
	for i := 1; i <= progress.TotalSteps; i++ {
		step := s.Steps[i]
		status := step.Status
		if status == "" {
			status = progress.StatusPending
		}
		msg := step.Message
		if msg == "" {
			msg = fmt.Sprintf("Step %d", i)
		}
		v.Slots = append(v.Slots, Slot{Index: i, Status: status, Message: msg, Icon: icon(status)})
	}
	return v
}

func icon(status progress.StepStatus) string {
	switch status {
	case progress.StatusCompleted:
		return IconCompleted
	case progress.StatusActive:
		return IconActive
	default:
		return IconPending
	}
}
