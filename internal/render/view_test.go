package render

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/progress-tracker/internal/progress"
)

func TestBuildViewDefaults(t *testing.T) {
	v := BuildView(progress.Snapshot{})

	require.Equal(t, 1, v.CurrentStep)
	require.InDelta(t, 20.0, v.Percent, 0.001)
	require.Len(t, v.Slots, progress.TotalSteps)
	for i, slot := range v.Slots {
		require.Equal(t, i+1, slot.Index)
		require.Equal(t, progress.StatusPending, slot.Status)
		require.Equal(t, IconPending, slot.Icon)
	}
	require.Equal(t, "Step 3", v.Slots[2].Message)
}

func TestBuildViewMapsSteps(t *testing.T) {
	v := BuildView(progress.Snapshot{
		CurrentStep: 3,
		Steps: map[int]progress.Step{
			1: {Status: progress.StatusCompleted, Message: "Login"},
			2: {Status: progress.StatusCompleted},
			3: {Status: progress.StatusActive, Message: "Scraping"},
			9: {Status: progress.StatusActive, Message: "ignored"},
		},
	})

	require.InDelta(t, 60.0, v.Percent, 0.001)
	require.Equal(t, Slot{Index: 1, Status: progress.StatusCompleted, Message: "Login", Icon: IconCompleted}, v.Slots[0])
	require.Equal(t, "Step 2", v.Slots[1].Message)
	require.Equal(t, IconActive, v.Slots[2].Icon)
	require.Equal(t, progress.StatusPending, v.Slots[3].Status)
	require.Len(t, v.Slots, progress.TotalSteps)
}

func TestBuildViewCapsPercent(t *testing.T) {
	for _, current := range []int{6, 1000, math.MaxInt} {
		v := BuildView(progress.Snapshot{CurrentStep: current})
		require.Equal(t, current, v.CurrentStep)
		require.InDelta(t, 100.0, v.Percent, 0.001)
	}
}
