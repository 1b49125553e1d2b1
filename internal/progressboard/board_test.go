package progressboard

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/progress-tracker/internal/progress"
)

func TestBoardLifecycle(t *testing.T) {
	t.Parallel()

	board := New()
	ctx := context.Background()

	require.NoError(t, board.Begin(ctx, "user-1", []string{"Upload"}))
	require.ErrorIs(t, board.Begin(ctx, "user-1", nil), ErrExists)
	require.Error(t, board.Begin(ctx, "", nil))

	snap, err := board.Get(ctx, "user-1")
	require.NoError(t, err)
	require.Equal(t, 1, snap.CurrentStep)
	require.Len(t, snap.Steps, progress.TotalSteps)
	require.Equal(t, progress.Step{Status: progress.StatusActive, Message: "Upload"}, snap.Steps[1])
	require.Equal(t, progress.StatusPending, snap.Steps[5].Status)

	snap.Steps[1] = progress.Step{Status: progress.StatusCompleted}
	again, err := board.Get(ctx, "user-1")
	require.NoError(t, err)
	require.Equal(t, progress.StatusActive, again.Steps[1].Status, "Get returns a copy")

	require.NoError(t, board.Update(ctx, "user-1", 3, progress.StatusActive, "Extract"))
	snap, err = board.Get(ctx, "user-1")
	require.NoError(t, err)
	require.Equal(t, 3, snap.CurrentStep)
	require.Equal(t, "Extract", snap.Steps[3].Message)

	require.NoError(t, board.Update(ctx, "user-1", 3, progress.StatusCompleted, ""))
	snap, err = board.Get(ctx, "user-1")
	require.NoError(t, err)
	require.Equal(t, progress.Step{Status: progress.StatusCompleted, Message: "Extract"}, snap.Steps[3])

	require.Equal(t, []string{"user-1"}, board.Subjects())
	require.True(t, board.Remove(ctx, "user-1"))
	require.False(t, board.Remove(ctx, "user-1"))
	_, err = board.Get(ctx, "user-1")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestBoardUpdateValidation(t *testing.T) {
	t.Parallel()

	board := New()
	ctx := context.Background()
	require.ErrorIs(t, board.Update(ctx, "ghost", 1, progress.StatusActive, ""), ErrNotFound)

	require.NoError(t, board.Begin(ctx, "s", nil))
	require.Error(t, board.Update(ctx, "s", 0, progress.StatusActive, ""))
	require.Error(t, board.Update(ctx, "s", 6, progress.StatusActive, ""))
	require.Error(t, board.Update(ctx, "s", 2, "finished", ""))
}
