package lifecycle

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestTeardownRunsHooksOnceInReverseOrder(t *testing.T) {
	t.Parallel()

	hooks := New(zap.NewNop())
	var order []int
	hooks.OnTeardown(func(context.Context) { order = append(order, 1) })
	hooks.OnTeardown(func(context.Context) { order = append(order, 2) })
	require.Equal(t, 2, hooks.Len())

	hooks.Teardown(context.Background())
	hooks.Teardown(context.Background())

	require.Equal(t, []int{2, 1}, order)
	require.Zero(t, hooks.Len())
}

func TestTeardownSurvivesPanickingHook(t *testing.T) {
	t.Parallel()

	hooks := New(nil)
	ran := false
	hooks.OnTeardown(func(context.Context) { ran = true })
	hooks.OnTeardown(func(context.Context) { panic("boom") })

	require.NotPanics(t, func() { hooks.Teardown(context.Background()) })
	require.True(t, ran)
}

func TestLateRegistrationRunsImmediately(t *testing.T) {
	t.Parallel()

	hooks := New(nil)
	hooks.Teardown(context.Background())

	ran := false
	hooks.OnTeardown(func(context.Context) { ran = true })
	require.True(t, ran)

	hooks.OnTeardown(nil)
}
