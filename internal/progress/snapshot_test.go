package progress

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSnapshotAllCompleted(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		steps map[int]Step
		want  bool
	}{
		{name: "nil steps", steps: nil, want: false},
		{name: "empty steps", steps: map[int]Step{}, want: false},
		{
			name: "mixed",
			steps: map[int]Step{
				1: {Status: StatusCompleted},
				2: {Status: StatusActive},
			},
			want: false,
		},
		{
			name: "all completed",
			steps: map[int]Step{
				1: {Status: StatusCompleted},
				2: {Status: StatusCompleted},
				3: {Status: StatusCompleted},
				4: {Status: StatusCompleted},
				5: {Status: StatusCompleted},
			},
			want: true,
		},
		{
			name:  "sparse but completed",
			steps: map[int]Step{3: {Status: StatusCompleted}},
			want:  true,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tc.want, Snapshot{Steps: tc.steps}.AllCompleted())
		})
	}
}

func TestSnapshotIndexesSorted(t *testing.T) {
	t.Parallel()

	snap := Snapshot{Steps: map[int]Step{4: {}, 1: {}, 3: {}}}
	require.Equal(t, []int{1, 3, 4}, snap.Indexes())
}

func TestDecodeActiveEnvelope(t *testing.T) {
	t.Parallel()

	body := []byte(`{
		"success": true,
		"progress": {
			"current_step": 2,
			"steps": {
				"1": {"status": "completed", "message": "Uploaded"},
				"2": {"status": "active", "message": "Parsing"}
			}
		}
	}`)

	env, err := Decode(body)
	require.NoError(t, err)
	require.True(t, env.Active())
	require.Equal(t, 2, env.Progress.CurrentStep)
	require.Equal(t, Step{Status: StatusCompleted, Message: "Uploaded"}, env.Progress.Steps[1])
	require.Equal(t, StatusActive, env.Progress.Steps[2].Status)
}

func TestDecodeJobAbsent(t *testing.T) {
	t.Parallel()

	for _, body := range []string{
		`{"success": false}`,
		`{"success": true}`,
		`{"success": false, "progress": {"current_step": 1, "steps": {}}}`,
	} {
		env, err := Decode([]byte(body))
		require.NoError(t, err, body)
		require.False(t, env.Active(), body)
	}
}

func TestDecodeRejectsMalformedBodies(t *testing.T) {
	t.Parallel()

	for _, body := range []string{
		`<html>502 Bad Gateway</html>`,
		`{"success": true, "progress": {"steps": {"one": {"status": "active"}}}}`,
		`{"success": true, "progress": {"steps": {"1": {"status": "exploded"}}}}`,
		`{"success": true, "progress": {"current_step": -1}}`,
	} {
		_, err := Decode([]byte(body))
		require.Error(t, err, body)
		require.True(t, errors.Is(err, ErrDecode), body)
	}
}
