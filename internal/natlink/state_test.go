package natlink

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTransitionHappyPath(t *testing.T) {
	s := stateIdle

	next, err := transition(s, eventBeginRule)
	require.NoError(t, err)
	require.Equal(t, stateDefining, next)

	next, err = transition(next, eventEmit)
	require.NoError(t, err)
	require.Equal(t, stateDefining, next)

	next, err = transition(next, eventEndRule)
	require.NoError(t, err)
	require.Equal(t, stateIdle, next)

	next, err = transition(next, eventFinalize)
	require.NoError(t, err)
	require.Equal(t, stateIdle, next)
}

func TestTransitionMatrixInvalidTransitions(t *testing.T) {
	tests := []struct {
		name  string
		state defState
		event defEvent
	}{
		{name: "idle emit invalid", state: stateIdle, event: eventEmit},
		{name: "idle end-rule invalid", state: stateIdle, event: eventEndRule},
		{name: "defining begin-rule invalid", state: stateDefining, event: eventBeginRule},
		{name: "defining finalize invalid", state: stateDefining, event: eventFinalize},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			next, err := transition(tc.state, tc.event)
			require.Equal(t, tc.state, next)
			require.Error(t, err)
			require.Contains(t, err.Error(), "invalid transition")
		})
	}
}

func TestTransitionUnknownState(t *testing.T) {
	next, err := transition(defState("mystery"), eventBeginRule)
	require.Error(t, err)
	require.Contains(t, err.Error(), "unknown definition state")
	require.Equal(t, defState("mystery"), next)
}
