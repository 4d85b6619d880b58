package natlink

import "fmt"

type defState string

type defEvent string

const (
	stateIdle     defState = "idle"
	stateDefining defState = "defining"
)

const (
	eventBeginRule defEvent = "begin-rule"
	eventEndRule   defEvent = "end-rule"
	eventEmit      defEvent = "emit"
	eventFinalize  defEvent = "finalize"
)

func transition(current defState, event defEvent) (defState, error) {
	switch current {
	case stateIdle:
		switch event {
		case eventBeginRule:
			return stateDefining, nil
		case eventFinalize:
			return stateIdle, nil
		default:
			return current, invalidTransition(current, event)
		}
	case stateDefining:
		switch event {
		case eventEmit:
			return stateDefining, nil
		case eventEndRule:
			return stateIdle, nil
		default:
			return current, invalidTransition(current, event)
		}
	default:
		return current, fmt.Errorf("unknown definition state %q", current)
	}
}

func invalidTransition(state defState, event defEvent) error {
	return fmt.Errorf("invalid transition: %s --(%s)--> ?", state, event)
}
