package order

var allowedTransitions = map[State][]EventType{
	StateInit: {
		EventOrderRequested,
	},
	StateRequested: {
		EventOrderValidated,
		EventOrderCancelled,
	},
	StateValidated: {
		EventPaymentInitiated,
		EventOrderCancelled,
	},
	StatePaymentInProgress: {
		EventPaymentSucceeded,
		EventPaymentFailed,
	},
	StateFailed: {
		EventPaymentInitiated, // retry
		EventOrderCancelled,
	},
	StateConfirmed: {},
	StateCancelled: {},
}

func CanTransition(state State, t EventType) bool {
	if t == EventPaymentRefunded {
		return state == StateCancelled
	}
	for _, allowed := range allowedTransitions[state] {
		if allowed == t {
			return true
		}
	}
	return false
}

// AssertValidTransition rejects t when the table forbids it from state.
// Refunds bypass the table and are gated on CANCELLED only.
func AssertValidTransition(state State, t EventType) error {
	if !CanTransition(state, t) {
		return &InvalidTransitionError{State: state, EventType: t}
	}
	return nil
}
