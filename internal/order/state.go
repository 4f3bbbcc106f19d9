package order

type State string

const (
	StateInit              State = "INIT"
	StateRequested         State = "REQUESTED"
	StateValidated         State = "VALIDATED"
	StatePaymentInProgress State = "PAYMENT_IN_PROGRESS"
	StateConfirmed         State = "CONFIRMED"
	StateFailed            State = "FAILED"
	StateCancelled         State = "CANCELLED"
)

type EventType string

const (
	EventOrderRequested   EventType = "ORDER_REQUESTED"
	EventOrderValidated   EventType = "ORDER_VALIDATED"
	EventPaymentInitiated EventType = "PAYMENT_INITIATED"
	EventPaymentSucceeded EventType = "PAYMENT_SUCCEEDED"
	EventPaymentFailed    EventType = "PAYMENT_FAILED"
	EventOrderCancelled   EventType = "ORDER_CANCELLED"
	EventPaymentRefunded  EventType = "PAYMENT_REFUNDED"
)

// resulting maps an event type to the state it leaves the order in.
// PAYMENT_REFUNDED is a side-channel event and does not move the state.
var resulting = map[EventType]State{
	EventOrderRequested:   StateRequested,
	EventOrderValidated:   StateValidated,
	EventPaymentInitiated: StatePaymentInProgress,
	EventPaymentSucceeded: StateConfirmed,
	EventPaymentFailed:    StateFailed,
	EventOrderCancelled:   StateCancelled,
}

// Apply returns the state after an event of type t. Event types this
// build does not know leave the state unchanged.
func (s State) Apply(t EventType) State {
	if next, ok := resulting[t]; ok {
		return next
	}
	return s
}

// Derive folds an ordered event stream into the current lifecycle state.
func Derive(events []Event) State {
	state := StateInit
	for _, ev := range events {
		state = state.Apply(ev.Type)
	}
	return state
}

// DeriveTypes is Derive over bare event types.
func DeriveTypes(types ...EventType) State {
	state := StateInit
	for _, t := range types {
		state = state.Apply(t)
	}
	return state
}
