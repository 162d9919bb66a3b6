package pubsub

import "errors"

// Domain outcomes returned to the HTTP layer. Infrastructure faults are
// wrapped errors and map to a generic 500.
var (
	// ErrSubscriberNotFound is returned when a subscriber id does not
	// exist, or when unsubscribing a subscriber that is already inactive.
	ErrSubscriberNotFound = errors.New("subscriber not found")

	// ErrMessageNotFound is returned when a requested message exists in
	// neither the cache nor the store.
	ErrMessageNotFound = errors.New("message not found")
)
