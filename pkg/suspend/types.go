// Package suspend implements the suspend/resume lifecycle: delay-client
// negotiation before each attempt, kernel sleep-mode preparation, dark-resume
// re-evaluation, and the shutdown/hibernate fallback state machine.
package suspend

import "time"

// Action is the outcome of a suspend decision.
type Action int

const (
	ActionSuspend Action = iota
	ActionShutDown
	ActionHibernate
)

func (a Action) String() string {
	switch a {
	case ActionSuspend:
		return "suspend"
	case ActionShutDown:
		return "shutdown"
	case ActionHibernate:
		return "hibernate"
	}
	return "unknown"
}

// Attempt describes one suspend attempt. The sequence number is the sole
// correlation key between a negotiation round and its acknowledgments.
type Attempt struct {
	Sequence uint64
	// WakeupCount is the kernel wakeup count snapshotted when negotiation
	// began, nil if it could not be read. A nil count disables
	// wakeup-count-based cancellation but does not block the attempt.
	WakeupCount *uint64
	// RequestedDuration bounds how long the system should stay suspended.
	// Zero means "until an external wake".
	RequestedDuration time.Duration
}
