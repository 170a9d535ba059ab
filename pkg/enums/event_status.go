package enums

import "fmt"

// EventStatus tracks the processing lifecycle of a money movement event.
// Transitions move forward only: PENDING -> PROCESSING -> COMPLETED|FAILED.
type EventStatus string

const (
	EventStatusPending    EventStatus = "PENDING"
	EventStatusProcessing EventStatus = "PROCESSING"
	EventStatusCompleted  EventStatus = "COMPLETED"
	EventStatusFailed     EventStatus = "FAILED"
)

var validEventStatuses = []EventStatus{
	EventStatusPending,
	EventStatusProcessing,
	EventStatusCompleted,
	EventStatusFailed,
}

// String implements fmt.Stringer.
func (s EventStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is known.
func (s EventStatus) IsValid() bool {
	for _, candidate := range validEventStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// CanTransitionTo reports whether moving to next respects the forward-only
// state machine.
func (s EventStatus) CanTransitionTo(next EventStatus) bool {
	switch s {
	case EventStatusPending:
		return next == EventStatusProcessing || next == EventStatusFailed
	case EventStatusProcessing:
		return next == EventStatusCompleted || next == EventStatusFailed
	default:
		return false
	}
}

// ParseEventStatus converts raw input into an EventStatus.
func ParseEventStatus(value string) (EventStatus, error) {
	for _, candidate := range validEventStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid event status %q", value)
}
