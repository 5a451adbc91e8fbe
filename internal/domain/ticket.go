package domain

import "time"

// Ticket is a support conversation tracked on the board. LaneID is derived from
// the ticket's single active workflow-lane membership and is never written as a
// scalar; it is nil when the ticket is off the board.
type Ticket struct {
	ID            string
	TenantID      string
	ContactName   string
	ContactNumber string
	Subject       string
	AssigneeName  *string
	LaneID        *string
	TimerState
	CreatedAt time.Time
	UpdatedAt time.Time
}

// TimerState holds the per-ticket automation fields. TimerStartedAt and
// NextDeadline are set together or not at all.
type TimerState struct {
	TimerStartedAt    *time.Time
	NextDeadline      *time.Time
	AutomationEnabled bool
}

// TimerActive reports whether the ticket is under an armed lane timer.
func (t TimerState) TimerActive() bool {
	return t.TimerStartedAt != nil && t.NextDeadline != nil
}

// ClearedTimer returns a state with timers cleared and the automation flag set
// as given.
func ClearedTimer(automationEnabled bool) TimerState {
	return TimerState{AutomationEnabled: automationEnabled}
}

// ArmedTimer returns a state with the timer anchored at startedAt and firing at
// deadline. Arming always re-enables automation.
func ArmedTimer(startedAt, deadline time.Time) TimerState {
	return TimerState{
		TimerStartedAt:    &startedAt,
		NextDeadline:      &deadline,
		AutomationEnabled: true,
	}
}
