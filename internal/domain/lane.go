package domain

import "time"

// Lane is a stage in a tenant's kanban workflow. Workflow lanes participate in
// timed automation; non-workflow lanes are presentation-only groupings and are
// never touched by the engine.
type Lane struct {
	ID             string
	TenantID       string
	Name           string
	Color          string
	KanbanIndex    int
	Workflow       bool
	TimeoutMinutes float64
	ForwardLaneID  *string
	RollbackLaneID *string
	EntryMessage   string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Timed reports whether a ticket entering this lane gets a deadline. A lane
// without a forward target never arms a timer regardless of its timeout.
func (l *Lane) Timed() bool {
	return l.TimeoutMinutes > 0 && l.ForwardLaneID != nil
}

// TimeoutDuration converts the configured timeout to a duration. Fractional
// minutes are allowed.
func (l *Lane) TimeoutDuration() time.Duration {
	return time.Duration(l.TimeoutMinutes * float64(time.Minute))
}
