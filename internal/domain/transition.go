package domain

import "time"

// TransitionTrigger identifies what caused a lane change.
type TransitionTrigger string

const (
	TriggerManual           TransitionTrigger = "manual"
	TriggerTimer            TransitionTrigger = "timer"
	TriggerCustomerResponse TransitionTrigger = "customer_response"
)

// LaneTransition is an immutable audit entry recording a single lane change.
// FromLaneID is nil when the ticket entered the board for the first time.
type LaneTransition struct {
	ID         string
	TenantID   string
	TicketID   string
	FromLaneID *string
	ToLaneID   string
	Trigger    TransitionTrigger
	OccurredAt time.Time
}
