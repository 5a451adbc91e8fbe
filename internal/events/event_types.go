package events

import (
	"time"

	"github.com/spec-kit/kanban-service/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventTicketLaneMoved    EventType = "ticket_lane_moved"
	EventLaneTimerStarted   EventType = "lane_timer_started"
	EventLaneTimerCancelled EventType = "lane_timer_cancelled"
	EventSweepCompleted     EventType = "sweep_completed"
)

// Event represents a domain event emitted by the automation engine.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	TenantID  string      `json:"tenant_id"`
	TicketID  string      `json:"ticket_id,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// TicketLaneMovedPayload payload.
type TicketLaneMovedPayload struct {
	FromLaneID *string                  `json:"from_lane_id,omitempty"`
	ToLaneID   string                   `json:"to_lane_id"`
	Trigger    domain.TransitionTrigger `json:"trigger"`
	Ticket     TicketSnapshot           `json:"ticket"`
}

// LaneTimerStartedPayload payload.
type LaneTimerStartedPayload struct {
	LaneID       string    `json:"lane_id"`
	StartedAt    time.Time `json:"started_at"`
	NextDeadline time.Time `json:"next_deadline"`
}

// LaneTimerCancelledPayload payload.
type LaneTimerCancelledPayload struct {
	LaneID *string `json:"lane_id,omitempty"`
	Reason string  `json:"reason"`
}

// SweepCompletedPayload payload.
type SweepCompletedPayload struct {
	Processed int `json:"processed"`
	Failed    int `json:"failed"`
}

// TicketSnapshot is the board-facing view of a ticket pushed to real-time
// subscribers.
type TicketSnapshot struct {
	ID                string     `json:"id"`
	LaneID            *string    `json:"lane_id,omitempty"`
	ContactName       string     `json:"contact_name"`
	Subject           string     `json:"subject"`
	TimerStartedAt    *time.Time `json:"timer_started_at,omitempty"`
	NextDeadline      *time.Time `json:"next_deadline,omitempty"`
	AutomationEnabled bool       `json:"automation_enabled"`
}

// SnapshotTicket builds a TicketSnapshot from the domain ticket.
func SnapshotTicket(ticket *domain.Ticket) TicketSnapshot {
	return TicketSnapshot{
		ID:                ticket.ID,
		LaneID:            ticket.LaneID,
		ContactName:       ticket.ContactName,
		Subject:           ticket.Subject,
		TimerStartedAt:    ticket.TimerStartedAt,
		NextDeadline:      ticket.NextDeadline,
		AutomationEnabled: ticket.AutomationEnabled,
	}
}
