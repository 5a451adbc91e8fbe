package dto

import (
	"time"

	"github.com/spec-kit/kanban-service/internal/domain"
)

// CreateTicketRequest payload.
type CreateTicketRequest struct {
	ContactName   string  `json:"contact_name"`
	ContactNumber string  `json:"contact_number"`
	Subject       string  `json:"subject"`
	AssigneeName  *string `json:"assignee_name"`
	LaneID        *string `json:"lane_id"`
}

// MoveTicketRequest payload. SendGreeting defaults to true when omitted.
type MoveTicketRequest struct {
	LaneID       string `json:"lane_id"`
	SendGreeting *bool  `json:"send_greeting"`
}

// RecordMessageRequest payload for the ingestion hook.
type RecordMessageRequest struct {
	Direction string `json:"direction"`
	Body      string `json:"body"`
}

// TicketResponse response.
type TicketResponse struct {
	ID                string     `json:"id"`
	LaneID            *string    `json:"lane_id,omitempty"`
	ContactName       string     `json:"contact_name"`
	ContactNumber     string     `json:"contact_number"`
	Subject           string     `json:"subject"`
	AssigneeName      *string    `json:"assignee_name,omitempty"`
	TimerStartedAt    *time.Time `json:"timer_started_at,omitempty"`
	NextDeadline      *time.Time `json:"next_deadline,omitempty"`
	AutomationEnabled bool       `json:"automation_enabled"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// TransitionResponse is one lane-history entry.
type TransitionResponse struct {
	ID         string                   `json:"id"`
	FromLaneID *string                  `json:"from_lane_id,omitempty"`
	ToLaneID   string                   `json:"to_lane_id"`
	Trigger    domain.TransitionTrigger `json:"trigger"`
	OccurredAt time.Time                `json:"occurred_at"`
}
