package dto

import "time"

// LaneRequest payload for create/update.
type LaneRequest struct {
	Name           string  `json:"name"`
	Color          string  `json:"color"`
	KanbanIndex    int     `json:"kanban_index"`
	Workflow       bool    `json:"workflow"`
	TimeoutMinutes float64 `json:"timeout_minutes"`
	ForwardLaneID  *string `json:"forward_lane_id"`
	RollbackLaneID *string `json:"rollback_lane_id"`
	EntryMessage   string  `json:"entry_message"`
}

// LaneResponse response.
type LaneResponse struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Color          string    `json:"color"`
	KanbanIndex    int       `json:"kanban_index"`
	Workflow       bool      `json:"workflow"`
	TimeoutMinutes float64   `json:"timeout_minutes"`
	ForwardLaneID  *string   `json:"forward_lane_id,omitempty"`
	RollbackLaneID *string   `json:"rollback_lane_id,omitempty"`
	EntryMessage   string    `json:"entry_message,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// BoardLaneResponse is one board column with its tickets.
type BoardLaneResponse struct {
	Lane    LaneResponse     `json:"lane"`
	Tickets []TicketResponse `json:"tickets"`
}
