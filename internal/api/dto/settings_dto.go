package dto

import "time"

// SettingsRequest payload.
type SettingsRequest struct {
	SendAgentSignature bool `json:"send_agent_signature"`
}

// SettingsResponse response.
type SettingsResponse struct {
	SendAgentSignature bool      `json:"send_agent_signature"`
	UpdatedAt          time.Time `json:"updated_at"`
}
