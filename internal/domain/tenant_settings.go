package domain

import "time"

// TenantSettings carries per-tenant behavior toggles consumed by the engine.
type TenantSettings struct {
	TenantID           string
	SendAgentSignature bool
	UpdatedAt          time.Time
}

// DefaultTenantSettings returns the settings applied when a tenant has never
// saved any.
func DefaultTenantSettings(tenantID string) *TenantSettings {
	return &TenantSettings{TenantID: tenantID}
}
