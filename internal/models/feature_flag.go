package models

import "time"

// FeatureFlag is a centrally stored toggle with an independent kill switch.
type FeatureFlag struct {
	Key          string    `json:"key"`
	Name         string    `json:"name"`
	Description  *string   `json:"description,omitempty"`
	DefaultState bool      `json:"default_state"`
	IsActive     bool      `json:"is_active"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Enabled is the effective state. A nil flag is disabled.
func (f *FeatureFlag) Enabled() bool {
	return f != nil && f.IsActive && f.DefaultState
}
