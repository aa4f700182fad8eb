package entities

import (
	"time"
)

// Type classifies what an entity represents
type Type string

const (
	TypeSensor Type = "sensor"
	TypeSwitch Type = "switch"
)

// State is the typed snapshot of a single observable or controllable value.
// Integrations build these from their vendor snapshot structs in one place,
// so a misnamed field fails at compile time instead of rendering "unknown".
type State struct {
	ID            string                 `json:"id"`
	IntegrationID string                 `json:"integration_id"`
	Name          string                 `json:"name"`
	Type          Type                   `json:"type"`
	Value         interface{}            `json:"value"`
	Unit          string                 `json:"unit,omitempty"`
	Icon          string                 `json:"icon,omitempty"`
	Available     bool                   `json:"available"`
	Attributes    map[string]interface{} `json:"attributes,omitempty"`
	UpdatedAt     time.Time              `json:"updated_at"`
}
