// Package integrations defines the contract every vendor integration
// implements and the manager that owns their polling coordinators.
package integrations

import (
	"context"
	"time"

	"github.com/hearth-home/hearth-backend-go/internal/entities"
)

// Integration adapts one external device or service family. Refresh performs
// the vendor fetch and converts the typed snapshot into entity states in a
// single step, so all field mapping lives next to the client that produced
// the data.
type Integration interface {
	// ID is the stable identifier used for entity ownership and metrics
	ID() string

	// Name is the human-readable integration name
	Name() string

	// Interval is the desired time between refresh attempts
	Interval() time.Duration

	// Refresh fetches current data from the vendor and returns the resulting
	// entity states. It must bound its own latency via ctx or client
	// timeouts.
	Refresh(ctx context.Context) ([]entities.State, error)

	// Close releases vendor connections. Called once during teardown.
	Close() error
}

// ActionHandler is implemented by integrations whose entities accept
// commands (switch toggles and the like).
type ActionHandler interface {
	HandleAction(ctx context.Context, entityID, action string) error
}

// Health is the per-integration status surfaced by the API
type Health struct {
	ID                  string        `json:"id"`
	Name                string        `json:"name"`
	State               string        `json:"state"`
	ConsecutiveFailures int           `json:"consecutive_failures"`
	LastSuccess         *time.Time    `json:"last_success,omitempty"`
	Interval            time.Duration `json:"interval"`
	Entities            int           `json:"entities"`
}

// RefreshRecord is one refresh outcome written to the refresh log
type RefreshRecord struct {
	IntegrationID string
	Success       bool
	Duration      time.Duration
	Error         string
	At            time.Time
}

// RefreshRecorder persists refresh outcomes; the database layer implements it
type RefreshRecorder interface {
	RecordRefresh(ctx context.Context, record RefreshRecord) error
}

// StatusSink receives integration status transitions for live broadcast
type StatusSink interface {
	OnIntegrationStatus(health Health)
}
