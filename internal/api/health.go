package api

import "time"

// HealthResponse reports whether a Claude pane is currently addressable.
// Status is "ok" even when no session is active; tmux trouble is "degraded".
type HealthResponse struct {
	Status    string    `json:"status"`
	Target    string    `json:"target,omitempty"`
	Session   string    `json:"session,omitempty"`
	Window    string    `json:"window,omitempty"`
	Active    bool      `json:"active"`
	Timestamp time.Time `json:"timestamp"`
}

const (
	StatusOK       = "ok"
	StatusDegraded = "degraded"
)
