package domain

import "time"

// AgentEvent is a lifecycle notification fanned out to dashboard clients.
// Published on every status transition and on background-task failures.
type AgentEvent struct {
	AgentID string      `json:"agent_id"`
	Slug    string      `json:"slug"`
	Status  AgentStatus `json:"status"`
	Message string      `json:"message,omitempty"`
	At      time.Time   `json:"at"`
}

// StatsSnapshot is a point-in-time container resource reading.
type StatsSnapshot struct {
	MemoryMb   float64   `json:"memory_mb"`
	CPUPercent float64   `json:"cpu_percent"`
	ReadAt     time.Time `json:"read_at"`
}
