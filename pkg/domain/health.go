package domain

import "time"

// HealthStatus represents the health of a chain (or of the whole mesh).
type HealthStatus string

const (
	HealthHealthy   HealthStatus = "healthy"
	HealthDegraded  HealthStatus = "degraded"
	HealthUnhealthy HealthStatus = "unhealthy"
	HealthUnknown   HealthStatus = "unknown"
)

// HealthMetrics holds the latest measurements for a chain.
type HealthMetrics struct {
	Timestamp      time.Time      `json:"timestamp"`
	ResponseTimeMs float64        `json:"response_time_ms"`
	ErrorRate      float64        `json:"error_rate"`
	Availability   float64        `json:"availability"`
	IsAlive        bool           `json:"is_alive"`
	LastChecked    time.Time      `json:"last_checked"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}
