package health

import "time"

// States a dependency check can report.
const (
	CheckUp       = "up"
	CheckDown     = "down"
	CheckDisabled = "disabled"
)

// Status captures the state of the callback listener at a moment in time.
type Status struct {
	Service     string            `json:"service"`
	Version     string            `json:"version"`
	Environment string            `json:"environment"`
	Status      string            `json:"status"`
	StartedAt   time.Time         `json:"startedAt"`
	Uptime      string            `json:"uptime"`
	UptimeSecs  int64             `json:"uptimeSeconds"`
	Checks      map[string]string `json:"checks,omitempty"`
}
