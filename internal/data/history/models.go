package history

import "time"

const SchemaVersion = 1

const (
	StatusOK     = "ok"
	StatusFailed = "failed"
)

// Run is one simulation of a network file as recorded by watch or one-shot
// mode.
type Run struct {
	SchemaVersion int           `json:"schema_version"`
	ID            string        `json:"id"`
	Network       string        `json:"network"`
	Kind          string        `json:"kind"`
	StartedAt     time.Time     `json:"started_at"`
	Elapsed       time.Duration `json:"elapsed"`
	Status        string        `json:"status"`
	Warning       int           `json:"warning"`
	Error         string        `json:"error,omitempty"`
	Periods       int           `json:"periods"`
	MinPressure   float64       `json:"min_pressure"`
	MaxPressure   float64       `json:"max_pressure"`
	PeakDemand    float64       `json:"peak_demand"`
	EnergyCost    float64       `json:"energy_cost_per_day"`

	// Nodes is only filled by LoadRun.
	Nodes []NodeExtreme `json:"nodes,omitempty"`
}

// NodeExtreme is the pressure range one node saw over a run.
type NodeExtreme struct {
	NodeID      string  `json:"node_id"`
	MinPressure float64 `json:"min_pressure"`
	MaxPressure float64 `json:"max_pressure"`
}

type TrendPoint struct {
	RunID            string    `json:"run_id"`
	StartedAt        time.Time `json:"started_at"`
	Status           string    `json:"status"`
	MinPressure      float64   `json:"min_pressure"`
	MaxPressure      float64   `json:"max_pressure"`
	EnergyCost       float64   `json:"energy_cost_per_day"`
	DeltaMinPressure float64   `json:"delta_min_pressure"`
	DeltaEnergyCost  float64   `json:"delta_energy_cost"`
	AvgMinPressure   float64   `json:"avg_min_pressure"`
	FailuresInWindow int       `json:"failures_in_window"`
	WindowHours      float64   `json:"window_hours"`
}

type TrendReport struct {
	SchemaVersion int          `json:"schema_version"`
	Network       string       `json:"network"`
	Since         time.Time    `json:"since"`
	Until         time.Time    `json:"until"`
	Window        string       `json:"window"`
	RunCount      int          `json:"run_count"`
	Points        []TrendPoint `json:"points"`
}
