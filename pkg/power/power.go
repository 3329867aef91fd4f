// Package power exposes the battery and line-power state the suspend core
// makes decisions on. Telemetry acquisition lives behind StatusProvider so
// the core never touches fuel-gauge parsing directly.
package power

// Status is one snapshot of the power source state.
type Status struct {
	LinePowerOn                   bool    `json:"linePowerOn"`
	BatteryPercent                float64 `json:"batteryPercent"`
	BatteryBelowShutdownThreshold bool    `json:"batteryBelowShutdownThreshold"`
}

// StatusProvider supplies power snapshots to the suspend core.
type StatusProvider interface {
	// GetStatus returns the most recent snapshot.
	GetStatus() Status
	// RefreshImmediately forces a re-poll and reports whether it succeeded.
	// On failure the previous snapshot remains in effect.
	RefreshImmediately() bool
}
