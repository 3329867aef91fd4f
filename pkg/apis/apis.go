// Package apis holds the wire types shared between the daemon's unix socket
// API and the client.
package apis

// RegisterDelayRequest registers a suspend delay.
type RegisterDelayRequest struct {
	Description string `json:"description"`
	// TimeoutMilliseconds is how long the daemon will wait for this client's
	// readiness ack before proceeding anyway. Capped by the daemon.
	TimeoutMilliseconds int64 `json:"timeoutMs"`
}

// RegisterDelayResponse carries the delay ID to ack and unregister with.
type RegisterDelayResponse struct {
	ID string `json:"id"`
}

// AckDelayRequest acknowledges readiness for one suspend attempt.
type AckDelayRequest struct {
	Sequence uint64 `json:"sequence"`
}

// ChargePolicyRequest updates the adaptive charge policy.
type ChargePolicyRequest struct {
	Enabled        *bool    `json:"enabled,omitempty"`
	HoldPercent    *float64 `json:"holdPercent,omitempty"`
	MinProbability *float64 `json:"minProbability,omitempty"`
}

// DelayInfo describes one registered suspend delay.
type DelayInfo struct {
	ID          string `json:"id"`
	Description string `json:"description"`
	TimeoutMs   int64  `json:"timeoutMs"`
}

// StatusResponse is the daemon status snapshot.
type StatusResponse struct {
	BatteryPercent           float64     `json:"batteryPercent"`
	LinePowerOn              bool        `json:"linePowerOn"`
	InDarkResume             bool        `json:"inDarkResume"`
	DarkResumeEnabled        bool        `json:"darkResumeEnabled"`
	ShutdownThresholdPercent float64     `json:"shutdownThresholdPercent"`
	ChargeState              string      `json:"chargeState"`
	ChargeTarget             string      `json:"chargeTarget,omitempty"`
	Delays                   []DelayInfo `json:"delays"`
	SuspendCount             uint64      `json:"suspendCount"`
	DarkResumeCount          uint64      `json:"darkResumeCount"`
}
