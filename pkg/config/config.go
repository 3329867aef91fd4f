package config

import "time"

// DarkResumeEntry maps a battery percentage to the duration the next
// dark-resume suspend should last. Entries are kept sorted ascending by
// battery percent; lookup picks the largest key not exceeding the current
// charge.
type DarkResumeEntry struct {
	BatteryPercent float64       `json:"batteryPercent"`
	Duration       time.Duration `json:"duration"`
}

type Config interface {
	DarkResumeSchedule() []DarkResumeEntry
	ShutdownAfter() time.Duration
	HibernateAfter() time.Duration
	MaxDelayTimeout() time.Duration
	LowBatteryShutdownPercent() float64
	DischargeSafetyMarginPercent() float64
	SuspendMode() string
	SuspendRetries() int

	AdaptiveChargeEnabled() bool
	AdaptiveChargeHoldPercent() int
	AdaptiveChargeHoldDeltaPercent() int
	AdaptiveChargeMinProbability() float64
	AdaptiveChargeRecheckInterval() time.Duration
	AdaptiveChargeFinishBuffer() time.Duration

	AllowNonRootAccess() bool

	SetAdaptiveChargeEnabled(bool)
	SetAdaptiveChargeHoldPercent(int)
	SetAdaptiveChargeMinProbability(float64)

	// Load reads the configuration from the source.
	Load() error
	// Save saves the configuration to the source.
	Save() error
}
