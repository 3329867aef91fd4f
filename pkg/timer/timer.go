// Package timer provides one-shot alarms that keep counting while the
// system is suspended. Regular Go timers run off the monotonic clock,
// which is paused during suspend, so they cannot be used to wake the
// machine or to measure how long it actually slept.
package timer

import "time"

// Alarm is a one-shot alarm. Start always replaces any pending fire, so at
// most one fire is ever outstanding for a given alarm. Stop is idempotent.
type Alarm interface {
	// Start arms the alarm to fire after d, disarming any pending fire first.
	Start(d time.Duration)
	// Stop disarms the alarm and discards an undelivered fire, if any.
	Stop()
	// Fired returns the channel the alarm delivers on. The channel has a
	// one-element buffer; an undelivered fire is dropped on Start/Stop.
	Fired() <-chan time.Time
	// Close releases the alarm's resources. The alarm must not be used after.
	Close()
}

// Factory creates named alarms. It exists so tests can inject fakes and so
// the daemon can fall back to wall-clock alarms on kernels without
// CLOCK_BOOTTIME_ALARM support.
type Factory interface {
	NewAlarm(name string) Alarm
}
