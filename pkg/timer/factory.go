package timer

import "github.com/sirupsen/logrus"

// SystemFactory creates BootAlarms, falling back to WallAlarms when the
// kernel or process capabilities do not allow CLOCK_BOOTTIME_ALARM. The
// fallback cannot wake a suspended machine, so shutdown/hibernate and
// charge-alarm deadlines degrade to "checked on next wake".
type SystemFactory struct{}

var _ Factory = SystemFactory{}

func (SystemFactory) NewAlarm(name string) Alarm {
	a, err := NewBootAlarm(name)
	if err != nil {
		logrus.WithError(err).WithField("alarm", name).
			Warn("CLOCK_BOOTTIME_ALARM unavailable, falling back to wall-clock alarm")
		return NewWallAlarm(name)
	}
	return a
}
