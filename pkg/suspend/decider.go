package suspend

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/sleepd-project/sleepd/pkg/power"
	"github.com/sleepd-project/sleepd/pkg/timer"
)

// Decider is the shutdown-from-suspend state machine. Two independent
// wake-capable alarms bound how long a machine may keep cycling through dark
// resumes: the hibernate alarm trades the session for disk state, the
// shutdown alarm gives up entirely. Shutdown wins when both have fired.
type Decider struct {
	shutdownAlarm  timer.Alarm
	hibernateAlarm timer.Alarm
	shutdownAfter  time.Duration
	hibernateAfter time.Duration

	mu             sync.Mutex
	shutdownFired  bool
	hibernateFired bool
	inDarkResume   bool
}

// NewDecider creates the state machine with alarms at the configured offsets.
// A zero offset leaves the corresponding alarm permanently unarmed.
func NewDecider(f timer.Factory, shutdownAfter, hibernateAfter time.Duration) *Decider {
	return &Decider{
		shutdownAlarm:  f.NewAlarm("shutdown-from-suspend"),
		hibernateAlarm: f.NewAlarm("hibernate-from-suspend"),
		shutdownAfter:  shutdownAfter,
		hibernateAfter: hibernateAfter,
	}
}

// Decide picks the action for one suspend attempt.
//
// hibernateAvailable is consulted at decision time, never cached: the
// hibernate image is created and destroyed by session lifecycle events, so
// availability can change between arming and firing.
func (d *Decider) Decide(st power.Status, batteryLow bool, hibernateAvailable func() bool) Action {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.collectFires()

	// First attempt after a full resume or boot: arm fresh and suspend.
	if !d.inDarkResume {
		d.shutdownFired = false
		d.hibernateFired = false
		if d.shutdownAfter > 0 {
			d.shutdownAlarm.Start(d.shutdownAfter)
		}
		if d.hibernateAfter > 0 {
			d.hibernateAlarm.Start(d.hibernateAfter)
		}
		logrus.WithFields(logrus.Fields{
			"shutdownAfter":  d.shutdownAfter.String(),
			"hibernateAfter": d.hibernateAfter.String(),
		}).Debug("armed shutdown and hibernate alarms")
		return ActionSuspend
	}

	// Shutdown-by-timer takes precedence once triggered, even on line power.
	if d.shutdownFired {
		logrus.Info("shutdown alarm fired, shutting down instead of suspending")
		return ActionShutDown
	}

	if st.LinePowerOn {
		return ActionSuspend
	}

	if batteryLow {
		if hibernateAvailable() {
			logrus.WithField("batteryPercent", st.BatteryPercent).
				Info("battery below safe shutdown level, hibernating")
			return ActionHibernate
		}
		logrus.WithField("batteryPercent", st.BatteryPercent).
			Info("battery below safe shutdown level and hibernate unavailable, shutting down")
		return ActionShutDown
	}

	if d.hibernateFired {
		if hibernateAvailable() {
			logrus.Info("hibernate alarm fired, hibernating instead of suspending")
			return ActionHibernate
		}
		// The hibernate image vanished between arm and fire. Continuing to
		// suspend past the hibernate deadline would discharge the battery to
		// nothing, so give up the session instead.
		logrus.Info("hibernate alarm fired but hibernate unavailable, shutting down")
		return ActionShutDown
	}

	return ActionSuspend
}

// collectFires drains the alarm channels into sticky flags. Fires are only
// acted on at decision points, which keeps all state mutation on the
// caller's goroutine.
func (d *Decider) collectFires() {
	select {
	case <-d.shutdownAlarm.Fired():
		d.shutdownFired = true
	default:
	}
	select {
	case <-d.hibernateAlarm.Fired():
		d.hibernateFired = true
	default:
	}
}

// HandleDarkResume marks that the machine woke into a dark resume.
func (d *Decider) HandleDarkResume() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.inDarkResume = true
}

// HandleFullResume stops both alarms and resets all per-supercycle state.
func (d *Decider) HandleFullResume() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.shutdownAlarm.Stop()
	d.hibernateAlarm.Stop()
	d.shutdownFired = false
	d.hibernateFired = false
	d.inDarkResume = false
}

// InDarkResume reports whether the state machine believes it is mid-supercycle.
func (d *Decider) InDarkResume() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.inDarkResume
}
