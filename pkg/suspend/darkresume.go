package suspend

import (
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/sleepd-project/sleepd/pkg/config"
)

// DarkResumeEvaluator decides how long the next dark-resume suspend should
// last and tracks the battery level below which continuing to suspend is no
// longer safe.
//
// The shutdown threshold trails the battery level by a safety margin and is
// only ever raised while a dark-resume supercycle is running: when the
// battery charged since the previous cycle (line power during suspend) or on
// the first cycle after a full resume. It is never lowered mid-supercycle,
// so a single bad reading cannot mask a genuine discharge trend.
type DarkResumeEvaluator struct {
	mu sync.Mutex

	schedule      []config.DarkResumeEntry
	enabled       bool
	floorPercent  float64
	marginPercent float64

	threshold   float64
	lastPercent float64
	haveLast    bool
}

// NewDarkResumeEvaluator builds an evaluator from a battery-percent-keyed
// schedule. An empty schedule disables dark resume entirely; a schedule
// containing a duration that is an exact multiple of 24h is rejected
// (ambiguous with a full day) and also disables the feature.
func NewDarkResumeEvaluator(schedule []config.DarkResumeEntry, floorPercent, marginPercent float64) *DarkResumeEvaluator {
	e := &DarkResumeEvaluator{
		floorPercent:  floorPercent,
		marginPercent: marginPercent,
		threshold:     floorPercent,
	}

	if len(schedule) == 0 {
		logrus.Debug("dark resume schedule empty, feature disabled")
		return e
	}

	for _, entry := range schedule {
		if entry.Duration <= 0 || entry.Duration%(24*time.Hour) == 0 {
			logrus.WithFields(logrus.Fields{
				"batteryPercent": entry.BatteryPercent,
				"duration":       entry.Duration.String(),
			}).Warn("invalid dark resume schedule entry, disabling dark resume")
			return e
		}
	}

	e.schedule = make([]config.DarkResumeEntry, len(schedule))
	copy(e.schedule, schedule)
	sort.Slice(e.schedule, func(i, j int) bool {
		return e.schedule[i].BatteryPercent < e.schedule[j].BatteryPercent
	})
	e.enabled = true
	return e
}

// Enabled reports whether dark resume is active at all.
func (e *DarkResumeEvaluator) Enabled() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.enabled
}

// NextDuration returns how long the next suspend should last, picking the
// schedule entry with the largest battery-percent key not exceeding the
// current charge. A charge below the smallest key uses the first entry.
// Returns 0 when dark resume is disabled.
func (e *DarkResumeEvaluator) NextDuration(batteryPercent float64) time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.enabled {
		return 0
	}

	chosen := e.schedule[0]
	for _, entry := range e.schedule {
		if entry.BatteryPercent > batteryPercent {
			break
		}
		chosen = entry
	}

	logrus.WithFields(logrus.Fields{
		"batteryPercent": batteryPercent,
		"duration":       chosen.Duration.String(),
	}).Debug("dark resume suspend duration selected")

	return chosen.Duration
}

// UpdateShutdownThreshold recomputes the shutdown threshold from the current
// battery level. fromFullResume marks the first dark-resume cycle after a
// full resume.
func (e *DarkResumeEvaluator) UpdateShutdownThreshold(batteryPercent float64, fromFullResume bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	raise := fromFullResume || !e.haveLast || batteryPercent > e.lastPercent
	if raise {
		candidate := batteryPercent - e.marginPercent
		if candidate < e.floorPercent {
			candidate = e.floorPercent
		}
		if candidate > e.threshold {
			e.threshold = candidate
		}
	}

	e.lastPercent = batteryPercent
	e.haveLast = true

	logrus.WithFields(logrus.Fields{
		"batteryPercent": batteryPercent,
		"threshold":      e.threshold,
		"raised":         raise,
	}).Debug("dark resume shutdown threshold updated")
}

// ShutdownThresholdPercent returns the current threshold.
func (e *DarkResumeEvaluator) ShutdownThresholdPercent() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.threshold
}

// BelowShutdownThreshold reports whether the battery has fallen to or below
// the shutdown threshold.
func (e *DarkResumeEvaluator) BelowShutdownThreshold(batteryPercent float64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return batteryPercent <= e.threshold
}

// HandleFullResume resets all supercycle-scoped state.
func (e *DarkResumeEvaluator) HandleFullResume() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.threshold = e.floorPercent
	e.haveLast = false
}
