package suspend

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/sleepd-project/sleepd/pkg/events"
)

// ResidencyCounter names one hardware low-power-state occupancy counter.
type ResidencyCounter struct {
	Name string
	Path string
}

// ResidencyTracker validates that suspend actually achieved a deep idle
// state by sampling S0ix/PC10 residency counters around each cycle. It is
// purely diagnostic: nothing here feeds back into suspend decisions.
type ResidencyTracker struct {
	counters []ResidencyCounter
	hub      *events.EventHub

	before map[string]uint64
}

// NewResidencyTracker creates a tracker over the default pmc_core counters.
func NewResidencyTracker(hub *events.EventHub) *ResidencyTracker {
	return &ResidencyTracker{
		counters: []ResidencyCounter{
			{Name: "s0ix", Path: "/sys/kernel/debug/pmc_core/slp_s0_residency_usec"},
			{Name: "pc10", Path: "/sys/kernel/debug/pmc_core/pc10_residency_usec"},
		},
		hub:    hub,
		before: make(map[string]uint64),
	}
}

// NewResidencyTrackerWithCounters is the injectable variant used by tests.
func NewResidencyTrackerWithCounters(hub *events.EventHub, counters []ResidencyCounter) *ResidencyTracker {
	return &ResidencyTracker{
		counters: counters,
		hub:      hub,
		before:   make(map[string]uint64),
	}
}

// BeginCycle samples all readable counters before a suspend attempt.
func (t *ResidencyTracker) BeginCycle() {
	t.before = make(map[string]uint64)
	for _, c := range t.counters {
		v, err := readCounter(c.Path)
		if err != nil {
			continue
		}
		t.before[c.Name] = v
	}
}

// EndCycle samples the counters after resume and reports residency rates.
// A counter that decreased across the cycle overflowed; its report is
// suppressed rather than published as a bogus rate.
func (t *ResidencyTracker) EndCycle(suspended time.Duration) {
	if suspended <= 0 {
		return
	}

	for _, c := range t.counters {
		beforeVal, ok := t.before[c.Name]
		if !ok {
			continue
		}
		afterVal, err := readCounter(c.Path)
		if err != nil {
			continue
		}

		if afterVal < beforeVal {
			logrus.WithFields(logrus.Fields{
				"counter": c.Name,
				"before":  beforeVal,
				"after":   afterVal,
			}).Debug("residency counter decreased (overflow), suppressing report")
			continue
		}

		deltaUsec := afterVal - beforeVal
		rate := float64(deltaUsec) / float64(suspended.Microseconds()) * 100

		logrus.WithFields(logrus.Fields{
			"counter":     c.Name,
			"ratePercent": rate,
			"suspended":   suspended.String(),
		}).Info("suspend residency")

		t.hub.Publish(events.Residency, events.ResidencyEvent{
			Counter:     c.Name,
			RatePercent: rate,
			Ts:          time.Now().Unix(),
		})
	}
}

func readCounter(path string) (uint64, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.ParseUint(strings.TrimSpace(string(b)), 10, 64)
}
