package daemon

import (
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

type wakeKind int

const (
	wakeFull wakeKind = iota
	wakeDark
)

var (
	pmWakeupIRQPath = "/sys/power/pm_wakeup_irq"
	interruptsPath  = "/proc/interrupts"

	rtcIRQOnce sync.Once
	rtcIRQ     = -1
)

// classifyWake decides whether the wake that just ended a suspend was a dark
// resume. Only the RTC alarm we programmed ourselves counts as dark; any
// other wake source (or an unreadable one) is user-visible and treated as a
// full resume, which is the safe direction.
func classifyWake() wakeKind {
	rtcIRQOnce.Do(findRTCIRQ)
	if rtcIRQ < 0 {
		return wakeFull
	}

	b, err := os.ReadFile(pmWakeupIRQPath)
	if err != nil {
		logrus.Debugf("wakeup irq unreadable, assuming full resume: %v", err)
		return wakeFull
	}
	irq, err := strconv.Atoi(strings.TrimSpace(string(b)))
	if err != nil {
		return wakeFull
	}

	if irq == rtcIRQ {
		return wakeDark
	}
	return wakeFull
}

// findRTCIRQ scans /proc/interrupts for the rtc0 line once per boot.
func findRTCIRQ() {
	b, err := os.ReadFile(interruptsPath)
	if err != nil {
		logrus.Warnf("failed to read %s, dark resume detection disabled: %v", interruptsPath, err)
		return
	}

	for _, line := range strings.Split(string(b), "\n") {
		if !strings.Contains(line, "rtc0") {
			continue
		}
		num := strings.TrimSpace(strings.SplitN(line, ":", 2)[0])
		irq, err := strconv.Atoi(num)
		if err != nil {
			continue
		}
		rtcIRQ = irq
		logrus.Debugf("rtc0 wake source is irq %d", irq)
		return
	}
}
