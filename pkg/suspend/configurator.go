package suspend

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// ecResumeTimeoutBit in the EC's last resume result means the EC timed out
// waiting for the AP to finish its sleep-state transition. The suspend is
// reported as failed; the machine never reached a deep idle state.
const ecResumeTimeoutBit = 0x80000000

// Configurator owns the kernel sleep-mode node and the RTC wake-alarm
// device. No other component writes them.
type Configurator struct {
	SleepModePath      string
	WakealarmPath      string
	WakeupCountPath    string
	ResumeResultPath   string
	ResumeDevicePath   string
	HibernateImagePath string

	mode  string
	clock func() time.Time
}

// NewConfigurator creates a configurator writing the given sleep mode
// (e.g. "s2idle" or "deep") before each attempt.
func NewConfigurator(mode string) *Configurator {
	return &Configurator{
		SleepModePath:      "/sys/power/mem_sleep",
		WakealarmPath:      "/sys/class/rtc/rtc0/wakealarm",
		WakeupCountPath:    "/sys/power/wakeup_count",
		ResumeResultPath:   "/sys/kernel/debug/cros_ec/last_resume_result",
		ResumeDevicePath:   "/sys/power/resume",
		HibernateImagePath: "/var/lib/sleepd/hibernate-image",
		mode:               mode,
		clock:              time.Now,
	}
}

// Prepare writes the sleep mode and, for a bounded suspend, programs the RTC
// wake alarm. It returns the alarm value the kernel actually accepted; 0
// means no guaranteed wake is programmed and callers must not rely on one.
// Configuration is best effort: a mode-write failure is logged and the
// attempt proceeds with whatever mode the kernel already has.
func (c *Configurator) Prepare(requested time.Duration) uint64 {
	if err := os.WriteFile(c.SleepModePath, []byte(c.mode), 0644); err != nil {
		logrus.WithError(err).WithField("mode", c.mode).
			Warn("failed to write kernel sleep mode, continuing with current mode")
	}

	if requested <= 0 {
		return 0
	}

	// Clear any stale alarm first; the RTC rejects programming over one.
	if err := os.WriteFile(c.WakealarmPath, []byte("0"), 0644); err != nil {
		logrus.WithError(err).Error("failed to clear RTC wake alarm")
		return 0
	}

	target := c.clock().Add(requested).Unix()
	if err := os.WriteFile(c.WakealarmPath, []byte(strconv.FormatInt(target, 10)), 0644); err != nil {
		logrus.WithError(err).WithField("target", target).
			Error("failed to program RTC wake alarm")
		return 0
	}

	// Read back what the RTC actually accepted; it may round the value.
	b, err := os.ReadFile(c.WakealarmPath)
	if err != nil {
		logrus.WithError(err).Error("failed to read back RTC wake alarm")
		return 0
	}
	accepted, err := strconv.ParseUint(strings.TrimSpace(string(b)), 10, 64)
	if err != nil || accepted == 0 {
		logrus.WithField("value", strings.TrimSpace(string(b))).
			Error("RTC did not accept wake alarm")
		return 0
	}

	logrus.WithFields(logrus.Fields{
		"in":      requested.String(),
		"alarmAt": accepted,
	}).Debug("programmed RTC wake alarm")

	return accepted
}

// ClearWakeAlarm removes a programmed wake alarm, if any.
func (c *Configurator) ClearWakeAlarm() {
	if err := os.WriteFile(c.WakealarmPath, []byte("0"), 0644); err != nil {
		logrus.WithError(err).Debug("failed to clear RTC wake alarm")
	}
}

// ReadWakeupCount snapshots the kernel wakeup count. Failure degrades
// wakeup-count-based cancellation but never blocks suspend.
func (c *Configurator) ReadWakeupCount() (uint64, error) {
	b, err := os.ReadFile(c.WakeupCountPath)
	if err != nil {
		return 0, err
	}
	return strconv.ParseUint(strings.TrimSpace(string(b)), 10, 64)
}

// CheckResumeFailure reads the EC's post-resume status register and reports
// whether the previous suspend failed to reach its sleep state. Missing
// hardware support reads as "no failure".
func (c *Configurator) CheckResumeFailure() bool {
	b, err := os.ReadFile(c.ResumeResultPath)
	if err != nil {
		return false
	}
	s := strings.TrimSpace(string(b))
	val, err := strconv.ParseUint(strings.TrimPrefix(s, "0x"), 16, 64)
	if err != nil {
		// Some kernels expose the register in decimal.
		val, err = strconv.ParseUint(s, 10, 64)
		if err != nil {
			logrus.WithField("value", s).Debug("unparseable EC resume result")
			return false
		}
	}

	if val&ecResumeTimeoutBit != 0 {
		logrus.WithField("resumeResult", val).
			Warn("EC timed out waiting for AP sleep transition, reporting suspend failure")
		return true
	}
	return false
}

// HibernateAvailable reports whether hibernation can be entered right now.
// Both a configured kernel resume device and the hibernate image artifact
// must exist. The image is created and destroyed by session lifecycle
// events, so the answer is never cached beyond one decision.
func (c *Configurator) HibernateAvailable() bool {
	b, err := os.ReadFile(c.ResumeDevicePath)
	if err != nil {
		return false
	}
	dev := strings.TrimSpace(string(b))
	if dev == "" || dev == "0:0" {
		return false
	}

	if _, err := os.Stat(c.HibernateImagePath); err != nil {
		return false
	}
	return true
}
