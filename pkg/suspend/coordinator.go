package suspend

import (
	"os"
	"strconv"
	"sync"
	"time"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/sleepd-project/sleepd/pkg/config"
	"github.com/sleepd-project/sleepd/pkg/events"
	"github.com/sleepd-project/sleepd/pkg/power"
	"github.com/sleepd-project/sleepd/pkg/timer"
)

// KernelSuspender performs the actual kernel suspend syscall path. Injected
// so the whole lifecycle is testable without sleeping the host.
type KernelSuspender interface {
	// Suspend blocks until the system resumes. When wakeupCount is non-nil
	// it is handed to the kernel first, which aborts the suspend if any wake
	// event arrived since the snapshot.
	Suspend(wakeupCount *uint64) error
}

// SysfsSuspender writes to /sys/power to enter suspend.
type SysfsSuspender struct {
	StatePath       string
	WakeupCountPath string
}

func NewSysfsSuspender() *SysfsSuspender {
	return &SysfsSuspender{
		StatePath:       "/sys/power/state",
		WakeupCountPath: "/sys/power/wakeup_count",
	}
}

func (s *SysfsSuspender) Suspend(wakeupCount *uint64) error {
	if wakeupCount != nil {
		// The kernel rejects the write when the count moved, which is
		// exactly the race this snapshot exists to catch.
		err := os.WriteFile(s.WakeupCountPath, []byte(strconv.FormatUint(*wakeupCount, 10)), 0644)
		if err != nil {
			return pkgerrors.Wrap(err, "wakeup count changed since negotiation began")
		}
	}
	if err := os.WriteFile(s.StatePath, []byte("mem"), 0644); err != nil {
		return pkgerrors.Wrap(err, "failed to write suspend state")
	}
	return nil
}

// WakeObserver is notified on every resume, dark or full, before the next
// suspend can proceed. The adaptive charge scheduler hangs off this.
type WakeObserver interface {
	OnWake(st power.Status)
}

// Coordinator owns the per-attempt lifecycle: negotiation, kernel
// preparation, the suspend itself, and the dark/full resume bookkeeping.
// Collaborators are injected at construction and never stored by anything
// below this level for longer than one call.
type Coordinator struct {
	cfg          config.Config
	registry     *DelayRegistry
	evaluator    *DarkResumeEvaluator
	decider      *Decider
	configurator *Configurator
	residency    *ResidencyTracker
	status       power.StatusProvider
	suspender    KernelSuspender
	hub          *events.EventHub
	observers    []WakeObserver

	// retryDelay spaces retries of failed suspend attempts.
	retryDelay time.Duration

	mu           sync.Mutex
	inDarkResume bool
}

func NewCoordinator(
	cfg config.Config,
	f timer.Factory,
	configurator *Configurator,
	status power.StatusProvider,
	suspender KernelSuspender,
	hub *events.EventHub,
	observers ...WakeObserver,
) *Coordinator {
	return &Coordinator{
		cfg:      cfg,
		registry: NewDelayRegistry(f, cfg.MaxDelayTimeout()),
		evaluator: NewDarkResumeEvaluator(
			cfg.DarkResumeSchedule(),
			cfg.LowBatteryShutdownPercent(),
			cfg.DischargeSafetyMarginPercent(),
		),
		decider:      NewDecider(f, cfg.ShutdownAfter(), cfg.HibernateAfter()),
		configurator: configurator,
		residency:    NewResidencyTracker(hub),
		status:       status,
		suspender:    suspender,
		hub:          hub,
		observers:    observers,
		retryDelay:   10 * time.Second,
	}
}

// Registry exposes the delay registry to the IPC layer.
func (c *Coordinator) Registry() *DelayRegistry { return c.registry }

// Evaluator exposes the dark resume evaluator for introspection.
func (c *Coordinator) Evaluator() *DarkResumeEvaluator { return c.evaluator }

// InDarkResume reports whether the system is presently in a dark resume.
func (c *Coordinator) InDarkResume() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inDarkResume
}

// DecideSuspendAction runs the shutdown/hibernate state machine against the
// current power state. Prefer Suspend over anything unknown; nothing here
// may fail hard.
func (c *Coordinator) DecideSuspendAction() Action {
	c.status.RefreshImmediately()
	st := c.status.GetStatus()

	batteryLow := !st.LinePowerOn &&
		(st.BatteryBelowShutdownThreshold || c.evaluator.BelowShutdownThreshold(st.BatteryPercent))

	return c.decider.Decide(st, batteryLow, c.configurator.HibernateAvailable)
}

// BeginNegotiation starts the suspend-delay negotiation for a new attempt.
// The wakeup-count snapshot fails open: an unreadable count only disables
// wakeup-count-based cancellation.
func (c *Coordinator) BeginNegotiation() (Attempt, <-chan NegotiationResult) {
	var wakeupCount *uint64
	if count, err := c.configurator.ReadWakeupCount(); err == nil {
		wakeupCount = &count
	} else {
		logrus.WithError(err).Debug("wakeup count unreadable, cancellation disabled for this attempt")
	}

	requested := c.requestedDuration()
	attempt, ready := c.registry.BeginNegotiation(wakeupCount, requested)

	c.hub.Publish(events.SuspendAttempt, events.SuspendAttemptEvent{
		Sequence:          attempt.Sequence,
		RequestedDuration: requested.String(),
		Ts:                time.Now().Unix(),
	})
	return attempt, ready
}

// Cancel aborts an in-flight negotiation. Idempotent.
func (c *Coordinator) Cancel() {
	c.registry.Cancel()
}

func (c *Coordinator) requestedDuration() time.Duration {
	c.mu.Lock()
	dark := c.inDarkResume
	c.mu.Unlock()

	if !dark || !c.evaluator.Enabled() {
		return 0
	}
	st := c.status.GetStatus()
	return c.evaluator.NextDuration(st.BatteryPercent)
}

// SuspendAndResume runs one complete cycle: decide, negotiate, prepare the
// kernel, suspend, and classify the outcome. It returns the action the
// caller's platform executor must carry out; ActionSuspend with a nil error
// means the machine suspended and has since woken up.
//
// A failed attempt (kernel write failure or the EC resume-timeout bit) is
// retried up to the configured budget, then abandoned with a full-resume
// reset so the next request starts clean.
func (c *Coordinator) SuspendAndResume() (Action, error) {
	action := c.DecideSuspendAction()
	if action != ActionSuspend {
		return action, nil
	}

	attempt, ready := c.BeginNegotiation()
	result := <-ready

	c.hub.Publish(events.SuspendReady, events.SuspendReadyEvent{
		Sequence: result.Sequence,
		TimedOut: result.TimedOut,
		Ts:       time.Now().Unix(),
	})

	// Last chance to re-evaluate charge delay before the CPU stops; a future
	// dark resume may be the only wake before line power changes.
	st := c.status.GetStatus()
	for _, o := range c.observers {
		o.OnWake(st)
	}

	var lastErr error
	retries := c.cfg.SuspendRetries()
	for i := 0; i <= retries; i++ {
		if i > 0 {
			logrus.WithFields(logrus.Fields{
				"attempt": i,
				"retries": retries,
			}).Warn("retrying failed suspend")
			time.Sleep(c.retryDelay)

			// The previous failure may have been a wakeup-count mismatch;
			// retrying with the stale snapshot would fail forever.
			if attempt.WakeupCount != nil {
				if count, err := c.configurator.ReadWakeupCount(); err == nil {
					attempt.WakeupCount = &count
				}
			}
		}

		if err := c.doSuspend(attempt); err != nil {
			lastErr = err
			continue
		}
		return ActionSuspend, nil
	}

	// Out of budget: abandon the attempt and reset so normal operation can
	// resume.
	c.OnFullResume()
	return ActionSuspend, pkgerrors.Wrap(lastErr, "suspend abandoned after retries")
}

func (c *Coordinator) doSuspend(attempt Attempt) error {
	handle := c.configurator.Prepare(attempt.RequestedDuration)
	if attempt.RequestedDuration > 0 && handle == 0 {
		logrus.Warn("no guaranteed wake alarm for bounded suspend")
	}

	c.residency.BeginCycle()
	start := time.Now().Round(0) // wall clock; monotonic stops during suspend

	err := c.suspender.Suspend(attempt.WakeupCount)

	suspended := time.Now().Round(0).Sub(start)
	c.residency.EndCycle(suspended)
	c.configurator.ClearWakeAlarm()

	if err != nil {
		logrus.WithError(err).WithField("sequence", attempt.Sequence).Warn("suspend attempt failed")
		return err
	}
	if c.configurator.CheckResumeFailure() {
		return pkgerrors.New("EC reported resume timeout")
	}
	return nil
}

// OnDarkResume is invoked by the resume-handling loop when the kernel woke
// the machine into a dark resume.
func (c *Coordinator) OnDarkResume() {
	c.mu.Lock()
	fromFull := !c.inDarkResume
	c.inDarkResume = true
	c.mu.Unlock()

	c.status.RefreshImmediately()
	st := c.status.GetStatus()

	c.evaluator.UpdateShutdownThreshold(st.BatteryPercent, fromFull)
	c.decider.HandleDarkResume()

	for _, o := range c.observers {
		o.OnWake(st)
	}

	logrus.WithFields(logrus.Fields{
		"batteryPercent": st.BatteryPercent,
		"linePower":      st.LinePowerOn,
	}).Info("dark resume")

	c.hub.Publish(events.ResumeDark, events.ResumeEvent{
		Dark:           true,
		BatteryPercent: st.BatteryPercent,
		LinePowerOn:    st.LinePowerOn,
		Ts:             time.Now().Unix(),
	})
}

// OnFullResume is invoked when the machine fully resumed (user activity).
// All dark-resume-scoped state resets before the next attempt can begin.
func (c *Coordinator) OnFullResume() {
	c.mu.Lock()
	c.inDarkResume = false
	c.mu.Unlock()

	c.registry.Cancel()
	c.decider.HandleFullResume()
	c.evaluator.HandleFullResume()

	c.status.RefreshImmediately()
	st := c.status.GetStatus()
	for _, o := range c.observers {
		o.OnWake(st)
	}

	logrus.Info("full resume")
	c.hub.Publish(events.ResumeFull, events.ResumeEvent{
		BatteryPercent: st.BatteryPercent,
		LinePowerOn:    st.LinePowerOn,
		Ts:             time.Now().Unix(),
	})
}
