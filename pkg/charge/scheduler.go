// Package charge implements adaptive charging: delaying the final stretch of
// a charge cycle until shortly before the predicted unplug time, holding the
// battery inside a sustain window meanwhile.
package charge

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/sleepd-project/sleepd/pkg/events"
	"github.com/sleepd-project/sleepd/pkg/power"
	"github.com/sleepd-project/sleepd/pkg/timer"
)

// State is the adaptive charging lifecycle state.
type State string

const (
	StateNotSupported      State = "not-supported"
	StateUserDisabled      State = "user-disabled"
	StateInactive          State = "inactive"
	StateActive            State = "active"
	StateUserCanceled      State = "user-canceled"
	StateShutdown          State = "shutdown"
	StateHeuristicDisabled State = "heuristic-disabled"
)

// Config carries the tunables. An explicit struct rather than package
// constants so tests can use arbitrary values.
type Config struct {
	HoldPercent      int
	HoldDeltaPercent int
	MinProbability   float64
	RecheckInterval  time.Duration
	FinishBuffer     time.Duration
	// BucketWidth is the time span of one prediction probability bucket.
	BucketWidth time.Duration
}

// Scheduler orchestrates periodic re-evaluation of the charge-delay
// prediction and drives the battery sustain window. It owns the hardware
// sustain register exclusively.
type Scheduler struct {
	sustain   SustainWriter
	predictor Predictor
	hub       *events.EventHub

	recheckAlarm timer.Alarm
	chargeAlarm  timer.Alarm

	clock func() time.Time

	mu              sync.Mutex
	cfg             Config
	state           State
	enabled         bool
	target          time.Time
	targetUnbounded bool
	holdStartedAt   time.Time
	holdEndedAt     time.Time
	sustainSet      bool
	lastStatus      power.Status

	lowConfidenceStreak int

	stopCh  chan struct{}
	started bool
}

// heuristicDisableStreak is how many consecutive low-confidence predictions
// it takes to conclude the user's unplug pattern is unpredictable.
const heuristicDisableStreak = 10

func NewScheduler(cfg Config, f timer.Factory, sustain SustainWriter, predictor Predictor, hub *events.EventHub) *Scheduler {
	if cfg.BucketWidth <= 0 {
		cfg.BucketWidth = time.Hour
	}

	s := &Scheduler{
		sustain:      sustain,
		predictor:    predictor,
		hub:          hub,
		recheckAlarm: f.NewAlarm("adaptive-charge-recheck"),
		chargeAlarm:  f.NewAlarm("adaptive-charge-finish"),
		clock:        time.Now,
		cfg:          cfg,
		state:        StateInactive,
	}
	if !sustain.Supported() {
		s.state = StateNotSupported
	}
	return s
}

// Start launches the alarm-handling loop.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.started = true
	s.stopCh = make(chan struct{})
	go s.run(s.stopCh)
}

// Stop halts the loop. Idempotent.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return
	}
	s.started = false
	close(s.stopCh)
	s.recheckAlarm.Stop()
	s.chargeAlarm.Stop()
}

func (s *Scheduler) run(stop chan struct{}) {
	for {
		select {
		case <-s.recheckAlarm.Fired():
			logrus.Debug("adaptive charge recheck alarm fired")
			s.evaluate()
		case <-s.chargeAlarm.Fired():
			logrus.Debug("adaptive charge finish alarm fired")
			s.finishCharging("charge alarm fired")
		case <-stop:
			return
		}
	}
}

// evaluate runs the asynchronous prediction round trip.
func (s *Scheduler) evaluate() {
	s.mu.Lock()
	st := s.lastStatus
	active := s.enabled && s.state == StateActive
	s.mu.Unlock()

	if !active {
		return
	}

	probs, err := s.predictor.Predict(FeaturesFrom(st, s.clock()))
	if err != nil {
		// Prediction failure means "stop delaying charge", never a fatal
		// condition.
		logrus.WithError(err).Warn("charge delay prediction failed, charging normally")
		s.finishCharging("prediction failure")
		return
	}
	s.OnPrediction(probs)
}

// State returns the current lifecycle state.
func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// TargetFullChargeTime returns the displayed full-charge estimate. unbounded
// means "sometime beyond the prediction horizon".
func (s *Scheduler) TargetFullChargeTime() (target time.Time, unbounded bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.target, s.targetUnbounded
}

// OnPolicyChange applies a policy update. Toggling enabled on supported
// hardware (re)starts the evaluation cycle; the current sustain window is
// always re-sent to hardware so a policy change never leaves a stale window.
func (s *Scheduler) OnPolicyChange(enabled bool, holdPercent int, minProbability float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateNotSupported {
		logrus.Debug("adaptive charging not supported, ignoring policy change")
		return
	}

	s.cfg.HoldPercent = holdPercent
	s.cfg.MinProbability = minProbability

	was := s.enabled
	s.enabled = enabled

	switch {
	case enabled && !was:
		s.lowConfidenceStreak = 0
		s.setStateLocked(StateActive, "policy enabled")
		s.recheckAlarm.Start(time.Second) // kick off an immediate evaluation
	case !enabled && was:
		if s.sustainSet {
			s.setStateLocked(StateUserCanceled, "policy disabled mid-hold")
		} else {
			s.setStateLocked(StateUserDisabled, "policy disabled")
		}
		s.recheckAlarm.Stop()
		s.chargeAlarm.Stop()
		s.target = time.Time{}
		s.targetUnbounded = false
	}

	s.resendSustainLocked()
}

// resendSustainLocked pushes the current sustain window (or its absence) to
// hardware. A write failure aborts the active cycle; it never blocks the
// suspend path.
func (s *Scheduler) resendSustainLocked() {
	var err error
	if s.enabled && s.sustainSet {
		err = s.sustain.SetSustain(s.cfg.HoldPercent-s.cfg.HoldDeltaPercent, s.cfg.HoldPercent)
	} else {
		err = s.sustain.ClearSustain()
		s.sustainSet = false
	}
	if err != nil {
		logrus.WithError(err).Error("battery sustain write failed, aborting adaptive charge cycle")
		s.abortLocked("sustain write failure")
	}
}

// OnPrediction applies a prediction result. probabilities index consecutive
// time buckets; bucket i means "unplug expected in about i bucket-widths".
func (s *Scheduler) OnPrediction(probs []float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.enabled || s.state != StateActive {
		return
	}
	if len(probs) == 0 {
		s.finishChargingLocked("empty prediction")
		return
	}

	// Earliest index achieving the maximum: ties bias toward earlier hours,
	// including ties between the last bucket and an earlier one.
	idx := 0
	for i, p := range probs {
		if p > probs[idx] {
			idx = i
		}
	}
	confidence := probs[idx]
	now := s.clock()

	logrus.WithFields(logrus.Fields{
		"bucket":     idx,
		"buckets":    len(probs),
		"confidence": confidence,
	}).Debug("charge delay prediction")

	if confidence < s.cfg.MinProbability {
		// Not confident enough to delay; let charging proceed now.
		s.lowConfidenceStreak++
		if s.lowConfidenceStreak >= heuristicDisableStreak {
			s.setStateLocked(StateHeuristicDisabled, "user pattern too unpredictable")
		}
		s.finishChargingLocked("prediction below min probability")
		s.target = now
		return
	}
	s.lowConfidenceStreak = 0

	delay := time.Duration(idx) * s.cfg.BucketWidth
	lastBucket := idx == len(probs)-1

	if lastBucket && delay > s.cfg.FinishBuffer {
		// Unplug beyond the horizon: hold indefinitely, no charge alarm, and
		// no point rechecking before something else changes.
		s.targetUnbounded = true
		s.target = time.Time{}
		s.chargeAlarm.Stop()
		s.ensureSustainLocked()
		return
	}

	if delay <= s.cfg.FinishBuffer {
		// Charging must start immediately to finish in time.
		s.finishChargingLocked("unplug within finish buffer")
		s.target = now
		return
	}

	s.ensureSustainLocked()
	if s.state != StateActive {
		// Sustain write failed and aborted the cycle.
		return
	}

	newTarget := now.Add(delay + s.cfg.FinishBuffer)

	// Hysteresis: once the battery sits in the hold window, a re-prediction
	// that does not push the estimate later must not regress the displayed
	// target or the finish-charge deadline, and there is nothing to gain
	// from rechecking. Checked before touching the charge alarm so the
	// alarm and the target always describe the same plan.
	inHold := s.lastStatus.BatteryPercent >= float64(s.cfg.HoldPercent-s.cfg.HoldDeltaPercent) &&
		s.lastStatus.BatteryPercent <= float64(s.cfg.HoldPercent)
	if inHold && !s.target.IsZero() && !s.targetUnbounded && !newTarget.After(s.target) {
		return
	}

	s.chargeAlarm.Start(delay - s.cfg.FinishBuffer)
	s.targetUnbounded = false
	s.target = newTarget
	s.recheckAlarm.Start(s.cfg.RecheckInterval)
}

// OnWake re-evaluates synchronously on every resume, dark or full. The
// caller blocks on this before suspending: a future dark resume may be the
// only chance to recheck before line power changes.
func (s *Scheduler) OnWake(st power.Status) {
	s.mu.Lock()
	s.lastStatus = st
	// A completed or finished cycle restarts when line power comes back with
	// the battery below the hold ceiling.
	if s.enabled && s.state == StateInactive &&
		st.LinePowerOn && st.BatteryPercent < float64(s.cfg.HoldPercent) {
		s.setStateLocked(StateActive, "line power connected")
	}
	active := s.enabled && s.state == StateActive
	s.mu.Unlock()

	if !active {
		return
	}

	probs, err := s.predictor.Predict(FeaturesFrom(st, s.clock()))
	if err != nil {
		logrus.WithError(err).Warn("pre-suspend charge prediction failed, charging normally")
		s.finishCharging("prediction failure")
		return
	}
	s.OnPrediction(probs)
}

// finishCharging releases the sustain hold so the battery charges to full.
func (s *Scheduler) finishCharging(reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.finishChargingLocked(reason)
}

func (s *Scheduler) finishChargingLocked(reason string) {
	s.chargeAlarm.Stop()
	s.targetUnbounded = false

	if s.sustainSet {
		s.sustainSet = false
		s.holdEndedAt = s.clock()
		if err := s.sustain.ClearSustain(); err != nil {
			logrus.WithError(err).Error("failed to clear battery sustain window")
		}
	}

	if s.state == StateActive {
		s.setStateLocked(StateInactive, reason)
	}
}

// abortLocked tears down the active cycle after a hardware failure.
func (s *Scheduler) abortLocked(reason string) {
	s.chargeAlarm.Stop()
	s.recheckAlarm.Stop()
	s.sustainSet = false
	s.target = time.Time{}
	s.targetUnbounded = false
	if s.state == StateActive {
		s.setStateLocked(StateInactive, reason)
	}
}

func (s *Scheduler) ensureSustainLocked() {
	if s.sustainSet {
		return
	}
	err := s.sustain.SetSustain(s.cfg.HoldPercent-s.cfg.HoldDeltaPercent, s.cfg.HoldPercent)
	if err != nil {
		logrus.WithError(err).Error("battery sustain write failed, aborting adaptive charge cycle")
		s.abortLocked("sustain write failure")
		return
	}
	s.sustainSet = true
	s.holdStartedAt = s.clock()
}

// NotifyShutdown records that the machine is about to shut down or
// hibernate; the hold is released so a dead battery is not also a held one.
func (s *Scheduler) NotifyShutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.finishChargingLocked("system shutting down")
	s.setStateLocked(StateShutdown, "system shutting down")
}

func (s *Scheduler) setStateLocked(to State, msg string) {
	if s.state == to {
		return
	}
	from := s.state
	s.state = to

	logrus.WithFields(logrus.Fields{
		"from":    from,
		"to":      to,
		"message": msg,
	}).Info("adaptive charge state changed")

	s.hub.Publish(events.ChargeState, events.ChargeStateEvent{
		From:    string(from),
		To:      string(to),
		Message: msg,
		Ts:      time.Now().Unix(),
	})
}
