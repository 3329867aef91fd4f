package charge

import (
	"testing"
	"time"

	pkgerrors "github.com/pkg/errors"

	"github.com/sleepd-project/sleepd/pkg/events"
	"github.com/sleepd-project/sleepd/pkg/power"
	"github.com/sleepd-project/sleepd/pkg/timer"
)

type fakeSustain struct {
	supported bool
	setErr    error
	clearErr  error

	lower, upper int
	sets, clears int
}

func (f *fakeSustain) Supported() bool { return f.supported }

func (f *fakeSustain) SetSustain(lower, upper int) error {
	if f.setErr != nil {
		return f.setErr
	}
	f.sets++
	f.lower, f.upper = lower, upper
	return nil
}

func (f *fakeSustain) ClearSustain() error {
	if f.clearErr != nil {
		return f.clearErr
	}
	f.clears++
	return nil
}

type fakePredictor struct {
	probs []float64
	err   error
	calls int
}

func (f *fakePredictor) Predict(_ Features) ([]float64, error) {
	f.calls++
	return f.probs, f.err
}

func testScheduler(t *testing.T, sustain *fakeSustain, predictor *fakePredictor) (*Scheduler, *timer.FakeFactory) {
	t.Helper()
	f := timer.NewFakeFactory()
	s := NewScheduler(Config{
		HoldPercent:      80,
		HoldDeltaPercent: 2,
		MinProbability:   0.2,
		RecheckInterval:  30 * time.Minute,
		FinishBuffer:     2 * time.Hour,
		BucketWidth:      time.Hour,
	}, f, sustain, predictor, events.NewEventHub())
	return s, f
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestUnsupportedHardwareIgnoresPolicy(t *testing.T) {
	s, _ := testScheduler(t, &fakeSustain{supported: false}, &fakePredictor{})

	if s.State() != StateNotSupported {
		t.Fatalf("state = %s, want not-supported", s.State())
	}
	s.OnPolicyChange(true, 80, 0.2)
	if s.State() != StateNotSupported {
		t.Errorf("state = %s after policy change, want still not-supported", s.State())
	}
}

func TestConfidentPredictionDelaysCharge(t *testing.T) {
	sustain := &fakeSustain{supported: true}
	s, f := testScheduler(t, sustain, &fakePredictor{})
	now := time.Unix(1700000000, 0)
	s.clock = fixedClock(now)

	s.OnPolicyChange(true, 80, 0.2)
	s.OnPrediction([]float64{0, 0, 0, 1, 0})

	// Unplug in ~3h: start the final charge 2h (finish buffer) early.
	charge := f.Alarm("adaptive-charge-finish")
	if !charge.Armed() || charge.Duration() != time.Hour {
		t.Errorf("charge alarm armed=%t d=%s, want armed at 1h", charge.Armed(), charge.Duration())
	}
	if sustain.sets != 1 || sustain.lower != 78 || sustain.upper != 80 {
		t.Errorf("sustain sets=%d window=[%d,%d], want 1 write of [78,80]", sustain.sets, sustain.lower, sustain.upper)
	}

	target, unbounded := s.TargetFullChargeTime()
	if unbounded {
		t.Error("target should be bounded")
	}
	if want := now.Add(5 * time.Hour); !target.Equal(want) {
		t.Errorf("target = %s, want %s", target, want)
	}

	recheck := f.Alarm("adaptive-charge-recheck")
	if !recheck.Armed() || recheck.Duration() != 30*time.Minute {
		t.Errorf("recheck alarm armed=%t d=%s, want armed at 30m", recheck.Armed(), recheck.Duration())
	}
}

func TestLowConfidenceChargesNormally(t *testing.T) {
	sustain := &fakeSustain{supported: true}
	s, f := testScheduler(t, sustain, &fakePredictor{})
	s.cfg.MinProbability = 0.5

	s.OnPolicyChange(true, 80, 0.5)
	s.OnPrediction([]float64{0.1, 0.1, 0.1, 0.1, 0.1, 0.1, 0.1, 0.1, 0.1})

	if s.State() != StateInactive {
		t.Errorf("state = %s, want inactive (charging normally)", s.State())
	}
	if f.Alarm("adaptive-charge-finish").Armed() {
		t.Error("charge alarm must not be armed for a low-confidence prediction")
	}
	if sustain.sets != 0 {
		t.Errorf("sustain writes = %d, want 0", sustain.sets)
	}
}

func TestTieBiasesTowardEarlierBucket(t *testing.T) {
	sustain := &fakeSustain{supported: true}
	s, f := testScheduler(t, sustain, &fakePredictor{})
	s.cfg.FinishBuffer = 30 * time.Minute
	now := time.Unix(1700000000, 0)
	s.clock = fixedClock(now)

	s.OnPolicyChange(true, 80, 0.2)
	s.OnPrediction([]float64{0, 0.5, 0.3, 0.5})

	// Bucket 1 and bucket 3 tie; the earlier one wins.
	charge := f.Alarm("adaptive-charge-finish")
	if !charge.Armed() || charge.Duration() != 30*time.Minute {
		t.Errorf("charge alarm armed=%t d=%s, want armed at 30m", charge.Armed(), charge.Duration())
	}
	target, _ := s.TargetFullChargeTime()
	if want := now.Add(90 * time.Minute); !target.Equal(want) {
		t.Errorf("target = %s, want %s", target, want)
	}
}

func TestUnplugWithinFinishBufferChargesNow(t *testing.T) {
	sustain := &fakeSustain{supported: true}
	s, f := testScheduler(t, sustain, &fakePredictor{})
	now := time.Unix(1700000000, 0)
	s.clock = fixedClock(now)

	s.OnPolicyChange(true, 80, 0.2)
	s.OnPrediction([]float64{0, 1, 0, 0})

	// Unplug in ~1h but the charge takes up to 2h: no delay is possible.
	if f.Alarm("adaptive-charge-finish").Armed() {
		t.Error("charge alarm must not be armed when the unplug is within the finish buffer")
	}
	if s.State() != StateInactive {
		t.Errorf("state = %s, want inactive", s.State())
	}
	target, _ := s.TargetFullChargeTime()
	if !target.Equal(now) {
		t.Errorf("target = %s, want now", target)
	}
}

func TestLastBucketHoldsUnbounded(t *testing.T) {
	sustain := &fakeSustain{supported: true}
	s, f := testScheduler(t, sustain, &fakePredictor{})

	s.OnPolicyChange(true, 80, 0.2)
	s.OnPrediction([]float64{0, 0, 0, 0, 0, 0, 0, 1})

	_, unbounded := s.TargetFullChargeTime()
	if !unbounded {
		t.Error("max probability in the last bucket beyond the buffer should hold unbounded")
	}
	if f.Alarm("adaptive-charge-finish").Armed() {
		t.Error("no charge alarm for an unbounded hold")
	}
	if sustain.sets != 1 {
		t.Errorf("sustain writes = %d, want 1", sustain.sets)
	}
}

func TestSustainWriteFailureAbortsCycleOnly(t *testing.T) {
	sustain := &fakeSustain{supported: true, setErr: pkgerrors.New("ec rejected write")}
	s, f := testScheduler(t, sustain, &fakePredictor{})

	s.OnPolicyChange(true, 80, 0.2)
	s.OnPrediction([]float64{0, 0, 0, 1, 0})

	if s.State() != StateInactive {
		t.Errorf("state = %s, want inactive after sustain failure", s.State())
	}
	if f.Alarm("adaptive-charge-finish").Armed() {
		t.Error("charge alarm must be stopped after abort")
	}
	target, unbounded := s.TargetFullChargeTime()
	if !target.IsZero() || unbounded {
		t.Errorf("target = %s unbounded=%t, want cleared", target, unbounded)
	}

	// Only the cycle aborted; the feature recovers once hardware cooperates.
	sustain.setErr = nil
	s.OnPolicyChange(false, 80, 0.2)
	s.OnPolicyChange(true, 80, 0.2)
	s.OnPrediction([]float64{0, 0, 0, 1, 0})
	if s.State() != StateActive {
		t.Errorf("state = %s after recovery, want active", s.State())
	}
}

func TestHysteresisKeepsEarlierTargetInHold(t *testing.T) {
	sustain := &fakeSustain{supported: true}
	s, f := testScheduler(t, sustain, &fakePredictor{})
	now := time.Unix(1700000000, 0)
	s.clock = fixedClock(now)

	s.OnPolicyChange(true, 80, 0.2)
	s.lastStatus = power.Status{BatteryPercent: 79, LinePowerOn: true} // inside [78,80]

	s.OnPrediction([]float64{0, 0, 0, 0, 1, 0})
	first, _ := s.TargetFullChargeTime()
	charge := f.Alarm("adaptive-charge-finish")
	firstDeadline := charge.Duration()
	firstStarts := charge.Starts()

	// A re-prediction moving the unplug earlier must not regress the target,
	// and must leave the finish-charge alarm where it was: alarm and target
	// describe the same plan.
	s.OnPrediction([]float64{0, 0, 0, 1, 0, 0})
	second, _ := s.TargetFullChargeTime()
	if !second.Equal(first) {
		t.Errorf("target regressed from %s to %s while holding", first, second)
	}
	if charge.Starts() != firstStarts || charge.Duration() != firstDeadline {
		t.Errorf("charge alarm moved to %s (starts %d), want untouched %s (starts %d)",
			charge.Duration(), charge.Starts(), firstDeadline, firstStarts)
	}

	// A later unplug estimate still pushes the target out.
	s.OnPrediction([]float64{0, 0, 0, 0, 0, 1, 0})
	third, _ := s.TargetFullChargeTime()
	if !third.After(first) {
		t.Errorf("target = %s, want later than %s", third, first)
	}
}

func TestRepeatedLowConfidenceDisablesHeuristically(t *testing.T) {
	sustain := &fakeSustain{supported: true}
	s, _ := testScheduler(t, sustain, &fakePredictor{})
	s.cfg.MinProbability = 0.5

	s.OnPolicyChange(true, 80, 0.5)
	for i := 0; i < heuristicDisableStreak; i++ {
		// OnPrediction only applies while active; re-arm each round like the
		// wake path does.
		s.mu.Lock()
		if s.state == StateInactive {
			s.state = StateActive
		}
		s.mu.Unlock()
		s.OnPrediction([]float64{0.1, 0.1, 0.1})
	}

	if s.State() != StateHeuristicDisabled {
		t.Errorf("state = %s, want heuristic-disabled after %d low-confidence rounds", s.State(), heuristicDisableStreak)
	}
}

func TestWakeReactivatesOnLinePower(t *testing.T) {
	sustain := &fakeSustain{supported: true}
	predictor := &fakePredictor{probs: []float64{0, 0, 0, 1, 0}}
	s, _ := testScheduler(t, sustain, predictor)

	s.OnPolicyChange(true, 80, 0.2)
	s.finishCharging("test")
	if s.State() != StateInactive {
		t.Fatalf("state = %s, want inactive", s.State())
	}

	s.OnWake(power.Status{LinePowerOn: true, BatteryPercent: 50})
	if s.State() != StateActive {
		t.Errorf("state = %s, want active after plug-in wake", s.State())
	}
	if predictor.calls == 0 {
		t.Error("wake should trigger a synchronous prediction")
	}
}

func TestWakePredictionFailureChargesNormally(t *testing.T) {
	sustain := &fakeSustain{supported: true}
	predictor := &fakePredictor{err: pkgerrors.New("ml sidecar down")}
	s, f := testScheduler(t, sustain, predictor)

	s.OnPolicyChange(true, 80, 0.2)
	s.OnWake(power.Status{LinePowerOn: true, BatteryPercent: 50})

	if s.State() != StateInactive {
		t.Errorf("state = %s, want inactive (charging normally)", s.State())
	}
	if f.Alarm("adaptive-charge-finish").Armed() {
		t.Error("charge alarm must not survive a prediction failure")
	}
}

func TestDisableMidHoldIsUserCanceled(t *testing.T) {
	sustain := &fakeSustain{supported: true}
	s, _ := testScheduler(t, sustain, &fakePredictor{})

	s.OnPolicyChange(true, 80, 0.2)
	s.OnPrediction([]float64{0, 0, 0, 1, 0}) // establishes the hold
	s.OnPolicyChange(false, 80, 0.2)

	if s.State() != StateUserCanceled {
		t.Errorf("state = %s, want user-canceled when disabled mid-hold", s.State())
	}
	if sustain.clears == 0 {
		t.Error("disabling must clear the hardware sustain window")
	}
}

func TestNotifyShutdownReleasesHold(t *testing.T) {
	sustain := &fakeSustain{supported: true}
	s, _ := testScheduler(t, sustain, &fakePredictor{})

	s.OnPolicyChange(true, 80, 0.2)
	s.OnPrediction([]float64{0, 0, 0, 1, 0})
	s.NotifyShutdown()

	if s.State() != StateShutdown {
		t.Errorf("state = %s, want shutdown", s.State())
	}
	if sustain.clears == 0 {
		t.Error("shutdown must clear the hardware sustain window")
	}
}
