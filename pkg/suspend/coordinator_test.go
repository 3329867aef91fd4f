package suspend

import (
	"os"
	"sync"
	"testing"
	"time"

	pkgerrors "github.com/pkg/errors"

	"github.com/sleepd-project/sleepd/pkg/config"
	"github.com/sleepd-project/sleepd/pkg/events"
	"github.com/sleepd-project/sleepd/pkg/power"
	"github.com/sleepd-project/sleepd/pkg/timer"
)

type fakeStatusProvider struct {
	mu sync.Mutex
	st power.Status
}

func (f *fakeStatusProvider) GetStatus() power.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.st
}

func (f *fakeStatusProvider) RefreshImmediately() bool { return true }

func (f *fakeStatusProvider) set(st power.Status) {
	f.mu.Lock()
	f.st = st
	f.mu.Unlock()
}

type fakeSuspender struct {
	mu        sync.Mutex
	calls     int
	failures  int
	lastCount *uint64
}

func (f *fakeSuspender) Suspend(wakeupCount *uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.lastCount = wakeupCount
	if f.calls <= f.failures {
		return pkgerrors.New("simulated suspend failure")
	}
	return nil
}

func testCoordinator(t *testing.T, suspender KernelSuspender) (*Coordinator, *fakeStatusProvider, *timer.FakeFactory) {
	t.Helper()

	cfg := config.NewFileFromConfig(nil, "")
	factory := timer.NewFakeFactory()
	status := &fakeStatusProvider{st: power.Status{BatteryPercent: 80, LinePowerOn: false}}

	conf := NewConfigurator("s2idle")
	dir := t.TempDir()
	conf.SleepModePath = dir + "/mem_sleep"
	conf.WakealarmPath = dir + "/wakealarm"
	conf.WakeupCountPath = dir + "/wakeup_count"
	conf.ResumeResultPath = dir + "/last_resume_result"
	conf.ResumeDevicePath = dir + "/resume"
	conf.HibernateImagePath = dir + "/hibernate-image"

	c := NewCoordinator(cfg, factory, conf, status, suspender, events.NewEventHub())
	c.retryDelay = 0
	return c, status, factory
}

func TestSuspendAndResumeHappyPath(t *testing.T) {
	s := &fakeSuspender{}
	c, _, _ := testCoordinator(t, s)

	action, err := c.SuspendAndResume()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if action != ActionSuspend {
		t.Fatalf("action = %s, want suspend", action)
	}
	if s.calls != 1 {
		t.Errorf("suspender calls = %d, want 1", s.calls)
	}
}

func TestSuspendRetriesThenAbandons(t *testing.T) {
	s := &fakeSuspender{failures: 1000}
	c, _, _ := testCoordinator(t, s)

	action, err := c.SuspendAndResume()
	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if action != ActionSuspend {
		t.Fatalf("action = %s, want suspend", action)
	}
	// Default budget is 10 retries on top of the initial attempt.
	if s.calls != 11 {
		t.Errorf("suspender calls = %d, want 11", s.calls)
	}
	if c.InDarkResume() {
		t.Error("abandoning an attempt must reset to full-resume state")
	}
}

func TestSuspendRecoversWithinBudget(t *testing.T) {
	s := &fakeSuspender{failures: 3}
	c, _, _ := testCoordinator(t, s)

	action, err := c.SuspendAndResume()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if action != ActionSuspend {
		t.Fatalf("action = %s, want suspend", action)
	}
	if s.calls != 4 {
		t.Errorf("suspender calls = %d, want 4", s.calls)
	}
}

func TestWakeupCountSnapshotHandedToKernel(t *testing.T) {
	s := &fakeSuspender{}
	c, _, _ := testCoordinator(t, s)

	if err := os.WriteFile(c.configurator.WakeupCountPath, []byte("42\n"), 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := c.SuspendAndResume(); err != nil {
		t.Fatal(err)
	}
	if s.lastCount == nil || *s.lastCount != 42 {
		t.Errorf("wakeup count = %v, want 42", s.lastCount)
	}
}

func TestWakeupCountUnreadableFailsOpen(t *testing.T) {
	s := &fakeSuspender{}
	c, _, _ := testCoordinator(t, s)

	if _, err := c.SuspendAndResume(); err != nil {
		t.Fatal(err)
	}
	if s.lastCount != nil {
		t.Errorf("wakeup count = %v, want nil when unreadable", *s.lastCount)
	}
}

func TestRequestedDurationOnlyInDarkResume(t *testing.T) {
	c, status, _ := testCoordinator(t, &fakeSuspender{})

	if got := c.requestedDuration(); got != 0 {
		t.Errorf("requestedDuration = %s outside dark resume, want 0", got)
	}

	status.set(power.Status{BatteryPercent: 55})
	c.OnDarkResume()

	// Default schedule: 50% and above sleeps 6h per cycle.
	if got := c.requestedDuration(); got != 6*time.Hour {
		t.Errorf("requestedDuration = %s, want 6h", got)
	}

	c.OnFullResume()
	if got := c.requestedDuration(); got != 0 {
		t.Errorf("requestedDuration = %s after full resume, want 0", got)
	}
}

func TestLowBatteryInDarkResumeShutsDown(t *testing.T) {
	c, status, _ := testCoordinator(t, &fakeSuspender{})

	// Enter a supercycle at a healthy charge; the threshold trails it.
	status.set(power.Status{BatteryPercent: 50})
	if got := c.DecideSuspendAction(); got != ActionSuspend {
		t.Fatalf("first decision = %s, want suspend", got)
	}
	c.OnDarkResume()

	// Battery collapsed below the trailing threshold; hibernate has no image
	// in the test dir, so the decision degrades to shutdown.
	status.set(power.Status{BatteryPercent: 2})
	if got := c.DecideSuspendAction(); got != ActionShutDown {
		t.Errorf("decision = %s, want shut-down", got)
	}
}

func TestDarkResumeCyclesSuppressNothingOnLinePower(t *testing.T) {
	c, status, _ := testCoordinator(t, &fakeSuspender{})

	status.set(power.Status{BatteryPercent: 50, LinePowerOn: true})
	if got := c.DecideSuspendAction(); got != ActionSuspend {
		t.Fatalf("first decision = %s, want suspend", got)
	}
	c.OnDarkResume()

	// Even at 0%, line power keeps the machine suspending.
	status.set(power.Status{BatteryPercent: 0, LinePowerOn: true})
	if got := c.DecideSuspendAction(); got != ActionSuspend {
		t.Errorf("decision = %s, want suspend on line power", got)
	}
}
