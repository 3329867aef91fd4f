package timer

import (
	"sync"
	"time"
)

// FakeAlarm is a manually fired Alarm for tests.
type FakeAlarm struct {
	Name string

	mu       sync.Mutex
	armed    bool
	duration time.Duration
	starts   int
	stops    int
	fired    chan time.Time
}

var _ Alarm = &FakeAlarm{}

func NewFakeAlarm(name string) *FakeAlarm {
	return &FakeAlarm{
		Name:  name,
		fired: make(chan time.Time, 1),
	}
}

func (a *FakeAlarm) Start(d time.Duration) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.drain()
	a.armed = true
	a.duration = d
	a.starts++
}

func (a *FakeAlarm) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.armed = false
	a.stops++
	a.drain()
}

func (a *FakeAlarm) Fired() <-chan time.Time { return a.fired }

func (a *FakeAlarm) Close() { a.Stop() }

// Fire simulates the alarm expiring.
func (a *FakeAlarm) Fire() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.armed {
		return
	}
	a.armed = false
	select {
	case a.fired <- time.Now():
	default:
	}
}

func (a *FakeAlarm) Armed() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.armed
}

func (a *FakeAlarm) Duration() time.Duration {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.duration
}

func (a *FakeAlarm) Starts() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.starts
}

func (a *FakeAlarm) Stops() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.stops
}

func (a *FakeAlarm) drain() {
	select {
	case <-a.fired:
	default:
	}
}

// FakeFactory hands out FakeAlarms and remembers them by name.
type FakeFactory struct {
	mu     sync.Mutex
	Alarms map[string]*FakeAlarm
}

var _ Factory = &FakeFactory{}

func NewFakeFactory() *FakeFactory {
	return &FakeFactory{Alarms: make(map[string]*FakeAlarm)}
}

func (f *FakeFactory) NewAlarm(name string) Alarm {
	f.mu.Lock()
	defer f.mu.Unlock()
	a := NewFakeAlarm(name)
	f.Alarms[name] = a
	return a
}

// Alarm returns the alarm created under name, or nil.
func (f *FakeFactory) Alarm(name string) *FakeAlarm {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Alarms[name]
}
