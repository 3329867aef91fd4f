package timer

import (
	"sync"
	"time"
)

// wallCheckInterval is how often a WallAlarm compares the wall clock against
// its deadline. Suspend/resume more frequent than this is rare.
const wallCheckInterval = 10 * time.Second

// WallAlarm approximates a wake-capable alarm using wall-clock time. It
// cannot wake a suspended machine, but if something else wakes it, the alarm
// notices that the deadline passed during the sleep. Monotonic Go timers
// would not: the monotonic clock does not progress while suspended, so the
// deadline is stored with its monotonic reading stripped (Round(0)) and the
// comparison is done on wall-clock time.
type WallAlarm struct {
	name  string
	fired chan time.Time

	mu     sync.Mutex
	cancel chan struct{}
}

var _ Alarm = &WallAlarm{}

func NewWallAlarm(name string) *WallAlarm {
	return &WallAlarm{
		name:  name,
		fired: make(chan time.Time, 1),
	}
}

func (a *WallAlarm) Start(d time.Duration) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.stopLocked()
	a.drain()

	deadline := time.Now().Round(0).Add(d)
	cancel := make(chan struct{})
	a.cancel = cancel
	go a.run(deadline, cancel)
}

func (a *WallAlarm) run(deadline time.Time, cancel chan struct{}) {
	t := time.NewTimer(time.Until(deadline))
	defer t.Stop()
	ticker := time.NewTicker(wallCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-t.C:
			a.fire()
			return
		case <-ticker.C:
			now := time.Now()
			if now.Before(deadline) {
				// Still waiting. Reset the monotonic timer to absorb any
				// wall/monotonic drift accumulated across a suspend.
				if !t.Stop() {
					select {
					case <-t.C:
					default:
					}
				}
				t.Reset(time.Until(deadline))
				continue
			}
			a.fire()
			return
		case <-cancel:
			return
		}
	}
}

func (a *WallAlarm) fire() {
	select {
	case a.fired <- time.Now():
	default:
	}
}

func (a *WallAlarm) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stopLocked()
	a.drain()
}

func (a *WallAlarm) stopLocked() {
	if a.cancel != nil {
		close(a.cancel)
		a.cancel = nil
	}
}

func (a *WallAlarm) Fired() <-chan time.Time {
	return a.fired
}

func (a *WallAlarm) Close() {
	a.Stop()
}

func (a *WallAlarm) drain() {
	select {
	case <-a.fired:
	default:
	}
}
