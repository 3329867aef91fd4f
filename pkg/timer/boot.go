package timer

import (
	"encoding/binary"
	"os"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

// BootAlarm is an Alarm backed by a timerfd on CLOCK_BOOTTIME_ALARM. The
// kernel keeps the clock running across suspend and wakes the machine when
// the alarm expires, which is what lets a suspended device re-evaluate its
// shutdown and charge decisions on time.
type BootAlarm struct {
	name  string
	file  *os.File
	fired chan time.Time

	mu     sync.Mutex
	closed bool
}

var _ Alarm = &BootAlarm{}

// NewBootAlarm creates a wake-capable alarm. It fails on kernels without
// CLOCK_BOOTTIME_ALARM support or when the process lacks CAP_WAKE_ALARM.
func NewBootAlarm(name string) (*BootAlarm, error) {
	fd, err := unix.TimerfdCreate(unix.CLOCK_BOOTTIME_ALARM, unix.TFD_NONBLOCK|unix.TFD_CLOEXEC)
	if err != nil {
		return nil, err
	}

	a := &BootAlarm{
		name:  name,
		file:  os.NewFile(uintptr(fd), "timerfd:"+name),
		fired: make(chan time.Time, 1),
	}
	go a.wait()
	return a, nil
}

func (a *BootAlarm) wait() {
	buf := make([]byte, 8)
	for {
		n, err := a.file.Read(buf)
		if err != nil {
			// File closed, alarm is done.
			return
		}
		if n != 8 {
			continue
		}
		expirations := binary.NativeEndian.Uint64(buf)

		logrus.WithFields(logrus.Fields{
			"alarm":       a.name,
			"expirations": expirations,
		}).Debug("wake alarm fired")

		select {
		case a.fired <- time.Now():
		default:
		}
	}
}

func (a *BootAlarm) settime(d time.Duration) error {
	conn, err := a.file.SyscallConn()
	if err != nil {
		return err
	}
	var serr error
	err = conn.Control(func(fd uintptr) {
		spec := unix.ItimerSpec{Value: unix.NsecToTimespec(d.Nanoseconds())}
		serr = unix.TimerfdSettime(int(fd), 0, &spec, nil)
	})
	if err != nil {
		return err
	}
	return serr
}

func (a *BootAlarm) Start(d time.Duration) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return
	}

	a.drain()
	if d <= 0 {
		// A zero it_value disarms a timerfd, but Start means "fire"; use the
		// smallest representable delay instead.
		d = time.Nanosecond
	}
	if err := a.settime(d); err != nil {
		logrus.WithError(err).WithField("alarm", a.name).Error("failed to arm wake alarm")
		return
	}

	logrus.WithFields(logrus.Fields{
		"alarm": a.name,
		"in":    d.String(),
	}).Debug("wake alarm armed")
}

func (a *BootAlarm) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return
	}

	if err := a.settime(0); err != nil {
		logrus.WithError(err).WithField("alarm", a.name).Error("failed to disarm wake alarm")
	}
	a.drain()

	logrus.WithField("alarm", a.name).Debug("wake alarm disarmed")
}

func (a *BootAlarm) Fired() <-chan time.Time {
	return a.fired
}

func (a *BootAlarm) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return
	}
	a.closed = true
	_ = a.file.Close()
}

func (a *BootAlarm) drain() {
	select {
	case <-a.fired:
	default:
	}
}
