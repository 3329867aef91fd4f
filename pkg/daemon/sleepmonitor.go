package daemon

import (
	"github.com/godbus/dbus/v5"
	"github.com/sirupsen/logrus"
)

// SleepMonitor listens for systemd-logind PrepareForSleep/PrepareForShutdown
// signals on the system bus. Externally triggered sleeps (lid close handled
// by logind, `systemctl suspend` from a shell) bypass our IPC surface, so the
// monitor feeds them into the same suspend request channel.
type SleepMonitor struct {
	conn *dbus.Conn
	done chan struct{}
}

func NewSleepMonitor() (*SleepMonitor, error) {
	conn, err := dbus.SystemBus()
	if err != nil {
		return nil, err
	}

	for _, member := range []string{"PrepareForSleep", "PrepareForShutdown"} {
		err = conn.AddMatchSignal(
			dbus.WithMatchInterface("org.freedesktop.login1.Manager"),
			dbus.WithMatchMember(member),
		)
		if err != nil {
			return nil, err
		}
	}

	m := &SleepMonitor{
		conn: conn,
		done: make(chan struct{}),
	}
	go m.run()
	return m, nil
}

func (m *SleepMonitor) run() {
	ch := make(chan *dbus.Signal, 8)
	m.conn.Signal(ch)

	for {
		select {
		case <-m.done:
			return
		case sig := <-ch:
			if sig == nil || len(sig.Body) < 1 {
				continue
			}
			active, ok := sig.Body[0].(bool)
			if !ok {
				continue
			}

			switch sig.Name {
			case "org.freedesktop.login1.Manager.PrepareForShutdown":
				if active {
					logrus.Info("system preparing for shutdown")
					chargeScheduler.NotifyShutdown()
					counters.Persist()
				}
			case "org.freedesktop.login1.Manager.PrepareForSleep":
				if active {
					logrus.Info("externally requested sleep, starting suspend cycle")
					select {
					case suspendRequested <- struct{}{}:
					default:
					}
				}
			}
		}
	}
}

func (m *SleepMonitor) Close() {
	close(m.done)
	_ = m.conn.Close()
}
