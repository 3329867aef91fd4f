package power

import (
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/distatus/battery"
	"github.com/sirupsen/logrus"
)

// SysfsProvider reads battery charge through the cross-platform battery
// library and line-power state from /sys/class/power_supply. It caches the
// last good snapshot so a transient read failure never leaves the suspend
// core without data.
type SysfsProvider struct {
	acOnlineGlob           string
	lowBatteryShutdownPerc float64

	mu   sync.Mutex
	last Status
	ok   bool
}

var _ StatusProvider = &SysfsProvider{}

func NewSysfsProvider(lowBatteryShutdownPercent float64) *SysfsProvider {
	p := &SysfsProvider{
		acOnlineGlob:           "/sys/class/power_supply/AC*/online",
		lowBatteryShutdownPerc: lowBatteryShutdownPercent,
	}
	p.RefreshImmediately()
	return p
}

func (p *SysfsProvider) GetStatus() Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.last
}

func (p *SysfsProvider) RefreshImmediately() bool {
	bats, err := battery.GetAll()
	if err != nil || len(bats) == 0 {
		logrus.WithError(err).Debug("failed to read battery state")
		return false
	}

	// Sum across packs; multi-battery laptops report one logical charge.
	var full, current float64
	for _, b := range bats {
		full += b.Full
		current += b.Current
	}
	if full <= 0 {
		logrus.Debug("battery reports zero design capacity")
		return false
	}

	percent := current / full * 100

	st := Status{
		LinePowerOn:                   p.linePowerOn(),
		BatteryPercent:                percent,
		BatteryBelowShutdownThreshold: percent <= p.lowBatteryShutdownPerc,
	}

	p.mu.Lock()
	p.last = st
	p.ok = true
	p.mu.Unlock()
	return true
}

func (p *SysfsProvider) linePowerOn() bool {
	matches, err := filepath.Glob(p.acOnlineGlob)
	if err != nil {
		return false
	}
	for _, path := range matches {
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		if strings.TrimSpace(string(data)) == "1" {
			return true
		}
	}
	return false
}
