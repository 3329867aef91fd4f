package config

import (
	"encoding/json"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/sleepd-project/sleepd/pkg/utils/ptr"
)

var (
	defaultFileConfig = &RawFileConfig{
		DarkResumeSchedule: []DarkResumeEntry{
			{BatteryPercent: 0, Duration: 10 * time.Minute},
			{BatteryPercent: 10, Duration: 30 * time.Minute},
			{BatteryPercent: 20, Duration: time.Hour},
			{BatteryPercent: 50, Duration: 6 * time.Hour},
			{BatteryPercent: 80, Duration: 12 * time.Hour},
		},
		ShutdownAfter:                ptr.To(5 * 24 * time.Hour),
		HibernateAfter:               ptr.To(24 * time.Hour),
		MaxDelayTimeout:              ptr.To(20 * time.Second),
		LowBatteryShutdownPercent:    ptr.To(3.0),
		DischargeSafetyMarginPercent: ptr.To(2.0),
		SuspendMode:                  ptr.To("s2idle"),
		SuspendRetries:               ptr.To(10),

		AdaptiveChargeEnabled:          ptr.To(false),
		AdaptiveChargeHoldPercent:      ptr.To(80),
		AdaptiveChargeHoldDeltaPercent: ptr.To(2),
		AdaptiveChargeMinProbability:   ptr.To(0.35),
		AdaptiveChargeRecheckInterval:  ptr.To(30 * time.Minute),
		AdaptiveChargeFinishBuffer:     ptr.To(2 * time.Hour),

		AllowNonRootAccess: ptr.To(false),
	}
)

var _ Config = &File{}

type File struct {
	c        *RawFileConfig
	mu       *sync.RWMutex
	filepath string
}

func NewFile(configPath string) (*File, error) {
	f := &File{
		filepath: configPath,
		mu:       &sync.RWMutex{},
	}
	err := f.Load()
	if err != nil {
		return nil, err
	}

	return f, nil
}

func NewFileFromConfig(c *RawFileConfig, configPath string) *File {
	if c == nil {
		c = defaultFileConfig
	}

	return &File{
		c:        c,
		mu:       &sync.RWMutex{},
		filepath: configPath,
	}
}

// Raw returns a copy of the on-disk representation, for read-only display.
func (f *File) Raw() RawFileConfig {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return *f.c
}

// RawFileConfig is the on-disk representation. Pointer fields distinguish
// "unset, use default" from an explicit zero value.
type RawFileConfig struct {
	DarkResumeSchedule           []DarkResumeEntry `json:"darkResumeSchedule,omitempty"`
	ShutdownAfter                *time.Duration    `json:"shutdownAfter,omitempty"`
	HibernateAfter               *time.Duration    `json:"hibernateAfter,omitempty"`
	MaxDelayTimeout              *time.Duration    `json:"maxDelayTimeout,omitempty"`
	LowBatteryShutdownPercent    *float64          `json:"lowBatteryShutdownPercent,omitempty"`
	DischargeSafetyMarginPercent *float64          `json:"dischargeSafetyMarginPercent,omitempty"`
	SuspendMode                  *string           `json:"suspendMode,omitempty"`
	SuspendRetries               *int              `json:"suspendRetries,omitempty"`

	AdaptiveChargeEnabled          *bool          `json:"adaptiveChargeEnabled,omitempty"`
	AdaptiveChargeHoldPercent      *int           `json:"adaptiveChargeHoldPercent,omitempty"`
	AdaptiveChargeHoldDeltaPercent *int           `json:"adaptiveChargeHoldDeltaPercent,omitempty"`
	AdaptiveChargeMinProbability   *float64       `json:"adaptiveChargeMinProbability,omitempty"`
	AdaptiveChargeRecheckInterval  *time.Duration `json:"adaptiveChargeRecheckInterval,omitempty"`
	AdaptiveChargeFinishBuffer     *time.Duration `json:"adaptiveChargeFinishBuffer,omitempty"`

	AllowNonRootAccess *bool `json:"allowNonRootAccess,omitempty"`
}

func (f *File) DarkResumeSchedule() []DarkResumeEntry {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.c.DarkResumeSchedule != nil {
		return f.c.DarkResumeSchedule
	}
	return defaultFileConfig.DarkResumeSchedule
}

func (f *File) ShutdownAfter() time.Duration {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.c.ShutdownAfter != nil {
		return *f.c.ShutdownAfter
	}
	return *defaultFileConfig.ShutdownAfter
}

func (f *File) HibernateAfter() time.Duration {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.c.HibernateAfter != nil {
		return *f.c.HibernateAfter
	}
	return *defaultFileConfig.HibernateAfter
}

func (f *File) MaxDelayTimeout() time.Duration {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.c.MaxDelayTimeout != nil {
		return *f.c.MaxDelayTimeout
	}
	return *defaultFileConfig.MaxDelayTimeout
}

func (f *File) LowBatteryShutdownPercent() float64 {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.c.LowBatteryShutdownPercent != nil {
		return *f.c.LowBatteryShutdownPercent
	}
	return *defaultFileConfig.LowBatteryShutdownPercent
}

func (f *File) DischargeSafetyMarginPercent() float64 {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.c.DischargeSafetyMarginPercent != nil {
		return *f.c.DischargeSafetyMarginPercent
	}
	return *defaultFileConfig.DischargeSafetyMarginPercent
}

func (f *File) SuspendMode() string {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.c.SuspendMode != nil {
		return *f.c.SuspendMode
	}
	return *defaultFileConfig.SuspendMode
}

func (f *File) SuspendRetries() int {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.c.SuspendRetries != nil {
		return *f.c.SuspendRetries
	}
	return *defaultFileConfig.SuspendRetries
}

func (f *File) AdaptiveChargeEnabled() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.c.AdaptiveChargeEnabled != nil {
		return *f.c.AdaptiveChargeEnabled
	}
	return *defaultFileConfig.AdaptiveChargeEnabled
}

func (f *File) AdaptiveChargeHoldPercent() int {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.c.AdaptiveChargeHoldPercent != nil {
		return *f.c.AdaptiveChargeHoldPercent
	}
	return *defaultFileConfig.AdaptiveChargeHoldPercent
}

func (f *File) AdaptiveChargeHoldDeltaPercent() int {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.c.AdaptiveChargeHoldDeltaPercent != nil {
		return *f.c.AdaptiveChargeHoldDeltaPercent
	}
	return *defaultFileConfig.AdaptiveChargeHoldDeltaPercent
}

func (f *File) AdaptiveChargeMinProbability() float64 {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.c.AdaptiveChargeMinProbability != nil {
		return *f.c.AdaptiveChargeMinProbability
	}
	return *defaultFileConfig.AdaptiveChargeMinProbability
}

func (f *File) AdaptiveChargeRecheckInterval() time.Duration {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.c.AdaptiveChargeRecheckInterval != nil {
		return *f.c.AdaptiveChargeRecheckInterval
	}
	return *defaultFileConfig.AdaptiveChargeRecheckInterval
}

func (f *File) AdaptiveChargeFinishBuffer() time.Duration {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.c.AdaptiveChargeFinishBuffer != nil {
		return *f.c.AdaptiveChargeFinishBuffer
	}
	return *defaultFileConfig.AdaptiveChargeFinishBuffer
}

func (f *File) AllowNonRootAccess() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.c.AllowNonRootAccess != nil {
		return *f.c.AllowNonRootAccess
	}
	return *defaultFileConfig.AllowNonRootAccess
}

func (f *File) SetAdaptiveChargeEnabled(b bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.c.AdaptiveChargeEnabled = &b
}

func (f *File) SetAdaptiveChargeHoldPercent(i int) {
	if i < 20 {
		i = 20
	}
	if i > 100 {
		i = 100
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.c.AdaptiveChargeHoldPercent = &i
}

func (f *File) SetAdaptiveChargeMinProbability(p float64) {
	if p < 0 {
		p = 0
	}
	if p > 1 {
		p = 1
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.c.AdaptiveChargeMinProbability = &p
}

func (f *File) Load() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	fp, err := os.Open(f.filepath)
	if err != nil {
		if os.IsNotExist(err) {
			// If the file does not exist, return the empty config.
			// Do not make f.c a nil.
			f.c = &RawFileConfig{}
			return nil
		}
		return pkgerrors.Wrapf(err, "failed to open file %s", f.filepath)
	}
	defer func(fp *os.File) {
		err := fp.Close()
		if err != nil {
			logrus.Warnf("failed to close file %s", f.filepath)
		}
	}(fp)

	b, err := io.ReadAll(fp)
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to read file %s", f.filepath)
	}

	if strings.TrimSpace(string(b)) == "" {
		// If the file is empty, return the empty config.
		// Do not make f.c a nil.
		f.c = &RawFileConfig{}
		return nil
	}

	conf := RawFileConfig{}
	err = json.Unmarshal(b, &conf)
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to unmarshal config from file %s", f.filepath)
	}
	f.c = &conf

	return nil
}

func (f *File) Save() error {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.c == nil {
		return pkgerrors.New("config is nil")
	}

	fp, err := os.OpenFile(f.filepath, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to open file %s", f.filepath)
	}
	defer func(fp *os.File) {
		err := fp.Close()
		if err != nil {
			logrus.Warnf("failed to close file %s", f.filepath)
		}
	}(fp)

	enc := json.NewEncoder(fp)
	enc.SetIndent("", "  ")
	err = enc.Encode(f.c)
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to encode config to file %s", f.filepath)
	}

	return nil
}

func (f *File) LogrusFields() logrus.Fields {
	return logrus.Fields{
		"darkResumeSchedule":    len(f.DarkResumeSchedule()),
		"shutdownAfter":         f.ShutdownAfter().String(),
		"hibernateAfter":        f.HibernateAfter().String(),
		"maxDelayTimeout":       f.MaxDelayTimeout().String(),
		"suspendMode":           f.SuspendMode(),
		"adaptiveChargeEnabled": f.AdaptiveChargeEnabled(),
		"holdPercent":           f.AdaptiveChargeHoldPercent(),
		"allowNonRootAccess":    f.AllowNonRootAccess(),
	}
}
