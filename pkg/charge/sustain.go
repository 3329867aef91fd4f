package charge

import (
	"os"
	"strconv"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// SustainWriter drives the hardware battery-sustain register: a charge
// percentage range the controller holds the battery inside.
type SustainWriter interface {
	// Supported reports whether the hardware can hold a charge window.
	Supported() bool
	// SetSustain asks the hardware to keep the charge between lower and
	// upper percent.
	SetSustain(lower, upper int) error
	// ClearSustain releases the hold so charging proceeds to full.
	ClearSustain() error
}

// ECSustainWriter writes the charge-control thresholds exposed by the
// embedded controller through the power_supply sysfs class.
type ECSustainWriter struct {
	StartThresholdPath string
	EndThresholdPath   string
}

var _ SustainWriter = &ECSustainWriter{}

func NewECSustainWriter() *ECSustainWriter {
	return &ECSustainWriter{
		StartThresholdPath: "/sys/class/power_supply/BAT0/charge_control_start_threshold",
		EndThresholdPath:   "/sys/class/power_supply/BAT0/charge_control_end_threshold",
	}
}

func (w *ECSustainWriter) Supported() bool {
	if _, err := os.Stat(w.StartThresholdPath); err != nil {
		return false
	}
	if _, err := os.Stat(w.EndThresholdPath); err != nil {
		return false
	}
	return true
}

func (w *ECSustainWriter) SetSustain(lower, upper int) error {
	if lower < 0 {
		lower = 0
	}
	if upper > 100 {
		upper = 100
	}
	if lower > upper {
		lower = upper
	}

	// End threshold first: the kernel rejects a start threshold above the
	// current end threshold.
	if err := w.write(w.EndThresholdPath, upper); err != nil {
		return pkgerrors.Wrap(err, "failed to write charge end threshold")
	}
	if err := w.write(w.StartThresholdPath, lower); err != nil {
		return pkgerrors.Wrap(err, "failed to write charge start threshold")
	}

	logrus.WithFields(logrus.Fields{
		"lower": lower,
		"upper": upper,
	}).Debug("battery sustain window set")
	return nil
}

func (w *ECSustainWriter) ClearSustain() error {
	if err := w.write(w.EndThresholdPath, 100); err != nil {
		return pkgerrors.Wrap(err, "failed to reset charge end threshold")
	}
	if err := w.write(w.StartThresholdPath, 0); err != nil {
		return pkgerrors.Wrap(err, "failed to reset charge start threshold")
	}

	logrus.Debug("battery sustain window cleared")
	return nil
}

func (w *ECSustainWriter) write(path string, percent int) error {
	return os.WriteFile(path, []byte(strconv.Itoa(percent)), 0644)
}
