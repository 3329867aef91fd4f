package events

import "encoding/json"

// Name identifies a kind of daemon event.
type Name string

const (
	SuspendAttempt Name = "suspend.attempt"
	SuspendReady   Name = "suspend.ready"
	ResumeDark     Name = "resume.dark"
	ResumeFull     Name = "resume.full"
	ChargeState    Name = "charge.state"
	Residency      Name = "suspend.residency"
)

// Event is a generic event from the daemon.
type Event struct {
	Name Name            // event name
	Data json.RawMessage // raw JSON payload
}

// SuspendAttemptEvent is the typed payload for suspend.attempt.
type SuspendAttemptEvent struct {
	Sequence          uint64 `json:"sequence"`
	RequestedDuration string `json:"requestedDuration,omitempty"`
	Ts                int64  `json:"ts"`
}

// SuspendReadyEvent is the typed payload for suspend.ready.
type SuspendReadyEvent struct {
	Sequence uint64 `json:"sequence"`
	TimedOut bool   `json:"timedOut"`
	Ts       int64  `json:"ts"`
}

// ResumeEvent is the typed payload for resume.dark and resume.full.
type ResumeEvent struct {
	Dark           bool    `json:"dark"`
	BatteryPercent float64 `json:"batteryPercent"`
	LinePowerOn    bool    `json:"linePowerOn"`
	Ts             int64   `json:"ts"`
}

// ChargeStateEvent is the typed payload for charge.state.
type ChargeStateEvent struct {
	From    string `json:"from"`
	To      string `json:"to"`
	Message string `json:"message,omitempty"`
	Ts      int64  `json:"ts"`
}

// ResidencyEvent is the typed payload for suspend.residency.
type ResidencyEvent struct {
	Counter     string  `json:"counter"`
	RatePercent float64 `json:"ratePercent"`
	Ts          int64   `json:"ts"`
}

// DecodeAs decodes the event payload into the caller-specified generic type T.
// It ignores the event name and simply unmarshals Data into T. If Data is
// empty, it returns the zero value of T with a nil error.
func DecodeAs[T any](e Event) (T, error) {
	var zero T
	if len(e.Data) == 0 {
		return zero, nil
	}
	var v T
	if err := json.Unmarshal(e.Data, &v); err != nil {
		return zero, err
	}
	return v, nil
}
