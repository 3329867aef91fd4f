package charge

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"net/http"
	"time"

	pkgerrors "github.com/pkg/errors"

	"github.com/sleepd-project/sleepd/pkg/power"
)

// Features is the input to the unplug-time prediction model.
type Features struct {
	BatteryPercent float64 `json:"batteryPercent"`
	LinePowerOn    bool    `json:"linePowerOn"`
	HourOfDay      int     `json:"hourOfDay"`
	DayOfWeek      int     `json:"dayOfWeek"`
}

// FeaturesFrom assembles model features from a power snapshot.
func FeaturesFrom(st power.Status, now time.Time) Features {
	return Features{
		BatteryPercent: st.BatteryPercent,
		LinePowerOn:    st.LinePowerOn,
		HourOfDay:      now.Hour(),
		DayOfWeek:      int(now.Weekday()),
	}
}

// Predictor returns unplug probabilities for consecutive time buckets.
// Implementations must be safe for the synchronous pre-suspend call.
type Predictor interface {
	Predict(features Features) ([]float64, error)
}

// HTTPPredictor talks to the ML sidecar over its unix socket.
type HTTPPredictor struct {
	httpClient *http.Client
}

var _ Predictor = &HTTPPredictor{}

func NewHTTPPredictor(socketPath string) *HTTPPredictor {
	return &HTTPPredictor{
		httpClient: &http.Client{
			Timeout: 5 * time.Second,
			Transport: &http.Transport{
				DialContext: func(_ context.Context, _, _ string) (net.Conn, error) {
					return net.Dial("unix", socketPath)
				},
			},
		},
	}
}

func (p *HTTPPredictor) Predict(features Features) ([]float64, error) {
	body, err := json.Marshal(features)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "failed to marshal prediction features")
	}

	resp, err := p.httpClient.Post("http://unix/predict", "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, pkgerrors.Wrap(err, "prediction request failed")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, pkgerrors.Errorf("prediction service returned %d", resp.StatusCode)
	}

	var probs []float64
	if err := json.NewDecoder(resp.Body).Decode(&probs); err != nil {
		return nil, pkgerrors.Wrap(err, "failed to decode prediction response")
	}
	return probs, nil
}
