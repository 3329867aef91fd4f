package client

import (
	"encoding/json"
	"time"

	pkgerrors "github.com/pkg/errors"

	"github.com/sleepd-project/sleepd/pkg/apis"
	"github.com/sleepd-project/sleepd/pkg/config"
)

// RegisterDelay registers a suspend delay and returns its ID.
func (c *Client) RegisterDelay(description string, timeout time.Duration) (string, error) {
	payload, err := json.Marshal(apis.RegisterDelayRequest{
		Description:         description,
		TimeoutMilliseconds: timeout.Milliseconds(),
	})
	if err != nil {
		return "", err
	}

	ret, err := c.Put("/delay", string(payload))
	if err != nil {
		return "", pkgerrors.Wrapf(err, "failed to register suspend delay")
	}

	var resp apis.RegisterDelayResponse
	if err := json.Unmarshal([]byte(ret), &resp); err != nil {
		return "", pkgerrors.Wrapf(err, "failed to unmarshal delay registration response")
	}
	return resp.ID, nil
}

// UnregisterDelay removes a previously registered suspend delay.
func (c *Client) UnregisterDelay(id string) error {
	_, err := c.Delete("/delay/" + id)
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to unregister suspend delay %s", id)
	}
	return nil
}

// AckDelay acknowledges suspend readiness for the given attempt sequence.
func (c *Client) AckDelay(id string, sequence uint64) error {
	payload, err := json.Marshal(apis.AckDelayRequest{Sequence: sequence})
	if err != nil {
		return err
	}
	_, err = c.Put("/delay/"+id+"/ack", string(payload))
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to ack suspend delay %s", id)
	}
	return nil
}

// SetChargePolicy updates the adaptive charge policy. Nil fields are left
// unchanged by the daemon.
func (c *Client) SetChargePolicy(req apis.ChargePolicyRequest) (string, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return "", err
	}
	return c.Put("/charge-policy", string(payload))
}

// Suspend asks the daemon to start a suspend cycle.
func (c *Client) Suspend() (string, error) {
	return c.Post("/suspend", "")
}

// GetStatus fetches the daemon status snapshot.
func (c *Client) GetStatus() (*apis.StatusResponse, error) {
	ret, err := c.Get("/status")
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to get status")
	}

	var st apis.StatusResponse
	if err := json.Unmarshal([]byte(ret), &st); err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to unmarshal status")
	}
	return &st, nil
}

// GetConfig fetches the daemon's current on-disk configuration.
func (c *Client) GetConfig() (*config.RawFileConfig, error) {
	ret, err := c.Get("/config")
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to get config")
	}

	var conf config.RawFileConfig
	if err := json.Unmarshal([]byte(ret), &conf); err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to unmarshal config")
	}
	return &conf, nil
}

// GetVersion fetches the daemon version.
func (c *Client) GetVersion() (string, error) {
	ret, err := c.Get("/version")
	if err != nil {
		return "", pkgerrors.Wrapf(err, "failed to get version")
	}
	// Remove "" around JSON string. I don't want to use a JSON decoder just for this.
	if len(ret) >= 2 {
		ret = ret[1 : len(ret)-1]
	}
	return ret, nil
}
