package daemon

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/sleepd-project/sleepd/pkg/apis"
	"github.com/sleepd-project/sleepd/pkg/config"
	"github.com/sleepd-project/sleepd/pkg/version"
)

func getConfig(c *gin.Context) {
	fc, ok := conf.(*config.File)
	if !ok {
		c.IndentedJSON(http.StatusOK, conf)
		return
	}
	c.IndentedJSON(http.StatusOK, fc.Raw())
}

func getVersion(c *gin.Context) {
	c.IndentedJSON(http.StatusOK, version.Version)
}

func getStatus(c *gin.Context) {
	statusProvider.RefreshImmediately()
	st := statusProvider.GetStatus()

	delays := []apis.DelayInfo{}
	for _, d := range coordinator.Registry().Clients() {
		delays = append(delays, apis.DelayInfo{
			ID:          d.ID.String(),
			Description: d.Description,
			TimeoutMs:   d.Timeout.Milliseconds(),
		})
	}

	resp := apis.StatusResponse{
		BatteryPercent:           st.BatteryPercent,
		LinePowerOn:              st.LinePowerOn,
		InDarkResume:             coordinator.InDarkResume(),
		DarkResumeEnabled:        coordinator.Evaluator().Enabled(),
		ShutdownThresholdPercent: coordinator.Evaluator().ShutdownThresholdPercent(),
		ChargeState:              string(chargeScheduler.State()),
		Delays:                   delays,
		SuspendCount:             counters.SuspendCount(),
		DarkResumeCount:          counters.DarkResumeCount(),
	}
	if target, unbounded := chargeScheduler.TargetFullChargeTime(); unbounded {
		resp.ChargeTarget = "unbounded"
	} else if !target.IsZero() {
		resp.ChargeTarget = target.Format(time.RFC3339)
	}

	c.IndentedJSON(http.StatusOK, resp)
}

func registerDelay(c *gin.Context) {
	var req apis.RegisterDelayRequest
	if err := c.BindJSON(&req); err != nil {
		c.IndentedJSON(http.StatusBadRequest, err.Error())
		_ = c.AbortWithError(http.StatusBadRequest, err)
		return
	}

	if req.TimeoutMilliseconds < 0 {
		err := fmt.Errorf("timeout must not be negative, got %d", req.TimeoutMilliseconds)
		c.IndentedJSON(http.StatusBadRequest, err.Error())
		_ = c.AbortWithError(http.StatusBadRequest, err)
		return
	}

	id := coordinator.Registry().Register(req.Description, time.Duration(req.TimeoutMilliseconds)*time.Millisecond)
	logrus.Infof("registered suspend delay %q (%s)", req.Description, id)

	c.IndentedJSON(http.StatusCreated, apis.RegisterDelayResponse{ID: id.String()})
}

func unregisterDelay(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.IndentedJSON(http.StatusBadRequest, err.Error())
		_ = c.AbortWithError(http.StatusBadRequest, err)
		return
	}

	if !coordinator.Registry().Unregister(id) {
		err := fmt.Errorf("no suspend delay with id %s", id)
		c.IndentedJSON(http.StatusNotFound, err.Error())
		_ = c.AbortWithError(http.StatusNotFound, err)
		return
	}

	c.IndentedJSON(http.StatusOK, "ok")
}

func ackDelay(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.IndentedJSON(http.StatusBadRequest, err.Error())
		_ = c.AbortWithError(http.StatusBadRequest, err)
		return
	}

	var req apis.AckDelayRequest
	if err := c.BindJSON(&req); err != nil {
		c.IndentedJSON(http.StatusBadRequest, err.Error())
		_ = c.AbortWithError(http.StatusBadRequest, err)
		return
	}

	// Stale and unknown acks are dropped inside the registry; the HTTP
	// answer is ok either way so clients don't retry them.
	coordinator.Registry().Ack(id, req.Sequence)
	c.IndentedJSON(http.StatusOK, "ok")
}

func setChargePolicy(c *gin.Context) {
	var req apis.ChargePolicyRequest
	if err := c.BindJSON(&req); err != nil {
		c.IndentedJSON(http.StatusBadRequest, err.Error())
		_ = c.AbortWithError(http.StatusBadRequest, err)
		return
	}

	if req.HoldPercent != nil {
		if *req.HoldPercent < 10 || *req.HoldPercent > 100 {
			err := fmt.Errorf("hold percent must be between 10 and 100, got %g", *req.HoldPercent)
			c.IndentedJSON(http.StatusBadRequest, err.Error())
			_ = c.AbortWithError(http.StatusBadRequest, err)
			return
		}
		conf.SetAdaptiveChargeHoldPercent(int(*req.HoldPercent))
	}
	if req.MinProbability != nil {
		if *req.MinProbability < 0 || *req.MinProbability > 1 {
			err := fmt.Errorf("min probability must be between 0 and 1, got %g", *req.MinProbability)
			c.IndentedJSON(http.StatusBadRequest, err.Error())
			_ = c.AbortWithError(http.StatusBadRequest, err)
			return
		}
		conf.SetAdaptiveChargeMinProbability(*req.MinProbability)
	}
	if req.Enabled != nil {
		conf.SetAdaptiveChargeEnabled(*req.Enabled)
	}

	if err := conf.Save(); err != nil {
		logrus.Errorf("saveConfig failed: %v", err)
		c.IndentedJSON(http.StatusInternalServerError, err.Error())
		_ = c.AbortWithError(http.StatusInternalServerError, err)
		return
	}

	chargeScheduler.OnPolicyChange(
		conf.AdaptiveChargeEnabled(),
		conf.AdaptiveChargeHoldPercent(),
		conf.AdaptiveChargeMinProbability(),
	)

	logrus.Infof("charge policy updated: enabled=%t hold=%d minProb=%g",
		conf.AdaptiveChargeEnabled(),
		conf.AdaptiveChargeHoldPercent(),
		conf.AdaptiveChargeMinProbability(),
	)

	c.IndentedJSON(http.StatusCreated, "ok")
}

func requestSuspend(c *gin.Context) {
	select {
	case suspendRequested <- struct{}{}:
		c.IndentedJSON(http.StatusAccepted, "ok")
	default:
		// A cycle is already queued or running.
		c.IndentedJSON(http.StatusConflict, "suspend already in progress")
	}
}
