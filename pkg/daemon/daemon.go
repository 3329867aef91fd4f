// Package daemon wires the suspend core to its collaborators: the unix
// socket IPC surface, the logind sleep notifications, the platform action
// executor, and the cross-boot counter store.
package daemon

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/sleepd-project/sleepd/pkg/charge"
	"github.com/sleepd-project/sleepd/pkg/config"
	"github.com/sleepd-project/sleepd/pkg/events"
	"github.com/sleepd-project/sleepd/pkg/power"
	"github.com/sleepd-project/sleepd/pkg/suspend"
	"github.com/sleepd-project/sleepd/pkg/timer"
)

var (
	conf            config.Config
	hub             *events.EventHub
	coordinator     *suspend.Coordinator
	chargeScheduler *charge.Scheduler
	statusProvider  power.StatusProvider
	counters        *CounterStore
	executor        Executor

	// suspendRequested serializes suspend requests onto one cycle runner.
	suspendRequested = make(chan struct{}, 1)
)

func setupRoutes() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(ginLogger(logrus.StandardLogger()))
	router.GET("/config", getConfig)
	router.GET("/status", getStatus)
	router.PUT("/delay", registerDelay)
	router.DELETE("/delay/:id", unregisterDelay)
	router.PUT("/delay/:id/ack", ackDelay)
	router.PUT("/charge-policy", setChargePolicy)
	router.POST("/suspend", requestSuspend)
	router.GET("/version", getVersion)

	return router
}

// Run starts the daemon and blocks until SIGINT/SIGTERM.
func Run(configPath, unixSocketPath, mlSocketPath string, allowNonRoot bool) error {
	router := setupRoutes()

	var err error
	conf, err = config.NewFile(configPath)
	if err != nil {
		logrus.Fatalf("failed to parse config during startup: %v", err)
	}
	logrus.WithFields(conf.(*config.File).LogrusFields()).Infof("config loaded")

	// Receive SIGHUP to reload config
	go func() {
		sigc := make(chan os.Signal, 1)
		signal.Notify(sigc, syscall.SIGHUP)
		for range sigc {
			err := conf.Load()
			if err != nil {
				logrus.Errorf("failed to reload config: %v", err)
				continue
			}
			logrus.Infof("config reloaded")
		}
	}()

	hub = events.NewEventHub()
	factory := timer.SystemFactory{}

	statusProvider = power.NewSysfsProvider(conf.LowBatteryShutdownPercent())

	chargeScheduler = charge.NewScheduler(charge.Config{
		HoldPercent:      conf.AdaptiveChargeHoldPercent(),
		HoldDeltaPercent: conf.AdaptiveChargeHoldDeltaPercent(),
		MinProbability:   conf.AdaptiveChargeMinProbability(),
		RecheckInterval:  conf.AdaptiveChargeRecheckInterval(),
		FinishBuffer:     conf.AdaptiveChargeFinishBuffer(),
	}, factory, charge.NewECSustainWriter(), charge.NewHTTPPredictor(mlSocketPath), hub)
	chargeScheduler.Start()
	chargeScheduler.OnPolicyChange(
		conf.AdaptiveChargeEnabled(),
		conf.AdaptiveChargeHoldPercent(),
		conf.AdaptiveChargeMinProbability(),
	)

	configurator := suspend.NewConfigurator(conf.SuspendMode())
	coordinator = suspend.NewCoordinator(
		conf, factory, configurator, statusProvider,
		suspend.NewSysfsSuspender(), hub, chargeScheduler,
	)

	executor = NewSystemdExecutor()

	counters = NewCounterStore(filepath.Join(filepath.Dir(configPath), "sleepd-counters.json"))
	counters.Load()

	// Periodically persist the cross-boot counters so an unclean shutdown
	// loses at most one interval's worth.
	cr := cron.New()
	if _, err := cr.AddFunc("@every 1m", counters.Persist); err != nil {
		logrus.Errorf("failed to schedule counter persistence: %v", err)
	}
	cr.Start()

	monitor, err := NewSleepMonitor()
	if err != nil {
		logrus.Errorf("failed to connect to logind sleep signals: %v", err)
	}

	go runSuspendLoop()

	srv := &http.Server{Handler: router}

	l, err := net.Listen("unix", unixSocketPath)
	if err != nil {
		logrus.Fatal(err)
	}

	if conf.AllowNonRootAccess() || allowNonRoot {
		logrus.Infof("non-root access is allowed, changing permissions of %s to 0777", unixSocketPath)
		err = os.Chmod(unixSocketPath, 0777)
		if err != nil {
			logrus.Fatal(err)
		}
	}

	// Serve HTTP on unix socket
	go func() {
		logrus.Infof("http server listening on %s", l.Addr().String())
		if err := srv.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.Fatal(err)
		}
	}()

	// Handle common process-killing signals, so we can gracefully shut down:
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigc
	logrus.Infof("caught signal \"%s\": shutting down.", sig)

	logrus.Info("shutting down http server")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	err = srv.Shutdown(ctx)
	if err != nil {
		logrus.Errorf("failed to shutdown http server: %v", err)
	}
	cancel()

	cr.Stop()
	if monitor != nil {
		monitor.Close()
	}
	chargeScheduler.Stop()
	counters.Persist()

	logrus.Info("exiting")
	return nil
}

// runSuspendLoop executes suspend cycles one at a time. A cycle keeps
// re-suspending through dark resumes until a full resume or a terminal
// action.
func runSuspendLoop() {
	for range suspendRequested {
		runSuspendCycle()
	}
}

func runSuspendCycle() {
	for {
		action, err := coordinator.SuspendAndResume()
		if err != nil {
			logrus.Errorf("suspend cycle aborted: %v", err)
			return
		}

		switch action {
		case suspend.ActionShutDown:
			chargeScheduler.NotifyShutdown()
			counters.Persist()
			if err := executor.ShutDown(); err != nil {
				logrus.Errorf("shutdown failed: %v", err)
			}
			return
		case suspend.ActionHibernate:
			chargeScheduler.NotifyShutdown()
			counters.Persist()
			if err := executor.Hibernate(); err != nil {
				logrus.Errorf("hibernate failed: %v", err)
			}
			return
		case suspend.ActionSuspend:
			counters.IncSuspend()
		}

		if classifyWake() == wakeDark {
			counters.IncDarkResume()
			coordinator.OnDarkResume()
			continue
		}

		coordinator.OnFullResume()
		return
	}
}
