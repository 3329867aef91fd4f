package daemon

import (
	"os/exec"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Executor carries out the terminal power actions the suspend state machine
// selects. Suspend itself is performed in-process; shutdown and hibernate go
// through the init system so services stop cleanly.
type Executor interface {
	ShutDown() error
	Hibernate() error
}

// SystemdExecutor delegates to systemctl.
type SystemdExecutor struct {
	systemctlPath string
}

var _ Executor = &SystemdExecutor{}

func NewSystemdExecutor() *SystemdExecutor {
	return &SystemdExecutor{systemctlPath: "systemctl"}
}

func (e *SystemdExecutor) ShutDown() error {
	logrus.Warn("shutting down from suspend")
	return e.run("poweroff")
}

func (e *SystemdExecutor) Hibernate() error {
	logrus.Warn("hibernating from suspend")
	return e.run("hibernate")
}

func (e *SystemdExecutor) run(verb string) error {
	out, err := exec.Command(e.systemctlPath, verb).CombinedOutput()
	if err != nil {
		return pkgerrors.Wrapf(err, "systemctl %s failed: %s", verb, string(out))
	}
	return nil
}
