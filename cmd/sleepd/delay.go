package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// NewSuspendCommand asks the daemon to suspend now.
func NewSuspendCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "suspend",
		GroupID: gBasic,
		Short:   "Suspend the system through sleepd",
		Long: `Start a suspend cycle: negotiate with registered suspend delays, then
suspend. The daemon handles dark resumes and shutdown-from-suspend on its own.`,
		RunE: func(_ *cobra.Command, _ []string) error {
			ret, err := apiClient.Suspend()
			if err != nil {
				return fmt.Errorf("failed to request suspend: %v", err)
			}
			if ret != "" {
				logrus.Infof("daemon responded: %s", ret)
			}
			return nil
		},
	}
}

// NewDelayCommand manages suspend delay registrations, mostly for debugging
// other delay clients.
func NewDelayCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "delay",
		GroupID: gAdvanced,
		Short:   "Manage suspend delay registrations",
	}

	var timeout time.Duration
	register := &cobra.Command{
		Use:   "register [description]",
		Short: "Register a suspend delay",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("invalid number of arguments")
			}
			id, err := apiClient.RegisterDelay(args[0], timeout)
			if err != nil {
				return fmt.Errorf("failed to register delay: %v", err)
			}
			cmd.Println(id)
			return nil
		},
	}
	register.Flags().DurationVar(&timeout, "timeout", 5*time.Second, "readiness ack timeout")

	unregister := &cobra.Command{
		Use:   "unregister [id]",
		Short: "Unregister a suspend delay",
		RunE: func(_ *cobra.Command, args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("invalid number of arguments")
			}
			if err := apiClient.UnregisterDelay(args[0]); err != nil {
				return fmt.Errorf("failed to unregister delay: %v", err)
			}
			logrus.Infof("unregistered delay %s", args[0])
			return nil
		},
	}

	ack := &cobra.Command{
		Use:   "ack [id] [sequence]",
		Short: "Acknowledge suspend readiness for an attempt",
		RunE: func(_ *cobra.Command, args []string) error {
			if len(args) != 2 {
				return fmt.Errorf("invalid number of arguments")
			}
			seq, err := strconv.ParseUint(args[1], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid sequence: %v", err)
			}
			if err := apiClient.AckDelay(args[0], seq); err != nil {
				return fmt.Errorf("failed to ack delay: %v", err)
			}
			return nil
		},
	}

	cmd.AddCommand(register, unregister, ack)
	return cmd
}
