package main

import (
	"fmt"
	"strconv"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/sleepd-project/sleepd/pkg/apis"
	"github.com/sleepd-project/sleepd/pkg/utils/ptr"
)

// NewAdaptiveChargeCommand manages the adaptive charge policy.
func NewAdaptiveChargeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "adaptive-charge",
		GroupID: gBasic,
		Short:   "Control adaptive charging",
		Long: `Control adaptive charging.

When enabled, sleepd holds the battery at the hold percentage while on line
power and schedules the final charge so the battery reaches full shortly
before the predicted unplug time.`,
	}

	setPolicy := func(req apis.ChargePolicyRequest, what string) error {
		ret, err := apiClient.SetChargePolicy(req)
		if err != nil {
			return fmt.Errorf("failed to set %s: %v", what, err)
		}
		if ret != "" {
			logrus.Infof("daemon responded: %s", ret)
		}
		logrus.Infof("successfully set %s", what)
		return nil
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "enable",
			Short: "Enable adaptive charging",
			RunE: func(_ *cobra.Command, _ []string) error {
				return setPolicy(apis.ChargePolicyRequest{Enabled: ptr.To(true)}, "adaptive charge enable")
			},
		},
		&cobra.Command{
			Use:   "disable",
			Short: "Disable adaptive charging",
			RunE: func(_ *cobra.Command, _ []string) error {
				return setPolicy(apis.ChargePolicyRequest{Enabled: ptr.To(false)}, "adaptive charge disable")
			},
		},
		&cobra.Command{
			Use:   "hold [percentage]",
			Short: "Set the hold percentage",
			Long: `Set the battery percentage adaptive charging holds at while waiting
for the predicted unplug time. This is a percentage from 10 to 100.`,
			RunE: func(_ *cobra.Command, args []string) error {
				if len(args) != 1 {
					return fmt.Errorf("invalid number of arguments")
				}
				hold, err := strconv.ParseFloat(args[0], 64)
				if err != nil {
					return fmt.Errorf("invalid percentage: %v", err)
				}
				return setPolicy(apis.ChargePolicyRequest{HoldPercent: ptr.To(hold)}, "hold percentage")
			},
		},
		&cobra.Command{
			Use:   "min-probability [probability]",
			Short: "Set the minimum prediction confidence",
			Long: `Set the minimum probability the unplug prediction must reach before
adaptive charging will delay the final charge. Between 0 and 1.`,
			RunE: func(_ *cobra.Command, args []string) error {
				if len(args) != 1 {
					return fmt.Errorf("invalid number of arguments")
				}
				p, err := strconv.ParseFloat(args[0], 64)
				if err != nil {
					return fmt.Errorf("invalid probability: %v", err)
				}
				return setPolicy(apis.ChargePolicyRequest{MinProbability: ptr.To(p)}, "minimum probability")
			},
		},
	)

	return cmd
}
