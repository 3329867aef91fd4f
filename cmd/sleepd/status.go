package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/sleepd-project/sleepd/pkg/version"
)

func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version",
		Run: func(cmd *cobra.Command, _ []string) {
			cmd.Printf("%s %s\n", version.Version, version.GitCommit)
		},
	}
}

func NewStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "status",
		GroupID: gBasic,
		Short:   "Get the current status of sleepd",
		Long:    `Get power state, suspend delay registrations, and adaptive charge status.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := apiClient.GetStatus()
			if err != nil {
				return fmt.Errorf("failed to get status: %w", err)
			}

			cmd.Println(bold("Power:"))
			cmd.Printf("  Battery: %s\n", bold("%.1f%%", st.BatteryPercent))
			cmd.Println("  Line power: " + bool2Text(st.LinePowerOn))

			cmd.Println(bold("Suspend:"))
			cmd.Println("  In dark resume: " + bool2Text(st.InDarkResume))
			cmd.Println("  Dark resume enabled: " + bool2Text(st.DarkResumeEnabled))
			cmd.Printf("  Shutdown threshold: %.1f%%\n", st.ShutdownThresholdPercent)
			cmd.Printf("  Suspends this install: %d (%d dark resumes)\n", st.SuspendCount, st.DarkResumeCount)
			if len(st.Delays) == 0 {
				cmd.Println("  No suspend delays registered.")
			} else {
				cmd.Printf("  %d suspend delay(s):\n", len(st.Delays))
				for _, d := range st.Delays {
					cmd.Printf("    - %s (%s, %dms)\n", d.Description, d.ID, d.TimeoutMs)
				}
			}

			cmd.Println(bold("Adaptive charge:"))
			cmd.Printf("  State: %s\n", st.ChargeState)
			if st.ChargeTarget != "" {
				cmd.Printf("  Target full charge: %s\n", st.ChargeTarget)
			}

			return nil
		},
	}
}

func bool2Text(b bool) string {
	if b {
		return color.New(color.Bold, color.FgGreen).Sprint("✔")
	}
	return color.New(color.Bold, color.FgRed).Sprint("✘")
}

func bold(format string, a ...interface{}) string {
	return color.New(color.Bold).Sprintf(format, a...)
}
