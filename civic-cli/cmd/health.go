package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newHealthCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Query node health summary",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			health, err := opts.client().GetHealthMetrics(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if opts.json() {
				return printJSON(out, health)
			}
			m := health.Metrics
			fmt.Fprintf(out, "Node Health: %s\n", health.Status)
			fmt.Fprintf(out, "Uptime: %ds\n", m.UptimeSeconds)
			fmt.Fprintf(out, "Block Height: %d\n", m.BlockHeight)
			fmt.Fprintf(out, "Contracts: %d\n", m.Contracts)
			fmt.Fprintf(out, "CPU Load: %.2f%%\n", m.CPULoadPercent)
			fmt.Fprintf(out, "Memory Usage: %.2f MB\n", m.MemoryMB)
			fmt.Fprintf(out, "Disk Free: %.2f MB\n", m.DiskFreeMB)
			fmt.Fprintf(out, "Idle: %ds\n", m.IdleSeconds)
			fmt.Fprintf(out, "Last Block Time: %s\n", m.LastBlockTime)
			fmt.Fprintf(out, "Events: %d buffered, %d dropped\n", m.BufferedEvents, m.DroppedEvents)
			return nil
		},
	}
}

func newLivenessCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "liveness",
		Short: "Check node liveness",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			alive, err := opts.client().GetLiveness(cmd.Context())
			if err != nil {
				return err
			}
			if opts.json() {
				return printJSON(cmd.OutOrStdout(), map[string]bool{"alive": alive})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Liveness: %v\n", alive)
			return nil
		},
	}
}

func newReadinessCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "readiness",
		Short: "Check node readiness",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ready, err := opts.client().GetReadiness(cmd.Context())
			if err != nil {
				return err
			}
			if opts.json() {
				return printJSON(cmd.OutOrStdout(), map[string]bool{"ready": ready})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Readiness: %v\n", ready)
			return nil
		},
	}
}
