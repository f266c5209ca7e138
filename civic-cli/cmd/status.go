package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newStatusCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Query node status",
		Example: `  civicctl status
  civicctl status --output json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			status, err := opts.client().GetStatus(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if opts.json() {
				return printJSON(out, status)
			}
			fmt.Fprintf(out, "Channel: %s\nStatus: %s\nHeight: %d\nHead: %s\nContracts: %s\nVersion: %s (api %s)\n",
				status.Channel, status.Status, status.BlockHeight, status.HeadHash,
				strings.Join(status.Contracts, ", "), status.Version, status.APIVersion)
			return nil
		},
	}
}
