package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"civicledger/civic-cli/api"
)

func newEventsCmd(opts *rootOptions) *cobra.Command {
	var (
		since    int64
		contract string
		limit    int
	)
	cmd := &cobra.Command{
		Use:   "events",
		Short: "List recently committed contract events",
		Example: `  civicctl events --contract approval
  civicctl events --since 42 --output json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			filter := api.EventFilter{Contract: contract, Limit: limit}
			if since >= 0 {
				s := uint64(since)
				filter.Since = &s
			}
			evts, err := opts.client().Events(cmd.Context(), filter)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if opts.json() {
				return printJSON(out, evts)
			}
			for _, e := range evts {
				fmt.Fprintf(out, "#%d %s.%s tx=%s %s\n", e.BlockNumber, e.Contract, e.Name, e.TxID, string(e.Payload))
			}
			return nil
		},
	}
	cmd.Flags().Int64Var(&since, "since", -1, "Only events from blocks after this number")
	cmd.Flags().StringVar(&contract, "contract", "", "Only events of this contract")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of events")
	return cmd
}
