package cmd

import (
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"civicledger/civic-cli/api"
)

func newBlocksCmd(opts *rootOptions) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "blocks [number]",
		Short: "List the newest blocks, or show one block",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := opts.client()
			out := cmd.OutOrStdout()
			if len(args) == 1 {
				n, err := strconv.ParseUint(args[0], 10, 64)
				if err != nil {
					return fmt.Errorf("invalid block number %q", args[0])
				}
				blk, err := client.Block(cmd.Context(), n)
				if err != nil {
					return err
				}
				if opts.json() {
					return printJSON(out, blk)
				}
				printBlocks(out, []api.Block{*blk})
				return nil
			}
			list, err := client.Blocks(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if opts.json() {
				return printJSON(out, list)
			}
			fmt.Fprintf(out, "Height: %d\n", list.Height)
			printBlocks(out, list.Blocks)
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "Number of blocks to list")
	return cmd
}

func printBlocks(w io.Writer, blocks []api.Block) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NUMBER\tTIME\tCONTRACT\tFUNCTION\tCREATOR\tCODE\tTX")
	for _, b := range blocks {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\t%s\n",
			b.Number, b.Timestamp.UTC().Format(time.RFC3339), b.Contract, b.Function, b.Creator, b.ValidationCode, b.TxID)
	}
	tw.Flush()
}
