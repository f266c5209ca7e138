package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

// newInvokeCmd builds "submit" or "evaluate".
func newInvokeCmd(opts *rootOptions, mode string) *cobra.Command {
	short := "Submit a transaction to a contract"
	if mode == "evaluate" {
		short = "Evaluate a read-only contract function"
	}
	return &cobra.Command{
		Use:   mode + " <contract> <function> [args...]",
		Short: short,
		Example: fmt.Sprintf(`  civicctl %s document read D1
  civicctl %s verification calculateHash "hello" sha256`, mode, mode),
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := opts.client()
			out := cmd.OutOrStdout()
			contract, fn, rest := args[0], args[1], args[2:]
			if mode == "evaluate" {
				result, err := client.Evaluate(cmd.Context(), contract, fn, rest)
				if err != nil {
					return err
				}
				return printRaw(out, result)
			}
			res, err := client.Submit(cmd.Context(), contract, fn, rest)
			if err != nil {
				return err
			}
			if opts.json() {
				return printJSON(out, res)
			}
			fmt.Fprintf(out, "Transaction %s committed in block %d (%s)\n", res.TxID, res.BlockNumber, res.ValidationCode)
			if len(res.Result) > 0 {
				return printRaw(out, res.Result)
			}
			return nil
		},
	}
}

func printRaw(w io.Writer, raw json.RawMessage) error {
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		buf.Reset()
		buf.Write(raw)
	}
	buf.WriteByte('\n')
	_, err := w.Write(buf.Bytes())
	return err
}
