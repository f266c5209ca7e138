package cmd

import (
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/spf13/cobra"

	"civicledger/civic-cli/api"
)

type rootOptions struct {
	node     string
	token    string
	output   string
	insecure bool
}

func (o *rootOptions) client() *api.Client {
	c := api.NewClient(o.node, o.token)
	if o.insecure {
		c.HTTP.Transport = &http.Transport{TLSClientConfig: &tls.Config{InsecureSkipVerify: true}}
	}
	return c
}

func (o *rootOptions) json() bool { return o.output == "json" }

// NewRootCmd builds the civicctl command tree.
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "civicctl",
		Short:         "CivicLedger CLI",
		Long:          "A command-line tool for querying CivicLedger nodes and invoking their contracts.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if opts.output != "plain" && opts.output != "json" {
				return fmt.Errorf("--output must be plain or json, got %q", opts.output)
			}
			return nil
		},
	}
	root.PersistentFlags().StringVar(&opts.node, "node", envOr("CIVIC_NODE", api.DefaultNode), "Node gateway base URL")
	root.PersistentFlags().StringVar(&opts.token, "token", os.Getenv("CIVIC_TOKEN"), "Bearer token (defaults to $CIVIC_TOKEN)")
	root.PersistentFlags().StringVarP(&opts.output, "output", "o", "plain", "Output format: plain|json")
	root.PersistentFlags().BoolVar(&opts.insecure, "insecure", false, "Skip TLS certificate verification (for local/dev)")

	root.AddCommand(
		newStatusCmd(opts),
		newHealthCmd(opts),
		newLivenessCmd(opts),
		newReadinessCmd(opts),
		newInvokeCmd(opts, "submit"),
		newInvokeCmd(opts, "evaluate"),
		newBlocksCmd(opts),
		newEventsCmd(opts),
	)
	return root
}

func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func printJSON(w io.Writer, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(b))
	return err
}
