package cmd

import (
	"fmt"

	"github.com/go-json-experiment/json"
	"github.com/go-json-experiment/json/jsontext"
	"github.com/spf13/cobra"
)

// newAuditCmd creates the 'audit' subcommand, which audits one URL and prints the summary.
func newAuditCmd() *cobra.Command {
	var pretty bool

	cmd := &cobra.Command{
		Use:   "audit <url>",
		Short: "Audits a single URL and prints the JSON summary",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			resp, err := appInstance.Audit(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("audit %s: %w", args[0], err)
			}
			opts := []json.Options{json.Deterministic(true)}
			if pretty {
				opts = append(opts, jsontext.WithIndent("  "))
			}
			if err := json.MarshalWrite(cmd.OutOrStdout(), resp, opts...); err != nil {
				return fmt.Errorf("write result: %w", err)
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout())
			return err
		},
	}
	cmd.Flags().BoolVar(&pretty, "pretty", false, "indent the JSON output")
	return cmd
}
