package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/verify-cli/internal/workflow"
)

var preflightCmd = &cobra.Command{
	Use:   "preflight",
	Short: "Check whether the backend can reach port 25 for SMTP verification",
	RunE: func(cmd *cobra.Command, _ []string) error {
		pf, err := workflow.Preflight(cmd.Context(), initClient(), workflowConfig().PreflightRetry)
		if err != nil {
			return eris.Wrap(err, "preflight")
		}

		out := cmd.OutOrStdout()
		if pf.Port25 {
			fmt.Fprintln(out, "port 25: open (SMTP verification available)")
			return nil
		}
		fmt.Fprintln(out, "port 25: blocked")
		if pf.Error != "" {
			fmt.Fprintf(out, "  %s\n", pf.Error)
		}
		return workflow.ErrPort25Blocked
	},
}

func init() {
	rootCmd.AddCommand(preflightCmd)
}
