package main

import (
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/verify-cli/internal/classify"
	"github.com/sells-group/verify-cli/internal/model"
	"github.com/sells-group/verify-cli/internal/store"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Inspect verification session history",
}

// -- sessions list --

var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recorded sessions",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := requireStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		source, _ := cmd.Flags().GetString("source")
		limit, _ := cmd.Flags().GetInt("limit")

		sessions, err := st.ListSessions(ctx, store.SessionFilter{Source: source, Limit: limit})
		if err != nil {
			return eris.Wrap(err, "sessions list")
		}

		if len(sessions) == 0 {
			fmt.Fprintln(os.Stderr, "No sessions found.")
			return nil
		}

		formatSessions(cmd.OutOrStdout(), sessions)
		return nil
	},
}

// -- sessions show --

// sessionReport is the yaml shape of sessions show.
type sessionReport struct {
	Session *model.Session      `yaml:"session"`
	Stats   model.Stats         `yaml:"stats"`
	Results []model.EmailResult `yaml:"results,omitempty"`
}

var sessionsShowCmd = &cobra.Command{
	Use:   "show <session-id>",
	Short: "Show a session's jobs and latest results",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		output, _ := cmd.Flags().GetString("output")
		if err := validOutput(output); err != nil {
			return err
		}
		exportPath, _ := cmd.Flags().GetString("export")

		st, err := requireStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		sess, err := st.GetSession(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "sessions show")
		}
		rows, err := st.LatestResults(ctx, sess.ID)
		if err != nil {
			return eris.Wrap(err, "sessions show")
		}
		stats := classify.Aggregate(rows)

		if exportPath != "" {
			if err := exportResults(exportPath, rows); err != nil {
				return err
			}
		}

		out := cmd.OutOrStdout()
		if output == outputYAML {
			return writeYAML(out, sessionReport{Session: sess, Stats: stats, Results: rows})
		}
		formatSession(out, sess, stats, len(rows))
		return nil
	},
}

func init() {
	sessionsListCmd.Flags().String("source", "", "filter by intake source")
	sessionsListCmd.Flags().Int("limit", 50, "max number of sessions to display")

	sessionsShowCmd.Flags().StringP("output", "o", outputText, "output format: text or yaml")
	sessionsShowCmd.Flags().String("export", "", "write the latest results to a .csv or .xlsx file")

	sessionsCmd.AddCommand(sessionsListCmd)
	sessionsCmd.AddCommand(sessionsShowCmd)
	rootCmd.AddCommand(sessionsCmd)
}
