package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/verify-cli/internal/export"
	"github.com/sells-group/verify-cli/internal/extract"
	"github.com/sells-group/verify-cli/internal/model"
	"github.com/sells-group/verify-cli/internal/single"
	"github.com/sells-group/verify-cli/internal/view"
	"github.com/sells-group/verify-cli/internal/workflow"
)

var bulkCmd = &cobra.Command{
	Use:   "bulk [file]",
	Short: "Verify a list of addresses in two phases",
	Long: `Extracts addresses from a text, CSV or XLSX file (or stdin when no file or "-"
is given), runs a level-1 job and prints the classified results. With --phase2
the chosen tiers are resubmitted for an SMTP check after confirmation.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		phase2, _ := cmd.Flags().GetString("phase2")
		yes, _ := cmd.Flags().GetBool("yes")
		filterFlag, _ := cmd.Flags().GetString("filter")
		page, _ := cmd.Flags().GetInt("page")
		exportPath, _ := cmd.Flags().GetString("export")

		if err := cfg.Validate("bulk"); err != nil {
			return err
		}
		filter, err := view.ParseFilter(filterFlag)
		if err != nil {
			return err
		}

		source := "stdin"
		var addrs []string
		if len(args) == 1 && args[0] != "-" {
			source = args[0]
			addrs, err = extract.ReadFile(args[0])
		} else {
			addrs, err = extract.ReadText(cmd.InOrStdin())
		}
		if err != nil {
			return eris.Wrap(err, "bulk: read input")
		}
		fromStdin := source == "stdin"

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		if st != nil {
			defer st.Close() //nolint:errcheck
		}

		orch := initOrchestrator(initClient(), st)
		defer orch.Close()

		out := cmd.OutOrStdout()
		errOut := cmd.ErrOrStderr()

		fmt.Fprintf(errOut, "Submitting %d addresses for level-1 verification\n", len(addrs))
		if err := orch.StartAddresses(ctx, source, addrs); err != nil {
			return eris.Wrap(err, "bulk: phase 1")
		}
		res, err := awaitResults(ctx, orch, errOut)
		if err != nil {
			return eris.Wrap(err, "bulk: phase 1")
		}
		v := showResults(out, res, filter, page)

		if phase2 != "" {
			sel, err := parseSelection(phase2)
			if err != nil {
				return err
			}
			if sel.Empty() {
				return workflow.ErrNothingSelected
			}
			n := len(workflow.SelectPhase2(res.Rows, sel))
			if n == 0 {
				return workflow.ErrNothingSelected
			}
			if !yes {
				if fromStdin {
					return eris.New("bulk: input came from stdin; pass --yes to approve phase 2")
				}
				fmt.Fprintf(errOut, "Run SMTP verification on %d addresses? Type %q to continue: ", n, single.ConfirmWord)
				if !single.Affirmed(readLine(cmd.InOrStdin())) {
					fmt.Fprintln(errOut, "Phase 2 skipped.")
					return exportResults(exportPath, v.Matching())
				}
			}

			if err := orch.Escalate(ctx, sel); err != nil {
				return eris.Wrap(err, "bulk: phase 2")
			}
			res, err = awaitResults(ctx, orch, errOut)
			if err != nil {
				return eris.Wrap(err, "bulk: phase 2")
			}
			fmt.Fprintln(out)
			v = showResults(out, res, filter, page)
		}

		if id := orch.SessionID(); id != "" {
			zap.L().Info("session recorded", zap.String("session_id", id))
		}
		return exportResults(exportPath, v.Matching())
	},
}

// awaitResults follows the orchestrator until the job settles, printing each
// progress snapshot to w.
func awaitResults(ctx context.Context, orch *workflow.Orchestrator, w io.Writer) (workflow.Results, error) {
	for {
		ch := orch.Changed()
		st := orch.State()

		if p, ok := st.(workflow.Polling); ok && p.Progress != nil {
			formatProgress(w, p.Progress)
		}
		if !workflow.Busy(st) {
			switch s := st.(type) {
			case workflow.Results:
				return s, nil
			case workflow.Failed:
				return workflow.Results{}, s.Err
			default:
				return workflow.Results{}, eris.Errorf("unexpected state %s", st.Name())
			}
		}

		select {
		case <-ctx.Done():
			return workflow.Results{}, ctx.Err()
		case <-ch:
		}
	}
}

// showResults prints the summary and one page of res, returning the view so
// an export can follow the same filter.
func showResults(w io.Writer, res workflow.Results, filter view.Filter, page int) *view.View {
	formatSummary(w, res.Job.Level, res.Stats, len(res.Rows), res.Total)
	fmt.Fprintln(w)

	v := view.New(res.Rows, cfg.Results.PageSize)
	v.SetFilter(filter)
	v.SetPage(page)
	formatResults(w, v)
	return v
}

func exportResults(path string, rows []model.EmailResult) error {
	if path == "" {
		return nil
	}
	err := export.ToFile(path, rows, func(p string) (io.WriteCloser, error) {
		return os.Create(p)
	})
	if err != nil {
		return eris.Wrap(err, "bulk: export")
	}
	zap.L().Info("results exported", zap.String("path", path), zap.Int("rows", len(rows)))
	return nil
}

func readLine(r io.Reader) string {
	line, _ := bufio.NewReader(r).ReadString('\n')
	return line
}

func init() {
	bulkCmd.Flags().String("phase2", "", "tiers to resubmit for SMTP verification (comma-separated: good,risky,bad)")
	bulkCmd.Flags().Bool("yes", false, "approve phase 2 without prompting")
	bulkCmd.Flags().String("filter", "all", "rows to display: all, good, risky or bad")
	bulkCmd.Flags().Int("page", 1, "results page to display")
	bulkCmd.Flags().String("export", "", "write the final results matching --filter to a .csv or .xlsx file")
	rootCmd.AddCommand(bulkCmd)
}
