package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/verify-cli/internal/single"
)

// checkOutcome is one address's level-1 check and, if approved, its SMTP check.
type checkOutcome struct {
	Check *single.Check `yaml:"check"`
	SMTP  *single.Check `yaml:"smtp,omitempty"`
}

var checkCmd = &cobra.Command{
	Use:   "check <email>...",
	Short: "Check single addresses, with an optional confirmed SMTP pass",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		yes, _ := cmd.Flags().GetBool("yes")
		concurrency, _ := cmd.Flags().GetInt("concurrency")
		output, _ := cmd.Flags().GetString("output")
		if err := validOutput(output); err != nil {
			return err
		}
		if concurrency > 0 {
			cfg.Single.Concurrency = concurrency
		}
		if err := cfg.Validate("check"); err != nil {
			return err
		}

		redis := initCache(ctx)
		if redis != nil {
			defer redis.Close() //nolint:errcheck
		}
		flow := initFlow(initClient(), redis)

		outcomes, err := runChecks(ctx, flow, args, cfg.Single.Concurrency)
		if err != nil {
			return err
		}

		in := bufio.NewReader(cmd.InOrStdin())
		errOut := cmd.ErrOrStderr()
		for _, o := range outcomes {
			if !o.Check.Escalatable {
				continue
			}
			if !yes && !confirmSMTP(in, errOut, o.Check) {
				continue
			}
			smtp, err := escalate(ctx, flow, o.Check.Email)
			if err != nil {
				zap.L().Warn("smtp check failed", zap.String("email", o.Check.Email), zap.Error(err))
				fmt.Fprintf(errOut, "%s: SMTP check failed: %v\n", o.Check.Email, err)
				continue
			}
			o.SMTP = smtp
		}

		out := cmd.OutOrStdout()
		if output == outputYAML {
			return writeYAML(out, outcomes)
		}
		for _, o := range outcomes {
			formatCheck(out, o.Check)
			if o.SMTP != nil {
				fmt.Fprint(out, "  SMTP: ")
				formatCheck(out, o.SMTP)
			}
		}
		return nil
	},
}

// runChecks runs level-1 checks for emails with at most limit in flight.
// Results keep argument order.
func runChecks(ctx context.Context, flow *single.Flow, emails []string, limit int) ([]*checkOutcome, error) {
	outcomes := make([]*checkOutcome, len(emails))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, email := range emails {
		g.Go(func() error {
			c, err := flow.Check(gctx, email)
			if err != nil {
				return err
			}
			outcomes[i] = &checkOutcome{Check: c}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, eris.Wrap(err, "check")
	}
	return outcomes, nil
}

// escalate plans and immediately confirms an SMTP check the operator approved.
func escalate(ctx context.Context, flow *single.Flow, email string) (*single.Check, error) {
	plan, err := flow.Plan(email)
	if err != nil {
		return nil, err
	}
	return flow.Confirm(ctx, plan.Token)
}

func confirmSMTP(in *bufio.Reader, w io.Writer, c *single.Check) bool {
	fmt.Fprintf(w, "%s is %s. Run an SMTP check? Type %q to continue: ", c.Email, strings.ToLower(c.Label), single.ConfirmWord)
	answer, _ := in.ReadString('\n')
	return single.Affirmed(answer)
}

func init() {
	checkCmd.Flags().Bool("yes", false, "run the SMTP check for escalatable addresses without prompting")
	checkCmd.Flags().Int("concurrency", 0, "max concurrent checks (default from config)")
	checkCmd.Flags().StringP("output", "o", outputText, "output format: text or yaml")
	rootCmd.AddCommand(checkCmd)
}
