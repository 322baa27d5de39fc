package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/djamrezki/instant-payment-service/internal/reconcile"
)

var errReconciliationFailed = errors.New("reconciliation found inconsistencies")

func newReconcileCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile",
		Short: "Check ledger and outbox consistency",
		Long: `Run the read-only consistency checks once and exit non-zero on a violation:

  - every COMPLETED payment has exactly one debit and one credit netting to zero
  - no FAILED payment has ledger entries
  - no outbox message has been pending longer than RECON_STUCK_AFTER (warning only)

Scheduling is left to cron or the orchestrator.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := bootstrap()
			if err != nil {
				return err
			}
			defer logger.Sync()

			cfg.RunMigrations = false
			st, err := openStorage(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer st.close()

			reconciler := reconcile.NewReconciler(st.reconcile, cfg.ReconStuckAfter, logger.With(zap.String("component", "Reconciler")))
			return runReconcile(cmd.Context(), reconciler, cmd.OutOrStdout())
		},
	}
}

func runReconcile(ctx context.Context, reconciler *reconcile.Reconciler, out io.Writer) error {
	report, err := reconciler.Run(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "completed payments with invalid entries: %d\n", len(report.InvalidCompleted))
	for _, id := range report.InvalidCompleted {
		fmt.Fprintf(out, "  %s\n", id)
	}
	fmt.Fprintf(out, "failed payments with entries: %d\n", len(report.FailedWithEntries))
	for _, id := range report.FailedWithEntries {
		fmt.Fprintf(out, "  %s\n", id)
	}
	fmt.Fprintf(out, "stuck outbox messages: %d\n", report.StuckOutbox)

	if !report.OK() {
		return errReconciliationFailed
	}
	return nil
}
