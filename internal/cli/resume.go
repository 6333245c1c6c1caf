package cli

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var resumeCmd = &cobra.Command{
	Use:   "resume <state-file>",
	Short: "Continue a run from its saved state",
	Long: `Continue a run from a team_state_<N>.json snapshot. The run keeps its
number and id, and the new record is written as task_record_<N>_resume<K>.md.`,
	Args: cobra.ExactArgs(1),
	RunE: runResume,
}

func init() {
	resumeCmd.Flags().StringVar(&runMetricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address while running")
	rootCmd.AddCommand(resumeCmd)
}

func runResume(cmd *cobra.Command, args []string) error {
	sess, err := openSession(cmd)
	if err != nil {
		return err
	}
	defer sess.Close()

	ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdown := startTelemetry(ctx, sess, metricsAddr(sess))
	defer shutdown()

	report, err := sess.service.Resume(ctx, args[0])
	if err != nil {
		return err
	}
	return outcomeError(report)
}
