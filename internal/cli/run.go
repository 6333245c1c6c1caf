package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/harun/triad/internal/observability"
	"github.com/harun/triad/internal/tracing"
	"github.com/harun/triad/internal/workflow"
)

var (
	runTask        string
	runMode        string
	runSaveConfig  bool
	runMetricsAddr string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the team on a new task",
	Long: `Run the coder, reviewer and integrator on a new task.
The task is read from --task or prompted for on stdin. Ctrl-C stops the run
after the turn in flight and still writes its record.`,
	Args: cobra.NoArgs,
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringVarP(&runTask, "task", "t", "", "task description (prompted for when omitted)")
	runCmd.Flags().StringVar(&runMode, "mode", "", "team mode: round_robin or selector (default from config)")
	runCmd.Flags().BoolVar(&runSaveConfig, "save-config", false, "write team_config_<N>.json next to the record")
	runCmd.Flags().StringVar(&runMetricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address while running")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	task := strings.TrimSpace(runTask)
	if task == "" {
		var err error
		task, err = promptTask(cmd.InOrStdin(), cmd.ErrOrStderr())
		if err != nil {
			return err
		}
	}

	sess, err := openSession(cmd)
	if err != nil {
		return err
	}
	defer sess.Close()

	ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdown := startTelemetry(ctx, sess, metricsAddr(sess))
	defer shutdown()

	report, err := sess.service.Run(ctx, workflow.RunRequest{
		Task:       task,
		Mode:       runMode,
		SaveConfig: runSaveConfig,
	})
	if err != nil {
		return err
	}
	return outcomeError(report)
}

// promptTask reads one task line from in. An empty answer is an error.
func promptTask(in io.Reader, prompt io.Writer) (string, error) {
	fmt.Fprint(prompt, "Enter the task: ")
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("failed to read task: %w", err)
	}
	task := strings.TrimSpace(line)
	if task == "" {
		return "", ErrEmptyTask
	}
	return task, nil
}

func metricsAddr(sess *session) string {
	if runMetricsAddr != "" {
		return runMetricsAddr
	}
	return sess.cfg.Metrics.Addr
}

// startTelemetry initializes tracing and, when addr is set, a metrics
// endpoint. The returned func tears both down.
func startTelemetry(ctx context.Context, sess *session, addr string) func() {
	logger := sess.log.GetZerolog()

	if err := tracing.InitOpenTelemetry("triad", version); err != nil {
		logger.Warn().Err(err).Msg("Tracing unavailable")
	}

	var server *http.Server
	if addr != "" {
		observability.EnsureRegistered()
		mux := http.NewServeMux()
		mux.Handle("/metrics", observability.MetricsHandler())
		server = &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error().Err(err).Str("addr", addr).Msg("Metrics server failed")
			}
		}()
		logger.Info().Str("addr", addr).Msg("Serving metrics")
	}

	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if server != nil {
			if err := server.Shutdown(shutdownCtx); err != nil {
				logger.Warn().Err(err).Msg("Failed to stop metrics server")
			}
		}
		if err := tracing.ShutdownOpenTelemetry(shutdownCtx); err != nil {
			logger.Warn().Err(err).Msg("Failed to flush traces")
		}
	}
}
