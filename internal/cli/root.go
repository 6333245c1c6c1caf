package cli

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/harun/triad/internal/config"
	"github.com/harun/triad/internal/logger"
	"github.com/harun/triad/internal/observability"
	"github.com/harun/triad/internal/workflow"
	"github.com/harun/triad/pkg/orchestrator"
)

const version = "0.1.0"

var (
	cfgFile  string
	logLevel string
)

// ErrEmptyTask is returned when no task was given on the flag or the prompt
var ErrEmptyTask = errors.New("task must not be empty")

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "triad",
	Short: "Triad - coder, reviewer and integrator working one task",
	Long: `Triad runs a fixed team of three model-backed roles on a programming task.
A coder drafts the solution, a reviewer critiques it and an integrator
produces the final code. Every run leaves a markdown record, a turn log
and a resumable state snapshot in the storage directory.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

// ExitCode maps a command error to a process exit status
func ExitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, ErrEmptyTask):
		return 2
	case errors.Is(err, orchestrator.ErrCancellationRequested):
		return 130
	default:
		return 1
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.triad/triad.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")

	rootCmd.SetVersionTemplate(`{{with .Name}}{{printf "%s " .}}{{end}}{{printf "version %s" .Version}}
`)
}

// GetRootCmd returns the root command for testing
func GetRootCmd() *cobra.Command {
	return rootCmd
}

// GetVersion returns the current version
func GetVersion() string {
	return version
}

// session bundles what a command needs for the lifetime of one invocation
type session struct {
	cfg     *config.Config
	log     *logger.Logger
	service *workflow.Service
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.NewLoader(cfgFile).Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if cmd.Flags().Changed("log-level") {
		cfg.Logging.Level = logLevel
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) (*logger.Logger, error) {
	secrets := make([]string, 0, len(cfg.Model.Profiles))
	for _, p := range cfg.Model.Profiles {
		secrets = append(secrets, p.APIKey)
	}
	return logger.New(logger.Config{
		Level:     cfg.Logging.Level,
		File:      cfg.Logging.File,
		Console:   true,
		Pretty:    cfg.Logging.Pretty,
		Redaction: cfg.Logging.Redaction,
		Secrets:   secrets,
	})
}

// openSession loads and validates the configuration and wires the workflow
// service. The caller must close the session.
func openSession(cmd *cobra.Command) (*session, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	log, err := newLogger(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	for _, problem := range config.NewValidator().ValidateConfig(cfg) {
		log.Warn().Err(problem).Msg("Questionable configuration value")
	}

	if err := observability.InitAuditLogger(filepath.Join(cfg.Storage.DataDir, "audit.log")); err != nil {
		log.Warn().Err(err).Msg("Audit trail unavailable")
	}

	service, err := workflow.New(workflow.Options{
		Config: cfg,
		Output: cmd.OutOrStdout(),
		Logger: log.GetZerolog(),
	})
	if err != nil {
		observability.CloseAuditLogger()
		log.Close()
		return nil, err
	}

	return &session{cfg: cfg, log: log, service: service}, nil
}

func (s *session) Close() {
	if err := s.service.Close(); err != nil {
		s.log.Warn().Err(err).Msg("Failed to close run index")
	}
	observability.CloseAuditLogger()
	s.log.Close()
}

// outcomeError turns a failed or cancelled run into the command's error.
// A run stopped by its time budget still produced a record and is not an error.
func outcomeError(report *workflow.Report) error {
	if report == nil || report.Result.Outcome == orchestrator.OutcomeTimedOut {
		return nil
	}
	return report.Result.Err()
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
