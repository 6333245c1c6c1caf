package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/harun/triad/internal/observability"
	"github.com/harun/triad/internal/tracing"
	"github.com/harun/triad/pkg/orchestrator"
	"github.com/harun/triad/pkg/snapshot"
	"github.com/harun/triad/pkg/transcript"
)

// RunRequest describes a new run
type RunRequest struct {
	Task       string
	Mode       string // defaults to the configured pipeline mode
	SaveConfig bool   // also write team_config_<N>.json
}

// Report lists the outcome of a run and the artifacts it left behind
type Report struct {
	Result     orchestrator.RunResult
	Resumes    int
	RecordPath string
	StatePath  string
	LogPath    string
	ConfigPath string
}

// Run starts a new run and blocks until it reaches a terminal state.
// Cancelling ctx cancels the run at the next turn boundary; the artifacts
// are still written.
func (s *Service) Run(ctx context.Context, req RunRequest) (*Report, error) {
	mode := req.Mode
	if mode == "" {
		mode = s.cfg.Pipeline.Mode
	}

	ctrl, roles, err := s.newController(mode)
	if err != nil {
		return nil, err
	}

	events, err := ctrl.Start(ctx, req.Task)
	if err != nil {
		return nil, err
	}
	return s.drive(ctx, ctrl, roles, events, mode, req.SaveConfig)
}

// Resume continues the run saved in a state file with the configured roles
// and the team mode recorded in the snapshot.
func (s *Service) Resume(ctx context.Context, statePath string) (*Report, error) {
	state, err := s.store.Load(ctx, statePath)
	if err != nil {
		return nil, err
	}

	mode := state.SelectorName
	ctrl, roles, err := s.newController(mode)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", orchestrator.ErrMalformedState, err)
	}

	events, err := ctrl.Resume(ctx, state)
	if err != nil {
		return nil, err
	}
	return s.drive(ctx, ctrl, roles, events, mode, false)
}

func (s *Service) drive(ctx context.Context, ctrl *orchestrator.Controller, roles []orchestrator.Role,
	events <-chan orchestrator.Event, mode string, saveConfig bool) (*Report, error) {
	initial := ctrl.State()
	ctx = tracing.NewRunContext(ctx, initial.RunID, initial.RunNumber)
	ctx, span := tracing.StartSpan(ctx, "workflow.run")
	defer span.End()
	logger := tracing.LoggerFromContext(ctx, s.logger)

	// artifacts are written even when the caller cancels
	bg := context.WithoutCancel(ctx)

	report := &Report{
		Resumes:   initial.Resumes,
		StatePath: s.store.Path(initial.RunNumber),
		LogPath:   transcript.LogPath(s.dataDir, initial.RunNumber),
	}

	if err := s.runs.Begin(bg, initial.RunNumber, initial.RunID, initial.Task(), mode, initial.StartedAt); err != nil {
		logger.Warn().Err(err).Msg("Failed to index run")
	}
	observability.RecordRunAudit(ctx, "run_started", initial.RunID, "running", map[string]interface{}{
		"run_number": initial.RunNumber,
		"mode":       mode,
		"resumes":    initial.Resumes,
	})

	if saveConfig {
		path, err := s.SaveTeamConfig(initial.RunNumber, mode, roles)
		if err != nil {
			logger.Warn().Err(err).Msg("Failed to save team config")
		} else {
			report.ConfigPath = path
			s.presenter.Notice("Team config saved to %s", path)
		}
	}

	s.presenter.Banner(initial.RunNumber, mode, initial.Resumes)

	turnLog, err := transcript.OpenLog(report.LogPath, initial.RunID, s.logger)
	if err != nil {
		logger.Warn().Err(err).Msg("Turn log unavailable")
	}

	for ev := range events {
		s.presenter.Observe(ev)
		if turnLog != nil {
			if err := turnLog.Append(bg, ev); err != nil {
				logger.Warn().Err(err).Msg("Failed to append to turn log")
			}
		}
	}

	result, ok := ctrl.Result()
	if !ok {
		return nil, errors.New("run ended without a result")
	}
	report.Result = result
	final := ctrl.State()

	// the snapshot on disk must match the state the record is rendered from
	if _, err := s.store.Save(bg, final); err != nil {
		logger.Error().Err(err).Msg("Failed to save final state")
	}

	opts := s.TranscriptOptions(roles)
	report.RecordPath = transcript.RecordPath(s.dataDir, final.RunNumber, final.Resumes)
	content := transcript.Render(transcript.FromState(final, opts), opts)
	if err := transcript.WriteRecord(report.RecordPath, content); err != nil {
		logger.Error().Err(err).Msg("Failed to write task record")
		report.RecordPath = ""
	}

	endedAt := s.clock()
	if final.EndedAt != nil {
		endedAt = *final.EndedAt
	}
	if err := s.runs.Complete(bg, result, final.Resumes, endedAt); err != nil {
		logger.Warn().Err(err).Msg("Failed to update run index")
	}

	observability.RecordRunAudit(ctx, "run_finished", result.RunID, string(result.Status), map[string]interface{}{
		"run_number": result.RunNumber,
		"outcome":    string(result.Outcome),
		"reason":     result.Reason,
		"turns":      result.Turns,
		"error":      result.Error,
	})

	s.presenter.Notice("Team state saved to %s", report.StatePath)
	if report.RecordPath != "" {
		s.presenter.Notice("Task record saved to %s", report.RecordPath)
	}
	return report, nil
}

// Show renders the record of a run from its latest snapshot
func (s *Service) Show(ctx context.Context, runNumber int64) (string, error) {
	state, err := s.store.LoadRun(ctx, runNumber)
	if err != nil {
		return "", err
	}
	roles := s.Roles()
	opts := s.TranscriptOptions(roles)
	return transcript.Render(transcript.FromState(state, opts), opts), nil
}

// TeamConfig is the saved description of a run's team
type TeamConfig struct {
	RunNumber   int64                    `json:"run_number"`
	Mode        string                   `json:"team_mode"`
	Model       string                   `json:"model"`
	Agents      []TeamAgent              `json:"agents"`
	Termination []orchestrator.Condition `json:"termination"`
	SavedAt     time.Time                `json:"saved_at"`
}

// TeamAgent describes one role of a team config
type TeamAgent struct {
	Name           string `json:"name"`
	Caption        string `json:"caption,omitempty"`
	Responsibility string `json:"responsibility"`
	Output         string `json:"output"`
}

// TeamConfigPath returns the team config file of a run
func TeamConfigPath(dir string, runNumber int64) string {
	return filepath.Join(dir, fmt.Sprintf("team_config_%d.json", runNumber))
}

// SaveTeamConfig writes team_config_<N>.json
func (s *Service) SaveTeamConfig(runNumber int64, mode string, roles []orchestrator.Role) (string, error) {
	tc := TeamConfig{
		RunNumber:   runNumber,
		Mode:        mode,
		Model:       s.cfg.Model.Name,
		Termination: s.Termination(roles),
		SavedAt:     s.clock().UTC(),
	}
	for _, r := range roles {
		tc.Agents = append(tc.Agents, TeamAgent{
			Name:           string(r.Name),
			Caption:        r.Caption,
			Responsibility: strings.TrimSpace(r.Responsibility),
			Output:         string(r.Output),
		})
	}

	data, err := json.MarshalIndent(tc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode team config: %w", err)
	}

	path := TeamConfigPath(s.dataDir, runNumber)
	if err := snapshot.WriteFileAtomic(path, append(data, '\n'), 0644); err != nil {
		return "", err
	}
	observability.RecordConfigAudit(context.Background(), "team_config_saved", "workflow", map[string]interface{}{
		"run_number": runNumber,
		"path":       path,
	})
	return path, nil
}
