// Package workflow runs one task through the role pipeline and leaves the
// run's artifacts in the storage directory: the markdown record, the JSONL
// turn log, the state snapshot and the run index entry.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/harun/triad/internal/config"
	"github.com/harun/triad/internal/console"
	"github.com/harun/triad/pkg/agent"
	"github.com/harun/triad/pkg/orchestrator"
	"github.com/harun/triad/pkg/runstore"
	"github.com/harun/triad/pkg/snapshot"
	"github.com/harun/triad/pkg/transcript"
)

// Options configures a Service
type Options struct {
	Config *config.Config

	// Invoker and Picker replace the model-backed defaults when set
	Invoker orchestrator.Invoker
	Picker  orchestrator.SpeakerPicker

	Output io.Writer // console stream, defaults to stdout
	Clock  func() time.Time
	Logger zerolog.Logger
}

// Service wires the controller to storage and presentation
type Service struct {
	cfg       *config.Config
	dataDir   string
	store     *snapshot.FileStore
	runs      *runstore.Store
	presenter *console.Presenter
	invoker   orchestrator.Invoker
	picker    orchestrator.SpeakerPicker
	clock     func() time.Time
	logger    zerolog.Logger
}

// New opens the storage directory and builds the model capability
func New(opts Options) (*Service, error) {
	if opts.Config == nil {
		return nil, errors.New("config is required")
	}
	cfg := opts.Config
	logger := opts.Logger.With().Str("component", "workflow").Logger()

	dataDir := cfg.Storage.DataDir
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	store, err := snapshot.NewFileStore(dataDir, snapshot.NewCodec(opts.Logger))
	if err != nil {
		return nil, err
	}

	runs, err := runstore.Open(runstore.Config{
		DBPath: RunDBPath(dataDir),
		Logger: opts.Logger,
	})
	if err != nil {
		return nil, err
	}

	floor, err := HighestRecordedRun(dataDir)
	if err != nil {
		runs.Close()
		return nil, err
	}
	if err := runs.EnsureFloor(context.Background(), floor); err != nil {
		runs.Close()
		return nil, err
	}

	invoker, picker := opts.Invoker, opts.Picker
	if invoker == nil || (picker == nil && len(cfg.Model.Profiles) > 0) {
		client, err := newModelClient(cfg, opts.Logger)
		if err != nil {
			runs.Close()
			return nil, err
		}
		if invoker == nil {
			invoker = agent.NewRoleInvoker(client, opts.Logger)
		}
		if picker == nil {
			picker = agent.NewSelectorPicker(client, opts.Logger)
		}
	}

	out := opts.Output
	if out == nil {
		out = os.Stdout
	}
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}

	return &Service{
		cfg:       cfg,
		dataDir:   dataDir,
		store:     store,
		runs:      runs,
		presenter: console.New(out, console.Config{Mode: cfg.Console.Mode, Color: cfg.Console.Color}),
		invoker:   invoker,
		picker:    picker,
		clock:     clock,
		logger:    logger,
	}, nil
}

func newModelClient(cfg *config.Config, logger zerolog.Logger) (*agent.Client, error) {
	profiles := make([]agent.AuthProfile, len(cfg.Model.Profiles))
	for i, p := range cfg.Model.Profiles {
		profiles[i] = agent.AuthProfile{
			ID:       p.ID,
			Provider: p.Provider,
			APIKey:   p.APIKey,
			BaseURL:  p.BaseURL,
			Priority: p.Priority,
		}
	}
	return agent.NewClient(agent.Config{
		Profiles: profiles,
		Model: agent.ModelConfig{
			Model:       cfg.Model.Name,
			Temperature: cfg.Model.Temperature,
			MaxTokens:   cfg.Model.MaxTokens,
			MaxRetries:  cfg.Model.MaxRetries,
		},
		Logger: logger,
	})
}

// Close releases the run index
func (s *Service) Close() error {
	return s.runs.Close()
}

// Presenter returns the console presenter
func (s *Service) Presenter() *console.Presenter {
	return s.presenter
}

// Runs returns the run index
func (s *Service) Runs() *runstore.Store {
	return s.runs
}

// Roles converts the configured roles, binding each to the invoker
func (s *Service) Roles() []orchestrator.Role {
	roles := make([]orchestrator.Role, len(s.cfg.Roles))
	for i, rc := range s.cfg.Roles {
		output := orchestrator.OutputStyle(rc.Output)
		if output == "" {
			output = orchestrator.OutputCode
		}
		roles[i] = orchestrator.Role{
			Name:           orchestrator.RoleName(rc.Name),
			Caption:        rc.Caption,
			Responsibility: rc.Responsibility,
			Instructions:   rc.Instructions,
			Output:         output,
			Invoker:        s.invoker,
		}
	}
	return roles
}

// Termination builds the stop rule from the pipeline settings, in the
// order marker, message cap, timeout, last role.
func (s *Service) Termination(roles []orchestrator.Role) orchestrator.Termination {
	p := s.cfg.Pipeline
	var t orchestrator.Termination
	if p.TerminateMarker != "" {
		t = append(t, orchestrator.TextContains(p.TerminateMarker))
	}
	t = append(t, orchestrator.MessageCountAtLeast(p.MaxMessages))
	if p.TimeoutSeconds > 0 {
		t = append(t, orchestrator.ElapsedAtLeast(time.Duration(p.TimeoutSeconds)*time.Second))
	}
	if p.StopOnLastRole && len(roles) > 0 {
		t = append(t, orchestrator.SourceIn(roles[len(roles)-1].Name))
	}
	return t
}

// Selector builds the speaker selector for a team mode
func (s *Service) Selector(mode string) (orchestrator.Selector, error) {
	switch mode {
	case config.ModeRoundRobin:
		return orchestrator.NewRoundRobin(), nil
	case config.ModeSelector:
		return orchestrator.NewContentDriven(orchestrator.ContentDrivenConfig{
			Picker:    s.picker,
			CacheSize: s.cfg.Pipeline.SelectorCacheSize,
			Logger:    s.logger,
		})
	default:
		return nil, fmt.Errorf("unknown team mode %q", mode)
	}
}

// TranscriptOptions returns the record rendering options
func (s *Service) TranscriptOptions(roles []orchestrator.Role) transcript.Options {
	return transcript.Options{
		Roles:        roles,
		Marker:       s.cfg.Pipeline.TerminateMarker,
		CodeLanguage: s.cfg.Transcript.CodeLanguage,
		AppendixSize: s.cfg.Transcript.AppendixSize,
		SnippetChars: s.cfg.Transcript.SnippetChars,
	}
}

func (s *Service) newController(mode string) (*orchestrator.Controller, []orchestrator.Role, error) {
	roles := s.Roles()
	selector, err := s.Selector(mode)
	if err != nil {
		return nil, nil, err
	}

	ctrl, err := orchestrator.NewController(orchestrator.ControllerConfig{
		Roles:              roles,
		Termination:        s.Termination(roles),
		Selector:           selector,
		Counter:            s.runs,
		InvocationTimeout:  time.Duration(s.cfg.Pipeline.InvocationTimeoutSeconds) * time.Second,
		ErrorContext:       s.cfg.Pipeline.ErrorContext,
		Checkpoint:         s.checkpoint,
		CheckpointEachTurn: s.cfg.Pipeline.CheckpointEachTurn,
		Clock:              s.clock,
		Logger:             s.logger,
	})
	if err != nil {
		return nil, nil, err
	}
	return ctrl, roles, nil
}

func (s *Service) checkpoint(ctx context.Context, state orchestrator.RunState) error {
	_, err := s.store.Save(ctx, state)
	return err
}
