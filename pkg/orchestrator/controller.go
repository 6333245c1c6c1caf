package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/harun/triad/internal/observability"
	"github.com/harun/triad/internal/tracing"
)

// CheckpointFunc receives the run state at quiescent points.
type CheckpointFunc func(ctx context.Context, state RunState) error

// ControllerConfig configures a Controller
type ControllerConfig struct {
	Roles       []Role
	Termination Termination
	Selector    Selector
	Counter     RunCounter // defaults to an in-memory counter

	InvocationTimeout time.Duration // zero means no per-invocation bound
	ErrorContext      int           // messages carried by a RunError

	Checkpoint         CheckpointFunc
	CheckpointEachTurn bool

	Clock  func() time.Time
	NewID  func() (string, error)
	Logger zerolog.Logger
}

// Controller drives one run through Idle, Running and a terminal state.
// Exactly one role invocation is outstanding at a time.
type Controller struct {
	cfg    ControllerConfig
	roster *Roster
	logger zerolog.Logger

	mu        sync.Mutex
	status    Status
	runID     string
	runNumber int64
	startedAt time.Time
	resumes   int
	history   *History
	verdict   Verdict
	failure   error
	endedAt   *time.Time
	elapsed   time.Duration
	result    *RunResult

	selectorState json.RawMessage

	cancelOnce sync.Once
	cancelCh   chan struct{}
	done       chan struct{}
}

// ErrorKinder is implemented by invocation errors that carry a classification.
type ErrorKinder interface {
	ErrorKind() string
}

// NewController validates the configuration and returns an idle controller
func NewController(cfg ControllerConfig) (*Controller, error) {
	roster, err := NewRoster(cfg.Roles...)
	if err != nil {
		return nil, err
	}
	if err := cfg.Termination.Validate(); err != nil {
		return nil, fmt.Errorf("invalid termination: %w", err)
	}
	for _, c := range cfg.Termination {
		if c.Kind != KindSourceIn {
			continue
		}
		for _, src := range c.Sources {
			if !roster.Exists(src) {
				return nil, fmt.Errorf("termination source %s is not a role", src)
			}
		}
	}
	if cfg.Selector == nil {
		return nil, errors.New("selector is required")
	}
	if cfg.Counter == nil {
		cfg.Counter = NewMemoryCounter(0)
	}
	if cfg.ErrorContext <= 0 {
		cfg.ErrorContext = DefaultErrorContext
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.NewID == nil {
		cfg.NewID = func() (string, error) { return gonanoid.New() }
	}
	if cfg.InvocationTimeout < 0 {
		return nil, errors.New("invocation timeout cannot be negative")
	}

	return &Controller{
		cfg:      cfg,
		roster:   roster,
		logger:   cfg.Logger.With().Str("component", "orchestrator").Logger(),
		status:   StatusIdle,
		cancelCh: make(chan struct{}),
		done:     make(chan struct{}),
	}, nil
}

func (c *Controller) now() time.Time {
	return c.cfg.Clock().UTC()
}

// Roster returns the roles of the run
func (c *Controller) Roster() *Roster {
	return c.roster
}

// Start moves the controller from Idle to Running with a fresh history
// seeded by task. The returned stream must be drained until closed.
func (c *Controller) Start(ctx context.Context, task string) (<-chan Event, error) {
	if strings.TrimSpace(task) == "" {
		return nil, errors.New("task is required")
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.status != StatusIdle {
		return nil, ErrAlreadyStarted
	}

	number, err := c.cfg.Counter.Next(ctx)
	if err != nil {
		return nil, fmt.Errorf("allocate run number: %w", err)
	}
	runID, err := c.cfg.NewID()
	if err != nil {
		return nil, fmt.Errorf("generate run id: %w", err)
	}

	now := c.now()
	c.runID = runID
	c.runNumber = number
	c.startedAt = now
	c.history = newHistory(task, now)
	c.status = StatusRunning
	c.captureSelectorLocked()

	seed := c.history.messages[0]
	events := make(chan Event)
	go c.run(ctx, events, &seed)
	return events, nil
}

// Resume continues a persisted run. The run keeps its identity and sequence
// numbering; the stream only carries messages produced after the resume.
// Completed and failed runs are rejected with ErrRunFinished. Nothing is
// mutated when state is rejected.
func (c *Controller) Resume(ctx context.Context, state RunState) (<-chan Event, error) {
	if err := state.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedState, err)
	}
	if err := state.Resumable(); err != nil {
		return nil, err
	}
	if len(state.Roles) > 0 && !slices.Equal(state.Roles, c.roster.Names()) {
		return nil, fmt.Errorf("%w: state roles %v do not match configured roles %v",
			ErrMalformedState, state.Roles, c.roster.Names())
	}
	if state.SelectorName != c.cfg.Selector.Name() {
		return nil, fmt.Errorf("%w: state selector %q does not match %q",
			ErrMalformedState, state.SelectorName, c.cfg.Selector.Name())
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.status != StatusIdle {
		return nil, ErrAlreadyStarted
	}

	now := c.now()
	history, err := RestoreHistory(state.Messages, state.Elapsed, now)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedState, err)
	}
	if err := c.cfg.Selector.Restore(state.SelectorState); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedState, err)
	}

	c.runID = state.RunID
	c.runNumber = state.RunNumber
	c.startedAt = state.StartedAt
	c.resumes = state.Resumes + 1
	c.history = history
	c.status = StatusRunning
	c.captureSelectorLocked()

	events := make(chan Event)
	go c.run(ctx, events, nil)
	return events, nil
}

// Cancel requests cancellation. It is honored at the next turn boundary;
// an invocation in flight is awaited and its message recorded.
func (c *Controller) Cancel() {
	c.cancelOnce.Do(func() { close(c.cancelCh) })
}

// Done is closed once the run reached a terminal state
func (c *Controller) Done() <-chan struct{} {
	return c.done
}

// Status returns the current state machine position
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Result returns the terminal result, or false while the run is not finished
func (c *Controller) Result() (RunResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.result == nil {
		return RunResult{}, false
	}
	return *c.result, true
}

// State captures the run state. Safe to call from any goroutine.
func (c *Controller) State() RunState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stateLocked()
}

func (c *Controller) stateLocked() RunState {
	if c.history == nil {
		return RunState{Status: c.status, SelectorName: c.cfg.Selector.Name()}
	}

	elapsed := c.elapsed
	if !c.status.Terminal() {
		elapsed = c.history.Elapsed(c.now())
	}

	state := RunState{
		RunID:                c.runID,
		RunNumber:            c.runNumber,
		Roles:                c.roster.Names(),
		Status:               c.status,
		Resumes:              c.resumes,
		Messages:             c.history.Messages(),
		StartedAt:            c.startedAt,
		Elapsed:              elapsed,
		TerminationSatisfied: c.verdict.Satisfied,
		TerminationReason:    c.verdict.Reason,
		SelectorName:         c.cfg.Selector.Name(),
		SelectorState:        c.selectorState,
	}
	if c.verdict.Satisfied {
		state.TerminatingCondition = c.verdict.Condition.Kind
	}
	if c.result != nil {
		state.Outcome = c.result.Outcome
	}
	if c.failure != nil {
		state.Error = c.failure.Error()
	}
	if c.endedAt != nil {
		ended := *c.endedAt
		state.EndedAt = &ended
	}
	return state
}

func (c *Controller) run(ctx context.Context, events chan<- Event, seed *Message) {
	defer close(c.done)
	defer close(events)

	ctx = tracing.NewRunContext(ctx, c.runID, c.runNumber)
	ctx, span := tracing.StartSpan(ctx, "orchestrator.run",
		attribute.String("triad.selector", c.cfg.Selector.Name()),
		attribute.Int("triad.resumes", c.resumes),
	)
	defer span.End()

	logger := tracing.LoggerFromContext(ctx, c.logger)
	logger.Info().
		Str("selector", c.cfg.Selector.Name()).
		Int("messages", c.history.Len()).
		Bool("resumed", seed == nil).
		Msg("Run started")
	observability.RecordRunStarted()

	c.checkpoint(ctx, logger)

	if seed != nil {
		events <- Event{Kind: EventMessage, Message: seed}
	}
	c.evaluate()

	for {
		if c.terminated() {
			c.finish(StatusCompleted, nil)
			break
		}
		if c.cancelRequested(ctx) {
			c.finish(StatusCancelled, nil)
			break
		}

		msg, err := c.turn(ctx, logger)
		if err != nil {
			c.finish(StatusFailed, err)
			break
		}
		events <- Event{Kind: EventMessage, Message: &msg}

		c.evaluate()
		if c.cfg.CheckpointEachTurn && !c.terminated() {
			c.checkpoint(ctx, logger)
		}
	}

	c.mu.Lock()
	result := *c.result
	c.mu.Unlock()

	if result.Status == StatusFailed {
		span.SetStatus(codes.Error, result.Error)
	}
	span.SetAttributes(
		attribute.String("triad.status", string(result.Status)),
		attribute.String("triad.outcome", string(result.Outcome)),
		attribute.Int("triad.turns", result.Turns),
	)

	observability.RecordRunFinished(string(result.Status), string(result.Outcome), result.Elapsed)
	logger.Info().
		Str("status", string(result.Status)).
		Str("outcome", string(result.Outcome)).
		Str("reason", result.Reason).
		Int("turns", result.Turns).
		Dur("elapsed", result.Elapsed).
		Msg("Run finished")

	c.checkpoint(ctx, logger)
	events <- Event{Kind: EventResult, Result: &result}
}

// turn selects a role, invokes it and appends its message
func (c *Controller) turn(ctx context.Context, logger zerolog.Logger) (Message, error) {
	selCtx, selSpan := tracing.StartSpan(ctx, "orchestrator.select")
	name, ok := c.cfg.Selector.Select(selCtx, c.history, c.roster)
	selSpan.SetAttributes(attribute.String("triad.selected", string(name)))
	selSpan.End()

	c.mu.Lock()
	c.captureSelectorLocked()
	c.mu.Unlock()

	if !ok {
		return Message{}, c.runError(ErrSelectionDeadlock, "", errors.New("no eligible role while termination is unsatisfied"))
	}
	role, err := c.roster.Get(name)
	if err != nil {
		return Message{}, c.runError(ErrSelectionDeadlock, name, err)
	}

	seq := c.history.Len()
	turnCtx := tracing.PropagateToTurn(ctx, string(role.Name), seq)
	turnCtx, span := tracing.StartSpan(turnCtx, "orchestrator.turn")
	defer span.End()

	turnLogger := tracing.LoggerFromContext(turnCtx, c.logger)
	turnLogger.Debug().Msg("Invoking role")

	// The in-flight call always runs to completion; cancellation is only
	// observed between turns.
	invCtx := context.WithoutCancel(turnCtx)
	if c.cfg.InvocationTimeout > 0 {
		var cancel context.CancelFunc
		invCtx, cancel = context.WithTimeout(invCtx, c.cfg.InvocationTimeout)
		defer cancel()
	}

	started := time.Now()
	content, err := role.Invoker.Invoke(invCtx, role, c.history.Messages())
	duration := time.Since(started)
	observability.RecordTurn(string(role.Name), duration, err == nil)

	if err != nil {
		kind := "unknown"
		var ek ErrorKinder
		if errors.As(err, &ek) {
			kind = ek.ErrorKind()
		}
		observability.RecordInvocationError(string(role.Name), kind)
		tracing.FailSpan(span, err)
		turnLogger.Error().Err(err).Str("kind", kind).Dur("duration", duration).Msg("Role invocation failed")
		return Message{}, c.runError(ErrInvocationFailure, role.Name, err)
	}

	c.mu.Lock()
	msg := c.history.append(string(role.Name), content, c.now())
	c.mu.Unlock()

	turnLogger.Info().Int("chars", len(content)).Dur("duration", duration).Msg("Role turn recorded")
	return msg, nil
}

// captureSelectorLocked copies the selector counters so State never touches
// the selector from another goroutine.
func (c *Controller) captureSelectorLocked() {
	state, err := c.cfg.Selector.State()
	if err != nil {
		c.logger.Warn().Err(err).Msg("Failed to capture selector state")
		return
	}
	c.selectorState = state
}

func (c *Controller) runError(kind error, role RoleName, cause error) *RunError {
	return &RunError{
		Kind:   kind,
		Role:   role,
		Recent: c.history.Tail(c.cfg.ErrorContext),
		Err:    cause,
	}
}

func (c *Controller) evaluate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.verdict.Satisfied {
		return
	}
	c.verdict = c.cfg.Termination.Evaluate(c.history, c.now())
}

func (c *Controller) terminated() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.verdict.Satisfied
}

func (c *Controller) cancelRequested(ctx context.Context) bool {
	select {
	case <-c.cancelCh:
		return true
	case <-ctx.Done():
		return true
	default:
		return false
	}
}

func (c *Controller) finish(status Status, failure error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	c.elapsed = c.history.Elapsed(now)
	c.endedAt = &now
	c.status = status
	c.failure = failure

	result := RunResult{
		RunID:     c.runID,
		RunNumber: c.runNumber,
		Status:    status,
		Turns:     c.history.TurnCount(),
		Elapsed:   c.elapsed,
		failure:   failure,
	}
	switch status {
	case StatusCompleted:
		result.Outcome = OutcomeFinished
		if c.verdict.Condition.Kind == KindElapsedAtLeast {
			result.Outcome = OutcomeTimedOut
		}
		result.Condition = c.verdict.Condition.Kind
		result.Reason = c.verdict.Reason
	case StatusCancelled:
		result.Outcome = OutcomeCancelled
		result.Reason = ErrCancellationRequested.Error()
	case StatusFailed:
		result.Outcome = OutcomeFailed
		result.Error = failure.Error()
	}
	c.result = &result
}

func (c *Controller) checkpoint(ctx context.Context, logger zerolog.Logger) {
	if c.cfg.Checkpoint == nil {
		return
	}
	state := c.State()
	if err := c.cfg.Checkpoint(context.WithoutCancel(ctx), state); err != nil {
		logger.Error().Err(err).Str("status", string(state.Status)).Msg("Checkpoint failed")
	}
}
