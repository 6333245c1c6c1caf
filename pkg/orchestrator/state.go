package orchestrator

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Status is the Controller state machine position.
type Status string

const (
	StatusIdle      Status = "idle"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
	StatusFailed    Status = "failed"
)

// Terminal reports whether no transition leaves s
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled || s == StatusFailed
}

// Resumable reports whether a persisted run may be continued. Only running
// checkpoints and cancelled runs qualify; a satisfied termination is final.
func (s RunState) Resumable() error {
	if s.TerminationSatisfied {
		return fmt.Errorf("%w: termination %s already satisfied", ErrRunFinished, s.TerminatingCondition)
	}
	if s.Status == StatusCompleted || s.Status == StatusFailed {
		return fmt.Errorf("%w: status %s", ErrRunFinished, s.Status)
	}
	return nil
}

func (s Status) valid() bool {
	switch s {
	case StatusIdle, StatusRunning, StatusCompleted, StatusCancelled, StatusFailed:
		return true
	}
	return false
}

// Outcome distinguishes how a terminal run ended.
type Outcome string

const (
	OutcomeFinished  Outcome = "finished"
	OutcomeTimedOut  Outcome = "timed_out"
	OutcomeCancelled Outcome = "cancelled"
	OutcomeFailed    Outcome = "failed"
)

// RunState is the persisted form of a run. It is produced by the
// Controller at quiescent points and consumed by Resume.
type RunState struct {
	RunID     string     `json:"run_id"`
	RunNumber int64      `json:"run_number"`
	Roles     []RoleName `json:"roles"`
	Status    Status     `json:"status"`
	Outcome   Outcome    `json:"outcome,omitempty"`
	Resumes   int        `json:"resumes"`

	Messages  []Message     `json:"messages"`
	StartedAt time.Time     `json:"started_at"`
	Elapsed   time.Duration `json:"elapsed"`
	EndedAt   *time.Time    `json:"ended_at,omitempty"`

	TerminationSatisfied bool          `json:"termination_satisfied"`
	TerminatingCondition ConditionKind `json:"terminating_condition,omitempty"`
	TerminationReason    string        `json:"termination_reason,omitempty"`

	SelectorName  string          `json:"selector"`
	SelectorState json.RawMessage `json:"selector_state,omitempty"`

	Error string `json:"error,omitempty"`
}

// Task returns the task text of the run
func (s RunState) Task() string {
	if len(s.Messages) == 0 {
		return ""
	}
	return s.Messages[0].Content
}

// Validate checks the structural invariants of a run state
func (s RunState) Validate() error {
	if s.RunID == "" {
		return errors.New("run_id is required")
	}
	if s.RunNumber <= 0 {
		return fmt.Errorf("run_number must be positive, got %d", s.RunNumber)
	}
	if !s.Status.valid() || s.Status == StatusIdle {
		return fmt.Errorf("invalid status %q", s.Status)
	}
	if len(s.Messages) == 0 {
		return errors.New("messages must contain the task message")
	}
	if s.Messages[0].Source != SourceUser {
		return fmt.Errorf("first message must come from %s, got %s", SourceUser, s.Messages[0].Source)
	}
	for i, msg := range s.Messages {
		if msg.Sequence != i {
			return fmt.Errorf("message %d has sequence index %d", i, msg.Sequence)
		}
	}
	if s.Elapsed < 0 {
		return errors.New("elapsed cannot be negative")
	}
	if s.TerminationSatisfied && s.TerminatingCondition == "" {
		return errors.New("satisfied termination requires a terminating condition")
	}
	if s.Status.Terminal() && s.EndedAt == nil {
		return fmt.Errorf("terminal status %s requires ended_at", s.Status)
	}
	if s.SelectorName == "" {
		return errors.New("selector is required")
	}
	return nil
}

// RunResult is carried by the final event of a stream.
type RunResult struct {
	RunID     string        `json:"run_id"`
	RunNumber int64         `json:"run_number"`
	Status    Status        `json:"status"`
	Outcome   Outcome       `json:"outcome"`
	Condition ConditionKind `json:"condition,omitempty"`
	Reason    string        `json:"reason,omitempty"`
	Turns     int           `json:"turns"`
	Elapsed   time.Duration `json:"elapsed"`
	Error     string        `json:"error,omitempty"`

	failure error
}

// Err maps the outcome to the error taxonomy. Finished runs return nil.
func (r RunResult) Err() error {
	switch r.Outcome {
	case OutcomeTimedOut:
		return ErrTimeoutExceeded
	case OutcomeCancelled:
		return ErrCancellationRequested
	case OutcomeFailed:
		if r.failure != nil {
			return r.failure
		}
		return errors.New(r.Error)
	}
	return nil
}

// Summary renders a one-line description of the result
func (r RunResult) Summary() string {
	switch r.Status {
	case StatusCompleted:
		return fmt.Sprintf("run %d %s after %d turns: %s", r.RunNumber, r.Outcome, r.Turns, r.Reason)
	case StatusCancelled:
		return fmt.Sprintf("run %d cancelled by caller after %d turns", r.RunNumber, r.Turns)
	case StatusFailed:
		return fmt.Sprintf("run %d failed after %d turns: %s", r.RunNumber, r.Turns, r.Error)
	}
	return fmt.Sprintf("run %d %s", r.RunNumber, r.Status)
}
