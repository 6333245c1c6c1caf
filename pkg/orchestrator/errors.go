package orchestrator

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrSelectionDeadlock means no role is eligible while the run is unterminated.
	ErrSelectionDeadlock = errors.New("selection deadlock")
	// ErrInvocationFailure means a role's model capability reported an error.
	ErrInvocationFailure = errors.New("invocation failure")
	// ErrMalformedState means a persisted run state could not be restored.
	ErrMalformedState = errors.New("malformed run state")
	// ErrTimeoutExceeded tags runs stopped by the elapsed time condition.
	ErrTimeoutExceeded = errors.New("run timeout exceeded")
	// ErrCancellationRequested tags runs stopped by the caller.
	ErrCancellationRequested = errors.New("run cancelled by caller")

	// ErrRunFinished is returned when resuming a run that completed or failed.
	ErrRunFinished = errors.New("run already finished")

	// ErrAlreadyStarted is returned when Start or Resume is called twice.
	ErrAlreadyStarted = errors.New("controller already started")
)

// DefaultErrorContext is how many trailing messages a RunError carries
const DefaultErrorContext = 5

// RunError is a run-aborting failure with the context it happened in.
type RunError struct {
	Kind   error // ErrSelectionDeadlock or ErrInvocationFailure
	Role   RoleName
	Recent []Message
	Err    error
}

func (e *RunError) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.Error())
	if e.Role != "" {
		fmt.Fprintf(&b, " (role %s)", e.Role)
	}
	if len(e.Recent) > 0 {
		last := e.Recent[len(e.Recent)-1]
		fmt.Fprintf(&b, " after message %d from %s", last.Sequence, last.Source)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap exposes both the taxonomy sentinel and the underlying cause
func (e *RunError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}
