package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// RoleName identifies a role within a run.
type RoleName string

// Reserved message sources that are never role names.
const (
	SourceUser   = "user"
	SourceSystem = "system"
)

// OutputStyle hints how a role's messages are rendered in the record
type OutputStyle string

const (
	OutputCode   OutputStyle = "code"   // full source listings
	OutputAdvice OutputStyle = "advice" // review notes, usually a list
)

// Invoker is the model capability bound to a role. It produces the content of
// the role's next message given the role instructions and the full history.
type Invoker interface {
	Invoke(ctx context.Context, role Role, history []Message) (string, error)
}

// InvokerFunc adapts a function to the Invoker interface
type InvokerFunc func(ctx context.Context, role Role, history []Message) (string, error)

// Invoke calls f
func (f InvokerFunc) Invoke(ctx context.Context, role Role, history []Message) (string, error) {
	return f(ctx, role, history)
}

// Role is an immutable pipeline participant.
type Role struct {
	Name           RoleName    `json:"name" yaml:"name"`
	Caption        string      `json:"caption,omitempty" yaml:"caption,omitempty"`
	Responsibility string      `json:"responsibility" yaml:"responsibility"`
	Instructions   string      `json:"instructions" yaml:"instructions"`
	Output         OutputStyle `json:"output,omitempty" yaml:"output,omitempty"`
	Invoker        Invoker     `json:"-" yaml:"-"`
}

// Validate validates the role definition
func (r Role) Validate() error {
	name := strings.TrimSpace(string(r.Name))
	if name == "" {
		return errors.New("role name is required")
	}
	if name == SourceUser || name == SourceSystem {
		return fmt.Errorf("role name %q is reserved", name)
	}
	if r.Invoker == nil {
		return fmt.Errorf("role %s: invoker is required", r.Name)
	}
	switch r.Output {
	case "", OutputCode, OutputAdvice:
	default:
		return fmt.Errorf("role %s: invalid output style %q", r.Name, r.Output)
	}
	return nil
}

// Message is one immutable entry of a run history.
type Message struct {
	Source    string    `json:"source"`
	Content   string    `json:"content"`
	Sequence  int       `json:"sequence_index"`
	Timestamp time.Time `json:"timestamp"`
}

// FromRole reports whether the message was produced by a role turn
func (m Message) FromRole() bool {
	return m.Source != SourceUser && m.Source != SourceSystem
}

// EventKind tags the entries of a turn-event stream.
type EventKind string

const (
	EventMessage EventKind = "message" // task seed or role turn
	EventResult  EventKind = "result"  // final event of the stream
)

// Event is one element of the lazy turn-event stream.
type Event struct {
	Kind    EventKind  `json:"kind"`
	Message *Message   `json:"message,omitempty"`
	Result  *RunResult `json:"result,omitempty"`
}

// Source returns the message source, or "system" for the result event
func (e Event) Source() string {
	if e.Message != nil {
		return e.Message.Source
	}
	return SourceSystem
}

// Content returns the message content, or a result summary for the result event
func (e Event) Content() string {
	if e.Message != nil {
		return e.Message.Content
	}
	if e.Result != nil {
		return e.Result.Summary()
	}
	return ""
}

// RunCounter hands out monotonically increasing run numbers for a storage scope.
type RunCounter interface {
	Next(ctx context.Context) (int64, error)
}
