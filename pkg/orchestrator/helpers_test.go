package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// scriptedInvoker replays canned responses per role and records every call
type scriptedInvoker struct {
	mu        sync.Mutex
	responses map[RoleName][]string
	calls     []RoleName
	before    func(role RoleName)
}

func newScriptedInvoker(responses map[RoleName][]string) *scriptedInvoker {
	return &scriptedInvoker{responses: responses}
}

func (s *scriptedInvoker) Invoke(ctx context.Context, role Role, history []Message) (string, error) {
	if s.before != nil {
		s.before(role.Name)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, role.Name)

	queue := s.responses[role.Name]
	if len(queue) == 0 {
		return fmt.Sprintf("%s turn %d", role.Name, len(s.calls)), nil
	}
	s.responses[role.Name] = queue[1:]
	return queue[0], nil
}

func (s *scriptedInvoker) Calls() []RoleName {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]RoleName, len(s.calls))
	copy(out, s.calls)
	return out
}

func pipelineRoles(inv Invoker) []Role {
	return []Role{
		{Name: "coder", Responsibility: "writes code", Output: OutputCode, Invoker: inv},
		{Name: "reviewer", Responsibility: "reviews code", Output: OutputAdvice, Invoker: inv},
		{Name: "integrator", Responsibility: "integrates feedback", Output: OutputCode, Invoker: inv},
	}
}

func newTestController(t *testing.T, inv Invoker, term Termination, sel Selector, clock *fakeClock) *Controller {
	t.Helper()
	if sel == nil {
		sel = NewRoundRobin()
	}
	if clock == nil {
		clock = newFakeClock()
	}
	ctrl, err := NewController(ControllerConfig{
		Roles:       pipelineRoles(inv),
		Termination: term,
		Selector:    sel,
		Clock:       clock.Now,
	})
	require.NoError(t, err)
	return ctrl
}

// drain consumes a stream and returns the message events and the result
func drain(t *testing.T, events <-chan Event) ([]Message, RunResult) {
	t.Helper()

	var messages []Message
	var result *RunResult
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				require.NotNil(t, result, "stream closed without a result event")
				return messages, *result
			}
			switch ev.Kind {
			case EventMessage:
				require.Nil(t, result, "message after result event")
				messages = append(messages, *ev.Message)
			case EventResult:
				result = ev.Result
			}
		case <-timeout:
			t.Fatal("timed out draining event stream")
		}
	}
}

func sources(messages []Message) []string {
	out := make([]string, len(messages))
	for i, m := range messages {
		out[i] = m.Source
	}
	return out
}

func buildHistory(t *testing.T, clock *fakeClock, entries ...string) *History {
	t.Helper()
	msgs := make([]Message, 0, len(entries)+1)
	msgs = append(msgs, Message{Source: SourceUser, Content: "task", Sequence: 0, Timestamp: clock.Now()})
	for i, e := range entries {
		msgs = append(msgs, Message{Source: e, Content: e + " says hi", Sequence: i + 1, Timestamp: clock.Now()})
	}
	h, err := RestoreHistory(msgs, 0, clock.Now())
	require.NoError(t, err)
	return h
}
