package orchestrator

import (
	"fmt"
	"time"
)

// History is the append-only message log of a run. Only the Controller
// appends to it; selectors, termination conditions and the recorder read it.
type History struct {
	messages     []Message
	resumedAt    time.Time
	priorElapsed time.Duration
}

func newHistory(task string, now time.Time) *History {
	h := &History{resumedAt: now}
	h.append(SourceUser, task, now)
	return h
}

// RestoreHistory rebuilds a history from persisted messages. Sequence indexes
// must be exactly 0..n-1. The elapsed clock continues from priorElapsed at now.
func RestoreHistory(messages []Message, priorElapsed time.Duration, now time.Time) (*History, error) {
	if len(messages) == 0 {
		return nil, fmt.Errorf("history must contain the task message")
	}
	if priorElapsed < 0 {
		return nil, fmt.Errorf("elapsed time cannot be negative")
	}
	for i, msg := range messages {
		if msg.Sequence != i {
			return nil, fmt.Errorf("message %d has sequence index %d", i, msg.Sequence)
		}
		if msg.Source == "" {
			return nil, fmt.Errorf("message %d has empty source", i)
		}
	}

	h := &History{
		messages:     make([]Message, len(messages)),
		resumedAt:    now,
		priorElapsed: priorElapsed,
	}
	copy(h.messages, messages)
	return h, nil
}

func (h *History) append(source, content string, now time.Time) Message {
	msg := Message{
		Source:    source,
		Content:   content,
		Sequence:  len(h.messages),
		Timestamp: now,
	}
	h.messages = append(h.messages, msg)
	return msg
}

// Messages returns a copy of the messages in order
func (h *History) Messages() []Message {
	out := make([]Message, len(h.messages))
	copy(out, h.messages)
	return out
}

// Len returns the number of messages, including the task message
func (h *History) Len() int {
	return len(h.messages)
}

// TurnCount returns the number of role-generated messages
func (h *History) TurnCount() int {
	count := 0
	for _, msg := range h.messages {
		if msg.FromRole() {
			count++
		}
	}
	return count
}

// Last returns the most recent message
func (h *History) Last() (Message, bool) {
	if len(h.messages) == 0 {
		return Message{}, false
	}
	return h.messages[len(h.messages)-1], true
}

// Task returns the content of the seed task message
func (h *History) Task() string {
	if len(h.messages) == 0 {
		return ""
	}
	return h.messages[0].Content
}

// Elapsed returns the active run time at now
func (h *History) Elapsed(now time.Time) time.Duration {
	d := now.Sub(h.resumedAt)
	if d < 0 {
		d = 0
	}
	return h.priorElapsed + d
}

// Tail returns up to n most recent messages
func (h *History) Tail(n int) []Message {
	if n <= 0 || n > len(h.messages) {
		n = len(h.messages)
	}
	out := make([]Message, n)
	copy(out, h.messages[len(h.messages)-n:])
	return out
}
