package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/harun/triad/internal/observability"
)

// Selector decides which role acts next. Returning false means no role is
// eligible. Selectors only read the history.
type Selector interface {
	Name() string
	Select(ctx context.Context, h *History, roster *Roster) (RoleName, bool)
	// State returns the selector's internal counters for snapshotting
	State() (json.RawMessage, error)
	// Restore loads counters produced by State
	Restore(state json.RawMessage) error
}

const (
	ModeRoundRobin = "round_robin"
	ModeSelector   = "selector"
)

// RoundRobin cycles through the roster in order, starting after the last
// role that spoke. It never consults message content.
type RoundRobin struct {
	turns int
}

type roundRobinState struct {
	Turns int `json:"turns"`
}

// NewRoundRobin creates a deterministic rotation selector
func NewRoundRobin() *RoundRobin {
	return &RoundRobin{}
}

func (s *RoundRobin) Name() string {
	return ModeRoundRobin
}

// Select returns the role after the most recent role speaker, or the first
// role when no role has spoken yet.
func (s *RoundRobin) Select(ctx context.Context, h *History, roster *Roster) (RoleName, bool) {
	next := 0
	for i := len(h.messages) - 1; i >= 0; i-- {
		if idx := roster.Index(RoleName(h.messages[i].Source)); idx >= 0 {
			next = (idx + 1) % roster.Count()
			break
		}
	}

	s.turns++
	observability.RecordSelection(s.Name(), "rule")
	return roster.roles[next].Name, true
}

func (s *RoundRobin) State() (json.RawMessage, error) {
	return json.Marshal(roundRobinState{Turns: s.turns})
}

func (s *RoundRobin) Restore(state json.RawMessage) error {
	if len(state) == 0 {
		s.turns = 0
		return nil
	}
	var st roundRobinState
	if err := json.Unmarshal(state, &st); err != nil {
		return fmt.Errorf("restore %s selector: %w", s.Name(), err)
	}
	if st.Turns < 0 {
		return fmt.Errorf("restore %s selector: negative turn count", s.Name())
	}
	s.turns = st.Turns
	return nil
}
