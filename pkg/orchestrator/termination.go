package orchestrator

import (
	"fmt"
	"strings"
	"time"
)

// ConditionKind tags the variants of Condition.
type ConditionKind string

const (
	KindTextContains        ConditionKind = "text_mention"
	KindMessageCountAtLeast ConditionKind = "max_messages"
	KindElapsedAtLeast      ConditionKind = "timeout"
	KindSourceIn            ConditionKind = "source_match"
)

// Condition is one stop rule. Only the fields of its Kind are meaningful.
type Condition struct {
	Kind     ConditionKind `json:"type"`
	Marker   string        `json:"marker,omitempty"`
	Count    int           `json:"max_messages,omitempty"`
	Duration time.Duration `json:"timeout,omitempty"`
	Sources  []RoleName    `json:"sources,omitempty"`
}

// TextContains is satisfied once a role message mentions marker
func TextContains(marker string) Condition {
	return Condition{Kind: KindTextContains, Marker: marker}
}

// MessageCountAtLeast is satisfied once n role messages were produced.
// The task message does not count.
func MessageCountAtLeast(n int) Condition {
	return Condition{Kind: KindMessageCountAtLeast, Count: n}
}

// ElapsedAtLeast is satisfied once the active run time reaches d
func ElapsedAtLeast(d time.Duration) Condition {
	return Condition{Kind: KindElapsedAtLeast, Duration: d}
}

// SourceIn is satisfied once any of the named roles produced a message
func SourceIn(names ...RoleName) Condition {
	return Condition{Kind: KindSourceIn, Sources: names}
}

// Validate validates the condition parameters
func (c Condition) Validate() error {
	switch c.Kind {
	case KindTextContains:
		if c.Marker == "" {
			return fmt.Errorf("%s: marker is required", c.Kind)
		}
	case KindMessageCountAtLeast:
		if c.Count <= 0 {
			return fmt.Errorf("%s: count must be positive", c.Kind)
		}
	case KindElapsedAtLeast:
		if c.Duration <= 0 {
			return fmt.Errorf("%s: duration must be positive", c.Kind)
		}
	case KindSourceIn:
		if len(c.Sources) == 0 {
			return fmt.Errorf("%s: at least one source is required", c.Kind)
		}
	default:
		return fmt.Errorf("unknown condition type %q", c.Kind)
	}
	return nil
}

// Satisfied evaluates the condition against h at now. It only reads h.
func (c Condition) Satisfied(h *History, now time.Time) bool {
	switch c.Kind {
	case KindTextContains:
		for _, msg := range h.messages {
			if msg.FromRole() && strings.Contains(msg.Content, c.Marker) {
				return true
			}
		}
		return false
	case KindMessageCountAtLeast:
		return h.TurnCount() >= c.Count
	case KindElapsedAtLeast:
		return h.Elapsed(now) >= c.Duration
	case KindSourceIn:
		for _, msg := range h.messages {
			for _, src := range c.Sources {
				if msg.Source == string(src) {
					return true
				}
			}
		}
		return false
	}
	return false
}

// Describe renders a human readable reason for a satisfied condition
func (c Condition) Describe(h *History, now time.Time) string {
	switch c.Kind {
	case KindTextContains:
		return fmt.Sprintf("text %q mentioned", c.Marker)
	case KindMessageCountAtLeast:
		return fmt.Sprintf("maximum number of messages %d reached, current message count: %d", c.Count, h.TurnCount())
	case KindElapsedAtLeast:
		return fmt.Sprintf("timeout of %s reached after %s", c.Duration, h.Elapsed(now).Round(time.Millisecond))
	case KindSourceIn:
		for _, msg := range h.messages {
			for _, src := range c.Sources {
				if msg.Source == string(src) {
					return fmt.Sprintf("%q answered", src)
				}
			}
		}
	}
	return string(c.Kind)
}

func (c Condition) String() string {
	switch c.Kind {
	case KindTextContains:
		return fmt.Sprintf("%s(%q)", c.Kind, c.Marker)
	case KindMessageCountAtLeast:
		return fmt.Sprintf("%s(%d)", c.Kind, c.Count)
	case KindElapsedAtLeast:
		return fmt.Sprintf("%s(%s)", c.Kind, c.Duration)
	case KindSourceIn:
		return fmt.Sprintf("%s(%v)", c.Kind, c.Sources)
	}
	return string(c.Kind)
}

// Termination is the logical OR of its conditions. Order only affects which
// reason is reported when several conditions hold.
type Termination []Condition

// DefaultTermination returns the stop rule of the three-role pipeline
func DefaultTermination(integrator RoleName) Termination {
	return Termination{
		TextContains("TERMINATE"),
		MessageCountAtLeast(20),
		ElapsedAtLeast(600 * time.Second),
		SourceIn(integrator),
	}
}

// Validate validates every condition
func (t Termination) Validate() error {
	if len(t) == 0 {
		return fmt.Errorf("at least one termination condition is required")
	}
	for i, c := range t {
		if err := c.Validate(); err != nil {
			return fmt.Errorf("condition %d: %w", i, err)
		}
	}
	return nil
}

// Verdict is the outcome of one termination evaluation.
type Verdict struct {
	Satisfied bool
	Condition Condition
	Reason    string
}

// Evaluate reports whether any condition holds, with the first satisfied
// condition in configured order.
func (t Termination) Evaluate(h *History, now time.Time) Verdict {
	for _, c := range t {
		if c.Satisfied(h, now) {
			return Verdict{Satisfied: true, Condition: c, Reason: c.Describe(h, now)}
		}
	}
	return Verdict{}
}

// HasMessageCap reports whether a MessageCountAtLeast condition bounds the run
func (t Termination) HasMessageCap() bool {
	for _, c := range t {
		if c.Kind == KindMessageCountAtLeast {
			return true
		}
	}
	return false
}
