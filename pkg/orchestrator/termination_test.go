package orchestrator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConditionSatisfied(t *testing.T) {
	clock := newFakeClock()

	t.Run("text mention ignores the task message", func(t *testing.T) {
		msgs := []Message{{Source: SourceUser, Content: "say TERMINATE when done", Sequence: 0}}
		h, err := RestoreHistory(msgs, 0, clock.Now())
		require.NoError(t, err)

		assert.False(t, TextContains("TERMINATE").Satisfied(h, clock.Now()))

		h.append("integrator", "all good. TERMINATE", clock.Now())
		assert.True(t, TextContains("TERMINATE").Satisfied(h, clock.Now()))
	})

	t.Run("message count excludes the task message", func(t *testing.T) {
		h := buildHistory(t, clock, "coder")
		assert.False(t, MessageCountAtLeast(2).Satisfied(h, clock.Now()))

		h.append("reviewer", "looks fine", clock.Now())
		assert.True(t, MessageCountAtLeast(2).Satisfied(h, clock.Now()))
	})

	t.Run("elapsed continues from prior runs", func(t *testing.T) {
		msgs := []Message{{Source: SourceUser, Content: "task", Sequence: 0}}
		h, err := RestoreHistory(msgs, 8*time.Minute, clock.Now())
		require.NoError(t, err)

		cond := ElapsedAtLeast(10 * time.Minute)
		assert.False(t, cond.Satisfied(h, clock.Now()))
		assert.True(t, cond.Satisfied(h, clock.Now().Add(2*time.Minute)))
	})

	t.Run("source match on any earlier message", func(t *testing.T) {
		h := buildHistory(t, clock, "coder", "reviewer", "integrator", "coder")
		assert.True(t, SourceIn("integrator").Satisfied(h, clock.Now()))
		assert.False(t, SourceIn("merger").Satisfied(h, clock.Now()))
	})
}

func TestTerminationEvaluateReportsFirstInOrder(t *testing.T) {
	clock := newFakeClock()
	h := buildHistory(t, clock, "coder", "reviewer")
	h.append("integrator", "merged\nTERMINATE", clock.Now())

	verdict := DefaultTermination("integrator").Evaluate(h, clock.Now())
	require.True(t, verdict.Satisfied)
	assert.Equal(t, KindTextContains, verdict.Condition.Kind)
	assert.Equal(t, `text "TERMINATE" mentioned`, verdict.Reason)

	reordered := Termination{SourceIn("integrator"), TextContains("TERMINATE")}
	verdict = reordered.Evaluate(h, clock.Now())
	require.True(t, verdict.Satisfied)
	assert.Equal(t, KindSourceIn, verdict.Condition.Kind)
	assert.Equal(t, `"integrator" answered`, verdict.Reason)
}

func TestTerminationMonotonic(t *testing.T) {
	clock := newFakeClock()
	term := Termination{
		TextContains("TERMINATE"),
		MessageCountAtLeast(4),
		ElapsedAtLeast(time.Hour),
		SourceIn("integrator"),
	}

	contents := []struct {
		source  string
		content string
	}{
		{"coder", "first draft"},
		{"reviewer", "TERMINATE is premature"},
		{"coder", "second draft"},
		{"observer", "noise"},
		{"reviewer", "fine"},
		{"integrator", "done"},
	}

	h := buildHistory(t, clock)
	satisfied := false
	for _, c := range contents {
		clock.Advance(time.Minute)
		h.append(c.source, c.content, clock.Now())

		verdict := term.Evaluate(h, clock.Now())
		if satisfied {
			assert.True(t, verdict.Satisfied, "termination must stay satisfied after %s", c.source)
		}
		satisfied = satisfied || verdict.Satisfied

		for _, cond := range term {
			if cond.Satisfied(h, clock.Now()) {
				clock.Advance(time.Second)
				assert.True(t, cond.Satisfied(h, clock.Now()), "%s must stay satisfied", cond)
			}
		}
	}
	assert.True(t, satisfied)
}

func TestTerminationValidate(t *testing.T) {
	tests := []struct {
		name    string
		term    Termination
		wantErr bool
	}{
		{"default", DefaultTermination("integrator"), false},
		{"empty", Termination{}, true},
		{"empty marker", Termination{TextContains("")}, true},
		{"zero count", Termination{MessageCountAtLeast(0)}, true},
		{"zero duration", Termination{ElapsedAtLeast(0)}, true},
		{"no sources", Termination{SourceIn()}, true},
		{"unknown kind", Termination{{Kind: "never"}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.term.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestDefaultTermination(t *testing.T) {
	term := DefaultTermination("integrator")

	require.Len(t, term, 4)
	assert.Equal(t, "TERMINATE", term[0].Marker)
	assert.Equal(t, 20, term[1].Count)
	assert.Equal(t, 600*time.Second, term[2].Duration)
	assert.Equal(t, []RoleName{"integrator"}, term[3].Sources)
	assert.True(t, term.HasMessageCap())
}
