package cli

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harun/triad/internal/workflow"
	"github.com/harun/triad/pkg/orchestrator"
)

func TestPromptTask(t *testing.T) {
	t.Run("should read one line", func(t *testing.T) {
		var prompt bytes.Buffer
		task, err := promptTask(strings.NewReader("  write a parser  \nignored\n"), &prompt)
		require.NoError(t, err)
		assert.Equal(t, "write a parser", task)
		assert.Equal(t, "Enter the task: ", prompt.String())
	})

	t.Run("should accept a line without newline", func(t *testing.T) {
		task, err := promptTask(strings.NewReader("sort a list"), &bytes.Buffer{})
		require.NoError(t, err)
		assert.Equal(t, "sort a list", task)
	})

	t.Run("should reject an empty answer", func(t *testing.T) {
		_, err := promptTask(strings.NewReader("   \n"), &bytes.Buffer{})
		assert.ErrorIs(t, err, ErrEmptyTask)

		_, err = promptTask(strings.NewReader(""), &bytes.Buffer{})
		assert.ErrorIs(t, err, ErrEmptyTask)
	})
}

func TestOutcomeError(t *testing.T) {
	report := func(outcome orchestrator.Outcome) *workflow.Report {
		return &workflow.Report{Result: orchestrator.RunResult{Outcome: outcome, Error: "boom"}}
	}

	assert.NoError(t, outcomeError(nil))
	assert.NoError(t, outcomeError(report(orchestrator.OutcomeFinished)))
	assert.NoError(t, outcomeError(report(orchestrator.OutcomeTimedOut)))
	assert.ErrorIs(t, outcomeError(report(orchestrator.OutcomeCancelled)), orchestrator.ErrCancellationRequested)
	assert.EqualError(t, outcomeError(report(orchestrator.OutcomeFailed)), "boom")
}

func TestRunCommandFlags(t *testing.T) {
	cmd, _, err := GetRootCmd().Find([]string{"run"})
	require.NoError(t, err)

	for _, name := range []string{"task", "mode", "save-config", "metrics-addr"} {
		assert.NotNil(t, cmd.Flags().Lookup(name), "flag %s", name)
	}
	assert.Equal(t, "t", cmd.Flags().Lookup("task").Shorthand)
}
