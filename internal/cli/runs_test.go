package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harun/triad/internal/workflow"
	"github.com/harun/triad/pkg/orchestrator"
	"github.com/harun/triad/pkg/runstore"
)

func writeTestConfig(t *testing.T, dataDir string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "triad.yaml")
	content := "storage:\n  data_dir: " + dataDir + "\n" +
		"model:\n  profiles:\n    - id: test\n      provider: mistral\n      api_key: sk-test-abcdefghijkl\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := GetRootCmd()
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestRunsCommand(t *testing.T) {
	dataDir := t.TempDir()
	cfgPath := writeTestConfig(t, dataDir)

	t.Run("should report an empty index", func(t *testing.T) {
		out, err := execute(t, "runs", "--config", cfgPath)
		require.NoError(t, err)
		assert.Contains(t, out, "No runs recorded")
	})

	t.Run("should list indexed runs newest first", func(t *testing.T) {
		ctx := context.Background()
		store, err := runstore.Open(runstore.Config{DBPath: workflow.RunDBPath(dataDir)})
		require.NoError(t, err)

		started := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
		for i := 0; i < 2; i++ {
			n, err := store.Next(ctx)
			require.NoError(t, err)
			require.NoError(t, store.Begin(ctx, n, "run-id-"+string(rune('a'+i)), "task", "round_robin", started))
		}
		require.NoError(t, store.Complete(ctx, orchestrator.RunResult{
			RunNumber: 2,
			Status:    orchestrator.StatusCompleted,
			Outcome:   orchestrator.OutcomeFinished,
			Reason:    "message mentions TERMINATE",
			Turns:     3,
		}, 0, started.Add(90*time.Second)))
		require.NoError(t, store.Close())

		out, err := execute(t, "runs", "--config", cfgPath, "--limit", "0")
		require.NoError(t, err)
		assert.Contains(t, out, "RUN")
		assert.Contains(t, out, "run-id-b")
		assert.Contains(t, out, "1m30s")
		assert.Contains(t, out, "message mentions TERMINATE")
		assert.Less(t, bytes.Index([]byte(out), []byte("run-id-b")), bytes.Index([]byte(out), []byte("run-id-a")))
	})
}

func TestShowCommand(t *testing.T) {
	cfgPath := writeTestConfig(t, t.TempDir())

	t.Run("should reject a bad run number", func(t *testing.T) {
		_, err := execute(t, "show", "--config", cfgPath, "abc")
		assert.Error(t, err)
	})

	t.Run("should fail for an unknown run", func(t *testing.T) {
		_, err := execute(t, "show", "--config", cfgPath, "42")
		assert.Error(t, err)
	})
}

func TestConfigCommands(t *testing.T) {
	t.Setenv("TRIAD_API_KEY", "")
	t.Setenv("MISTRAL_API_KEY", "sk-test-abcdefghijkl")
	path := filepath.Join(t.TempDir(), "conf", "triad.yaml")

	out, err := execute(t, "config", "init", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Configuration saved to: "+path)
	_, err = os.Stat(path)
	require.NoError(t, err)

	_, err = execute(t, "config", "init", "--config", path)
	assert.Error(t, err, "existing file is not overwritten")

	out, err = execute(t, "config", "show", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, "sk-t...ijkl")
	assert.NotContains(t, out, "sk-test-abcdefghijkl")
	assert.Contains(t, out, "integrator")
}

func TestFormatHelpers(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(2*time.Hour + 3*time.Minute + 4*time.Second)

	assert.Equal(t, "2h3m4s", formatDuration(&start, &end))
	assert.Equal(t, "-", formatDuration(&start, nil))
	assert.Equal(t, "-", formatTime(nil))
	assert.Equal(t, "-", dash(""))
	assert.Equal(t, "abc…", truncate("abcdef", 3))
	assert.Equal(t, "abc", truncate("abc", 3))
}
