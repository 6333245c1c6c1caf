package runstore

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harun/triad/pkg/orchestrator"
)

func setupTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), DBName)
	s, err := Open(Config{DBPath: path, Logger: zerolog.Nop()})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s, path
}

func TestNextIsMonotonic(t *testing.T) {
	s, path := setupTestStore(t)
	ctx := context.Background()

	for want := int64(1); want <= 3; want++ {
		n, err := s.Next(ctx)
		require.NoError(t, err)
		assert.Equal(t, want, n)
	}

	t.Run("should continue after reopening", func(t *testing.T) {
		require.NoError(t, s.Close())
		reopened, err := Open(Config{DBPath: path, Logger: zerolog.Nop()})
		require.NoError(t, err)
		defer reopened.Close()

		n, err := reopened.Next(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(4), n)
	})
}

func TestNextConcurrent(t *testing.T) {
	s, _ := setupTestStore(t)
	ctx := context.Background()

	var mu sync.Mutex
	seen := make(map[int64]bool)
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			n, err := s.Next(ctx)
			assert.NoError(t, err)
			mu.Lock()
			seen[n] = true
			mu.Unlock()
		}()
	}
	wg.Wait()
	assert.Len(t, seen, 10)
}

func TestEnsureFloor(t *testing.T) {
	ctx := context.Background()

	t.Run("should seed an empty counter", func(t *testing.T) {
		s, _ := setupTestStore(t)
		require.NoError(t, s.EnsureFloor(ctx, 7))
		n, err := s.Next(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(8), n)
	})

	t.Run("should never lower the counter", func(t *testing.T) {
		s, _ := setupTestStore(t)
		require.NoError(t, s.EnsureFloor(ctx, 5))
		_, err := s.Next(ctx)
		require.NoError(t, err)

		require.NoError(t, s.EnsureFloor(ctx, 2))
		n, err := s.Next(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(7), n)
	})
}

func TestRunLifecycle(t *testing.T) {
	s, _ := setupTestStore(t)
	ctx := context.Background()
	started := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

	n, err := s.Next(ctx)
	require.NoError(t, err)

	run, err := s.Get(ctx, n)
	require.NoError(t, err)
	assert.Equal(t, StatusAllocated, run.Status)
	assert.Nil(t, run.StartedAt)

	require.NoError(t, s.Begin(ctx, n, "run-abc", "write a sort function", orchestrator.ModeRoundRobin, started))

	result := orchestrator.RunResult{
		RunID:     "run-abc",
		RunNumber: n,
		Status:    orchestrator.StatusCompleted,
		Outcome:   orchestrator.OutcomeFinished,
		Reason:    `text "TERMINATE" mentioned`,
		Turns:     3,
	}
	require.NoError(t, s.Complete(ctx, result, 0, started.Add(time.Minute)))

	run, err = s.Get(ctx, n)
	require.NoError(t, err)
	assert.Equal(t, "run-abc", run.RunID)
	assert.Equal(t, "write a sort function", run.Task)
	assert.Equal(t, "completed", run.Status)
	assert.Equal(t, "finished", run.Outcome)
	assert.Equal(t, 3, run.Turns)
	require.NotNil(t, run.StartedAt)
	assert.Equal(t, started, *run.StartedAt)
	require.NotNil(t, run.EndedAt)
	assert.Equal(t, started.Add(time.Minute), *run.EndedAt)

	t.Run("should keep the first start time on resume", func(t *testing.T) {
		require.NoError(t, s.Begin(ctx, n, "run-abc", "write a sort function", orchestrator.ModeRoundRobin, started.Add(time.Hour)))
		run, err := s.Get(ctx, n)
		require.NoError(t, err)
		assert.Equal(t, started, *run.StartedAt)
	})

	t.Run("should record failures with their error", func(t *testing.T) {
		failed := result
		failed.Status = orchestrator.StatusFailed
		failed.Outcome = orchestrator.OutcomeFailed
		failed.Error = "selection deadlock"
		require.NoError(t, s.Complete(ctx, failed, 1, started.Add(2*time.Hour)))

		run, err := s.Get(ctx, n)
		require.NoError(t, err)
		assert.Equal(t, "selection deadlock", run.Reason)
		assert.Equal(t, 1, run.Resumes)
	})
}

func TestListAndMissing(t *testing.T) {
	s, _ := setupTestStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := s.Next(ctx)
		require.NoError(t, err)
	}

	runs, err := s.List(ctx, 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, int64(3), runs[0].Number)
	assert.Equal(t, int64(2), runs[1].Number)

	all, err := s.List(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	_, err = s.Get(ctx, 42)
	assert.ErrorIs(t, err, ErrNotFound)

	err = s.Begin(ctx, 42, "x", "y", "z", time.Now())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestOpenRequiresPath(t *testing.T) {
	_, err := Open(Config{})
	assert.Error(t, err)
}
