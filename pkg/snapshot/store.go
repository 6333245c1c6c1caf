package snapshot

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/harun/triad/internal/observability"
	"github.com/harun/triad/pkg/orchestrator"
)

const (
	filePrefix = "team_state_"
	fileExt    = ".json"
)

// FileStore persists run states in a directory, one file per run number
type FileStore struct {
	baseDir string
	codec   *Codec
	mu      sync.RWMutex
}

// NewFileStore creates a new file-based state store
func NewFileStore(baseDir string, codec *Codec) (*FileStore, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}
	return &FileStore{baseDir: baseDir, codec: codec}, nil
}

// Path returns the file used for a run number
func (s *FileStore) Path(runNumber int64) string {
	return filepath.Join(s.baseDir, fmt.Sprintf("%s%d%s", filePrefix, runNumber, fileExt))
}

// Save atomically replaces the snapshot of the state's run
func (s *FileStore) Save(ctx context.Context, state orchestrator.RunState) (string, error) {
	start := time.Now()
	path, err := s.save(state)
	observability.RecordSnapshot("save", time.Since(start), err == nil)
	observability.RecordSnapshotAudit(ctx, "snapshot_saved", state.RunID, auditStatus(err), map[string]interface{}{
		"run_number": state.RunNumber,
		"status":     string(state.Status),
		"messages":   len(state.Messages),
	})
	return path, err
}

func (s *FileStore) save(state orchestrator.RunState) (string, error) {
	data, err := s.codec.Snapshot(state)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.Path(state.RunNumber)
	if err := WriteFileAtomic(path, data, 0644); err != nil {
		return "", err
	}
	return path, nil
}

// Load reads and validates a snapshot file
func (s *FileStore) Load(ctx context.Context, path string) (orchestrator.RunState, error) {
	start := time.Now()
	state, err := s.load(path)
	observability.RecordSnapshot("load", time.Since(start), err == nil)
	meta := map[string]interface{}{"path": path}
	if err != nil {
		meta["error"] = err.Error()
	}
	observability.RecordSnapshotAudit(ctx, "snapshot_loaded", state.RunID, auditStatus(err), meta)
	return state, err
}

func auditStatus(err error) string {
	if err != nil {
		return "failure"
	}
	return "success"
}

func (s *FileStore) load(path string) (orchestrator.RunState, error) {
	s.mu.RLock()
	data, err := os.ReadFile(path)
	s.mu.RUnlock()
	if err != nil {
		return orchestrator.RunState{}, fmt.Errorf("failed to read state file: %w", err)
	}
	return s.codec.Restore(data)
}

// LoadRun reads the snapshot of a run number
func (s *FileStore) LoadRun(ctx context.Context, runNumber int64) (orchestrator.RunState, error) {
	return s.Load(ctx, s.Path(runNumber))
}

// List returns the run numbers that have a snapshot, in ascending order
func (s *FileStore) List() ([]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read store directory: %w", err)
	}

	var numbers []int64
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, filePrefix) || filepath.Ext(name) != fileExt {
			continue
		}
		n, err := strconv.ParseInt(strings.TrimSuffix(strings.TrimPrefix(name, filePrefix), fileExt), 10, 64)
		if err != nil {
			continue
		}
		numbers = append(numbers, n)
	}
	sort.Slice(numbers, func(i, j int) bool { return numbers[i] < numbers[j] })
	return numbers, nil
}

// WriteFileAtomic writes data next to path and renames it into place, so
// readers see either the old or the new content.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpPath) }

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, perm); err != nil {
		cleanup()
		return fmt.Errorf("failed to set permissions: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		cleanup()
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}
