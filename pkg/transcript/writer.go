package transcript

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ErrRecordExists is returned when a record file was already written
var ErrRecordExists = errors.New("task record already exists")

// RecordPath returns the markdown record file of a run. Each resumed
// segment of a run gets its own record.
func RecordPath(dir string, runNumber int64, resumes int) string {
	if resumes > 0 {
		return filepath.Join(dir, fmt.Sprintf("task_record_%d_resume%d.md", runNumber, resumes))
	}
	return filepath.Join(dir, fmt.Sprintf("task_record_%d.md", runNumber))
}

// WriteRecord creates a record file. Existing records are never replaced.
func WriteRecord(path, content string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create record directory: %w", err)
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return fmt.Errorf("%w: %s", ErrRecordExists, path)
		}
		return fmt.Errorf("failed to create record file: %w", err)
	}

	if _, err := file.WriteString(content); err != nil {
		file.Close()
		return fmt.Errorf("failed to write record: %w", err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		return fmt.Errorf("failed to sync record: %w", err)
	}
	return file.Close()
}
