package workflow

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"

	"github.com/harun/triad/pkg/runstore"
)

// artifactPattern matches files named after a run number
var artifactPattern = regexp.MustCompile(`^(?:task_record|team_state|team_config)_(\d+)(?:_resume\d+)?\.(?:md|json|jsonl)$`)

// RunDBPath returns the run index database of a data directory
func RunDBPath(dataDir string) string {
	return filepath.Join(dataDir, runstore.DBName)
}

// HighestRecordedRun returns the largest run number found in artifact file
// names, or 0. Directories written before the run index existed keep
// their numbering this way.
func HighestRecordedRun(dataDir string) (int64, error) {
	entries, err := os.ReadDir(dataDir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to read data directory: %w", err)
	}

	var highest int64
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		m := artifactPattern.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		n, err := strconv.ParseInt(m[1], 10, 64)
		if err != nil {
			continue
		}
		if n > highest {
			highest = n
		}
	}
	return highest, nil
}
