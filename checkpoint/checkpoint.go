// Package checkpoint reads and writes flat-file checkpoint artifacts
// named "checkpoints/<worker_id>_<cp_id>.txt". Mapper files hold the
// ASCII cursor; reducer files hold a JSON word-count map. Naming is the
// only index — there is no manifest and no garbage collection, matching
// the reference checkpoint.py/mapper.py/reducer.py, which never clean up
// old checkpoint files either.
package checkpoint

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Dir is the default flat directory checkpoint files live in, matching the
// reference system's "checkpoints/" relative path.
const Dir = "checkpoints"

func path(dir, id string, cp int) string {
	return filepath.Join(dir, fmt.Sprintf("%s_%d.txt", id, cp))
}

// WriteMapperCursor writes a mapper's last_stream_id as ASCII text.
func WriteMapperCursor(dir, id string, cp int, cursor string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("checkpoint: mkdir %s: %w", dir, err)
	}
	if err := os.WriteFile(path(dir, id, cp), []byte(cursor+"\n"), 0o644); err != nil {
		return fmt.Errorf("checkpoint: write mapper checkpoint: %w", err)
	}
	return nil
}

// ReadMapperCursor reads back a cursor written by WriteMapperCursor.
func ReadMapperCursor(dir, id string, cp int) (string, error) {
	b, err := os.ReadFile(path(dir, id, cp))
	if err != nil {
		return "", fmt.Errorf("checkpoint: read mapper checkpoint: %w", err)
	}
	return strings.TrimSpace(string(b)), nil
}

// WriteReducerWordCount serializes a reducer's word counts as JSON.
func WriteReducerWordCount(dir, id string, cp int, wc map[string]int) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("checkpoint: mkdir %s: %w", dir, err)
	}
	b, err := json.Marshal(wc)
	if err != nil {
		return fmt.Errorf("checkpoint: marshal word count: %w", err)
	}
	if err := os.WriteFile(path(dir, id, cp), b, 0o644); err != nil {
		return fmt.Errorf("checkpoint: write reducer checkpoint: %w", err)
	}
	return nil
}

// ReadReducerWordCount reads back word counts written by
// WriteReducerWordCount.
func ReadReducerWordCount(dir, id string, cp int) (map[string]int, error) {
	b, err := os.ReadFile(path(dir, id, cp))
	if err != nil {
		return nil, fmt.Errorf("checkpoint: read reducer checkpoint: %w", err)
	}
	var wc map[string]int
	if err := json.Unmarshal(b, &wc); err != nil {
		return nil, fmt.Errorf("checkpoint: unmarshal word count: %w", err)
	}
	return wc, nil
}
