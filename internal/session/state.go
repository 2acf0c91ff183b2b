// Package session persists the record of a started session so a cleanup
// run in a fresh process can recover device roles without re-detection.
package session

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/wearablelab/ticsync/internal/ticsync"
	"gopkg.in/yaml.v3"
)

// StateFileName is the record written next to the downloaded recordings.
const StateFileName = "ticsync-session.yaml"

// Path returns the state file location inside dir.
func Path(dir string) string {
	return filepath.Join(dir, StateFileName)
}

// Save writes the session record. The directory is created if needed.
func Save(dir string, record *ticsync.SessionRecord) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create session state directory: %w", err)
	}
	data, err := yaml.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal session record: %w", err)
	}
	if err := os.WriteFile(Path(dir), data, 0644); err != nil {
		return fmt.Errorf("failed to write session record: %w", err)
	}
	return nil
}

// Load reads the session record. A missing file is not an error; it
// returns (nil, nil) and the caller falls back to detection.
func Load(dir string) (*ticsync.SessionRecord, error) {
	data, err := os.ReadFile(Path(dir))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read session record: %w", err)
	}
	var record ticsync.SessionRecord
	if err := yaml.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("failed to parse session record: %w", err)
	}
	return &record, nil
}

// Remove deletes the session record after a successful cleanup. Removing
// an absent record is a no-op.
func Remove(dir string) error {
	err := os.Remove(Path(dir))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove session record: %w", err)
	}
	return nil
}
