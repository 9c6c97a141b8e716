package importer

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Summary is the YAML report written after an import.
type Summary struct {
	RunID        string    `yaml:"runid"`
	Directory    string    `yaml:"directory"`
	State        string    `yaml:"state"`
	StartedAt    time.Time `yaml:"startedat"`
	FinishedAt   time.Time `yaml:"finishedat,omitempty"`
	Total        int       `yaml:"total"`
	Completed    int       `yaml:"completed"`
	MissingFront int       `yaml:"missingfront"`
	MissingBack  int       `yaml:"missingback"`
	Error        string    `yaml:"error,omitempty"`
}

// Duration is the wall time of a finished run.
func (s Summary) Duration() time.Duration {
	if s.FinishedAt.IsZero() {
		return 0
	}
	return s.FinishedAt.Sub(s.StartedAt)
}

// WriteReport saves a run summary as YAML, creating parent directories.
func WriteReport(path string, s Summary) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create report directory: %w", err)
		}
	}
	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to marshal import report: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write import report: %w", err)
	}
	return nil
}

// ReadReport loads a report written by WriteReport.
func ReadReport(path string) (Summary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Summary{}, fmt.Errorf("failed to read import report: %w", err)
	}
	var s Summary
	if err := yaml.Unmarshal(data, &s); err != nil {
		return Summary{}, fmt.Errorf("failed to parse import report: %w", err)
	}
	return s, nil
}
