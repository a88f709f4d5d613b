// Package store keeps a history of self-improvement runs.
package store

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a run id is unknown.
var ErrNotFound = errors.New("run not found")

// Run is the persisted summary of one pipeline run.
type Run struct {
	ID               string    `json:"id"`
	Task             string    `json:"task"`
	Status           string    `json:"status"`
	StartedAt        time.Time `json:"started_at"`
	FinishedAt       time.Time `json:"finished_at"`
	RunDir           string    `json:"run_dir"`
	ProblemStatement string    `json:"problem_statement,omitempty"`
	AgentExit        int       `json:"agent_exit"`
	PatchPath        string    `json:"patch_path,omitempty"`
	PatchFiles       []string  `json:"patch_files,omitempty"`
	Error            string    `json:"error,omitempty"`
}

// Duration is how long the run took.
func (r Run) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// Manager records and lists runs.
type Manager interface {
	// Append records a finished run.
	Append(r Run) error
	// List returns all runs, most recent first.
	List() ([]Run, error)
	// Get returns the run with the given id.
	Get(id string) (Run, error)
}
