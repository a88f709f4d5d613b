// Package sandbox defines the isolated execution environment a
// self-improvement run happens in.
package sandbox

import (
	"context"
	"errors"
	"fmt"
)

// LabelRunID records the pipeline run a sandbox belongs to.
const LabelRunID = "run-id"

// State is the lifecycle position of a sandbox.
type State int

const (
	StateAbsent State = iota
	StateCreated
	StateRunning
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateAbsent:
		return "absent"
	case StateCreated:
		return "created"
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

var (
	// ErrInvalidTransition is returned when an operation does not fit the
	// handle's current state, e.g. exec on a stopped sandbox.
	ErrInvalidTransition = errors.New("invalid sandbox state transition")
	// ErrNotFound is returned when a copied path does not exist.
	ErrNotFound = errors.New("not found in sandbox")
)

// Handle refers to one sandbox instance. Handles are never reused: once
// stopped, a new handle must be created.
type Handle struct {
	// ID is the runtime identifier (container id for docker).
	ID      string
	Name    string
	WorkDir string
	State   State
}

// Advance moves h to next. States only move forward.
func (h *Handle) Advance(next State) error {
	if next <= h.State {
		return fmt.Errorf("%w: %s -> %s (%s)", ErrInvalidTransition, h.State, next, h.Name)
	}
	h.State = next
	return nil
}

// Require returns ErrInvalidTransition unless h is in state s.
func (h *Handle) Require(s State) error {
	if h.State != s {
		return fmt.Errorf("%w: %s is %s, want %s", ErrInvalidTransition, h.Name, h.State, s)
	}
	return nil
}

// Spec describes the sandbox to create.
type Spec struct {
	Image   string `validate:"required"`
	Name    string `validate:"required"`
	WorkDir string `validate:"required"`
	// Cmd is the keep-alive command. Implementations pick a default when empty.
	Cmd []string
	// Publish lists port specs ("8080:80/tcp") to expose on the host.
	Publish []string
	Labels  map[string]string
}

// ExecResult is the outcome of a command run inside the sandbox.
type ExecResult struct {
	// Output is the combined stdout and stderr.
	Output   string
	ExitCode int
}

// Err returns an *ExitError when the command exited nonzero.
func (r ExecResult) Err() error {
	if r.ExitCode == 0 {
		return nil
	}
	return &ExitError{Code: r.ExitCode, Output: r.Output}
}

// ExitError reports a nonzero exit status.
type ExitError struct {
	Code   int
	Output string
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("command exited with status %d", e.Code)
}

// Observer receives output chunks as a command runs.
type Observer func(chunk string)

// Manager runs sandboxes.
type Manager interface {
	// EnsureClean removes any sandbox with the given name. A missing
	// sandbox is not an error.
	EnsureClean(ctx context.Context, name string) error
	// Create provisions a sandbox without starting it.
	Create(ctx context.Context, spec Spec) (*Handle, error)
	// Start runs a created sandbox.
	Start(ctx context.Context, h *Handle) error
	// Exec runs command through a login shell in the sandbox work dir.
	// A nonzero exit is reported in the result, not as an error.
	Exec(ctx context.Context, h *Handle, command string, observer Observer) (ExecResult, error)
	// CopyOut copies a single file from the sandbox to the host.
	CopyOut(ctx context.Context, h *Handle, remotePath, localPath string) error
	// Destroy stops and removes the sandbox.
	Destroy(ctx context.Context, h *Handle) error
	// Close releases resources held by the manager.
	Close() error
}
