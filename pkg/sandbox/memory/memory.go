// Package memory provides an in-process sandbox.Manager for tests and dry runs.
package memory

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/nstogner/selfimprove/pkg/sandbox"
)

// Handler decides the outcome of an exec'd command.
type Handler func(ctx context.Context, command string) (sandbox.ExecResult, error)

// Call is one recorded manager operation.
type Call struct {
	Op   string
	Name string
	// Arg is the command for exec and the remote path for copy.
	Arg string
}

// Manager keeps sandboxes as in-memory records. Files exist only where
// placed with SetFile.
type Manager struct {
	mu      sync.Mutex
	handler Handler
	files   map[string][]byte
	live    map[string]bool
	calls   []Call
	nextID  int
}

var _ sandbox.Manager = (*Manager)(nil)

// Option configures a Manager.
type Option func(*Manager)

// WithHandler sets the exec handler. Without one every command succeeds
// with empty output.
func WithHandler(h Handler) Option {
	return func(m *Manager) { m.handler = h }
}

// WithExisting pretends a sandbox called name is left over from an earlier run.
func WithExisting(name string) Option {
	return func(m *Manager) { m.live[name] = true }
}

func New(opts ...Option) *Manager {
	m := &Manager{
		files: map[string][]byte{},
		live:  map[string]bool{},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// SetFile places content at an absolute path inside every sandbox.
func (m *Manager) SetFile(path string, content []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[path] = content
}

// Calls returns the operations performed so far.
func (m *Manager) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Call(nil), m.calls...)
}

// Ops returns just the operation names of Calls, in order.
func (m *Manager) Ops() []string {
	var ops []string
	for _, c := range m.Calls() {
		ops = append(ops, c.Op)
	}
	return ops
}

// Live reports whether a sandbox called name currently exists.
func (m *Manager) Live(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.live[name]
}

func (m *Manager) record(op, name, arg string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, Call{Op: op, Name: name, Arg: arg})
}

func (m *Manager) EnsureClean(ctx context.Context, name string) error {
	m.record("ensure_clean", name, "")
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.live[name] {
		slog.Info("Removing existing sandbox", "name", name)
		delete(m.live, name)
	}
	return nil
}

func (m *Manager) Create(ctx context.Context, spec sandbox.Spec) (*sandbox.Handle, error) {
	m.record("create", spec.Name, spec.Image)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.live[spec.Name] {
		return nil, fmt.Errorf("creating container: name %s already in use", spec.Name)
	}
	m.live[spec.Name] = true
	m.nextID++

	h := &sandbox.Handle{ID: fmt.Sprintf("mem-%d", m.nextID), Name: spec.Name, WorkDir: spec.WorkDir}
	if err := h.Advance(sandbox.StateCreated); err != nil {
		return nil, err
	}
	return h, nil
}

func (m *Manager) Start(ctx context.Context, h *sandbox.Handle) error {
	m.record("start", h.Name, "")
	if err := h.Require(sandbox.StateCreated); err != nil {
		return err
	}
	return h.Advance(sandbox.StateRunning)
}

func (m *Manager) Exec(ctx context.Context, h *sandbox.Handle, command string, observer sandbox.Observer) (sandbox.ExecResult, error) {
	m.record("exec", h.Name, command)
	if err := h.Require(sandbox.StateRunning); err != nil {
		return sandbox.ExecResult{}, err
	}
	if err := ctx.Err(); err != nil {
		return sandbox.ExecResult{}, err
	}
	if m.handler == nil {
		return sandbox.ExecResult{}, nil
	}

	res, err := m.handler(ctx, command)
	if observer != nil && res.Output != "" {
		observer(res.Output)
	}
	return res, err
}

func (m *Manager) CopyOut(ctx context.Context, h *sandbox.Handle, remotePath, localPath string) error {
	m.record("copy_out", h.Name, remotePath)
	if h.State == sandbox.StateAbsent || h.State == sandbox.StateStopped {
		return fmt.Errorf("%w: cannot copy from %s sandbox %s", sandbox.ErrInvalidTransition, h.State, h.Name)
	}

	m.mu.Lock()
	content, ok := m.files[remotePath]
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("%s: %w", remotePath, sandbox.ErrNotFound)
	}

	if err := os.MkdirAll(filepath.Dir(localPath), 0755); err != nil {
		return fmt.Errorf("creating local dir: %w", err)
	}
	if err := os.WriteFile(localPath, content, 0644); err != nil {
		return fmt.Errorf("writing %s: %w", localPath, err)
	}
	slog.Info("Copied file out of sandbox", "name", h.Name, "from", remotePath, "to", localPath, "bytes", len(content))
	return nil
}

func (m *Manager) Destroy(ctx context.Context, h *sandbox.Handle) error {
	m.record("destroy", h.Name, "")
	if h.State == sandbox.StateStopped {
		return nil
	}
	m.mu.Lock()
	delete(m.live, h.Name)
	m.mu.Unlock()
	return h.Advance(sandbox.StateStopped)
}

func (m *Manager) Close() error { return nil }
