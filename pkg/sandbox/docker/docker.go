// Package docker implements sandbox.Manager on the local Docker daemon.
package docker

import (
	"archive/tar"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/docker/go-connections/nat"
	"github.com/nstogner/selfimprove/pkg/sandbox"
)

const (
	// LabelManager identifies containers created by this package.
	LabelManager = "manager"
	// LabelManagerValue is the value of the manager label.
	LabelManagerValue = "selfimprove"
	LabelRunID        = sandbox.LabelRunID

	stopTimeoutSeconds = 10
)

// DefaultCmd keeps the container alive so commands can be exec'd into it.
var DefaultCmd = []string{"tail", "-f", "/dev/null"}

// Manager implements sandbox.Manager using Docker containers.
type Manager struct {
	client *client.Client
}

var _ sandbox.Manager = (*Manager)(nil)

// New creates a manager from the DOCKER_* environment.
func New() (*Manager, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("creating docker client: %w", err)
	}
	return &Manager{client: cli}, nil
}

func (m *Manager) Close() error {
	return m.client.Close()
}

func (m *Manager) EnsureClean(ctx context.Context, name string) error {
	containers, err := m.client.ContainerList(ctx, types.ContainerListOptions{
		All:     true,
		Filters: filters.NewArgs(filters.Arg("name", "^/"+name+"$")),
	})
	if err != nil {
		return fmt.Errorf("listing containers named %s: %w", name, err)
	}
	for _, c := range containers {
		slog.Info("Removing existing container", "name", name, "id", c.ID, "state", c.State)
		if err := m.client.ContainerRemove(ctx, c.ID, types.ContainerRemoveOptions{Force: true}); err != nil && !client.IsErrNotFound(err) {
			return fmt.Errorf("removing container %s: %w", name, err)
		}
	}
	return nil
}

func (m *Manager) Create(ctx context.Context, spec sandbox.Spec) (*sandbox.Handle, error) {
	if _, _, err := m.client.ImageInspectWithRaw(ctx, spec.Image); err != nil {
		return nil, fmt.Errorf("sandbox image '%s' not found, build it first: %w", spec.Image, err)
	}

	exposed, bindings, err := nat.ParsePortSpecs(spec.Publish)
	if err != nil {
		return nil, fmt.Errorf("parsing published ports: %w", err)
	}

	labels := map[string]string{LabelManager: LabelManagerValue}
	for k, v := range spec.Labels {
		labels[k] = v
	}
	cmd := spec.Cmd
	if len(cmd) == 0 {
		cmd = DefaultCmd
	}

	cfg := &container.Config{
		Image:        spec.Image,
		Cmd:          cmd,
		WorkingDir:   spec.WorkDir,
		Labels:       labels,
		ExposedPorts: nat.PortSet(exposed),
	}
	hostCfg := &container.HostConfig{
		PortBindings: nat.PortMap(bindings),
	}

	resp, err := m.client.ContainerCreate(ctx, cfg, hostCfg, nil, nil, spec.Name)
	if err != nil {
		return nil, fmt.Errorf("creating container: %w", err)
	}
	for _, w := range resp.Warnings {
		slog.Warn("Container create warning", "name", spec.Name, "warning", w)
	}

	h := &sandbox.Handle{ID: resp.ID, Name: spec.Name, WorkDir: spec.WorkDir}
	if err := h.Advance(sandbox.StateCreated); err != nil {
		return nil, err
	}
	slog.Info("Sandbox created", "name", spec.Name, "id", resp.ID, "image", spec.Image)
	return h, nil
}

func (m *Manager) Start(ctx context.Context, h *sandbox.Handle) error {
	if err := h.Require(sandbox.StateCreated); err != nil {
		return err
	}
	if err := m.client.ContainerStart(ctx, h.ID, types.ContainerStartOptions{}); err != nil {
		return fmt.Errorf("starting container: %w", err)
	}
	slog.Info("Sandbox started", "name", h.Name)
	return h.Advance(sandbox.StateRunning)
}

func (m *Manager) Exec(ctx context.Context, h *sandbox.Handle, command string, observer sandbox.Observer) (sandbox.ExecResult, error) {
	if err := h.Require(sandbox.StateRunning); err != nil {
		return sandbox.ExecResult{}, err
	}

	slog.Debug("Exec in sandbox", "name", h.Name, "command", command)
	created, err := m.client.ContainerExecCreate(ctx, h.ID, types.ExecConfig{
		Cmd:          []string{"sh", "-lc", command},
		WorkingDir:   h.WorkDir,
		AttachStdout: true,
		AttachStderr: true,
	})
	if err != nil {
		return sandbox.ExecResult{}, fmt.Errorf("creating exec: %w", err)
	}

	attach, err := m.client.ContainerExecAttach(ctx, created.ID, types.ExecStartCheck{})
	if err != nil {
		return sandbox.ExecResult{}, fmt.Errorf("attaching exec: %w", err)
	}
	defer attach.Close()

	out := &chunkWriter{observer: observer}
	copyErr := make(chan error, 1)
	go func() {
		_, err := stdcopy.StdCopy(out, out, attach.Reader)
		copyErr <- err
	}()

	select {
	case err := <-copyErr:
		if err != nil {
			return sandbox.ExecResult{Output: out.String()}, fmt.Errorf("reading exec output: %w", err)
		}
	case <-ctx.Done():
		// Closing the connection unblocks StdCopy. The process itself keeps
		// running until the container is destroyed.
		attach.Close()
		<-copyErr
		return sandbox.ExecResult{Output: out.String()}, ctx.Err()
	}

	inspect, err := m.client.ContainerExecInspect(ctx, created.ID)
	if err != nil {
		return sandbox.ExecResult{Output: out.String()}, fmt.Errorf("inspecting exec: %w", err)
	}
	res := sandbox.ExecResult{Output: out.String(), ExitCode: inspect.ExitCode}
	if res.ExitCode != 0 {
		slog.Debug("Exec exited nonzero", "name", h.Name, "exitCode", res.ExitCode)
	}
	return res, nil
}

func (m *Manager) CopyOut(ctx context.Context, h *sandbox.Handle, remotePath, localPath string) error {
	if h.State == sandbox.StateAbsent || h.State == sandbox.StateStopped {
		return fmt.Errorf("%w: cannot copy from %s sandbox %s", sandbox.ErrInvalidTransition, h.State, h.Name)
	}

	rc, _, err := m.client.CopyFromContainer(ctx, h.ID, remotePath)
	if err != nil {
		if client.IsErrNotFound(err) {
			return fmt.Errorf("%s: %w", remotePath, sandbox.ErrNotFound)
		}
		return fmt.Errorf("copying %s from container: %w", remotePath, err)
	}
	defer rc.Close()

	tr := tar.NewReader(rc)
	hdr, err := tr.Next()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%s: %w", remotePath, sandbox.ErrNotFound)
		}
		return fmt.Errorf("reading archive for %s: %w", remotePath, err)
	}
	if hdr.Typeflag != tar.TypeReg {
		return fmt.Errorf("%s is not a regular file", remotePath)
	}

	if err := os.MkdirAll(filepath.Dir(localPath), 0755); err != nil {
		return fmt.Errorf("creating local dir: %w", err)
	}
	f, err := os.Create(localPath)
	if err != nil {
		return fmt.Errorf("creating %s: %w", localPath, err)
	}
	defer f.Close()

	n, err := io.Copy(f, tr)
	if err != nil {
		return fmt.Errorf("writing %s: %w", localPath, err)
	}
	slog.Info("Copied file out of sandbox", "name", h.Name, "from", remotePath, "to", localPath, "bytes", n)
	return nil
}

func (m *Manager) Destroy(ctx context.Context, h *sandbox.Handle) error {
	if h.State == sandbox.StateStopped {
		return nil
	}

	timeout := stopTimeoutSeconds
	if h.State == sandbox.StateRunning {
		if err := m.client.ContainerStop(ctx, h.ID, container.StopOptions{Timeout: &timeout}); err != nil && !client.IsErrNotFound(err) {
			slog.Warn("Failed to stop container", "name", h.Name, "error", err)
		}
	}
	if err := m.client.ContainerRemove(ctx, h.ID, types.ContainerRemoveOptions{Force: true}); err != nil && !client.IsErrNotFound(err) {
		return fmt.Errorf("removing container %s: %w", h.Name, err)
	}
	slog.Info("Sandbox destroyed", "name", h.Name)
	return h.Advance(sandbox.StateStopped)
}

// ListManaged returns the names of all containers carrying the manager
// label, optionally narrowed to a run id.
func (m *Manager) ListManaged(ctx context.Context, runID string) ([]string, error) {
	args := filters.NewArgs(filters.Arg("label", LabelManager+"="+LabelManagerValue))
	if runID != "" {
		args.Add("label", LabelRunID+"="+runID)
	}
	containers, err := m.client.ContainerList(ctx, types.ContainerListOptions{All: true, Filters: args})
	if err != nil {
		return nil, fmt.Errorf("listing managed containers: %w", err)
	}
	var names []string
	for _, c := range containers {
		for _, n := range c.Names {
			names = append(names, strings.TrimPrefix(n, "/"))
		}
	}
	return names, nil
}

// chunkWriter buffers exec output and forwards each chunk to an observer.
type chunkWriter struct {
	mu       sync.Mutex
	buf      strings.Builder
	observer sandbox.Observer
}

func (w *chunkWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.buf.Write(p)
	if w.observer != nil {
		w.observer(string(p))
	}
	return len(p), nil
}

func (w *chunkWriter) String() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.buf.String()
}
