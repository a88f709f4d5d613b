package tools

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"syscall"
	"time"
)

const (
	ToolNameShell = "bash"
	// DefaultShellTimeout bounds each shell command.
	DefaultShellTimeout = 120 * time.Second
)

// ShellTool runs commands with bash.
type ShellTool struct {
	// Timeout bounds each command. Zero means DefaultShellTimeout.
	Timeout time.Duration
	// Dir is the working directory. Empty means the process working directory.
	Dir string
	// NoNetwork runs each command in a fresh network namespace with only a
	// loopback device. Linux only; needs unprivileged user namespaces.
	NoNetwork bool
}

func (t *ShellTool) Descriptor() Descriptor {
	return Descriptor{
		Name: ToolNameShell,
		Description: "Run commands in a bash shell. Output is returned with any\n" +
			"stderr captured. This command does not have network access.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"command": map[string]any{
					"type":        "string",
					"description": "The bash command to run.",
				},
			},
			"required": []string{"command"},
		},
	}
}

func (t *ShellTool) Invoke(ctx context.Context, input map[string]any) Result {
	command, ok := input["command"].(string)
	if !ok {
		return Errorf("argument 'command' is required and must be a string")
	}
	return Result{Text: t.Run(ctx, command)}
}

// Run executes command and formats its outcome.
func (t *ShellTool) Run(ctx context.Context, command string) string {
	timeout := t.Timeout
	if timeout <= 0 {
		timeout = DefaultShellTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	slog.Info("Running shell command", "command", command, "timeout", timeout)

	cmd := exec.CommandContext(ctx, "/bin/bash", "-c", command)
	cmd.Dir = t.Dir
	// Kill the whole process group so children holding the pipes die too.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	if t.NoNetwork {
		if err := isolateNetwork(cmd.SysProcAttr); err != nil {
			return "Error: " + err.Error()
		}
	}
	cmd.Cancel = func() error {
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
	cmd.WaitDelay = time.Second

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	errOut := strings.TrimSpace(stderr.String())
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			err = fmt.Errorf("command timed out after %s", timeout)
		}
		slog.Warn("Shell command failed", "command", command, "error", err)
		if errOut != "" {
			return "Error: " + errOut
		}
		return "Error: " + err.Error()
	}

	result := strings.TrimSpace(stdout.String())
	if errOut != "" {
		result += "\nError:\n" + errOut
	}
	return strings.TrimSpace(result)
}
