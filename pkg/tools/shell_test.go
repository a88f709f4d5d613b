package tools

import (
	"context"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestShellTool_Success(t *testing.T) {
	sh := &ShellTool{}
	out := sh.Invoke(context.Background(), map[string]any{"command": "echo 'hello world'"})
	assert.Equal(t, "hello world", out.Text)
}

func TestShellTool_StderrOnSuccessIsPassedThrough(t *testing.T) {
	sh := &ShellTool{}
	out := sh.Run(context.Background(), "echo out; echo warn >&2")
	assert.Equal(t, "out\nError:\nwarn", out)
}

func TestShellTool_Failure(t *testing.T) {
	sh := &ShellTool{}
	out := sh.Run(context.Background(), "ls /nonexistent/directory")
	assert.True(t, strings.HasPrefix(out, "Error: "), out)
	assert.Contains(t, out, "/nonexistent/directory")
}

func TestShellTool_FailureWithoutStderrUsesEngineError(t *testing.T) {
	sh := &ShellTool{}
	out := sh.Run(context.Background(), "exit 3")
	assert.Equal(t, "Error: exit status 3", out)
}

func TestShellTool_Timeout(t *testing.T) {
	sh := &ShellTool{Timeout: 200 * time.Millisecond}
	start := time.Now()
	out := sh.Run(context.Background(), "sleep 5")
	assert.True(t, strings.HasPrefix(out, "Error:"), out)
	assert.Contains(t, out, "timed out")
	assert.Less(t, time.Since(start), 4*time.Second)
}

func TestShellTool_MissingCommand(t *testing.T) {
	sh := &ShellTool{}
	out := sh.Invoke(context.Background(), map[string]any{"command": 42})
	assert.Equal(t, "Error: argument 'command' is required and must be a string", out.Text)
}

func TestShellTool_NoNetwork(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("network namespaces are linux only")
	}
	sh := &ShellTool{NoNetwork: true}
	out := sh.Run(context.Background(), "tail -n +3 /proc/net/dev | cut -d: -f1 | tr -d ' '")
	if strings.HasPrefix(out, "Error: ") {
		t.Skipf("user namespaces unavailable: %s", out)
	}
	assert.Equal(t, "lo", out)
}
