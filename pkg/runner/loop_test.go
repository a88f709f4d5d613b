package runner

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/nstogner/selfimprove/pkg/conversation"
	"github.com/nstogner/selfimprove/pkg/models"
	"github.com/nstogner/selfimprove/pkg/models/modeltest"
	"github.com/nstogner/selfimprove/pkg/tools"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const lsDirective = "I'll list the files.\n<tool_use>\n{\"tool_name\": \"bash\", \"tool_input\": {\"command\": \"ls\"}}\n</tool_use>"

func newTestLoop(t *testing.T, p models.Provider, cfg Config, opts ...Option) *Loop {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "parser.go"), []byte("package parser\n"), 0644))
	reg := tools.Default(&tools.ShellTool{Dir: dir})
	return NewLoop(conversation.NewDriver(p), reg, cfg, opts...)
}

func TestLoop_ToolCallThenFinish(t *testing.T) {
	p := modeltest.New(lsDirective, "The off-by-one is fixed.")
	var observed []models.Message
	l := newTestLoop(t, p, Config{Model: "test", System: "sys"}, WithObserver(func(m models.Message) {
		observed = append(observed, m)
	}))

	res, err := l.Run(context.Background(), "Fix off-by-one in parser")
	require.NoError(t, err)

	assert.Equal(t, StateDone, res.State)
	assert.Equal(t, ReasonNoDirective, res.Reason)
	assert.Equal(t, 2, res.Turns)
	assert.Equal(t, 1, res.ToolCalls)

	msgs := res.History.Messages()
	require.Len(t, msgs, 4)
	assert.Equal(t, models.Message{Role: models.RoleUser, Content: "Fix off-by-one in parser"}, msgs[0])
	assert.Equal(t, lsDirective, msgs[1].Content)
	assert.Equal(t, models.RoleUser, msgs[2].Role)
	assert.Equal(t, "Tool Used: bash\nTool Input: {\"command\":\"ls\"}\nTool Result: parser.go", msgs[2].Content)
	assert.Equal(t, "The off-by-one is fixed.", msgs[3].Content)
	assert.Equal(t, msgs, observed)

	reqs := p.Requests()
	require.Len(t, reqs, 2)
	assert.Equal(t, "sys", reqs[0].System)
	assert.Len(t, reqs[1].Messages, 3)
}

func TestLoop_UnknownTool(t *testing.T) {
	p := modeltest.New(`<tool_use>{"tool_name": "x", "tool_input": {}}</tool_use>`, "ok")
	l := newTestLoop(t, p, Config{})

	res, err := l.Run(context.Background(), "go")
	require.NoError(t, err)

	msgs := res.History.Messages()
	require.Len(t, msgs, 4)
	assert.Equal(t, "Tool Used: x\nTool Input: {}\nTool Result: Error: tool x not found", msgs[2].Content)
	assert.Equal(t, 1, res.ToolCalls)
}

func TestLoop_MalformedDirectiveGetsCorrection(t *testing.T) {
	p := modeltest.New(`<tool_use>{'tool_name': 'bash'}</tool_use>`, lsDirective, "done")
	l := newTestLoop(t, p, Config{})

	res, err := l.Run(context.Background(), "go")
	require.NoError(t, err)

	assert.Equal(t, ReasonNoDirective, res.Reason)
	assert.Equal(t, 1, res.ToolCalls)
	msgs := res.History.Messages()
	require.Len(t, msgs, 6)
	assert.True(t, strings.HasPrefix(msgs[2].Content, "Error: could not parse tool_use block"), msgs[2].Content)
	assert.True(t, strings.HasPrefix(msgs[4].Content, "Tool Used: bash"))
}

func TestLoop_MalformedDirectiveLimit(t *testing.T) {
	bad := `<tool_use>not json</tool_use>`
	p := modeltest.New(bad, bad, bad)
	l := newTestLoop(t, p, Config{MaxCorrections: 1})

	res, err := l.Run(context.Background(), "go")
	require.NoError(t, err)

	assert.Equal(t, StateDone, res.State)
	assert.Equal(t, ReasonMalformed, res.Reason)
	assert.Equal(t, 2, res.Turns)
	assert.Equal(t, 0, res.ToolCalls)
	assert.Equal(t, 4, res.History.Len())
}

func TestLoop_TurnLimit(t *testing.T) {
	p := modeltest.New(lsDirective, lsDirective, lsDirective)
	l := newTestLoop(t, p, Config{MaxTurns: 2})

	res, err := l.Run(context.Background(), "go")
	require.NoError(t, err)

	assert.Equal(t, ReasonTurnLimit, res.Reason)
	assert.Equal(t, 2, res.Turns)
	assert.Equal(t, 1, res.ToolCalls)
	// The last reply still requests a tool; it is never executed.
	last, ok := res.History.Last()
	require.True(t, ok)
	assert.Equal(t, lsDirective, last.Content)
	assert.Len(t, p.Requests(), 2)
}

func TestLoop_ProviderError(t *testing.T) {
	boom := errors.New("boom")
	l := newTestLoop(t, modeltest.Failing(boom), Config{})

	res, err := l.Run(context.Background(), "go")
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	var perr *models.ProviderError
	assert.ErrorAs(t, err, &perr)

	require.NotNil(t, res)
	assert.Equal(t, ReasonProviderFail, res.Reason)
	assert.Equal(t, 0, res.History.Len())
}

func TestLoop_ProviderErrorMidRunKeepsHistory(t *testing.T) {
	// Script runs out after the first reply.
	l := newTestLoop(t, modeltest.New(lsDirective), Config{})

	res, err := l.Run(context.Background(), "go")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "turn 2")
	assert.Equal(t, 2, res.History.Len())
	assert.Equal(t, 1, res.ToolCalls)
}

func TestLoop_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	l := newTestLoop(t, modeltest.New("never"), Config{})

	res, err := l.Run(ctx, "go")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, ReasonCancelled, res.Reason)
}
