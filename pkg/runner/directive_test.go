package runner

import (
	"testing"

	"github.com/nstogner/selfimprove/pkg/tools"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDirective(t *testing.T) {
	tests := []struct {
		name      string
		reply     string
		wantTool  string
		wantInput map[string]any
		wantErr   string
	}{
		{
			name:  "no directive",
			reply: "All done, the tests pass now.",
		},
		{
			name:      "simple",
			reply:     "Let me look.\n<tool_use>\n{\"tool_name\": \"bash\", \"tool_input\": {\"command\": \"ls\"}}\n</tool_use>",
			wantTool:  "bash",
			wantInput: map[string]any{"command": "ls"},
		},
		{
			name:      "missing input",
			reply:     `<tool_use>{"tool_name": "bash"}</tool_use>`,
			wantTool:  "bash",
			wantInput: map[string]any{},
		},
		{
			name:      "first of several",
			reply:     `<tool_use>{"tool_name": "a"}</tool_use> then <tool_use>{"tool_name": "b"}</tool_use>`,
			wantTool:  "a",
			wantInput: map[string]any{},
		},
		{
			name:    "single quotes",
			reply:   `<tool_use>{'tool_name': 'bash'}</tool_use>`,
			wantErr: "invalid JSON",
		},
		{
			name:    "trailing data",
			reply:   `<tool_use>{"tool_name": "bash"} {"tool_name": "x"}</tool_use>`,
			wantErr: "trailing data",
		},
		{
			name:    "missing tool name",
			reply:   `<tool_use>{"tool_input": {"command": "ls"}}</tool_use>`,
			wantErr: "missing tool_name",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inv, err := ParseDirective(tt.reply)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				assert.Nil(t, inv)
				return
			}
			require.NoError(t, err)
			if tt.wantTool == "" {
				assert.Nil(t, inv)
				return
			}
			require.NotNil(t, inv)
			assert.Equal(t, tt.wantTool, inv.ToolName)
			assert.Equal(t, tt.wantInput, inv.Input)
		})
	}
}

func TestFormatToolResult(t *testing.T) {
	inv := &Invocation{ToolName: "bash", Input: map[string]any{"command": "ls"}}
	got := FormatToolResult(inv, tools.Result{Text: "main.go"})
	assert.Equal(t, "Tool Used: bash\nTool Input: {\"command\":\"ls\"}\nTool Result: main.go", got)
}
