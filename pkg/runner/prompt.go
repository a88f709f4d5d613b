package runner

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/nstogner/selfimprove/pkg/tools"
)

const systemPreamble = "You are a coding agent."

// BuildSystemMessage describes the available tools and the tool_use format.
func BuildSystemMessage(descs []tools.Descriptor) string {
	var sb strings.Builder
	sb.WriteString(systemPreamble)
	sb.WriteString("\n\nYou have access to the following tools:\n")
	for _, d := range descs {
		schema, _ := json.MarshalIndent(d, "", "  ")
		fmt.Fprintf(&sb, "\n%s\n", schema)
	}
	sb.WriteString("\nTo use a tool, include exactly one block in your reply:\n" +
		"<tool_use>\n" +
		`{"tool_name": "<tool name>", "tool_input": {<input fields>}}` +
		"\n</tool_use>\n" +
		"The block must contain strict JSON. The result of the tool is sent back to you in the next message.\n" +
		"When the task is complete, reply without any tool_use block.")
	return sb.String()
}

// BuildInstruction renders the task given to the coding agent.
func BuildInstruction(repoDir, problem, testDescription string, selfImprove bool) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "I have uploaded a code repository in %s. Help solve the following problem.\n\n", repoDir)
	fmt.Fprintf(&sb, "<problem_description>\n%s\n</problem_description>\n\n", problem)
	fmt.Fprintf(&sb, "<test_description>\n%s\n</test_description>", testDescription)
	if selfImprove {
		sb.WriteString("\n\nThe repository is the source code of this coding agent. " +
			"Improve it so that it resolves the problem above, keeping existing behaviour intact.")
	}
	return sb.String()
}
