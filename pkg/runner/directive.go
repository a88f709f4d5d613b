package runner

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"

	"github.com/go-playground/validator/v10"
	"github.com/nstogner/selfimprove/pkg/tools"
)

var (
	directivePattern = regexp.MustCompile(`(?s)<tool_use>\s*(.*?)\s*</tool_use>`)
	validate         = validator.New(validator.WithRequiredStructEnabled())
)

// Invocation is a tool call parsed from a model reply.
type Invocation struct {
	ToolName string         `json:"tool_name" validate:"required"`
	Input    map[string]any `json:"tool_input"`
}

// ParseDirective extracts the tool-use directive from reply. It returns
// (nil, nil) when the reply contains no directive and an error when a
// directive is present but is not a valid tool call.
func ParseDirective(reply string) (*Invocation, error) {
	matches := directivePattern.FindAllStringSubmatch(reply, -1)
	if len(matches) == 0 {
		return nil, nil
	}
	if len(matches) > 1 {
		slog.Warn("Multiple tool_use blocks in reply, using the first", "count", len(matches))
	}

	dec := json.NewDecoder(bytes.NewReader([]byte(matches[0][1])))
	dec.UseNumber()
	var inv Invocation
	if err := dec.Decode(&inv); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	if dec.More() {
		return nil, fmt.Errorf("invalid JSON: trailing data after object")
	}
	if err := validate.Struct(inv); err != nil {
		return nil, fmt.Errorf("missing tool_name: %w", err)
	}
	if inv.Input == nil {
		inv.Input = map[string]any{}
	}
	return &inv, nil
}

// FormatToolResult renders the turn that reports a tool outcome to the model.
func FormatToolResult(inv *Invocation, res tools.Result) string {
	input, err := json.Marshal(inv.Input)
	if err != nil {
		input = []byte(fmt.Sprintf("%v", inv.Input))
	}
	return fmt.Sprintf("Tool Used: %s\nTool Input: %s\nTool Result: %s", inv.ToolName, input, res.Text)
}

// correctionMessage asks the model to resend a malformed directive.
func correctionMessage(err error) string {
	return fmt.Sprintf("Error: could not parse tool_use block: %v\n"+
		"Reply with exactly one block of the form\n<tool_use>\n"+
		`{"tool_name": "<name>", "tool_input": {...}}`+
		"\n</tool_use>\nusing strict JSON (double-quoted keys and strings).", err)
}
