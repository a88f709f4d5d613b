package tools

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/go-playground/validator/v10"
)

// Descriptor describes a tool to the model.
type Descriptor struct {
	Name        string         `json:"name" validate:"required"`
	Description string         `json:"description" validate:"required"`
	InputSchema map[string]any `json:"input_schema" validate:"required"`
}

// Result is the textual outcome of a tool invocation. Failures are encoded
// in Text (prefixed with "Error:"); tools never return Go errors.
type Result struct {
	Text string
}

// Errorf builds an error result.
func Errorf(format string, args ...any) Result {
	return Result{Text: "Error: " + fmt.Sprintf(format, args...)}
}

// Tool defines the interface that all agent tools must implement.
type Tool interface {
	Descriptor() Descriptor
	Invoke(ctx context.Context, input map[string]any) Result
}

// Registry holds a fixed set of tools keyed by name.
type Registry struct {
	tools map[string]Tool
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Build composes a registry from ts. Tools with invalid descriptors or
// duplicate names are rejected.
func Build(ts ...Tool) (*Registry, error) {
	r := &Registry{tools: make(map[string]Tool, len(ts))}
	for _, t := range ts {
		d := t.Descriptor()
		if err := validate.Struct(d); err != nil {
			slog.Error("Failed to load tool", "tool", d.Name, "descriptor", d, "error", err)
			return nil, fmt.Errorf("invalid descriptor for tool %q: %w", d.Name, err)
		}
		if _, ok := r.tools[d.Name]; ok {
			slog.Error("Failed to load tool", "tool", d.Name, "error", "duplicate name")
			return nil, fmt.Errorf("duplicate tool name %q", d.Name)
		}
		r.tools[d.Name] = t
	}
	return r, nil
}

// Get returns a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

// Descriptors returns the descriptors of all registered tools, sorted by name.
func (r *Registry) Descriptors() []Descriptor {
	list := make([]Descriptor, 0, len(r.tools))
	for _, t := range r.tools {
		list = append(list, t.Descriptor())
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Name < list[j].Name })
	return list
}

// Default returns the standard coding-agent registry: the shell and the
// file editor.
func Default(shell *ShellTool) *Registry {
	r, err := Build(shell, &FileTool{})
	if err != nil {
		// Both descriptors are static.
		panic(err)
	}
	return r
}
