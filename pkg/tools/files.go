package tools

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

const (
	ToolNameEditor = "editor"
	// MaxViewChars is the number of characters shown before a file view is clipped.
	MaxViewChars  = 10000
	clippedMarker = "\n<response clipped>"
)

// FileTool views, creates and overwrites files addressed by absolute path.
type FileTool struct{}

func (t *FileTool) Descriptor() Descriptor {
	return Descriptor{
		Name: ToolNameEditor,
		Description: "Custom editing tool for viewing, creating and editing files.\n" +
			"Use absolute paths when specifying the file.\n" +
			"* view: show a file with line numbers, or list a directory up to 2 levels deep.\n" +
			"* create: write file_text to a new file; fails if the path exists.\n" +
			"* edit: overwrite an existing file entirely with file_text.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"command": map[string]any{
					"type":        "string",
					"enum":        []string{"view", "create", "edit"},
					"description": "The command to run.",
				},
				"path": map[string]any{
					"type":        "string",
					"description": "Absolute file path.",
				},
				"file_text": map[string]any{
					"type":        "string",
					"description": "Content for create or edit commands.",
				},
			},
			"required": []string{"command", "path"},
		},
	}
}

func (t *FileTool) Invoke(ctx context.Context, input map[string]any) Result {
	command, _ := input["command"].(string)
	path, _ := input["path"].(string)
	var fileText *string
	if s, ok := input["file_text"].(string); ok {
		fileText = &s
	}

	out, err := t.run(command, path, fileText)
	if err != nil {
		slog.Warn("Editor command failed", "command", command, "path", path, "error", err)
		return Errorf("%v", err)
	}
	return Result{Text: out}
}

func (t *FileTool) run(command, path string, fileText *string) (string, error) {
	if err := validatePath(command, path); err != nil {
		return "", err
	}

	switch command {
	case "view":
		return viewPath(path)
	case "create":
		if fileText == nil {
			return "", fmt.Errorf("Missing required `file_text` for create command.")
		}
		if err := writeFile(path, *fileText); err != nil {
			return "", err
		}
		return fmt.Sprintf("File created successfully at: %s", path), nil
	case "edit":
		if fileText == nil {
			return "", fmt.Errorf("Missing required `file_text` for edit command.")
		}
		if err := writeFile(path, *fileText); err != nil {
			return "", err
		}
		return fmt.Sprintf("File at %s has been overwritten with new content.", path), nil
	}
	return "", fmt.Errorf("Unknown or unsupported command: %s", command)
}

func validatePath(command, path string) error {
	if !filepath.IsAbs(path) {
		return fmt.Errorf("The path %s is not an absolute path (must start with '/')", path)
	}

	info, statErr := os.Lstat(path)
	exists := statErr == nil

	switch command {
	case "view":
		if !exists {
			return fmt.Errorf("The path %s does not exist.", path)
		}
	case "create":
		if exists {
			return fmt.Errorf("Cannot create new file; %s already exists.", path)
		}
	case "edit":
		if !exists {
			return fmt.Errorf("The file %s does not exist.", path)
		}
		if info.IsDir() {
			return fmt.Errorf("%s is a directory and cannot be edited as a file.", path)
		}
	default:
		return fmt.Errorf("Unknown or unsupported command: %s", command)
	}
	return nil
}

func writeFile(path, content string) error {
	slog.Info("Writing file", "path", path, "size", len(content))
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directories: %w", err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	return nil
}

func viewPath(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", err
	}
	if !info.IsDir() {
		data, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("failed to read file: %w", err)
		}
		return formatFile(string(data), path), nil
	}

	entries, err := listTwoLevels(path)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Here's the files and directories up to 2 levels deep in %s, excluding hidden items:\n", path) +
		strings.Join(entries, "\n"), nil
}

// listTwoLevels lists dir and the contents of its immediate subdirectories,
// skipping hidden entries at both levels.
func listTwoLevels(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list directory: %w", err)
	}

	var out []string
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".") {
			continue
		}
		full := filepath.Join(dir, e.Name())
		out = append(out, full)
		if !e.IsDir() {
			continue
		}
		sub, err := os.ReadDir(full)
		if err != nil {
			return nil, fmt.Errorf("failed to list directory: %w", err)
		}
		for _, s := range sub {
			if strings.HasPrefix(s.Name(), ".") {
				continue
			}
			out = append(out, filepath.Join(full, s.Name()))
		}
	}
	return out, nil
}

func truncate(content string) string {
	runes := []rune(content)
	if len(runes) <= MaxViewChars {
		return content
	}
	return string(runes[:MaxViewChars]) + clippedMarker
}

func formatFile(content, path string) string {
	content = strings.ReplaceAll(truncate(content), "\t", "    ")
	lines := strings.Split(content, "\n")

	var sb strings.Builder
	fmt.Fprintf(&sb, "Here's the result of running `cat -n` on %s:\n", path)
	for i, line := range lines {
		if i > 0 {
			sb.WriteByte('\n')
		}
		fmt.Fprintf(&sb, "%6d\t%s", i+1, line)
	}
	sb.WriteByte('\n')
	return sb.String()
}
