package tools

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func invokeEditor(t *testing.T, input map[string]any) string {
	t.Helper()
	return (&FileTool{}).Invoke(context.Background(), input).Text
}

func TestFileTool_ViewEditCreate(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "file.txt")
	require.NoError(t, os.WriteFile(file, []byte("a\n\tb"), 0644))

	out := invokeEditor(t, map[string]any{"command": "view", "path": file})
	assert.Equal(t, "Here's the result of running `cat -n` on "+file+":\n     1\ta\n     2\t    b\n", out)

	out = invokeEditor(t, map[string]any{"command": "edit", "path": file, "file_text": "new"})
	assert.Contains(t, out, "overwritten")
	data, err := os.ReadFile(file)
	require.NoError(t, err)
	assert.Equal(t, "new", string(data))

	newFile := filepath.Join(dir, "new.txt")
	out = invokeEditor(t, map[string]any{"command": "create", "path": newFile, "file_text": "data"})
	assert.Equal(t, "File created successfully at: "+newFile, out)
	data, err = os.ReadFile(newFile)
	require.NoError(t, err)
	assert.Equal(t, "data", string(data))
}

func TestFileTool_Errors(t *testing.T) {
	dir := t.TempDir()
	existing := filepath.Join(dir, "exists.txt")
	require.NoError(t, os.WriteFile(existing, []byte("x"), 0644))
	missing := filepath.Join(dir, "missing.txt")

	tests := []struct {
		name  string
		input map[string]any
		want  string
	}{
		{
			name:  "relative path checked first",
			input: map[string]any{"command": "bogus", "path": "rel/path"},
			want:  "Error: The path rel/path is not an absolute path (must start with '/')",
		},
		{
			name:  "view missing",
			input: map[string]any{"command": "view", "path": missing},
			want:  "Error: The path " + missing + " does not exist.",
		},
		{
			name:  "create existing",
			input: map[string]any{"command": "create", "path": existing, "file_text": "y"},
			want:  "Error: Cannot create new file; " + existing + " already exists.",
		},
		{
			name:  "create without text",
			input: map[string]any{"command": "create", "path": missing},
			want:  "Error: Missing required `file_text` for create command.",
		},
		{
			name:  "edit missing",
			input: map[string]any{"command": "edit", "path": missing, "file_text": "y"},
			want:  "Error: The file " + missing + " does not exist.",
		},
		{
			name:  "edit directory",
			input: map[string]any{"command": "edit", "path": dir, "file_text": "y"},
			want:  "Error: " + dir + " is a directory and cannot be edited as a file.",
		},
		{
			name:  "edit without text",
			input: map[string]any{"command": "edit", "path": existing},
			want:  "Error: Missing required `file_text` for edit command.",
		},
		{
			name:  "unknown command",
			input: map[string]any{"command": "str_replace", "path": existing},
			want:  "Error: Unknown or unsupported command: str_replace",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, invokeEditor(t, tt.input))
		})
	}

	data, err := os.ReadFile(existing)
	require.NoError(t, err)
	assert.Equal(t, "x", string(data), "failed create must not touch the file")
}

func TestFileTool_ViewDirectoryTwoLevels(t *testing.T) {
	dir := t.TempDir()
	mk := func(rel string) {
		p := filepath.Join(dir, rel)
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0755))
		require.NoError(t, os.WriteFile(p, []byte("x"), 0644))
	}
	mk("top.txt")
	mk("pkg/inner.go")
	mk("pkg/deeper/too_deep.go")
	mk(".git/config")
	mk("pkg/.hidden")

	out := invokeEditor(t, map[string]any{"command": "view", "path": dir})
	lines := strings.Split(out, "\n")
	require.NotEmpty(t, lines)
	assert.Equal(t, "Here's the files and directories up to 2 levels deep in "+dir+", excluding hidden items:", lines[0])
	assert.ElementsMatch(t, []string{
		filepath.Join(dir, "pkg"),
		filepath.Join(dir, "pkg", "deeper"),
		filepath.Join(dir, "pkg", "inner.go"),
		filepath.Join(dir, "top.txt"),
	}, lines[1:])
}

func TestFileTool_ViewTruncatesLongFiles(t *testing.T) {
	file := filepath.Join(t.TempDir(), "big.txt")
	require.NoError(t, os.WriteFile(file, []byte(strings.Repeat("a", MaxViewChars+500)), 0644))

	out := invokeEditor(t, map[string]any{"command": "view", "path": file})
	want := "Here's the result of running `cat -n` on " + file + ":\n" +
		"     1\t" + strings.Repeat("a", MaxViewChars) + "\n" +
		"     2\t<response clipped>\n"
	assert.Equal(t, want, out)
}
