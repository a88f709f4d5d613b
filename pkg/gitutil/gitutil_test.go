package gitutil

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const samplePatch = `diff --git a/parser.go b/parser.go
index 1111111..2222222 100644
--- a/parser.go
+++ b/parser.go
@@ -1,3 +1,3 @@
 package parser
-const limit = 10
+const limit = 11
 // end
diff --git a/notes.txt b/notes.txt
new file mode 100644
index 0000000..3333333
--- /dev/null
+++ b/notes.txt
@@ -0,0 +1,2 @@
+one
+two
`

func TestParsePatchStats(t *testing.T) {
	stats, err := ParsePatchStats([]byte(samplePatch))
	require.NoError(t, err)
	assert.Equal(t, []string{"parser.go", "notes.txt"}, stats.Files)
	assert.Equal(t, 3, stats.Added)
	assert.Equal(t, 1, stats.Deleted)
}

func TestParsePatchStats_Empty(t *testing.T) {
	stats, err := ParsePatchStats(nil)
	require.NoError(t, err)
	assert.Empty(t, stats.Files)
}

func TestDiffVersusCommit(t *testing.T) {
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not available")
	}
	ctx := context.Background()
	dir := t.TempDir()
	run := func(args ...string) {
		t.Helper()
		cmd := exec.Command("git", append([]string{"-C", dir}, args...)...)
		out, err := cmd.CombinedOutput()
		require.NoError(t, err, string(out))
	}
	run("init", "-q")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("one\n"), 0644))
	run("add", "a.txt")
	run("-c", "user.name=t", "-c", "user.email=t@e", "commit", "-q", "-m", "init")

	head, err := HeadCommit(ctx, dir)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("two\n"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "new.txt"), []byte("fresh\n"), 0644))

	patch, err := DiffVersusCommit(ctx, dir, head)
	require.NoError(t, err)
	assert.Contains(t, patch, "+two")
	assert.Contains(t, patch, "+fresh")

	stats, err := ParsePatchStats([]byte(patch))
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a.txt", "new.txt"}, stats.Files)
}
