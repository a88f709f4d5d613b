package transcript

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/nstogner/selfimprove/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriter_RecordsInOrder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "chat.md")
	w, err := Open(path)
	require.NoError(t, err)

	require.NoError(t, w.Record(models.Message{Role: models.RoleUser, Content: "fix it\n"}))
	require.NoError(t, w.Record(models.Message{Role: models.RoleAssistant, Content: "done"}))
	require.NoError(t, w.Note("stopped after %d turns", 2))
	require.NoError(t, w.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "## User\n\nfix it\n\n## Assistant\n\ndone\n\n> stopped after 2 turns\n\n", string(data))
}
