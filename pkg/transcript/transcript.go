// Package transcript writes the human-readable chat history of an agent run.
package transcript

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/nstogner/selfimprove/pkg/models"
)

// Writer appends conversation messages to a markdown file.
type Writer struct {
	mu   sync.Mutex
	file io.WriteCloser
}

// Open creates (or appends to) the transcript at path.
func Open(path string) (*Writer, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create transcript dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open transcript: %w", err)
	}
	return NewWriter(f), nil
}

// NewWriter writes the transcript to w. Close closes w.
func NewWriter(w io.WriteCloser) *Writer {
	return &Writer{file: w}
}

// Header writes a top-level title with a timestamp.
func (w *Writer) Header(title string) error {
	return w.write(fmt.Sprintf("# %s\n\n_%s_\n\n", title, time.Now().UTC().Format(time.RFC3339)))
}

// Record appends msg as its own section.
func (w *Writer) Record(msg models.Message) error {
	return w.write(fmt.Sprintf("## %s\n\n%s\n\n", roleTitle(msg.Role), strings.TrimRight(msg.Content, "\n")))
}

// Note appends a free-form line.
func (w *Writer) Note(format string, args ...any) error {
	return w.write(fmt.Sprintf("> "+format+"\n\n", args...))
}

func (w *Writer) write(s string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, err := io.WriteString(w.file, s); err != nil {
		return fmt.Errorf("write transcript: %w", err)
	}
	return nil
}

// Close closes the underlying file.
func (w *Writer) Close() error {
	if w == nil || w.file == nil {
		return nil
	}
	return w.file.Close()
}

func roleTitle(r models.Role) string {
	switch r {
	case models.RoleUser:
		return "User"
	case models.RoleAssistant:
		return "Assistant"
	case models.RoleSystem:
		return "System"
	}
	return string(r)
}
