// Package jsonl implements store.Manager as an append-only JSONL file.
package jsonl

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/nstogner/selfimprove/pkg/store"
)

// FileName is the history file created in the root directory.
const FileName = "runs.jsonl"

// Manager implements store.Manager using a JSONL file.
type Manager struct {
	path string
	mu   sync.Mutex
}

var _ store.Manager = (*Manager)(nil)

func NewManager(rootDir string) *Manager {
	return &Manager{path: filepath.Join(rootDir, FileName)}
}

// Path returns the history file location.
func (m *Manager) Path() string { return m.path }

func (m *Manager) Append(r store.Run) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encoding run %s: %w", r.ID, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(m.path), 0755); err != nil {
		return err
	}
	f, err := os.OpenFile(m.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("opening run history: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("writing run history: %w", err)
	}
	return nil
}

func (m *Manager) List() ([]store.Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	f, err := os.Open(m.path)
	if os.IsNotExist(err) {
		return []store.Run{}, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	runs := []store.Run{}
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		if len(scanner.Bytes()) == 0 {
			continue
		}
		var r store.Run
		if err := json.Unmarshal(scanner.Bytes(), &r); err != nil {
			slog.Warn("Skipping bad run history line", "path", m.path, "line", line, "error", err)
			continue
		}
		runs = append(runs, r)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	sort.SliceStable(runs, func(i, j int) bool {
		return runs[i].StartedAt.After(runs[j].StartedAt)
	})
	return runs, nil
}

func (m *Manager) Get(id string) (store.Run, error) {
	runs, err := m.List()
	if err != nil {
		return store.Run{}, err
	}
	for _, r := range runs {
		if r.ID == id {
			return r, nil
		}
	}
	return store.Run{}, fmt.Errorf("%s: %w", id, store.ErrNotFound)
}
