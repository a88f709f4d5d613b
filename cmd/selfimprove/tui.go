package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nstogner/selfimprove/pkg/pipeline"
)

// maxOutputBytes bounds the sandbox output kept for the viewport.
const maxOutputBytes = 256 * 1024

type stepMsg string
type outputMsg string
type runDoneMsg struct {
	report *pipeline.Report
	err    error
}

type progressModel struct {
	task       string
	cancel     context.CancelFunc
	spinner    spinner.Model
	viewport   viewport.Model
	completed  []string
	current    string
	output     string
	cancelling bool
	done       bool
	err        error
	width      int
}

func newProgressModel(task string, cancel context.CancelFunc) progressModel {
	s := spinner.New(
		spinner.WithSpinner(spinner.Dot),
		spinner.WithStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("205"))),
	)
	vp := viewport.New(80, 15)
	vp.SetContent(dimStyle.Render("Waiting for sandbox output..."))
	return progressModel{task: task, cancel: cancel, spinner: s, viewport: vp}
}

func (m progressModel) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m progressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.viewport.Width = msg.Width
		// Title, blank, steps (one per pipeline step), blank, footer.
		h := msg.Height - len(m.completed) - 7
		if h < 3 {
			h = 3
		}
		m.viewport.Height = h

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			if !m.cancelling {
				m.cancelling = true
				m.cancel()
			}
			return m, nil
		}

	case stepMsg:
		if m.current != "" {
			m.completed = append(m.completed, m.current)
		}
		m.current = string(msg)

	case outputMsg:
		m.output += string(msg)
		if len(m.output) > maxOutputBytes {
			m.output = m.output[len(m.output)-maxOutputBytes:]
		}
		m.viewport.SetContent(m.output)
		m.viewport.GotoBottom()

	case runDoneMsg:
		if m.current != "" {
			m.completed = append(m.completed, m.current)
			m.current = ""
		}
		m.done = true
		m.err = msg.err
		return m, tea.Quit

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)
	}

	var vpCmd tea.Cmd
	m.viewport, vpCmd = m.viewport.Update(msg)
	cmds = append(cmds, vpCmd)
	return m, tea.Batch(cmds...)
}

func (m progressModel) View() string {
	var steps []string
	for _, s := range m.completed {
		steps = append(steps, okStyle.Render("✓")+" "+s)
	}
	if m.current != "" {
		steps = append(steps, m.spinner.View()+" "+m.current)
	}

	footer := dimStyle.Render("Ctrl+C to cancel (the sandbox is still removed).")
	if m.cancelling {
		footer = warningStyle.Render("Cancelling, tearing down sandbox...")
	}
	if m.done && m.err != nil {
		footer = errorStyle.Render(fmt.Sprintf("Error: %v", m.err))
	}

	return lipgloss.JoinVertical(
		lipgloss.Left,
		titleStyle.Render("Self improvement: "+m.task),
		"",
		strings.Join(steps, "\n"),
		"",
		m.viewport.View(),
		footer,
	)
}
