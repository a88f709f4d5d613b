package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/nstogner/selfimprove/pkg/conversation"
	"github.com/nstogner/selfimprove/pkg/diagnosis"
	"github.com/nstogner/selfimprove/pkg/pipeline"
	"github.com/nstogner/selfimprove/pkg/sandbox"
	"github.com/nstogner/selfimprove/pkg/sandbox/docker"
	"github.com/nstogner/selfimprove/pkg/sandbox/memory"
	"github.com/nstogner/selfimprove/pkg/store/jsonl"
)

type runOptions struct {
	task       string
	baseCommit string
	outputRoot string
	image      string
	noTUI      bool
	dryRun     bool
}

var (
	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFDF5")).
			Background(lipgloss.Color("#25A065")).
			Padding(0, 1)
	labelStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("5")).Bold(true)
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	okStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("2")).Bold(true)
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	warningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("3")).Bold(true)
)

func newRunCmd(root *rootOptions) *cobra.Command {
	o := &runOptions{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one self-improvement step in a fresh sandbox",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPipeline(cmd, root, o)
		},
	}
	f := cmd.Flags()
	f.StringVar(&o.task, "task", "django__django-10999", "benchmark task to diagnose")
	f.StringVar(&o.baseCommit, "base-commit", "", "commit the agent's patch is computed against (default HEAD)")
	f.StringVar(&o.outputRoot, "output-root", "", "directory for per-run output (overrides config)")
	f.StringVar(&o.image, "image", "", "sandbox image (overrides config)")
	f.BoolVar(&o.noTUI, "no-tui", false, "print plain progress even on a terminal")
	f.BoolVar(&o.dryRun, "dry-run", false, "use an in-memory sandbox instead of docker")
	return cmd
}

func runPipeline(cmd *cobra.Command, root *rootOptions, o *runOptions) error {
	useTUI := !o.noTUI && isatty.IsTerminal(os.Stdout.Fd())

	cfg, err := root.loadConfig()
	if err != nil {
		return err
	}
	if o.outputRoot != "" {
		cfg.OutputRoot = o.outputRoot
	}
	if o.image != "" {
		cfg.Sandbox.Image = o.image
	}
	if err := os.MkdirAll(cfg.OutputRoot, 0755); err != nil {
		return fmt.Errorf("creating output root: %w", err)
	}

	// The TUI owns the terminal, so logs go to a file.
	fallbackLog := ""
	if useTUI {
		fallbackLog = "selfimprove.log"
	}
	closer, err := root.setupLogging(fallbackLog)
	if err != nil {
		return err
	}
	defer closer.Close()

	ctx := cmd.Context()
	router, cleanup, err := newRouter(ctx, cfg.Model)
	if err != nil {
		return err
	}
	defer cleanup()

	var sandboxes sandbox.Manager
	if o.dryRun {
		sandboxes = memory.New()
	} else {
		d, err := docker.New()
		if err != nil {
			return err
		}
		sandboxes = d
	}
	defer sandboxes.Close()

	stage := diagnosis.New(conversation.NewDriver(router), cfg.Model.DiagnosisModel, cfg.Timeouts.Diagnosis)
	pl := pipeline.New(sandboxes, stage, pipeline.Config{
		Image:          cfg.Sandbox.Image,
		WorkDir:        cfg.Sandbox.WorkDir,
		NamePrefix:     cfg.Sandbox.NamePrefix,
		Publish:        cfg.Sandbox.Publish,
		InstallCommand: cfg.Sandbox.InstallCommand,
		AgentCommand:   cfg.Sandbox.AgentCommand,
		Timeouts: pipeline.Timeouts{
			Setup:    cfg.Timeouts.Setup,
			Agent:    cfg.Timeouts.Agent,
			CopyOut:  cfg.Timeouts.CopyOut,
			Teardown: cfg.Timeouts.Teardown,
		},
	})
	opts := pipeline.Options{
		Task:       o.task,
		BaseCommit: o.baseCommit,
		OutputRoot: cfg.OutputRoot,
	}

	var report *pipeline.Report
	if useTUI {
		report, err = runWithTUI(ctx, pl, opts)
	} else {
		report, err = runPlain(ctx, cmd.OutOrStdout(), pl, opts)
	}
	if report != nil {
		recordRun(jsonl.NewManager(cfg.OutputRoot), report, err)
		fmt.Fprintln(cmd.OutOrStdout(), renderReport(report))
	}
	return err
}

func runPlain(ctx context.Context, w io.Writer, pl *pipeline.Pipeline, opts pipeline.Options) (*pipeline.Report, error) {
	opts.OnStep = func(step string) {
		fmt.Fprintf(w, "==> %s\n", step)
	}
	opts.OnOutput = func(chunk string) {
		io.WriteString(w, chunk)
	}
	return pl.Run(ctx, opts)
}

func runWithTUI(ctx context.Context, pl *pipeline.Pipeline, opts pipeline.Options) (*pipeline.Report, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	m := newProgressModel(opts.Task, cancel)
	prog := tea.NewProgram(m)

	opts.OnStep = func(step string) { prog.Send(stepMsg(step)) }
	opts.OnOutput = func(chunk string) { prog.Send(outputMsg(chunk)) }

	done := make(chan runDoneMsg, 1)
	go func() {
		report, err := pl.Run(ctx, opts)
		msg := runDoneMsg{report: report, err: err}
		done <- msg
		prog.Send(msg)
	}()

	if _, err := prog.Run(); err != nil {
		cancel()
		res := <-done
		return res.report, fmt.Errorf("terminal UI: %w", err)
	}
	res := <-done
	return res.report, res.err
}

func renderReport(r *pipeline.Report) string {
	var sb strings.Builder
	status := string(r.Status)
	switch r.Status {
	case pipeline.StatusSucceeded:
		status = okStyle.Render(status)
	case pipeline.StatusAborted, pipeline.StatusAgentFailed:
		status = warningStyle.Render(status)
	default:
		status = errorStyle.Render(status)
	}

	fmt.Fprintf(&sb, "%s %s\n", labelStyle.Render("Run:"), r.RunID)
	fmt.Fprintf(&sb, "%s %s\n", labelStyle.Render("Status:"), status)
	fmt.Fprintf(&sb, "%s %s\n", labelStyle.Render("Log:"), r.RunLogPath)
	if r.ProblemStatement != "" {
		fmt.Fprintf(&sb, "%s %s\n", labelStyle.Render("Problem:"), r.ProblemStatement)
	}
	if r.Artifacts != nil {
		fmt.Fprintf(&sb, "%s %d\n", labelStyle.Render("Agent exit:"), r.AgentExit)
		if r.Artifacts.LogPath != "" {
			fmt.Fprintf(&sb, "%s %s\n", labelStyle.Render("Chat history:"), r.Artifacts.LogPath)
		}
		if r.Artifacts.PatchPath != "" {
			p := r.Artifacts.Patch
			fmt.Fprintf(&sb, "%s %s %s\n", labelStyle.Render("Patch:"), r.Artifacts.PatchPath,
				dimStyle.Render(fmt.Sprintf("(%d files, +%d -%d)", len(p.Files), p.Added, p.Deleted)))
		}
	}
	return strings.TrimRight(sb.String(), "\n")
}
