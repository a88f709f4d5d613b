// Package pipeline runs one self-improvement step: diagnose a task, let the
// coding agent work on it inside a fresh sandbox, and collect what it produced.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/nstogner/selfimprove/pkg/diagnosis"
	"github.com/nstogner/selfimprove/pkg/gitutil"
	"github.com/nstogner/selfimprove/pkg/sandbox"
)

const (
	RunLogFileName      = "self_improve.log"
	ChatHistoryFileName = "self_evo.md"
	PatchFileName       = "model_patch.diff"

	DefaultNamePrefix      = "dgm-container-"
	DefaultSnapshotCommand = "git add --all && git -c user.name='u' -c user.email='u@e' commit -m 'tmp'"
	DefaultInstallCommand  = "python -m pip install -r requirements.txt"
)

// Status is the outcome of a run.
type Status string

const (
	StatusSucceeded   Status = "succeeded"
	StatusAborted     Status = "aborted"
	StatusAgentFailed Status = "agent_failed"
	StatusFailed      Status = "failed"
)

// Step names, as reported to OnStep and in metrics.
const (
	StepEnsureClean = "ensure_clean"
	StepCreate      = "create"
	StepStart       = "start"
	StepSnapshot    = "snapshot"
	StepInstall     = "install"
	StepDiagnose    = "diagnose"
	StepAgent       = "agent"
	StepCopyOut     = "copy_out"
	StepTeardown    = "teardown"
)

// Diagnoser produces a problem statement, or nil on failure.
type Diagnoser interface {
	Diagnose(ctx context.Context, task, commit string) *diagnosis.Result
}

var _ Diagnoser = (*diagnosis.Stage)(nil)

// Timeouts bound individual steps. Zero means no deadline.
type Timeouts struct {
	Setup    time.Duration
	Agent    time.Duration
	CopyOut  time.Duration
	Teardown time.Duration
}

// Config describes the sandbox and the commands run in it.
type Config struct {
	Image      string
	WorkDir    string
	NamePrefix string
	Publish    []string
	// SnapshotCommand commits the sandbox repository state before the agent runs.
	SnapshotCommand string
	// InstallCommand installs dependencies. Empty skips the step.
	InstallCommand string
	// AgentCommand is the agent entry point; flags are appended.
	AgentCommand string
	Timeouts     Timeouts
}

// Options are per-run inputs.
type Options struct {
	Task       string `validate:"required"`
	BaseCommit string
	OutputRoot string `validate:"required"`
	// OnStep is called when a step begins.
	OnStep func(step string)
	// OnOutput receives sandbox output chunks.
	OnOutput sandbox.Observer
}

// Artifacts are the host copies of what the agent produced. A path is empty
// when the file was not found in the sandbox.
type Artifacts struct {
	LogPath   string
	PatchPath string
	Patch     gitutil.PatchStats
}

// Report summarizes a run.
type Report struct {
	RunID      string
	Task       string
	Status     Status
	StartedAt  time.Time
	FinishedAt time.Time
	RunDir     string
	RunLogPath string
	Artifacts  *Artifacts
	AgentExit  int
	// ProblemStatement is the diagnosis, empty when aborted.
	ProblemStatement string
}

// Pipeline runs self-improvement steps against a sandbox manager.
type Pipeline struct {
	sandboxes sandbox.Manager
	diagnoser Diagnoser
	cfg       Config
	now       func() time.Time
}

var validate = validator.New(validator.WithRequiredStructEnabled())

func New(sandboxes sandbox.Manager, diagnoser Diagnoser, cfg Config) *Pipeline {
	if cfg.NamePrefix == "" {
		cfg.NamePrefix = DefaultNamePrefix
	}
	if cfg.WorkDir == "" {
		cfg.WorkDir = "/dgm"
	}
	if cfg.SnapshotCommand == "" {
		cfg.SnapshotCommand = DefaultSnapshotCommand
	}
	return &Pipeline{
		sandboxes: sandboxes,
		diagnoser: diagnoser,
		cfg:       cfg,
		now:       time.Now,
	}
}

// run holds the state of a single Run call.
type run struct {
	p       *Pipeline
	opts    Options
	log     *slog.Logger
	metrics *metrics
	report  *Report
	handle  *sandbox.Handle
}

// Run executes one self-improvement step. The returned error is set only
// for infrastructure failures; the report is returned in every case once
// the run directory exists.
func (p *Pipeline) Run(ctx context.Context, opts Options) (*Report, error) {
	if err := validate.Struct(opts); err != nil {
		return nil, fmt.Errorf("invalid run options: %w", err)
	}
	if opts.BaseCommit == "" {
		opts.BaseCommit = "HEAD"
	}

	runID := NewRunID(p.now())
	report := &Report{
		RunID:     runID,
		Task:      opts.Task,
		Status:    StatusFailed,
		StartedAt: p.now().UTC(),
		RunDir:    filepath.Join(opts.OutputRoot, runID),
	}
	if err := os.MkdirAll(report.RunDir, 0755); err != nil {
		return nil, fmt.Errorf("creating run dir: %w", err)
	}
	report.RunLogPath = filepath.Join(report.RunDir, RunLogFileName)
	logFile, err := os.OpenFile(report.RunLogPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("opening run log: %w", err)
	}
	defer logFile.Close()

	r := &run{
		p:       p,
		opts:    opts,
		log:     slog.New(slog.NewTextHandler(logFile, &slog.HandlerOptions{Level: slog.LevelDebug})).With("runID", runID),
		metrics: newMetrics(),
		report:  report,
	}
	r.log.Info("Self improvement step starting", "task", opts.Task, "baseCommit", opts.BaseCommit)
	slog.Info("Self improvement step starting", "runID", runID, "task", opts.Task, "runDir", report.RunDir)

	runErr := r.execute(ctx)
	if runErr != nil {
		report.Status = StatusFailed
		r.log.Error("Run failed", "error", runErr)
	}

	report.FinishedAt = p.now().UTC()
	r.metrics.runs.WithLabelValues(string(report.Status)).Inc()
	if err := r.metrics.writeTo(filepath.Join(report.RunDir, MetricsFileName)); err != nil {
		slog.Warn("Failed to write run metrics", "runID", runID, "error", err)
	}
	r.log.Info("Self improvement step finished", "status", report.Status)
	slog.Info("Self improvement step finished", "runID", runID, "status", report.Status)
	return report, runErr
}

func (r *run) execute(ctx context.Context) (err error) {
	cfg := r.p.cfg
	name := cfg.NamePrefix + r.report.RunID

	if err := r.step(ctx, StepEnsureClean, cfg.Timeouts.Setup, func(ctx context.Context) error {
		return r.p.sandboxes.EnsureClean(ctx, name)
	}); err != nil {
		return err
	}

	if err := r.step(ctx, StepCreate, cfg.Timeouts.Setup, func(ctx context.Context) error {
		h, err := r.p.sandboxes.Create(ctx, sandbox.Spec{
			Image:   cfg.Image,
			Name:    name,
			WorkDir: cfg.WorkDir,
			Publish: cfg.Publish,
			Labels:  map[string]string{sandbox.LabelRunID: r.report.RunID},
		})
		r.handle = h
		return err
	}); err != nil {
		return err
	}
	defer func() {
		if terr := r.teardown(ctx); terr != nil && err == nil {
			err = terr
		}
	}()

	if err := r.step(ctx, StepStart, cfg.Timeouts.Setup, func(ctx context.Context) error {
		return r.p.sandboxes.Start(ctx, r.handle)
	}); err != nil {
		return err
	}

	if _, err := r.exec(ctx, StepSnapshot, cfg.SnapshotCommand, cfg.Timeouts.Setup); err != nil {
		return err
	}
	if cfg.InstallCommand != "" {
		if _, err := r.exec(ctx, StepInstall, cfg.InstallCommand, cfg.Timeouts.Setup); err != nil {
			return err
		}
	}

	var diag *diagnosis.Result
	_ = r.step(ctx, StepDiagnose, 0, func(ctx context.Context) error {
		diag = r.p.diagnoser.Diagnose(ctx, r.opts.Task, r.opts.BaseCommit)
		return nil
	})
	if diag == nil {
		r.log.Warn("Problem diagnosis failed")
		r.report.Status = StatusAborted
		return nil
	}
	r.report.ProblemStatement = diag.ProblemStatement
	r.log.Info("Problem diagnosed", "problemStatement", diag.ProblemStatement)

	res, err := r.exec(ctx, StepAgent, r.agentCommand(diag.ProblemStatement), cfg.Timeouts.Agent)
	switch {
	case err == nil:
	case errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil:
		// The agent ran out of time; whatever it wrote so far is still collected.
		r.log.Warn("Agent timed out", "timeout", cfg.Timeouts.Agent)
		res.ExitCode = -1
	default:
		return err
	}
	r.report.AgentExit = res.ExitCode

	if err := r.step(ctx, StepCopyOut, cfg.Timeouts.CopyOut, r.collect); err != nil {
		return err
	}

	if res.ExitCode != 0 {
		r.report.Status = StatusAgentFailed
	} else {
		r.report.Status = StatusSucceeded
	}
	return nil
}

// step runs fn under its own deadline, logging and timing it.
func (r *run) step(ctx context.Context, name string, timeout time.Duration, fn func(context.Context) error) error {
	if r.opts.OnStep != nil {
		r.opts.OnStep(name)
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	r.log.Info("Step starting", "step", name)
	start := time.Now()
	err := fn(ctx)
	elapsed := time.Since(start)
	r.metrics.observeStep(name, elapsed)
	if err != nil {
		r.log.Error("Step failed", "step", name, "elapsed", elapsed, "error", err)
		return fmt.Errorf("%s: %w", name, err)
	}
	r.log.Info("Step finished", "step", name, "elapsed", elapsed)
	return nil
}

// exec runs command in the sandbox. A nonzero exit is logged and returned
// in the result; only stream failures are errors.
func (r *run) exec(ctx context.Context, name, command string, timeout time.Duration) (sandbox.ExecResult, error) {
	var res sandbox.ExecResult
	err := r.step(ctx, name, timeout, func(ctx context.Context) error {
		r.log.Debug("Executing command", "step", name, "command", command)
		var err error
		res, err = r.p.sandboxes.Exec(ctx, r.handle, command, func(chunk string) {
			if s := strings.TrimSpace(chunk); s != "" {
				r.log.Info("Output", "step", name, "text", s)
			}
			if r.opts.OnOutput != nil {
				r.opts.OnOutput(chunk)
			}
		})
		return err
	})
	if err != nil {
		return res, err
	}

	var exitErr *sandbox.ExitError
	if errors.As(res.Err(), &exitErr) {
		r.metrics.nonzeroExits.WithLabelValues(name).Inc()
		r.log.Warn("Command exited nonzero", "step", name, "exitCode", exitErr.Code)
	}
	return res, nil
}

func (r *run) agentCommand(problem string) string {
	workDir := strings.TrimSuffix(r.p.cfg.WorkDir, "/") + "/"
	args := []string{
		r.p.cfg.AgentCommand,
		"--problem-statement", ShellQuote(problem),
		"--git-dir", ShellQuote(workDir),
		"--chat-history-file", ShellQuote(path.Join(workDir, ChatHistoryFileName)),
		"--base-commit", ShellQuote(r.opts.BaseCommit),
		"--outdir", ShellQuote(workDir),
		"--self-improve",
	}
	return strings.Join(args, " ")
}

// collect copies the transcript and patch to the run directory.
func (r *run) collect(ctx context.Context) error {
	art := &Artifacts{}
	r.report.Artifacts = art

	copyOut := func(name string) (string, error) {
		remote := path.Join(r.p.cfg.WorkDir, name)
		local := filepath.Join(r.report.RunDir, name)
		err := r.p.sandboxes.CopyOut(ctx, r.handle, remote, local)
		if errors.Is(err, sandbox.ErrNotFound) {
			r.log.Warn("Artifact not produced", "path", remote)
			return "", nil
		}
		if err != nil {
			return "", err
		}
		r.log.Info("Copied artifact", "from", remote, "to", local)
		return local, nil
	}

	var err error
	if art.LogPath, err = copyOut(ChatHistoryFileName); err != nil {
		return err
	}
	if art.PatchPath, err = copyOut(PatchFileName); err != nil {
		return err
	}

	if art.PatchPath != "" {
		data, err := os.ReadFile(art.PatchPath)
		if err != nil {
			return fmt.Errorf("reading patch: %w", err)
		}
		if art.Patch, err = gitutil.ParsePatchStats(data); err != nil {
			r.log.Warn("Failed to parse patch", "error", err)
		}
		r.log.Info("Patch collected", "files", len(art.Patch.Files), "added", art.Patch.Added, "deleted", art.Patch.Deleted)
	}
	return nil
}

// teardown destroys the sandbox. It uses a context detached from
// cancellation so a cancelled run still cleans up.
func (r *run) teardown(ctx context.Context) error {
	if r.handle == nil {
		return nil
	}
	return r.step(context.WithoutCancel(ctx), StepTeardown, r.p.cfg.Timeouts.Teardown, func(ctx context.Context) error {
		return r.p.sandboxes.Destroy(ctx, r.handle)
	})
}

// ShellQuote quotes s for POSIX sh.
func ShellQuote(s string) string {
	if s == "" {
		return "''"
	}
	if strings.IndexFunc(s, needsQuoting) < 0 {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'"'"'`) + "'"
}

func needsQuoting(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return false
	}
	return !strings.ContainsRune("-_./:=@%+,", r)
}
