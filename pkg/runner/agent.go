package runner

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/nstogner/selfimprove/pkg/conversation"
	"github.com/nstogner/selfimprove/pkg/gitutil"
	"github.com/nstogner/selfimprove/pkg/models"
	"github.com/nstogner/selfimprove/pkg/tools"
	"github.com/nstogner/selfimprove/pkg/transcript"
)

// PatchFileName is the name of the diff written to the output directory.
const PatchFileName = "model_patch.diff"

const gitTimeout = 2 * time.Minute

// Agent solves one problem statement in a git repository and records the
// conversation and the resulting patch.
type Agent struct {
	ProblemStatement string
	TestDescription  string
	// RepoDir is the git checkout the agent works in.
	RepoDir    string
	BaseCommit string
	// ChatHistoryFile receives the markdown transcript.
	ChatHistoryFile string
	// OutDir receives model_patch.diff. Defaults to RepoDir.
	OutDir      string
	SelfImprove bool
	Loop        Config

	// openTranscript defaults to transcript.Open.
	openTranscript func(path string) (*transcript.Writer, error)
}

// Outcome summarizes a finished agent run.
type Outcome struct {
	Result    *Result
	PatchPath string
	Patch     gitutil.PatchStats
}

// Forward runs the dispatch loop on the problem and writes the patch.
func (a *Agent) Forward(ctx context.Context, provider models.Provider, registry *tools.Registry) (*Outcome, error) {
	open := a.openTranscript
	if open == nil {
		open = transcript.Open
	}
	tw, err := open(a.ChatHistoryFile)
	if err != nil {
		return nil, err
	}
	defer tw.Close()

	if err := tw.Header("Coding agent run"); err != nil {
		return nil, err
	}

	cfg := a.Loop
	if cfg.System == "" {
		cfg.System = BuildSystemMessage(registry.Descriptors())
	}
	loop := NewLoop(conversation.NewDriver(provider), registry, cfg, WithObserver(func(m models.Message) {
		if err := tw.Record(m); err != nil {
			slog.Warn("Failed to record message", "error", err)
		}
	}))

	instruction := BuildInstruction(a.RepoDir, a.ProblemStatement, a.TestDescription, a.SelfImprove)
	res, runErr := loop.Run(ctx, instruction)
	if err := tw.Note("Loop finished: state=%s reason=%s turns=%d tool_calls=%d", res.State, res.Reason, res.Turns, res.ToolCalls); err != nil {
		slog.Warn("Failed to record loop summary", "error", err)
	}
	if runErr != nil {
		slog.Error("Dispatch loop failed", "error", runErr, "turns", res.Turns)
	}

	out := &Outcome{Result: res}
	// The patch is written even after a failed loop so partial work is kept.
	// A fresh context lets this succeed after a deadline.
	patchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), gitTimeout)
	defer cancel()
	if err := a.writePatch(patchCtx, out); err != nil {
		if runErr != nil {
			return out, fmt.Errorf("%w (writing patch: %v)", runErr, err)
		}
		return out, err
	}
	return out, runErr
}

func (a *Agent) writePatch(ctx context.Context, out *Outcome) error {
	patch, err := gitutil.DiffVersusCommit(ctx, a.RepoDir, a.BaseCommit)
	if err != nil {
		return fmt.Errorf("diff versus %s: %w", a.BaseCommit, err)
	}

	outDir := a.OutDir
	if outDir == "" {
		outDir = a.RepoDir
	}
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	out.PatchPath = filepath.Join(outDir, PatchFileName)
	if err := os.WriteFile(out.PatchPath, []byte(patch), 0644); err != nil {
		return fmt.Errorf("write patch: %w", err)
	}

	stats, err := gitutil.ParsePatchStats([]byte(patch))
	if err != nil {
		slog.Warn("Failed to parse patch stats", "error", err)
	}
	out.Patch = stats
	slog.Info("Patch written", "path", out.PatchPath, "files", len(stats.Files), "added", stats.Added, "deleted", stats.Deleted)
	return nil
}
