package main

import (
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/nstogner/selfimprove/pkg/runner"
	"github.com/nstogner/selfimprove/pkg/tools"
)

type agentOptions struct {
	problemStatement string
	testDescription  string
	gitDir           string
	chatHistoryFile  string
	baseCommit       string
	outDir           string
	selfImprove      bool
	model            string
}

func newAgentCmd(root *rootOptions) *cobra.Command {
	o := &agentOptions{}
	cmd := &cobra.Command{
		Use:   "agent",
		Short: "Run the coding agent on a repository",
		Long: "Runs the tool-use loop against a git repository and writes the chat\n" +
			"history and model_patch.diff. This is the entry point invoked inside the sandbox.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAgent(cmd, root, o)
		},
	}
	f := cmd.Flags()
	f.StringVar(&o.problemStatement, "problem-statement", "", "the problem to solve")
	f.StringVar(&o.testDescription, "test-description", "", "how the fix will be tested")
	f.StringVar(&o.gitDir, "git-dir", "", "path to the git repository")
	f.StringVar(&o.chatHistoryFile, "chat-history-file", "", "markdown file to record the conversation in")
	f.StringVar(&o.baseCommit, "base-commit", "HEAD", "commit the patch is computed against")
	f.StringVar(&o.outDir, "outdir", "", "directory for model_patch.diff (defaults to --git-dir)")
	f.BoolVar(&o.selfImprove, "self-improve", false, "the repository is this agent's own source")
	f.StringVar(&o.model, "model", "", "model name (overrides config)")
	cmd.MarkFlagRequired("problem-statement")
	cmd.MarkFlagRequired("git-dir")
	return cmd
}

func runAgent(cmd *cobra.Command, root *rootOptions, o *agentOptions) error {
	closer, err := root.setupLogging("")
	if err != nil {
		return err
	}
	defer closer.Close()

	cfg, err := root.loadConfig()
	if err != nil {
		return err
	}
	if o.model != "" {
		cfg.Model.Name = o.model
		cfg.Model.DiagnosisModel = o.model
	}

	ctx := cmd.Context()
	router, cleanup, err := newRouter(ctx, cfg.Model)
	if err != nil {
		return err
	}
	defer cleanup()

	gitDir, err := filepath.Abs(o.gitDir)
	if err != nil {
		return err
	}
	chatHistory := o.chatHistoryFile
	if chatHistory == "" {
		chatHistory = filepath.Join(gitDir, "self_evo.md")
	}

	registry := tools.Default(&tools.ShellTool{
		Timeout:   cfg.Tools.ShellTimeout,
		Dir:       gitDir,
		NoNetwork: cfg.Tools.ShellNoNetwork,
	})
	agent := &runner.Agent{
		ProblemStatement: o.problemStatement,
		TestDescription:  o.testDescription,
		RepoDir:          gitDir,
		BaseCommit:       o.baseCommit,
		ChatHistoryFile:  chatHistory,
		OutDir:           o.outDir,
		SelfImprove:      o.selfImprove,
		Loop: runner.Config{
			Model:          cfg.Model.Name,
			Temperature:    cfg.Model.Temperature,
			MaxTurns:       cfg.Agent.MaxTurns,
			MaxCorrections: cfg.Agent.MaxCorrections,
			Timeout:        cfg.Agent.Timeout,
		},
	}

	slog.Info("Starting coding agent", "gitDir", gitDir, "model", cfg.Model.Name, "baseCommit", o.baseCommit)
	out, err := agent.Forward(ctx, router, registry)
	if out != nil && out.Result != nil {
		fmt.Fprintf(cmd.OutOrStdout(), "Finished: %s after %d turns and %d tool calls\n",
			out.Result.Reason, out.Result.Turns, out.Result.ToolCalls)
	}
	if out != nil && out.PatchPath != "" {
		fmt.Fprintf(cmd.OutOrStdout(), "Patch: %s (%d files, +%d -%d)\n",
			out.PatchPath, len(out.Patch.Files), out.Patch.Added, out.Patch.Deleted)
	}
	return err
}
