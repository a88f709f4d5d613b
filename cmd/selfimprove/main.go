// Command selfimprove runs the self-improvement pipeline and the coding
// agent that executes inside its sandbox.
//
// Usage:
//
//	export GEMINI_API_KEY="your-api-key"
//	selfimprove run --task django__django-10999
//	selfimprove agent --problem-statement "..." --git-dir /dgm/ ...
//	selfimprove view output_selfimprove/<run>/self_evo.md
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nstogner/selfimprove/pkg/config"
	"github.com/nstogner/selfimprove/pkg/models/gemini"
)

type rootOptions struct {
	configPath string
	logFile    string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "selfimprove",
		Short:         "Sandboxed self-improvement for a coding agent",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "path to a YAML config file")
	cmd.PersistentFlags().StringVar(&opts.logFile, "log-file", "", "write logs to this file instead of stderr")

	cmd.AddCommand(
		newRunCmd(opts),
		newAgentCmd(opts),
		newViewCmd(),
		newHistoryCmd(opts),
		newModelsCmd(opts),
	)
	return cmd
}

func (o *rootOptions) loadConfig() (config.Config, error) {
	return config.Load(o.configPath)
}

// setupLogging installs the default slog handler. The returned closer
// releases the log file, if any.
func (o *rootOptions) setupLogging(fallbackFile string) (io.Closer, error) {
	var out io.Writer = os.Stderr
	var closer io.Closer = io.NopCloser(nil)

	path := o.logFile
	if path == "" {
		path = fallbackFile
	}
	if path != "" {
		f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			return nil, fmt.Errorf("opening log file: %w", err)
		}
		out, closer = f, f
	}

	level := logLevel(os.Getenv("LOG_LEVEL"))
	slog.SetDefault(slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: level})))
	slog.Debug("Logging initialized", "level", level)
	return closer, nil
}

func logLevel(s string) slog.Level {
	switch strings.ToUpper(s) {
	case "TRACE":
		return gemini.LevelTrace
	case "DEBUG":
		return slog.LevelDebug
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	}
	return slog.LevelInfo
}
