package main

import (
	"fmt"
	"os"

	"github.com/charmbracelet/glamour"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
)

func newViewCmd() *cobra.Command {
	var width int
	cmd := &cobra.Command{
		Use:   "view <chat-history.md>",
		Short: "Render a recorded chat history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			content, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			if !isatty.IsTerminal(os.Stdout.Fd()) {
				_, err := cmd.OutOrStdout().Write(content)
				return err
			}

			// "light" avoids the terminal background query that auto style sends.
			r, err := glamour.NewTermRenderer(
				glamour.WithStandardStyle("light"),
				glamour.WithWordWrap(width),
			)
			if err != nil {
				return fmt.Errorf("creating renderer: %w", err)
			}
			out, err := r.Render(string(content))
			if err != nil {
				return fmt.Errorf("rendering %s: %w", args[0], err)
			}
			fmt.Fprint(cmd.OutOrStdout(), out)
			return nil
		},
	}
	cmd.Flags().IntVar(&width, "width", 100, "word wrap width")
	return cmd
}
