package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nstogner/selfimprove/pkg/config"
	"github.com/nstogner/selfimprove/pkg/models/gemini"
)

func newModelsCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List the Gemini models available to the configured key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			closer, err := root.setupLogging("")
			if err != nil {
				return err
			}
			defer closer.Close()

			cfg, err := root.loadConfig()
			if err != nil {
				return err
			}
			if cfg.Model.GeminiAPIKey == "" {
				return fmt.Errorf("%s is not set", config.EnvGeminiAPIKey)
			}

			g, err := gemini.New(cmd.Context(), cfg.Model.GeminiAPIKey)
			if err != nil {
				return err
			}
			defer g.Close()

			names, err := g.List(cmd.Context())
			if err != nil {
				return err
			}
			for _, n := range names {
				fmt.Fprintln(cmd.OutOrStdout(), n)
			}
			return nil
		},
	}
}
