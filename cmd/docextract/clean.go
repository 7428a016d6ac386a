package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/docextract/internal/pipeline"
)

var cleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Remove the transient workspace directory (WORK_DIR)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := pipeline.CleanWorkDir(cfg.Paths.WorkDir); err != nil {
			return err
		}
		logger.Info("workspace.cleaned", "dir", cfg.Paths.WorkDir)
		fmt.Fprintf(cmd.OutOrStdout(), "removed %s\n", cfg.Paths.WorkDir)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(cleanCmd)
}
