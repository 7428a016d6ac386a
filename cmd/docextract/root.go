package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/docextract/internal/common"
)

var (
	cfgFile  string
	logLevel string

	cfg    *common.Config
	logger *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "docextract",
	Short: "Extract structured JSON from scanned PDFs and images",
	Long: `docextract renders PDF pages, cleans each image up, reads the text with
tesseract and asks an LLM to return the document's fields as JSON.
One JSON file is written per page (or per image) under the output directory.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		c, err := common.LoadConfig(cfgFile)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if logLevel != "" {
			c.Log.Level = logLevel
		}
		if err := c.Validate(); err != nil {
			return err
		}
		cfg = c
		logger = common.NewLogger(c.Log, os.Stderr)
		slog.SetDefault(logger)
		logger.Debug("config.loaded", "file", cfgFile, "llm", c.LLM)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "YAML config file (optional)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override LOG_LEVEL (debug|info|warn|error)")
}

// Execute runs the root command.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}
