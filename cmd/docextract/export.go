package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/docextract/internal/export"
)

var (
	exportOut   string
	exportLimit int
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write an XLSX summary of the run ledger",
	Args:  cobra.NoArgs,
	RunE:  runExport,
}

func init() {
	exportCmd.Flags().StringVarP(&exportOut, "output", "o", "", "XLSX path (default <OUTPUT_DIR>/runs.xlsx)")
	exportCmd.Flags().IntVar(&exportLimit, "limit", 0, "most recent runs to include (0 = all)")
	rootCmd.AddCommand(exportCmd)
}

func runExport(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	db, runs, err := openLedger(ctx, cfg)
	if err != nil {
		return err
	}
	if db == nil {
		return errors.New("export needs the run ledger; set STORE_DSN")
	}
	defer db.Close()

	b, err := export.NewService(runs, logger).ExportRunsXLSX(ctx, exportLimit)
	if err != nil {
		return err
	}

	path := exportOut
	if path == "" {
		path = filepath.Join(cfg.Paths.OutputDir, "runs.xlsx")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), path)
	return nil
}
