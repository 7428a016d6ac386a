package main

import (
	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/docextract/internal/server"
)

var (
	serveRoot  string
	serveFlags runFlags
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve docextract.v1.DocumentService over gRPC with Prometheus metrics",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveRoot, "root", "", "only accept request paths under this directory")
	serveCmd.Flags().BoolVar(&serveFlags.saveText, "save-text", false, "write the raw OCR text next to each JSON file")
	serveCmd.Flags().BoolVar(&serveFlags.confidence, "confidence", false, "record OCR word confidence")
	serveCmd.Flags().BoolVar(&serveFlags.cleanup, "cleanup", true, "remove each run workspace when done")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx, cfg, serveFlags)
	if err != nil {
		return err
	}
	defer a.Close()

	if a.db != nil {
		if err := a.db.HealthCheck(ctx, cfg.Store.DialTimeout); err != nil {
			return err
		}
	}

	svc := server.NewDocumentService(a.proc, serveRoot, logger)
	srv := server.New(server.Options{
		GRPCAddr:    cfg.Server.GRPCAddr,
		MetricsAddr: cfg.Server.MetricsAddr,
	}, svc, a.metrics, logger)
	return srv.ListenAndServe(ctx)
}
