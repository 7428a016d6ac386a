package main

import (
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/docextract/internal/ingest"
)

var (
	watchDebounce    time.Duration
	watchInitialScan bool
	watchWorkers     int
	watchJobTimeout  time.Duration
	watchFlags       runFlags
)

var watchCmd = &cobra.Command{
	Use:   "watch <dir> [dir...]",
	Short: "Process documents as they land in an inbox directory",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runWatch,
}

func init() {
	watchCmd.Flags().DurationVar(&watchDebounce, "debounce", 750*time.Millisecond, "wait this long after the last write before processing")
	watchCmd.Flags().BoolVar(&watchInitialScan, "initial-scan", false, "process files already present at startup")
	watchCmd.Flags().IntVar(&watchWorkers, "workers", 1, "documents processed at once")
	watchCmd.Flags().DurationVar(&watchJobTimeout, "job-timeout", 10*time.Minute, "upper bound for one document")
	watchCmd.Flags().BoolVar(&watchFlags.saveText, "save-text", false, "write the raw OCR text next to each JSON file")
	watchCmd.Flags().BoolVar(&watchFlags.confidence, "confidence", false, "record OCR word confidence")
	watchCmd.Flags().BoolVar(&watchFlags.cleanup, "cleanup", true, "remove each run workspace when done")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx, cfg, watchFlags)
	if err != nil {
		return err
	}
	defer a.Close()

	var mu sync.Mutex
	out := cmd.OutOrStdout()
	return ingest.Watch(ctx, ingest.WatchConfig{
		Roots:       args,
		InitialScan: watchInitialScan,
		Debounce:    watchDebounce,
		Workers:     watchWorkers,
		JobTimeout:  watchJobTimeout,
	}, a.proc, logger, func(r ingest.FileResult) {
		mu.Lock()
		defer mu.Unlock()
		printResult(out, r)
	})
}
