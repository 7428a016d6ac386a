package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/docextract/internal/ingest"
)

var (
	processPages     string
	processRecursive bool
	processFlags     runFlags
)

var processCmd = &cobra.Command{
	Use:   "process <file-or-dir>",
	Short: "Extract fields from a PDF, an image or every document in a directory",
	Long: `Process runs the pipeline on one document, or on every supported file
(pdf, png, jpg, jpeg, bmp, tiff, tif) in a directory. Other files are skipped.
--pages applies to a single PDF only.`,
	Args: cobra.ExactArgs(1),
	RunE: runProcess,
}

func init() {
	processCmd.Flags().StringVarP(&processPages, "pages", "p", "", "pages to process, e.g. 1,3,5-7 (default all)")
	processCmd.Flags().BoolVarP(&processRecursive, "recursive", "r", false, "descend into subdirectories")
	processCmd.Flags().BoolVar(&processFlags.saveText, "save-text", false, "write the raw OCR text next to each JSON file")
	processCmd.Flags().BoolVar(&processFlags.confidence, "confidence", false, "record OCR word confidence")
	processCmd.Flags().BoolVar(&processFlags.cleanup, "cleanup", false, "remove the run workspace when done")
	rootCmd.AddCommand(processCmd)
}

func runProcess(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	target := args[0]

	info, err := os.Stat(target)
	if err != nil {
		return err
	}
	pages, err := parsePages(processPages)
	if err != nil {
		return err
	}
	if info.IsDir() && pages != nil {
		return fmt.Errorf("--pages cannot be used with a directory")
	}

	a, err := newApp(ctx, cfg, processFlags)
	if err != nil {
		return err
	}
	defer a.Close()

	out := cmd.OutOrStdout()
	if !info.IsDir() {
		r := ingest.ProcessFile(ctx, a.proc, target, pages)
		printResult(out, r)
		return r.Err
	}

	results, stats, err := ingest.ProcessDirectory(ctx, a.proc, target, ingest.ScanOptions{
		Recursive:  processRecursive,
		SkipHidden: true,
	}, logger)
	for _, r := range results {
		printResult(out, r)
	}
	fmt.Fprintf(out, "matched %d of %d files: %d done, %d partial, %d failed\n",
		stats.Matched, stats.Scanned, stats.Succeeded, stats.Partial, stats.Failed)
	return err
}

func printResult(w io.Writer, r ingest.FileResult) {
	if r.Err != nil {
		fmt.Fprintf(w, "%s\t%s\t%v\n", r.Path, r.Status, r.Err)
		return
	}
	fmt.Fprintf(w, "%s\t%s\trun=%s\n", r.Path, r.Status, r.RunID)
	for _, p := range r.Result.Pages {
		switch {
		case p.Output != "":
			fmt.Fprintf(w, "  page %d\t%s\t%s\n", p.Page, p.Status, p.Output)
		case p.Err != nil:
			fmt.Fprintf(w, "  page %d\t%s\t%v\n", p.Page, p.Status, p.Err)
		default:
			fmt.Fprintf(w, "  page %d\t%s\n", p.Page, p.Status)
		}
	}
}
