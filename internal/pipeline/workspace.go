package pipeline

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Workspace is the scratch directory of a single run:
//
//	<work_dir>/<run-id>/source/<name>
//	<work_dir>/<run-id>/pages/page_<N>.png
//	<work_dir>/<run-id>/preprocessed/page_<N>.png
type Workspace struct {
	Root string
}

func NewWorkspace(workDir, runID string) (*Workspace, error) {
	if strings.TrimSpace(runID) == "" {
		return nil, fmt.Errorf("workspace: empty run id")
	}
	ws := &Workspace{Root: filepath.Join(workDir, runID)}
	for _, d := range []string{ws.sourceDir(), ws.PagesDir(), ws.preprocessedDir()} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return nil, fmt.Errorf("workspace: mkdir %s: %w", d, err)
		}
	}
	return ws, nil
}

func (w *Workspace) sourceDir() string       { return filepath.Join(w.Root, "source") }
func (w *Workspace) preprocessedDir() string { return filepath.Join(w.Root, "preprocessed") }

// PagesDir receives rasterized PDF pages.
func (w *Workspace) PagesDir() string { return filepath.Join(w.Root, "pages") }

// PreprocessedPath is the filtered image for page n.
func (w *Workspace) PreprocessedPath(n int) string {
	return filepath.Join(w.preprocessedDir(), fmt.Sprintf("page_%d.png", n))
}

// WriteSource stores the submitted bytes and returns their path.
func (w *Workspace) WriteSource(doc SourceDocument) (string, error) {
	path := filepath.Join(w.sourceDir(), filepath.Base(doc.Name))
	if err := os.WriteFile(path, doc.Content, 0o644); err != nil {
		return "", fmt.Errorf("workspace: write source: %w", err)
	}
	return path, nil
}

// Remove deletes this run's workspace.
func (w *Workspace) Remove() error {
	return os.RemoveAll(w.Root)
}

// CleanWorkDir removes every run workspace under workDir. Callers must not
// invoke it while a run is in progress.
func CleanWorkDir(workDir string) error {
	if strings.TrimSpace(workDir) == "" || filepath.Clean(workDir) == "/" {
		return fmt.Errorf("refusing to clean %q", workDir)
	}
	return os.RemoveAll(workDir)
}
