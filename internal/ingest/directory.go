package ingest

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"

	"github.com/joseph-ayodele/docextract/constants"
)

type ScanOptions struct {
	Exts       map[string]struct{} // lowercase, without '.'; nil = constants.AllowedExtensions
	Recursive  bool
	SkipHidden bool
}

// ScanDirectory lists matching files under root in lexical order.
func ScanDirectory(root string, opts ScanOptions) ([]string, DirStats, error) {
	if strings.TrimSpace(root) == "" {
		return nil, DirStats{}, errors.New("root path is required")
	}
	exts := opts.Exts
	if exts == nil {
		exts = constants.AllowedExtensions
	}

	var (
		files []string
		stats DirStats
	)
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if path == root {
			return nil
		}
		if opts.SkipHidden && isHidden(path) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			if !opts.Recursive {
				return filepath.SkipDir
			}
			return nil
		}
		stats.Scanned++
		if !allowed(path, exts) {
			return nil
		}
		stats.Matched++
		files = append(files, path)
		return nil
	})
	if err != nil {
		return nil, stats, fmt.Errorf("walk %s: %w", root, err)
	}
	sort.Strings(files)
	return files, stats, nil
}

func allowed(path string, exts map[string]struct{}) bool {
	_, ok := exts[constants.NormalizeExt(filepath.Ext(path))]
	return ok
}

func isHidden(path string) bool {
	return strings.HasPrefix(filepath.Base(path), ".")
}
