package pipeline

import (
	"fmt"
	"slices"

	"github.com/joseph-ayodele/docextract/internal/common"
)

// ValidateSelection checks 1-based page indices against pageCount.
// Empty, out-of-range and duplicate selections are rejected.
func ValidateSelection(pages []int, pageCount int) error {
	if len(pages) == 0 {
		return fmt.Errorf("%w: no pages selected", common.ErrInvalidSelection)
	}
	seen := make(map[int]struct{}, len(pages))
	for _, n := range pages {
		if n < 1 || n > pageCount {
			return fmt.Errorf("%w: page %d out of range 1..%d", common.ErrInvalidSelection, n, pageCount)
		}
		if _, dup := seen[n]; dup {
			return fmt.Errorf("%w: page %d selected twice", common.ErrInvalidSelection, n)
		}
		seen[n] = struct{}{}
	}
	return nil
}

// SortedSelection returns a sorted copy of pages.
func SortedSelection(pages []int) []int {
	out := slices.Clone(pages)
	slices.Sort(out)
	return out
}
