package main

import (
	"fmt"
	"strconv"
	"strings"
)

// parsePages reads a 1-based selection such as "1,3,5-7". An empty string
// selects every page and returns nil.
func parsePages(s string) ([]int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	var pages []int
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			return nil, fmt.Errorf("empty entry in page list %q", s)
		}
		lo, hi, isRange := strings.Cut(part, "-")
		first, err := strconv.Atoi(strings.TrimSpace(lo))
		if err != nil {
			return nil, fmt.Errorf("invalid page %q", part)
		}
		last := first
		if isRange {
			if last, err = strconv.Atoi(strings.TrimSpace(hi)); err != nil {
				return nil, fmt.Errorf("invalid page range %q", part)
			}
			if last < first {
				return nil, fmt.Errorf("descending page range %q", part)
			}
		}
		for n := first; n <= last; n++ {
			pages = append(pages, n)
		}
	}
	return pages, nil
}
