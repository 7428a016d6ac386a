package llm

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/joseph-ayodele/docextract/internal/common"
)

// DecodeFields parses model output into Fields. A surrounding markdown code
// fence is tolerated; anything that is not exactly one JSON object fails
// with ErrExtraction and no partial result.
func DecodeFields(content []byte) (Fields, []byte, error) {
	raw := []byte(stripCodeFence(string(content)))
	if err := ValidateObject(raw); err != nil {
		return nil, raw, fmt.Errorf("%w: %w", common.ErrExtraction, err)
	}
	var out Fields
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, raw, fmt.Errorf("%w: unmarshal fields: %w", common.ErrExtraction, err)
	}
	return out, raw, nil
}

func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:] // drop language tag line
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
