package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Extract runs fe and never fails: any error, or a panic inside fe, comes
// back as {"error": "<message>"}.
func Extract(ctx context.Context, fe FieldExtractor, rawText string) (out Fields) {
	defer func() {
		if r := recover(); r != nil {
			out = ErrorFields(fmt.Errorf("field extractor panic: %v", r))
		}
	}()
	if fe == nil {
		return ErrorFields(errors.New("no field extractor configured"))
	}
	fields, _, err := fe.ExtractFields(ctx, ExtractRequest{OCRText: rawText})
	if err != nil {
		return ErrorFields(err)
	}
	if fields == nil {
		return Fields{}
	}
	return fields
}

// ErrorFields builds the contained error form.
func ErrorFields(err error) Fields {
	msg := "unknown error"
	if err != nil && strings.TrimSpace(err.Error()) != "" {
		msg = err.Error()
	}
	return Fields{ErrorKey: msg}
}
