package llm

import "strings"

// SystemPrompt is sent as the system message on every extraction call.
const SystemPrompt = "You are a data extraction assistant. Your response must be a single, valid JSON object."

// maxPromptChars caps the OCR text forwarded to the model.
const maxPromptChars = 24000

// BuildUserPrompt asks for every key/value pair in the OCR text, with the
// field names chosen from the content itself.
func BuildUserPrompt(req ExtractRequest) string {
	ocr := strings.TrimSpace(req.OCRText)
	truncated := false
	if len(ocr) > maxPromptChars {
		ocr = ocr[:maxPromptChars]
		truncated = true
	}

	var b strings.Builder
	b.WriteString("Extract all key-value pairs from the following OCR text.\n")
	b.WriteString("Identify the fields dynamically based on the content.\n\n")
	b.WriteString("OCR TEXT:\n\"\"\"\n")
	b.WriteString(ocr)
	if truncated {
		b.WriteString("\n…(truncated)")
	}
	b.WriteString("\n\"\"\"\n\n")
	b.WriteString("Return ONLY a valid JSON object.")
	return b.String()
}
