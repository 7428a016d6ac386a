package ocr

import (
	"math"
	"strconv"
	"strings"
)

// Token is one word reported by the engine.
type Token struct {
	Text       string
	Confidence float64
}

// Result is the confidence-bearing OCR output for one image.
type Result struct {
	Text              string  `json:"text"`
	AverageConfidence float64 `json:"average_confidence"`
	WordCount         int     `json:"word_count"`
}

// Aggregate folds tokens into a Result. Tokens with blank text or a
// confidence <= 0 are dropped; the rest are joined by single spaces in
// engine order and their confidences averaged (rounded to 2 decimals).
func Aggregate(tokens []Token) Result {
	var (
		words []string
		sum   float64
	)
	for _, t := range tokens {
		txt := strings.TrimSpace(t.Text)
		if txt == "" || t.Confidence <= 0 {
			continue
		}
		words = append(words, txt)
		sum += t.Confidence
	}
	if len(words) == 0 {
		return Result{}
	}
	avg := sum / float64(len(words))
	return Result{
		Text:              strings.Join(words, " "),
		AverageConfidence: math.Round(avg*100) / 100,
		WordCount:         len(words),
	}
}

// OrEmpty maps a failed extraction to the zero Result.
func OrEmpty(res Result, err error) Result {
	if err != nil {
		return Result{}
	}
	return res
}

// ParseTSV reads tesseract's TSV output into tokens. Column positions come
// from the header row; rows without a word (conf -1) are skipped.
func ParseTSV(out []byte) []Token {
	lines := strings.Split(strings.ReplaceAll(string(out), "\r\n", "\n"), "\n")
	if len(lines) == 0 {
		return nil
	}
	confIdx, textIdx := -1, -1
	for i, h := range strings.Split(lines[0], "\t") {
		switch strings.TrimSpace(h) {
		case "conf":
			confIdx = i
		case "text":
			textIdx = i
		}
	}
	if confIdx < 0 || textIdx < 0 {
		return nil
	}

	var tokens []Token
	for _, ln := range lines[1:] {
		if ln == "" {
			continue
		}
		cols := strings.Split(ln, "\t")
		if len(cols) <= confIdx {
			continue
		}
		confStr := strings.TrimSpace(cols[confIdx])
		if confStr == "" || confStr == "-1" {
			continue
		}
		conf, err := strconv.ParseFloat(confStr, 64)
		if err != nil {
			continue
		}
		var txt string
		if textIdx < len(cols) {
			txt = cols[textIdx]
		}
		tokens = append(tokens, Token{Text: txt, Confidence: conf})
	}
	return tokens
}
