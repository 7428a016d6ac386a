// Package output persists extracted fields as indented JSON files.
package output

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joseph-ayodele/docextract/internal/common"
	"github.com/joseph-ayodele/docextract/internal/llm"
)

const indent = "    "

// Writer lays files out under Root:
//
//	<root>/<basename>.json                 single image
//	<root>/<pdf_basename>/page_<N>.json    PDF page N
type Writer struct {
	Root string
}

func NewWriter(root string) *Writer {
	return &Writer{Root: root}
}

// ImagePath is where fields for a single image are written.
func (w *Writer) ImagePath(sourceName string) string {
	return filepath.Join(w.Root, BaseName(sourceName)+".json")
}

// PagePath is where fields for page n of a PDF are written.
func (w *Writer) PagePath(pdfName string, n int) string {
	return filepath.Join(w.Root, BaseName(pdfName), fmt.Sprintf("page_%d.json", n))
}

// WriteImage persists fields for a single image and returns the file path.
func (w *Writer) WriteImage(sourceName string, fields llm.Fields) (string, error) {
	path := w.ImagePath(sourceName)
	return path, w.Write(path, fields)
}

// WritePage persists fields for one PDF page and returns the file path.
func (w *Writer) WritePage(pdfName string, n int, fields llm.Fields) (string, error) {
	path := w.PagePath(pdfName, n)
	return path, w.Write(path, fields)
}

// WriteText stores raw OCR text next to the JSON it produced.
func (w *Writer) WriteText(jsonPath, text string) (string, error) {
	path := strings.TrimSuffix(jsonPath, filepath.Ext(jsonPath)) + ".txt"
	if err := writeAtomic(path, []byte(text)); err != nil {
		return "", fmt.Errorf("%w: %w", common.ErrPersistence, err)
	}
	return path, nil
}

// Write encodes fields with 4-space indentation and replaces path atomically.
func (w *Writer) Write(path string, fields llm.Fields) error {
	b, err := Encode(fields)
	if err != nil {
		return fmt.Errorf("%w: encode %s: %w", common.ErrPersistence, path, err)
	}
	if err := writeAtomic(path, b); err != nil {
		return fmt.Errorf("%w: %w", common.ErrPersistence, err)
	}
	return nil
}

// Encode renders fields the way they are stored on disk.
func Encode(fields llm.Fields) ([]byte, error) {
	if fields == nil {
		fields = llm.Fields{}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", indent)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(fields); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Load reads a persisted fields file back.
func Load(path string) (llm.Fields, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var f llm.Fields
	if err := json.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return f, nil
}

// BaseName strips directory and extension: "scans/inv.v2.pdf" -> "inv.v2".
func BaseName(name string) string {
	base := filepath.Base(name)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func writeAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", filepath.Dir(path), err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("create temp for %s: %w", path, err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("close %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("rename %s: %w", path, err)
	}
	return nil
}
