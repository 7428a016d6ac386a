package output

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/docextract/internal/common"
	"github.com/joseph-ayodele/docextract/internal/llm"
)

func TestWriter_RoundTrip(t *testing.T) {
	w := NewWriter(t.TempDir())
	fields := llm.Fields{
		"invoice": map[string]any{"number": "A-1", "lines": []any{"x", float64(2)}},
		"total":   float64(325),
		"paid":    true,
		"note":    nil,
		"vendor":  "Müller & Söhne <GmbH>",
	}

	path, err := w.WriteImage("scans/receipt.png", fields)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(w.Root, "receipt.json"), path)

	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, fields, got)
}

func TestWriter_Layout(t *testing.T) {
	w := NewWriter(t.TempDir())

	path, err := w.WritePage("in/contract.pdf", 3, llm.Fields{"a": "b"})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(w.Root, "contract", "page_3.json"), path)

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "{\n    \"a\": \"b\"\n}\n", string(b))

	txt, err := w.WriteText(path, "raw text")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(w.Root, "contract", "page_3.txt"), txt)
}

func TestWriter_PersistenceError(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(blocker, nil, 0o644))

	w := NewWriter(blocker) // root is a regular file
	_, err := w.WriteImage("x.png", llm.Fields{"a": 1})
	assert.ErrorIs(t, err, common.ErrPersistence)
}

func TestBaseName(t *testing.T) {
	assert.Equal(t, "inv.v2", BaseName("scans/inv.v2.pdf"))
	assert.Equal(t, "noext", BaseName("noext"))
}
