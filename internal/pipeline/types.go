package pipeline

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joseph-ayodele/docextract/constants"
	"github.com/joseph-ayodele/docextract/internal/common"
	"github.com/joseph-ayodele/docextract/internal/llm"
	"github.com/joseph-ayodele/docextract/internal/ocr"
)

// SourceDocument is a submitted file.
type SourceDocument struct {
	Name    string // original file name, e.g. "invoice.pdf"
	Ext     string // normalized extension without the dot
	Content []byte
}

// NewSourceDocument wraps in-memory content under name.
func NewSourceDocument(name string, content []byte) SourceDocument {
	return SourceDocument{
		Name:    filepath.Base(name),
		Ext:     constants.NormalizeExt(filepath.Ext(name)),
		Content: content,
	}
}

// LoadSourceDocument reads path into a SourceDocument.
func LoadSourceDocument(path string) (SourceDocument, error) {
	if !constants.AllowedExt(filepath.Ext(path)) {
		return SourceDocument{}, fmt.Errorf("%w: %s", common.ErrUnsupported, filepath.Base(path))
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return SourceDocument{}, fmt.Errorf("read %s: %w", path, err)
	}
	return NewSourceDocument(path, b), nil
}

func (d SourceDocument) IsPDF() bool {
	return constants.MapExtToFormat(d.Ext) == constants.PDF
}

// Format is constants.PDF, constants.IMAGE or "" when unsupported.
func (d SourceDocument) Format() string {
	return constants.MapExtToFormat(d.Ext)
}

// PageOutcome is the terminal result for one page (or the single image).
type PageOutcome struct {
	Page      int
	Status    constants.PageStatus
	Fields    llm.Fields
	Err       error
	Retryable bool
	Output    string // persisted JSON path, empty unless OK
	TextPath  string // raw OCR text path when text saving is on
	OCR       ocr.Result
	Duration  time.Duration
}

func (o PageOutcome) OK() bool { return o.Status == constants.PageStatusOK }

// RunResult holds one outcome per selected page, in page order.
type RunResult struct {
	RunID     string
	Source    string
	Format    string
	Workspace string
	Pages     []PageOutcome
	Duration  time.Duration
}

// Status summarizes the run: DONE when every page is OK, FAILED when none
// is, PARTIAL otherwise.
func (r RunResult) Status() constants.RunStatus {
	ok := 0
	for _, p := range r.Pages {
		if p.OK() {
			ok++
		}
	}
	switch {
	case len(r.Pages) > 0 && ok == len(r.Pages):
		return constants.RunStatusDone
	case ok == 0:
		return constants.RunStatusFailed
	default:
		return constants.RunStatusPartial
	}
}
