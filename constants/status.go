package constants

// PageStatus is the terminal outcome of one processed page or image.
type PageStatus string

// Stable values (stored as-is in the run ledger).
const (
	PageStatusOK     PageStatus = "OK"      // fields extracted and persisted
	PageStatusNoText PageStatus = "NO_TEXT" // OCR produced nothing usable
	PageStatusFailed PageStatus = "FAILED"  // any other terminal failure
)

// RunStatus is the status of a whole document run.
type RunStatus string

const (
	RunStatusRunning RunStatus = "RUNNING"
	RunStatusDone    RunStatus = "DONE"    // every page OK
	RunStatusPartial RunStatus = "PARTIAL" // some pages failed
	RunStatusFailed  RunStatus = "FAILED"  // nothing succeeded or rasterization failed
)

// DefaultDPI is the rasterization resolution used for OCR input.
const DefaultDPI = 300

// DefaultOCRLang is the tesseract language model used when none is given.
const DefaultOCRLang = "eng"
