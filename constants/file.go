package constants

import "strings"

// Source formats a document can be processed as.
const (
	PDF   = "PDF"
	IMAGE = "IMAGE"
)

// ImageExtensions holds the raster formats the preprocessor can decode.
var ImageExtensions = map[string]struct{}{
	"png":  {},
	"jpg":  {},
	"jpeg": {},
	"bmp":  {},
	"tiff": {},
	"tif":  {},
}

// AllowedExtensions holds every extension accepted for processing.
var AllowedExtensions = map[string]struct{}{
	"pdf":  {},
	"png":  {},
	"jpg":  {},
	"jpeg": {},
	"bmp":  {},
	"tiff": {},
	"tif":  {},
}

// NormalizeExt lowercases and trims the dot from a file extension.
func NormalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// MapExtToFormat returns PDF, IMAGE or "" for an unsupported extension.
func MapExtToFormat(ext string) string {
	ext = NormalizeExt(ext)
	if ext == "pdf" {
		return PDF
	}
	if _, ok := ImageExtensions[ext]; ok {
		return IMAGE
	}
	return ""
}

// AllowedExt reports whether ext (with or without the dot) may be processed.
func AllowedExt(ext string) bool {
	_, ok := AllowedExtensions[NormalizeExt(ext)]
	return ok
}
