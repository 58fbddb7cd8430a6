package constants

import "strings"

// FileKind is the coarse format used to pick a raw-text extractor.
type FileKind string

const (
	TXT         FileKind = "TXT"
	PDF         FileKind = "PDF"
	SPREADSHEET FileKind = "SPREADSHEET"
	IMAGE       FileKind = "IMAGE"
	UNKNOWN     FileKind = ""
)

// AllowedExtensions holds the default allowed file extensions for ingestion.
var AllowedExtensions = map[string]struct{}{
	"txt":  {},
	"csv":  {},
	"md":   {},
	"pdf":  {},
	"xlsx": {},
	"xlsm": {},
	"jpg":  {},
	"jpeg": {},
	"png":  {},
	"tif":  {},
	"tiff": {},
}

// NormalizeExt lowercases and trims the dot from a file extension.
func NormalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))
}

// MapExtToKind maps a file extension (with or without dot) to its FileKind.
func MapExtToKind(ext string) FileKind {
	switch NormalizeExt(ext) {
	case "txt", "csv", "md", "text":
		return TXT
	case "pdf":
		return PDF
	case "xlsx", "xlsm":
		return SPREADSHEET
	case "jpg", "jpeg", "png", "tif", "tiff":
		return IMAGE
	default:
		return UNKNOWN
	}
}
