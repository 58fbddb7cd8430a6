package extract

import (
	"context"
	"time"

	"github.com/joseph-ayodele/people-extractor/constants"
)

// TextExtractor turns raw file bytes of a known kind into plain text.
type TextExtractor interface {
	Extract(ctx context.Context, data []byte, kind constants.FileKind) (Result, error)
}

type Result struct {
	Text     string
	Pages    int
	Kind     constants.FileKind
	Method   string // "plain" | "pdf-text" | "xlsx" | "image-ocr"
	Duration time.Duration
	Warnings []string
}
