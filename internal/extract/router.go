package extract

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joseph-ayodele/people-extractor/constants"
	"github.com/joseph-ayodele/people-extractor/internal/common"
)

type Config struct {
	Tesseract   string // binary name or absolute path; if empty -> "tesseract"
	Pdftoppm    string // binary name or absolute path; if empty -> "pdftoppm"
	TessdataDir string
	Lang        string // default "eng"
	DPI         int    // rasterization DPI for scanned PDFs, default 300
	// MaxPages caps PDF page extraction; 0 = no limit.
	MaxPages int
	// DisablePDFOCR skips the rasterize-and-OCR fallback for PDFs without
	// a text layer.
	DisablePDFOCR bool
}

// Router picks an extraction strategy per file kind.
type Router struct {
	cfg    Config
	runner Runner
	logger *slog.Logger
}

var _ TextExtractor = (*Router)(nil)

func NewRouter(cfg Config, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Tesseract == "" {
		cfg.Tesseract = "tesseract"
	}
	if cfg.Pdftoppm == "" {
		cfg.Pdftoppm = "pdftoppm"
	}
	if cfg.Lang == "" {
		cfg.Lang = "eng"
	}
	if cfg.DPI <= 0 {
		cfg.DPI = 300
	}
	return &Router{cfg: cfg, runner: execRunner{logger: logger}, logger: logger}
}

// WithRunner replaces the command runner used for OCR.
func (r *Router) WithRunner(run Runner) *Router {
	r.runner = run
	return r
}

// Extract returns the text of data. Finding no text is a TextExtractionError.
func (r *Router) Extract(ctx context.Context, data []byte, kind constants.FileKind) (Result, error) {
	start := time.Now()
	if len(data) == 0 {
		return Result{Kind: kind}, common.TextExtractionErr("empty input", nil)
	}

	var (
		res Result
		err error
	)
	switch kind {
	case constants.TXT:
		res = plainText(data)
	case constants.PDF:
		res, err = r.pdfText(ctx, data)
	case constants.SPREADSHEET:
		res, err = spreadsheetText(data)
	case constants.IMAGE:
		res, err = r.imageText(ctx, data)
	default:
		return Result{Kind: kind}, common.ValidationErr(fmt.Sprintf("unsupported file kind %q", kind))
	}
	res.Kind = kind
	res.Duration = time.Since(start)
	if err != nil {
		r.logger.Error("extract.failed", "kind", kind, "bytes", len(data), "error", err)
		return res, common.TextExtractionErr(fmt.Sprintf("%s extraction failed", strings.ToLower(string(kind))), err)
	}

	res.Text = Normalize(res.Text)
	if res.Text == "" {
		r.logger.Warn("extract.empty", "kind", kind, "method", res.Method, "warnings", len(res.Warnings))
		return res, common.TextExtractionErr(fmt.Sprintf("no text found in %s input", strings.ToLower(string(kind))), nil)
	}

	r.logger.Debug("extract.ok",
		"kind", kind,
		"method", res.Method,
		"pages", res.Pages,
		"chars", len(res.Text),
		"elapsed_ms", res.Duration.Milliseconds(),
	)
	return res, nil
}

// ExtractFile reads path and extracts it according to its extension.
func (r *Router) ExtractFile(ctx context.Context, path string) (Result, error) {
	kind := constants.MapExtToKind(filepath.Ext(path))
	if kind == constants.UNKNOWN {
		return Result{}, common.ValidationErr(fmt.Sprintf("unsupported file type %q", filepath.Ext(path)))
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Result{Kind: kind}, common.TextExtractionErr("read "+filepath.Base(path), err)
	}
	return r.Extract(ctx, data, kind)
}
