package extract

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Runner lets us stub external commands in tests.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (stdout, stderr []byte, err error)
}

type execRunner struct {
	logger *slog.Logger
}

func (r execRunner) Run(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	start := time.Now()
	cmd := exec.CommandContext(ctx, name, args...)
	var out, errb bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &errb

	err := cmd.Run()
	if err != nil {
		r.logger.Error("exec.failed",
			"cmd", name,
			"args", strings.Join(args, " "),
			"elapsed_ms", time.Since(start).Milliseconds(),
			"error", err,
			"stderr", truncate(errb.String(), 8<<10),
		)
	} else {
		r.logger.Debug("exec.ok",
			"cmd", name,
			"elapsed_ms", time.Since(start).Milliseconds(),
			"stdout_bytes", out.Len(),
		)
	}
	return out.Bytes(), errb.Bytes(), err
}

// imageText runs tesseract on a temp copy of the image.
func (r *Router) imageText(ctx context.Context, data []byte) (Result, error) {
	tmp, err := os.CreateTemp("", "people-ocr-*")
	if err != nil {
		return Result{Method: "image-ocr"}, fmt.Errorf("create temp image: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return Result{Method: "image-ocr"}, fmt.Errorf("write temp image: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return Result{Method: "image-ocr"}, fmt.Errorf("close temp image: %w", err)
	}

	text, warn, err := r.tesseract(ctx, tmp.Name())
	if err != nil {
		return Result{Method: "image-ocr", Warnings: warn}, err
	}
	return Result{Text: text, Pages: 1, Method: "image-ocr"}, nil
}

// pdfOCR rasterizes the document with pdftoppm and OCRs every page image:
// pdftoppm -r <dpi> -png <file> <prefix>
func (r *Router) pdfOCR(ctx context.Context, data []byte) (Result, error) {
	dir, err := os.MkdirTemp("", "people-pdf-ocr-*")
	if err != nil {
		return Result{Method: "pdf-ocr"}, fmt.Errorf("create temp dir: %w", err)
	}
	defer func() { _ = os.RemoveAll(dir) }()

	in := filepath.Join(dir, "in.pdf")
	if err := os.WriteFile(in, data, 0o600); err != nil {
		return Result{Method: "pdf-ocr"}, fmt.Errorf("write temp pdf: %w", err)
	}
	prefix := filepath.Join(dir, "page")
	if _, errb, err := r.runner.Run(ctx, r.cfg.Pdftoppm, "-r", strconv.Itoa(r.cfg.DPI), "-png", in, prefix); err != nil {
		var warnings []string
		if msg := strings.TrimSpace(string(errb)); msg != "" {
			warnings = append(warnings, truncate(msg, 512))
		}
		return Result{Method: "pdf-ocr", Warnings: warnings}, fmt.Errorf("pdftoppm: %w", err)
	}

	// pdftoppm zero-pads page numbers, so lexical order is page order.
	images, err := filepath.Glob(prefix + "-*.png")
	if err != nil {
		return Result{Method: "pdf-ocr"}, fmt.Errorf("glob pages: %w", err)
	}
	if len(images) == 0 {
		return Result{Method: "pdf-ocr"}, errors.New("pdftoppm produced no pages")
	}
	sort.Strings(images)

	var warnings []string
	if r.cfg.MaxPages > 0 && len(images) > r.cfg.MaxPages {
		warnings = append(warnings, fmt.Sprintf("only the first %d of %d pages were read", r.cfg.MaxPages, len(images)))
		images = images[:r.cfg.MaxPages]
	}

	var pages []string
	for i, img := range images {
		if err := ctx.Err(); err != nil {
			return Result{Method: "pdf-ocr", Warnings: warnings}, err
		}
		text, warn, err := r.tesseract(ctx, img)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("page %d: %v", i+1, err))
			warnings = append(warnings, warn...)
			continue
		}
		if text = strings.TrimSpace(text); text != "" {
			pages = append(pages, text)
		}
	}
	if len(pages) == 0 {
		return Result{Method: "pdf-ocr", Warnings: warnings}, errors.New("no text recognized on any page")
	}

	return Result{
		Text:     strings.Join(pages, "\n\n"),
		Pages:    len(images),
		Method:   "pdf-ocr",
		Warnings: warnings,
	}, nil
}

// tesseract <file> stdout -l <lang> [--tessdata-dir <dir>]
func (r *Router) tesseract(ctx context.Context, path string) (string, []string, error) {
	args := []string{path, "stdout", "-l", r.cfg.Lang}
	if r.cfg.TessdataDir != "" {
		args = append(args, "--tessdata-dir", r.cfg.TessdataDir)
	}
	out, errb, err := r.runner.Run(ctx, r.cfg.Tesseract, args...)
	if err != nil {
		var warnings []string
		if msg := strings.TrimSpace(string(errb)); msg != "" {
			warnings = append(warnings, truncate(msg, 512))
		}
		return "", warnings, fmt.Errorf("tesseract: %w", err)
	}
	return reBoxNoise.ReplaceAllString(string(out), ""), nil, nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "...(truncated)"
}
