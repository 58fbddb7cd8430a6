package ingest

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/joseph-ayodele/people-extractor/constants"
)

// File is one discovered input.
type File struct {
	Path    string
	Kind    constants.FileKind
	HashHex string
	Size    int64
}

// Handler receives each unique file of a directory run.
type Handler func(ctx context.Context, f File) error

type FileResult struct {
	Path         string
	HashHex      string
	Deduplicated bool
	Err          string
}

type DirStats struct {
	Scanned      uint32
	Matched      uint32
	Succeeded    uint32
	Deduplicated uint32
	Failed       uint32
}

type Options struct {
	IncludeExts []string // without '.'; empty -> constants.AllowedExtensions
	SkipHidden  bool
	MaxFileSize int64 // 0 = no limit
}

// Ingestor walks directories and hands unique files to a Handler.
type Ingestor struct {
	opts   Options
	exts   map[string]struct{}
	logger *slog.Logger
}

func NewIngestor(opts Options, logger *slog.Logger) *Ingestor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ingestor{opts: opts, exts: extSet(opts.IncludeExts), logger: logger}
}

// Inspect validates and hashes a single path.
func (i *Ingestor) Inspect(path string) (File, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return File{}, err
	}
	if !allowed(abs, i.exts) {
		return File{}, fmt.Errorf("unsupported or missing extension %q", filepath.Ext(abs))
	}
	sum, size, err := HashFile(abs)
	if err != nil {
		return File{}, fmt.Errorf("hash %s: %w", filepath.Base(abs), err)
	}
	if i.opts.MaxFileSize > 0 && size > i.opts.MaxFileSize {
		return File{}, fmt.Errorf("%s is %d bytes, limit %d", filepath.Base(abs), size, i.opts.MaxFileSize)
	}
	return File{
		Path:    abs,
		Kind:    constants.MapExtToKind(filepath.Ext(abs)),
		HashHex: sum,
		Size:    size,
	}, nil
}

// IngestDirectory walks root and calls handle once per distinct content.
// Files repeating content already seen in this run are reported as
// deduplicated. Per-file failures are collected; only walk errors and
// cancellation abort the run.
func (i *Ingestor) IngestDirectory(ctx context.Context, root string, handle Handler) ([]FileResult, DirStats, error) {
	if strings.TrimSpace(root) == "" {
		return nil, DirStats{}, errors.New("root path is required")
	}

	var (
		results []FileResult
		stats   DirStats
		seen    = map[string]string{}
	)
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		stats.Scanned++
		if walkErr != nil {
			results = append(results, FileResult{Path: path, Err: walkErr.Error()})
			stats.Failed++
			return nil
		}
		if i.opts.SkipHidden && path != root && IsHidden(path) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || !allowed(path, i.exts) {
			return nil
		}
		stats.Matched++

		f, err := i.Inspect(path)
		if err != nil {
			results = append(results, FileResult{Path: path, Err: err.Error()})
			stats.Failed++
			return nil
		}
		if first, dup := seen[f.HashHex]; dup {
			i.logger.Debug("ingest.file.repeated", "path", path, "first", first)
			results = append(results, FileResult{Path: f.Path, HashHex: f.HashHex, Deduplicated: true})
			stats.Deduplicated++
			stats.Succeeded++
			return nil
		}
		seen[f.HashHex] = f.Path

		if err := handle(ctx, f); err != nil {
			results = append(results, FileResult{Path: f.Path, HashHex: f.HashHex, Err: err.Error()})
			stats.Failed++
			return nil
		}
		results = append(results, FileResult{Path: f.Path, HashHex: f.HashHex})
		stats.Succeeded++
		return nil
	})

	i.logger.Info("ingest.directory.done",
		"root", root,
		"scanned", stats.Scanned,
		"matched", stats.Matched,
		"succeeded", stats.Succeeded,
		"deduplicated", stats.Deduplicated,
		"failed", stats.Failed,
	)
	if err != nil {
		return results, stats, fmt.Errorf("walk: %w", err)
	}
	return results, stats, nil
}
