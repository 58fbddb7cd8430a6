package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"time"

	"github.com/joseph-ayodele/people-extractor/internal/async"
	"github.com/joseph-ayodele/people-extractor/internal/common"
	"github.com/joseph-ayodele/people-extractor/internal/core"
	"github.com/joseph-ayodele/people-extractor/internal/dedup"
	"github.com/joseph-ayodele/people-extractor/internal/entity"
	"github.com/joseph-ayodele/people-extractor/internal/export"
	"github.com/joseph-ayodele/people-extractor/internal/extract"
	"github.com/joseph-ayodele/people-extractor/internal/ingest"
	"github.com/joseph-ayodele/people-extractor/internal/llm/openai"
	repo "github.com/joseph-ayodele/people-extractor/internal/repository"
)

// printError prints an error message to stderr, falling back to stdout if stderr fails
func printError(format string, args ...any) {
	if _, err := fmt.Fprintf(os.Stderr, format, args...); err != nil {
		fmt.Printf(format, args...)
	}
}

func main() {
	var (
		inmem      = flag.Bool("inmem", false, "use in-memory SQLite database")
		dir        = flag.String("dir", "", "directory of documents to extract people from (required)")
		out        = flag.String("out", "", "output XLSX file path (optional, defaults to parent directory)")
		userID     = flag.String("user", "", "store results in this user's corpus instead of the shared one")
		source     = flag.String("source", "", "source label stored on every record (default: directory name)")
		kind       = flag.String("type", "", "extraction type, e.g. contacts or attendees")
		workers    = flag.Int("workers", 2, "concurrent extractions")
		showHidden = flag.Bool("hidden", false, "include hidden files and directories")
	)
	flag.Parse()

	if *dir == "" {
		printError("Error: --dir is required\n")
		os.Exit(1)
	}
	if *out == "" {
		*out = filepath.Join(filepath.Dir(filepath.Clean(*dir)), "people.xlsx")
	}
	if *source == "" {
		*source = filepath.Base(filepath.Clean(*dir))
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	cfg, err := common.LoadConfig()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if cfg.LLM.APIKey == "" {
		printError("Error: OPENAI_API_KEY is required\n")
		os.Exit(2)
	}

	var db *repo.DB
	if *inmem {
		db, err = repo.OpenSQLite(ctx, ":memory:", logger)
	} else {
		db, err = repo.OpenFromConfig(ctx, cfg.Database, logger)
	}
	if err != nil {
		logger.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer repo.Close(db, logger)
	if err := repo.Migrate(ctx, db, logger); err != nil {
		logger.Error("failed to apply schema", "error", err)
		os.Exit(1)
	}

	people := repo.NewPersonRepository(db, logger)
	batches := repo.NewBatchRepository(db, logger)
	engine := dedup.NewEngine(people, logger)
	analyzer := openai.NewClient(openai.Config{
		APIKey:          cfg.LLM.APIKey,
		BaseURL:         cfg.LLM.BaseURL,
		Model:           cfg.LLM.Model,
		Temperature:     cfg.LLM.Temperature,
		Timeout:         cfg.LLM.Timeout,
		MaxRetries:      cfg.LLM.MaxRetries,
		BaseDelay:       cfg.LLM.BaseDelay,
		ChunkThreshold:  cfg.LLM.ChunkThreshold,
		ChunkSize:       cfg.LLM.ChunkSize,
		ChunkMaxRetries: cfg.LLM.ChunkMaxRetries,
		ChunkRetryDelay: cfg.LLM.ChunkRetryDelay,
		InterChunkDelay: cfg.LLM.InterChunkDelay,
	}, logger)
	extractor := extract.NewRouter(extract.Config{
		Tesseract:     cfg.OCR.Tesseract,
		Pdftoppm:      cfg.OCR.Pdftoppm,
		TessdataDir:   cfg.OCR.TessdataDir,
		Lang:          cfg.OCR.Lang,
		DPI:           cfg.OCR.DPI,
		MaxPages:      cfg.OCR.MaxPages,
		DisablePDFOCR: cfg.OCR.DisablePDFOCR,
	}, logger)
	orch := core.NewOrchestrator(logger, analyzer, extractor, people, batches, engine)

	scope := entity.UserScope(*userID)
	meta := entity.ExtractionMeta{ExtractionType: *kind, Source: *source}

	var (
		mu       sync.Mutex
		batchIDs []string
		seen     = map[string]bool{}
		failures int
	)
	queue := async.NewProcessorQueue(orch, logger,
		async.WithWorkers(*workers),
		async.WithQueueSize(64),
		async.WithResultHandler(func(o async.Outcome) {
			mu.Lock()
			defer mu.Unlock()
			if o.Err != nil {
				failures++
				return
			}
			if id := o.Result.Metadata.BatchID; !seen[id] {
				seen[id] = true
				batchIDs = append(batchIDs, id)
			}
		}),
	)

	start := time.Now()
	ingestor := ingest.NewIngestor(ingest.Options{SkipHidden: !*showHidden}, logger)
	_, stats, err := ingestor.IngestDirectory(ctx, *dir, func(ctx context.Context, f ingest.File) error {
		return queue.Enqueue(ctx, async.Job{Path: f.Path, HashHex: f.HashHex, Meta: meta, Scope: scope})
	})
	queue.Shutdown(context.Background())
	if err != nil {
		logger.Error("failed to ingest directory", "error", err)
		os.Exit(1)
	}

	var records []entity.ScopedPersonRecord
	for _, id := range batchIDs {
		recs, err := orch.Batch(ctx, scope, id)
		if err != nil {
			logger.Error("failed to read batch", "batch_id", id, "error", err)
			os.Exit(1)
		}
		records = append(records, recs...)
	}
	xlsx, err := export.WriteXLSX(records)
	if err != nil {
		logger.Error("failed to export people", "error", err)
		os.Exit(1)
	}
	if err := os.WriteFile(*out, xlsx, 0o644); err != nil {
		logger.Error("failed to write output file", "error", err)
		os.Exit(1)
	}

	logger.Info("batch processing complete",
		"scope", scope.Key(),
		"files_matched", stats.Matched,
		"files_repeated", stats.Deduplicated,
		"batches", len(batchIDs),
		"people", len(records),
		"failures", failures+int(stats.Failed),
		"output", *out,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	if failures > 0 || stats.Failed > 0 {
		os.Exit(3)
	}
}
