package main

import (
	"context"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joseph-ayodele/people-extractor/internal/common"
	"github.com/joseph-ayodele/people-extractor/internal/core"
	"github.com/joseph-ayodele/people-extractor/internal/dedup"
	"github.com/joseph-ayodele/people-extractor/internal/entity"
	"github.com/joseph-ayodele/people-extractor/internal/export"
	"github.com/joseph-ayodele/people-extractor/internal/extract"
	"github.com/joseph-ayodele/people-extractor/internal/ingest"
	"github.com/joseph-ayodele/people-extractor/internal/llm/openai"
	repo "github.com/joseph-ayodele/people-extractor/internal/repository"
	"github.com/joseph-ayodele/people-extractor/internal/scheduler"
	"github.com/joseph-ayodele/people-extractor/internal/server"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel()}))
	slog.SetDefault(logger)

	cfg, err := common.LoadConfig()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid config", "error", err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := repo.OpenFromConfig(ctx, cfg.Database, logger)
	if err != nil {
		logger.Error("failed to open database", "driver", cfg.Database.Driver, "error", err)
		os.Exit(1)
	}
	defer repo.Close(db, logger)
	if err := repo.HealthCheck(ctx, db, 5*time.Second, logger); err != nil {
		logger.Error("failed to ping database", "error", err)
		os.Exit(1)
	}
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

	orch := core.NewOrchestrator(logger, analyzer, extractor, people, batches, engine).
		WithDetachTimeout(cfg.Server.DetachTimeout)

	var store scheduler.JobStore
	if cfg.Scheduler.Durable {
		store = repo.NewJobRepository(db, logger)
	}
	sched := scheduler.New(store, analyzer, extractor, engine, people, scheduler.Config{
		TickInterval: cfg.Scheduler.TickInterval,
		ChunkSize:    cfg.Scheduler.ChunkSize,
		ScratchDir:   cfg.Scheduler.ScratchDir,
	}, logger)
	go sched.Run(ctx)

	if cfg.Watch.Dir != "" {
		if err := watchDropDir(ctx, cfg.Watch, sched, logger); err != nil {
			logger.Error("failed to watch drop directory", "dir", cfg.Watch.Dir, "error", err)
			os.Exit(1)
		}
	}

	svc := server.NewPeopleService(orch, sched, export.NewService(people, logger), logger)
	grpcServer, hs := server.NewGRPCServer(svc, logger)

	addr := cfg.Server.GRPCAddr
	if !strings.Contains(addr, ":") {
		addr = ":" + addr
	}
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		logger.Error("failed to listen on address", "addr", addr, "error", err)
		os.Exit(1)
	}

	logger.Info("peopled listening",
		"addr", addr,
		"db_driver", cfg.Database.Driver,
		"model", cfg.LLM.Model,
		"durable_jobs", cfg.Scheduler.Durable,
	)
	go func() {
		if err := grpcServer.Serve(lis); err != nil {
			logger.Error("gRPC serve error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	hs.Shutdown()
	grpcServer.GracefulStop()
}

// watchDropDir submits every new file under the drop directory as a
// background job. Content already submitted by this process is skipped.
func watchDropDir(ctx context.Context, cfg common.WatchConfig, sched *scheduler.Scheduler, logger *slog.Logger) error {
	events, errs, err := ingest.Watch(ctx, ingest.WatchConfig{
		Roots:       []string{cfg.Dir},
		SkipHidden:  true,
		InitialScan: true,
		Debounce:    cfg.Debounce,
	}, logger)
	if err != nil {
		return err
	}
	inspector := ingest.NewIngestor(ingest.Options{MaxFileSize: cfg.MaxFileSize}, logger)

	go func() {
		seen := map[string]bool{}
		for {
			select {
			case err, ok := <-errs:
				if !ok {
					errs = nil
					continue
				}
				logger.Warn("drop directory watch error", "error", err)
			case path, ok := <-events:
				if !ok {
					return
				}
				f, err := inspector.Inspect(path)
				if err != nil {
					logger.Warn("drop file skipped", "path", path, "error", err)
					continue
				}
				if seen[f.HashHex] {
					logger.Info("drop file repeats earlier content", "path", path)
					continue
				}
				data, err := os.ReadFile(f.Path)
				if err != nil {
					logger.Warn("drop file unreadable", "path", path, "error", err)
					continue
				}
				id, err := sched.Submit(ctx, scheduler.SubmitRequest{
					File:     data,
					FileName: filepath.Base(f.Path),
					Meta:     entity.ExtractionMeta{Source: "drop:" + filepath.Base(f.Path)},
				})
				if err != nil {
					logger.Error("drop file submit failed", "path", path, "error", err)
					continue
				}
				seen[f.HashHex] = true
				logger.Info("drop file submitted", "path", path, "job_id", id)
			}
		}
	}()
	return nil
}

func logLevel() slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(os.Getenv("LOG_LEVEL"))); err != nil {
		return slog.LevelInfo
	}
	return lvl
}
