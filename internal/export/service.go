package export

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/joseph-ayodele/people-extractor/internal/entity"
)

const (
	sheetName = "People"
	pageSize  = 500
	// MaxRows bounds a search export.
	MaxRows = 50_000
)

var headers = []string{
	"Name",
	"Email",
	"Position",
	"Company",
	"Phone",
	"Location",
	"Department",
	"LinkedIn",
	"Website",
	"Confidence",
	"Batch",
	"Chunk",
	"Duplicate in master",
}

// RecordSource is the read side of the person repository.
type RecordSource interface {
	ListByBatch(ctx context.Context, scope entity.Scope, batchID string) ([]entity.ScopedPersonRecord, error)
	Search(ctx context.Context, scope entity.Scope, f entity.SearchFilter) (entity.SearchPage, error)
}

// Service produces XLSX bytes for exports.
type Service struct {
	records RecordSource
	logger  *slog.Logger
}

func NewService(records RecordSource, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{records: records, logger: logger}
}

// BatchXLSX returns a workbook with every record of batchID in scope.
func (s *Service) BatchXLSX(ctx context.Context, scope entity.Scope, batchID string) ([]byte, error) {
	start := time.Now()
	recs, err := s.records.ListByBatch(ctx, scope, batchID)
	if err != nil {
		return nil, fmt.Errorf("query batch: %w", err)
	}
	out, err := WriteXLSX(recs)
	if err != nil {
		return nil, err
	}
	s.logger.Info("export.xlsx.ok",
		"scope", scope.Key(),
		"batch_id", batchID,
		"rows", len(recs),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return out, nil
}

// SearchXLSX pages through every match of f, ignoring f's own paging, up to
// MaxRows records.
func (s *Service) SearchXLSX(ctx context.Context, scope entity.Scope, f entity.SearchFilter) ([]byte, error) {
	start := time.Now()
	f.Limit, f.Offset = pageSize, 0

	var recs []entity.ScopedPersonRecord
	for len(recs) < MaxRows {
		page, err := s.records.Search(ctx, scope, f)
		if err != nil {
			return nil, fmt.Errorf("query records: %w", err)
		}
		recs = append(recs, page.Records...)
		f.Offset += len(page.Records)
		if len(page.Records) == 0 || f.Offset >= page.Total {
			break
		}
	}
	if len(recs) > MaxRows {
		s.logger.Warn("export.xlsx.truncated", "scope", scope.Key(), "max_rows", MaxRows)
		recs = recs[:MaxRows]
	}

	out, err := WriteXLSX(recs)
	if err != nil {
		return nil, err
	}
	s.logger.Info("export.xlsx.ok",
		"scope", scope.Key(),
		"rows", len(recs),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return out, nil
}

// WriteXLSX renders recs as a single-sheet workbook with a header row.
func WriteXLSX(recs []entity.ScopedPersonRecord) ([]byte, error) {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return nil, fmt.Errorf("xlsx sheet: %w", err)
	}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheetName, cell, h)
	}

	for i, r := range recs {
		row := i + 2
		dup := ""
		if r.UserID != "" {
			dup = strconv.FormatBool(r.IsDuplicateInMaster)
		}
		values := []any{
			r.Name,
			r.Email,
			r.Position,
			r.Company,
			r.Phone,
			r.Location,
			r.Department,
			r.LinkedIn,
			r.Website,
			r.Confidence,
			r.BatchID,
			fmt.Sprintf("%d/%d", r.ChunkIndex+1, max(r.TotalChunks, 1)),
			dup,
		}
		cell, _ := excelize.CoordinatesToCellName(1, row)
		if err := f.SetSheetRow(sheetName, cell, &values); err != nil {
			return nil, fmt.Errorf("xlsx row %d: %w", row, err)
		}
	}

	_ = f.SetColWidth(sheetName, "A", "A", 24) // name
	_ = f.SetColWidth(sheetName, "B", "B", 30) // email
	_ = f.SetColWidth(sheetName, "C", "G", 20)
	_ = f.SetColWidth(sheetName, "H", "I", 36) // links
	_ = f.SetColWidth(sheetName, "K", "K", 28) // batch

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}
	return buf.Bytes(), nil
}
