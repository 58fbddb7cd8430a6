package server

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/joseph-ayodele/people-extractor/internal/common"
	"github.com/joseph-ayodele/people-extractor/internal/core"
	"github.com/joseph-ayodele/people-extractor/internal/entity"
	"github.com/joseph-ayodele/people-extractor/internal/scheduler"
)

// Extractor is the synchronous surface; *core.Orchestrator satisfies it.
type Extractor interface {
	Extract(ctx context.Context, req core.ExtractRequest) (entity.ExtractionResult, error)
	Search(ctx context.Context, scope entity.Scope, f entity.SearchFilter) (entity.SearchPage, error)
	DeleteBatch(ctx context.Context, scope entity.Scope, batchID string) (int, error)
}

// Jobs is the background surface; *scheduler.Scheduler satisfies it.
type Jobs interface {
	Submit(ctx context.Context, req scheduler.SubmitRequest) (uuid.UUID, error)
	Get(ctx context.Context, id uuid.UUID) (entity.BackgroundJob, error)
	List(ctx context.Context) ([]entity.BackgroundJob, error)
}

// Exporter renders records as XLSX; *export.Service satisfies it.
type Exporter interface {
	BatchXLSX(ctx context.Context, scope entity.Scope, batchID string) ([]byte, error)
	SearchXLSX(ctx context.Context, scope entity.Scope, f entity.SearchFilter) ([]byte, error)
}

type PeopleService struct {
	extractor Extractor
	jobs      Jobs
	exporter  Exporter
	logger    *slog.Logger
}

var _ PeopleServiceServer = (*PeopleService)(nil)

func NewPeopleService(extractor Extractor, jobs Jobs, exporter Exporter, logger *slog.Logger) *PeopleService {
	if logger == nil {
		logger = slog.Default()
	}
	return &PeopleService{extractor: extractor, jobs: jobs, exporter: exporter, logger: logger}
}

type extractRequest struct {
	Text           string `json:"text"`
	File           []byte `json:"file"` // base64 in the Struct
	FileName       string `json:"file_name"`
	ExtractionType string `json:"extraction_type"`
	Source         string `json:"source"`
	Description    string `json:"description"`
}

func (r extractRequest) meta() entity.ExtractionMeta {
	return entity.ExtractionMeta{ExtractionType: r.ExtractionType, Source: r.Source, Description: r.Description}
}

type extractResponse struct {
	Success          bool                  `json:"success"`
	People           []entity.PersonRecord `json:"people"`
	Metadata         entity.ResultMetadata `json:"metadata"`
	Message          string                `json:"message"`
	ProcessingTimeMs int64                 `json:"processing_time_ms"`
}

func (s *PeopleService) Extract(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req extractRequest
	if err := decode(in, &req); err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.Text) == "" && len(req.File) == 0 {
		return nil, common.ValidationErr("text or file is required")
	}

	res, err := s.extractor.Extract(ctx, core.ExtractRequest{
		Text:     req.Text,
		File:     req.File,
		FileName: req.FileName,
		Meta:     req.meta(),
		Scope:    ScopeFromContext(ctx),
	})
	if err != nil {
		return nil, err
	}
	people := res.People
	if people == nil {
		people = []entity.PersonRecord{}
	}
	return encode(extractResponse{
		Success:          res.Success,
		People:           people,
		Metadata:         res.Metadata,
		Message:          res.Message,
		ProcessingTimeMs: res.ProcessingTime.Milliseconds(),
	})
}

type jobView struct {
	entity.BackgroundJob
	Progress float64 `json:"progress"`
}

func viewJob(j entity.BackgroundJob) jobView {
	v := jobView{BackgroundJob: j}
	if j.TotalChunks > 0 {
		v.Progress = float64(j.ProcessedChunks) / float64(j.TotalChunks)
	}
	return v
}

func (s *PeopleService) SubmitBackgroundJob(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req extractRequest
	if err := decode(in, &req); err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.Text) == "" && len(req.File) == 0 {
		return nil, common.ValidationErr("text or file is required")
	}
	id, err := s.jobs.Submit(ctx, scheduler.SubmitRequest{
		Text:     req.Text,
		File:     req.File,
		FileName: req.FileName,
		Meta:     req.meta(),
	})
	if err != nil {
		return nil, err
	}
	job, err := s.jobs.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return encode(viewJob(job))
}

func (s *PeopleService) GetJobStatus(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req struct {
		JobID string `json:"job_id"`
	}
	if err := decode(in, &req); err != nil {
		return nil, err
	}
	if err := common.NewValidator().Field("job_id", req.JobID, common.Required, common.UUID).Error(); err != nil {
		return nil, err
	}
	job, err := s.jobs.Get(ctx, uuid.MustParse(req.JobID))
	if err != nil {
		return nil, err
	}
	return encode(viewJob(job))
}

func (s *PeopleService) ListJobs(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	jobs, err := s.jobs.List(ctx)
	if err != nil {
		return nil, err
	}
	views := make([]jobView, len(jobs))
	for i, j := range jobs {
		views[i] = viewJob(j)
	}
	return encode(map[string]any{"jobs": views, "total": len(views)})
}

func (s *PeopleService) SearchRecords(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var f entity.SearchFilter
	if err := decode(in, &f); err != nil {
		return nil, err
	}
	page, err := s.extractor.Search(ctx, ScopeFromContext(ctx), f)
	if err != nil {
		return nil, err
	}
	if page.Records == nil {
		page.Records = []entity.ScopedPersonRecord{}
	}
	return encode(page)
}

func (s *PeopleService) DeleteBatch(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req struct {
		BatchID string `json:"batch_id"`
	}
	if err := decode(in, &req); err != nil {
		return nil, err
	}
	n, err := s.extractor.DeleteBatch(ctx, ScopeFromContext(ctx), req.BatchID)
	if err != nil {
		return nil, err
	}
	return encode(map[string]any{"batch_id": req.BatchID, "deleted": n})
}

type exportRequest struct {
	BatchID string               `json:"batch_id"`
	Filter  *entity.SearchFilter `json:"filter"`
}

type exportResponse struct {
	FileName    string `json:"file_name"`
	ContentType string `json:"content_type"`
	Content     []byte `json:"content"` // base64 in the Struct
}

func (s *PeopleService) ExportRecords(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req exportRequest
	if err := decode(in, &req); err != nil {
		return nil, err
	}
	scope := ScopeFromContext(ctx)

	var (
		data []byte
		name string
		err  error
	)
	switch {
	case strings.TrimSpace(req.BatchID) != "":
		data, err = s.exporter.BatchXLSX(ctx, scope, req.BatchID)
		name = fmt.Sprintf("people-%s.xlsx", req.BatchID)
	case req.Filter != nil:
		data, err = s.exporter.SearchXLSX(ctx, scope, *req.Filter)
		name = "people-search.xlsx"
	default:
		return nil, common.ValidationErr("batch_id or filter is required")
	}
	if err != nil {
		return nil, err
	}
	return encode(exportResponse{
		FileName:    name,
		ContentType: "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
		Content:     data,
	})
}
