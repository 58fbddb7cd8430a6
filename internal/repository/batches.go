package repository

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	entsql "entgo.io/ent/dialect/sql"

	"github.com/joseph-ayodele/people-extractor/internal/common"
	"github.com/joseph-ayodele/people-extractor/internal/entity"
)

// BatchRepository maps (content hash, scope) to the batch id first issued for
// that content, so resubmissions reuse it. A batch is marked processed once
// its analysis completes.
type BatchRepository interface {
	// Register stores batchID for the pair unless one exists, and returns the
	// batch now on record.
	Register(ctx context.Context, contentHash string, scope entity.Scope, batchID string) (entity.Batch, error)
	Lookup(ctx context.Context, contentHash string, scope entity.Scope) (entity.Batch, bool, error)
	MarkProcessed(ctx context.Context, scope entity.Scope, batchID string, at time.Time) error
	Forget(ctx context.Context, scope entity.Scope, batchID string) error
}

type batchRepository struct {
	db     *DB
	logger *slog.Logger
}

func NewBatchRepository(db *DB, logger *slog.Logger) BatchRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &batchRepository{db: db, logger: logger}
}

func (r *batchRepository) Register(ctx context.Context, contentHash string, scope entity.Scope, batchID string) (entity.Batch, error) {
	query, args := r.db.builder().Insert(tableBatches).
		Columns("content_hash", "scope_key", "batch_id", "created_at").
		Values(contentHash, scope.Key(), batchID, time.Now().UTC()).
		OnConflict(entsql.ConflictColumns("content_hash", "scope_key"), entsql.DoNothing()).
		Query()
	if _, err := r.db.SQL().ExecContext(ctx, query, args...); err != nil {
		return entity.Batch{}, common.PersistenceErr("register batch", err)
	}

	b, ok, err := r.Lookup(ctx, contentHash, scope)
	if err != nil {
		return entity.Batch{}, err
	}
	if !ok {
		return entity.Batch{}, common.PersistenceErr("register batch", common.ErrInternal)
	}
	if b.ID != batchID {
		r.logger.Debug("batches.register.existing", "scope", scope.Key(), "batch_id", b.ID, "processed", b.Processed())
	}
	return b, nil
}

func (r *batchRepository) Lookup(ctx context.Context, contentHash string, scope entity.Scope) (entity.Batch, bool, error) {
	query, args := r.db.builder().Select("batch_id", "created_at", "processed_at").
		From(r.db.builder().Table(tableBatches)).
		Where(entsql.And(
			entsql.EQ("content_hash", contentHash),
			entsql.EQ("scope_key", scope.Key()),
		)).
		Query()

	b := entity.Batch{ContentHash: contentHash, Scope: scope}
	var created, processed dbTime
	err := r.db.SQL().QueryRowContext(ctx, query, args...).Scan(&b.ID, &created, &processed)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return entity.Batch{}, false, nil
	case err != nil:
		return entity.Batch{}, false, common.PersistenceErr("lookup batch", err)
	}
	b.CreatedAt = created.Time
	b.ProcessedAt = processed.ptr()
	return b, true, nil
}

func (r *batchRepository) MarkProcessed(ctx context.Context, scope entity.Scope, batchID string, at time.Time) error {
	query, args := r.db.builder().Update(tableBatches).
		Set("processed_at", at.UTC()).
		Where(entsql.And(
			entsql.EQ("batch_id", batchID),
			entsql.EQ("scope_key", scope.Key()),
		)).
		Query()
	if _, err := r.db.SQL().ExecContext(ctx, query, args...); err != nil {
		return common.PersistenceErr("mark batch processed", err)
	}
	return nil
}

func (r *batchRepository) Forget(ctx context.Context, scope entity.Scope, batchID string) error {
	query, args := r.db.builder().Delete(tableBatches).
		Where(entsql.And(
			entsql.EQ("batch_id", batchID),
			entsql.EQ("scope_key", scope.Key()),
		)).
		Query()
	if _, err := r.db.SQL().ExecContext(ctx, query, args...); err != nil {
		return common.PersistenceErr("forget batch", err)
	}
	return nil
}
