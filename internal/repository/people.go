package repository

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/google/uuid"

	"github.com/joseph-ayodele/people-extractor/constants"
	"github.com/joseph-ayodele/people-extractor/internal/common"
	"github.com/joseph-ayodele/people-extractor/internal/dedup"
	"github.com/joseph-ayodele/people-extractor/internal/entity"
)

const (
	defaultSearchLimit = 50
	maxSearchLimit     = 500
)

// PersonRepository persists extracted people in the shared corpus or a user's
// private corpus, selected per call by scope.
type PersonRepository interface {
	// InsertRecords stores records and returns only the ones actually inserted;
	// rows colliding on (batch, chunk, name, email) are skipped.
	InsertRecords(ctx context.Context, scope entity.Scope, records []entity.ScopedPersonRecord) ([]entity.ScopedPersonRecord, error)
	FindByCompositeKey(ctx context.Context, scope entity.Scope, key dedup.Match) (*entity.PersonRecord, error)
	FindMatch(ctx context.Context, scope entity.Scope, m dedup.Match) (*entity.PersonRecord, error)
	CountByBatch(ctx context.Context, scope entity.Scope, batchID string) (int, error)
	ListByBatch(ctx context.Context, scope entity.Scope, batchID string) ([]entity.ScopedPersonRecord, error)
	DeleteByBatch(ctx context.Context, scope entity.Scope, batchID string) (int, error)
	Search(ctx context.Context, scope entity.Scope, filter entity.SearchFilter) (entity.SearchPage, error)
}

type personRepository struct {
	db     *DB
	logger *slog.Logger
}

var _ dedup.Lookup = (*personRepository)(nil)

func NewPersonRepository(db *DB, logger *slog.Logger) PersonRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &personRepository{db: db, logger: logger}
}

func tableFor(scope entity.Scope) string {
	if scope.IsShared() {
		return tablePeople
	}
	return tableUserPeople
}

// scoped adds the owner predicate for user scopes.
func scoped(scope entity.Scope, preds ...*entsql.Predicate) *entsql.Predicate {
	if !scope.IsShared() {
		preds = append(preds, entsql.EQ("user_id", scope.UserID))
	}
	if len(preds) == 1 {
		return preds[0]
	}
	return entsql.And(preds...)
}

func (r *personRepository) InsertRecords(ctx context.Context, scope entity.Scope, records []entity.ScopedPersonRecord) ([]entity.ScopedPersonRecord, error) {
	if len(records) == 0 {
		return nil, nil
	}
	start := time.Now()
	shared := scope.IsShared()
	table := tableFor(scope)
	conflict := []string{"batch_id", "chunk_index", "name", "email"}
	if !shared {
		conflict = append([]string{"user_id"}, conflict...)
	}

	tx, err := r.db.SQL().BeginTx(ctx, nil)
	if err != nil {
		return nil, common.PersistenceErr("begin insert", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC()
	inserted := make([]entity.ScopedPersonRecord, 0, len(records))
	for _, rec := range records {
		if rec.ID == uuid.Nil {
			id, err := uuid.NewV7()
			if err != nil {
				return nil, common.PersistenceErr("generate id", err)
			}
			rec.ID = id
		}
		if rec.CreatedAt.IsZero() {
			rec.CreatedAt = now
		}
		rec.UpdatedAt = now
		if rec.Status == "" {
			rec.Status = constants.RecordStatusProcessed
		}
		rec.TotalChunks = max(rec.TotalChunks, 1)
		rec.Confidence = entity.ClampConfidence(rec.Confidence)
		if !shared {
			rec.UserID = scope.UserID
		}

		query, args := r.db.builder().Insert(table).
			Columns(columnsFor(shared)...).
			Values(scopedValues(rec, shared)...).
			OnConflict(entsql.ConflictColumns(conflict...), entsql.DoNothing()).
			Query()
		res, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			r.logger.Error("people.insert.error", "scope", scope.Key(), "batch_id", rec.BatchID, "error", err)
			return nil, common.PersistenceErr("insert person", err)
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			continue
		}
		inserted = append(inserted, rec)
	}

	if err := tx.Commit(); err != nil {
		return nil, common.PersistenceErr("commit insert", err)
	}
	r.logger.Debug("people.insert",
		"scope", scope.Key(),
		"requested", len(records),
		"inserted", len(inserted),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return inserted, nil
}

// FindByCompositeKey returns the oldest record in scope that the duplicate
// rule matches against key, or nil.
func (r *personRepository) FindByCompositeKey(ctx context.Context, scope entity.Scope, key dedup.Match) (*entity.PersonRecord, error) {
	var clauses []*entsql.Predicate
	if key.Email != "" {
		clauses = append(clauses, entsql.EqualFold("email", key.Email))
	}
	if key.Name != "" {
		clauses = append(clauses, entsql.And(
			entsql.EqualFold("name", key.Name),
			entsql.EqualFold("company", key.Company),
		))
	}
	if len(clauses) == 0 {
		return nil, nil
	}

	query, args := r.db.builder().Select(columnsFor(scope.IsShared())...).
		From(r.db.builder().Table(tableFor(scope))).
		Where(scoped(scope, entsql.Or(clauses...))).
		OrderBy(entsql.Asc("created_at")).
		Limit(1).
		Query()

	recs, err := r.query(ctx, scope, query, args)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, nil
	}
	return &recs[0].PersonRecord, nil
}

func (r *personRepository) FindMatch(ctx context.Context, scope entity.Scope, m dedup.Match) (*entity.PersonRecord, error) {
	return r.FindByCompositeKey(ctx, scope, m)
}

func (r *personRepository) CountByBatch(ctx context.Context, scope entity.Scope, batchID string) (int, error) {
	query, args := r.db.builder().Select(entsql.Count("*")).
		From(r.db.builder().Table(tableFor(scope))).
		Where(scoped(scope, entsql.EQ("batch_id", batchID))).
		Query()
	return r.count(ctx, query, args)
}

func (r *personRepository) ListByBatch(ctx context.Context, scope entity.Scope, batchID string) ([]entity.ScopedPersonRecord, error) {
	query, args := r.db.builder().Select(columnsFor(scope.IsShared())...).
		From(r.db.builder().Table(tableFor(scope))).
		Where(scoped(scope, entsql.EQ("batch_id", batchID))).
		OrderBy(entsql.Asc("chunk_index"), entsql.Asc("created_at"), entsql.Asc("id")).
		Query()
	return r.query(ctx, scope, query, args)
}

// DeleteByBatch removes the batch's rows. Deleting shared rows also clears
// the master-duplicate flag of every user row that pointed at them.
func (r *personRepository) DeleteByBatch(ctx context.Context, scope entity.Scope, batchID string) (int, error) {
	tx, err := r.db.SQL().BeginTx(ctx, nil)
	if err != nil {
		return 0, common.PersistenceErr("delete batch", err)
	}
	defer func() { _ = tx.Rollback() }()

	var unflagged int64
	if scope.IsShared() {
		ids := r.db.builder().Select("id").
			From(r.db.builder().Table(tablePeople)).
			Where(entsql.EQ("batch_id", batchID))
		query, args := r.db.builder().Update(tableUserPeople).
			Set("is_duplicate_in_master", false).
			SetNull("master_reference_id").
			Where(entsql.In("master_reference_id", ids)).
			Query()
		res, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			return 0, common.PersistenceErr("unflag master duplicates", err)
		}
		if unflagged, err = res.RowsAffected(); err != nil {
			return 0, common.PersistenceErr("unflag master duplicates", err)
		}
	}

	query, args := r.db.builder().Delete(tableFor(scope)).
		Where(scoped(scope, entsql.EQ("batch_id", batchID))).
		Query()
	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, common.PersistenceErr("delete batch", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, common.PersistenceErr("delete batch", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, common.PersistenceErr("delete batch", err)
	}
	r.logger.Info("people.delete_batch", "scope", scope.Key(), "batch_id", batchID, "deleted", n, "unflagged", unflagged)
	return int(n), nil
}

func (r *personRepository) Search(ctx context.Context, scope entity.Scope, f entity.SearchFilter) (entity.SearchPage, error) {
	limit := f.Limit
	switch {
	case limit <= 0:
		limit = defaultSearchLimit
	case limit > maxSearchLimit:
		limit = maxSearchLimit
	}
	offset := max(f.Offset, 0)

	// Predicates carry builder state, so each query gets a fresh set.
	where := func() *entsql.Predicate {
		var preds []*entsql.Predicate
		if f.Text != "" {
			preds = append(preds, entsql.Or(
				entsql.ContainsFold("name", f.Text),
				entsql.ContainsFold("email", f.Text),
				entsql.ContainsFold("company", f.Text),
				entsql.ContainsFold("position", f.Text),
			))
		}
		if f.Company != "" {
			preds = append(preds, entsql.ContainsFold("company", f.Company))
		}
		if f.Position != "" {
			preds = append(preds, entsql.ContainsFold("position", f.Position))
		}
		if f.Status != "" {
			preds = append(preds, entsql.EQ("status", string(f.Status)))
		}
		if f.BatchID != "" {
			preds = append(preds, entsql.EQ("batch_id", f.BatchID))
		}
		if len(preds) == 0 && scope.IsShared() {
			return nil
		}
		return scoped(scope, preds...)
	}

	countSel := r.db.builder().Select(entsql.Count("*")).From(r.db.builder().Table(tableFor(scope)))
	if p := where(); p != nil {
		countSel.Where(p)
	}
	query, args := countSel.Query()
	total, err := r.count(ctx, query, args)
	if err != nil {
		return entity.SearchPage{}, err
	}

	sel := r.db.builder().Select(columnsFor(scope.IsShared())...).From(r.db.builder().Table(tableFor(scope)))
	if p := where(); p != nil {
		sel.Where(p)
	}
	query, args = sel.
		OrderBy(entsql.Desc("created_at"), entsql.Asc("id")).
		Limit(limit).
		Offset(offset).
		Query()
	recs, err := r.query(ctx, scope, query, args)
	if err != nil {
		return entity.SearchPage{}, err
	}
	return entity.SearchPage{Records: recs, Total: total, Limit: limit, Offset: offset}, nil
}

func (r *personRepository) query(ctx context.Context, scope entity.Scope, query string, args []any) ([]entity.ScopedPersonRecord, error) {
	rows, err := r.db.SQL().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, common.PersistenceErr("query people", err)
	}
	defer rows.Close()

	var out []entity.ScopedPersonRecord
	for rows.Next() {
		rec, err := scanScoped(rows, scope.IsShared())
		if err != nil {
			return nil, common.PersistenceErr("scan person", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, common.PersistenceErr("iterate people", err)
	}
	return out, nil
}

func (r *personRepository) count(ctx context.Context, query string, args []any) (int, error) {
	var n int
	if err := r.db.SQL().QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, common.PersistenceErr("count people", err)
	}
	return n, nil
}
