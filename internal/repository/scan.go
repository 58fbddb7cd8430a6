package repository

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/people-extractor/constants"
	"github.com/joseph-ayodele/people-extractor/internal/entity"
)

const (
	tablePeople     = "people"
	tableUserPeople = "user_people"
	tableBatches    = "batches"
	tableJobs       = "background_jobs"
)

var personColumns = []string{
	"id", "name", "email", "position", "company", "phone", "location",
	"department", "linkedin", "website", "additional_info", "confidence",
	"source", "extraction_type", "status", "batch_id", "chunk_index",
	"total_chunks", "created_at", "updated_at",
}

var userColumns = []string{"user_id", "is_duplicate_in_master", "master_reference_id"}

func columnsFor(shared bool) []string {
	if shared {
		return personColumns
	}
	return append(append([]string{}, personColumns...), userColumns...)
}

func personValues(p entity.PersonRecord) []any {
	return []any{
		p.ID, p.Name, p.Email, p.Position, p.Company, p.Phone, p.Location,
		p.Department, p.LinkedIn, p.Website, p.AdditionalInfo, p.Confidence,
		p.Source, p.ExtractionType, string(p.Status), p.BatchID, p.ChunkIndex,
		p.TotalChunks, p.CreatedAt.UTC(), p.UpdatedAt.UTC(),
	}
}

func scopedValues(r entity.ScopedPersonRecord, shared bool) []any {
	vals := personValues(r.PersonRecord)
	if shared {
		return vals
	}
	master := uuid.NullUUID{}
	if r.MasterReferenceID != nil {
		master = uuid.NullUUID{UUID: *r.MasterReferenceID, Valid: true}
	}
	return append(vals, r.UserID, r.IsDuplicateInMaster, master)
}

// dbTime scans timestamps from both backends: pgx yields time.Time, the
// sqlite driver may yield text.
type dbTime struct {
	Time  time.Time
	Valid bool
}

var timeLayouts = []string{
	"2006-01-02 15:04:05.999999999-07:00",
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
}

func (t *dbTime) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*t = dbTime{}
		return nil
	case time.Time:
		*t = dbTime{Time: v, Valid: true}
		return nil
	case []byte:
		return t.parse(string(v))
	case string:
		return t.parse(v)
	case int64:
		*t = dbTime{Time: time.Unix(v, 0).UTC(), Valid: true}
		return nil
	}
	return fmt.Errorf("unsupported time value %T", src)
}

func (t *dbTime) parse(s string) error {
	for _, layout := range timeLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			*t = dbTime{Time: ts, Valid: true}
			return nil
		}
	}
	return fmt.Errorf("unparseable time %q", s)
}

func (t dbTime) ptr() *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

func scanScoped(rows *sql.Rows, shared bool) (entity.ScopedPersonRecord, error) {
	var (
		r                 entity.ScopedPersonRecord
		status            string
		created, updated  dbTime
		master            uuid.NullUUID
		userID            sql.NullString
		duplicateInMaster sql.NullBool
	)
	p := &r.PersonRecord
	dest := []any{
		&p.ID, &p.Name, &p.Email, &p.Position, &p.Company, &p.Phone, &p.Location,
		&p.Department, &p.LinkedIn, &p.Website, &p.AdditionalInfo, &p.Confidence,
		&p.Source, &p.ExtractionType, &status, &p.BatchID, &p.ChunkIndex,
		&p.TotalChunks, &created, &updated,
	}
	if !shared {
		dest = append(dest, &userID, &duplicateInMaster, &master)
	}
	if err := rows.Scan(dest...); err != nil {
		return r, err
	}

	p.Status = constants.RecordStatus(status)
	p.CreatedAt, p.UpdatedAt = created.Time, updated.Time
	r.UserID = userID.String
	r.IsDuplicateInMaster = duplicateInMaster.Bool
	if master.Valid {
		id := master.UUID
		r.MasterReferenceID = &id
	}
	return r, nil
}
