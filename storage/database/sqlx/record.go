// Package sqlxrepos implements the stores on PostgreSQL with sqlx.
package sqlxrepos

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/chuo/core/record"
)

const (
	recordColumns = "id, kind, user_id, course_id, unit_id, lesson_id, type, data, created_at, updated_at"

	// matches record_natural_key_idx
	recordConflictTarget = "(kind, user_id, course_id, (COALESCE(unit_id, '')), lesson_id, type)"

	upsertRecordQuery = `
INSERT INTO record (` + recordColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)
ON CONFLICT ` + recordConflictTarget + `
DO UPDATE SET
    data = EXCLUDED.data,
    updated_at = GREATEST(EXCLUDED.updated_at, record.created_at + INTERVAL '1 microsecond')
RETURNING ` + recordColumns

	insertRecordOnceQuery = `
INSERT INTO record (` + recordColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)
ON CONFLICT ` + recordConflictTarget + ` DO NOTHING
RETURNING ` + recordColumns

	selectRecordByKeyQuery = `
SELECT ` + recordColumns + ` FROM record
WHERE kind = $1 AND user_id = $2 AND course_id = $3 AND COALESCE(unit_id, '') = $4 AND lesson_id = $5 AND type = $6`
)

type recordRow struct {
	ID        string         `db:"id"`
	Kind      string         `db:"kind"`
	UserID    string         `db:"user_id"`
	CourseID  string         `db:"course_id"`
	UnitID    null.String    `db:"unit_id"`
	LessonID  string         `db:"lesson_id"`
	Type      string         `db:"type"`
	Data      types.JSONText `db:"data"`
	CreatedAt time.Time      `db:"created_at"`
	UpdatedAt time.Time      `db:"updated_at"`
}

func (row recordRow) record() record.Record {
	return record.Record{
		ID: row.ID,
		Key: record.Key{
			Kind:     record.Kind(row.Kind),
			UserID:   row.UserID,
			CourseID: row.CourseID,
			UnitID:   row.UnitID.String,
			LessonID: row.LessonID,
			Type:     row.Type,
		},
		Data:      json.RawMessage(row.Data),
		CreatedAt: row.CreatedAt.UTC(),
		UpdatedAt: row.UpdatedAt.UTC(),
	}
}

type recordStore struct {
	db *sqlx.DB
}

var _ record.Store = (*recordStore)(nil) // interface compliance check

func NewRecordStore(db *sql.DB) *recordStore {
	return &recordStore{db: sqlx.NewDb(db, "postgres")}
}

func insertArgs(key record.Key, data json.RawMessage) []interface{} {
	return []interface{}{
		uuid.New().String(),
		string(key.Kind),
		key.UserID,
		key.CourseID,
		null.NewString(key.UnitID, key.UnitID != ""),
		key.LessonID,
		key.Type,
		types.JSONText(data),
		time.Now().UTC(),
	}
}

func (s *recordStore) Upsert(ctx context.Context, key record.Key, data json.RawMessage) (record.Record, error) {
	var row recordRow
	if err := s.db.GetContext(ctx, &row, upsertRecordQuery, insertArgs(key, data)...); err != nil {
		return record.Record{}, record.NewStoreError("upserting record", err)
	}
	return row.record(), nil
}

func (s *recordStore) InsertOnce(ctx context.Context, key record.Key, data json.RawMessage) (record.Record, bool, error) {
	var row recordRow
	err := s.db.GetContext(ctx, &row, insertRecordOnceQuery, insertArgs(key, data)...)
	if err == nil {
		return row.record(), true, nil
	}
	if err != sql.ErrNoRows {
		return record.Record{}, false, record.NewStoreError("inserting record", err)
	}

	// conflict: return the stored record
	err = s.db.GetContext(ctx, &row, selectRecordByKeyQuery,
		string(key.Kind), key.UserID, key.CourseID, key.UnitID, key.LessonID, key.Type)
	if err != nil {
		return record.Record{}, false, record.NewStoreError("finding record by key", err)
	}
	return row.record(), false, nil
}

func (s *recordStore) Find(ctx context.Context, kind record.Kind, filter record.Filter) ([]record.Record, error) {
	conds := []string{"kind = ?"}
	args := []interface{}{string(kind)}
	eq := func(column, val string) {
		if val != "" {
			conds = append(conds, column+" = ?")
			args = append(args, val)
		}
	}
	eq("user_id", filter.UserID)
	eq("course_id", filter.CourseID)
	eq("lesson_id", filter.LessonID)
	eq("type", filter.Type)
	if filter.UnitID != nil {
		conds = append(conds, "COALESCE(unit_id, '') = ?")
		args = append(args, *filter.UnitID)
	}
	if !filter.CreatedFrom.IsZero() {
		conds = append(conds, "created_at >= ?")
		args = append(args, filter.CreatedFrom.UTC())
	}
	if !filter.CreatedTo.IsZero() {
		conds = append(conds, "created_at <= ?")
		args = append(args, filter.CreatedTo.UTC())
	}

	orderings := filter.OrderingOrDefault()
	orderList := make([]string, 0, len(orderings)+1)
	for _, ord := range orderings {
		if ord.Field == record.FieldCreatedAt || ord.Field == record.FieldUpdatedAt {
			orderList = append(orderList, ord.String())
		}
	}
	orderList = append(orderList, "id ASC")

	q := "SELECT " + recordColumns + " FROM record WHERE " + strings.Join(conds, " AND ") +
		" ORDER BY " + strings.Join(orderList, ", ")

	var rows []recordRow
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(q), args...); err != nil {
		return nil, record.NewStoreError("querying records", err)
	}
	recs := make([]record.Record, 0, len(rows))
	for _, row := range rows {
		recs = append(recs, row.record())
	}
	return recs, nil
}

func (s *recordStore) FindOne(ctx context.Context, kind record.Kind, id, userID string) (record.Record, error) {
	if _, err := uuid.Parse(id); err != nil {
		return record.Record{}, record.ErrNotFound
	}
	q := "SELECT " + recordColumns + " FROM record WHERE kind = $1 AND id = $2"
	args := []interface{}{string(kind), id}
	if userID != "" {
		q += " AND user_id = $3"
		args = append(args, userID)
	}

	var row recordRow
	if err := s.db.GetContext(ctx, &row, q, args...); err != nil {
		if err == sql.ErrNoRows {
			return record.Record{}, record.ErrNotFound
		}
		return record.Record{}, record.NewStoreError("finding record", err)
	}
	return row.record(), nil
}

func (s *recordStore) DeleteOne(ctx context.Context, kind record.Kind, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return record.ErrNotFound
	}
	res, err := s.db.ExecContext(ctx, "DELETE FROM record WHERE kind = $1 AND id = $2", string(kind), id)
	if err != nil {
		return record.NewStoreError("deleting record", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return record.NewStoreError("deleting record", err)
	}
	if n == 0 {
		return record.ErrNotFound
	}
	return nil
}

func (s *recordStore) DeleteMany(ctx context.Context, kind record.Kind, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	q, args, err := sqlx.In("DELETE FROM record WHERE kind = ? AND id IN (?)", string(kind), ids)
	if err != nil {
		return 0, errors.Wrap(err, "building delete query")
	}
	res, err := s.db.ExecContext(ctx, s.db.Rebind(q), args...)
	if err != nil {
		return 0, record.NewStoreError("deleting records", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, record.NewStoreError("deleting records", err)
	}
	return int(n), nil
}
