package record

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/chuo/core"
)

// Sortable fields
const (
	FieldCreatedAt = "created_at"
	FieldUpdatedAt = "updated_at"
)

var (
	ErrNotFound = errors.New("record not found")

	// DefaultOrdering lists the most recently updated first.
	DefaultOrdering = []core.DBOrdering{{Field: FieldUpdatedAt}}
)

// Store persists records. Every method is atomic at the single record level.
type Store interface {
	// Upsert creates the record for key or replaces its payload, and returns the post-image.
	Upsert(ctx context.Context, key Key, data json.RawMessage) (Record, error)
	// InsertOnce creates the record for key unless one exists, in which case the stored record
	// is returned untouched with created = false.
	InsertOnce(ctx context.Context, key Key, data json.RawMessage) (rec Record, created bool, err error)
	// Find returns the records of kind matching filter, sorted by filter.Ordering.
	Find(ctx context.Context, kind Kind, filter Filter) ([]Record, error)
	// FindOne returns the record with id. A non-empty userID must match the owner, otherwise ErrNotFound.
	FindOne(ctx context.Context, kind Kind, id, userID string) (Record, error)
	DeleteOne(ctx context.Context, kind Kind, id string) error
	DeleteMany(ctx context.Context, kind Kind, ids []string) (int, error)
}

// Filter is a partial natural key. Empty fields match anything; UnitID == nil matches any unit
// while a pointer to "" only matches records without a unit.
type Filter struct {
	UserID      string
	CourseID    string
	UnitID      *string
	LessonID    string
	Type        string
	CreatedFrom time.Time
	CreatedTo   time.Time
	Ordering    []core.DBOrdering
}

// Matches is used by stores that filter in process.
func (f Filter) Matches(rec Record) bool {
	switch {
	case f.UserID != "" && rec.Key.UserID != f.UserID,
		f.CourseID != "" && rec.Key.CourseID != f.CourseID,
		f.UnitID != nil && rec.Key.UnitID != *f.UnitID,
		f.LessonID != "" && rec.Key.LessonID != f.LessonID,
		f.Type != "" && rec.Key.Type != f.Type,
		!f.CreatedFrom.IsZero() && rec.CreatedAt.Before(f.CreatedFrom),
		!f.CreatedTo.IsZero() && rec.CreatedAt.After(f.CreatedTo):
		return false
	}
	return true
}

// OrderingOrDefault returns the filter ordering or DefaultOrdering.
func (f Filter) OrderingOrDefault() []core.DBOrdering {
	if len(f.Ordering) == 0 {
		return DefaultOrdering
	}
	return f.Ordering
}

func (f Filter) validate() error {
	for _, ord := range f.Ordering {
		if ord.Field != FieldCreatedAt && ord.Field != FieldUpdatedAt {
			return core.NewFieldError("ordering", "unknown field "+ord.Field)
		}
	}
	if !f.CreatedFrom.IsZero() && !f.CreatedTo.IsZero() && f.CreatedTo.Before(f.CreatedFrom) {
		return core.NewFieldError("created_to", "must not be before created_from")
	}
	return nil
}

// StoreError wraps a persistence failure. It is never retried and surfaces as a 500.
type StoreError struct {
	Op  string
	Err error
}

func NewStoreError(op string, err error) error {
	return &StoreError{Op: op, Err: err}
}

func (e *StoreError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *StoreError) Unwrap() error {
	return e.Err
}
