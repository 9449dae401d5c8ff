// Package record implements the keyed records shared by drafts, exam results, attendance,
// achievements & offline grades: one record per natural key, owned by a single user.
package record

import (
	"bytes"
	"encoding/json"
	"sort"
	"strings"
	"time"

	"github.com/trezcool/chuo/core"
)

type Kind string

// Kinds
const (
	KindDraft        Kind = "drafts"
	KindExamResult   Kind = "exam_results"
	KindAttendance   Kind = "attendance"
	KindAchievement  Kind = "achievements"
	KindOfflineGrade Kind = "offline_grades"
)

var Kinds = []Kind{KindDraft, KindExamResult, KindAttendance, KindAchievement, KindOfflineGrade}

func (k Kind) Valid() bool {
	for _, kind := range Kinds {
		if k == kind {
			return true
		}
	}
	return false
}

// Mode tells how a second write on an existing key is handled.
type Mode int

const (
	// ModeUpsert replaces the payload in place and bumps UpdatedAt.
	ModeUpsert Mode = iota
	// ModeAppendOnce keeps the first payload; later writes are discarded.
	ModeAppendOnce
)

// Key is the natural key of a record. An empty UnitID stands for "no unit":
// absent and null units are the same key.
type Key struct {
	Kind     Kind
	UserID   string
	CourseID string
	UnitID   string
	LessonID string
	Type     string
}

func (k Key) Normalize() Key {
	k.UserID = strings.TrimSpace(k.UserID)
	k.CourseID = strings.TrimSpace(k.CourseID)
	k.UnitID = strings.TrimSpace(k.UnitID)
	k.LessonID = strings.TrimSpace(k.LessonID)
	k.Type = strings.TrimSpace(k.Type)
	return k
}

// String concatenates the key fields for log lines. Ids may contain "_", so two keys
// can print the same; compare Key values instead.
func (k Key) String() string {
	return strings.Join([]string{string(k.Kind), k.UserID, k.CourseID, k.UnitID, k.LessonID, k.Type}, "_")
}

func (k Key) validate() error {
	if !k.Kind.Valid() {
		return core.NewFieldError("kind", "unknown record kind")
	}
	if k.UserID == "" {
		return core.NewFieldError("user", "this field is required")
	}
	return nil
}

type Record struct {
	ID        string
	Key       Key
	Data      json.RawMessage
	CreatedAt time.Time // UTC
	UpdatedAt time.Time // UTC
}

// IsNew reports whether the record was just inserted (no update happened since).
func (r Record) IsNew() bool {
	return r.CreatedAt.Equal(r.UpdatedAt)
}

type recordJSON struct {
	ID        string          `json:"id"`
	Kind      Kind            `json:"kind"`
	User      string          `json:"user"`
	Course    string          `json:"course"`
	Unit      *string         `json:"unit"`
	Lesson    string          `json:"lesson"`
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

func (r Record) MarshalJSON() ([]byte, error) {
	rj := recordJSON{
		ID:        r.ID,
		Kind:      r.Key.Kind,
		User:      r.Key.UserID,
		Course:    r.Key.CourseID,
		Lesson:    r.Key.LessonID,
		Type:      r.Key.Type,
		Data:      r.Data,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
	if r.Key.UnitID != "" {
		unit := r.Key.UnitID
		rj.Unit = &unit
	}
	if len(rj.Data) == 0 {
		rj.Data = json.RawMessage("null")
	}
	return json.Marshal(rj)
}

func (r *Record) UnmarshalJSON(b []byte) error {
	var rj recordJSON
	if err := json.Unmarshal(b, &rj); err != nil {
		return err
	}
	*r = Record{
		ID: rj.ID,
		Key: Key{
			Kind:     rj.Kind,
			UserID:   rj.User,
			CourseID: rj.Course,
			LessonID: rj.Lesson,
			Type:     rj.Type,
		},
		Data:      rj.Data,
		CreatedAt: rj.CreatedAt,
		UpdatedAt: rj.UpdatedAt,
	}
	if rj.Unit != nil {
		r.Key.UnitID = *rj.Unit
	}
	return nil
}

// Decode unmarshals the record payload into v.
func (r Record) Decode(v interface{}) error {
	return json.Unmarshal(r.Data, v)
}

// checkPayload rejects missing, null and malformed payloads.
func checkPayload(data json.RawMessage) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return core.NewFieldError("data", "this field is required")
	}
	if !json.Valid(trimmed) {
		return core.NewFieldError("data", "invalid JSON")
	}
	if bytes.Equal(trimmed, []byte("{}")) || bytes.Equal(trimmed, []byte("[]")) || bytes.Equal(trimmed, []byte(`""`)) {
		return core.NewFieldError("data", "must not be empty")
	}
	return nil
}

// Sort orders records in place. Records are ordered by id when all fields compare equal.
func Sort(recs []Record, orderings []core.DBOrdering) {
	sort.SliceStable(recs, func(i, j int) bool {
		for _, ord := range orderings {
			var a, b time.Time
			switch ord.Field {
			case FieldCreatedAt:
				a, b = recs[i].CreatedAt, recs[j].CreatedAt
			case FieldUpdatedAt:
				a, b = recs[i].UpdatedAt, recs[j].UpdatedAt
			default:
				continue
			}
			if a.Equal(b) {
				continue
			}
			if ord.Ascending {
				return a.Before(b)
			}
			return a.After(b)
		}
		return recs[i].ID < recs[j].ID
	})
}
