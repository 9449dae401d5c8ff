package examresult

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"strconv"
	"time"

	"github.com/pkg/errors"
)

// Legacy course documents. Attempts used to be embedded in the trainings & exams of each lesson.
type (
	Course struct {
		ID            LegacyID `json:"_id"`
		Title         string   `json:"title"`
		DirectLessons []Lesson `json:"directLessons"`
		Units         []Unit   `json:"units"`
	}

	Unit struct {
		ID      LegacyID `json:"_id"`
		Title   string   `json:"title"`
		Lessons []Lesson `json:"lessons"`
	}

	Lesson struct {
		ID        LegacyID     `json:"_id"`
		Title     string       `json:"title"`
		Trainings []Assessment `json:"trainings"`
		Exams     []Assessment `json:"exams"`
	}

	Assessment struct {
		Title        string     `json:"title"`
		TimeLimit    int        `json:"timeLimit"`
		Questions    []Question `json:"questions"`
		UserAttempts []Attempt  `json:"userAttempts"`
	}

	Question struct {
		Question      string   `json:"question"`
		Options       []string `json:"options"`
		CorrectAnswer int      `json:"correctAnswer"`
	}

	Attempt struct {
		UserID         LegacyID        `json:"userId"`
		Score          int             `json:"score"`
		TotalQuestions int             `json:"totalQuestions"`
		Answers        []AttemptAnswer `json:"answers"`
		TakenAt        LegacyDate      `json:"takenAt"`
	}

	AttemptAnswer struct {
		QuestionIndex  int  `json:"questionIndex"`
		SelectedAnswer *int `json:"selectedAnswer"`
		IsCorrect      bool `json:"isCorrect"`
	}
)

// LegacyID is a document id exported either as a plain string or as extended JSON {"$oid": "..."}.
type LegacyID string

func (id *LegacyID) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		*id = ""
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*id = LegacyID(s)
		return nil
	}
	var oid struct {
		OID string `json:"$oid"`
	}
	if err := json.Unmarshal(b, &oid); err != nil {
		return errors.Wrap(err, "invalid id")
	}
	*id = LegacyID(oid.OID)
	return nil
}

func (id LegacyID) String() string { return string(id) }

// LegacyDate is a timestamp exported as RFC 3339 text or as extended JSON {"$date": ...}.
// The zero value means the date is unknown.
type LegacyDate struct {
	time.Time
}

func (d *LegacyDate) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		d.Time = time.Time{}
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		return d.parse(s)
	}
	var ext struct {
		Date json.RawMessage `json:"$date"`
	}
	if err := json.Unmarshal(b, &ext); err != nil {
		return errors.Wrap(err, "invalid date")
	}
	if err := json.Unmarshal(ext.Date, &s); err == nil {
		return d.parse(s)
	}
	// canonical form: {"$date": {"$numberLong": "<millis>"}} or a bare number
	var long struct {
		NumberLong string `json:"$numberLong"`
	}
	if err := json.Unmarshal(ext.Date, &long); err == nil && long.NumberLong != "" {
		return d.millis(long.NumberLong)
	}
	return d.millis(string(ext.Date))
}

func (d *LegacyDate) parse(s string) error {
	if s == "" {
		d.Time = time.Time{}
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return errors.Wrap(err, "invalid date")
	}
	d.Time = t
	return nil
}

func (d *LegacyDate) millis(s string) error {
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return errors.Wrap(err, "invalid date")
	}
	d.Time = time.Unix(0, ms*int64(time.Millisecond)).UTC()
	return nil
}

// CourseSource provides the legacy courses to backfill from.
type CourseSource interface {
	Courses(ctx context.Context) ([]Course, error)
}

// FileSource reads legacy courses from a JSON array, as produced by `mongoexport --jsonArray`.
type FileSource struct {
	Path string
}

func (src FileSource) Courses(_ context.Context) ([]Course, error) {
	b, err := os.ReadFile(src.Path)
	if err != nil {
		return nil, errors.Wrap(err, "reading courses file")
	}
	var courses []Course
	if err := json.Unmarshal(b, &courses); err != nil {
		return nil, errors.Wrapf(err, "decoding %s", src.Path)
	}
	return courses, nil
}
