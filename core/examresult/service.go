package examresult

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kat-co/vala"
	"github.com/pkg/errors"

	"github.com/trezcool/chuo/core"
	"github.com/trezcool/chuo/core/record"
)

// Entry is a stored result with its decoded payload.
type Entry struct {
	record.Record
	Result Result `json:"-"`
}

type Service struct {
	records  *record.Service
	validate *validator.Validate
	now      func() time.Time
}

func NewService(store record.Store, validate *validator.Validate) *Service {
	vala.BeginValidation().Validate(
		vala.IsNotNil(store, "store"),
		vala.IsNotNil(validate, "validate"),
	).CheckAndPanic()
	return &Service{
		records:  record.NewService(store, record.KindExamResult, record.ModeAppendOnce),
		validate: validate,
		now:      time.Now,
	}
}

func key(userID, courseID, lessonID string, examType ExamType) record.Key {
	return record.Key{UserID: userID, CourseID: courseID, LessonID: lessonID, Type: string(examType)}
}

// Submit scores and stores the caller's attempt. When a result already exists for the lesson &
// exam type, the stored result is returned unchanged with created = false.
func (svc *Service) Submit(
	ctx context.Context,
	p record.Principal,
	courseID, lessonID, examType string,
	sub Submission,
) (Entry, bool, error) {
	et, err := ParseExamType(examType)
	if err != nil {
		return Entry{}, false, err
	}
	courseID, lessonID = core.CleanString(courseID), core.CleanString(lessonID)
	if courseID == "" {
		return Entry{}, false, core.NewFieldError("course", "this field is required")
	}
	if lessonID == "" {
		return Entry{}, false, core.NewFieldError("lesson", "this field is required")
	}
	if err := svc.validate.Struct(sub); err != nil {
		return Entry{}, false, err
	}

	res, err := sub.result(et, svc.now().UTC())
	if err != nil {
		return Entry{}, false, err
	}
	data, err := json.Marshal(res)
	if err != nil {
		return Entry{}, false, errors.Wrap(err, "encoding exam result")
	}

	// the owner always comes from the principal
	rec, created, err := svc.records.Upsert(ctx, p, key(p.ID, courseID, lessonID, et), data)
	if err != nil {
		return Entry{}, false, err
	}
	entry, err := decode(rec)
	return entry, created, err
}

// ListForUser returns the results of userID (empty for the caller), optionally limited to a course.
func (svc *Service) ListForUser(ctx context.Context, p record.Principal, userID, courseID string) ([]Entry, error) {
	recs, err := svc.records.Query(ctx, p, record.Filter{UserID: userID, CourseID: core.CleanString(courseID)})
	if err != nil {
		return []Entry{}, err
	}
	entries := make([]Entry, 0, len(recs))
	for _, rec := range recs {
		entry, err := decode(rec)
		if err != nil {
			return []Entry{}, err
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func (svc *Service) Delete(ctx context.Context, p record.Principal, id string) (string, error) {
	return svc.records.Delete(ctx, p, id)
}

// NewSweeper returns the deduplication sweep of the exam results collection.
func NewSweeper(store record.Store, logger core.Logger) *record.Sweeper {
	return record.NewSweeper(store, record.KindExamResult, logger)
}

func decode(rec record.Record) (Entry, error) {
	var res Result
	if err := rec.Decode(&res); err != nil {
		return Entry{}, errors.Wrapf(err, "decoding exam result %s", rec.ID)
	}
	return Entry{Record: rec, Result: res}, nil
}

// Decode returns the payload of an exam result record.
func Decode(rec record.Record) (Result, error) {
	entry, err := decode(rec)
	return entry.Result, err
}
