// Package grade keeps the grades of exams taken outside of the platform (on paper, in class).
package grade

import (
	"context"
	"encoding/json"
	"math"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kat-co/vala"
	"github.com/pkg/errors"

	"github.com/trezcool/chuo/core"
	"github.com/trezcool/chuo/core/record"
	"github.com/trezcool/chuo/core/user"
)

// OfflineType is the record type of offline grades.
const OfflineType = "offline"

type (
	Grade struct {
		ExamTitle  string    `json:"exam_title"`
		Score      float64   `json:"score"`
		MaxScore   float64   `json:"max_score"`
		Percentage float64   `json:"percentage"`
		GradedBy   string    `json:"graded_by"`
		GradedAt   time.Time `json:"graded_at"`
		Notes      string    `json:"notes,omitempty"`
	}

	NewGrade struct {
		CourseID  string     `json:"course_id" validate:"required"`
		ExamTitle string     `json:"exam_title" validate:"required,max=150"`
		Score     float64    `json:"score" validate:"min=0,ltefield=MaxScore"`
		MaxScore  float64    `json:"max_score" validate:"gt=0"`
		GradedAt  *time.Time `json:"graded_at"`
		Notes     string     `json:"notes" validate:"max=500"`
	}

	Entry struct {
		record.Record
		Grade Grade `json:"-"`
	}
)

type Service struct {
	records  *record.Service
	users    *user.Service
	validate *validator.Validate
}

func NewService(store record.Store, users *user.Service, validate *validator.Validate) *Service {
	vala.BeginValidation().Validate(
		vala.IsNotNil(users, "users"),
		vala.IsNotNil(validate, "validate"),
	).CheckAndPanic()
	return &Service{
		records:  record.NewService(store, record.KindOfflineGrade, record.ModeUpsert),
		users:    users,
		validate: validate,
	}
}

// Record stores the grade of studentID for an exam of a course. Grading the same exam again
// replaces the previous grade.
func (svc *Service) Record(ctx context.Context, p record.Principal, studentID string, ng NewGrade) (Entry, error) {
	if err := p.RequireElevated(); err != nil {
		return Entry{}, err
	}
	if studentID = core.CleanString(studentID); studentID == "" {
		return Entry{}, core.NewFieldError("user", "this field is required")
	}
	ng.CourseID = core.CleanString(ng.CourseID)
	ng.ExamTitle = core.CleanString(ng.ExamTitle)
	if err := svc.validate.Struct(ng); err != nil {
		return Entry{}, err
	}
	slug := core.Slugify(ng.ExamTitle)
	if slug == "" {
		return Entry{}, core.NewFieldError("exam_title", "must contain letters or digits")
	}
	student, err := svc.users.GetByID(ctx, studentID)
	if err != nil {
		return Entry{}, err
	}

	g := Grade{
		ExamTitle:  ng.ExamTitle,
		Score:      ng.Score,
		MaxScore:   ng.MaxScore,
		Percentage: math.Round(ng.Score/ng.MaxScore*10000) / 100,
		GradedBy:   p.ID,
		GradedAt:   time.Now().UTC(),
		Notes:      core.CleanString(ng.Notes),
	}
	if ng.GradedAt != nil && !ng.GradedAt.IsZero() {
		g.GradedAt = ng.GradedAt.UTC()
	}
	data, err := json.Marshal(g)
	if err != nil {
		return Entry{}, errors.Wrap(err, "encoding grade")
	}
	rec, _, err := svc.records.Upsert(ctx, p, record.Key{
		UserID:   student.ID,
		CourseID: ng.CourseID,
		LessonID: slug,
		Type:     OfflineType,
	}, data)
	if err != nil {
		return Entry{}, err
	}
	return Entry{Record: rec, Grade: g}, nil
}

func (svc *Service) Delete(ctx context.Context, p record.Principal, id string) (string, error) {
	if err := p.RequireElevated(); err != nil {
		return "", err
	}
	return svc.records.Delete(ctx, p, id)
}

// ListForUser returns the grades of userID, optionally limited to a course.
func (svc *Service) ListForUser(ctx context.Context, p record.Principal, userID, courseID string) ([]Entry, error) {
	recs, err := svc.records.Query(ctx, p, record.Filter{UserID: userID, CourseID: core.CleanString(courseID), Type: OfflineType})
	if err != nil {
		return []Entry{}, err
	}
	entries := make([]Entry, 0, len(recs))
	for _, rec := range recs {
		var g Grade
		if err := rec.Decode(&g); err != nil {
			return []Entry{}, errors.Wrapf(err, "decoding grade %s", rec.ID)
		}
		entries = append(entries, Entry{Record: rec, Grade: g})
	}
	return entries, nil
}
