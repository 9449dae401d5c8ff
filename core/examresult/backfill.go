package examresult

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/kat-co/vala"
	"github.com/pkg/errors"

	"github.com/trezcool/chuo/core"
	"github.com/trezcool/chuo/core/record"
)

// Backfill constants
const (
	BackfillPassThreshold    = 0.5
	BackfillDefaultTimeLimit = 30 // minutes
)

// BackfillReport sums up a backfill run.
type BackfillReport struct {
	Courses int `json:"courses"`
	Scanned int `json:"scanned"` // attempts
	Created int `json:"created"`
	Skipped int `json:"skipped"` // already migrated
	Failed  int `json:"failed"`
}

// Backfiller creates the exam results of attempts embedded in legacy course documents.
// It must not run concurrently with another backfill or a sweep.
type Backfiller struct {
	records *record.Service
	logger  core.Logger
	loc     *time.Location
	now     func() time.Time
}

type BackfillOption func(bf *Backfiller)

// WithBackfillClock overrides the clock used for attempts without a date.
func WithBackfillClock(now func() time.Time) BackfillOption {
	return func(bf *Backfiller) { bf.now = now }
}

// NewBackfiller returns a Backfiller; attempts without a date are completed "now" in loc.
func NewBackfiller(store record.Store, logger core.Logger, loc *time.Location, opts ...BackfillOption) *Backfiller {
	vala.BeginValidation().Validate(
		vala.IsNotNil(store, "store"),
		vala.IsNotNil(logger, "logger"),
	).CheckAndPanic()
	if loc == nil {
		loc = time.UTC
	}
	bf := &Backfiller{
		records: record.NewService(store, record.KindExamResult, record.ModeAppendOnce),
		logger:  logger,
		loc:     loc,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(bf)
	}
	return bf
}

type attemptRef struct {
	course     Course
	unit       *Unit
	lesson     Lesson
	assessment Assessment
	examType   ExamType
	attempt    Attempt
}

func (ref attemptRef) key() record.Key {
	return key(ref.attempt.UserID.String(), ref.course.ID.String(), ref.lesson.ID.String(), ref.examType)
}

// Migrate walks every course, its direct lessons and the lessons of its units, and creates a result
// for each training & exam attempt that doesn't have one yet. Re-runs skip migrated attempts.
// A failing attempt is logged and counted; only a cancelled context stops the walk.
func (bf *Backfiller) Migrate(ctx context.Context, courses []Course) (BackfillReport, error) {
	var report BackfillReport

	for _, course := range courses {
		report.Courses++
		bf.logger.Info(fmt.Sprintf("backfill: processing course %s (%s)", course.ID, course.Title))

		for _, lesson := range course.DirectLessons {
			if err := bf.lesson(ctx, &report, course, nil, lesson); err != nil {
				return report, err
			}
		}
		for i := range course.Units {
			unit := &course.Units[i]
			for _, lesson := range unit.Lessons {
				if err := bf.lesson(ctx, &report, course, unit, lesson); err != nil {
					return report, err
				}
			}
		}
	}
	bf.logger.Info(fmt.Sprintf("backfill: done, %d results created", report.Created))
	return report, nil
}

func (bf *Backfiller) lesson(ctx context.Context, report *BackfillReport, course Course, unit *Unit, lesson Lesson) error {
	walk := func(assessments []Assessment, examType ExamType) error {
		for _, asmt := range assessments {
			for _, attempt := range asmt.UserAttempts {
				if err := ctx.Err(); err != nil {
					return err
				}
				report.Scanned++
				ref := attemptRef{course: course, unit: unit, lesson: lesson, assessment: asmt, examType: examType, attempt: attempt}

				created, err := bf.attempt(ctx, ref)
				switch {
				case err != nil:
					report.Failed++
					bf.logger.Error(fmt.Sprintf("backfill: migrating %s attempt of user %s in lesson %s: %v",
						examType, attempt.UserID, lesson.ID, err), err)
				case created:
					report.Created++
				default:
					report.Skipped++
				}
			}
		}
		return nil
	}

	if err := walk(lesson.Trainings, ExamTraining); err != nil {
		return err
	}
	return walk(lesson.Exams, ExamFinal)
}

func (bf *Backfiller) attempt(ctx context.Context, ref attemptRef) (bool, error) {
	k := ref.key()
	existing, err := bf.records.Query(ctx, record.System, record.Filter{
		UserID:   k.UserID,
		CourseID: k.CourseID,
		LessonID: k.LessonID,
		Type:     k.Type,
	})
	if err != nil {
		return false, errors.Wrap(err, "looking up result")
	}
	if len(existing) > 0 {
		return false, nil
	}

	res, err := bf.result(ref)
	if err != nil {
		return false, err
	}
	data, err := json.Marshal(res)
	if err != nil {
		return false, errors.Wrap(err, "encoding exam result")
	}
	_, created, err := bf.records.Upsert(ctx, record.System, k, data)
	return created, err
}

// result summarizes an attempt. The pass mark is fixed, whatever the exam's own passing score.
// An attempt without questions is kept as a failed result.
func (bf *Backfiller) result(ref attemptRef) (Result, error) {
	att := ref.attempt
	if att.UserID == "" {
		return Result{}, errors.New("attempt has no user")
	}
	res := Result{
		LessonTitle:    ref.lesson.Title,
		ExamType:       ref.examType,
		Score:          att.Score,
		TotalQuestions: att.TotalQuestions,
		CorrectAnswers: att.Score,
		WrongAnswers:   max(att.TotalQuestions-att.Score, 0),
		Percentage:     percentage(att.Score, att.TotalQuestions),
		TimeTaken:      0, // unknown for legacy attempts
		TimeLimit:      ref.assessment.TimeLimit,
		PassingScore:   DefaultPassingScore,
		Passed:         att.TotalQuestions > 0 && float64(att.Score)/float64(att.TotalQuestions) >= BackfillPassThreshold,
		Answers:        make([]Answer, 0, len(att.Answers)),
		CompletedAt:    att.TakenAt.Time,
	}
	if res.TimeLimit == 0 {
		res.TimeLimit = BackfillDefaultTimeLimit
	}
	if res.CompletedAt.IsZero() {
		res.CompletedAt = bf.now().In(bf.loc)
	}
	if ref.unit != nil {
		res.UnitID = optional(ref.unit.ID.String())
		res.UnitTitle = optional(ref.unit.Title)
	}

	questions := ref.assessment.Questions
	for _, ans := range att.Answers {
		correct := 0
		if ans.QuestionIndex >= 0 && ans.QuestionIndex < len(questions) {
			correct = questions[ans.QuestionIndex].CorrectAnswer
		}
		res.Answers = append(res.Answers, Answer{
			QuestionIndex:  ans.QuestionIndex,
			SelectedAnswer: ans.SelectedAnswer,
			CorrectAnswer:  correct,
			IsCorrect:      ans.IsCorrect,
		})
	}
	return res, nil
}
