package examresult_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/chuo/core/examresult"
	"github.com/trezcool/chuo/core/record"
	"github.com/trezcool/chuo/storage/database/inmem"
	"github.com/trezcool/chuo/tests"
)

const (
	course1 = "64b7f0c2a1b2c3d4e5f60001"
	lesson1 = "64b7f0c2a1b2c3d4e5f60011"
	lesson2 = "64b7f0c2a1b2c3d4e5f60022"
	user1   = "64b7f0c2a1b2c3d4e5f60101"
	user2   = "64b7f0c2a1b2c3d4e5f60102"
	user3   = "64b7f0c2a1b2c3d4e5f60103"
)

func loadCourses(t *testing.T) []examresult.Course {
	courses, err := examresult.FileSource{Path: "testdata/courses.json"}.Courses(context.Background())
	require.NoError(t, err)
	return courses
}

func TestFileSource_Courses(t *testing.T) {
	courses := loadCourses(t)
	require.Len(t, courses, 1)
	c := courses[0]
	assert.Equal(t, examresult.LegacyID(course1), c.ID)
	require.Len(t, c.DirectLessons, 1)
	require.Len(t, c.Units, 1)

	training := c.DirectLessons[0].Trainings[0]
	assert.Equal(t, examresult.LegacyID(user1), training.UserAttempts[0].UserID)
	assert.True(t, training.UserAttempts[0].TakenAt.Equal(time.Date(2023, 11, 5, 8, 15, 0, 0, time.UTC)))

	// plain string id & missing date
	exam := c.DirectLessons[0].Exams[0]
	assert.Equal(t, examresult.LegacyID(user1), exam.UserAttempts[0].UserID)
	assert.True(t, exam.UserAttempts[0].TakenAt.IsZero())

	tables := c.Units[0].Lessons[0].Exams[0]
	assert.True(t, tables.UserAttempts[0].TakenAt.Equal(time.Unix(1700000000, 0)))

	_, err := examresult.FileSource{Path: "testdata/missing.json"}.Courses(context.Background())
	assert.Error(t, err)
}

func TestBackfiller_Migrate(t *testing.T) {
	ctx := context.Background()
	cairo, err := time.LoadLocation("Africa/Cairo")
	require.NoError(t, err)
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	store := inmemdb.NewRecordStore(inmemdb.Open())
	logger := testutil.NewLogger(t)
	bf := examresult.NewBackfiller(store, logger, cairo, examresult.WithBackfillClock(func() time.Time { return now }))
	courses := loadCourses(t)

	report, err := bf.Migrate(ctx, courses)
	require.NoError(t, err)
	assert.Equal(t, examresult.BackfillReport{Courses: 1, Scanned: 4, Created: 4}, report)
	assert.Empty(t, logger.Errors())

	results := func() map[string]examresult.Result {
		recs, err := store.Find(ctx, record.KindExamResult, record.Filter{})
		require.NoError(t, err)
		byKey := make(map[string]examresult.Result, len(recs))
		for _, rec := range recs {
			res, err := examresult.Decode(rec)
			require.NoError(t, err)
			byKey[rec.Key.UserID+"/"+rec.Key.LessonID+"/"+rec.Key.Type] = res
		}
		return byKey
	}
	got := results()
	require.Len(t, got, 4)

	t.Run("training with a date", func(t *testing.T) {
		res := got[user1+"/"+lesson1+"/training"]
		assert.Equal(t, "Addition", res.LessonTitle)
		assert.Nil(t, res.UnitID)
		assert.Equal(t, 1, res.CorrectAnswers)
		assert.Equal(t, 1, res.WrongAnswers)
		assert.Equal(t, 10, res.TimeLimit)
		assert.Equal(t, 0, res.TimeTaken)
		assert.Equal(t, 50.0, res.PassingScore)
		assert.True(t, res.Passed, "half the answers pass")
		assert.True(t, res.CompletedAt.Equal(time.Date(2023, 11, 5, 8, 15, 0, 0, time.UTC)))
		require.Len(t, res.Answers, 2)
		assert.Equal(t, 1, res.Answers[0].CorrectAnswer)
		assert.Equal(t, 0, res.Answers[1].CorrectAnswer)
		assert.False(t, res.Answers[1].IsCorrect)
	})

	t.Run("exam without a date nor a time limit", func(t *testing.T) {
		res := got[user1+"/"+lesson1+"/final"]
		assert.False(t, res.Passed)
		assert.Equal(t, examresult.BackfillDefaultTimeLimit, res.TimeLimit)
		assert.True(t, res.CompletedAt.Equal(now))
		_, offset := res.CompletedAt.Zone()
		_, cairoOffset := now.In(cairo).Zone()
		assert.Equal(t, cairoOffset, offset)
		require.Len(t, res.Answers, 1)
		assert.Equal(t, 0, res.Answers[0].CorrectAnswer, "out of range question")
	})

	t.Run("unit lesson", func(t *testing.T) {
		res := got[user2+"/"+lesson2+"/final"]
		require.NotNil(t, res.UnitID)
		assert.Equal(t, "64b7f0c2a1b2c3d4e5f60021", *res.UnitID)
		require.NotNil(t, res.UnitTitle)
		assert.Equal(t, "Products", *res.UnitTitle)
		assert.True(t, res.Passed)
		assert.Equal(t, 45, res.TimeLimit)
		assert.Equal(t, 66.67, res.Percentage)
	})

	t.Run("attempt without questions", func(t *testing.T) {
		res := got[user3+"/"+lesson2+"/final"]
		assert.False(t, res.Passed)
		assert.Equal(t, 0.0, res.Percentage)
		assert.Equal(t, 0, res.TotalQuestions)
		assert.Equal(t, 0, res.WrongAnswers)
		assert.Empty(t, res.Answers)
	})

	t.Run("re-run is idempotent", func(t *testing.T) {
		report, err := bf.Migrate(ctx, courses)
		require.NoError(t, err)
		assert.Equal(t, examresult.BackfillReport{Courses: 1, Scanned: 4, Skipped: 4}, report)
		assert.Len(t, results(), 4)
	})
}

func TestBackfiller_Migrate_skipsSubmittedResults(t *testing.T) {
	ctx := context.Background()
	store := inmemdb.NewRecordStore(inmemdb.Open())
	validate, _ := testutil.NewValidator()
	svc := examresult.NewService(store, validate)

	// the student already retook the exam through the app
	sub := examresult.Submission{Answers: []examresult.SubmittedAnswer{{SelectedAnswer: intp(1), CorrectAnswer: 1}}}
	_, _, err := svc.Submit(ctx, record.Principal{ID: user2}, course1, lesson2, "final", sub)
	require.NoError(t, err)

	report, err := examresult.NewBackfiller(store, testutil.NewLogger(t), time.UTC).Migrate(ctx, loadCourses(t))
	require.NoError(t, err)
	assert.Equal(t, 3, report.Created)
	assert.Equal(t, 1, report.Skipped)

	entries, err := svc.ListForUser(ctx, record.Principal{ID: user2}, "", course1)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, 100.0, entries[0].Result.Percentage)
}

func TestBackfiller_Migrate_cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	store := inmemdb.NewRecordStore(inmemdb.Open())

	_, err := examresult.NewBackfiller(store, testutil.NewLogger(t), nil).Migrate(ctx, loadCourses(t))
	assert.Equal(t, context.Canceled, err)
}
