package student_test

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/chuo/core/achievement"
	"github.com/trezcool/chuo/core/attendance"
	"github.com/trezcool/chuo/core/examresult"
	"github.com/trezcool/chuo/core/grade"
	"github.com/trezcool/chuo/core/record"
	"github.com/trezcool/chuo/core/student"
	"github.com/trezcool/chuo/core/user"
	"github.com/trezcool/chuo/storage/database/inmem"
	"github.com/trezcool/chuo/tests"
)

// brokenStore fails every lookup of the given kinds.
type brokenStore struct {
	record.Store
	kinds map[record.Kind]bool
}

func (s brokenStore) Find(ctx context.Context, kind record.Kind, filter record.Filter) ([]record.Record, error) {
	if s.kinds[kind] {
		return nil, record.NewStoreError("finding records", errors.New("connection refused"))
	}
	return s.Store.Find(ctx, kind, filter)
}

type paymentSource struct {
	status student.PaymentStatus
	err    error
	calls  []string
}

func (src *paymentSource) PaymentStatus(_ context.Context, studentID, month string) (student.PaymentStatus, error) {
	src.calls = append(src.calls, studentID+"@"+month)
	return src.status, src.err
}

type fixture struct {
	teacher  record.Principal
	pupil    user.User
	services func(store record.Store, payments student.PaymentStatusSource) *student.Service
}

func setup(t *testing.T) (fixture, record.Store) {
	ctx := context.Background()
	db := inmemdb.Open()
	repo := inmemdb.NewUserRepository(db)
	store := inmemdb.NewRecordStore(db)
	validate, _ := testutil.NewValidator()
	users := user.NewService(repo)

	teacherUsr := testutil.CreateUser(t, repo, "Teacher", "teacher", "teacher@example.com", "", []string{user.RoleTeacher}, true)
	pupil := testutil.CreateUser(t, repo, "Pupil", "pupil", "pupil@example.com", "", []string{user.RoleStudent}, true)
	teacher := record.Principal{ID: teacherUsr.ID, Elevated: true}
	me := record.Principal{ID: pupil.ID}

	build := func(store record.Store, payments student.PaymentStatusSource) *student.Service {
		return student.NewService(
			attendance.NewService(store, users, validate, time.UTC),
			examresult.NewService(store, validate),
			achievement.NewService(store, users, validate),
			grade.NewService(store, users, validate),
			payments,
			testutil.NewLogger(t),
		)
	}

	// seed through the services
	_, err := attendance.NewService(store, users, validate, time.UTC).Take(ctx, teacher, attendance.Mark{
		StudentID: pupil.ID, GroupID: "g1", Status: attendance.StatusLate,
	})
	require.NoError(t, err)
	sel := 1
	_, _, err = examresult.NewService(store, validate).Submit(ctx, me, "c1", "l1", "final", examresult.Submission{
		Answers: []examresult.SubmittedAnswer{{SelectedAnswer: &sel, CorrectAnswer: 1}},
	})
	require.NoError(t, err)
	_, err = achievement.NewService(store, users, validate).Award(ctx, teacher, pupil.ID, achievement.Award{Title: "Star", Points: 3})
	require.NoError(t, err)
	_, err = grade.NewService(store, users, validate).Record(ctx, teacher, pupil.ID, grade.NewGrade{
		CourseID: "c1", ExamTitle: "Oral", Score: 8, MaxScore: 10,
	})
	require.NoError(t, err)

	return fixture{teacher: teacher, pupil: pupil, services: build}, store
}

func TestService_Details(t *testing.T) {
	fx, store := setup(t)
	ctx := context.Background()
	month := time.Now().UTC().Format("2006-01")
	paid := &paymentSource{status: student.PaymentStatus{Month: month, Status: "paid", Amount: 300, Paid: 300, Currency: "EGP"}}

	t.Run("every section loads", func(t *testing.T) {
		d, err := fx.services(store, paid).Details(ctx, record.Principal{ID: fx.pupil.ID}, "", "")
		require.NoError(t, err)
		assert.Equal(t, fx.pupil.ID, d.StudentID)
		assert.Equal(t, month, d.Month)
		assert.Empty(t, d.Failures())

		assert.Len(t, d.Attendance.Data.Entries, 1)
		assert.Equal(t, 100.0, d.Attendance.Data.Stats.Rate)
		assert.Len(t, d.ExamResults.Data, 1)
		assert.Len(t, d.Achievements.Data, 1)
		assert.Len(t, d.OfflineGrades.Data, 1)
		require.NotNil(t, d.Payment.Data)
		assert.Equal(t, "paid", d.Payment.Data.Status)
		assert.Equal(t, []string{fx.pupil.ID + "@" + month}, paid.calls)
	})

	t.Run("failed lookups degrade to empty sections", func(t *testing.T) {
		broken := &brokenStore{Store: store, kinds: map[record.Kind]bool{record.KindAchievement: true, record.KindAttendance: true}}
		down := &paymentSource{err: errors.New("finance service unavailable")}

		d, err := fx.services(broken, down).Details(ctx, fx.teacher, fx.pupil.ID, month)
		require.NoError(t, err)

		failed := make([]string, 0)
		for _, f := range d.Failures() {
			failed = append(failed, f.Section)
		}
		assert.ElementsMatch(t, []string{student.SectionAttendance, student.SectionAchievements, student.SectionPayment}, failed)

		assert.NotNil(t, d.Achievements.Data)
		assert.Empty(t, d.Achievements.Data)
		assert.NotNil(t, d.Attendance.Data.Entries)
		assert.Empty(t, d.Attendance.Data.Entries)
		assert.Nil(t, d.Payment.Data)
		assert.Contains(t, d.Payment.Error.Reason, "unavailable")

		// the healthy sections are still there
		assert.True(t, d.ExamResults.OK())
		assert.Len(t, d.ExamResults.Data, 1)
		assert.Len(t, d.OfflineGrades.Data, 1)
	})

	t.Run("payments not configured", func(t *testing.T) {
		d, err := fx.services(store, nil).Details(ctx, fx.teacher, fx.pupil.ID, "")
		require.NoError(t, err)
		require.NotNil(t, d.Payment.Error)
		assert.True(t, errors.Is(d.Payment.Error, student.ErrPaymentsNotConfigured))
		assert.Len(t, d.Failures(), 1)
	})

	t.Run("another student's details", func(t *testing.T) {
		_, err := fx.services(store, paid).Details(ctx, record.Principal{ID: "someone"}, fx.pupil.ID, "")
		assert.Equal(t, record.ErrNotFound, err)
	})

	t.Run("invalid month", func(t *testing.T) {
		_, err := fx.services(store, paid).Details(ctx, fx.teacher, fx.pupil.ID, "2024-13")
		assert.Error(t, err)
	})

	t.Run("attendance outside of the month", func(t *testing.T) {
		d, err := fx.services(store, paid).Details(ctx, fx.teacher, fx.pupil.ID, "2001-01")
		require.NoError(t, err)
		assert.Empty(t, d.Attendance.Data.Entries)
		assert.Equal(t, "2001-01", d.Month)
	})
}
