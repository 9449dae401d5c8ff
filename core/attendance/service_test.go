package attendance_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/chuo/core/attendance"
	"github.com/trezcool/chuo/core/record"
	"github.com/trezcool/chuo/core/user"
	"github.com/trezcool/chuo/storage/database/inmem"
	"github.com/trezcool/chuo/tests"
)

type fixture struct {
	svc      *attendance.Service
	teacher  record.Principal
	student  user.User
	other    user.User
	inactive user.User
}

func setup(t *testing.T) fixture {
	db := inmemdb.Open()
	repo := inmemdb.NewUserRepository(db)
	validate, _ := testutil.NewValidator()

	teacher := testutil.CreateUser(t, repo, "Teacher", "teacher", "teacher@example.com", "", []string{user.RoleTeacher}, true)
	student := user.User{Name: "Amina", Username: "amina", Email: "amina@example.com", Phone: "+201001234567", Roles: []string{user.RoleStudent}}
	student.SetActive(true)
	student, err := repo.CreateUser(context.Background(), student)
	require.NoError(t, err)
	other := testutil.CreateUser(t, repo, "Omar", "omar", "omar@example.com", "", []string{user.RoleStudent}, true)
	inactive := testutil.CreateUser(t, repo, "Gone", "gone", "gone@example.com", "", []string{user.RoleStudent}, false)

	svc := attendance.NewService(inmemdb.NewRecordStore(db), user.NewService(repo), validate, time.UTC)
	return fixture{
		svc:      svc,
		teacher:  record.Principal{ID: teacher.ID, Elevated: true},
		student:  student,
		other:    other,
		inactive: inactive,
	}
}

func TestParseQR(t *testing.T) {
	tests := []struct {
		name      string
		data      string
		wantUser  string
		wantGroup string
		wantErr   bool
	}{
		{name: "empty", data: "  ", wantErr: true},
		{name: "bare id", data: " u1 ", wantUser: "u1"},
		{name: "camel case", data: `{"userId":"u1","groupId":"g1"}`, wantUser: "u1", wantGroup: "g1"},
		{name: "snake case", data: `{"user_id":"u1","group_id":"g1"}`, wantUser: "u1", wantGroup: "g1"},
		{name: "without group", data: `{"userId":"u1"}`, wantUser: "u1"},
		{name: "without user", data: `{"groupId":"g1"}`, wantErr: true},
		{name: "broken json", data: `{"userId":`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			userID, groupID, err := attendance.ParseQR(tt.data)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantUser, userID)
			assert.Equal(t, tt.wantGroup, groupID)
		})
	}
}

func TestService_Take(t *testing.T) {
	fx := setup(t)
	ctx := context.Background()

	tests := []struct {
		name      string
		principal record.Principal
		mark      attendance.Mark
		wantErr   error // any error when nil
	}{
		{
			name:      "students cannot take attendance",
			principal: record.Principal{ID: fx.student.ID},
			mark:      attendance.Mark{StudentID: fx.student.ID, GroupID: "g1", Status: attendance.StatusPresent},
			wantErr:   record.ErrForbidden,
		},
		{
			name:      "invalid status",
			principal: fx.teacher,
			mark:      attendance.Mark{StudentID: fx.student.ID, GroupID: "g1", Status: "sleeping"},
		},
		{
			name:      "invalid date",
			principal: fx.teacher,
			mark:      attendance.Mark{StudentID: fx.student.ID, GroupID: "g1", Date: "01/02/2024", Status: attendance.StatusLate},
		},
		{
			name:      "unknown student",
			principal: fx.teacher,
			mark:      attendance.Mark{StudentID: "nobody", GroupID: "g1", Status: attendance.StatusPresent},
			wantErr:   user.ErrNotFound,
		},
		{
			name:      "deactivated student",
			principal: fx.teacher,
			mark:      attendance.Mark{StudentID: fx.inactive.ID, GroupID: "g1", Status: attendance.StatusPresent},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := fx.svc.Take(ctx, tt.principal, tt.mark)
			if tt.wantErr != nil {
				assert.Equal(t, tt.wantErr, err)
			} else {
				assert.Error(t, err)
			}
		})
	}

	t.Run("re-taking the same day replaces the entry", func(t *testing.T) {
		mark := attendance.Mark{StudentID: fx.student.ID, GroupID: "g1", Date: "2024-03-04", Status: attendance.StatusAbsent}
		first, err := fx.svc.Take(ctx, fx.teacher, mark)
		require.NoError(t, err)
		assert.Equal(t, attendance.MethodManual, first.Attendance.Method)
		assert.Equal(t, fx.teacher.ID, first.Attendance.TakenBy)

		mark.Status = attendance.StatusExcused
		mark.Notes = " sick "
		second, err := fx.svc.Take(ctx, fx.teacher, mark)
		require.NoError(t, err)
		assert.Equal(t, first.ID, second.ID)
		assert.Equal(t, "sick", second.Attendance.Notes)

		entries, err := fx.svc.ListForUser(ctx, fx.teacher, fx.student.ID, time.Time{}, time.Time{})
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, attendance.StatusExcused, entries[0].Attendance.Status)
		assert.Equal(t, "2024-03-04", entries[0].Key.LessonID)
		assert.Equal(t, "g1", entries[0].Key.CourseID)
	})
}

func TestService_ScanQR(t *testing.T) {
	fx := setup(t)
	ctx := context.Background()

	_, err := fx.svc.ScanQR(ctx, fx.teacher, attendance.Scan{QRData: fx.student.ID})
	assert.Error(t, err, "group is required")

	entry, err := fx.svc.ScanQR(ctx, fx.teacher, attendance.Scan{
		QRData: `{"userId":"` + fx.student.ID + `","groupId":"g1"}`,
		Date:   "2024-03-05",
	})
	require.NoError(t, err)
	assert.Equal(t, fx.student.ID, entry.Key.UserID)
	assert.Equal(t, "g1", entry.Attendance.GroupID)
	assert.Equal(t, attendance.StatusPresent, entry.Attendance.Status)
	assert.Equal(t, attendance.MethodQR, entry.Attendance.Method)

	// the group picked by the instructor wins
	entry, err = fx.svc.ScanQR(ctx, fx.teacher, attendance.Scan{
		QRData:  `{"user_id":"` + fx.other.ID + `","group_id":"g1"}`,
		GroupID: "g2",
		Status:  attendance.StatusLate,
	})
	require.NoError(t, err)
	assert.Equal(t, "g2", entry.Key.CourseID)
	assert.Equal(t, attendance.StatusLate, entry.Attendance.Status)
	assert.Equal(t, time.Now().UTC().Format(attendance.DateLayout), entry.Attendance.Date)

	_, err = fx.svc.ScanQR(ctx, record.Principal{ID: fx.student.ID}, attendance.Scan{QRData: fx.student.ID, GroupID: "g1"})
	assert.Equal(t, record.ErrForbidden, err)
}

func TestService_TakeByPhone(t *testing.T) {
	fx := setup(t)
	ctx := context.Background()

	tests := []struct {
		name    string
		phone   string
		wantErr bool
	}{
		{name: "invalid phone", phone: "call me", wantErr: true},
		{name: "unknown phone", phone: "+201009999999", wantErr: true},
		{name: "formatted phone", phone: "+20 100-123-4567"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entry, err := fx.svc.TakeByPhone(ctx, fx.teacher, attendance.PhoneMark{Phone: tt.phone, GroupID: "g1"})
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, fx.student.ID, entry.Key.UserID)
			assert.Equal(t, attendance.MethodPhone, entry.Attendance.Method)
			assert.Equal(t, attendance.StatusPresent, entry.Attendance.Status)
		})
	}
}

func TestService_ListForUser_and_Stats(t *testing.T) {
	fx := setup(t)
	ctx := context.Background()
	statuses := []attendance.Status{
		attendance.StatusPresent, attendance.StatusPresent, attendance.StatusLate,
		attendance.StatusAbsent, attendance.StatusExcused, attendance.StatusPresent,
	}
	for i, status := range statuses {
		date := time.Date(2024, 3, 1+i, 0, 0, 0, 0, time.UTC).Format(attendance.DateLayout)
		_, err := fx.svc.Take(ctx, fx.teacher, attendance.Mark{StudentID: fx.student.ID, GroupID: "g1", Date: date, Status: status})
		require.NoError(t, err)
	}
	_, err := fx.svc.Take(ctx, fx.teacher, attendance.Mark{StudentID: fx.other.ID, GroupID: "g1", Status: attendance.StatusAbsent})
	require.NoError(t, err)

	me := record.Principal{ID: fx.student.ID}

	t.Run("own entries", func(t *testing.T) {
		entries, err := fx.svc.ListForUser(ctx, me, "", time.Time{}, time.Time{})
		require.NoError(t, err)
		assert.Len(t, entries, len(statuses))
	})

	t.Run("another student's entries", func(t *testing.T) {
		_, err := fx.svc.ListForUser(ctx, me, fx.other.ID, time.Time{}, time.Time{})
		assert.Equal(t, record.ErrNotFound, err)
	})

	t.Run("range in the future", func(t *testing.T) {
		from := time.Now().Add(time.Hour)
		entries, err := fx.svc.ListForUser(ctx, me, "", from, from.Add(time.Hour))
		require.NoError(t, err)
		assert.Empty(t, entries)
	})

	t.Run("invalid range", func(t *testing.T) {
		now := time.Now()
		_, err := fx.svc.ListForUser(ctx, me, "", now, now.Add(-time.Hour))
		assert.Error(t, err)
	})

	t.Run("filtered on the session date", func(t *testing.T) {
		// every entry was created today but belongs to early March 2024
		from, to, err := fx.svc.MonthRange("2024-03")
		require.NoError(t, err)
		entries, err := fx.svc.ListForUser(ctx, me, "", from, to)
		require.NoError(t, err)
		assert.Len(t, entries, len(statuses))

		from, to, err = fx.svc.MonthRange("2024-02")
		require.NoError(t, err)
		entries, err = fx.svc.ListForUser(ctx, me, "", from, to)
		require.NoError(t, err)
		assert.Empty(t, entries)

		// bounds are inclusive days
		day2 := time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC)
		day3 := time.Date(2024, 3, 3, 23, 59, 59, 0, time.UTC)
		entries, err = fx.svc.ListForUser(ctx, me, "", day2, day3)
		require.NoError(t, err)
		require.Len(t, entries, 2)

		st, err := fx.svc.Stats(ctx, me, "", day2, day3)
		require.NoError(t, err)
		assert.Equal(t, attendance.Stats{Total: 2, Present: 1, Late: 1, Rate: 100}, st)
	})

	t.Run("stats", func(t *testing.T) {
		st, err := fx.svc.Stats(ctx, me, "", time.Time{}, time.Time{})
		require.NoError(t, err)
		assert.Equal(t, attendance.Stats{Total: 6, Present: 3, Absent: 1, Late: 1, Excused: 1, Rate: 66.67}, st)

		st, err = fx.svc.Stats(ctx, fx.teacher, fx.other.ID, time.Time{}, time.Time{})
		require.NoError(t, err)
		assert.Equal(t, attendance.Stats{Total: 1, Absent: 1}, st)
	})
}

func TestService_ListForGroup(t *testing.T) {
	fx := setup(t)
	ctx := context.Background()
	take := func(student user.User, group, date string) {
		_, err := fx.svc.Take(ctx, fx.teacher, attendance.Mark{StudentID: student.ID, GroupID: group, Date: date, Status: attendance.StatusPresent})
		require.NoError(t, err)
	}
	take(fx.student, "g1", "2024-03-04")
	take(fx.other, "g1", "2024-03-04")
	take(fx.other, "g1", "2024-03-11")
	take(fx.student, "g2", "2024-03-04")

	entries, err := fx.svc.ListForGroup(ctx, fx.teacher, "g1", time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.Len(t, entries, 3)
	for _, e := range entries {
		assert.Equal(t, "g1", e.Attendance.GroupID)
	}

	day := time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)
	entries, err = fx.svc.ListForGroup(ctx, fx.teacher, "g1", day, day.Add(24*time.Hour-time.Nanosecond))
	require.NoError(t, err)
	assert.Len(t, entries, 2)

	_, err = fx.svc.ListForGroup(ctx, record.Principal{ID: fx.student.ID}, "g1", time.Time{}, time.Time{})
	assert.Equal(t, record.ErrForbidden, err)

	_, err = fx.svc.ListForGroup(ctx, fx.teacher, " ", time.Time{}, time.Time{})
	assert.Error(t, err)
}

func TestService_Update(t *testing.T) {
	fx := setup(t)
	ctx := context.Background()
	entry, err := fx.svc.Take(ctx, fx.teacher, attendance.Mark{StudentID: fx.student.ID, GroupID: "g1", Date: "2024-03-04", Status: attendance.StatusAbsent})
	require.NoError(t, err)

	notes := "bus was late"
	updated, err := fx.svc.Update(ctx, fx.teacher, entry.ID, attendance.Change{Status: attendance.StatusLate, Notes: &notes})
	require.NoError(t, err)
	assert.Equal(t, entry.ID, updated.ID)
	assert.Equal(t, attendance.StatusLate, updated.Attendance.Status)
	assert.Equal(t, notes, updated.Attendance.Notes)
	assert.Equal(t, "2024-03-04", updated.Attendance.Date)
	assert.Equal(t, attendance.MethodManual, updated.Attendance.Method)

	// notes are kept when absent from the change
	updated, err = fx.svc.Update(ctx, fx.teacher, entry.ID, attendance.Change{Status: attendance.StatusExcused})
	require.NoError(t, err)
	assert.Equal(t, notes, updated.Attendance.Notes)

	entries, err := fx.svc.ListForUser(ctx, record.Principal{ID: fx.student.ID}, "", time.Time{}, time.Time{})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, attendance.StatusExcused, entries[0].Attendance.Status)

	_, err = fx.svc.Update(ctx, record.Principal{ID: fx.student.ID}, entry.ID, attendance.Change{Status: attendance.StatusPresent})
	assert.Equal(t, record.ErrForbidden, err)
	_, err = fx.svc.Update(ctx, fx.teacher, entry.ID, attendance.Change{Status: "asleep"})
	assert.Error(t, err)
	_, err = fx.svc.Update(ctx, fx.teacher, "nope", attendance.Change{Status: attendance.StatusPresent})
	assert.Equal(t, record.ErrNotFound, err)
}

func TestService_Delete(t *testing.T) {
	fx := setup(t)
	ctx := context.Background()
	entry, err := fx.svc.Take(ctx, fx.teacher, attendance.Mark{StudentID: fx.student.ID, GroupID: "g1", Status: attendance.StatusPresent})
	require.NoError(t, err)

	_, err = fx.svc.Delete(ctx, record.Principal{ID: fx.student.ID}, entry.ID)
	assert.Equal(t, record.ErrForbidden, err)

	id, err := fx.svc.Delete(ctx, fx.teacher, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, entry.ID, id)

	_, err = fx.svc.Delete(ctx, fx.teacher, entry.ID)
	assert.Equal(t, record.ErrNotFound, err)
}

func TestService_MonthRange(t *testing.T) {
	fx := setup(t)

	from, to, err := fx.svc.MonthRange("2024-02")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC), from)
	assert.Equal(t, 29, to.Day())
	assert.Equal(t, time.February, to.Month())

	_, _, err = fx.svc.MonthRange("Feb 2024")
	assert.Error(t, err)

	from, _, err = fx.svc.MonthRange("")
	require.NoError(t, err)
	assert.Equal(t, time.Now().UTC().Month(), from.Month())
}
