package achievement_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/chuo/core/achievement"
	"github.com/trezcool/chuo/core/record"
	"github.com/trezcool/chuo/core/user"
	"github.com/trezcool/chuo/storage/database/inmem"
	"github.com/trezcool/chuo/tests"
)

var teacher = record.Principal{ID: "t1", Elevated: true}

type fixture struct {
	svc     *achievement.Service
	student user.User
	me      record.Principal
}

func setup(t *testing.T) fixture {
	db := inmemdb.Open()
	repo := inmemdb.NewUserRepository(db)
	validate, _ := testutil.NewValidator()

	student := testutil.CreateUser(t, repo, "Amina", "amina", "amina@example.com", "", []string{user.RoleStudent}, true)
	return fixture{
		svc:     achievement.NewService(inmemdb.NewRecordStore(db), user.NewService(repo), validate),
		student: student,
		me:      record.Principal{ID: student.ID},
	}
}

func TestService_Award(t *testing.T) {
	fx := setup(t)

	tests := []struct {
		name      string
		principal record.Principal
		studentID string
		award     achievement.Award
		wantErr   error
	}{
		{name: "students cannot award", principal: fx.me, studentID: fx.student.ID, award: achievement.Award{Title: "Star"}, wantErr: record.ErrForbidden},
		{name: "missing student", principal: teacher, award: achievement.Award{Title: "Star"}},
		{name: "unknown student", principal: teacher, studentID: "nobody", award: achievement.Award{Title: "Star"}, wantErr: user.ErrNotFound},
		{name: "missing title", principal: teacher, studentID: fx.student.ID, award: achievement.Award{Title: "  "}},
		{name: "title without letters", principal: teacher, studentID: fx.student.ID, award: achievement.Award{Title: "!!!"}},
		{name: "unknown category", principal: teacher, studentID: fx.student.ID, award: achievement.Award{Title: "Star", Category: "sports"}},
		{name: "negative points", principal: teacher, studentID: fx.student.ID, award: achievement.Award{Title: "Star", Points: -5}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := fx.svc.Award(context.Background(), tt.principal, tt.studentID, tt.award)
			require.Error(t, err)
			if tt.wantErr != nil {
				assert.Equal(t, tt.wantErr, err)
			}
		})
	}

	t.Run("valid", func(t *testing.T) {
		award := achievement.Award{Title: " Perfect Attendance ", Category: "Attendance", Points: 20}
		entry, err := fx.svc.Award(context.Background(), teacher, fx.student.ID, award)
		require.NoError(t, err)
		assert.Equal(t, fx.student.ID, entry.Key.UserID)
		assert.Equal(t, "perfect-attendance", entry.Key.Type)
		assert.Equal(t, "Perfect Attendance", entry.Achievement.Title)
		assert.Equal(t, "attendance", entry.Achievement.Category)
		assert.Equal(t, "t1", entry.Achievement.AwardedBy)
	})
}

func TestService_Award_sameTitleUpdates(t *testing.T) {
	fx := setup(t)
	ctx := context.Background()

	first, err := fx.svc.Award(ctx, teacher, fx.student.ID, achievement.Award{Title: "Top of the class", Points: 10})
	require.NoError(t, err)
	second, err := fx.svc.Award(ctx, teacher, fx.student.ID, achievement.Award{Title: "top of the CLASS", Points: 30})
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	_, err = fx.svc.Award(ctx, teacher, fx.student.ID, achievement.Award{Title: "Helper", Points: 5})
	require.NoError(t, err)

	entries, err := fx.svc.ListForUser(ctx, fx.me, "")
	require.NoError(t, err)
	assert.Len(t, entries, 2)
	assert.Equal(t, 35, achievement.TotalPoints(entries))

	_, err = fx.svc.ListForUser(ctx, record.Principal{ID: "s2"}, fx.student.ID)
	assert.Equal(t, record.ErrNotFound, err)
}

func TestService_Update(t *testing.T) {
	fx := setup(t)
	ctx := context.Background()

	entry, err := fx.svc.Award(ctx, teacher, fx.student.ID, achievement.Award{Title: "Helper", Category: "behavior", Points: 5})
	require.NoError(t, err)

	points, desc, cat := 15, " Helped the whole class ", "Participation"

	t.Run("students cannot edit", func(t *testing.T) {
		_, err := fx.svc.Update(ctx, fx.me, entry.ID, achievement.Change{Points: &points})
		assert.Equal(t, record.ErrForbidden, err)
	})
	t.Run("unknown id", func(t *testing.T) {
		_, err := fx.svc.Update(ctx, teacher, "nope", achievement.Change{Points: &points})
		assert.Equal(t, record.ErrNotFound, err)
	})
	t.Run("invalid category", func(t *testing.T) {
		bad := "sports"
		_, err := fx.svc.Update(ctx, teacher, entry.ID, achievement.Change{Category: &bad})
		assert.Error(t, err)
	})
	t.Run("edit", func(t *testing.T) {
		updated, err := fx.svc.Update(ctx, teacher, entry.ID, achievement.Change{Points: &points, Description: &desc, Category: &cat})
		require.NoError(t, err)
		assert.Equal(t, entry.ID, updated.ID)
		assert.Equal(t, "Helper", updated.Achievement.Title)
		assert.Equal(t, 15, updated.Achievement.Points)
		assert.Equal(t, "Helped the whole class", updated.Achievement.Description)
		assert.Equal(t, "participation", updated.Achievement.Category)

		entries, err := fx.svc.ListForUser(ctx, fx.me, "")
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, 15, entries[0].Achievement.Points)
	})
}

func TestService_Delete(t *testing.T) {
	fx := setup(t)
	ctx := context.Background()

	entry, err := fx.svc.Award(ctx, teacher, fx.student.ID, achievement.Award{Title: "Star"})
	require.NoError(t, err)

	_, err = fx.svc.Delete(ctx, fx.me, entry.ID)
	assert.Equal(t, record.ErrForbidden, err)

	id, err := fx.svc.Delete(ctx, teacher, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, entry.ID, id)

	_, err = fx.svc.Delete(ctx, teacher, entry.ID)
	assert.Equal(t, record.ErrNotFound, err)

	entries, err := fx.svc.ListForUser(ctx, fx.me, "")
	require.NoError(t, err)
	assert.Empty(t, entries)
}
