package draft_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/chuo/core/draft"
	"github.com/trezcool/chuo/core/record"
	"github.com/trezcool/chuo/storage/database/inmem"
	"github.com/trezcool/chuo/tests"
)

var (
	u1 = record.Principal{ID: "u1"}
	u2 = record.Principal{ID: "u2"}
)

func newService() *draft.Service {
	validate, _ := testutil.NewValidator()
	return draft.NewService(inmemdb.NewRecordStore(inmemdb.Open()), validate)
}

func TestService_Save(t *testing.T) {
	lesson := draft.Path{CourseID: "c1", LessonID: "l1"}
	withType := func(p draft.Path, typ string) draft.Path {
		p.Type = typ
		return p
	}

	tests := []struct {
		name     string
		path     draft.Path
		data     string
		wantErr  bool
		wantData string
	}{
		{name: "missing course", path: draft.Path{LessonID: "l1", Type: "notes"}, data: `{"text":"x"}`, wantErr: true},
		{name: "missing type", path: lesson, data: `{"text":"x"}`, wantErr: true},
		{name: "missing data", path: withType(lesson, "notes"), wantErr: true},
		{name: "notes without text", path: withType(lesson, "notes"), data: `{"text":""}`, wantErr: true},
		{name: "notes with unknown field", path: withType(lesson, "notes"), data: `{"text":"x","color":"red"}`, wantErr: true},
		{name: "essay without body", path: withType(lesson, "essay"), data: `{"title":"t"}`, wantErr: true},
		{name: "answers with negative index", path: withType(lesson, "answers"), data: `{"answers":[{"question_index":-1}]}`, wantErr: true},
		{name: "blob with invalid json", path: withType(lesson, "mindmap"), data: `{"nodes":`, wantErr: true},
		{name: "blob must not be null", path: withType(lesson, "mindmap"), data: `null`, wantErr: true},
		{
			name:     "notes are re-encoded",
			path:     withType(lesson, " Notes "),
			data:     `{ "text" : "draft1" }`,
			wantData: `{"text":"draft1"}`,
		},
		{
			name:     "essay",
			path:     withType(lesson, "essay"),
			data:     `{"title":"Intro","body":"Once upon a time"}`,
			wantData: `{"title":"Intro","body":"Once upon a time"}`,
		},
		{
			name:     "answers",
			path:     withType(lesson, "answers"),
			data:     `{"answers":[{"question_index":0,"selected_answer":2},{"question_index":1,"selected_answer":null}]}`,
			wantData: `{"answers":[{"question_index":0,"selected_answer":2},{"question_index":1,"selected_answer":null}]}`,
		},
		{
			name:     "unknown type is kept as is",
			path:     withType(lesson, "mindmap"),
			data:     `{"nodes":[{"id":1}]}`,
			wantData: `{"nodes":[{"id":1}]}`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newService()
			var data json.RawMessage
			if tt.data != "" {
				data = json.RawMessage(tt.data)
			}

			rec, err := svc.Save(context.Background(), u1, tt.path, data)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "u1", rec.Key.UserID)
			assert.Equal(t, record.KindDraft, rec.Key.Kind)
			assert.JSONEq(t, tt.wantData, string(rec.Data))
		})
	}
}

func TestService_Save_replaces(t *testing.T) {
	svc := newService()
	ctx := context.Background()
	path := draft.Path{CourseID: "c1", LessonID: "l1", Type: draft.TypeNotes}

	first, err := svc.Save(ctx, u1, path, json.RawMessage(`{"text":"draft1"}`))
	require.NoError(t, err)
	second, err := svc.Save(ctx, u1, path, json.RawMessage(`{"text":"draft2"}`))
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	recs, err := svc.List(ctx, u1, draft.Path{CourseID: "c1", LessonID: "l1"})
	require.NoError(t, err)
	require.Len(t, recs, 1)

	content, err := svc.Content(recs[0])
	require.NoError(t, err)
	assert.Equal(t, draft.Notes{Text: "draft2"}, content)
}

func TestService_List(t *testing.T) {
	svc := newService()
	ctx := context.Background()
	save := func(p record.Principal, path draft.Path, data string) {
		_, err := svc.Save(ctx, p, path, json.RawMessage(data))
		require.NoError(t, err)
	}
	save(u1, draft.Path{CourseID: "c1", LessonID: "l1", Type: "notes"}, `{"text":"a"}`)
	save(u1, draft.Path{CourseID: "c1", LessonID: "l1", Type: "essay"}, `{"body":"b"}`)
	save(u1, draft.Path{CourseID: "c1", UnitID: "un1", LessonID: "l1", Type: "notes"}, `{"text":"c"}`)
	save(u2, draft.Path{CourseID: "c1", LessonID: "l1", Type: "notes"}, `{"text":"d"}`)

	tests := []struct {
		name      string
		principal record.Principal
		path      draft.Path
		wantLen   int
		wantErr   bool
	}{
		{name: "every type of a lesson", principal: u1, path: draft.Path{CourseID: "c1", LessonID: "l1"}, wantLen: 2},
		{name: "one type", principal: u1, path: draft.Path{CourseID: "c1", LessonID: "l1", Type: "essay"}, wantLen: 1},
		{name: "unit scoped", principal: u1, path: draft.Path{CourseID: "c1", UnitID: "un1", LessonID: "l1"}, wantLen: 1},
		{name: "nothing matches", principal: u1, path: draft.Path{CourseID: "c2", LessonID: "l1"}, wantLen: 0},
		{name: "other user only sees their own", principal: u2, path: draft.Path{CourseID: "c1", LessonID: "l1"}, wantLen: 1},
		{name: "missing lesson", principal: u1, path: draft.Path{CourseID: "c1"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			recs, err := svc.List(ctx, tt.principal, tt.path)
			if tt.wantErr {
				require.Error(t, err)
				assert.Empty(t, recs)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, recs)
			assert.Len(t, recs, tt.wantLen)
			for _, rec := range recs {
				assert.Equal(t, tt.principal.ID, rec.Key.UserID)
			}
		})
	}
}

func TestService_Delete(t *testing.T) {
	svc := newService()
	ctx := context.Background()
	path := draft.Path{CourseID: "c1", LessonID: "l1", Type: "notes"}
	rec, err := svc.Save(ctx, u1, path, json.RawMessage(`{"text":"mine"}`))
	require.NoError(t, err)

	_, err = svc.Delete(ctx, u2, rec.ID)
	assert.Equal(t, record.ErrNotFound, err)

	id, err := svc.Delete(ctx, u1, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, rec.ID, id)

	recs, err := svc.List(ctx, u1, draft.Path{CourseID: "c1", LessonID: "l1"})
	require.NoError(t, err)
	assert.Empty(t, recs)
}
