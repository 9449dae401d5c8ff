package echoapi

import (
	"encoding/json"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/chuo/core/draft"
	"github.com/trezcool/chuo/core/record"
)

type draftAPI struct {
	svc     *draft.Service
	metrics *metrics
}

func registerDraftAPI(g *echo.Group, authed []echo.MiddlewareFunc, svc *draft.Service, m *metrics) {
	api := draftAPI{svc: svc, metrics: m}

	ag := g.Group("", authed...)
	for _, lesson := range []string{
		"/courses/:courseId/lessons/:lessonId",
		"/courses/:courseId/units/:unitId/lessons/:lessonId",
	} {
		ag.PUT(lesson+"/drafts/:type", api.save)
		ag.GET(lesson+"/drafts", api.list)
		ag.GET(lesson+"/drafts/:type", api.list)
	}
	ag.DELETE("/drafts/:id", api.destroy)
}

type DraftRequest struct {
	Data json.RawMessage `json:"data"`
}

func draftPath(ctx echo.Context) draft.Path {
	return draft.Path{
		CourseID: ctx.Param("courseId"),
		UnitID:   ctx.Param("unitId"),
		LessonID: ctx.Param("lessonId"),
		Type:     ctx.Param("type"),
	}
}

func (api *draftAPI) save(ctx echo.Context) error {
	var data DraftRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to DraftRequest")
	}

	rec, err := api.svc.Save(ctx.Request().Context(), principal(ctx), draftPath(ctx), data.Data)
	if err != nil {
		return errors.Wrap(err, "saving draft")
	}
	api.metrics.recordWrite(string(record.KindDraft), writeOutcome(rec.IsNew(), true))
	return respondWritten(ctx, rec.IsNew(), rec, "Draft saved", "Draft updated")
}

func (api *draftAPI) list(ctx echo.Context) error {
	drafts, err := api.svc.List(ctx.Request().Context(), principal(ctx), draftPath(ctx))
	if err != nil {
		return errors.Wrap(err, "listing drafts")
	}
	return respond(ctx, http.StatusOK, drafts, "")
}

func (api *draftAPI) destroy(ctx echo.Context) error {
	id, err := api.svc.Delete(ctx.Request().Context(), principal(ctx), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "deleting draft")
	}
	return respond(ctx, http.StatusOK, map[string]string{"id": id}, "Draft deleted")
}

// writeOutcome labels a record write: created, updated (upsert) or kept (append-once hit).
func writeOutcome(created, upsert bool) string {
	switch {
	case created:
		return "created"
	case upsert:
		return "updated"
	}
	return "kept"
}
