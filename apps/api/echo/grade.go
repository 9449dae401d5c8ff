package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/chuo/core/grade"
	"github.com/trezcool/chuo/core/record"
)

type gradeAPI struct {
	svc     *grade.Service
	metrics *metrics
}

func registerGradeAPI(g *echo.Group, authed []echo.MiddlewareFunc, svc *grade.Service, m *metrics) {
	api := gradeAPI{svc: svc, metrics: m}

	ug := g.Group("/users/:userId/offline-grades", authed...)
	ug.GET("", api.list)
	ug.PUT("", api.record, elevatedMiddleware)

	g.DELETE("/offline-grades/:id", api.destroy, withMiddleware(authed, elevatedMiddleware)...)
}

func (api *gradeAPI) record(ctx echo.Context) error {
	var data grade.NewGrade
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewGrade")
	}
	p := principal(ctx)
	studentID := userParam(ctx)
	if studentID == "" {
		studentID = p.ID
	}

	entry, err := api.svc.Record(ctx.Request().Context(), p, studentID, data)
	if err != nil {
		return errors.Wrap(err, "recording offline grade")
	}
	api.metrics.recordWrite(string(record.KindOfflineGrade), writeOutcome(entry.IsNew(), true))
	return respondWritten(ctx, entry.IsNew(), entry, "Grade recorded", "Grade updated")
}

func (api *gradeAPI) list(ctx echo.Context) error {
	entries, err := api.svc.ListForUser(ctx.Request().Context(), principal(ctx), userParam(ctx), ctx.QueryParam("course"))
	if err != nil {
		return errors.Wrap(err, "listing offline grades")
	}
	return respond(ctx, http.StatusOK, entries, "")
}

func (api *gradeAPI) destroy(ctx echo.Context) error {
	id, err := api.svc.Delete(ctx.Request().Context(), principal(ctx), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "deleting offline grade")
	}
	return respond(ctx, http.StatusOK, map[string]string{"id": id}, "Grade deleted")
}
