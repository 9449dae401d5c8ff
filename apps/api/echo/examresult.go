package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/chuo/core/examresult"
	"github.com/trezcool/chuo/core/record"
)

type resultAPI struct {
	svc     *examresult.Service
	metrics *metrics
}

func registerResultAPI(g *echo.Group, authed []echo.MiddlewareFunc, svc *examresult.Service, m *metrics) {
	api := resultAPI{svc: svc, metrics: m}

	ag := g.Group("", authed...)
	ag.POST("/courses/:courseId/lessons/:lessonId/results/:examType", api.submit)
	ag.GET("/users/:userId/results", api.list)
	ag.DELETE("/results/:id", api.destroy)
}

func (api *resultAPI) submit(ctx echo.Context) error {
	var data examresult.Submission
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to Submission")
	}

	entry, created, err := api.svc.Submit(
		ctx.Request().Context(),
		principal(ctx),
		ctx.Param("courseId"),
		ctx.Param("lessonId"),
		ctx.Param("examType"),
		data,
	)
	if err != nil {
		return errors.Wrap(err, "submitting exam result")
	}
	api.metrics.recordWrite(string(record.KindExamResult), writeOutcome(created, false))
	return respondWritten(ctx, created, entry, "Exam result saved", "Exam result already submitted")
}

func (api *resultAPI) list(ctx echo.Context) error {
	results, err := api.svc.ListForUser(ctx.Request().Context(), principal(ctx), userParam(ctx), ctx.QueryParam("course"))
	if err != nil {
		return errors.Wrap(err, "listing exam results")
	}
	return respond(ctx, http.StatusOK, results, "")
}

func (api *resultAPI) destroy(ctx echo.Context) error {
	id, err := api.svc.Delete(ctx.Request().Context(), principal(ctx), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "deleting exam result")
	}
	return respond(ctx, http.StatusOK, map[string]string{"id": id}, "Exam result deleted")
}
