package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/chuo/core/student"
)

type studentAPI struct {
	svc *student.Service
}

func registerStudentAPI(g *echo.Group, authed []echo.MiddlewareFunc, svc *student.Service) {
	api := studentAPI{svc: svc}

	sg := g.Group("/students", authed...)
	sg.GET("/:userId/details", api.details)
}

// details answers 200 even when some sections could not be loaded; each failed section carries its error.
func (api *studentAPI) details(ctx echo.Context) error {
	d, err := api.svc.Details(ctx.Request().Context(), principal(ctx), userParam(ctx), ctx.QueryParam("month"))
	if err != nil {
		return errors.Wrap(err, "loading student details")
	}
	msg := ""
	if failures := d.Failures(); len(failures) > 0 {
		msg = "Some sections could not be loaded"
	}
	return respond(ctx, http.StatusOK, d, msg)
}
