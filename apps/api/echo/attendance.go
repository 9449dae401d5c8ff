package echoapi

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/chuo/core/attendance"
	"github.com/trezcool/chuo/core/record"
)

type attendanceAPI struct {
	svc     *attendance.Service
	loc     *time.Location
	metrics *metrics
}

func registerAttendanceAPI(g *echo.Group, authed []echo.MiddlewareFunc, svc *attendance.Service, loc *time.Location, m *metrics) {
	api := attendanceAPI{svc: svc, loc: loc, metrics: m}

	ag := g.Group("", authed...)
	eg := ag.Group("/attendance", elevatedMiddleware)
	eg.PUT("", api.take)
	eg.POST("/scan-qr", api.scanQR)
	eg.POST("/take-by-phone", api.takeByPhone)
	eg.GET("/group/:groupId", api.listGroup)
	eg.PUT("/:id", api.update)
	eg.DELETE("/:id", api.destroy)

	ag.GET("/users/:userId/attendance", api.list)
	ag.GET("/users/:userId/attendance/stats", api.stats)
}

func (api *attendanceAPI) taken(ctx echo.Context, entry attendance.Entry) error {
	api.metrics.recordWrite(string(record.KindAttendance), writeOutcome(entry.IsNew(), true))
	return respondWritten(ctx, entry.IsNew(), entry, "Attendance taken", "Attendance updated")
}

func (api *attendanceAPI) take(ctx echo.Context) error {
	var data attendance.Mark
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to Mark")
	}
	entry, err := api.svc.Take(ctx.Request().Context(), principal(ctx), data)
	if err != nil {
		return errors.Wrap(err, "taking attendance")
	}
	return api.taken(ctx, entry)
}

func (api *attendanceAPI) scanQR(ctx echo.Context) error {
	var data attendance.Scan
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to Scan")
	}
	entry, err := api.svc.ScanQR(ctx.Request().Context(), principal(ctx), data)
	if err != nil {
		return errors.Wrap(err, "taking attendance by QR code")
	}
	return api.taken(ctx, entry)
}

func (api *attendanceAPI) takeByPhone(ctx echo.Context) error {
	var data attendance.PhoneMark
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to PhoneMark")
	}
	entry, err := api.svc.TakeByPhone(ctx.Request().Context(), principal(ctx), data)
	if err != nil {
		return errors.Wrap(err, "taking attendance by phone")
	}
	return api.taken(ctx, entry)
}

// period reads the from & to query parameters.
func (api *attendanceAPI) period(ctx echo.Context) (time.Time, time.Time, error) {
	from, err := dateParam(ctx, "from", api.loc, false)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	to, err := dateParam(ctx, "to", api.loc, true)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return from, to, nil
}

func (api *attendanceAPI) list(ctx echo.Context) error {
	from, to, err := api.period(ctx)
	if err != nil {
		return err
	}
	entries, err := api.svc.ListForUser(ctx.Request().Context(), principal(ctx), userParam(ctx), from, to)
	if err != nil {
		return errors.Wrap(err, "listing attendance")
	}
	return respond(ctx, http.StatusOK, entries, "")
}

func (api *attendanceAPI) listGroup(ctx echo.Context) error {
	from, to, err := api.period(ctx)
	if err != nil {
		return err
	}
	entries, err := api.svc.ListForGroup(ctx.Request().Context(), principal(ctx), ctx.Param("groupId"), from, to)
	if err != nil {
		return errors.Wrap(err, "listing group attendance")
	}
	return respond(ctx, http.StatusOK, entries, "")
}

func (api *attendanceAPI) update(ctx echo.Context) error {
	var data attendance.Change
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to Change")
	}
	entry, err := api.svc.Update(ctx.Request().Context(), principal(ctx), ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "updating attendance")
	}
	api.metrics.recordWrite(string(record.KindAttendance), writeOutcome(false, true))
	return respond(ctx, http.StatusOK, entry, "Attendance updated")
}

func (api *attendanceAPI) stats(ctx echo.Context) error {
	from, to, err := api.period(ctx)
	if err != nil {
		return err
	}
	st, err := api.svc.Stats(ctx.Request().Context(), principal(ctx), userParam(ctx), from, to)
	if err != nil {
		return errors.Wrap(err, "computing attendance stats")
	}
	return respond(ctx, http.StatusOK, st, "")
}

func (api *attendanceAPI) destroy(ctx echo.Context) error {
	id, err := api.svc.Delete(ctx.Request().Context(), principal(ctx), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "deleting attendance")
	}
	return respond(ctx, http.StatusOK, map[string]string{"id": id}, "Attendance deleted")
}
