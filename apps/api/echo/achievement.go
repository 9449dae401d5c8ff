package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/chuo/core/achievement"
	"github.com/trezcool/chuo/core/record"
)

type achievementAPI struct {
	svc     *achievement.Service
	metrics *metrics
}

func registerAchievementAPI(g *echo.Group, authed []echo.MiddlewareFunc, svc *achievement.Service, m *metrics) {
	api := achievementAPI{svc: svc, metrics: m}

	ug := g.Group("/users/:userId/achievements", authed...)
	ug.GET("", api.list)
	ug.PUT("", api.award, elevatedMiddleware)

	ag := g.Group("/achievements", withMiddleware(authed, elevatedMiddleware)...)
	ag.PUT("/:id", api.update)
	ag.DELETE("/:id", api.destroy)
}

type AchievementList struct {
	Achievements []achievement.Entry `json:"achievements"`
	TotalPoints  int                 `json:"total_points"`
}

func (api *achievementAPI) award(ctx echo.Context) error {
	var data achievement.Award
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to Award")
	}
	p := principal(ctx)
	studentID := userParam(ctx)
	if studentID == "" {
		studentID = p.ID
	}

	entry, err := api.svc.Award(ctx.Request().Context(), p, studentID, data)
	if err != nil {
		return errors.Wrap(err, "awarding achievement")
	}
	api.metrics.recordWrite(string(record.KindAchievement), writeOutcome(entry.IsNew(), true))
	return respondWritten(ctx, entry.IsNew(), entry, "Achievement awarded", "Achievement updated")
}

func (api *achievementAPI) update(ctx echo.Context) error {
	var data achievement.Change
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to Change")
	}
	entry, err := api.svc.Update(ctx.Request().Context(), principal(ctx), ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "updating achievement")
	}
	api.metrics.recordWrite(string(record.KindAchievement), writeOutcome(false, true))
	return respond(ctx, http.StatusOK, entry, "Achievement updated")
}

func (api *achievementAPI) destroy(ctx echo.Context) error {
	id, err := api.svc.Delete(ctx.Request().Context(), principal(ctx), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "deleting achievement")
	}
	return respond(ctx, http.StatusOK, map[string]string{"id": id}, "Achievement deleted")
}

func (api *achievementAPI) list(ctx echo.Context) error {
	entries, err := api.svc.ListForUser(ctx.Request().Context(), principal(ctx), userParam(ctx))
	if err != nil {
		return errors.Wrap(err, "listing achievements")
	}
	return respond(ctx, http.StatusOK, AchievementList{
		Achievements: entries,
		TotalPoints:  achievement.TotalPoints(entries),
	}, "")
}
