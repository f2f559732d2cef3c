package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/proofmate/core/assignment"
	"github.com/trezcool/proofmate/core/user"
)

type dashboardApi struct {
	svc assignment.Service
}

func registerDashboardAPI(g *echo.Group, auth echo.MiddlewareFunc, api dashboardApi) {
	dg := g.Group("/dashboard", auth)
	dg.GET("/teacher", api.teacher, roleMiddleware(user.RoleTeacher, user.RoleAdmin))
	dg.GET("/student", api.student, roleMiddleware(user.RoleStudent))

	admin := roleMiddleware(user.RoleAdmin)
	data := g.Group("/data", auth)
	data.POST("/sync", api.sync)
	data.POST("/reset", api.reset, admin)
	data.POST("/ensure-test-data", api.ensureTestData, admin)
}

func (api *dashboardApi) teacher(ctx echo.Context) error {
	stats, err := api.svc.TeacherStats(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "computing teacher stats")
	}
	return ctx.JSON(http.StatusOK, okData(stats))
}

func (api *dashboardApi) student(ctx echo.Context) error {
	usr := ctx.Get(contextUserKey).(user.User)
	stats, err := api.svc.StudentStats(ctx.Request().Context(), usr)
	if err != nil {
		return errors.Wrap(err, "computing student stats")
	}
	return ctx.JSON(http.StatusOK, okData(stats))
}

func (api *dashboardApi) sync(ctx echo.Context) error {
	usr := ctx.Get(contextUserKey).(user.User)
	res, err := api.svc.Sync(ctx.Request().Context(), &usr)
	if err != nil {
		return errors.Wrap(err, "syncing store")
	}
	return ctx.JSON(http.StatusOK, okData(res))
}

func (api *dashboardApi) reset(ctx echo.Context) error {
	res, err := api.svc.ForceReset(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "resetting store")
	}
	return ctx.JSON(http.StatusOK, okData(res))
}

func (api *dashboardApi) ensureTestData(ctx echo.Context) error {
	res, err := api.svc.EnsureTestData(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "ensuring test data")
	}
	return ctx.JSON(http.StatusOK, okData(res))
}
