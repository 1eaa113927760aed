package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/hcanning/homeroom/core"
	"github.com/hcanning/homeroom/core/auth"
	"github.com/hcanning/homeroom/core/school"
)

type attendanceApi struct {
	svc *school.Service
}

func registerAttendanceAPI(g *echo.Group, opts *Options) {
	api := attendanceApi{svc: opts.Service}

	ag := g.Group("/attendance", requireRole(opts.Sessions, auth.RoleTeacher))
	ag.GET("/today", api.retrieveToday)
	ag.POST("/today", api.saveToday)
}

func (api *attendanceApi) retrieveToday(ctx echo.Context) error {
	sess, err := mustContextSession(ctx)
	if err != nil {
		return err
	}
	rec, err := api.svc.TodayAttendance(ctx.Request().Context(), sess.Subject)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, echo.Map{"attendance": rec})
}

func (api *attendanceApi) saveToday(ctx echo.Context) error {
	sess, err := mustContextSession(ctx)
	if err != nil {
		return err
	}
	var data school.SaveAttendance
	if err = ctx.Bind(&data); err != nil {
		return core.NewValidationMessage(school.MsgPresentNotArray)
	}
	rec, err := api.svc.SaveTodayAttendance(ctx.Request().Context(), sess.Subject, data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, echo.Map{"ok": true, "attendance": rec})
}
