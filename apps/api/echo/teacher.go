package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/hcanning/homeroom/core/auth"
	"github.com/hcanning/homeroom/core/school"
)

type teacherApi struct {
	svc *school.Service
}

func registerTeacherAPI(g *echo.Group, opts *Options) {
	api := teacherApi{svc: opts.Service}

	// managed by the superadmin
	tg := g.Group("/teachers", requireRole(opts.Sessions, auth.RoleSuperadmin))
	tg.GET("", api.list)
	tg.POST("", api.create)
	tg.PATCH("/:id", api.update)
	tg.DELETE("/:id", api.destroy)

	// the logged in teacher's own profile
	mg := g.Group("/teacher/me", requireRole(opts.Sessions, auth.RoleTeacher))
	mg.GET("", api.retrieveMe)
	mg.PATCH("", api.updateMe)
}

// Handlers

func (api *teacherApi) list(ctx echo.Context) error {
	teachers, err := api.svc.ListTeachers(ctx.Request().Context())
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, echo.Map{"teachers": teachers})
}

func (api *teacherApi) create(ctx echo.Context) error {
	var data school.NewTeacher
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewTeacher")
	}
	teacher, err := api.svc.CreateTeacher(ctx.Request().Context(), data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, echo.Map{"ok": true, "teacher": teacher})
}

func (api *teacherApi) update(ctx echo.Context) error {
	return api.patch(ctx, ctx.Param("id"))
}

func (api *teacherApi) destroy(ctx echo.Context) error {
	if err := api.svc.DeleteTeacher(ctx.Request().Context(), ctx.Param("id")); err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, echo.Map{"ok": true})
}

func (api *teacherApi) retrieveMe(ctx echo.Context) error {
	sess, err := mustContextSession(ctx)
	if err != nil {
		return err
	}
	teacher, err := api.svc.GetTeacher(ctx.Request().Context(), sess.Subject)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, echo.Map{"teacher": teacher})
}

func (api *teacherApi) updateMe(ctx echo.Context) error {
	sess, err := mustContextSession(ctx)
	if err != nil {
		return err
	}
	return api.patch(ctx, sess.Subject)
}

func (api *teacherApi) patch(ctx echo.Context, id string) error {
	var data school.UpdateTeacher
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateTeacher")
	}
	teacher, err := api.svc.UpdateTeacher(ctx.Request().Context(), id, data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, echo.Map{"ok": true, "teacher": teacher})
}
