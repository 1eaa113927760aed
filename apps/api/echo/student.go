package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/hcanning/homeroom/core/auth"
	"github.com/hcanning/homeroom/core/school"
)

type studentApi struct {
	svc *school.Service
}

// Students are always scoped to the teacher of the session.
func registerStudentAPI(g *echo.Group, opts *Options) {
	api := studentApi{svc: opts.Service}

	sg := g.Group("/students", requireRole(opts.Sessions, auth.RoleTeacher))
	sg.GET("", api.list)
	sg.POST("", api.create)
	sg.PATCH("/:id", api.update)
	sg.DELETE("/:id", api.destroy)
}

func (api *studentApi) list(ctx echo.Context) error {
	sess, err := mustContextSession(ctx)
	if err != nil {
		return err
	}
	students, err := api.svc.ListStudents(ctx.Request().Context(), sess.Subject)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, echo.Map{"students": students})
}

func (api *studentApi) create(ctx echo.Context) error {
	sess, err := mustContextSession(ctx)
	if err != nil {
		return err
	}
	var data school.NewStudent
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewStudent")
	}
	student, err := api.svc.CreateStudent(ctx.Request().Context(), sess.Subject, data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, echo.Map{"ok": true, "student": student})
}

func (api *studentApi) update(ctx echo.Context) error {
	sess, err := mustContextSession(ctx)
	if err != nil {
		return err
	}
	var data school.UpdateStudent
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateStudent")
	}
	student, err := api.svc.UpdateStudent(ctx.Request().Context(), sess.Subject, ctx.Param("id"), data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, echo.Map{"ok": true, "student": student})
}

func (api *studentApi) destroy(ctx echo.Context) error {
	sess, err := mustContextSession(ctx)
	if err != nil {
		return err
	}
	if err = api.svc.DeleteStudent(ctx.Request().Context(), sess.Subject, ctx.Param("id")); err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, echo.Map{"ok": true})
}
