package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/hcanning/homeroom/core/auth"
	"github.com/hcanning/homeroom/core/school"
)

type sessionApi struct {
	svc         *school.Service
	codec       *auth.SessionCodec
	metrics     *metrics
	pingMessage string
}

func registerAuthAPI(g *echo.Group, opts *Options, m *metrics) {
	api := sessionApi{
		svc:         opts.Service,
		codec:       opts.Sessions,
		metrics:     m,
		pingMessage: opts.Conf.PingMessage,
	}

	g.GET("/ping", api.ping)
	g.GET("/status", api.status)

	g.POST("/setup-admin", api.setupAdmin)
	g.POST("/setup-admin/force", api.forceSetupAdmin)

	ag := g.Group("/auth")
	ag.POST("/login", api.login)
	ag.POST("/logout", api.logout)
	ag.GET("/whoami", api.whoami)
}

// Handlers

func (api *sessionApi) ping(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, echo.Map{"message": api.pingMessage})
}

func (api *sessionApi) status(ctx echo.Context) error {
	configured, err := api.svc.AdminConfigured(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "checking admin")
	}
	return ctx.JSON(http.StatusOK, echo.Map{"adminConfigured": configured})
}

func (api *sessionApi) setupAdmin(ctx echo.Context) error {
	var data school.Credentials
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to Credentials")
	}
	if err := api.svc.SetupAdmin(ctx.Request().Context(), data); err != nil {
		return err
	}
	if err := api.startSession(ctx, auth.AdminSubject, auth.RoleSuperadmin); err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, echo.Map{"ok": true})
}

func (api *sessionApi) forceSetupAdmin(ctx echo.Context) error {
	var data school.Credentials
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to Credentials")
	}
	if err := api.svc.ForceSetupAdmin(ctx.Request().Context(), data); err != nil {
		return err
	}
	if err := api.startSession(ctx, auth.AdminSubject, auth.RoleSuperadmin); err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, echo.Map{"ok": true, "forced": true})
}

func (api *sessionApi) login(ctx echo.Context) error {
	var data school.Login
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to Login")
	}

	subject, err := api.svc.Login(ctx.Request().Context(), data)
	api.metrics.observeLogin(data.Role, err)
	if err != nil {
		return err
	}
	if err = api.startSession(ctx, subject, data.Role); err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, echo.Map{"ok": true, "role": data.Role})
}

func (api *sessionApi) logout(ctx echo.Context) error {
	clearSessionCookie(ctx)
	return ctx.JSON(http.StatusOK, echo.Map{"ok": true})
}

// whoami never fails: a missing, tampered or expired cookie is reported as no session.
func (api *sessionApi) whoami(ctx echo.Context) error {
	sess, err := requestSession(ctx, api.codec)
	if err != nil {
		return ctx.JSON(http.StatusOK, echo.Map{"hasSession": false})
	}
	return ctx.JSON(http.StatusOK, echo.Map{"hasSession": true, "role": sess.Role})
}

func (api *sessionApi) startSession(ctx echo.Context, subject string, role auth.Role) error {
	token, err := api.codec.Issue(subject, role)
	if err != nil {
		return errors.Wrap(err, "issuing session")
	}
	setSessionCookie(ctx, token, api.codec.MaxAge())
	return nil
}
