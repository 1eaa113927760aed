package echoapi

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/hcanning/homeroom/core/auth"
)

const (
	sessionCookieName = "session"
	contextSessionKey = "session"
)

func setSessionCookie(ctx echo.Context, token string, maxAge time.Duration) {
	ctx.SetCookie(&http.Cookie{
		Name:     sessionCookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(maxAge / time.Second),
		Expires:  time.Now().Add(maxAge),
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteNoneMode,
	})
}

func clearSessionCookie(ctx echo.Context) {
	ctx.SetCookie(&http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteNoneMode,
	})
}

// requestSession decodes the session cookie, if any.
func requestSession(ctx echo.Context, codec *auth.SessionCodec) (auth.Session, error) {
	cookie, err := ctx.Cookie(sessionCookieName)
	if err != nil || cookie.Value == "" {
		return auth.Session{}, auth.ErrInvalidSession
	}
	return codec.Validate(cookie.Value)
}

// requireRole lets the request through only with a valid session of the given role.
func requireRole(codec *auth.SessionCodec, role auth.Role) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			sess, err := requestSession(ctx, codec)
			if err != nil || sess.Role != role {
				return errUnauthorized
			}
			ctx.Set(contextSessionKey, sess)
			return next(ctx)
		}
	}
}

func contextSession(ctx echo.Context) (auth.Session, bool) {
	sess, ok := ctx.Get(contextSessionKey).(auth.Session)
	return sess, ok
}

func mustContextSession(ctx echo.Context) (auth.Session, error) {
	if sess, ok := contextSession(ctx); ok {
		return sess, nil
	}
	return auth.Session{}, errors.Wrap(errUnauthorized, "session not found in echo.Context")
}
