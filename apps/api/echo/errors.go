package echoapi

import (
	"fmt"
	"net/http"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/hcanning/homeroom/core"
	"github.com/hcanning/homeroom/core/auth"
	"github.com/hcanning/homeroom/core/school"
)

var (
	errUnauthorized = echo.NewHTTPError(http.StatusUnauthorized, "Unauthorized")

	msgMissingFields = "Missing required fields"
	msgInvalidFields = "Invalid request"
)

// newAppHTTPErrorHandler returns a custom echo.HTTPErrorHandler that knows how to handle our errors.
// Responses are shaped {"error": message[, "fields": {field: message}]}.
// signalShutdown is called in order to gracefully shutdown the Server whenever a core.shutdown error is caught.
func newAppHTTPErrorHandler(logger core.Logger, translator ut.Translator, signalShutdown func()) echo.HTTPErrorHandler {
	return func(err error, ctx echo.Context) {
		var code int
		var message string
		var fields map[string]string

		switch origErr := errors.Cause(err).(type) {
		case *echo.HTTPError:
			if origErr.Internal != nil {
				if herr, ok := origErr.Internal.(*echo.HTTPError); ok {
					origErr = herr
				}
			}
			code = origErr.Code
			if m, ok := origErr.Message.(string); ok {
				message = m
			} else {
				message = fmt.Sprint(origErr.Message)
			}
		case validator.ValidationErrors:
			fields = make(map[string]string, len(origErr))
			message = msgInvalidFields
			for _, vErr := range origErr {
				fields[vErr.Field()] = vErr.Translate(translator)
				if vErr.Tag() == "required" {
					message = msgMissingFields
				}
			}
			code = http.StatusBadRequest
		case *core.ValidationError:
			if origErr.Fields != nil {
				fields = make(map[string]string, len(origErr.Fields))
				for _, fErr := range origErr.Fields {
					fields[fErr.Field] = fErr.Error
				}
			}
			code = http.StatusBadRequest
			message = origErr.Error()
		default:
			switch origErr {
			case school.ErrNotFound:
				code, message = http.StatusNotFound, origErr.Error()
			case school.ErrInvalidCredentials:
				code, message = http.StatusUnauthorized, origErr.Error()
			case auth.ErrInvalidSession, auth.ErrSessionExpired:
				code, message = http.StatusUnauthorized, errUnauthorized.Message.(string)
			default: // any other error is a server error
				code = http.StatusInternalServerError
				message = http.StatusText(http.StatusInternalServerError)

				args := []interface{}{errors.Wrap(err, message)}
				if sess, ok := contextSession(ctx); ok {
					args = append(args, sess)
				}
				logger.Error(message, args...)

				if ctx.Echo().Debug {
					message = err.Error()
				}

				// shutting down...
				if core.IsShutdown(err) {
					signalShutdown()
				}
			}
		}

		body := echo.Map{"error": message}
		if len(fields) > 0 {
			body["fields"] = fields
		}

		// Send response
		if !ctx.Response().Committed {
			if ctx.Request().Method == http.MethodHead { // Issue #608
				err = ctx.NoContent(code)
			} else {
				err = ctx.JSON(code, body)
			}
			if err != nil {
				ctx.Echo().Logger.Error(err)
			}
		}
	}
}
