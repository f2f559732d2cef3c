package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/trezcool/proofmate/core"
	"github.com/trezcool/proofmate/core/assignment"
	"github.com/trezcool/proofmate/core/user"
)

var (
	errNotAuthorized      = echo.NewHTTPError(http.StatusUnauthorized, "Not authorized to access this route")
	errMissingCredentials = echo.NewHTTPError(http.StatusBadRequest, "Please provide an email and password")
	errInvalidCredentials = echo.NewHTTPError(http.StatusUnauthorized, "Invalid credentials")
	errAccountDeactivated = echo.NewHTTPError(http.StatusForbidden, "Account deactivated")
	errRefreshExpired     = echo.NewHTTPError(http.StatusForbidden, "Refresh has expired")
	errNoUserWithEmail    = echo.NewHTTPError(http.StatusNotFound, "There is no user with that email")
	errTooManyRequests    = echo.NewHTTPError(http.StatusTooManyRequests, "Too many requests, please try again later")
	errFileNotFound       = echo.NewHTTPError(http.StatusNotFound, "Solution file not found")
)

// domainErrors maps the errors of the core services to their HTTP status.
var domainErrors = map[error]int{
	user.ErrInvalidToken:             http.StatusBadRequest,
	user.ErrEmailExists:              http.StatusBadRequest,
	user.ErrEmailNotSent:             http.StatusInternalServerError,
	assignment.ErrAssignmentNotFound: http.StatusNotFound,
	assignment.ErrSubmissionNotFound: http.StatusNotFound,
	core.ErrFileNotFound:             http.StatusNotFound,
}

type errorResponse struct {
	Success bool              `json:"success"`
	Error   string            `json:"error,omitempty"`
	Errors  map[string]string `json:"errors,omitempty"`
}

// newAppHTTPErrorHandler returns a custom echo.HTTPErrorHandler that knows how to handle our errors.
// signalShutdown is called in order to gracefully shutdown the Server whenever a core.shutdown error is caught.
func newAppHTTPErrorHandler(deps *ServerDeps, signalShutdown func()) echo.HTTPErrorHandler {
	return func(err error, ctx echo.Context) {
		code := http.StatusInternalServerError
		resp := errorResponse{Success: false}

		cause := errors.Cause(err)
		switch origErr := cause.(type) {
		case *echo.HTTPError:
			if origErr == middleware.ErrJWTMissing || (origErr.Code == http.StatusUnauthorized && origErr.Internal != nil) {
				origErr = errNotAuthorized // missing, invalid or expired jwt
			} else if herr, ok := origErr.Internal.(*echo.HTTPError); ok {
				origErr = herr
			}
			code = origErr.Code
			if msg, ok := origErr.Message.(string); ok {
				resp.Error = msg
			} else {
				resp.Error = http.StatusText(code)
			}
		case validator.ValidationErrors:
			code = http.StatusBadRequest
			resp.Errors = core.TranslateErrors(origErr, deps.Translator)
		case *core.ValidationError:
			code = http.StatusBadRequest
			if origErr.Err == nil && origErr.Fields != nil {
				resp.Errors = make(map[string]string, len(origErr.Fields))
				for _, fErr := range origErr.Fields {
					resp.Errors[fErr.Field] = fErr.Error
				}
			} else {
				resp.Error = origErr.Error()
			}
		default:
			if status, ok := domainErrors[cause]; ok {
				code = status
				resp.Error = cause.Error()
				if code < http.StatusInternalServerError {
					break
				}
			} else {
				resp.Error = http.StatusText(code)
			}

			// any other error is a server error
			var args []interface{}
			args = append(args, errors.Wrap(err, resp.Error))
			if usr, ok := ctx.Get(contextUserKey).(user.User); ok {
				args = append(args, usr)
			}
			deps.Logger.Error(resp.Error, args...)

			// shutting down...
			if core.IsShutdown(err) {
				signalShutdown()
			}
		}

		if ctx.Echo().Debug && resp.Errors == nil {
			resp.Error = err.Error()
		}

		// Send response
		if !ctx.Response().Committed {
			if ctx.Request().Method == http.MethodHead { // Issue #608
				err = ctx.NoContent(code)
			} else {
				err = ctx.JSON(code, resp)
			}
			if err != nil {
				ctx.Echo().Logger.Error(err)
			}
		}
	}
}
