package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/assignment"
	"github.com/trezcool/darasa/core/authority"
	"github.com/trezcool/darasa/core/noc"
	"github.com/trezcool/darasa/core/school"
	"github.com/trezcool/darasa/core/user"
)

var (
	errUnauthorized         = echo.NewHTTPError(http.StatusUnauthorized, "user not authenticated")
	errAuthenticationFailed = echo.NewHTTPError(http.StatusBadRequest, "authentication failed")
	errRefreshExpired       = echo.NewHTTPError(http.StatusForbidden, "refresh has expired")
	errHttpForbidden        = echo.NewHTTPError(http.StatusForbidden, "permission denied")
	errHttpNotFound         = echo.NewHTTPError(http.StatusNotFound, "not found")
)

// domain errors mapped to their HTTP status codes
var domainErrCodes = map[error]int{
	user.ErrNotFound:                 http.StatusNotFound,
	school.ErrDepartmentNotFound:     http.StatusNotFound,
	school.ErrDivisionNotFound:       http.StatusNotFound,
	school.ErrStudentNotFound:        http.StatusNotFound,
	school.ErrTeacherNotFound:        http.StatusNotFound,
	school.ErrSubjectNotFound:        http.StatusNotFound,
	authority.ErrNotFound:            http.StatusNotFound,
	assignment.ErrNotFound:           http.StatusNotFound,
	assignment.ErrSubmissionNotFound: http.StatusNotFound,
	noc.ErrRecordNotFound:            http.StatusNotFound,

	authority.ErrPermissionDenied: http.StatusForbidden,

	user.ErrEmailExists:            http.StatusConflict,
	school.ErrSubjectExists:        http.StatusConflict,
	assignment.ErrAlreadySubmitted: http.StatusConflict,

	user.ErrAuthenticationFailed:  http.StatusBadRequest,
	authority.ErrBatchMismatch:    http.StatusBadRequest,
	assignment.ErrInvalidType:     http.StatusBadRequest,
	assignment.ErrNotPublished:    http.StatusBadRequest,
	assignment.ErrNotInBatch:      http.StatusBadRequest,
	assignment.ErrMarksExceedMax:  http.StatusBadRequest,
	assignment.ErrLowScore:        http.StatusBadRequest,
	assignment.ErrPlagiarism:      http.StatusBadRequest,
	noc.ErrInvalidStatus:          http.StatusBadRequest,
	noc.ErrUnknownTrack:           http.StatusBadRequest,
}

// newAppHTTPErrorHandler returns a custom echo.HTTPErrorHandler that knows how to handle our errors.
// signalShutdown is called in order to gracefully shutdown the Server whenever a core.shutdown error is caught.
func newAppHTTPErrorHandler(logger core.Logger, signalShutdown func()) echo.HTTPErrorHandler {
	return func(err error, ctx echo.Context) {
		var code int
		var message interface{}

		cause := errors.Cause(err)
		if domainCode, ok := domainErrCodes[cause]; ok {
			code = domainCode
			message = cause.Error()
		} else {
			switch origErr := cause.(type) {
			case *echo.HTTPError:
				if origErr == middleware.ErrJWTMissing {
					code = http.StatusUnauthorized
					message = origErr.Message
					break
				}
				if origErr.Internal != nil {
					if herr, ok := origErr.Internal.(*echo.HTTPError); ok {
						origErr = herr
					}
				}
				code = origErr.Code
				message = origErr.Message
			case validator.ValidationErrors:
				fldErrs := make(map[string]string, len(origErr))
				for _, vErr := range origErr {
					fldErrs[vErr.Field()] = vErr.Translate(core.Translator)
				}
				code = http.StatusBadRequest
				message = fldErrs
			case *core.ValidationError:
				if origErr.Fields != nil {
					fldErrs := make(map[string]string, len(origErr.Fields))
					for _, fErr := range origErr.Fields {
						fldErrs[fErr.Field] = fErr.Error
					}
					message = fldErrs
				} else {
					message = origErr.Error()
				}
				code = http.StatusBadRequest
			default: // any other error is a server error
				code = http.StatusInternalServerError
				msg := http.StatusText(http.StatusInternalServerError)
				message = msg

				var usr user.User
				if claims, cErr := getContextClaims(ctx); cErr == nil {
					usr.ID = claims.UserID
					usr.Email = claims.Email
				}
				logger.Error(msg, errors.Wrap(err, msg), usr)

				// shutting down...
				if core.IsShutdown(err) {
					signalShutdown()
				}
			}
		}

		if ctx.Echo().Debug {
			message = err.Error()
		}
		if m, ok := message.(string); ok {
			message = echo.Map{"error": m}
		}

		// Send response
		if !ctx.Response().Committed {
			if ctx.Request().Method == http.MethodHead { // Issue #608
				err = ctx.NoContent(code)
			} else {
				err = ctx.JSON(code, message)
			}
			if err != nil {
				ctx.Echo().Logger.Error(err)
			}
		}
	}
}
