package echoapi

import (
	"fmt"
	"net/http"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/trezcool/chuo/core"
	"github.com/trezcool/chuo/core/record"
	"github.com/trezcool/chuo/core/user"
)

var (
	errUnauthorized         = echo.NewHTTPError(http.StatusUnauthorized, "user not authenticated")
	errAuthenticationFailed = echo.NewHTTPError(http.StatusBadRequest, "authentication failed")
	errAccountDeactivated   = echo.NewHTTPError(http.StatusForbidden, "account deactivated")
	errRefreshExpired       = echo.NewHTTPError(http.StatusForbidden, "refresh has expired")
	errHTTPForbidden        = echo.NewHTTPError(http.StatusForbidden, "permission denied")
	errHTTPNotFound         = echo.NewHTTPError(http.StatusNotFound, "not found")
)

// newAppHTTPErrorHandler returns a custom echo.HTTPErrorHandler that knows how to handle our errors.
// signalShutdown is called in order to gracefully shutdown the Server whenever a core.shutdown error is caught.
func newAppHTTPErrorHandler(logger core.Logger, translator ut.Translator, signalShutdown func()) echo.HTTPErrorHandler {
	return func(err error, ctx echo.Context) {
		resp := errorResponse{}

		var (
			httpErr *echo.HTTPError
			valErrs validator.ValidationErrors
			valErr  *core.ValidationError
		)
		switch {
		case errors.As(err, &valErrs):
			resp.StatusCode = http.StatusBadRequest
			resp.Message = "invalid input"
			resp.Errors = make(map[string]string, len(valErrs))
			for _, vErr := range valErrs {
				resp.Errors[vErr.Field()] = vErr.Translate(translator)
			}
		case errors.As(err, &valErr):
			resp.StatusCode = http.StatusBadRequest
			resp.Message = valErr.Error()
			if len(valErr.Fields) > 0 {
				resp.Errors = make(map[string]string, len(valErr.Fields))
				for _, fErr := range valErr.Fields {
					resp.Errors[fErr.Field] = fErr.Error
				}
			}
		case errors.Is(err, record.ErrNotFound), errors.Is(err, user.ErrNotFound):
			resp.StatusCode = http.StatusNotFound
			resp.Message = errors.Cause(err).Error()
		case errors.Is(err, record.ErrForbidden):
			resp.StatusCode = http.StatusForbidden
			resp.Message = record.ErrForbidden.Error()
		case errors.As(err, &httpErr):
			if httpErr == middleware.ErrJWTMissing {
				resp.StatusCode = http.StatusUnauthorized
			} else {
				if herr, ok := httpErr.Internal.(*echo.HTTPError); ok {
					httpErr = herr
				}
				resp.StatusCode = httpErr.Code
			}
			resp.Message = fmt.Sprint(httpErr.Message)
		default: // any other error is a server error
			resp.StatusCode = http.StatusInternalServerError
			resp.Message = http.StatusText(http.StatusInternalServerError)

			args := []interface{}{errors.Wrap(err, resp.Message)}
			if usr, uErr := getContextUser(ctx); uErr == nil {
				args = append(args, usr)
			}
			logger.Error(fmt.Sprintf("%s %s: %v", ctx.Request().Method, ctx.Path(), err), args...)

			if ctx.Echo().Debug {
				resp.Message = err.Error()
			}
			// shutting down...
			if core.IsShutdown(err) && signalShutdown != nil {
				signalShutdown()
			}
		}

		// Send response
		if !ctx.Response().Committed {
			if ctx.Request().Method == http.MethodHead { // Issue #608
				err = ctx.NoContent(resp.StatusCode)
			} else {
				err = ctx.JSON(resp.StatusCode, resp)
			}
			if err != nil {
				ctx.Echo().Logger.Error(err)
			}
		}
	}
}
