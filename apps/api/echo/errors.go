package echoapi

import (
	"net/http"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/assignment"
	"github.com/trezcool/darasa/core/billing"
	"github.com/trezcool/darasa/core/catalog"
	"github.com/trezcool/darasa/core/class"
	"github.com/trezcool/darasa/core/notification"
	"github.com/trezcool/darasa/core/session"
	"github.com/trezcool/darasa/core/user"
	"github.com/trezcool/darasa/core/wallet"
)

var (
	errUnauthorized         = echo.NewHTTPError(http.StatusUnauthorized, "user not authenticated")
	errAuthenticationFailed = echo.NewHTTPError(http.StatusBadRequest, "authentication failed")
	errAccountDeactivated   = echo.NewHTTPError(http.StatusForbidden, "account deactivated")
	errRefreshExpired       = echo.NewHTTPError(http.StatusForbidden, "refresh has expired")
	errHttpForbidden        = echo.NewHTTPError(http.StatusForbidden, "permission denied")
)

// notFoundErrs map to a plain 404.
var notFoundErrs = map[error]struct{}{
	user.ErrNotFound:                 {},
	catalog.ErrNotFound:              {},
	class.ErrNotFound:                {},
	session.ErrNotFound:              {},
	assignment.ErrNotFound:           {},
	assignment.ErrSubmissionNotFound: {},
	wallet.ErrNotFound:               {},
	wallet.ErrTxnNotFound:            {},
	wallet.ErrWithdrawalNotFound:     {},
	notification.ErrNotFound:         {},
}

// badRequestErrs are domain rule violations surfaced as a 400.
var badRequestErrs = map[error]struct{}{
	user.ErrUserExists:           {},
	class.ErrInvalidTransition:   {},
	session.ErrInvalidTransition: {},
	session.ErrClassNotActive:    {},
	assignment.ErrClosed:         {},
	wallet.ErrInsufficientTokens: {},
	wallet.ErrUnknownTokenOp:     {},
	billing.ErrBadEvent:          {},
	billing.ErrBadSignature:      {},
}

// newAppHTTPErrorHandler returns a custom echo.HTTPErrorHandler that knows how to handle our errors.
// signalShutdown is called in order to gracefully shutdown the Server whenever a core.shutdown error is caught.
func newAppHTTPErrorHandler(logger core.Logger, translator ut.Translator, signalShutdown func()) echo.HTTPErrorHandler {
	return func(err error, ctx echo.Context) {
		var code int
		var message interface{}

		cause := errors.Cause(err)
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
			if code == http.StatusNotFound {
				message = echo.Map{"error": "not found", "path": ctx.Request().URL.Path}
			}
		case validator.ValidationErrors:
			fldErrs := make(map[string]string, len(origErr))
			for _, vErr := range origErr {
				fldErrs[vErr.Field()] = vErr.Translate(translator)
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
		default:
			if _, ok := notFoundErrs[cause]; ok {
				code = http.StatusNotFound
				message = cause.Error()
				break
			}
			if _, ok := badRequestErrs[cause]; ok {
				code = http.StatusBadRequest
				message = cause.Error()
				break
			}
			if cause == assignment.ErrAlreadySubmitted {
				code = http.StatusConflict
				message = cause.Error()
				break
			}

			// any other error is a server error
			code = http.StatusInternalServerError
			msg := http.StatusText(http.StatusInternalServerError)
			message = msg

			var usr user.User
			if claims, cErr := getContextClaims(ctx); cErr == nil {
				usr.ID = claims.Subject
				usr.Username = claims.Username
				usr.Email = claims.Email
			}
			logger.Error(msg, errors.Wrap(err, msg), usr)

			// shutting down...
			if core.IsShutdown(err) {
				signalShutdown()
			}
		}

		if m, ok := message.(string); ok {
			if ctx.Echo().Debug && code >= http.StatusInternalServerError {
				m = err.Error()
			}
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
