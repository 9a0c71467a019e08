package errcodes

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/echo/v4/middleware/logger"
	"github.com/robinjoseph08/golib/errutils"
)

type Handler struct{}

func NewHandler() *Handler {
	return &Handler{}
}

// Handle is an Echo error handler that maps HTTP errors accordingly; any
// generic error is interpreted as an internal server error. OPDS clients
// get plain-text bodies, which every e-reader copes with.
func (h *Handler) Handle(err error, c echo.Context) {
	if errutils.IsIgnorableErr(err) {
		logger.FromEchoContext(c).Err(err).Warn("broken pipe")
		return
	}

	httpCode, msg := h.resolve(err)

	if httpCode == http.StatusInternalServerError {
		logger.FromEchoContext(c).Err(err).Error("server error")
	}

	if c.Response().Committed {
		return
	}
	if err := c.String(httpCode, msg); err != nil {
		logger.FromEchoContext(c).Err(errors.WithStack(err)).Error("error handler write error")
	}
}

func (h *Handler) resolve(err error) (int, string) {
	msg := ""
	httpCode := http.StatusInternalServerError

	// Echo errors
	var he *echo.HTTPError
	if ok := errors.As(err, &he); ok {
		httpCode = he.Code
		if s, isStr := he.Message.(string); isStr {
			msg = s
		}
	}

	// Custom errors
	var e *Error
	if ok := errors.As(err, &e); ok {
		httpCode = e.HTTPCode
		msg = e.Message
	}

	if httpCode == http.StatusInternalServerError && msg == "" {
		msg = "Internal Server Error"
	}

	return httpCode, msg
}
