package server

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/trungdq-ct/chat-core/internal/models"
)

// errorHandler maps the error taxonomy onto HTTP statuses so the fallback
// path rejects the same way the channel path nacks.
func errorHandler() echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		var he *echo.HTTPError
		if !errors.As(err, &he) {
			he = &echo.HTTPError{
				Code:    httpStatusOf(err),
				Message: messageOf(err),
			}
		}

		if !c.Response().Committed {
			var writeErr error
			if c.Request().Method == http.MethodHead {
				writeErr = c.NoContent(he.Code)
			} else {
				writeErr = c.JSON(he.Code, map[string]any{
					"error": he.Message,
					"code":  models.CodeOf(err).String(),
				})
			}
			if writeErr != nil {
				c.Logger().Error(writeErr)
			}
		}
	}
}

func httpStatusOf(err error) int {
	switch models.CodeOf(err) {
	case codes.InvalidArgument:
		return http.StatusBadRequest
	case codes.PermissionDenied:
		return http.StatusForbidden
	case codes.NotFound:
		return http.StatusNotFound
	case codes.Unavailable:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func messageOf(err error) string {
	if st, ok := status.FromError(err); ok && st.Code() != codes.Unknown {
		return st.Message()
	}
	return http.StatusText(httpStatusOf(err))
}
