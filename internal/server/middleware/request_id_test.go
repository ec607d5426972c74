package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestID(t *testing.T) {
	t.Parallel()

	handler := func(c echo.Context) error {
		return c.String(http.StatusOK, GetRequestID(c))
	}

	t.Run("generates when absent", func(t *testing.T) {
		e := echo.New()
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)

		require.NoError(t, RequestID()(handler)(c))
		id := rec.Header().Get(XRequestID)
		assert.NotEmpty(t, id)
		assert.Equal(t, id, rec.Body.String())
	})

	t.Run("keeps the inbound id", func(t *testing.T) {
		e := echo.New()
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(XRequestID, "req-42")
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)

		require.NoError(t, RequestID()(handler)(c))
		assert.Equal(t, "req-42", rec.Header().Get(XRequestID))
		assert.Equal(t, "req-42", rec.Body.String())
	})

	t.Run("correlation header works too", func(t *testing.T) {
		e := echo.New()
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(XCorrelationID, "corr-7")
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)

		require.NoError(t, RequestID()(handler)(c))
		assert.Equal(t, "corr-7", rec.Header().Get(XRequestID))
	})
}
