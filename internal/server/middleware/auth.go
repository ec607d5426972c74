package middleware

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/trungdq-ct/chat-core/internal/usecase"
)

const (
	userIDKey   = "user_id"
	userNameKey = "user_name"
)

// JWTAuth verifies the bearer token and stores the resolved identity on the
// echo context for downstream handlers.
func JWTAuth(auth usecase.AuthUsecase) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			authHeader := c.Request().Header.Get("Authorization")
			if authHeader == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing authorization header")
			}

			tokenString := strings.TrimPrefix(authHeader, "Bearer ")
			if tokenString == authHeader {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid authorization header format")
			}

			identity, err := auth.ValidateToken(c.Request().Context(), tokenString)
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
			}

			c.Set(userIDKey, identity.UserID)
			c.Set(userNameKey, identity.DisplayName)
			return next(c)
		}
	}
}

func GetUserID(c echo.Context) string {
	if id, ok := c.Get(userIDKey).(string); ok {
		return id
	}
	return ""
}
