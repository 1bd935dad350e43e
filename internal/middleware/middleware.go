package middleware

import (
	"log/slog"

	"github.com/golang-jwt/jwt/v5"
	echojwt "github.com/labstack/echo-jwt/v4"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/maarten-devries/feynman-flashcards/internal/contract"
)

// Setup wires the global middleware: structured request logging, panic
// recovery and permissive CORS for the local web client.
func Setup(e *echo.Echo, logger *slog.Logger) {
	e.HideBanner = true

	e.Use(echomw.RequestLoggerWithConfig(echomw.RequestLoggerConfig{
		LogStatus:  true,
		LogURI:     true,
		LogMethod:  true,
		LogLatency: true,
		LogError:   true,
		LogValuesFunc: func(c echo.Context, v echomw.RequestLoggerValues) error {
			attrs := []any{
				slog.String("method", v.Method),
				slog.String("uri", v.URI),
				slog.Int("status", v.Status),
				slog.Duration("latency", v.Latency),
			}
			if v.Error != nil {
				attrs = append(attrs, slog.String("error", v.Error.Error()))
				logger.Error("request", attrs...)
				return nil
			}
			logger.Info("request", attrs...)
			return nil
		},
	}))

	e.Use(echomw.Recover())
	e.Use(echomw.CORS())
}

// GetUserAuthConfig builds the JWT middleware config for the /v1 group.
func GetUserAuthConfig(secret string) echojwt.Config {
	return echojwt.Config{
		NewClaimsFunc: func(c echo.Context) jwt.Claims {
			return new(contract.JWTClaims)
		},
		SigningKey: []byte(secret),
	}
}
