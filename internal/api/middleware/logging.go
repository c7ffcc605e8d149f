package middleware

import (
	"log/slog"
	"net/http"

	"github.com/mcoot/relaygate/internal/middleware"
)

// Logging logs every admin API request with its request id
func Logging(logger *slog.Logger) func(http.Handler) http.Handler {
	return middleware.Logging(logger.With(slog.String("component", "admin_api")))
}
