package utils

import (
	"net/http"

	"github.com/go-chi/cors"
)

// WithCORS answers preflight requests and stamps CORS headers for origin.
// "*" or an empty origin allows any caller.
func WithCORS(next http.Handler, origin string) http.Handler {
	if origin == "" {
		origin = "*"
	}
	return cors.Handler(cors.Options{
		AllowedOrigins: []string{origin},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Connect-Protocol-Version", "Connect-Timeout-Ms", "X-User-Agent", "X-Request-Id"},
		ExposedHeaders: []string{"Grpc-Status", "Grpc-Message", "X-Request-Id"},
		MaxAge:         300,
	})(next)
}
