package middleware

import (
	"net/http"

	"github.com/go-chi/cors"
)

// CORS allows the storefront origins to call the API from the browser.
func CORS(frontendBaseURL string) func(http.Handler) http.Handler {
	origins := []string{"http://localhost:3000"}
	if frontendBaseURL != "" && frontendBaseURL != origins[0] {
		origins = append(origins, frontendBaseURL)
	}

	return cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: true,
		MaxAge:           300,
	})
}
