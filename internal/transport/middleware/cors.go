package middleware

import (
	"net/http"
	"strings"

	"github.com/go-chi/cors"
)

// CORS takes a comma separated origin list; empty allows any origin without
// credentials.
func CORS(allowedOrigins string) func(http.Handler) http.Handler {
	origins := []string{"*"}
	credentials := false
	if list := splitOrigins(allowedOrigins); len(list) > 0 {
		origins = list
		credentials = true
	}

	return cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Trace-ID"},
		ExposedHeaders:   []string{"X-Trace-ID"},
		AllowCredentials: credentials,
		MaxAge:           300,
	})
}

func splitOrigins(s string) []string {
	var out []string
	for _, o := range strings.Split(s, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}
