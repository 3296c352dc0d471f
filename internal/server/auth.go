package server

import (
	"net/http"
	"strings"
)

// authMiddleware checks the admin token in the Authorization header or a
// token query param.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := r.URL.Query().Get("token")
		if token == "" {
			header := r.Header.Get("Authorization")
			token = strings.TrimPrefix(header, "Bearer ")
		}

		if token != s.token {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r)
	})
}
