package api

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"

	"github.com/mycelian/relic-service/internal/api/respond"
)

// extractAPIKey extracts the key from an "Authorization: Bearer <key>" header.
func extractAPIKey(r *http.Request) (string, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", errors.New("missing Authorization header")
	}
	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || parts[0] != "Bearer" {
		return "", errors.New("invalid Authorization header format, expected 'Bearer <api_key>'")
	}
	return parts[1], nil
}

// requireKey rejects requests without the admin key. An empty key allows all.
func requireKey(key string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if key == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got, err := extractAPIKey(r)
			if err != nil {
				respond.WriteError(w, http.StatusUnauthorized, err.Error())
				return
			}
			if subtle.ConstantTimeCompare([]byte(got), []byte(key)) != 1 {
				respond.WriteError(w, http.StatusUnauthorized, "invalid API key")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
