package handler

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// APIKeyMiddleware requires "Authorization: Bearer <key>" matching apiKey, or
// matching the bcrypt apiKeyHash. With neither configured every request is rejected.
func APIKeyMiddleware(apiKey, apiKeyHash string, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r)
			if !ok || !validAPIKey(token, apiKey, apiKeyHash) {
				logger.Warn("auth: rejected gateway API key",
					zap.String("path", r.URL.Path),
					zap.String("remote_addr", r.RemoteAddr),
					zap.Bool("header_present", r.Header.Get("Authorization") != ""),
				)
				writeError(w, http.StatusUnauthorized, "Unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	parts := strings.SplitN(r.Header.Get("Authorization"), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	token := strings.TrimSpace(parts[1])
	return token, token != ""
}

func validAPIKey(token, apiKey, apiKeyHash string) bool {
	if apiKey != "" && subtle.ConstantTimeCompare([]byte(token), []byte(apiKey)) == 1 {
		return true
	}
	if apiKeyHash != "" && bcrypt.CompareHashAndPassword([]byte(apiKeyHash), []byte(token)) == nil {
		return true
	}
	return false
}
