package middleware

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"

	apperrors "wapool/internal/errors"

	"github.com/sirupsen/logrus"
)

const apiKeyHeader = "X-API-Key"

// APIKeyMiddleware guards management routes with a shared key sent as
// X-API-Key or a bearer token. An empty key disables the check.
func APIKeyMiddleware(apiKey string, logger *logrus.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if apiKey == "" {
			return next
		}
		expected := []byte(apiKey)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			presented := presentedKey(r)
			if presented == "" || subtle.ConstantTimeCompare([]byte(presented), expected) != 1 {
				logger.WithFields(logrus.Fields{
					"path":      r.URL.Path,
					"client_ip": ClientIP(r),
				}).Warn("Rejected request with missing or invalid API key")

				err := apperrors.NewAuthError("missing or invalid API key")
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				_ = json.NewEncoder(w).Encode(apperrors.ToHTTPResponse(err))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func presentedKey(r *http.Request) string {
	if key := r.Header.Get(apiKeyHeader); key != "" {
		return key
	}
	if auth := r.Header.Get("Authorization"); auth != "" {
		if scheme, token, ok := strings.Cut(auth, " "); ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
	}
	// Browsers cannot set headers on websocket upgrades.
	if strings.EqualFold(r.Header.Get("Upgrade"), "websocket") {
		return r.URL.Query().Get("api_key")
	}
	return ""
}
