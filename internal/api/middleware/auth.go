package middleware

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/thinh267/stat-arb/pkg/crypto"
	"github.com/thinh267/stat-arb/pkg/utils"
)

// APIKeyHeader - заголовок с ключом доступа
const APIKeyHeader = "X-API-Key"

// APIKey - middleware проверки ключа доступа
//
// Назначение:
// Защищает endpoints ручного запуска задач. Ключ из заголовка X-API-Key
// сравнивается с bcrypt-хешем API_KEY (constant-time внутри bcrypt).
//
// Ответы:
// - 401 Unauthorized: заголовок отсутствует или ключ не совпал
// - 503 Service Unavailable: API_KEY не задан, защищённые endpoints выключены
func APIKey(hash string) func(http.Handler) http.Handler {
	log := utils.L().WithComponent("api_auth")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if hash == "" {
				writeError(w, http.StatusServiceUnavailable, "API key is not configured")
				return
			}

			key := r.Header.Get(APIKeyHeader)
			if err := crypto.VerifyAPIKey(key, hash); err != nil {
				log.Warn("unauthorized request",
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.String("remote_addr", r.RemoteAddr),
					zap.Error(err))
				writeError(w, http.StatusUnauthorized, "Unauthorized")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// writeError отправляет JSON ошибку из middleware
func writeError(w http.ResponseWriter, statusCode int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
