package handlers

import (
	"context"
	"net/http"
	"time"
)

// Pinger - проверка доступности БД (*sql.DB)
type Pinger interface {
	PingContext(ctx context.Context) error
}

// HealthHandler отвечает на проверки живости сервиса.
//
// Endpoints:
// - GET /health - 200, если БД отвечает, иначе 503
type HealthHandler struct {
	db      Pinger
	timeout time.Duration
}

// NewHealthHandler создает HealthHandler
func NewHealthHandler(db Pinger) *HealthHandler {
	return &HealthHandler{db: db, timeout: 2 * time.Second}
}

// HealthResponse - ответ /health
type HealthResponse struct {
	Status   string `json:"status"`
	Database string `json:"database"`
}

// Health проверяет подключение к БД
//
// GET /health
//
// Response 200 OK:
//
//	{"status": "ok", "database": "ok"}
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	if h.db == nil {
		respondWithJSON(w, http.StatusOK, HealthResponse{Status: "ok", Database: "not configured"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	if err := h.db.PingContext(ctx); err != nil {
		respondWithJSON(w, http.StatusServiceUnavailable, HealthResponse{Status: "degraded", Database: err.Error()})
		return
	}
	respondWithJSON(w, http.StatusOK, HealthResponse{Status: "ok", Database: "ok"})
}
