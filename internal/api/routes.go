package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/thinh267/stat-arb/internal/api/handlers"
	"github.com/thinh267/stat-arb/internal/api/middleware"
)

// Dependencies содержит все зависимости для API handlers
type Dependencies struct {
	DB         handlers.Pinger
	Jobs       handlers.JobTrigger
	APIKeyHash string
}

// SetupRoutes настраивает HTTP маршруты служебного сервера
//
// Структура маршрутов:
//
//	├── GET /health - проверка БД
//	├── GET /metrics - метрики Prometheus
//	└── /api/v1/ (X-API-Key)
//	    ├── GET /jobs - список задач
//	    └── POST /jobs/{name} - ручной запуск задачи
//
// Middleware применяется в следующем порядке:
// 1. Recovery (для всех маршрутов)
// 2. Logging (для всех маршрутов)
// 3. APIKey (только /api/v1)
func SetupRoutes(deps *Dependencies) *mux.Router {
	if deps == nil {
		deps = &Dependencies{}
	}

	router := mux.NewRouter()

	router.Use(middleware.Recovery)
	router.Use(middleware.Logging)

	healthHandler := handlers.NewHealthHandler(deps.DB)
	jobHandler := handlers.NewJobHandler(deps.Jobs)

	router.HandleFunc("/health", healthHandler.Health).Methods(http.MethodGet)
	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	api := router.PathPrefix("/api/v1").Subrouter()
	api.Use(middleware.APIKey(deps.APIKeyHash))

	api.HandleFunc("/jobs", jobHandler.ListJobs).Methods(http.MethodGet)
	api.HandleFunc("/jobs/{name}", jobHandler.TriggerJob).Methods(http.MethodPost)

	return router
}
