package handlers

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/thinh267/stat-arb/internal/scheduler"
)

// JobTrigger - ручной запуск задач планировщика
type JobTrigger interface {
	Trigger(name string) (bool, error)
	Jobs() []string
}

// JobHandler обрабатывает ручной запуск задач.
//
// Endpoints:
// - GET /api/v1/jobs - список задач
// - POST /api/v1/jobs/{name} - поставить задачу в очередь (scan, rank, signals, open, monitor)
type JobHandler struct {
	jobs JobTrigger
}

// NewJobHandler создает JobHandler
func NewJobHandler(jobs JobTrigger) *JobHandler {
	return &JobHandler{jobs: jobs}
}

// JobResponse - результат постановки задачи в очередь
type JobResponse struct {
	Job    string `json:"job"`
	Queued bool   `json:"queued"` // false - запуск уже ожидает в очереди
}

// ListJobs возвращает имена задач
//
// GET /api/v1/jobs
func (h *JobHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	if h.jobs == nil {
		respondWithError(w, http.StatusServiceUnavailable, "scheduler_unavailable", "Scheduler is not running", "")
		return
	}
	respondWithJSON(w, http.StatusOK, SuccessResponse{Data: h.jobs.Jobs()})
}

// TriggerJob ставит задачу в очередь на немедленный запуск
//
// POST /api/v1/jobs/{name}
//
// Response 202 Accepted:
//
//	{"job": "scan", "queued": true}
func (h *JobHandler) TriggerJob(w http.ResponseWriter, r *http.Request) {
	if h.jobs == nil {
		respondWithError(w, http.StatusServiceUnavailable, "scheduler_unavailable", "Scheduler is not running", "")
		return
	}

	name := mux.Vars(r)["name"]
	queued, err := h.jobs.Trigger(name)
	if err != nil {
		if errors.Is(err, scheduler.ErrUnknownJob) {
			respondWithError(w, http.StatusNotFound, "unknown_job", "Unknown job", name)
			return
		}
		respondWithError(w, http.StatusInternalServerError, "internal_error", "Internal server error", err.Error())
		return
	}
	respondWithJSON(w, http.StatusAccepted, JobResponse{Job: name, Queued: queued})
}
