package handlers

import (
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/anstrom/hostsweep/internal/errors"
	"github.com/anstrom/hostsweep/internal/scheduler"
)

// JobManager is the part of scheduler.Scheduler the schedule endpoints use.
type JobManager interface {
	AddJob(name, cronExpr, rangeExpr string) (uuid.UUID, error)
	RemoveJob(jobID uuid.UUID) error
	GetJobs() []scheduler.ScheduledJob
}

// ScheduleRequest is the body of POST /schedules.
type ScheduleRequest struct {
	Name  string `json:"name" validate:"required,max=255"`
	Cron  string `json:"cron" validate:"required"`
	Range string `json:"range" validate:"required"`
}

// ScheduleHandler serves the scheduled scan endpoints.
type ScheduleHandler struct {
	jobs           JobManager
	logger         *slog.Logger
	validator      *validator.Validate
	maxRequestSize int64
}

// NewScheduleHandler creates a new schedule handler.
func NewScheduleHandler(jobs JobManager, logger *slog.Logger, maxRequestSize int64) *ScheduleHandler {
	return &ScheduleHandler{
		jobs:           jobs,
		logger:         logger.With("handler", "schedule"),
		validator:      validator.New(),
		maxRequestSize: maxRequestSize,
	}
}

// ListSchedules returns every scheduled job ordered by name.
func (h *ScheduleHandler) ListSchedules(w http.ResponseWriter, r *http.Request) {
	jobs := h.jobs.GetJobs()
	if jobs == nil {
		jobs = []scheduler.ScheduledJob{}
	}
	writeJSON(w, r, http.StatusOK, map[string]interface{}{"schedules": jobs})
}

// CreateSchedule adds a job.
func (h *ScheduleHandler) CreateSchedule(w http.ResponseWriter, r *http.Request) {
	var req ScheduleRequest
	if err := parseJSON(w, r, &req, h.maxRequestSize); err != nil {
		writeError(w, r, http.StatusBadRequest, err)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		writeError(w, r, http.StatusBadRequest, ErrInvalidArguments)
		return
	}

	id, err := h.jobs.AddJob(req.Name, req.Cron, req.Range)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err)
		return
	}

	h.logger.Info("Schedule created", "id", id, "name", req.Name, "cron", req.Cron, "range", req.Range)
	writeJSON(w, r, http.StatusCreated, map[string]interface{}{"id": id})
}

// DeleteSchedule removes a job.
func (h *ScheduleHandler) DeleteSchedule(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		writeError(w, r, http.StatusBadRequest, errors.NewScanError(errors.CodeValidation, "invalid schedule ID"))
		return
	}

	if err := h.jobs.RemoveJob(id); err != nil {
		status := http.StatusInternalServerError
		if errors.IsCode(err, errors.CodeNotFound) {
			status = http.StatusNotFound
		}
		writeError(w, r, status, err)
		return
	}

	h.logger.Info("Schedule removed", "id", id)
	w.WriteHeader(http.StatusNoContent)
}
