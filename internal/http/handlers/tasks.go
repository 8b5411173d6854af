package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tripshield/inquiry-desk/internal/domain"
	"github.com/tripshield/inquiry-desk/internal/queue"
)

func (a *API) TaskStatus(w http.ResponseWriter, r *http.Request) {
	taskID, ok := parseTaskID(w, r)
	if !ok {
		return
	}

	task, err := a.intake.GetTask(r.Context(), taskID)
	if err != nil {
		if errors.Is(err, queue.ErrNotFound) {
			writeError(w, r, http.StatusNotFound, "not_found", "task not found")
			return
		}
		a.logf("task lookup failed id=%d error=%v", taskID, err)
		writeError(w, r, http.StatusInternalServerError, "internal_error", "failed to load task")
		return
	}

	writeJSON(w, http.StatusOK, taskPayload(task))
}

func (a *API) RetryTask(w http.ResponseWriter, r *http.Request) {
	taskID, ok := parseTaskID(w, r)
	if !ok {
		return
	}

	task, err := a.intake.RetryTask(r.Context(), taskID)
	if err != nil {
		switch {
		case errors.Is(err, queue.ErrNotFound):
			writeError(w, r, http.StatusNotFound, "not_found", "task not found")
		case errors.Is(err, queue.ErrNotRetryable):
			writeError(w, r, http.StatusConflict, "not_retryable", "only failed tasks can be retried")
		default:
			a.logf("task retry failed id=%d error=%v", taskID, err)
			writeError(w, r, http.StatusInternalServerError, "internal_error", "failed to retry task")
		}
		return
	}

	writeJSON(w, http.StatusOK, taskPayload(task))
}

func parseTaskID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	taskID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || taskID <= 0 {
		writeError(w, r, http.StatusBadRequest, "invalid_request", "task id must be a positive integer")
		return 0, false
	}
	return taskID, true
}

func taskPayload(task *domain.PendingTask) map[string]any {
	payload := map[string]any{
		"task_id":       task.ID,
		"task_type":     task.TaskType,
		"status":        task.Status,
		"attempts":      task.Attempts,
		"created_at":    task.CreatedAt.UTC().Format(time.RFC3339),
		"scheduled_for": task.ScheduledFor.UTC().Format(time.RFC3339),
	}
	if task.LastError != "" {
		payload["last_error"] = task.LastError
	}
	if task.StartedAt != nil {
		payload["started_at"] = task.StartedAt.UTC().Format(time.RFC3339)
	}
	if task.ProcessedAt != nil {
		payload["processed_at"] = task.ProcessedAt.UTC().Format(time.RFC3339)
	}
	return payload
}
