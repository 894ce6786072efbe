package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/LeventeLantos/loyalty-outreach/internal/model"
	"github.com/LeventeLantos/loyalty-outreach/internal/repo"
	"github.com/LeventeLantos/loyalty-outreach/internal/scheduler"
	"github.com/LeventeLantos/loyalty-outreach/internal/service"
)

type Runner interface {
	Run(ctx context.Context, dryRun bool) (model.RunSummary, error)
}

type Handler struct {
	sched  *scheduler.Scheduler
	runner Runner
	runs   repo.RunRepository
}

// NewHandler wires the API. runs may be nil when no audit database is configured.
func NewHandler(s *scheduler.Scheduler, runner Runner, runs repo.RunRepository) *Handler {
	return &Handler{sched: s, runner: runner, runs: runs}
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (h *Handler) SchedulerStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"running":  h.sched.IsRunning(),
		"lastTick": h.sched.LastTick(),
	})
}

func (h *Handler) SchedulerStart(w http.ResponseWriter, r *http.Request) {
	h.sched.Start()
	writeJSON(w, http.StatusOK, map[string]any{"running": h.sched.IsRunning()})
}

func (h *Handler) SchedulerStop(w http.ResponseWriter, r *http.Request) {
	h.sched.Stop()
	writeJSON(w, http.StatusOK, map[string]any{"running": h.sched.IsRunning()})
}

// TriggerRun performs one run now. ?dry_run=true suppresses sends and writes.
func (h *Handler) TriggerRun(w http.ResponseWriter, r *http.Request) {
	dryRun, _ := strconv.ParseBool(r.URL.Query().Get("dry_run"))

	summary, err := h.runner.Run(r.Context(), dryRun)
	switch {
	case errors.Is(err, service.ErrRunInProgress):
		writeJSON(w, http.StatusConflict, map[string]any{"error": err.Error(), "summary": summary})
	case err != nil:
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error(), "summary": summary})
	default:
		writeJSON(w, http.StatusOK, map[string]any{"summary": summary})
	}
}

func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	if h.runs == nil {
		http.Error(w, "run history requires POSTGRES_URL", http.StatusServiceUnavailable)
		return
	}

	limit := parseInt(r.URL.Query().Get("limit"), 50)
	offset := parseInt(r.URL.Query().Get("offset"), 0)

	items, err := h.runs.ListRuns(r.Context(), limit, offset)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func parseInt(raw string, def int) int {
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return v
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
