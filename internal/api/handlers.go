package api

import (
	"encoding/json"
	"net/http"

	"github.com/LeventeLantos/chat-hub/internal/scheduler"
	"github.com/LeventeLantos/chat-hub/internal/supervisor"
)

type StatusSource interface {
	Status() supervisor.Snapshot
	Ready() bool
}

type Handler struct {
	hub      StatusSource
	reporter *scheduler.Scheduler
}

func NewHandler(hub StatusSource, reporter *scheduler.Scheduler) *Handler {
	return &Handler{hub: hub, reporter: reporter}
}

// Health only says the process is up; a restarting consumer group is still
// healthy.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	if !h.hub.Ready() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"ready": false})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ready": true})
}

type statusResponse struct {
	supervisor.Snapshot
	Ready           bool `json:"ready"`
	ReporterRunning bool `json:"reporter_running"`
}

func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{
		Snapshot: h.hub.Status(),
		Ready:    h.hub.Ready(),
	}
	if h.reporter != nil {
		resp.ReporterRunning = h.reporter.IsRunning()
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
