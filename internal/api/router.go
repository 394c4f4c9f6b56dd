package api

import "net/http"

func Router(h *Handler) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /v1/health", h.Health)
	mux.HandleFunc("GET /v1/ready", h.Ready)
	mux.HandleFunc("GET /v1/status", h.Status)

	mux.HandleFunc("GET /", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("chat-hub"))
	})

	return mux
}
