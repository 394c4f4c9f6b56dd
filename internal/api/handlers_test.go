package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/LeventeLantos/chat-hub/internal/scheduler"
	"github.com/LeventeLantos/chat-hub/internal/supervisor"
)

type fakeHub struct {
	ready bool
	snap  supervisor.Snapshot
}

func (f *fakeHub) Status() supervisor.Snapshot { return f.snap }
func (f *fakeHub) Ready() bool                 { return f.ready }

func newTestServer(t *testing.T, hub StatusSource) (*scheduler.Scheduler, http.Handler) {
	t.Helper()

	// Long interval so only the immediate tick happens.
	s, err := scheduler.New("stats", time.Hour, func(context.Context) {}, zap.NewNop())
	if err != nil {
		t.Fatalf("failed to create scheduler: %v", err)
	}

	return s, Router(NewHandler(hub, s))
}

func decodeJSON(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()

	var m map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &m); err != nil {
		t.Fatalf("failed to decode json: %v body=%q", err, rr.Body.String())
	}
	return m
}

func serve(mux http.Handler, method, path string) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, httptest.NewRequest(method, path, nil))
	return rr
}

func TestHealth_AlwaysOK(t *testing.T) {
	_, mux := newTestServer(t, &fakeHub{ready: false})

	rr := serve(mux, http.MethodGet, "/v1/health")

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d body=%q", rr.Code, rr.Body.String())
	}
	if ct := rr.Header().Get("Content-Type"); !strings.Contains(ct, "application/json") {
		t.Fatalf("expected Content-Type application/json, got %q", ct)
	}
	body := decodeJSON(t, rr)
	if v, ok := body["ok"].(bool); !ok || !v {
		t.Fatalf("expected {ok:true}, got %v", body)
	}
}

func TestReady(t *testing.T) {
	cases := []struct {
		name  string
		ready bool
		code  int
	}{
		{"all queues consuming", true, http.StatusOK},
		{"queue reconnecting", false, http.StatusServiceUnavailable},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			_, mux := newTestServer(t, &fakeHub{ready: tc.ready})

			rr := serve(mux, http.MethodGet, "/v1/ready")
			if rr.Code != tc.code {
				t.Fatalf("expected %d, got %d body=%q", tc.code, rr.Code, rr.Body.String())
			}
			body := decodeJSON(t, rr)
			if body["ready"] != tc.ready {
				t.Fatalf("expected ready=%v, got %v", tc.ready, body)
			}
		})
	}
}

func TestStatus_ReportsQueuesPoolAndReporter(t *testing.T) {
	hub := &fakeHub{
		ready: true,
		snap: supervisor.Snapshot{
			Generation: 3,
			Queues: []supervisor.QueueStats{
				{Queue: "outgoing_requests", State: supervisor.StateConsuming, Received: 5, Acked: 5, Succeeded: 4, Failed: 1},
			},
			Pool: supervisor.PoolStats{Capacity: 10, Running: 2, Free: 8},
		},
	}
	s, mux := newTestServer(t, hub)

	if ok := s.Start(context.Background()); !ok {
		t.Fatalf("expected Start() true")
	}
	defer s.Stop()

	rr := serve(mux, http.MethodGet, "/v1/status")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%q", rr.Code, rr.Body.String())
	}

	body := decodeJSON(t, rr)
	if body["generation"] != float64(3) || body["ready"] != true || body["reporter_running"] != true {
		t.Fatalf("unexpected status: %v", body)
	}

	queues, ok := body["queues"].([]any)
	if !ok || len(queues) != 1 {
		t.Fatalf("expected one queue, got %v", body["queues"])
	}
	q := queues[0].(map[string]any)
	if q["queue"] != "outgoing_requests" || q["state"] != "consuming" || q["failed"] != float64(1) {
		t.Fatalf("unexpected queue stats: %v", q)
	}

	pool := body["pool"].(map[string]any)
	if pool["running"] != float64(2) || pool["capacity"] != float64(10) {
		t.Fatalf("unexpected pool stats: %v", pool)
	}
}

func TestStatus_ReporterStopped(t *testing.T) {
	_, mux := newTestServer(t, &fakeHub{})

	body := decodeJSON(t, serve(mux, http.MethodGet, "/v1/status"))
	if body["reporter_running"] != false {
		t.Fatalf("expected reporter_running=false, got %v", body)
	}
}

func TestRouterRoot(t *testing.T) {
	_, mux := newTestServer(t, &fakeHub{})

	rr := serve(mux, http.MethodGet, "/")

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%q", rr.Code, rr.Body.String())
	}
	if got := strings.TrimSpace(rr.Body.String()); got != "chat-hub" {
		t.Fatalf("expected body %q, got %q", "chat-hub", got)
	}
}
