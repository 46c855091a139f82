package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// Checker probes the dependencies readiness gates on.
type Checker interface {
	PingDB(ctx context.Context, timeout time.Duration) error
	PingRedis(ctx context.Context, timeout time.Duration) error
}

const (
	defaultDBTimeout    = 500 * time.Millisecond
	defaultRedisTimeout = 300 * time.Millisecond
)

// Handler serves the liveness and readiness endpoints.
type Handler struct {
	Checker      Checker
	DBTimeout    time.Duration
	RedisTimeout time.Duration
}

// Live answers as long as the process can serve HTTP at all. It must not
// touch dependencies; orchestrators restart on liveness failure.
func (h Handler) Live(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

type readiness struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// Ready probes Postgres and Redis and reports per-dependency results.
// Any failing probe turns the response 503 so load balancers stop
// routing here until the dependency recovers.
func (h Handler) Ready(w http.ResponseWriter, r *http.Request) {
	if h.Checker == nil {
		http.Error(w, "dependencies unavailable", http.StatusServiceUnavailable)
		return
	}

	ctx := r.Context()
	body := readiness{Status: "ok", Checks: map[string]string{}}
	probe := func(name string, err error) {
		if err != nil {
			body.Checks[name] = err.Error()
			body.Status = "degraded"
			return
		}
		body.Checks[name] = "ok"
	}
	probe("postgres", h.Checker.PingDB(ctx, orDefault(h.DBTimeout, defaultDBTimeout)))
	probe("redis", h.Checker.PingRedis(ctx, orDefault(h.RedisTimeout, defaultRedisTimeout)))

	w.Header().Set("Content-Type", "application/json")
	if body.Status != "ok" {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	_ = json.NewEncoder(w).Encode(body)
}

func orDefault(d, fallback time.Duration) time.Duration {
	if d <= 0 {
		return fallback
	}
	return d
}
