package health_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/noah-isme/backend-proposals/internal/health"
)

type probeStub struct {
	dbErr    error
	redisErr error
}

func (p probeStub) PingDB(_ context.Context, _ time.Duration) error    { return p.dbErr }
func (p probeStub) PingRedis(_ context.Context, _ time.Duration) error { return p.redisErr }

type readyBody struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

func decodeReady(t *testing.T, rr *httptest.ResponseRecorder) readyBody {
	t.Helper()
	var body readyBody
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode readiness body: %v", err)
	}
	return body
}

func TestLiveAlwaysOK(t *testing.T) {
	rr := httptest.NewRecorder()
	health.Handler{}.Live(rr, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rr.Code)
	}
	if rr.Body.String() != "ok" {
		t.Fatalf("unexpected body %q", rr.Body.String())
	}
}

func TestReadyAllProbesPass(t *testing.T) {
	handler := health.Handler{Checker: probeStub{}, DBTimeout: 50 * time.Millisecond, RedisTimeout: 50 * time.Millisecond}
	rr := httptest.NewRecorder()
	handler.Ready(rr, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rr.Code)
	}
	body := decodeReady(t, rr)
	if body.Status != "ok" || body.Checks["postgres"] != "ok" || body.Checks["redis"] != "ok" {
		t.Fatalf("unexpected readiness %#v", body)
	}
}

func TestReadyFailingProbeDegrades(t *testing.T) {
	handler := health.Handler{Checker: probeStub{redisErr: errors.New("redis down")}}
	rr := httptest.NewRecorder()
	handler.Ready(rr, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 got %d", rr.Code)
	}
	body := decodeReady(t, rr)
	if body.Status != "degraded" {
		t.Fatalf("expected degraded status, got %q", body.Status)
	}
	if body.Checks["postgres"] != "ok" {
		t.Fatalf("healthy probe should still report ok, got %q", body.Checks["postgres"])
	}
	if body.Checks["redis"] != "redis down" {
		t.Fatalf("failing probe should carry its error, got %q", body.Checks["redis"])
	}
}

func TestReadyWithoutChecker(t *testing.T) {
	rr := httptest.NewRecorder()
	health.Handler{}.Ready(rr, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 got %d", rr.Code)
	}
}
