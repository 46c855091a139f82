package tenant

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestResolveHeaderWins(t *testing.T) {
	r := NewResolver("X-Tenant-ID", "bidproof.app", "")
	req := httptest.NewRequest(http.MethodGet, "http://acme.bidproof.app/api/v1/estimates", nil)
	req.Header.Set("X-Tenant-ID", "northstar")
	if got := r.Resolve(req); got != "northstar" {
		t.Fatalf("expected header tenant, got %q", got)
	}
}

func TestResolveSubdomain(t *testing.T) {
	r := NewResolver("", "bidproof.app", "")
	req := httptest.NewRequest(http.MethodGet, "http://acme.bidproof.app/api/v1/estimates", nil)
	if got := r.Resolve(req); got != "acme" {
		t.Fatalf("expected subdomain tenant, got %q", got)
	}
	req = httptest.NewRequest(http.MethodGet, "http://bidproof.app/health/live", nil)
	if got := r.Resolve(req); got != "" {
		t.Fatalf("expected no tenant on root domain, got %q", got)
	}
	req = httptest.NewRequest(http.MethodGet, "http://evil.example.com/api", nil)
	if got := r.Resolve(req); got != "" {
		t.Fatalf("expected no tenant on foreign domain, got %q", got)
	}
}

func TestMiddlewareInjectsTenant(t *testing.T) {
	r := NewResolver("", "", "solo")
	var seen string
	handler := r.Middleware(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		seen, _ = From(req.Context())
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	if seen != "solo" {
		t.Fatalf("expected default tenant, got %q", seen)
	}
}

func TestPrefixKey(t *testing.T) {
	if got := PrefixKey("acme", "proposal:42"); got != "acme:proposal:42" {
		t.Fatalf("unexpected key %q", got)
	}
	if got := PrefixKey("", "proposal:42"); got != "proposal:42" {
		t.Fatalf("unexpected key %q", got)
	}
}
