package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"golang.org/x/time/rate"
)

func doRequest(l *Limiter, remoteAddr string, headers map[string]string) int {
	handler := l.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = remoteAddr
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec.Code
}

func TestLimiterEnforcesBurst(t *testing.T) {
	l := New(rate.Limit(1), 2, time.Minute, nil)

	if code := doRequest(l, "10.0.0.1:1234", nil); code != http.StatusOK {
		t.Fatalf("first request: %d", code)
	}
	if code := doRequest(l, "10.0.0.1:1234", nil); code != http.StatusOK {
		t.Fatalf("second request: %d", code)
	}
	if code := doRequest(l, "10.0.0.1:1234", nil); code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 over burst, got %d", code)
	}

	// Separate clients get separate buckets.
	if code := doRequest(l, "10.0.0.2:1234", nil); code != http.StatusOK {
		t.Fatalf("other client: %d", code)
	}
}

func TestLimiterIgnoresForwardedForFromUntrustedPeer(t *testing.T) {
	l := New(rate.Limit(1), 1, time.Minute, []string{"192.168.0.0/16"})

	headers := map[string]string{"X-Forwarded-For": "1.2.3.4"}
	if code := doRequest(l, "10.0.0.1:1234", headers); code != http.StatusOK {
		t.Fatalf("first request: %d", code)
	}
	// Same untrusted peer with a different spoofed client must share the
	// peer's bucket.
	headers["X-Forwarded-For"] = "5.6.7.8"
	if code := doRequest(l, "10.0.0.1:1234", headers); code != http.StatusTooManyRequests {
		t.Fatalf("expected spoofed client to share bucket, got %d", code)
	}
}

func TestLimiterHonorsForwardedForFromTrustedProxy(t *testing.T) {
	l := New(rate.Limit(1), 1, time.Minute, []string{"192.168.0.1"})

	if code := doRequest(l, "192.168.0.1:1234", map[string]string{"X-Forwarded-For": "1.2.3.4"}); code != http.StatusOK {
		t.Fatalf("first client: %d", code)
	}
	if code := doRequest(l, "192.168.0.1:1234", map[string]string{"X-Forwarded-For": "5.6.7.8"}); code != http.StatusOK {
		t.Fatalf("second client should have its own bucket: %d", code)
	}
	if code := doRequest(l, "192.168.0.1:1234", map[string]string{"X-Forwarded-For": "1.2.3.4"}); code != http.StatusTooManyRequests {
		t.Fatalf("expected first client to be limited, got %d", code)
	}
}
