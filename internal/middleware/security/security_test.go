package security

import (
	"crypto/tls"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestExtractClientIP(t *testing.T) {
	d := NewDetector()

	tests := []struct {
		name       string
		remoteAddr string
		xff        string
		xri        string
		want       string
	}{
		{name: "direct", remoteAddr: "203.0.113.7:5000", want: "203.0.113.7"},
		{name: "untrusted peer ignores forwarded", remoteAddr: "203.0.113.7:5000", xff: "198.51.100.1", want: "203.0.113.7"},
		{name: "trusted proxy forwarded", remoteAddr: "10.0.0.2:5000", xff: "198.51.100.1, 10.0.0.3", want: "198.51.100.1"},
		{name: "trusted proxy real ip", remoteAddr: "127.0.0.1:5000", xri: "198.51.100.9", want: "198.51.100.9"},
		{name: "trusted proxy bad forwarded", remoteAddr: "192.168.1.1:5000", xff: "garbage", want: "192.168.1.1"},
		{name: "unparseable remote", remoteAddr: "pipe", want: "pipe"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.RemoteAddr = tt.remoteAddr
			if tt.xff != "" {
				r.Header.Set("X-Forwarded-For", tt.xff)
			}
			if tt.xri != "" {
				r.Header.Set("X-Real-IP", tt.xri)
			}
			if got := d.ExtractClientIP(r); got != tt.want {
				t.Errorf("ExtractClientIP() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDetectSuspiciousRequest(t *testing.T) {
	d := NewDetector()

	tests := []struct {
		name   string
		method string
		target string
		agent  string
		want   bool
	}{
		{name: "chat post", method: http.MethodPost, target: "/chat", want: false},
		{name: "summary api from curl", method: http.MethodGet, target: "/api/summary?group_by=month", agent: "curl/8.0", want: false},
		{name: "path traversal", method: http.MethodGet, target: "/static/../.env", want: true},
		{name: "traversal in query", method: http.MethodGet, target: "/dashboard?file=../../etc/passwd", want: true},
		{name: "scanner agent", method: http.MethodGet, target: "/", agent: "sqlmap/1.7", want: true},
		{name: "trace method", method: "TRACE", target: "/", want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(tt.method, tt.target, nil)
			if tt.agent != "" {
				r.Header.Set("User-Agent", tt.agent)
			}
			if got := d.DetectSuspiciousRequest(r); got != tt.want {
				t.Errorf("DetectSuspiciousRequest() = %v, want %v", got, tt.want)
			}
		})
	}

	if got := d.GetMetrics().SuspiciousRequests; got != 4 {
		t.Errorf("SuspiciousRequests = %d, want 4", got)
	}
}

func TestDetectorMiddlewareBlocks(t *testing.T) {
	d := NewDetector()
	called := false
	h := d.Middleware(true)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/.git/config", nil))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
	if called {
		t.Error("handler should not run for a blocked request")
	}
	if d.GetMetrics().BlockedRequests != 1 {
		t.Errorf("BlockedRequests = %d, want 1", d.GetMetrics().BlockedRequests)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if !called {
		t.Error("handler should run for a clean request")
	}
}

func TestHeadersMiddleware(t *testing.T) {
	h := NewHeadersMiddleware(DefaultHeadersConfig()).Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if got := rec.Header().Get("X-Frame-Options"); got != "DENY" {
		t.Errorf("X-Frame-Options = %q, want DENY", got)
	}
	if rec.Header().Get("Content-Security-Policy") == "" {
		t.Error("missing Content-Security-Policy")
	}
	if rec.Header().Get("Strict-Transport-Security") != "" {
		t.Error("HSTS must not be sent over plain HTTP")
	}

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.TLS = &tls.ConnectionState{}
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, r)
	if got := rec.Header().Get("Strict-Transport-Security"); got != "max-age=31536000; includeSubDomains" {
		t.Errorf("Strict-Transport-Security = %q", got)
	}
}

func TestAddTrustedProxy(t *testing.T) {
	d := NewDetector()
	if err := d.AddTrustedProxy("not-a-cidr"); err == nil {
		t.Error("AddTrustedProxy() error = nil for invalid CIDR")
	}
	if err := d.AddTrustedProxy("203.0.113.0/24"); err != nil {
		t.Fatalf("AddTrustedProxy() error = %v", err)
	}

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "203.0.113.5:443"
	r.Header.Set("X-Forwarded-For", "198.51.100.1")
	if got := d.ExtractClientIP(r); got != "198.51.100.1" {
		t.Errorf("ExtractClientIP() = %q, want forwarded address", got)
	}
}
