package metadata

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"idhub/pkg/requestcontext"
)

func TestClientIPFromRequest(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		remote  string
		want    string
	}{
		{"forwarded chain", map[string]string{"X-Forwarded-For": "1.1.1.1, 10.0.0.1"}, "127.0.0.1:80", "1.1.1.1"},
		{"real ip", map[string]string{"X-Real-IP": "2.2.2.2"}, "127.0.0.1:80", "2.2.2.2"},
		{"remote ipv4", nil, "3.3.3.3:5555", "3.3.3.3"},
		{"remote ipv6", nil, "[::1]:5555", "::1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			if got := ClientIPFromRequest(req); got != tt.want {
				t.Fatalf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestClientMetadata(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "4.4.4.4:1"
	req.Header.Set("User-Agent", "curl/8.0")

	var ip, ua string
	ClientMetadata(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		ip = requestcontext.ClientIP(r.Context())
		ua = requestcontext.UserAgent(r.Context())
	})).ServeHTTP(httptest.NewRecorder(), req)

	if ip != "4.4.4.4" || ua != "curl/8.0" {
		t.Fatalf("unexpected metadata ip=%q ua=%q", ip, ua)
	}
}
