package middleware

import (
	"net/http/httptest"
	"testing"
)

func TestRateLimitConfig_DistinctKeyspaces(t *testing.T) {
	global := DefaultRateLimitConfig()
	cred := CredentialRateLimitConfig()

	clientID := "ip:203.0.113.7"
	globalKey := global.key(clientID)
	credKey := cred.key(clientID)

	// The two limiters carry different budgets, so they must count in
	// separate windows: page views must never consume credential attempts.
	if globalKey == credKey {
		t.Fatalf("limiters share a counter key: %s", globalKey)
	}

	if want := "ratelimit:global:ip:203.0.113.7"; globalKey != want {
		t.Errorf("global key = %s, want %s", globalKey, want)
	}
	if want := "ratelimit:cred:ip:203.0.113.7"; credKey != want {
		t.Errorf("credential key = %s, want %s", credKey, want)
	}
}

func TestRateLimitConfig_KeyPerClient(t *testing.T) {
	cfg := DefaultRateLimitConfig()
	if cfg.key("ip:10.0.0.1") == cfg.key("ip:10.0.0.2") {
		t.Error("different clients must not share a counter key")
	}
}

func TestGetRealIP(t *testing.T) {
	tests := []struct {
		name   string
		header map[string]string
		remote string
		want   string
	}{
		{
			name:   "X-Forwarded-For wins",
			header: map[string]string{"X-Forwarded-For": "198.51.100.4", "X-Real-IP": "192.0.2.1"},
			remote: "10.0.0.1:1234",
			want:   "198.51.100.4",
		},
		{
			name:   "X-Real-IP fallback",
			header: map[string]string{"X-Real-IP": "192.0.2.1"},
			remote: "10.0.0.1:1234",
			want:   "192.0.2.1",
		},
		{
			name:   "RemoteAddr fallback",
			remote: "10.0.0.1:1234",
			want:   "10.0.0.1:1234",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/", nil)
			r.RemoteAddr = tt.remote
			for k, v := range tt.header {
				r.Header.Set(k, v)
			}
			if got := getRealIP(r); got != tt.want {
				t.Errorf("getRealIP() = %s, want %s", got, tt.want)
			}
		})
	}
}
