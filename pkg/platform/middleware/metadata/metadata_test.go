package metadata

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crmhub/pkg/requestcontext"
)

func TestClientIP(t *testing.T) {
	proxies, err := ParseProxies([]string{"10.0.0.0/8", " 192.0.2.1 ", ""})
	require.NoError(t, err)

	tests := []struct {
		name    string
		proxies Proxies
		remote  string
		headers map[string]string
		want    string
	}{
		{
			name:    "untrusted peer cannot spoof forwarded for",
			proxies: proxies,
			remote:  "198.51.100.9:4000",
			headers: map[string]string{"X-Forwarded-For": "203.0.113.7"},
			want:    "198.51.100.9",
		},
		{
			name:    "untrusted peer cannot spoof real ip",
			proxies: proxies,
			remote:  "198.51.100.9:4000",
			headers: map[string]string{"X-Real-IP": "203.0.113.7"},
			want:    "198.51.100.9",
		},
		{
			name:    "zero value trusts nobody",
			remote:  "10.1.2.3:4000",
			headers: map[string]string{"X-Forwarded-For": "203.0.113.7"},
			want:    "10.1.2.3",
		},
		{
			name:    "trusted proxy forwards client",
			proxies: proxies,
			remote:  "10.1.2.3:4000",
			headers: map[string]string{"X-Forwarded-For": "203.0.113.7"},
			want:    "203.0.113.7",
		},
		{
			name:    "client supplied hops are skipped",
			proxies: proxies,
			remote:  "10.1.2.3:4000",
			headers: map[string]string{"X-Forwarded-For": "1.1.1.1, 203.0.113.7, 10.9.9.9"},
			want:    "203.0.113.7",
		},
		{
			name:    "bare address entry",
			proxies: proxies,
			remote:  "192.0.2.1:4000",
			headers: map[string]string{"X-Real-IP": "203.0.113.8"},
			want:    "203.0.113.8",
		},
		{
			name:    "trusted proxy without headers",
			proxies: proxies,
			remote:  "10.1.2.3:4000",
			want:    "10.1.2.3",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, tt.proxies.ClientIP(req))
		})
	}
}

func TestParseProxiesRejectsGarbage(t *testing.T) {
	_, err := ParseProxies([]string{"10.0.0.0/8", "not-an-ip"})
	assert.Error(t, err)
}

func TestClientMetadataStoresIPAndAgent(t *testing.T) {
	var ip, agent string
	h := ClientMetadata(Proxies{})(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		ip = requestcontext.ClientIP(r.Context())
		agent = requestcontext.UserAgent(r.Context())
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "198.51.100.9:4000"
	req.Header.Set("User-Agent", "curl/8")
	h.ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, "198.51.100.9", ip)
	assert.Equal(t, "curl/8", agent)
}
