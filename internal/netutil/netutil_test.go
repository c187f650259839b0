package netutil

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCIDRs(t *testing.T) {
	nets, err := ParseCIDRs([]string{"10.0.0.0/8", " 192.168.1.5 ", "", "2001:db8::1"})
	require.NoError(t, err)
	require.Len(t, nets, 3)
	assert.Equal(t, "192.168.1.5/32", nets[1].String())
	assert.Equal(t, "2001:db8::1/128", nets[2].String())

	assert.True(t, Contains(nets, net.ParseIP("10.200.0.1")))
	assert.False(t, Contains(nets, net.ParseIP("192.168.1.6")))
	assert.False(t, Contains(nets, nil))

	_, err = ParseCIDRs([]string{"not-an-ip"})
	assert.Error(t, err)
}

func TestClientIP(t *testing.T) {
	trusted, err := ParseCIDRs([]string{"172.16.0.0/12"})
	require.NoError(t, err)

	tests := []struct {
		name    string
		remote  string
		headers map[string]string
		want    string
	}{
		{
			name:    "untrusted peer cannot spoof forwarded for",
			remote:  "203.0.113.9:4000",
			headers: map[string]string{"X-Forwarded-For": "10.9.9.9"},
			want:    "203.0.113.9",
		},
		{
			name:    "untrusted peer cannot spoof real ip",
			remote:  "203.0.113.9:4000",
			headers: map[string]string{"X-Real-IP": "10.9.9.9"},
			want:    "203.0.113.9",
		},
		{
			name:    "trusted proxy forwards client",
			remote:  "172.16.0.2:4000",
			headers: map[string]string{"X-Forwarded-For": "198.51.100.7"},
			want:    "198.51.100.7",
		},
		{
			name:    "rightmost untrusted hop wins",
			remote:  "172.16.0.2:4000",
			headers: map[string]string{"X-Forwarded-For": "10.9.9.9, 198.51.100.7, 172.16.0.3"},
			want:    "198.51.100.7",
		},
		{
			name:    "trusted proxy with real ip only",
			remote:  "172.16.0.2:4000",
			headers: map[string]string{"X-Real-IP": "198.51.100.8"},
			want:    "198.51.100.8",
		},
		{
			name:   "trusted proxy without headers",
			remote: "172.16.0.2:4000",
			want:   "172.16.0.2",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", nil)
			req.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, ClientIP(req, trusted).String())
		})
	}
}

func TestClientIPContext(t *testing.T) {
	assert.Nil(t, ClientIPFrom(context.Background()))
	ctx := WithClientIP(context.Background(), net.ParseIP("10.0.0.1"))
	assert.Equal(t, "10.0.0.1", ClientIPFrom(ctx).String())
}
