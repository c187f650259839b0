// Package netutil resolves webhook source addresses.
package netutil

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
)

type clientIPKey struct{}

// ParseCIDRs parses IPs and CIDR ranges. Bare IPs become single host ranges.
func ParseCIDRs(entries []string) ([]*net.IPNet, error) {
	nets := make([]*net.IPNet, 0, len(entries))
	for _, src := range entries {
		src = strings.TrimSpace(src)
		if src == "" {
			continue
		}
		if !strings.Contains(src, "/") {
			if strings.Contains(src, ":") {
				src += "/128"
			} else {
				src += "/32"
			}
		}
		_, ipNet, err := net.ParseCIDR(src)
		if err != nil {
			return nil, fmt.Errorf("invalid source %q: %w", src, err)
		}
		nets = append(nets, ipNet)
	}
	return nets, nil
}

// Contains reports whether any of nets contains ip.
func Contains(nets []*net.IPNet, ip net.IP) bool {
	if ip == nil {
		return false
	}
	for _, n := range nets {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}

// PeerIP is the address of the directly connected peer.
func PeerIP(r *http.Request) net.IP {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return net.ParseIP(host)
}

// ClientIP returns the originating address of r. Forwarding headers are only
// read when the peer is one of the trusted proxies; X-Forwarded-For is walked
// right to left and the first untrusted hop wins.
func ClientIP(r *http.Request, trusted []*net.IPNet) net.IP {
	peer := PeerIP(r)
	if !Contains(trusted, peer) {
		return peer
	}

	hops := strings.Split(strings.Join(r.Header.Values("X-Forwarded-For"), ","), ",")
	for i := len(hops) - 1; i >= 0; i-- {
		ip := net.ParseIP(strings.TrimSpace(hops[i]))
		if ip == nil {
			break
		}
		if !Contains(trusted, ip) {
			return ip
		}
	}
	if ip := net.ParseIP(strings.TrimSpace(r.Header.Get("X-Real-IP"))); ip != nil {
		return ip
	}
	return peer
}

// WithClientIP stores the resolved client address in ctx.
func WithClientIP(ctx context.Context, ip net.IP) context.Context {
	return context.WithValue(ctx, clientIPKey{}, ip)
}

// ClientIPFrom returns the address stored by WithClientIP, or nil.
func ClientIPFrom(ctx context.Context) net.IP {
	ip, _ := ctx.Value(clientIPKey{}).(net.IP)
	return ip
}
