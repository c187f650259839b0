package server

import (
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/time/rate"

	"github.com/henriksa/boss-launcher-webhook/internal/config"
	"github.com/henriksa/boss-launcher-webhook/internal/netutil"
)

// sourceGuard rejects hooks from addresses outside the allowlist and
// limits each source address to a number of requests per minute. The source
// is the TCP peer unless that peer is a trusted proxy.
type sourceGuard struct {
	allowed []*net.IPNet
	trusted []*net.IPNet

	// mu makes the limiter lookup and insert one step.
	mu       sync.Mutex
	limiters *expirable.LRU[string, *rate.Limiter]
	rate     rate.Limit
	burst    int

	logger *slog.Logger
}

func newSourceGuard(cfg *config.WebhookConfig, logger *slog.Logger) (*sourceGuard, error) {
	allowed, err := netutil.ParseCIDRs(cfg.AllowedSources)
	if err != nil {
		return nil, err
	}
	trusted, err := netutil.ParseCIDRs(cfg.TrustedProxies)
	if err != nil {
		return nil, err
	}
	g := &sourceGuard{allowed: allowed, trusted: trusted, logger: logger}

	if cfg.RateLimitPerMin > 0 {
		g.limiters = expirable.NewLRU[string, *rate.Limiter](1000, nil, 5*time.Minute)
		g.rate = rate.Limit(float64(cfg.RateLimitPerMin) / 60.0)
		g.burst = max(cfg.RateLimitPerMin/10, 1)
	}
	return g, nil
}

func (g *sourceGuard) permitted(ip net.IP) bool {
	return len(g.allowed) == 0 || netutil.Contains(g.allowed, ip)
}

func (g *sourceGuard) limiter(key string) *rate.Limiter {
	g.mu.Lock()
	defer g.mu.Unlock()

	limiter, ok := g.limiters.Get(key)
	if !ok {
		limiter = rate.NewLimiter(g.rate, g.burst)
		g.limiters.Add(key, limiter)
	}
	return limiter
}

func (g *sourceGuard) allow(key string) bool {
	if g.limiters == nil {
		return true
	}
	return g.limiter(key).Allow()
}

// Middleware resolves the client address, stores it in the request context
// and enforces the allowlist and the rate limit on it.
func (g *sourceGuard) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := netutil.ClientIP(r, g.trusted)
		addr := ip.String()
		if !g.permitted(ip) {
			g.logger.Warn("webhook from unknown source rejected", "remote", addr, "peer", r.RemoteAddr)
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}
		if !g.allow(addr) {
			g.logger.Warn("webhook rate limit exceeded", "remote", addr)
			http.Error(w, "Too many requests", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r.WithContext(netutil.WithClientIP(r.Context(), ip)))
	})
}
