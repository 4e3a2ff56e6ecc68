package middleware

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"strconv"
	"strings"
	"time"

	"github.com/diagnosis/hotel-site/internal/http/response"
	"github.com/diagnosis/hotel-site/pkg/logger"
)

// Store counts hits per key within a window.
type Store interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// RateLimitConfig defines rate limiting parameters
type RateLimitConfig struct {
	Requests int                            // Max requests per window
	Window   time.Duration                  // Time window duration
	KeyFunc  func(r *http.Request) []string // Function to generate rate limit keys
	SkipFunc func(r *http.Request) bool     // Function to skip rate limiting
}

type RateLimiter struct {
	store  Store
	config RateLimitConfig
}

func NewRateLimiter(store Store, config RateLimitConfig) *RateLimiter {
	if config.KeyFunc == nil {
		config.KeyFunc = ClientIPKeyFunc
	}
	return &RateLimiter{store: store, config: config}
}

// Middleware returns the rate limiting middleware
func (rl *RateLimiter) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if rl.config.SkipFunc != nil && rl.config.SkipFunc(r) {
				next.ServeHTTP(w, r)
				return
			}

			for _, key := range rl.config.KeyFunc(r) {
				if !rl.allow(r.Context(), key) {
					logger.WarnContext(r.Context(), "Rate limit exceeded", "path", r.URL.Path)
					w.Header().Set("Retry-After", strconv.Itoa(int(rl.config.Window.Seconds())))
					response.RateLimit(w, response.MsgRateLimited)
					return
				}
			}

			next.ServeHTTP(w, r)
		})
	}
}

// allow fails open: a store error lets the request through.
func (rl *RateLimiter) allow(ctx context.Context, key string) bool {
	ok, err := rl.store.Allow(ctx, key, rl.config.Requests, rl.config.Window)
	if err != nil {
		logger.ErrorContext(ctx, "Rate limit store failed", "error", err)
		return true
	}
	return ok
}

// ClientIPKeyFunc limits by the connecting peer's IP. Forwarding headers
// are ignored; use a ProxyResolver behind a load balancer.
func ClientIPKeyFunc(r *http.Request) []string {
	if ip := RemoteIP(r); ip != "" {
		return []string{"ip:" + ip}
	}
	return nil
}

// RemoteIP is the host part of r.RemoteAddr.
func RemoteIP(r *http.Request) string {
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

// ProxyResolver finds the client IP, trusting X-Forwarded-For and
// X-Real-IP only when the request arrives from a listed proxy.
type ProxyResolver struct {
	trusted []netip.Prefix
}

// NewProxyResolver accepts bare IPs or CIDRs.
func NewProxyResolver(proxies []string) (*ProxyResolver, error) {
	pr := &ProxyResolver{}
	for _, p := range proxies {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if strings.Contains(p, "/") {
			prefix, err := netip.ParsePrefix(p)
			if err != nil {
				return nil, fmt.Errorf("trusted proxy %q: %w", p, err)
			}
			pr.trusted = append(pr.trusted, prefix.Masked())
			continue
		}
		addr, err := netip.ParseAddr(p)
		if err != nil {
			return nil, fmt.Errorf("trusted proxy %q: %w", p, err)
		}
		addr = addr.Unmap()
		pr.trusted = append(pr.trusted, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return pr, nil
}

func (pr *ProxyResolver) isTrusted(ip string) bool {
	addr, err := netip.ParseAddr(strings.TrimSpace(ip))
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	for _, p := range pr.trusted {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// ClientIP walks X-Forwarded-For from the right, skipping trusted hops, and
// returns the first address a trusted proxy vouched for.
func (pr *ProxyResolver) ClientIP(r *http.Request) string {
	remote := RemoteIP(r)
	if !pr.isTrusted(remote) {
		return remote
	}

	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		hops := strings.Split(xff, ",")
		for i := len(hops) - 1; i >= 0; i-- {
			hop := strings.TrimSpace(hops[i])
			if hop == "" {
				continue
			}
			if !pr.isTrusted(hop) {
				return hop
			}
		}
	}

	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
		return xri
	}
	return remote
}

func (pr *ProxyResolver) KeyFunc(r *http.Request) []string {
	if ip := pr.ClientIP(r); ip != "" {
		return []string{"ip:" + ip}
	}
	return nil
}
