package middleware

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"iterate-orchestrator/pkg/response"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// LimiterEntry pairs a token-bucket limiter with the last time it was used,
// so idle entries can be reaped.
type LimiterEntry struct {
	limiter      *rate.Limiter
	lastAccessed time.Time
}

// IPRateLimiter is a coarse, IP-keyed token bucket guarding unauthenticated
// endpoints (register/login) ahead of any per-principal accounting.
type IPRateLimiter struct {
	ips            map[string]*LimiterEntry
	mu             *sync.RWMutex
	r              rate.Limit
	b              int
	trustedProxies map[string]bool
	ttl            time.Duration
	stopChan       chan struct{}
}

func NewIPRateLimiterWithProxies(r rate.Limit, b int, trustedProxies []string) *IPRateLimiter {
	proxiesMap := make(map[string]bool)
	for _, proxy := range trustedProxies {
		ip, _, err := net.SplitHostPort(proxy)
		if err != nil {
			ip = proxy
		}
		if parsed := net.ParseIP(strings.TrimSpace(ip)); parsed != nil {
			proxiesMap[parsed.String()] = true
		}
	}

	limiter := &IPRateLimiter{
		ips:            make(map[string]*LimiterEntry),
		mu:             &sync.RWMutex{},
		r:              r,
		b:              b,
		trustedProxies: proxiesMap,
		ttl:            1 * time.Hour,
		stopChan:       make(chan struct{}),
	}
	limiter.startCleanupGoroutine()
	return limiter
}

func (i *IPRateLimiter) AddIP(ip string) *rate.Limiter {
	i.mu.Lock()
	defer i.mu.Unlock()

	limiter := rate.NewLimiter(i.r, i.b)
	i.ips[ip] = &LimiterEntry{
		limiter:      limiter,
		lastAccessed: time.Now(),
	}
	return limiter
}

func (i *IPRateLimiter) GetLimiter(ip string) *rate.Limiter {
	i.mu.Lock()
	entry, exists := i.ips[ip]
	if !exists {
		i.mu.Unlock()
		return i.AddIP(ip)
	}
	entry.lastAccessed = time.Now()
	i.mu.Unlock()
	return entry.limiter
}

func (i *IPRateLimiter) CleanupExpired() {
	i.mu.Lock()
	defer i.mu.Unlock()

	now := time.Now()
	removed := 0
	for ip, entry := range i.ips {
		if now.Sub(entry.lastAccessed) > i.ttl {
			delete(i.ips, ip)
			removed++
		}
	}
	if removed > 0 {
		log.Debug().Int("removed_entries", removed).Int("remaining_entries", len(i.ips)).Msg("ip rate limiter cleanup")
	}
}

func isValidIP(ipStr string) bool {
	if ipStr == "" {
		return false
	}
	return net.ParseIP(ipStr) != nil
}

func isTrustedProxy(ip string, trustedProxies map[string]bool) bool {
	if len(trustedProxies) == 0 {
		return false
	}
	return trustedProxies[ip]
}

// getIPAddressSecure extracts a client IP per RFC 7239 conventions: the
// direct peer is trusted only if it is itself a known proxy, in which case
// X-Forwarded-For is walked right-to-left past any further trusted hops.
func getIPAddressSecure(r *http.Request, trustedProxies map[string]bool) string {
	directIP, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		directIP = r.RemoteAddr
	}

	if !isTrustedProxy(directIP, trustedProxies) {
		return directIP
	}

	xForwardedFor := r.Header.Get("X-Forwarded-For")
	if xForwardedFor != "" {
		ips := strings.Split(xForwardedFor, ",")
		for i := len(ips) - 1; i >= 0; i-- {
			candidate := strings.TrimSpace(ips[i])
			if !isValidIP(candidate) {
				log.Warn().Str("direct_ip", directIP).Str("invalid_candidate", candidate).Msg("rate limiter: invalid ip in x-forwarded-for")
				continue
			}
			if isTrustedProxy(candidate, trustedProxies) {
				continue
			}
			return candidate
		}
		return directIP
	}

	xRealIP := r.Header.Get("X-Real-IP")
	if xRealIP != "" && isValidIP(xRealIP) {
		return xRealIP
	}

	return directIP
}

func RateLimitMiddleware(limiter *IPRateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := getIPAddressSecure(r, limiter.trustedProxies)
			l := limiter.GetLimiter(ip)
			if !l.Allow() {
				response.TooManyRequests(w, "rate limit exceeded, try again later")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// LoginRateLimiterWithProxies bounds register/login attempts to 10/min per IP.
func LoginRateLimiterWithProxies(trustedProxies []string) *IPRateLimiter {
	return NewIPRateLimiterWithProxies(rate.Every(6*time.Second), 10, trustedProxies)
}

func (i *IPRateLimiter) startCleanupGoroutine() {
	const cleanupInterval = 5 * time.Minute
	ticker := time.NewTicker(cleanupInterval)

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				i.CleanupExpired()
			case <-i.stopChan:
				return
			}
		}
	}()
}

func (i *IPRateLimiter) Stop() {
	select {
	case i.stopChan <- struct{}{}:
	default:
	}
}

// PrincipalRateLimiter is a coarse, principal-keyed token bucket fronting
// expensive authenticated endpoints (prompt iteration)
// ahead of the fixed-window credit/quota accounting in the window limiter.
type PrincipalRateLimiter struct {
	principals map[string]*LimiterEntry
	mu         *sync.RWMutex
	r          rate.Limit
	b          int
	ttl        time.Duration
	stopChan   chan struct{}
}

func NewPrincipalRateLimiter(r rate.Limit, b int) *PrincipalRateLimiter {
	limiter := &PrincipalRateLimiter{
		principals: make(map[string]*LimiterEntry),
		mu:         &sync.RWMutex{},
		r:          r,
		b:          b,
		ttl:        1 * time.Hour,
		stopChan:   make(chan struct{}),
	}
	limiter.startCleanupGoroutine()
	return limiter
}

func (u *PrincipalRateLimiter) GetLimiter(principalID string) *rate.Limiter {
	u.mu.Lock()
	entry, exists := u.principals[principalID]
	if !exists {
		u.mu.Unlock()
		return u.add(principalID)
	}
	entry.lastAccessed = time.Now()
	u.mu.Unlock()
	return entry.limiter
}

func (u *PrincipalRateLimiter) add(principalID string) *rate.Limiter {
	u.mu.Lock()
	defer u.mu.Unlock()

	limiter := rate.NewLimiter(u.r, u.b)
	u.principals[principalID] = &LimiterEntry{limiter: limiter, lastAccessed: time.Now()}
	return limiter
}

func (u *PrincipalRateLimiter) CleanupExpired() {
	u.mu.Lock()
	defer u.mu.Unlock()

	now := time.Now()
	for principalID, entry := range u.principals {
		if now.Sub(entry.lastAccessed) > u.ttl {
			delete(u.principals, principalID)
		}
	}
}

func (u *PrincipalRateLimiter) startCleanupGoroutine() {
	const cleanupInterval = 5 * time.Minute
	ticker := time.NewTicker(cleanupInterval)

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				u.CleanupExpired()
			case <-u.stopChan:
				return
			}
		}
	}()
}

func (u *PrincipalRateLimiter) Stop() {
	close(u.stopChan)
}

// IterateRateLimiter bounds prompt-iteration submissions to 20/min per
// principal, independent of the fixed-window limiter's credit-tier quotas.
func IterateRateLimiter() *PrincipalRateLimiter {
	return NewPrincipalRateLimiter(rate.Every(3*time.Second), 20)
}

// PrincipalRateLimitMiddleware requires an authenticated principal in the
// request context, placed after AuthMiddleware in the chain.
func PrincipalRateLimitMiddleware(limiter *PrincipalRateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, ok := GetPrincipalFromContext(r.Context())
			if !ok {
				response.Unauthorized(w, "authentication required")
				return
			}

			l := limiter.GetLimiter(principal.ID.String())
			if !l.Allow() {
				response.TooManyRequests(w, "rate limit exceeded, try again later")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
