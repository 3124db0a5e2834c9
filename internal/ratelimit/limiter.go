// Package ratelimit throttles bid submissions and login attempts.
package ratelimit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// Config holds rate limit configuration.
type Config struct {
	BidCooldown       time.Duration // Minimum time between bids from one team
	TeamBidsPerMinute int           // Max bids per team per minute
	IPBidsPerMinute   int           // Max bids per client IP per minute

	LoginMaxPerHour   int // Max login attempts per email per hour
	LoginMaxIPPerHour int // Max login attempts per IP per hour

	// Clock for testing (nil uses real time)
	Clock clockwork.Clock
}

// DefaultConfig returns production-ready defaults.
func DefaultConfig() *Config {
	return &Config{
		BidCooldown:       time.Second,
		TeamBidsPerMinute: 30,
		IPBidsPerMinute:   120,
		LoginMaxPerHour:   20,
		LoginMaxIPPerHour: 60,
	}
}

// LimitResult contains the result of a rate limit check.
type LimitResult struct {
	Allowed    bool
	RetryAfter time.Duration
	Reason     string // For logging
}

type entry struct {
	count   int
	firstAt time.Time // Start of the current window
	lastAt  time.Time // Most recent request (for cooldown)
}

func (e *entry) hit(now time.Time, window time.Duration) {
	if now.Sub(e.firstAt) >= window {
		e.count = 0
		e.firstAt = now
	}
	e.count++
	e.lastAt = now
}

type Limiter struct {
	config *Config
	clock  clockwork.Clock
	mu     sync.Mutex
	// Keyed by hash of team, email or IP
	bidByTeam map[string]*entry
	bidByIP   map[string]*entry
	loginByID map[string]*entry
	loginByIP map[string]*entry

	cleanupCtx    context.Context
	cleanupCancel context.CancelFunc
	cleanupOnce   sync.Once
	cleanupWg     sync.WaitGroup
}

func New(cfg *Config) *Limiter {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Limiter{
		config:        cfg,
		clock:         clock,
		bidByTeam:     make(map[string]*entry),
		bidByIP:       make(map[string]*entry),
		loginByID:     make(map[string]*entry),
		loginByIP:     make(map[string]*entry),
		cleanupCtx:    ctx,
		cleanupCancel: cancel,
	}
}

// Close stops the cleanup goroutine and releases resources.
func (l *Limiter) Close() {
	l.cleanupCancel()
	l.cleanupWg.Wait()
}

// AllowBid checks the team and IP limits and, when allowed, records the bid.
// Rejected submissions count against the limits too.
func (l *Limiter) AllowBid(teamID, ip string) LimitResult {
	l.startCleanup()
	now := l.clock.Now()
	teamKey := l.hashKey("bid:team:", normalizeIdentifier(teamID))
	ipKey := l.hashKey("bid:ip:", ip)

	l.mu.Lock()
	defer l.mu.Unlock()

	if e := l.bidByTeam[teamKey]; e != nil {
		if elapsed := now.Sub(e.lastAt); elapsed < l.config.BidCooldown {
			return LimitResult{RetryAfter: l.config.BidCooldown - elapsed, Reason: "cooldown"}
		}
		if res, blocked := windowExceeded(e, now, time.Minute, l.config.TeamBidsPerMinute, "team_minute_limit"); blocked {
			return res
		}
	}
	if e := l.bidByIP[ipKey]; e != nil {
		if res, blocked := windowExceeded(e, now, time.Minute, l.config.IPBidsPerMinute, "ip_minute_limit"); blocked {
			return res
		}
	}

	record(l.bidByTeam, teamKey, now, time.Minute)
	record(l.bidByIP, ipKey, now, time.Minute)
	return LimitResult{Allowed: true}
}

// CheckLogin checks if a login attempt is allowed. It does not record the attempt.
func (l *Limiter) CheckLogin(email, ip string) LimitResult {
	l.startCleanup()
	now := l.clock.Now()
	idKey := l.hashKey("login:id:", normalizeIdentifier(email))
	ipKey := l.hashKey("login:ip:", ip)

	l.mu.Lock()
	defer l.mu.Unlock()

	if e := l.loginByID[idKey]; e != nil {
		if res, blocked := windowExceeded(e, now, time.Hour, l.config.LoginMaxPerHour, "hourly_limit"); blocked {
			return res
		}
	}
	if e := l.loginByIP[ipKey]; e != nil {
		if res, blocked := windowExceeded(e, now, time.Hour, l.config.LoginMaxIPPerHour, "ip_hourly_limit"); blocked {
			return res
		}
	}
	return LimitResult{Allowed: true}
}

// RecordLoginFailure counts a failed login against the email and IP.
func (l *Limiter) RecordLoginFailure(email, ip string) {
	now := l.clock.Now()
	idKey := l.hashKey("login:id:", normalizeIdentifier(email))
	ipKey := l.hashKey("login:ip:", ip)

	l.mu.Lock()
	defer l.mu.Unlock()
	record(l.loginByID, idKey, now, time.Hour)
	record(l.loginByIP, ipKey, now, time.Hour)
}

// ResetLogin clears the per-email counter after a successful login.
func (l *Limiter) ResetLogin(email string) {
	idKey := l.hashKey("login:id:", normalizeIdentifier(email))
	l.mu.Lock()
	delete(l.loginByID, idKey)
	l.mu.Unlock()
}

func windowExceeded(e *entry, now time.Time, window time.Duration, max int, reason string) (LimitResult, bool) {
	if max <= 0 {
		return LimitResult{}, false
	}
	age := now.Sub(e.firstAt)
	if age < window && e.count >= max {
		return LimitResult{RetryAfter: window - age, Reason: reason}, true
	}
	return LimitResult{}, false
}

func record(m map[string]*entry, key string, now time.Time, window time.Duration) {
	e := m[key]
	if e == nil {
		m[key] = &entry{count: 1, firstAt: now, lastAt: now}
		return
	}
	e.hit(now, window)
}

func (l *Limiter) hashKey(prefix, value string) string {
	hash := sha256.Sum256([]byte(value))
	return prefix + hex.EncodeToString(hash[:8])
}

// normalizeIdentifier lowercases the identifier to prevent case-based bypass.
func normalizeIdentifier(identifier string) string {
	return strings.ToLower(strings.TrimSpace(identifier))
}

func (l *Limiter) startCleanup() {
	l.cleanupOnce.Do(func() {
		l.cleanupWg.Add(1)
		go func() {
			defer l.cleanupWg.Done()
			ticker := l.clock.NewTicker(5 * time.Minute)
			defer ticker.Stop()
			for {
				select {
				case <-l.cleanupCtx.Done():
					return
				case <-ticker.Chan():
					l.cleanup()
				}
			}
		}()
	})
}

func (l *Limiter) cleanup() {
	now := l.clock.Now()
	l.mu.Lock()
	defer l.mu.Unlock()

	prune := func(m map[string]*entry, maxAge time.Duration) {
		for k, e := range m {
			if now.Sub(e.lastAt) > maxAge {
				delete(m, k)
			}
		}
	}
	prune(l.bidByTeam, time.Minute+l.config.BidCooldown)
	prune(l.bidByIP, time.Minute)
	prune(l.loginByID, time.Hour)
	prune(l.loginByIP, time.Hour)
}

// GetClientIP extracts the client IP from a request.
// When trustProxy is true, uses the rightmost IP from X-Forwarded-For (added by your proxy).
// When trustProxy is false, ignores X-Forwarded-For entirely (prevents spoofing).
func GetClientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			// Use RIGHTMOST IP - this is the one your proxy added, not user-supplied
			parts := strings.Split(xff, ",")
			for i := len(parts) - 1; i >= 0; i-- {
				ip := strings.TrimSpace(parts[i])
				// Skip private/internal IPs to find the real client
				if ip != "" && !isPrivateIP(ip) {
					return ip
				}
			}
			// All IPs are private, use the last one
			return strings.TrimSpace(parts[len(parts)-1])
		}

		// Check X-Real-IP (set by nginx)
		if xri := r.Header.Get("X-Real-IP"); xri != "" {
			return strings.TrimSpace(xri)
		}
	}

	// Fall back to RemoteAddr (direct connection or untrusted proxy)
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		// RemoteAddr might not have a port (e.g., Unix socket or malformed)
		// Try to parse as IP directly, otherwise return as-is
		if parsed := net.ParseIP(r.RemoteAddr); parsed != nil {
			return r.RemoteAddr
		}
		// Last resort: strip anything after last colon that looks like a port
		if idx := strings.LastIndex(r.RemoteAddr, ":"); idx != -1 {
			candidate := r.RemoteAddr[:idx]
			if net.ParseIP(candidate) != nil {
				return candidate
			}
		}
		return r.RemoteAddr
	}
	return ip
}

// privateNetworks holds parsed CIDR ranges for private/reserved IPs.
// Parsed once at package init.
var privateNetworks []*net.IPNet

func init() {
	privateRanges := []string{
		"10.0.0.0/8",
		"172.16.0.0/12",
		"192.168.0.0/16",
		"127.0.0.0/8",
		"::1/128",
		"fc00::/7",
		"fe80::/10", // Link-local
	}
	for _, cidr := range privateRanges {
		_, network, err := net.ParseCIDR(cidr)
		if err != nil {
			panic("invalid private CIDR: " + cidr)
		}
		privateNetworks = append(privateNetworks, network)
	}
}

// isPrivateIP checks if an IP is in a private/reserved range.
// Handles both IPv4 and IPv4-mapped IPv6 addresses (e.g., ::ffff:192.168.1.1).
func isPrivateIP(ipStr string) bool {
	ip := net.ParseIP(ipStr)
	if ip == nil {
		return false
	}

	// Convert IPv4-mapped IPv6 to IPv4 for consistent matching
	// e.g., ::ffff:192.168.1.1 -> 192.168.1.1
	if ipv4 := ip.To4(); ipv4 != nil {
		ip = ipv4
	}

	for _, network := range privateNetworks {
		if network.Contains(ip) {
			return true
		}
	}
	return false
}

// SanitizeIdentifier masks an email for logging.
func SanitizeIdentifier(identifier string) string {
	identifier = strings.ToLower(strings.TrimSpace(identifier))
	if local, domain, ok := strings.Cut(identifier, "@"); ok {
		if len(local) > 2 {
			return local[:2] + "***@" + domain
		}
		return "***@" + domain
	}
	if len(identifier) >= 4 {
		return "***" + identifier[len(identifier)-4:]
	}
	return "***"
}

// LogRateLimitExceeded logs a rate limit event.
func LogRateLimitExceeded(limitType, key, ip, reason string) {
	log.Warn().
		Str("event", "rate_limit_exceeded").
		Str("type", limitType).
		Str("key", key).
		Str("ip", ip).
		Str("reason", reason).
		Msg("Rate limit exceeded")
}
