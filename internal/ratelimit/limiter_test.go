package ratelimit

import (
	"net/http"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
)

func newTestLimiter(t *testing.T, clock clockwork.Clock) *Limiter {
	t.Helper()
	limiter := New(&Config{
		BidCooldown:       2 * time.Second,
		TeamBidsPerMinute: 3,
		IPBidsPerMinute:   5,
		LoginMaxPerHour:   2,
		LoginMaxIPPerHour: 10,
		Clock:             clock,
	})
	t.Cleanup(limiter.Close)
	return limiter
}

func TestAllowBid_Cooldown(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC))
	limiter := newTestLimiter(t, clock)

	if result := limiter.AllowBid("team-a", "203.0.113.1"); !result.Allowed {
		t.Fatalf("first bid should be allowed, got %s", result.Reason)
	}

	clock.Advance(time.Second)
	result := limiter.AllowBid("team-a", "203.0.113.1")
	if result.Allowed {
		t.Fatal("bid within cooldown should be blocked")
	}
	if result.Reason != "cooldown" {
		t.Errorf("expected reason 'cooldown', got %q", result.Reason)
	}
	if result.RetryAfter != time.Second {
		t.Errorf("expected retry after 1s, got %s", result.RetryAfter)
	}

	// Other teams are unaffected
	if result := limiter.AllowBid("team-b", "203.0.113.1"); !result.Allowed {
		t.Errorf("other team should be allowed, got %s", result.Reason)
	}
}

func TestAllowBid_TeamMinuteLimit(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC))
	limiter := newTestLimiter(t, clock)

	for i := 0; i < 3; i++ {
		if result := limiter.AllowBid("TEAM-A", "203.0.113.1"); !result.Allowed {
			t.Fatalf("bid %d should be allowed, got %s", i+1, result.Reason)
		}
		clock.Advance(3 * time.Second)
	}

	result := limiter.AllowBid("team-a", "203.0.113.1")
	if result.Allowed || result.Reason != "team_minute_limit" {
		t.Fatalf("expected team_minute_limit, got %+v", result)
	}

	clock.Advance(time.Minute)
	if result := limiter.AllowBid("team-a", "203.0.113.1"); !result.Allowed {
		t.Errorf("bid after window should be allowed, got %s", result.Reason)
	}
}

func TestAllowBid_IPLimit(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC))
	limiter := newTestLimiter(t, clock)

	for i := 0; i < 5; i++ {
		team := []string{"a", "b", "c", "d", "e"}[i]
		if result := limiter.AllowBid(team, "198.51.100.7"); !result.Allowed {
			t.Fatalf("bid %d should be allowed, got %s", i+1, result.Reason)
		}
	}

	result := limiter.AllowBid("f", "198.51.100.7")
	if result.Allowed || result.Reason != "ip_minute_limit" {
		t.Fatalf("expected ip_minute_limit, got %+v", result)
	}
}

func TestLoginLimitAndReset(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC))
	limiter := newTestLimiter(t, clock)

	email := "gm@hawks.test"
	ip := "192.0.2.10"
	for i := 0; i < 2; i++ {
		if result := limiter.CheckLogin(email, ip); !result.Allowed {
			t.Fatalf("attempt %d should be allowed", i+1)
		}
		limiter.RecordLoginFailure(email, ip)
	}

	if result := limiter.CheckLogin("GM@Hawks.test", ip); result.Allowed {
		t.Fatal("login should be blocked after max failures")
	}

	limiter.ResetLogin(email)
	if result := limiter.CheckLogin(email, ip); !result.Allowed {
		t.Errorf("login should be allowed after reset, got %s", result.Reason)
	}
}

func TestCleanupDropsStaleEntries(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC))
	limiter := newTestLimiter(t, clock)

	limiter.AllowBid("team-a", "203.0.113.1")
	limiter.RecordLoginFailure("gm@hawks.test", "203.0.113.1")
	clock.Advance(2 * time.Hour)
	limiter.cleanup()

	limiter.mu.Lock()
	defer limiter.mu.Unlock()
	if n := len(limiter.bidByTeam) + len(limiter.bidByIP) + len(limiter.loginByID) + len(limiter.loginByIP); n != 0 {
		t.Errorf("expected all entries purged, %d remain", n)
	}
}

func TestGetClientIP_TrustProxy(t *testing.T) {
	tests := []struct {
		name       string
		headers    map[string]string
		remoteAddr string
		trustProxy bool
		expected   string
	}{
		{
			name:       "TrustProxy=true, XFF rightmost public IP",
			headers:    map[string]string{"X-Forwarded-For": "203.0.113.50, 10.0.0.1"},
			remoteAddr: "10.0.0.1:12345",
			trustProxy: true,
			expected:   "203.0.113.50", // Rightmost non-private
		},
		{
			name:       "TrustProxy=true, XFF all private",
			headers:    map[string]string{"X-Forwarded-For": "192.168.1.1, 10.0.0.1"},
			remoteAddr: "10.0.0.1:12345",
			trustProxy: true,
			expected:   "10.0.0.1", // Last one when all private
		},
		{
			name:       "TrustProxy=true, X-Real-IP",
			headers:    map[string]string{"X-Real-IP": "203.0.113.51"},
			remoteAddr: "10.0.0.1:12345",
			trustProxy: true,
			expected:   "203.0.113.51",
		},
		{
			name:       "TrustProxy=false, ignores XFF",
			headers:    map[string]string{"X-Forwarded-For": "203.0.113.50"},
			remoteAddr: "192.168.1.100:54321",
			trustProxy: false,
			expected:   "192.168.1.100", // Uses RemoteAddr, ignores spoofed XFF
		},
		{
			name:       "TrustProxy=false, ignores X-Real-IP",
			headers:    map[string]string{"X-Real-IP": "203.0.113.51"},
			remoteAddr: "192.168.1.100:54321",
			trustProxy: false,
			expected:   "192.168.1.100",
		},
		{
			name:       "No headers, RemoteAddr only",
			headers:    map[string]string{},
			remoteAddr: "192.168.1.100:54321",
			trustProxy: true,
			expected:   "192.168.1.100",
		},
		{
			name:       "RemoteAddr without port",
			headers:    map[string]string{},
			remoteAddr: "192.168.1.100",
			trustProxy: false,
			expected:   "192.168.1.100",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, _ := http.NewRequest("GET", "/", nil)
			r.RemoteAddr = tt.remoteAddr
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}

			got := GetClientIP(r, tt.trustProxy)
			if got != tt.expected {
				t.Errorf("GetClientIP() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestGetClientIP_SpoofingPrevention(t *testing.T) {
	// Attacker sends fake X-Forwarded-For header
	r, _ := http.NewRequest("GET", "/", nil)
	r.Header.Set("X-Forwarded-For", "1.2.3.4") // Attacker-supplied
	r.RemoteAddr = "192.168.1.100:54321"       // Real connection

	// With TrustProxy=false, the fake header is ignored
	got := GetClientIP(r, false)
	if got != "192.168.1.100" {
		t.Errorf("Should ignore X-Forwarded-For when TrustProxy=false, got %q", got)
	}
}


func TestSanitizeIdentifier(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"john.doe@example.com", "jo***@example.com"},
		{"JOHN.DOE@EXAMPLE.COM", "jo***@example.com"},
		{"ab@example.com", "***@example.com"},
		{"team-hawks", "***awks"},
		{"123", "***"},
		{"", "***"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := SanitizeIdentifier(tt.input)
			if got != tt.expected {
				t.Errorf("SanitizeIdentifier(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}
