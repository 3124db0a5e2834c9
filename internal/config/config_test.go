package config

import (
	"strings"
	"testing"
	"time"
)

func TestParseAppliesDefaults(t *testing.T) {
	cfg, err := Parse([]byte("app:\n  name: bids\n"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	rules := cfg.Rules()
	if rules.MinIncrement != 2_000_000 {
		t.Fatalf("expected default increment 2000000, got %d", rules.MinIncrement)
	}
	if rules.BidWindow != 5*time.Minute {
		t.Fatalf("expected default bid window 5m, got %s", rules.BidWindow)
	}
	if rules.MaxSalaryCap != 65_000_000 {
		t.Fatalf("expected default cap 65000000, got %d", rules.MaxSalaryCap)
	}
	if cfg.Scheduler.SweepCron != "* * * * *" {
		t.Fatalf("unexpected sweep cron %q", cfg.Scheduler.SweepCron)
	}
	if cfg.Sessions.Driver != "memory" {
		t.Fatalf("unexpected sessions driver %q", cfg.Sessions.Driver)
	}
}

func TestParseOverrides(t *testing.T) {
	yaml := `
app:
  name: bids
  port: 9090
auction:
  min_increment: 500000
  bid_window: 10m
  strict_team_cap: true
sessions:
  driver: redis
  ttl: 1h
  redis:
    addr: cache:6379
`
	t.Setenv("REDIS_PASSWORD", "hunter2")

	cfg, err := Parse([]byte(yaml))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.App.Port != 9090 {
		t.Fatalf("expected port 9090, got %d", cfg.App.Port)
	}
	rules := cfg.Rules()
	if rules.MinIncrement != 500_000 || rules.BidWindow != 10*time.Minute || !rules.StrictTeamCap {
		t.Fatalf("auction overrides not applied: %+v", rules)
	}
	if cfg.Sessions.Redis.Password != "hunter2" {
		t.Fatalf("expected redis password from environment")
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "negative increment",
			mutate:  func(c *Config) { c.Auction.MinIncrement = -1 },
			wantErr: "min_increment",
		},
		{
			name:    "sub-second bid window",
			mutate:  func(c *Config) { c.Auction.BidWindow = 500 * time.Millisecond },
			wantErr: "bid_window",
		},
		{
			name:    "fractional bid window",
			mutate:  func(c *Config) { c.Auction.BidWindow = 90*time.Second + 500*time.Millisecond },
			wantErr: "bid_window",
		},
		{
			name:    "bad cron",
			mutate:  func(c *Config) { c.Scheduler.SweepCron = "every minute" },
			wantErr: "sweep_cron",
		},
		{
			name:    "unknown sessions driver",
			mutate:  func(c *Config) { c.Sessions.Driver = "memcached" },
			wantErr: "sessions driver",
		},
		{
			name:    "email without sender",
			mutate:  func(c *Config) { c.Email.Enabled = true },
			wantErr: "sender",
		},
		{
			name:    "salary range inverted",
			mutate:  func(c *Config) { c.Auction.MaxPlayerSalary = 1; c.Auction.MinPlayerSalary = 2 },
			wantErr: "max_player_salary",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}
