// internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"github.com/codr1/leaguebids/internal/auction"
)

type DatabaseConfig struct {
	Driver   string `yaml:"driver"`
	Filename string `yaml:"filename"`
}

type AuctionConfig struct {
	MinIncrement    int64         `yaml:"min_increment"`
	BidWindow       time.Duration `yaml:"bid_window"`
	OpeningWindow   time.Duration `yaml:"opening_window"`
	MaxSalaryCap    int64         `yaml:"max_salary_cap"`
	MinPlayerSalary int64         `yaml:"min_player_salary"`
	MaxPlayerSalary int64         `yaml:"max_player_salary"`
	// Serialize bids per team across auctions so cap checks cannot race.
	StrictTeamCap bool `yaml:"strict_team_cap"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	DB       int    `yaml:"db"`
	Password string `yaml:"-"` // Loaded from environment
}

type SessionsConfig struct {
	Driver     string        `yaml:"driver"` // memory or redis
	TTL        time.Duration `yaml:"ttl"`
	CookieName string        `yaml:"cookie_name"`
	Redis      RedisConfig   `yaml:"redis"`
}

type EmailConfig struct {
	Enabled bool   `yaml:"enabled"`
	Region  string `yaml:"region"`
	Sender  string `yaml:"sender"`
	// Static credentials are optional; the default AWS chain is used when empty.
	AccessKeyID     string `yaml:"-"`
	SecretAccessKey string `yaml:"-"`
}

type SchedulerConfig struct {
	SweepCron      string `yaml:"sweep_cron"`
	TokenPurgeCron string `yaml:"token_purge_cron"`
}

type RateLimitConfig struct {
	BidCooldown          time.Duration `yaml:"bid_cooldown"`
	TeamBidsPerMinute    int           `yaml:"team_bids_per_minute"`
	IPBidsPerMinute      int           `yaml:"ip_bids_per_minute"`
	LoginAttemptsPerHour int           `yaml:"login_attempts_per_hour"`
}

type Config struct {
	App struct {
		Name            string        `yaml:"name"`
		Environment     string        `yaml:"environment"`
		Port            int           `yaml:"port"`
		BaseURL         string        `yaml:"base_url"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
		TrustProxy      bool          `yaml:"trust_proxy"`
		AllowedOrigins  []string      `yaml:"allowed_origins"`
		SecretKey       string        `yaml:"-"` // Loaded from environment
	} `yaml:"app"`

	Database  DatabaseConfig  `yaml:"database"`
	Auction   AuctionConfig   `yaml:"auction"`
	Sessions  SessionsConfig  `yaml:"sessions"`
	Email     EmailConfig     `yaml:"email"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	RateLimit RateLimitConfig `yaml:"ratelimit"`
}

// Default returns a configuration with every optional field filled in.
func Default() *Config {
	var cfg Config
	cfg.ApplyDefaults()
	return &cfg
}

// Load loads both .env and yaml configuration
func Load(configPath string) (*Config, error) {
	// Load .env file if it exists
	envPath := filepath.Join(filepath.Dir(configPath), ".env")
	if err := godotenv.Load(envPath); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("error loading .env file: %w", err)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	return Parse(data)
}

// Parse decodes YAML, overlays secrets from the environment and validates the result.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	cfg.App.SecretKey = os.Getenv("APP_SECRET_KEY")
	cfg.Sessions.Redis.Password = os.Getenv("REDIS_PASSWORD")
	cfg.Email.AccessKeyID = os.Getenv("AWS_ACCESS_KEY_ID")
	cfg.Email.SecretAccessKey = os.Getenv("AWS_SECRET_ACCESS_KEY")

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// ApplyDefaults fills zero-valued fields.
func (c *Config) ApplyDefaults() {
	rules := auction.DefaultRules()

	if c.App.Name == "" {
		c.App.Name = "leaguebids"
	}
	if c.App.Environment == "" {
		c.App.Environment = "development"
	}
	if c.App.Port == 0 {
		c.App.Port = 8080
	}
	if c.App.ShutdownTimeout == 0 {
		c.App.ShutdownTimeout = 30 * time.Second
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "sqlite"
	}
	if c.Database.Filename == "" {
		c.Database.Filename = "data/leaguebids.db"
	}

	if c.Auction.MinIncrement == 0 {
		c.Auction.MinIncrement = rules.MinIncrement
	}
	if c.Auction.BidWindow == 0 {
		c.Auction.BidWindow = rules.BidWindow
	}
	if c.Auction.OpeningWindow == 0 {
		c.Auction.OpeningWindow = rules.OpeningWindow
	}
	if c.Auction.MaxSalaryCap == 0 {
		c.Auction.MaxSalaryCap = rules.MaxSalaryCap
	}
	if c.Auction.MinPlayerSalary == 0 {
		c.Auction.MinPlayerSalary = rules.MinPlayerSalary
	}
	if c.Auction.MaxPlayerSalary == 0 {
		c.Auction.MaxPlayerSalary = rules.MaxPlayerSalary
	}

	if c.Sessions.Driver == "" {
		c.Sessions.Driver = "memory"
	}
	if c.Sessions.TTL == 0 {
		c.Sessions.TTL = 12 * time.Hour
	}
	if c.Sessions.CookieName == "" {
		c.Sessions.CookieName = "leaguebids_session"
	}
	if c.Sessions.Redis.Addr == "" {
		c.Sessions.Redis.Addr = "localhost:6379"
	}

	if c.Email.Region == "" {
		c.Email.Region = "us-east-1"
	}

	if c.Scheduler.SweepCron == "" {
		c.Scheduler.SweepCron = "* * * * *"
	}
	if c.Scheduler.TokenPurgeCron == "" {
		c.Scheduler.TokenPurgeCron = "*/15 * * * *"
	}

	if c.RateLimit.BidCooldown == 0 {
		c.RateLimit.BidCooldown = time.Second
	}
	if c.RateLimit.TeamBidsPerMinute == 0 {
		c.RateLimit.TeamBidsPerMinute = 30
	}
	if c.RateLimit.IPBidsPerMinute == 0 {
		c.RateLimit.IPBidsPerMinute = 120
	}
	if c.RateLimit.LoginAttemptsPerHour == 0 {
		c.RateLimit.LoginAttemptsPerHour = 20
	}
}

func (c *Config) Validate() error {
	if c.App.Name == "" {
		return fmt.Errorf("app name is required")
	}
	if c.App.Port <= 0 {
		return fmt.Errorf("app port is required")
	}

	switch c.Database.Driver {
	case "sqlite":
		if c.Database.Filename == "" {
			return fmt.Errorf("database filename is required for sqlite")
		}
	default:
		return fmt.Errorf("unsupported database driver: %s", c.Database.Driver)
	}

	if err := c.Auction.validate(); err != nil {
		return err
	}

	switch strings.ToLower(c.Sessions.Driver) {
	case "memory":
	case "redis":
		if c.Sessions.Redis.Addr == "" {
			return fmt.Errorf("sessions redis addr is required for redis driver")
		}
	default:
		return fmt.Errorf("unsupported sessions driver: %s", c.Sessions.Driver)
	}
	if c.Sessions.TTL <= 0 {
		return fmt.Errorf("sessions ttl must be positive")
	}

	if c.Email.Enabled && c.Email.Sender == "" {
		return fmt.Errorf("email sender is required when email is enabled")
	}

	for name, expr := range map[string]string{
		"sweep_cron":       c.Scheduler.SweepCron,
		"token_purge_cron": c.Scheduler.TokenPurgeCron,
	} {
		if _, err := cron.ParseStandard(expr); err != nil {
			return fmt.Errorf("scheduler %s %q: %w", name, expr, err)
		}
	}

	if c.RateLimit.BidCooldown < 0 || c.RateLimit.TeamBidsPerMinute < 0 || c.RateLimit.IPBidsPerMinute < 0 {
		return fmt.Errorf("ratelimit values must not be negative")
	}

	return nil
}

func (a AuctionConfig) validate() error {
	var errs []error
	if a.MinIncrement <= 0 {
		errs = append(errs, fmt.Errorf("auction min_increment must be positive"))
	}
	// Auctions store the window in whole seconds.
	if a.BidWindow < time.Second || a.BidWindow%time.Second != 0 {
		errs = append(errs, fmt.Errorf("auction bid_window must be a whole number of seconds, at least 1s"))
	}
	if a.OpeningWindow <= 0 {
		errs = append(errs, fmt.Errorf("auction opening_window must be positive"))
	}
	if a.MaxSalaryCap <= 0 {
		errs = append(errs, fmt.Errorf("auction max_salary_cap must be positive"))
	}
	if a.MinPlayerSalary < 0 {
		errs = append(errs, fmt.Errorf("auction min_player_salary must not be negative"))
	}
	if a.MaxPlayerSalary > 0 && a.MaxPlayerSalary < a.MinPlayerSalary {
		errs = append(errs, fmt.Errorf("auction max_player_salary below min_player_salary"))
	}
	return errors.Join(errs...)
}

// Rules converts the auction section into engine rules.
func (c *Config) Rules() auction.Rules {
	return auction.Rules{
		MinIncrement:    c.Auction.MinIncrement,
		BidWindow:       c.Auction.BidWindow,
		OpeningWindow:   c.Auction.OpeningWindow,
		MaxSalaryCap:    c.Auction.MaxSalaryCap,
		MinPlayerSalary: c.Auction.MinPlayerSalary,
		MaxPlayerSalary: c.Auction.MaxPlayerSalary,
		StrictTeamCap:   c.Auction.StrictTeamCap,
	}
}
