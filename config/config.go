package config

import (
	"errors"
	"fmt"
	"log"
	"net/url"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"motion-live-client/internal/transport"
	"motion-live-client/internal/upstream"
)

const (
	RoleVoter     = "voter"
	RoleModerator = "moderator"
)

// Config represents the overall application configuration.
type Config struct {
	Session    SessionConfig    `yaml:"session"`
	Backend    BackendConfig    `yaml:"backend"`
	Transport  TransportConfig  `yaml:"transport"`
	Moderator  ModeratorConfig  `yaml:"moderator"`
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Push       PushConfig       `yaml:"push"`
	WorkerPool WorkerPoolConfig `yaml:"worker_pool"`
}

// SessionConfig names the voting session and which side of it this
// process plays.
type SessionConfig struct {
	ID   string `yaml:"id" env:"MOTION_SESSION_ID"`
	Role string `yaml:"role" env:"MOTION_ROLE"`
}

// BackendConfig locates the voting backend.
type BackendConfig struct {
	BaseURL        string               `yaml:"base_url" env:"MOTION_BACKEND_URL"`
	TimeoutSeconds int                  `yaml:"timeout_seconds" env:"MOTION_BACKEND_TIMEOUT_SECONDS"`
	Credentials    upstream.Credentials `yaml:"credentials" envPrefix:"MOTION_"`
	Timeout        time.Duration        `yaml:"-"`
}

// TransportConfig tunes the push channel.
type TransportConfig struct {
	HeartbeatInterval time.Duration     `yaml:"heartbeat_interval" env:"MOTION_HEARTBEAT_INTERVAL"`
	PollInterval      time.Duration     `yaml:"poll_interval" env:"MOTION_POLL_INTERVAL"`
	Backoff           transport.Backoff `yaml:"backoff"`
}

// ModeratorConfig holds console-only settings.
type ModeratorConfig struct {
	TallyTTL time.Duration `yaml:"tally_ttl" env:"MOTION_TALLY_TTL"`
}

// WorkerPoolConfig holds the configuration for the notification worker pool.
type WorkerPoolConfig struct {
	Size int `yaml:"size" env:"MOTION_WORKER_POOL_SIZE"`
}

// PushConfig holds the VAPID keys for web push notifications. Push is
// disabled when either key is empty.
type PushConfig struct {
	PublicKey  string `yaml:"vapid_public_key" env:"MOTION_VAPID_PUBLIC_KEY"`
	PrivateKey string `yaml:"vapid_private_key" env:"MOTION_VAPID_PRIVATE_KEY"`
	Subject    string `yaml:"subject" env:"MOTION_VAPID_SUBJECT"`
	TTL        int    `yaml:"ttl"`
}

// Enabled reports whether both VAPID keys are configured.
func (p PushConfig) Enabled() bool {
	return p.PublicKey != "" && p.PrivateKey != ""
}

// ServerConfig holds the local API settings. Port 0 disables the API.
type ServerConfig struct {
	Port            int     `yaml:"port" env:"MOTION_PORT"`
	RateLimitPerSec float64 `yaml:"rate_limit_per_sec"`
	RateLimitBurst  int     `yaml:"rate_limit_burst"`
	CacheTTLSeconds int     `yaml:"cache_ttl_seconds"`
}

// DatabaseConfig holds the database connection configuration.
type DatabaseConfig struct {
	DSN                    string `yaml:"dsn" env:"MOTION_DATABASE_DSN"`
	MaxOpenConns           int    `yaml:"max_open_conns"`
	MaxIdleConns           int    `yaml:"max_idle_conns"`
	ConnMaxLifetimeMinutes int    `yaml:"conn_max_lifetime_minutes"`
	Debug                  bool   `yaml:"debug"`
}

// Load reads the configuration from the given path, then applies
// environment overrides and defaults. An empty path skips the file.
func Load(path string) (*Config, error) {
	var cfg Config
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()

		decoder := yaml.NewDecoder(f)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, fmt.Errorf("failed to decode %s: %w", path, err)
		}
	}

	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to apply environment overrides: %w", err)
	}

	cfg.applyDefaults()
	return &cfg, nil
}

func (cfg *Config) applyDefaults() {
	if cfg.Session.Role == "" {
		cfg.Session.Role = RoleVoter
	}

	if cfg.Backend.TimeoutSeconds <= 0 {
		cfg.Backend.TimeoutSeconds = 10
	}
	cfg.Backend.Timeout = time.Duration(cfg.Backend.TimeoutSeconds) * time.Second

	defaults := transport.DefaultOptions()
	if cfg.Transport.HeartbeatInterval <= 0 {
		cfg.Transport.HeartbeatInterval = defaults.HeartbeatInterval
	}
	if cfg.Transport.PollInterval <= 0 {
		cfg.Transport.PollInterval = defaults.PollInterval
	}
	backoff := transport.DefaultBackoff()
	if cfg.Transport.Backoff.Base <= 0 {
		cfg.Transport.Backoff.Base = backoff.Base
	}
	if cfg.Transport.Backoff.Step <= 0 {
		cfg.Transport.Backoff.Step = backoff.Step
	}
	if cfg.Transport.Backoff.Max <= 0 {
		cfg.Transport.Backoff.Max = backoff.Max
	}
	if cfg.Transport.Backoff.PollAfter <= 0 {
		cfg.Transport.Backoff.PollAfter = backoff.PollAfter
	}

	if cfg.Server.RateLimitPerSec <= 0 {
		cfg.Server.RateLimitPerSec = 10
	}
	if cfg.Server.RateLimitBurst <= 0 {
		cfg.Server.RateLimitBurst = 5
	}
	if cfg.Server.CacheTTLSeconds <= 0 {
		cfg.Server.CacheTTLSeconds = 300
	}

	if cfg.Database.DSN == "" {
		cfg.Database.DSN = "motion-live.db"
	}
	if cfg.Database.MaxOpenConns <= 0 {
		cfg.Database.MaxOpenConns = 1
	}
	if cfg.Database.MaxIdleConns <= 0 {
		cfg.Database.MaxIdleConns = 1
	}

	if cfg.Push.TTL <= 0 {
		cfg.Push.TTL = 3600
	}

	if cfg.WorkerPool.Size <= 0 {
		log.Printf("worker_pool.size is not set or invalid; defaulting to 1")
		cfg.WorkerPool.Size = 1
	}
}

// Validate checks the settings a session cannot start without.
func (cfg *Config) Validate() error {
	var errs []error
	if _, err := uuid.Parse(cfg.Session.ID); err != nil {
		errs = append(errs, fmt.Errorf("session.id must be a UUID: %w", err))
	}
	if cfg.Session.Role != RoleVoter && cfg.Session.Role != RoleModerator {
		errs = append(errs, fmt.Errorf("session.role must be %q or %q, got %q", RoleVoter, RoleModerator, cfg.Session.Role))
	}
	u, err := url.Parse(cfg.Backend.BaseURL)
	switch {
	case cfg.Backend.BaseURL == "":
		errs = append(errs, errors.New("backend.base_url is required"))
	case err != nil:
		errs = append(errs, fmt.Errorf("backend.base_url: %w", err))
	case u.Scheme != "http" && u.Scheme != "https", u.Host == "":
		errs = append(errs, fmt.Errorf("backend.base_url must be an absolute http(s) URL, got %q", cfg.Backend.BaseURL))
	}
	if cfg.Server.Port < 0 || cfg.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port out of range: %d", cfg.Server.Port))
	}
	return errors.Join(errs...)
}
