package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the full server configuration. Values load from an
// optional YAML file first, then environment variables override.
type Config struct {
	// Admin HTTP
	Port int `yaml:"port"`

	// Coordinating store
	DatabaseURL string `yaml:"database_url"`

	// ACME
	AdminEmail      string `yaml:"admin_email"`
	RenewBeforeDays int    `yaml:"renew_before_days"`

	// Monitoring
	AlertThresholdDays int `yaml:"alert_threshold_days"`

	// development disables ACME issuance entirely
	Environment string `yaml:"environment"`

	// Filesystem roots; overridable for tests
	NginxDir       string `yaml:"nginx_dir"`
	LetsEncryptDir string `yaml:"letsencrypt_dir"`

	// External binaries
	NginxBin   string `yaml:"nginx_bin"`
	CertbotBin string `yaml:"certbot_bin"`
	OpenSSLBin string `yaml:"openssl_bin"`

	// Logging
	LogLevel string `yaml:"log_level"`
	LogJSON  bool   `yaml:"log_json"`

	// Inter-node auth secret for the reload fan-out token
	ClusterSecret string `yaml:"cluster_secret"`

	// Timings (zero means default)
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
	CleanupInterval   time.Duration `yaml:"cleanup_interval"`
	StaleAfter        time.Duration `yaml:"stale_after"`
	DeleteAfter       time.Duration `yaml:"delete_after"`
	RenewInterval     time.Duration `yaml:"renew_interval"`
	ReloadInterval    time.Duration `yaml:"reload_interval"`
	AcmeTimeout       time.Duration `yaml:"acme_timeout"`
	PeerTimeout       time.Duration `yaml:"peer_timeout"`
}

// Defaults mirror the documented cluster timings
const (
	DefaultPort               = 3000
	DefaultRenewBeforeDays    = 30
	DefaultAlertThresholdDays = 14

	DefaultHeartbeatInterval = 30 * time.Second
	DefaultCleanupInterval   = 45 * time.Second
	DefaultStaleAfter        = 120 * time.Second
	DefaultDeleteAfter       = 3600 * time.Second
	DefaultRenewInterval     = 12 * time.Hour
	DefaultReloadInterval    = 5 * time.Minute
	DefaultAcmeTimeout       = 300 * time.Second
	DefaultPeerTimeout       = 5 * time.Second
)

// Load reads the optional YAML file at path (empty path skips it),
// applies environment overrides, and fills defaults.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	cfg.applyEnv()
	cfg.applyDefaults()

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.IsProduction() && cfg.AdminEmail == "" {
		return nil, fmt.Errorf("ADMIN_EMAIL is required in production")
	}

	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			c.Port = p
		}
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		c.DatabaseURL = v
	}
	if v := os.Getenv("ADMIN_EMAIL"); v != "" {
		c.AdminEmail = v
	}
	if v := os.Getenv("RENEW_BEFORE_DAYS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.RenewBeforeDays = n
		}
	}
	if v := os.Getenv("ALERT_THRESHOLD_DAYS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.AlertThresholdDays = n
		}
	}
	if v := os.Getenv("NODE_ENV"); v != "" {
		c.Environment = v
	}
	if v := os.Getenv("CLUSTER_SECRET"); v != "" {
		c.ClusterSecret = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
}

func (c *Config) applyDefaults() {
	if c.Port == 0 {
		c.Port = DefaultPort
	}
	if c.RenewBeforeDays == 0 {
		c.RenewBeforeDays = DefaultRenewBeforeDays
	}
	if c.AlertThresholdDays == 0 {
		c.AlertThresholdDays = DefaultAlertThresholdDays
	}
	if c.Environment == "" {
		c.Environment = "production"
	}
	if c.NginxDir == "" {
		c.NginxDir = "/etc/nginx"
	}
	if c.LetsEncryptDir == "" {
		c.LetsEncryptDir = "/etc/letsencrypt/live"
	}
	if c.NginxBin == "" {
		c.NginxBin = "nginx"
	}
	if c.CertbotBin == "" {
		c.CertbotBin = "certbot"
	}
	if c.OpenSSLBin == "" {
		c.OpenSSLBin = "openssl"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.HeartbeatInterval == 0 {
		c.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if c.CleanupInterval == 0 {
		c.CleanupInterval = DefaultCleanupInterval
	}
	if c.StaleAfter == 0 {
		c.StaleAfter = DefaultStaleAfter
	}
	if c.DeleteAfter == 0 {
		c.DeleteAfter = DefaultDeleteAfter
	}
	if c.RenewInterval == 0 {
		c.RenewInterval = DefaultRenewInterval
	}
	if c.ReloadInterval == 0 {
		c.ReloadInterval = DefaultReloadInterval
	}
	if c.AcmeTimeout == 0 {
		c.AcmeTimeout = DefaultAcmeTimeout
	}
	if c.PeerTimeout == 0 {
		c.PeerTimeout = DefaultPeerTimeout
	}
}

// IsDevelopment reports whether ACME issuance is disabled
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction is the inverse of IsDevelopment
func (c *Config) IsProduction() bool {
	return !c.IsDevelopment()
}
