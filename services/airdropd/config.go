package airdropd

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"refdrop/storage"
)

// Duration wraps time.Duration to support YAML unmarshalling.
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses human readable duration strings.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value == nil {
		return nil
	}
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("duration must be string")
	}
	raw := value.Value
	if raw == "" {
		d.Duration = 0
		return nil
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", raw, err)
	}
	d.Duration = parsed
	return nil
}

// Config captures the runtime configuration for airdropd.
type Config struct {
	ListenAddress   string            `yaml:"listen"`
	ParamsPath      string            `yaml:"params"`
	Storage         StorageConfig     `yaml:"storage"`
	Auth            AuthConfig        `yaml:"auth"`
	Signer          SignerConfig      `yaml:"signer"`
	RateLimit       RateLimitConfig   `yaml:"rate_limit"`
	BootstrapAdmins []string          `yaml:"bootstrap_admins"`
	Managers        map[string]string `yaml:"managers"`
	Log             LogConfig         `yaml:"log"`
}

// StorageConfig selects the snapshot backend.
type StorageConfig struct {
	Backend string `yaml:"backend"`
	Path    string `yaml:"path"`
}

// AuthConfig configures bearer token verification.
type AuthConfig struct {
	HMACSecret     string   `yaml:"hmac_secret"`
	HMACSecretFile string   `yaml:"hmac_secret_file"`
	Issuer         string   `yaml:"issuer"`
	Audience       string   `yaml:"audience"`
	ClockSkew      Duration `yaml:"clock_skew"`
}

// SignerConfig locates the master key used to derive payout addresses.
type SignerConfig struct {
	Keystore       string   `yaml:"keystore"`
	PassphraseEnv  string   `yaml:"passphrase_env"`
	ResolveLatency Duration `yaml:"resolve_latency"`
}

// RateLimitConfig bounds redemption attempts per principal.
type RateLimitConfig struct {
	RequestsPerMinute float64 `yaml:"requests_per_minute"`
	Burst             int     `yaml:"burst"`
}

// LogConfig enables rotated file logging.
type LogConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
}

// LoadConfig reads configuration from the supplied path.
func LoadConfig(path string) (Config, error) {
	cfg := Config{}
	file, err := os.Open(path)
	if err != nil {
		return cfg, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()
	dec := yaml.NewDecoder(file)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("decode config: %w", err)
	}
	applyDefaults(&cfg)
	if err := cfg.Auth.normalise(); err != nil {
		return cfg, fmt.Errorf("auth: %w", err)
	}
	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.ListenAddress == "" {
		cfg.ListenAddress = ":7080"
	}
	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = storage.BackendMemory
	}
	if cfg.Auth.ClockSkew.Duration == 0 {
		cfg.Auth.ClockSkew.Duration = 2 * time.Minute
	}
	if cfg.Signer.PassphraseEnv == "" {
		cfg.Signer.PassphraseEnv = "AIRDROPD_SIGNER_PASSPHRASE"
	}
	if cfg.RateLimit.RequestsPerMinute <= 0 {
		cfg.RateLimit.RequestsPerMinute = 30
	}
	if cfg.RateLimit.Burst <= 0 {
		cfg.RateLimit.Burst = 5
	}
	if cfg.Managers == nil {
		cfg.Managers = map[string]string{}
	}
}

func validateConfig(cfg Config) error {
	if cfg.Auth.HMACSecret == "" {
		return fmt.Errorf("auth.hmac_secret must be configured")
	}
	backend := strings.ToLower(cfg.Storage.Backend)
	if backend != storage.BackendMemory && strings.TrimSpace(cfg.Storage.Path) == "" {
		return fmt.Errorf("storage.path must be configured for %s", backend)
	}
	if len(cfg.BootstrapAdmins) == 0 {
		return fmt.Errorf("at least one bootstrap admin must be configured")
	}
	return nil
}

func (a *AuthConfig) normalise() error {
	if a == nil {
		return fmt.Errorf("auth configuration missing")
	}
	secret := strings.TrimSpace(a.HMACSecret)
	if path := strings.TrimSpace(a.HMACSecretFile); path != "" {
		contents, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read hmac_secret_file: %w", err)
		}
		secret = strings.TrimSpace(string(contents))
	}
	a.HMACSecret = secret
	a.Issuer = strings.TrimSpace(a.Issuer)
	a.Audience = strings.TrimSpace(a.Audience)
	return nil
}
