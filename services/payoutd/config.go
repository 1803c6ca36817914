package payoutd

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
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

// Config captures the runtime configuration for payoutd.
type Config struct {
	ListenAddress string         `yaml:"listen"`
	PauseOnStart  bool           `yaml:"pause"`
	PollInterval  Duration       `yaml:"poll_interval"`
	Airdropd      AirdropdConfig `yaml:"airdropd"`
	Journal       JournalConfig  `yaml:"journal"`
	Policy        Policy         `yaml:"policy"`
	Wallet        WalletConfig   `yaml:"wallet"`
	Admin         AdminConfig    `yaml:"admin"`
}

// AirdropdConfig locates the ledger API and the admin credential used to drain it.
type AirdropdConfig struct {
	Endpoint  string   `yaml:"endpoint"`
	Token     string   `yaml:"token"`
	TokenFile string   `yaml:"token_file"`
	TokenEnv  string   `yaml:"token_env"`
	Timeout   Duration `yaml:"timeout"`
}

// JournalConfig selects the disbursement journal database.
type JournalConfig struct {
	DSN string `yaml:"dsn"`
}

// WalletConfig captures parameters for the treasury hot wallet.
type WalletConfig struct {
	DryRun       bool     `yaml:"dry_run"`
	PollInterval Duration `yaml:"poll_interval"`
}

// AdminConfig captures security settings for the admin API.
type AdminConfig struct {
	BearerToken     string `yaml:"bearer_token"`
	BearerTokenFile string `yaml:"bearer_token_file"`
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
	if err := dec.Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("decode config: %w", err)
	}
	applyDefaults(&cfg)
	if err := cfg.Airdropd.normalise(); err != nil {
		return cfg, fmt.Errorf("airdropd credentials: %w", err)
	}
	if err := cfg.Admin.normalise(); err != nil {
		return cfg, fmt.Errorf("admin security: %w", err)
	}
	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.ListenAddress == "" {
		cfg.ListenAddress = ":7082"
	}
	if cfg.PollInterval.Duration == 0 {
		cfg.PollInterval.Duration = 30 * time.Second
	}
	if cfg.Airdropd.Timeout.Duration == 0 {
		cfg.Airdropd.Timeout.Duration = 15 * time.Second
	}
	if cfg.Journal.DSN == "" {
		cfg.Journal.DSN = "payoutd-journal.db"
	}
	if cfg.Policy.Asset == "" {
		cfg.Policy.Asset = "REF"
	}
	if cfg.Policy.Confirmations <= 0 {
		cfg.Policy.Confirmations = 3
	}
	if cfg.Wallet.PollInterval.Duration == 0 {
		cfg.Wallet.PollInterval.Duration = 3 * time.Second
	}
}

func validateConfig(cfg Config) error {
	if strings.TrimSpace(cfg.Airdropd.Endpoint) == "" {
		return fmt.Errorf("airdropd endpoint must be configured")
	}
	if cfg.Airdropd.Token == "" {
		return fmt.Errorf("airdropd token must be configured")
	}
	if cfg.Admin.BearerToken == "" {
		return fmt.Errorf("admin bearer_token must be configured")
	}
	return nil
}

func (c *AirdropdConfig) normalise() error {
	c.Endpoint = strings.TrimSpace(c.Endpoint)
	c.Token = strings.TrimSpace(c.Token)
	if c.Token != "" {
		return nil
	}
	switch {
	case strings.TrimSpace(c.TokenEnv) != "":
		value := strings.TrimSpace(os.Getenv(strings.TrimSpace(c.TokenEnv)))
		if value == "" {
			return fmt.Errorf("token_env %s is empty", c.TokenEnv)
		}
		c.Token = value
	case strings.TrimSpace(c.TokenFile) != "":
		contents, err := os.ReadFile(strings.TrimSpace(c.TokenFile))
		if err != nil {
			return fmt.Errorf("read token_file: %w", err)
		}
		c.Token = strings.TrimSpace(string(contents))
	}
	return nil
}

func (a *AdminConfig) normalise() error {
	token := strings.TrimSpace(a.BearerToken)
	if path := strings.TrimSpace(a.BearerTokenFile); path != "" {
		contents, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read bearer_token_file: %w", err)
		}
		token = strings.TrimSpace(string(contents))
	}
	a.BearerToken = token
	return nil
}
