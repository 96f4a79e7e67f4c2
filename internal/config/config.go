package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"go.yaml.in/yaml/v4"
)

// Config is the top-level application configuration.
type Config struct {
	LogLevel         string    `yaml:"log_level"`
	IMAP             IMAP      `yaml:"imap"`
	Accounts         []Account `yaml:"accounts"`
	Telegram         Telegram  `yaml:"telegram"`
	MonitoredSenders string    `yaml:"monitored_senders"`
	IntervalMinutes  float64   `yaml:"check_interval_minutes"`
	RetentionDays    int       `yaml:"retention_days"`
	KeepAlive        KeepAlive `yaml:"keep_alive"`
}

// IMAP holds the incoming mail server configuration.
type IMAP struct {
	Host   string `yaml:"host"`
	Port   int    `yaml:"port"`
	UseTLS *bool  `yaml:"use_tls"`
	Folder string `yaml:"folder"`
}

// Account is one monitored mailbox login.
type Account struct {
	Name     string `yaml:"name"`
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
}

// Telegram holds the notification bot credentials.
type Telegram struct {
	BotToken string `yaml:"bot_token"`
	ChatID   int64  `yaml:"chat_id"`
}

// KeepAlive configures the liveness HTTP endpoint used on hosting
// platforms that idle quiet services.
type KeepAlive struct {
	Enabled     bool   `yaml:"enabled"`
	Port        int    `yaml:"port"`
	ExternalURL string `yaml:"external_url"`
}

// Interval returns the poll interval as a time.Duration.
func (c *Config) Interval() time.Duration {
	return time.Duration(c.IntervalMinutes * float64(time.Minute))
}

// Senders returns the monitored sender list, split on commas,
// trimmed and lower-cased.
func (c *Config) Senders() []string {
	var out []string
	for _, s := range strings.Split(c.MonitoredSenders, ",") {
		s = strings.ToLower(strings.TrimSpace(s))
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Retention returns how long processed message IDs are kept.
func (c *Config) Retention() time.Duration {
	return time.Duration(c.RetentionDays) * 24 * time.Hour
}

// GetPort returns the keep-alive listen port, honouring the PORT
// environment variable set by the hosting platform.
func (k *KeepAlive) GetPort() int {
	if p := os.Getenv("PORT"); p != "" {
		var port int
		if _, err := fmt.Sscanf(p, "%d", &port); err == nil && port > 0 {
			return port
		}
	}
	if k.Port > 0 {
		return k.Port
	}
	return 10000
}

// GetExternalURL returns the public URL for self-pings, honouring the
// RENDER_EXTERNAL_URL environment variable set by the hosting platform.
func (k *KeepAlive) GetExternalURL() string {
	if u := os.Getenv("RENDER_EXTERNAL_URL"); u != "" {
		return u
	}
	return k.ExternalURL
}

// GetPort returns the IMAP port, defaulting to 993.
func (i *IMAP) GetPort() int {
	if i.Port > 0 {
		return i.Port
	}
	return 993
}

// GetUseTLS reports whether to use implicit TLS, defaulting to true.
func (i *IMAP) GetUseTLS() bool {
	if i.UseTLS == nil {
		return true
	}
	return *i.UseTLS
}

// GetFolder returns the mailbox folder to watch, defaulting to "INBOX".
func (i *IMAP) GetFolder() string {
	if i.Folder == "" {
		return "INBOX"
	}
	return i.Folder
}

// Load reads and parses a YAML configuration file. Environment
// references like ${EMAIL_PASSWORD} in the file are expanded, so
// secrets can stay out of the file itself.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	return Parse(data)
}

// Parse parses raw YAML configuration bytes.
func Parse(data []byte) (*Config, error) {
	cfg := &Config{
		LogLevel:        "info",
		IntervalMinutes: 3,
		RetentionDays:   7,
	}
	expanded := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.IMAP.Host == "" {
		return fmt.Errorf("imap.host is required")
	}
	if len(c.Accounts) == 0 {
		return fmt.Errorf("at least one account is required")
	}
	for i, a := range c.Accounts {
		label := a.Name
		if label == "" {
			label = fmt.Sprintf("#%d", i)
		}
		if a.Address == "" {
			return fmt.Errorf("account %s: address is required", label)
		}
		if !strings.Contains(a.Address, "@") {
			return fmt.Errorf("account %s: address must be a valid email address", label)
		}
		if a.Password == "" {
			return fmt.Errorf("account %s: password is required", label)
		}
	}
	if c.Telegram.BotToken == "" {
		return fmt.Errorf("telegram.bot_token is required")
	}
	if c.Telegram.ChatID == 0 {
		return fmt.Errorf("telegram.chat_id is required")
	}
	if len(c.Senders()) == 0 {
		return fmt.Errorf("monitored_senders is required")
	}
	// Below 15 seconds most providers start rate limiting logins.
	if c.IntervalMinutes < 0.25 {
		return fmt.Errorf("check_interval_minutes must be at least 0.25")
	}
	if c.RetentionDays < 1 {
		return fmt.Errorf("retention_days must be at least 1")
	}
	return nil
}
