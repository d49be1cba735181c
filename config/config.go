package config

import (
	"errors"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type HTTP struct {
	Addr string `yaml:"addr"`
}

type Logging struct {
	Env       string `yaml:"env"`       // dev|stage|prod
	Service   string `yaml:"service"`   // chat-service
	Version   string `yaml:"version"`   // v0.1.0
	Backend   string `yaml:"backend"`   // std|zap
	AddSource bool   `yaml:"addSource"` // false|true
	Debug     bool   `yaml:"debug"`     // false|true
}

type Storage struct {
	Driver string `yaml:"driver"` // postgres|memory
	DSN    string `yaml:"dsn"`
}

type Auth struct {
	JWTSecret string `yaml:"jwt_secret"`
	Issuer    string `yaml:"issuer"`
}

type Chat struct {
	MaxBodyLen    int    `yaml:"max_body_len"`    // max message body in bytes
	PageLimit     int    `yaml:"page_limit"`      // max page size served by history/resync
	SendQueueSize int    `yaml:"send_queue_size"` // per-session outbound queue bound
	TypingTTL     string `yaml:"typing_ttl"`      // e.g. "5s"
	IdleTimeout   string `yaml:"idle_timeout"`    // e.g. "60s"
	DedupWindow   string `yaml:"dedup_window"`    // e.g. "10m"
}

type Config struct {
	HTTP    HTTP    `yaml:"http"`
	Logging Logging `yaml:"logging"`
	Storage Storage `yaml:"storage"`
	Auth    Auth    `yaml:"auth"`
	Chat    Chat    `yaml:"chat"`
}

func LoadConfig() (*Config, error) {
	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = "./config/config.yaml"
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.HTTP.Addr == "" {
		return errors.New("http.addr is required")
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = "postgres"
	}
	if c.Storage.Driver == "postgres" && c.Storage.DSN == "" {
		return errors.New("storage.dsn is required for the postgres driver")
	}
	if c.Auth.JWTSecret == "" {
		return errors.New("auth.jwt_secret is required")
	}
	if c.Auth.Issuer == "" {
		c.Auth.Issuer = "mesabook"
	}
	if c.Logging.Service == "" {
		c.Logging.Service = "chat-service"
	}
	if c.Logging.Env == "" {
		c.Logging.Env = "dev"
	}
	if c.Logging.Version == "" {
		c.Logging.Version = "v0.1.0"
	}
	if c.Logging.Backend == "" {
		c.Logging.Backend = "std"
	}
	if c.Chat.MaxBodyLen <= 0 {
		c.Chat.MaxBodyLen = 4000
	}
	if c.Chat.PageLimit <= 0 {
		c.Chat.PageLimit = 50
	}
	if c.Chat.SendQueueSize <= 0 {
		c.Chat.SendQueueSize = 256
	}
	return nil
}

func (c *Chat) TypingTTLOr(def time.Duration) time.Duration {
	return parseDurationOr(def, c.TypingTTL)
}

func (c *Chat) IdleTimeoutOr(def time.Duration) time.Duration {
	return parseDurationOr(def, c.IdleTimeout)
}

func (c *Chat) DedupWindowOr(def time.Duration) time.Duration {
	return parseDurationOr(def, c.DedupWindow)
}

func parseDurationOr(def time.Duration, s string) time.Duration {
	if d, err := time.ParseDuration(s); err == nil && d > 0 {
		return d
	}
	return def
}
