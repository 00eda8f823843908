package config

import (
	"encoding/base64"
	"errors"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type HTTP struct {
	Addr        string   `yaml:"addr"`
	CORSOrigins []string `yaml:"corsOrigins"`
}

type Logging struct {
	Env       string `yaml:"env"`       // dev|prod
	Service   string `yaml:"service"`   // meeting-service
	Version   string `yaml:"version"`   // v0.1.0
	Backend   string `yaml:"backend"`   // std|zap
	AddSource bool   `yaml:"addSource"` // false|true
	Debug     bool   `yaml:"debug"`     // false|true
}

type Postgres struct {
	DSN string `yaml:"dsn"`
}

type Auth struct {
	// SigningSecret — base64-encoded HMAC secret shared with the identity service.
	SigningSecret string `yaml:"signingSecret"`
	Issuer        string `yaml:"issuer"`
}

type Meeting struct {
	Capacity        int    `yaml:"capacity"`        // max concurrent active participants
	MaxMessageLen   int    `yaml:"maxMessageLen"`   // chat content limit, chars
	SweepInterval   string `yaml:"sweepInterval"`   // expiry sweep period
	JoinLockTimeout string `yaml:"joinLockTimeout"` // bounded wait on the per-meeting lock
}

type Config struct {
	HTTP     HTTP     `yaml:"http"`
	Logging  Logging  `yaml:"logging"`
	Postgres Postgres `yaml:"postgres"`
	Auth     Auth     `yaml:"auth"`
	Meeting  Meeting  `yaml:"meeting"`
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
	if c.Postgres.DSN == "" {
		return errors.New("postgres.dsn is required")
	}
	if c.Auth.SigningSecret == "" {
		return errors.New("auth.signingSecret is required")
	}
	if _, err := c.SigningKey(); err != nil {
		return errors.New("auth.signingSecret must be base64")
	}
	if c.Logging.Service == "" {
		c.Logging.Service = "meeting-service"
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
	if c.Meeting.Capacity <= 0 {
		c.Meeting.Capacity = 50
	}
	if c.Meeting.MaxMessageLen <= 0 {
		c.Meeting.MaxMessageLen = 1000
	}
	if len(c.HTTP.CORSOrigins) == 0 {
		c.HTTP.CORSOrigins = []string{"http://localhost:5173", "http://127.0.0.1:5173"}
	}
	return nil
}

// SigningKey decodes auth.signingSecret from base64.
func (c *Config) SigningKey() ([]byte, error) {
	return base64.StdEncoding.DecodeString(c.Auth.SigningSecret)
}

func (c *Config) SweepInterval() time.Duration {
	return parseDurationOr(2*time.Minute, c.Meeting.SweepInterval)
}

func (c *Config) JoinLockTimeout() time.Duration {
	return parseDurationOr(3*time.Second, c.Meeting.JoinLockTimeout)
}

// helper для парсинга timeout-ов
func parseDurationOr(def time.Duration, s string) time.Duration {
	if d, err := time.ParseDuration(s); err == nil && d > 0 {
		return d
	}
	return def
}
