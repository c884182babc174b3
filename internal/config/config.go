// Package config loads the server configuration from a single YAML file
// named by the --config flag or the MAILBOX_CONFIG environment variable.
// Fields missing from the file keep their defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const EnvConfigPath = "MAILBOX_CONFIG"

const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
	BackendMongo  = "mongo"
)

type (
	Config struct {
		Server  ServerConfig  `yaml:"server"`
		Session SessionConfig `yaml:"session"`
		Storage StorageConfig `yaml:"storage"`
		Mongo   MongoConfig   `yaml:"mongo"`
		Redis   RedisConfig   `yaml:"redis"`
		Log     LogConfig     `yaml:"log"`
	}

	ServerConfig struct {
		Addr string `yaml:"addr"`
		// MaxBodyBytes limits one request document.
		MaxBodyBytes int64 `yaml:"max_body_bytes"`
		// AllowedOrigins lists websocket origins; empty allows same host only.
		AllowedOrigins  []string      `yaml:"allowed_origins"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	}

	SessionConfig struct {
		// Backend is memory or redis.
		Backend      string        `yaml:"backend"`
		CookieName   string        `yaml:"cookie_name"`
		SecureCookie bool          `yaml:"secure_cookie"`
		IdleTimeout  time.Duration `yaml:"idle_timeout"`
		// ChallengeTTL bounds the time between auth and auth_signed.
		ChallengeTTL time.Duration `yaml:"challenge_ttl"`
		RedisPrefix  string        `yaml:"redis_prefix"`
	}

	StorageConfig struct {
		// Backend is memory or mongo.
		Backend     string `yaml:"backend"`
		SetupKeyDir string `yaml:"setup_key_dir"`
	}

	MongoConfig struct {
		URI            string        `yaml:"uri"`
		Database       string        `yaml:"database"`
		ConnectTimeout time.Duration `yaml:"connect_timeout"`
	}

	RedisConfig struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	}

	LogConfig struct {
		Level       string `yaml:"level"`
		Development bool   `yaml:"development"`
	}
)

func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            "localhost:9090",
			MaxBodyBytes:    1 << 20,
			ShutdownTimeout: 10 * time.Second,
		},
		Session: SessionConfig{
			Backend:      BackendMemory,
			CookieName:   "mailbox_session",
			IdleTimeout:  30 * time.Minute,
			ChallengeTTL: 5 * time.Minute,
			RedisPrefix:  "mailbox:session:",
		},
		Storage: StorageConfig{
			Backend:     BackendMongo,
			SetupKeyDir: "./accounts",
		},
		Mongo: MongoConfig{
			URI:            "mongodb://localhost:27017",
			Database:       "mailbox",
			ConnectTimeout: 10 * time.Second,
		},
		Redis: RedisConfig{
			Addr: "localhost:6379",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads path, or the file named by MAILBOX_CONFIG when path is empty.
// With neither set the defaults are returned.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv(EnvConfigPath)
	}

	cfg := Default()
	if path == "" {
		return cfg, cfg.Validate()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	var errs []error

	if c.Server.Addr == "" {
		errs = append(errs, errors.New("server.addr is required"))
	}
	if c.Server.MaxBodyBytes <= 0 {
		errs = append(errs, errors.New("server.max_body_bytes must be positive"))
	}
	switch c.Session.Backend {
	case BackendMemory, BackendRedis:
	default:
		errs = append(errs, fmt.Errorf("session.backend %q: want memory or redis", c.Session.Backend))
	}
	if c.Session.CookieName == "" {
		errs = append(errs, errors.New("session.cookie_name is required"))
	}
	if c.Session.IdleTimeout <= 0 {
		errs = append(errs, errors.New("session.idle_timeout must be positive"))
	}
	if c.Session.ChallengeTTL < 0 {
		errs = append(errs, errors.New("session.challenge_ttl must not be negative"))
	}
	switch c.Storage.Backend {
	case BackendMemory, BackendMongo:
	default:
		errs = append(errs, fmt.Errorf("storage.backend %q: want memory or mongo", c.Storage.Backend))
	}
	if c.Storage.SetupKeyDir == "" {
		errs = append(errs, errors.New("storage.setup_key_dir is required"))
	}
	if c.Storage.Backend == BackendMongo && (c.Mongo.URI == "" || c.Mongo.Database == "") {
		errs = append(errs, errors.New("mongo.uri and mongo.database are required for the mongo backend"))
	}
	if c.Session.Backend == BackendRedis && c.Redis.Addr == "" {
		errs = append(errs, errors.New("redis.addr is required for the redis session backend"))
	}
	return errors.Join(errs...)
}
