// Package config loads service configuration from an optional YAML file and
// CARBEX_-prefixed environment variables, env taking precedence.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const envPrefix = "CARBEX_"

type Config struct {
	Server    Server    `koanf:"server"`
	Database  Database  `koanf:"database"`
	Auth      Auth      `koanf:"auth"`
	Dashboard Dashboard `koanf:"dashboard"`
	Attest    Attest    `koanf:"attest"`
}

type Server struct {
	Addr            string        `koanf:"addr"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	IdleTimeout     time.Duration `koanf:"idle_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
	RatePerSecond   int           `koanf:"rate_per_second"`
	RateBurst       int           `koanf:"rate_burst"`
}

type Database struct {
	DSN        string `koanf:"dsn"`
	Migrations string `koanf:"migrations"`
	Seeds      string `koanf:"seeds"`
}

type Auth struct {
	Secret   string        `koanf:"secret"`
	Issuer   string        `koanf:"issuer"`
	TokenTTL time.Duration `koanf:"token_ttl"`
}

type Dashboard struct {
	PollInterval time.Duration `koanf:"poll_interval"`
	FetchTimeout time.Duration `koanf:"fetch_timeout"`
}

type Attest struct {
	DomainName        string        `koanf:"domain_name"`
	DomainVersion     string        `koanf:"domain_version"`
	ChainID           uint64        `koanf:"chain_id"`
	VerifyingContract string        `koanf:"verifying_contract"`
	TTL               time.Duration `koanf:"ttl"`
}

// Defaults returns the configuration used when nothing overrides it.
func Defaults() Config {
	return Config{
		Server: Server{
			Addr:            ":8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			RatePerSecond:   10,
			RateBurst:       20,
		},
		Database: Database{
			Migrations: "migrations",
		},
		Auth: Auth{
			Issuer:   "carbex",
			TokenTTL: 15 * time.Minute,
		},
		Dashboard: Dashboard{
			PollInterval: 30 * time.Second,
			FetchTimeout: 10 * time.Second,
		},
		Attest: Attest{
			DomainName:    "CarbexRegistry",
			DomainVersion: "1",
			ChainID:       137,
			TTL:           time.Hour,
		},
	}
}

// Load reads the optional YAML file at path, then the environment.
// CARBEX_SERVER_ADDR maps to server.addr and so on.
func Load(path string) (Config, error) {
	cfg := Defaults()
	k := koanf.New(".")

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
				return Config{}, fmt.Errorf("load config file %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return Config{}, fmt.Errorf("stat config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", envKeyMap), nil); err != nil {
		return Config{}, fmt.Errorf("load env: %w", err)
	}

	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// envKeyMap turns CARBEX_SERVER_READ_TIMEOUT into server.read_timeout:
// the first underscore separates the section, the rest stay underscored.
func envKeyMap(key string) string {
	key = strings.ToLower(strings.TrimPrefix(key, envPrefix))
	return strings.Replace(key, "_", ".", 1)
}

func (c Config) validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr is required")
	}
	if c.Dashboard.PollInterval < time.Second {
		return fmt.Errorf("dashboard.poll_interval must be at least 1s")
	}
	if c.Dashboard.FetchTimeout <= 0 {
		return fmt.Errorf("dashboard.fetch_timeout must be positive")
	}
	if c.Server.RatePerSecond <= 0 || c.Server.RateBurst <= 0 {
		return fmt.Errorf("server rate limit values must be positive")
	}
	if c.Auth.TokenTTL <= 0 {
		return fmt.Errorf("auth.token_ttl must be positive")
	}
	return nil
}
