// Package config loads node configuration from the environment, optionally
// seeded from a dotenv file.
package config

import (
	"encoding/base64"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds every tunable of a CivicLedger node.
type Config struct {
	Env      string `env:"CIVIC_ENV" envDefault:"development"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	DBPath      string `env:"CIVIC_DB_PATH" envDefault:"./civicledger_db"`
	Channel     string `env:"CIVIC_CHANNEL" envDefault:"civicchannel"`
	GenesisFile string `env:"CIVIC_GENESIS_FILE" envDefault:"genesis.yaml"`
	LedgerDEK   string `env:"CIVIC_LEDGER_DEK"` // base64 AES-256 key, empty disables at-rest encryption

	ListenAddr    string        `env:"CIVIC_LISTEN_ADDR" envDefault:":8080"`
	ShutdownGrace time.Duration `env:"CIVIC_SHUTDOWN_GRACE" envDefault:"10s"`
	EnableHTTPS   bool          `env:"ENABLE_HTTPS" envDefault:"false"`
	TLSCertPath   string        `env:"TLS_CERT_PATH"`
	TLSKeyPath    string        `env:"TLS_KEY_PATH"`
	RateLimit     int           `env:"RATE_LIMIT_PER_MIN" envDefault:"3000"` // requests per minute per client, 0 disables

	JWTSecret string `env:"CIVIC_JWT_SECRET"`
	JWTIssuer string `env:"CIVIC_JWT_ISSUER" envDefault:"civicledger-ca"`

	Locale      string `env:"CIVIC_LOCALE" envDefault:"en"`
	EventBuffer int    `env:"CIVIC_EVENT_BUFFER" envDefault:"1000"`
}

// Load reads dotenvFile (when present) into the process environment and then
// parses the environment into a Config.
func Load(dotenvFile string) (*Config, error) {
	if dotenvFile != "" {
		if err := godotenv.Load(dotenvFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", dotenvFile, err)
		}
	}
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	if c.JWTSecret == "" {
		return errors.New("CIVIC_JWT_SECRET must be set")
	}
	if c.EnableHTTPS && (c.TLSCertPath == "" || c.TLSKeyPath == "") {
		return errors.New("ENABLE_HTTPS requires TLS_CERT_PATH and TLS_KEY_PATH")
	}
	if c.RateLimit < 0 {
		return errors.New("RATE_LIMIT_PER_MIN must not be negative")
	}
	if c.EventBuffer <= 0 {
		return errors.New("CIVIC_EVENT_BUFFER must be positive")
	}
	if _, err := c.DataKey(); err != nil {
		return err
	}
	return nil
}

// DataKey decodes the at-rest encryption key. A nil key means encryption is
// disabled.
func (c *Config) DataKey() ([]byte, error) {
	if c.LedgerDEK == "" {
		return nil, nil
	}
	dek, err := base64.StdEncoding.DecodeString(c.LedgerDEK)
	if err != nil {
		return nil, fmt.Errorf("decode CIVIC_LEDGER_DEK: %w", err)
	}
	if len(dek) != 32 {
		return nil, errors.New("CIVIC_LEDGER_DEK must be 32 bytes (base64-encoded)")
	}
	return dek, nil
}
