package config

import (
	"fmt"
	"time"

	env "github.com/caarlos0/env/v11"

	"github.com/josh-kwaku/payment-ledger/internal/domain"
)

const (
	StoreDriverPostgres = "postgres"
	StoreDriverSQLite   = "sqlite"
	StoreDriverMemory   = "memory"
)

type Config struct {
	StoreDriver string `env:"STORE_DRIVER" envDefault:"postgres"`
	DatabaseURL string `env:"DATABASE_URL"`
	SQLitePath  string `env:"SQLITE_PATH" envDefault:"data/ledger.db"`

	JWTSecret   string `env:"JWT_SECRET,required,notEmpty"`
	LedgerOwner string `env:"LEDGER_OWNER,required,notEmpty"`

	CustodyURL       string `env:"CUSTODY_URL" envDefault:"http://custody:8081"`
	CustodyTimeoutMS int    `env:"CUSTODY_TIMEOUT_MS" envDefault:"5000"`

	WebhookURL          string `env:"WEBHOOK_URL"`
	WebhookSecret       string `env:"WEBHOOK_SECRET"`
	DispatchIntervalMS  int    `env:"DISPATCH_INTERVAL_MS" envDefault:"1000"`
	DispatchMaxAttempts int    `env:"DISPATCH_MAX_ATTEMPTS" envDefault:"5"`

	MaxDescriptionBytes int    `env:"MAX_DESCRIPTION_BYTES" envDefault:"256"`
	CurrencySymbol      string `env:"CURRENCY_SYMBOL" envDefault:"DOT"`
	CurrencyDecimals    int32  `env:"CURRENCY_DECIMALS" envDefault:"10"`

	Port     int    `env:"PORT" envDefault:"8080"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
	AppEnv   string `env:"APP_ENV" envDefault:"production"`

	DBMaxOpenConns     int `env:"DB_MAX_OPEN_CONNS" envDefault:"25"`
	DBMaxIdleConns     int `env:"DB_MAX_IDLE_CONNS" envDefault:"10"`
	DBConnMaxLifetimeS int `env:"DB_CONN_MAX_LIFETIME_S" envDefault:"300"`
	DBConnMaxIdleTimeS int `env:"DB_CONN_MAX_IDLE_TIME_S" envDefault:"60"`
}

func Load() (*Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.StoreDriver {
	case StoreDriverPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for store driver %q", c.StoreDriver)
		}
	case StoreDriverSQLite:
		if c.SQLitePath == "" {
			return fmt.Errorf("SQLITE_PATH is required for store driver %q", c.StoreDriver)
		}
	case StoreDriverMemory:
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver)
	}

	if _, err := domain.ParseAccount(c.LedgerOwner); err != nil {
		return fmt.Errorf("LEDGER_OWNER: %w", err)
	}
	if c.WebhookURL != "" && c.WebhookSecret == "" {
		return fmt.Errorf("WEBHOOK_SECRET is required when WEBHOOK_URL is set")
	}
	if c.DispatchIntervalMS <= 0 {
		return fmt.Errorf("DISPATCH_INTERVAL_MS must be positive, got %d", c.DispatchIntervalMS)
	}
	if c.DispatchMaxAttempts <= 0 {
		return fmt.Errorf("DISPATCH_MAX_ATTEMPTS must be positive, got %d", c.DispatchMaxAttempts)
	}
	if c.CustodyTimeoutMS <= 0 {
		return fmt.Errorf("CUSTODY_TIMEOUT_MS must be positive, got %d", c.CustodyTimeoutMS)
	}
	if c.CurrencyDecimals < 0 || c.CurrencyDecimals > 30 {
		return fmt.Errorf("CURRENCY_DECIMALS must be within 0..30, got %d", c.CurrencyDecimals)
	}
	return nil
}

func (c *Config) Owner() domain.Account {
	owner, _ := domain.ParseAccount(c.LedgerOwner)
	return owner
}

func (c *Config) Denomination() domain.Denomination {
	return domain.Denomination{Symbol: c.CurrencySymbol, Decimals: c.CurrencyDecimals}
}

func (c *Config) CustodyTimeout() time.Duration {
	return time.Duration(c.CustodyTimeoutMS) * time.Millisecond
}

func (c *Config) DispatchInterval() time.Duration {
	return time.Duration(c.DispatchIntervalMS) * time.Millisecond
}
