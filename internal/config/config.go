// Package config loads process configuration from the environment (with an
// optional .env file) and an optional YAML file named by CONFIG_FILE.
// Environment values always override the file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/valeevte/PriceTracker/internal/database"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

type Config struct {
	LogMode string        `yaml:"log_mode"`
	LogFile string        `yaml:"log_file"`
	HTTP    HTTPConfig    `yaml:"http"`
	Store   StoreConfig   `yaml:"store"`
	Scrape  ScrapeConfig  `yaml:"scrape"`
	Metrics MetricsConfig `yaml:"metrics"`
}

type HTTPConfig struct {
	Port             string   `yaml:"port"`
	GinMode          string   `yaml:"gin_mode"`
	CORSAllowOrigins []string `yaml:"cors_allow_origins"`
}

type StoreConfig struct {
	Driver     string            `yaml:"driver"`
	SQLitePath string            `yaml:"sqlite_path"`
	Postgres   database.DBConfig `yaml:"postgres"`
}

type ScrapeConfig struct {
	URL            string        `yaml:"url"`
	ItemCap        int           `yaml:"item_cap"`
	Timeout        time.Duration `yaml:"timeout"`
	Interval       time.Duration `yaml:"interval"`
	UserAgent      string        `yaml:"user_agent"`
	CurrencySymbol string        `yaml:"currency_symbol"`
}

type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		LogMode: "development",
		HTTP: HTTPConfig{
			Port:             "8080",
			CORSAllowOrigins: []string{"*"},
		},
		Store: StoreConfig{
			Driver:     DriverPostgres,
			SQLitePath: "prices.db",
		},
		Scrape: ScrapeConfig{
			URL:            "https://books.toscrape.com/",
			ItemCap:        5,
			Timeout:        10 * time.Second,
			Interval:       24 * time.Hour,
			UserAgent:      "price-tracker/1.0",
			CurrencySymbol: "£",
		},
		Metrics: MetricsConfig{Enabled: true},
	}
}

// Load reads .env (if present), then CONFIG_FILE (if set), then the
// environment, and validates the result.
func Load() (*Config, error) {
	_ = godotenv.Load() // .env is optional

	cfg := Default()
	if path := strings.TrimSpace(os.Getenv("CONFIG_FILE")); path != "" {
		if err := cfg.LoadFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile overlays the YAML document at path onto cfg.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}
	return nil
}

// ApplyEnv overrides fields from environment variables that are set.
func (c *Config) ApplyEnv() error {
	setString(&c.LogMode, "LOG_MODE")
	setString(&c.LogFile, "LOG_FILE")
	setString(&c.HTTP.Port, "PORT")
	setString(&c.HTTP.GinMode, "GIN_MODE")
	if v := strings.TrimSpace(os.Getenv("CORS_ALLOW_ORIGINS")); v != "" {
		c.HTTP.CORSAllowOrigins = splitList(v)
	}

	setString(&c.Store.Driver, "STORE_DRIVER")
	setString(&c.Store.SQLitePath, "SQLITE_PATH")
	setString(&c.Store.Postgres.User, "DB_USER")
	setString(&c.Store.Postgres.Password, "DB_PASSWORD")
	setString(&c.Store.Postgres.Host, "DB_HOST")
	setString(&c.Store.Postgres.Port, "DB_PORT")
	setString(&c.Store.Postgres.DBName, "DB_NAME")
	setString(&c.Store.Postgres.SSLMode, "DB_SSLMODE")

	setString(&c.Scrape.URL, "SCRAPE_URL")
	setString(&c.Scrape.UserAgent, "SCRAPE_USER_AGENT")
	setString(&c.Scrape.CurrencySymbol, "PRICE_CURRENCY_SYMBOL")
	if err := setInt(&c.Scrape.ItemCap, "SCRAPE_ITEM_CAP"); err != nil {
		return err
	}
	if err := setDuration(&c.Scrape.Timeout, "SCRAPE_TIMEOUT"); err != nil {
		return err
	}
	if err := setDuration(&c.Scrape.Interval, "SCRAPE_INTERVAL"); err != nil {
		return err
	}
	return setBool(&c.Metrics.Enabled, "METRICS_ENABLED")
}

func (c *Config) Validate() error {
	var errs []error
	switch c.Store.Driver {
	case DriverPostgres:
		if !c.Store.Postgres.Complete() {
			errs = append(errs, errors.New("DB config incomplete: DB_USER/DB_HOST/DB_PORT/DB_NAME must be set"))
		}
	case DriverSQLite:
		if strings.TrimSpace(c.Store.SQLitePath) == "" {
			errs = append(errs, errors.New("SQLITE_PATH must be set for the sqlite driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown STORE_DRIVER %q", c.Store.Driver))
	}
	if strings.TrimSpace(c.Scrape.URL) == "" {
		errs = append(errs, errors.New("SCRAPE_URL must be set"))
	}
	if c.Scrape.ItemCap < 1 {
		errs = append(errs, errors.New("SCRAPE_ITEM_CAP must be at least 1"))
	}
	if c.Scrape.Timeout <= 0 {
		errs = append(errs, errors.New("SCRAPE_TIMEOUT must be positive"))
	}
	if c.Scrape.Interval <= 0 {
		errs = append(errs, errors.New("SCRAPE_INTERVAL must be positive"))
	}
	return errors.Join(errs...)
}

func setString(dst *string, name string) {
	if v := strings.TrimSpace(os.Getenv(name)); v != "" {
		*dst = v
	}
}

func setInt(dst *int, name string) error {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return nil
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	*dst = i
	return nil
}

func setDuration(dst *time.Duration, name string) error {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	*dst = d
	return nil
}

func setBool(dst *bool, name string) error {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	*dst = b
	return nil
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
