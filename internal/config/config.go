package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"
)

const (
	SaveModeDirect = "direct"
	SaveModeQueue  = "queue"
)

// Backends lists the accepted DATA_BACKEND values.
var Backends = []string{"webapp", "sheets", "sqlite", "postgres", "memory"}

type Config struct {
	// HTTP Server
	Port        string
	HTTPTimeout time.Duration

	// Backend selection
	DataBackend   string
	DataDirectory string

	// Web-app endpoint
	EndpointURL string

	// Database
	SQLiteDBPath string
	PostgresDSN  string

	// Saves
	SaveMode string

	// AMQP
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Google Sheets
	GoogleSpreadsheetID     string
	GoogleTransactionsSheet string
	GoogleBudgetsSheet      string

	// Domain
	Timezone            string
	Accounts            []string
	ChartMinFraction    float64
	MaintenanceInterval time.Duration

	// Logging
	LogLevel  string
	LogFormat string
}

func Load() *Config {
	cfg := &Config{
		Port:        getEnv("PORT", "8081"),
		HTTPTimeout: getEnvDuration("HTTP_TIMEOUT", 30*time.Second),

		DataBackend:   strings.ToLower(getEnv("DATA_BACKEND", "memory")),
		DataDirectory: getEnv("DATA_DIRECTORY", "data"),

		EndpointURL: getEnv("TALLY_ENDPOINT_URL", ""),

		SQLiteDBPath: getEnv("SQLITE_DB_PATH", "./data/tally.db"),
		PostgresDSN:  getEnv("POSTGRES_DSN", ""),

		SaveMode: strings.ToLower(getEnv("SAVE_MODE", SaveModeDirect)),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "tally"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "tally_snapshots"),

		GoogleSpreadsheetID:     getEnv("GOOGLE_SPREADSHEET_ID", ""),
		GoogleTransactionsSheet: getEnv("GOOGLE_TRANSACTIONS_SHEET", "Transactions"),
		GoogleBudgetsSheet:      getEnv("GOOGLE_BUDGETS_SHEET", "Budgets"),

		Timezone:            getEnv("TIMEZONE", "Local"),
		Accounts:            getEnvList("ACCOUNTS", []string{"Joint", "Primary", "Partner"}),
		ChartMinFraction:    getEnvFloat("CHART_MIN_FRACTION", 0.04),
		MaintenanceInterval: getEnvDuration("MAINTENANCE_INTERVAL", time.Hour),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "text"),
	}

	return cfg
}

// Location resolves Timezone. Callers run Validate first.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	if c.HTTPTimeout < time.Second {
		errors = append(errors, fmt.Sprintf("invalid HTTP timeout %v: must be at least 1 second", c.HTTPTimeout))
	}

	if !slices.Contains(Backends, c.DataBackend) {
		errors = append(errors, fmt.Sprintf("invalid data backend '%s': must be one of %v", c.DataBackend, Backends))
	}

	switch c.DataBackend {
	case "webapp":
		if c.EndpointURL == "" {
			errors = append(errors, "TALLY_ENDPOINT_URL is required when using webapp backend")
		} else if u, err := url.Parse(c.EndpointURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			errors = append(errors, fmt.Sprintf("invalid TALLY_ENDPOINT_URL '%s': must be an http(s) URL", c.EndpointURL))
		}
	case "sqlite":
		if c.SQLiteDBPath == "" {
			errors = append(errors, "SQLite database path cannot be empty when using sqlite backend")
		} else {
			dir := filepath.Dir(c.SQLiteDBPath)
			if dir != "." && dir != "" {
				if _, err := os.Stat(dir); os.IsNotExist(err) {
					if err := os.MkdirAll(dir, 0o755); err != nil {
						errors = append(errors, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
					}
				}
			}
		}
	case "postgres":
		if c.PostgresDSN == "" {
			errors = append(errors, "POSTGRES_DSN is required when using postgres backend")
		}
	case "sheets":
		if c.GoogleSpreadsheetID == "" {
			errors = append(errors, "Google Spreadsheet ID is required when using sheets backend")
		}
	}

	switch c.SaveMode {
	case SaveModeDirect:
	case SaveModeQueue:
		if c.AMQPURL == "" {
			errors = append(errors, "AMQP_URL is required when SAVE_MODE is queue")
		}
	default:
		errors = append(errors, fmt.Sprintf("invalid save mode '%s': must be '%s' or '%s'", c.SaveMode, SaveModeDirect, SaveModeQueue))
	}

	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPQueue == "" {
			errors = append(errors, "AMQP queue name cannot be empty when AMQP URL is provided")
		}
	}

	if _, err := time.LoadLocation(c.Timezone); err != nil {
		errors = append(errors, fmt.Sprintf("invalid timezone '%s': %v", c.Timezone, err))
	}

	if len(c.Accounts) == 0 {
		errors = append(errors, "ACCOUNTS must list at least one account")
	}

	if c.ChartMinFraction < 0 || c.ChartMinFraction >= 1 {
		errors = append(errors, fmt.Sprintf("invalid chart min fraction %v: must be in [0, 1)", c.ChartMinFraction))
	}

	if c.MaintenanceInterval < time.Minute {
		errors = append(errors, fmt.Sprintf("invalid maintenance interval %v: must be at least 1 minute", c.MaintenanceInterval))
	} else if c.MaintenanceInterval > 24*time.Hour {
		errors = append(errors, fmt.Sprintf("invalid maintenance interval %v: must be at most 24 hours", c.MaintenanceInterval))
	}

	if f := strings.ToLower(c.LogFormat); f != "text" && f != "json" {
		errors = append(errors, fmt.Sprintf("invalid log format '%s': must be 'text' or 'json'", c.LogFormat))
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// getEnvList splits a comma separated value, dropping empty items.
func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
