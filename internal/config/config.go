// Package config provides configuration management functionality.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Defaults applied when a value is missing or unusable.
const (
	DefaultStaleThreshold      = 3
	DefaultPriceAlertThreshold = 10.0
	DefaultMinHoldings         = 2
	DefaultMinMentions         = 1
	DefaultAlertDisplayLimit   = 10
	DefaultWorkers             = 4
	DefaultPolitenessDelay     = 2 * time.Second
	DefaultFetchTimeout        = 30 * time.Second
	DefaultFetchRetries        = 3
	DefaultRetryBackoff        = time.Second
	DefaultMaxArticles         = 10
	DefaultDataromaBaseURL     = "https://www.dataroma.com/m"
	DefaultGeminiModel         = "gemini-2.0-flash"
	DefaultResendFromEmail     = "onboarding@resend.dev"
	DefaultR2ObjectKey         = "stocks.json"
	DefaultPort                = 8080
)

// Config holds application configuration
type Config struct {
	DataDir     string // Base directory for the state database and output files (always absolute)
	SourcesFile string
	LogLevel    string
	LogPretty   bool
	Port        int

	ForceFullRefresh bool
	StaleThreshold   int

	PriceAlertThreshold    float64
	CrossSourceMinHoldings int
	CrossSourceMinMentions int
	AlertDisplayLimit      int
	AlertEmail             string // Recipient for built-in alerts and rules without a target

	Workers         int
	PolitenessDelay time.Duration
	FetchTimeout    time.Duration
	FetchRetries    int
	RetryBackoff    time.Duration
	MaxArticles     int

	DataromaBaseURL string
	GeminiAPIKey    string
	GeminiModel     string

	ResendAPIKey    string
	ResendFromEmail string
	DashboardURL    string

	R2 R2Config

	Sources *Sources

	// Warnings lists values that were replaced by defaults during validation
	Warnings []string
}

// R2Config holds the optional S3-compatible publish target
type R2Config struct {
	Endpoint        string
	Bucket          string
	AccessKeyID     string
	SecretAccessKey string
	ObjectKey       string
}

// Enabled reports whether every setting needed for an upload is present.
func (r R2Config) Enabled() bool {
	return r.Endpoint != "" && r.Bucket != "" && r.AccessKeyID != "" && r.SecretAccessKey != ""
}

// Load reads configuration from environment variables and the sources file
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	dataDir := getEnv("CONSENSUS_DATA_DIR", "./data")
	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}
	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	env := &envReader{}
	cfg := &Config{
		DataDir:     absDataDir,
		SourcesFile: getEnv("CONSENSUS_SOURCES_FILE", filepath.Join(absDataDir, "sources.yaml")),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		LogPretty:   env.boolVar("LOG_PRETTY", true),
		Port:        env.intVar("CONSENSUS_PORT", DefaultPort),

		ForceFullRefresh: env.boolVar("CONSENSUS_FORCE_FULL_REFRESH", false),
		StaleThreshold:   env.intVar("CONSENSUS_STALE_THRESHOLD", DefaultStaleThreshold),

		PriceAlertThreshold:    env.floatVar("CONSENSUS_PRICE_ALERT_THRESHOLD", DefaultPriceAlertThreshold),
		CrossSourceMinHoldings: env.intVar("CONSENSUS_CROSS_SOURCE_MIN_HOLDINGS", DefaultMinHoldings),
		CrossSourceMinMentions: env.intVar("CONSENSUS_CROSS_SOURCE_MIN_MENTIONS", DefaultMinMentions),
		AlertDisplayLimit:      env.intVar("CONSENSUS_ALERT_DISPLAY_LIMIT", DefaultAlertDisplayLimit),
		AlertEmail:             getEnv("ALERT_EMAIL", ""),

		Workers:         env.intVar("CONSENSUS_WORKERS", DefaultWorkers),
		PolitenessDelay: env.durationVar("CONSENSUS_POLITENESS_DELAY", DefaultPolitenessDelay),
		FetchTimeout:    env.durationVar("CONSENSUS_FETCH_TIMEOUT", DefaultFetchTimeout),
		FetchRetries:    env.intVar("CONSENSUS_FETCH_RETRIES", DefaultFetchRetries),
		RetryBackoff:    env.durationVar("CONSENSUS_RETRY_BACKOFF", DefaultRetryBackoff),
		MaxArticles:     env.intVar("CONSENSUS_MAX_ARTICLES", DefaultMaxArticles),

		DataromaBaseURL: strings.TrimRight(getEnv("DATAROMA_BASE_URL", DefaultDataromaBaseURL), "/"),
		GeminiAPIKey:    getEnv("GEMINI_API_KEY", ""),
		GeminiModel:     getEnv("GEMINI_MODEL", DefaultGeminiModel),

		ResendAPIKey:    getEnv("RESEND_API_KEY", ""),
		ResendFromEmail: getEnv("RESEND_FROM_EMAIL", DefaultResendFromEmail),
		DashboardURL:    getEnv("DASHBOARD_URL", ""),

		R2: R2Config{
			Endpoint:        getEnv("R2_ENDPOINT", ""),
			Bucket:          getEnv("R2_BUCKET", ""),
			AccessKeyID:     getEnv("R2_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("R2_SECRET_ACCESS_KEY", ""),
			ObjectKey:       getEnv("R2_OBJECT_KEY", DefaultR2ObjectKey),
		},
	}

	cfg.Warnings = append(cfg.Warnings, env.warnings...)

	sources, err := LoadSources(cfg.SourcesFile)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
		cfg.Warnings = append(cfg.Warnings, fmt.Sprintf("sources file %s not found, no publications or rules configured", cfg.SourcesFile))
		sources = &Sources{}
	}
	cfg.Sources = sources
	if sources.Settings.PriceAlertThreshold > 0 {
		cfg.PriceAlertThreshold = sources.Settings.PriceAlertThreshold
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate fails only on unusable values; bad thresholds are replaced with
// defaults and recorded in Warnings.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("data directory is required")
	}

	c.defaultInt("CONSENSUS_STALE_THRESHOLD", &c.StaleThreshold, 1, DefaultStaleThreshold)
	c.defaultInt("CONSENSUS_CROSS_SOURCE_MIN_HOLDINGS", &c.CrossSourceMinHoldings, 1, DefaultMinHoldings)
	c.defaultInt("CONSENSUS_CROSS_SOURCE_MIN_MENTIONS", &c.CrossSourceMinMentions, 1, DefaultMinMentions)
	c.defaultInt("CONSENSUS_ALERT_DISPLAY_LIMIT", &c.AlertDisplayLimit, 1, DefaultAlertDisplayLimit)
	c.defaultInt("CONSENSUS_WORKERS", &c.Workers, 1, DefaultWorkers)
	c.defaultInt("CONSENSUS_FETCH_RETRIES", &c.FetchRetries, 0, DefaultFetchRetries)
	c.defaultInt("CONSENSUS_MAX_ARTICLES", &c.MaxArticles, 1, DefaultMaxArticles)

	if c.PriceAlertThreshold <= 0 {
		c.warnf("CONSENSUS_PRICE_ALERT_THRESHOLD %v is not positive, using %v", c.PriceAlertThreshold, DefaultPriceAlertThreshold)
		c.PriceAlertThreshold = DefaultPriceAlertThreshold
	}
	if c.PolitenessDelay < 0 {
		c.warnf("CONSENSUS_POLITENESS_DELAY %v is negative, using %v", c.PolitenessDelay, DefaultPolitenessDelay)
		c.PolitenessDelay = DefaultPolitenessDelay
	}
	if c.FetchTimeout <= 0 {
		c.warnf("CONSENSUS_FETCH_TIMEOUT %v is not positive, using %v", c.FetchTimeout, DefaultFetchTimeout)
		c.FetchTimeout = DefaultFetchTimeout
	}
	if c.RetryBackoff < 0 {
		c.warnf("CONSENSUS_RETRY_BACKOFF %v is negative, using %v", c.RetryBackoff, DefaultRetryBackoff)
		c.RetryBackoff = DefaultRetryBackoff
	}
	if c.Port <= 0 || c.Port > 65535 {
		c.warnf("CONSENSUS_PORT %d is out of range, using %d", c.Port, DefaultPort)
		c.Port = DefaultPort
	}

	return nil
}

func (c *Config) defaultInt(name string, v *int, min, def int) {
	if *v < min {
		c.warnf("%s %d is below %d, using %d", name, *v, min, def)
		*v = def
	}
}

func (c *Config) warnf(format string, args ...any) {
	c.Warnings = append(c.Warnings, fmt.Sprintf(format, args...))
}

// StateDBPath returns the location of the state database
func (c *Config) StateDBPath() string {
	return filepath.Join(c.DataDir, "state.db")
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// envReader parses typed variables. Unparseable values keep the default
// and are recorded as warnings.
type envReader struct {
	warnings []string
}

func (r *envReader) lookup(key string, parse func(string) error) {
	value := os.Getenv(key)
	if value == "" {
		return
	}
	if err := parse(value); err != nil {
		r.warnings = append(r.warnings, fmt.Sprintf("%s %q is not valid, using default", key, value))
	}
}

func (r *envReader) intVar(key string, defaultValue int) int {
	out := defaultValue
	r.lookup(key, func(v string) error {
		n, err := strconv.Atoi(v)
		if err == nil {
			out = n
		}
		return err
	})
	return out
}

func (r *envReader) floatVar(key string, defaultValue float64) float64 {
	out := defaultValue
	r.lookup(key, func(v string) error {
		f, err := strconv.ParseFloat(v, 64)
		if err == nil {
			out = f
		}
		return err
	})
	return out
}

func (r *envReader) boolVar(key string, defaultValue bool) bool {
	out := defaultValue
	r.lookup(key, func(v string) error {
		b, err := strconv.ParseBool(v)
		if err == nil {
			out = b
		}
		return err
	})
	return out
}

func (r *envReader) durationVar(key string, defaultValue time.Duration) time.Duration {
	out := defaultValue
	r.lookup(key, func(v string) error {
		d, err := time.ParseDuration(v)
		if err == nil {
			out = d
		}
		return err
	})
	return out
}
