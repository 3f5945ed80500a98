// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Accepted values for Config.Solver and Config.Relatives.
var (
	Solvers       = []string{"active_set", "projected_gradient"}
	RelativeModes = []string{"ratio", "legacy_percent"}
	Timeframes    = []string{"day", "hour", "minute"}
)

// Config holds application configuration
type Config struct {
	DataDir   string // Base directory for databases and reports (always absolute)
	LogLevel  string
	LogPretty bool
	Port      int
	DevMode   bool
	// Browser origins allowed by CORS and the event websocket, e.g. https://*.example.com
	CORSOrigins []string

	// Engine
	Epsilon   float64
	Solver    string
	Relatives string // ratio or legacy_percent

	// Market data
	Network          string
	Timeframe        string
	Aggregate        int
	CandleLimit      int
	FetchParallelism int
	RetentionDays    int // Candles older than this are pruned daily; 0 keeps everything

	// Universe
	WhitelistPath string
	Whitelist     []string // Inline whitelist from the universe file, takes precedence over WhitelistPath
	TokensPath    string
	Exclude       []string
	CashSymbol    string
	UniverseFile  string

	// Scheduling and reporting
	Schedule       string
	ReportTimezone string

	GeckoTerminal GeckoTerminalConfig
	Birdeye       BirdeyeConfig
	R2            R2Config
}

// GeckoTerminalConfig configures the market data API client.
type GeckoTerminalConfig struct {
	BaseURL           string
	RequestsPerMinute int
}

// BirdeyeConfig configures the token list API client.
type BirdeyeConfig struct {
	APIKey  string
	BaseURL string
}

// R2Config holds Cloudflare R2 credentials for report publishing.
type R2Config struct {
	AccountID       string
	AccessKeyID     string
	SecretAccessKey string
	Bucket          string
}

// Enabled reports whether every credential needed to publish is present.
func (c R2Config) Enabled() bool {
	return c.AccountID != "" && c.AccessKeyID != "" && c.SecretAccessKey != "" && c.Bucket != ""
}

// UniverseFile is the optional YAML override for the traded universe and engine settings.
type UniverseFile struct {
	Whitelist  []string `yaml:"whitelist"`
	Exclude    []string `yaml:"exclude"`
	CashSymbol string   `yaml:"cash_symbol"`
	Epsilon    *float64 `yaml:"epsilon"`
	Solver     string   `yaml:"solver"`
	Relatives  string   `yaml:"relatives"`
	Network    string   `yaml:"network"`
	Timeframe  string   `yaml:"timeframe"`
	Aggregate  int      `yaml:"aggregate"`
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	dataDir, err := filepath.Abs(getEnv("FTQL_DATA_DIR", "./data"))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	cfg := &Config{
		DataDir:   dataDir,
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogPretty: getEnvAsBool("LOG_PRETTY", true),
		Port:      getEnvAsInt("FTQL_PORT", 8001),
		DevMode:   getEnvAsBool("DEV_MODE", false),

		CORSOrigins: getEnvAsStrings("FTQL_CORS_ORIGINS", []string{"http://localhost:*", "http://127.0.0.1:*"}),

		Epsilon:   getEnvAsFloat("FTQL_EPSILON", 0),
		Solver:    getEnv("FTQL_SOLVER", "active_set"),
		Relatives: getEnv("FTQL_RELATIVES", "ratio"),

		Network:          getEnv("FTQL_NETWORK", "solana"),
		Timeframe:        getEnv("FTQL_TIMEFRAME", "hour"),
		Aggregate:        getEnvAsInt("FTQL_AGGREGATE", 1),
		CandleLimit:      getEnvAsInt("FTQL_CANDLE_LIMIT", 1000),
		FetchParallelism: getEnvAsInt("FTQL_FETCH_PARALLELISM", 4),
		RetentionDays:    getEnvAsInt("FTQL_RETENTION_DAYS", 90),

		WhitelistPath: getEnv("FTQL_WHITELIST", "./whitelist.json"),
		TokensPath:    getEnv("FTQL_TOKENS_FILE", "./tokens.json"),
		Exclude:       getEnvAsList("FTQL_EXCLUDE", []string{"WSOL", "USDC"}),
		CashSymbol:    getEnv("FTQL_CASH_SYMBOL", "USDC"),
		UniverseFile:  getEnv("FTQL_UNIVERSE_FILE", ""),

		Schedule:       getEnv("FTQL_SCHEDULE", "@hourly"),
		ReportTimezone: getEnv("FTQL_REPORT_TZ", "Europe/Paris"),

		GeckoTerminal: GeckoTerminalConfig{
			BaseURL:           getEnv("GECKOTERMINAL_BASE_URL", "https://api.geckoterminal.com/api/v2"),
			RequestsPerMinute: getEnvAsInt("GECKOTERMINAL_RPM", 30),
		},
		Birdeye: BirdeyeConfig{
			APIKey:  getEnv("BIRDEYE_API_KEY", ""),
			BaseURL: getEnv("BIRDEYE_BASE_URL", "https://public-api.birdeye.so"),
		},
		R2: R2Config{
			AccountID:       getEnv("R2_ACCOUNT_ID", ""),
			AccessKeyID:     getEnv("R2_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("R2_SECRET_ACCESS_KEY", ""),
			Bucket:          getEnv("R2_BUCKET", ""),
		},
	}

	if cfg.UniverseFile != "" {
		universe, err := LoadUniverseFile(cfg.UniverseFile)
		if err != nil {
			return nil, err
		}
		cfg.ApplyUniverse(universe)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadUniverseFile parses a YAML universe file.
func LoadUniverseFile(path string) (*UniverseFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read universe file: %w", err)
	}
	var universe UniverseFile
	if err := yaml.Unmarshal(data, &universe); err != nil {
		return nil, fmt.Errorf("failed to parse universe file %s: %w", path, err)
	}
	return &universe, nil
}

// ApplyUniverse overlays the non-empty fields of a universe file.
func (c *Config) ApplyUniverse(u *UniverseFile) {
	if len(u.Whitelist) > 0 {
		c.Whitelist = normalizeSymbols(u.Whitelist)
	}
	if len(u.Exclude) > 0 {
		c.Exclude = normalizeSymbols(u.Exclude)
	}
	if u.CashSymbol != "" {
		c.CashSymbol = strings.ToUpper(u.CashSymbol)
	}
	if u.Epsilon != nil {
		c.Epsilon = *u.Epsilon
	}
	if u.Solver != "" {
		c.Solver = u.Solver
	}
	if u.Relatives != "" {
		c.Relatives = u.Relatives
	}
	if u.Network != "" {
		c.Network = u.Network
	}
	if u.Timeframe != "" {
		c.Timeframe = u.Timeframe
	}
	if u.Aggregate > 0 {
		c.Aggregate = u.Aggregate
	}
}

// Validate checks that the configuration can drive a run
func (c *Config) Validate() error {
	if c.Epsilon < 0 {
		return fmt.Errorf("FTQL_EPSILON must be non-negative, got %g", c.Epsilon)
	}
	if !contains(Solvers, c.Solver) {
		return fmt.Errorf("unknown solver %q (expected one of %s)", c.Solver, strings.Join(Solvers, ", "))
	}
	if !contains(RelativeModes, c.Relatives) {
		return fmt.Errorf("unknown relatives mode %q (expected one of %s)", c.Relatives, strings.Join(RelativeModes, ", "))
	}
	if !contains(Timeframes, c.Timeframe) {
		return fmt.Errorf("unknown timeframe %q (expected one of %s)", c.Timeframe, strings.Join(Timeframes, ", "))
	}
	if c.Aggregate <= 0 {
		return fmt.Errorf("FTQL_AGGREGATE must be positive, got %d", c.Aggregate)
	}
	if c.CandleLimit <= 0 {
		return fmt.Errorf("FTQL_CANDLE_LIMIT must be positive, got %d", c.CandleLimit)
	}
	if c.RetentionDays < 0 {
		return fmt.Errorf("FTQL_RETENTION_DAYS must be non-negative, got %d", c.RetentionDays)
	}
	if c.GeckoTerminal.RequestsPerMinute <= 0 {
		return fmt.Errorf("GECKOTERMINAL_RPM must be positive, got %d", c.GeckoTerminal.RequestsPerMinute)
	}
	if c.CashSymbol == "" {
		return fmt.Errorf("FTQL_CASH_SYMBOL is required")
	}
	return nil
}

// DatabasePath returns the path of a named sqlite database under DataDir.
func (c *Config) DatabasePath(name string) string {
	return filepath.Join(c.DataDir, name+".db")
}

// ReportDir returns the directory the exporter writes report files to.
func (c *Config) ReportDir() string {
	return filepath.Join(c.DataDir, "weightResults")
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvAsList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return normalizeSymbols(strings.Split(value, ","))
}

func getEnvAsStrings(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, v := range strings.Split(value, ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func normalizeSymbols(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.ToUpper(strings.TrimSpace(v)); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func contains(values []string, v string) bool {
	for _, candidate := range values {
		if candidate == v {
			return true
		}
	}
	return false
}
