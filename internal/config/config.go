package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config stores all configuration for the application.
type Config struct {
	SiteBaseURL  string   `mapstructure:"SITE_BASE_URL"`
	ArchiveRoot  string   `mapstructure:"ARCHIVE_ROOT"`
	JSONEndpoint string   `mapstructure:"JSON_ENDPOINT"`
	UserAgent    string   `mapstructure:"USER_AGENT"`
	ProxyURLs    []string `mapstructure:"PROXY_URLS"`
	FetchMode    string   `mapstructure:"FETCH_MODE"` // "http" or "browser"

	ListingTimeout time.Duration `mapstructure:"LISTING_TIMEOUT"`
	DetailTimeout  time.Duration `mapstructure:"DETAIL_TIMEOUT"`
	RobotsTimeout  time.Duration `mapstructure:"ROBOTS_TIMEOUT"`

	MaintenanceBackoff    time.Duration `mapstructure:"MAINTENANCE_BACKOFF"`
	MaintenanceSignatures []string      `mapstructure:"MAINTENANCE_SIGNATURES"`

	BudgetListing    time.Duration `mapstructure:"BUDGET_LISTING"`
	BudgetEnrichment time.Duration `mapstructure:"BUDGET_ENRICHMENT"`
	BudgetOverall    time.Duration `mapstructure:"BUDGET_OVERALL"`

	StopThreshold     time.Duration `mapstructure:"STOP_THRESHOLD"`
	StopThresholdStep time.Duration `mapstructure:"STOP_THRESHOLD_STEP"`
	StopThresholdMax  time.Duration `mapstructure:"STOP_THRESHOLD_MAX"`

	MaxBatchSize         int     `mapstructure:"MAX_BATCH_SIZE"`
	LargePeriodThreshold int     `mapstructure:"LARGE_PERIOD_THRESHOLD"`
	ListingLookupCap     int     `mapstructure:"LISTING_LOOKUP_CAP"`
	DetailLookupCap      int     `mapstructure:"DETAIL_LOOKUP_CAP"`
	EnrichRate           float64 `mapstructure:"ENRICH_RATE"` // records per second of remaining budget

	ResultCacheTTL          time.Duration `mapstructure:"RESULT_CACHE_TTL"`
	ResultPathSubstitutions []string      `mapstructure:"RESULT_PATH_SUBSTITUTIONS"` // "from:to" pairs

	HomeCountry     string   `mapstructure:"HOME_COUNTRY"`
	CountryPrefixes []string `mapstructure:"COUNTRY_PREFIXES"`

	RedisAddr   string `mapstructure:"REDIS_ADDR"`
	PostgresURL string `mapstructure:"POSTGRES_URL"`
	ServerPort  string `mapstructure:"SERVER_PORT"`
	LogLevel    string `mapstructure:"LOG_LEVEL"`
}

// Load reads configuration from an optional env file and environment variables.
func Load(envFile string) (*Config, error) {
	v := viper.New()
	if envFile != "" {
		v.SetConfigFile(envFile)
		v.SetConfigType("env")
	}
	v.AutomaticEnv()

	// A missing .env file is fine; production is configured purely through the environment.
	if envFile != "" {
		_ = v.ReadInConfig()
	}

	setDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("SITE_BASE_URL", "https://races.example.com")
	v.SetDefault("ARCHIVE_ROOT", "archive")
	v.SetDefault("JSON_ENDPOINT", "")
	v.SetDefault("USER_AGENT", "race-archive/1.0 (+https://github.com/user/race-archive; archive indexer)")
	v.SetDefault("PROXY_URLS", []string{})
	v.SetDefault("FETCH_MODE", "http")

	v.SetDefault("LISTING_TIMEOUT", "8s")
	v.SetDefault("DETAIL_TIMEOUT", "3s")
	v.SetDefault("ROBOTS_TIMEOUT", "3s")

	v.SetDefault("MAINTENANCE_BACKOFF", "2s")
	v.SetDefault("MAINTENANCE_SIGNATURES", []string{"under maintenance", "scheduled maintenance", "temporarily unavailable"})

	v.SetDefault("BUDGET_LISTING", "12s")
	v.SetDefault("BUDGET_ENRICHMENT", "22s")
	v.SetDefault("BUDGET_OVERALL", "25s")

	v.SetDefault("STOP_THRESHOLD", "3s")
	v.SetDefault("STOP_THRESHOLD_STEP", "250ms")
	v.SetDefault("STOP_THRESHOLD_MAX", "6s")

	v.SetDefault("MAX_BATCH_SIZE", 8)
	v.SetDefault("LARGE_PERIOD_THRESHOLD", 60)
	v.SetDefault("LISTING_LOOKUP_CAP", 5)
	v.SetDefault("DETAIL_LOOKUP_CAP", 40)
	v.SetDefault("ENRICH_RATE", 4.0)

	v.SetDefault("RESULT_CACHE_TTL", "6h")
	v.SetDefault("RESULT_PATH_SUBSTITUTIONS", []string{"/race/:/result/", "/race/:/results/", "/meeting/:/results/", "/card/:/result/"})

	v.SetDefault("HOME_COUNTRY", "JP")
	v.SetDefault("COUNTRY_PREFIXES", []string{"GB", "IE", "FR", "US", "HK", "AU", "AE", "SA"})

	v.SetDefault("REDIS_ADDR", "")
	v.SetDefault("POSTGRES_URL", "")
	v.SetDefault("SERVER_PORT", "8080")
	v.SetDefault("LOG_LEVEL", "info")
}

// Validate rejects configurations the pipeline cannot run with.
func (c *Config) Validate() error {
	u, err := url.Parse(c.SiteBaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid SITE_BASE_URL %q", c.SiteBaseURL)
	}
	if c.BudgetOverall <= 0 || c.BudgetListing <= 0 || c.BudgetEnrichment <= 0 {
		return errors.New("budgets must be positive")
	}
	if c.ListingTimeout <= 0 || c.DetailTimeout <= 0 {
		return errors.New("fetch timeouts must be positive")
	}
	switch c.FetchMode {
	case "http", "browser":
	default:
		return fmt.Errorf("invalid FETCH_MODE %q", c.FetchMode)
	}
	if c.MaxBatchSize < 1 {
		c.MaxBatchSize = 1
	}
	for _, p := range c.ResultPathSubstitutions {
		if !strings.Contains(p, ":") {
			return fmt.Errorf("invalid RESULT_PATH_SUBSTITUTIONS entry %q: want from:to", p)
		}
	}
	return nil
}

// Substitutions splits the configured "from:to" result path pairs.
func (c *Config) Substitutions() [][2]string {
	out := make([][2]string, 0, len(c.ResultPathSubstitutions))
	for _, p := range c.ResultPathSubstitutions {
		from, to, ok := strings.Cut(p, ":")
		if !ok || from == "" {
			continue
		}
		out = append(out, [2]string{from, to})
	}
	return out
}
