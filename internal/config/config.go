// Package config loads searchai settings from the environment.
//
// Values come from environment variables parsed with
// github.com/caarlos0/env. A .env file in the working directory is loaded
// first when present.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Storage backends.
const (
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendMongo    = "mongo"
	BackendJSON     = "json"
)

// Config is the full application configuration.
type Config struct {
	HTTP     HTTPConfig
	Storage  StorageConfig
	LLM      LLMConfig
	Fetch    FetchConfig
	Pipeline PipelineConfig
	Jobs     JobsConfig
	Cache    CacheConfig
	Logging  LoggingConfig
}

// HTTPConfig configures the API and metrics listeners.
type HTTPConfig struct {
	Addr        string `env:"HTTP_ADDR"    envDefault:":8000"`
	MetricsAddr string `env:"METRICS_ADDR" envDefault:":9090"`
}

// StorageConfig selects and configures the result store.
type StorageConfig struct {
	Backend         string `env:"STORAGE_BACKEND"  envDefault:"sqlite"`
	SQLiteDSN       string `env:"SQLITE_DSN"       envDefault:"searchai.db"`
	PostgresDSN     string `env:"POSTGRES_DSN"`
	MongoURI        string `env:"MONGO_URI"        envDefault:"mongodb://localhost:27017"`
	MongoDatabase   string `env:"MONGO_DATABASE"   envDefault:"searchai"`
	MongoCollection string `env:"MONGO_COLLECTION" envDefault:"searches"`
	JSONPath        string `env:"JSON_PATH"        envDefault:"searchai.ndjson"`
}

// LLMConfig configures the hosted model.
type LLMConfig struct {
	APIKey          string        `env:"LLM_API_KEY"`
	Endpoint        string        `env:"LLM_ENDPOINT"`
	Model           string        `env:"LLM_MODEL"`
	TextPath        string        `env:"LLM_TEXT_PATH"`
	Timeout         time.Duration `env:"LLM_TIMEOUT"        envDefault:"60s"`
	MaxSourceChars  int           `env:"MAX_SOURCE_CHARS"   envDefault:"2000"`
	MaxContextChars int           `env:"MAX_CONTEXT_CHARS"  envDefault:"12000"`
}

// FetchConfig configures outbound page fetches.
type FetchConfig struct {
	SearchEndpoint     string        `env:"SEARCH_ENDPOINT"`
	Timeout            time.Duration `env:"FETCH_TIMEOUT"       envDefault:"15s"`
	Fingerprint        string        `env:"FETCH_FINGERPRINT"   envDefault:"chrome"`
	RPS                float64       `env:"FETCH_RPS"           envDefault:"2"`
	Jitter             float64       `env:"FETCH_JITTER"        envDefault:"0.25"`
	MaxBodyBytes       int64         `env:"FETCH_MAX_BODY_BYTES" envDefault:"5242880"`
	ProxyURLs          []string      `env:"PROXY_URLS"          envSeparator:","`
	UserAgents         []string      `env:"USER_AGENTS"         envSeparator:"|"`
	RespectRobots      bool          `env:"RESPECT_ROBOTS"      envDefault:"true"`
	InsecureSkipVerify bool          `env:"FETCH_INSECURE"      envDefault:"false"`
}

// PipelineConfig tunes search jobs.
type PipelineConfig struct {
	DiscoveryLimit   int           `env:"DISCOVERY_LIMIT"    envDefault:"5"`
	MinContentLength int           `env:"MIN_CONTENT_LENGTH" envDefault:"100"`
	DiscoveryTimeout time.Duration `env:"DISCOVERY_TIMEOUT"  envDefault:"20s"`
	FetchTimeout     time.Duration `env:"SITE_TIMEOUT"       envDefault:"30s"`
	SummarizeTimeout time.Duration `env:"SUMMARIZE_TIMEOUT"  envDefault:"60s"`
	StoreTimeout     time.Duration `env:"STORE_TIMEOUT"      envDefault:"10s"`
}

// JobsConfig bounds the job tracker.
type JobsConfig struct {
	TTL        time.Duration `env:"JOB_TTL"         envDefault:"1h"`
	MaxEntries int           `env:"JOB_MAX_ENTRIES" envDefault:"10000"`
	SweepSpec  string        `env:"JOB_SWEEP_SPEC"  envDefault:"@every 1m"`
}

// CacheConfig configures the optional follow-up answer cache.
type CacheConfig struct {
	RedisURL string        `env:"REDIS_URL"`
	TTL      time.Duration `env:"ANSWER_CACHE_TTL" envDefault:"30m"`
}

// LoggingConfig configures the process logger.
type LoggingConfig struct {
	Level  string `env:"LOG_LEVEL"  envDefault:"info"`
	Format string `env:"LOG_FORMAT" envDefault:"text"`
}

// Load reads .env files (default ".env") if present and parses the
// environment into a sanitized Config.
func Load(files ...string) (Config, error) {
	if err := godotenv.Load(files...); err != nil {
		var pathErr *os.PathError
		if !errors.As(err, &pathErr) {
			return Config{}, fmt.Errorf("load .env file: %w", err)
		}
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	cfg.Sanitize()
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Sanitize applies guardrails to values loaded from env.
func (c *Config) Sanitize() {
	c.Storage.Backend = strings.ToLower(strings.TrimSpace(c.Storage.Backend))
	if c.Storage.Backend == "" {
		c.Storage.Backend = BackendSQLite
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))

	if c.Fetch.RPS < 0 {
		c.Fetch.RPS = 0
	}
	if c.Fetch.Jitter < 0 {
		c.Fetch.Jitter = 0
	}
	c.Fetch.ProxyURLs = compact(c.Fetch.ProxyURLs)
	c.Fetch.UserAgents = compact(c.Fetch.UserAgents)

	if c.Pipeline.MinContentLength < 0 {
		c.Pipeline.MinContentLength = 0
	}
	if c.Jobs.TTL < time.Minute {
		c.Jobs.TTL = time.Minute
	}
	if c.Jobs.MaxEntries < 1 {
		c.Jobs.MaxEntries = 1
	}
	if c.Cache.TTL <= 0 {
		c.Cache.TTL = 30 * time.Minute
	}
}

// Validate reports settings that cannot work together.
func (c *Config) Validate() error {
	switch c.Storage.Backend {
	case BackendSQLite, BackendMongo, BackendJSON:
	case BackendPostgres:
		if c.Storage.PostgresDSN == "" {
			return errors.New("POSTGRES_DSN is required for the postgres backend")
		}
	default:
		return fmt.Errorf("unknown STORAGE_BACKEND %q", c.Storage.Backend)
	}
	return nil
}

func compact(values []string) []string {
	out := values[:0]
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
