// Package config loads settings from defaults, an optional YAML file named
// by TECHNEWS_CONFIG and environment variables, in that order.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/deusflow/technews/internal/syndication"
)

const configPathEnv = "TECHNEWS_CONFIG"

// Store drivers.
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
	StoreMongo    = "mongo"
)

// Cache drivers.
const (
	CacheMemory   = "memory"
	CacheRedis    = "redis"
	CachePostgres = "postgres"
)

// MaxIngestConcurrency bounds parallel feed fetches.
const MaxIngestConcurrency = 5

type Config struct {
	// Storage
	StoreDriver     string `yaml:"storeDriver"`
	StorePath       string `yaml:"storePath"`
	DatabaseURL     string `yaml:"databaseUrl"`
	MongoURI        string `yaml:"mongoUri"`
	MongoDatabase   string `yaml:"mongoDatabase"`
	MongoCollection string `yaml:"mongoCollection"`

	// Cache for AI answers and translations
	CacheDriver   string `yaml:"cacheDriver"`
	RedisAddr     string `yaml:"redisAddr"`
	RedisPassword string `yaml:"redisPassword"`
	CacheTTLHours int    `yaml:"cacheTtlHours"`

	// RSS ingestion
	FeedsConfigPath   string        `yaml:"feedsConfigPath"`
	IngestConcurrency int           `yaml:"ingestConcurrency"`
	FetchTimeout      time.Duration `yaml:"fetchTimeout"`
	RetryAttempts     int           `yaml:"retryAttempts"`
	RetryDelay        time.Duration `yaml:"retryDelay"`
	UserAgent         string        `yaml:"userAgent"`
	UpsertBatchSize   int           `yaml:"upsertBatchSize"`

	// Scraper
	ScrapeImages      bool          `yaml:"scrapeImages"`
	ScrapeMaxArticles int           `yaml:"scrapeMaxArticles"` // full-text fetches per run for thin feed items
	ScrapeTimeout     time.Duration `yaml:"scrapeTimeout"`

	// AI providers
	GeminiAPIKey      string        `yaml:"geminiApiKey"`
	GeminiModel       string        `yaml:"geminiModel"`
	MaxGeminiRequests int           `yaml:"maxGeminiRequests"` // per run, 0 = unlimited
	OpenAIAPIKey      string        `yaml:"openaiApiKey"`
	OpenAIModel       string        `yaml:"openaiModel"`
	MaxOpenAIRequests int           `yaml:"maxOpenaiRequests"`
	AITimeout         time.Duration `yaml:"aiTimeout"`

	// Enrichment
	TranslateSource string `yaml:"translateSource"`
	TranslateTarget string `yaml:"translateTarget"` // empty disables translation
	EnrichWorkers   int    `yaml:"enrichWorkers"`
	EnrichBuffer    int    `yaml:"enrichBuffer"`

	// Syndication
	OutputDir string              `yaml:"outputDir"`
	Site      syndication.Channel `yaml:"site"`

	// HTTP API
	HTTPAddr        string        `yaml:"httpAddr"`
	IngestInterval  time.Duration `yaml:"ingestInterval"` // 0 disables periodic ingestion in serve
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`

	// Telegram
	TelegramToken    string `yaml:"telegramToken"`
	TelegramChatID   string `yaml:"telegramChatId"`
	TelegramMaxPosts int    `yaml:"telegramMaxPosts"`

	// My Feed
	Timezone         string  `yaml:"timezone"`
	ClusterThreshold float64 `yaml:"clusterThreshold"`
	RescoreClusters  bool    `yaml:"rescoreClusters"`

	Debug    bool   `yaml:"debug"`
	LogLevel string `yaml:"logLevel"`

	location *time.Location
}

// Default returns the built-in settings.
func Default() *Config {
	return &Config{
		StoreDriver:       StoreMemory,
		StorePath:         "data/articles.json",
		MongoDatabase:     "technews",
		MongoCollection:   "articles",
		CacheDriver:       CacheMemory,
		CacheTTLHours:     48,
		FeedsConfigPath:   "configs/feeds.yaml",
		IngestConcurrency: 4,
		FetchTimeout:      15 * time.Second,
		RetryAttempts:     3,
		RetryDelay:        time.Second,
		UserAgent:         "technews/1.0 (+https://github.com/deusflow/technews)",
		UpsertBatchSize:   100,
		ScrapeImages:      true,
		ScrapeMaxArticles: 10,
		ScrapeTimeout:     10 * time.Second,
		GeminiModel:       "gemini-1.5-flash",
		MaxGeminiRequests: 50,
		OpenAIModel:       "gpt-4o-mini",
		MaxOpenAIRequests: 20,
		AITimeout:         30 * time.Second,
		TranslateSource:   "en",
		EnrichWorkers:     2,
		EnrichBuffer:      256,
		OutputDir:         "public",
		Site: syndication.Channel{
			Title:       "Tech News",
			Link:        "http://localhost:8080",
			Description: "AI, startups, developer tools, products and research",
			Language:    "en",
		},
		HTTPAddr:         ":8080",
		IngestInterval:   3 * time.Hour,
		ShutdownTimeout:  15 * time.Second,
		TelegramMaxPosts: 5,
		Timezone:         "UTC",
		ClusterThreshold: 0.5,
		LogLevel:         "info",
	}
}

// Load builds the configuration and validates it.
func Load() (*Config, error) {
	cfg := Default()
	if path := os.Getenv(configPathEnv); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, cfg.Validate()
}

// loadFile overlays the YAML file on cfg; keys absent from the file keep
// their current values.
func (c *Config) loadFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, c); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() error {
	var errs []error
	str := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) {
		if v := os.Getenv(key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}
	dur := func(key string, dst *time.Duration) {
		if v := os.Getenv(key); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = d
		}
	}
	flag := func(key string, dst *bool) {
		if v := os.Getenv(key); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = b
		}
	}

	str("STORE_DRIVER", &c.StoreDriver)
	str("STORE_PATH", &c.StorePath)
	str("DATABASE_URL", &c.DatabaseURL)
	str("MONGO_URI", &c.MongoURI)
	str("MONGO_DATABASE", &c.MongoDatabase)
	str("MONGO_COLLECTION", &c.MongoCollection)

	str("CACHE_DRIVER", &c.CacheDriver)
	str("REDIS_ADDR", &c.RedisAddr)
	str("REDIS_PASSWORD", &c.RedisPassword)
	num("CACHE_TTL_HOURS", &c.CacheTTLHours)

	str("FEEDS_CONFIG_PATH", &c.FeedsConfigPath)
	num("INGEST_CONCURRENCY", &c.IngestConcurrency)
	dur("FETCH_TIMEOUT", &c.FetchTimeout)
	num("RETRY_ATTEMPTS", &c.RetryAttempts)
	dur("RETRY_DELAY", &c.RetryDelay)
	str("USER_AGENT", &c.UserAgent)
	num("UPSERT_BATCH_SIZE", &c.UpsertBatchSize)

	flag("SCRAPE_IMAGES", &c.ScrapeImages)
	num("SCRAPE_MAX_ARTICLES", &c.ScrapeMaxArticles)
	dur("SCRAPE_TIMEOUT", &c.ScrapeTimeout)

	str("GEMINI_API_KEY", &c.GeminiAPIKey)
	str("GEMINI_MODEL", &c.GeminiModel)
	num("MAX_GEMINI_REQUESTS", &c.MaxGeminiRequests)
	str("OPENAI_API_KEY", &c.OpenAIAPIKey)
	str("OPENAI_MODEL", &c.OpenAIModel)
	num("MAX_OPENAI_REQUESTS", &c.MaxOpenAIRequests)
	dur("AI_TIMEOUT", &c.AITimeout)

	str("TRANSLATE_SOURCE", &c.TranslateSource)
	str("TRANSLATE_TARGET", &c.TranslateTarget)
	num("ENRICH_WORKERS", &c.EnrichWorkers)
	num("ENRICH_BUFFER", &c.EnrichBuffer)

	str("OUTPUT_DIR", &c.OutputDir)
	str("SITE_TITLE", &c.Site.Title)
	str("SITE_URL", &c.Site.Link)
	str("SITE_LANGUAGE", &c.Site.Language)

	str("HTTP_ADDR", &c.HTTPAddr)
	dur("INGEST_INTERVAL", &c.IngestInterval)
	dur("SHUTDOWN_TIMEOUT", &c.ShutdownTimeout)

	str("TELEGRAM_TOKEN", &c.TelegramToken)
	str("TELEGRAM_CHAT_ID", &c.TelegramChatID)
	num("TELEGRAM_MAX_POSTS", &c.TelegramMaxPosts)

	str("TIMEZONE", &c.Timezone)
	flag("RESCORE_CLUSTERS", &c.RescoreClusters)
	if v := os.Getenv("CLUSTER_THRESHOLD"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("CLUSTER_THRESHOLD: %w", err))
		} else {
			c.ClusterThreshold = f
		}
	}

	flag("DEBUG", &c.Debug)
	str("LOG_LEVEL", &c.LogLevel)
	if c.Debug {
		c.LogLevel = "debug"
	}
	return errors.Join(errs...)
}

// Validate checks every setting and resolves the timezone.
func (c *Config) Validate() error {
	var errs []error
	switch c.StoreDriver {
	case StoreMemory:
	case StorePostgres:
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required for the postgres store"))
		}
	case StoreMongo:
		if c.MongoURI == "" {
			errs = append(errs, errors.New("MONGO_URI is required for the mongo store"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown store driver %q", c.StoreDriver))
	}

	switch c.CacheDriver {
	case CacheMemory:
	case CacheRedis:
		if c.RedisAddr == "" {
			errs = append(errs, errors.New("REDIS_ADDR is required for the redis cache"))
		}
	case CachePostgres:
		if c.StoreDriver != StorePostgres {
			errs = append(errs, errors.New("the postgres cache requires the postgres store"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown cache driver %q", c.CacheDriver))
	}

	if c.IngestConcurrency < 1 || c.IngestConcurrency > MaxIngestConcurrency {
		errs = append(errs, fmt.Errorf("ingest concurrency must be 1..%d, got %d", MaxIngestConcurrency, c.IngestConcurrency))
	}
	if c.FetchTimeout <= 0 || c.ScrapeTimeout <= 0 || c.AITimeout <= 0 {
		errs = append(errs, errors.New("fetch, scrape and AI timeouts must be positive"))
	}
	if c.RetryAttempts < 1 || c.RetryAttempts > 10 {
		errs = append(errs, fmt.Errorf("retry attempts must be 1..10, got %d", c.RetryAttempts))
	}
	if c.RetryDelay < 0 {
		errs = append(errs, errors.New("retry delay must not be negative"))
	}
	if c.UpsertBatchSize < 1 {
		errs = append(errs, errors.New("upsert batch size must be positive"))
	}
	if c.ScrapeMaxArticles < 0 {
		errs = append(errs, errors.New("SCRAPE_MAX_ARTICLES must not be negative"))
	}
	if c.MaxGeminiRequests < 0 || c.MaxOpenAIRequests < 0 {
		errs = append(errs, errors.New("AI request budgets must not be negative"))
	}
	if c.CacheTTLHours < 1 {
		errs = append(errs, errors.New("CACHE_TTL_HOURS must be positive"))
	}
	if c.ClusterThreshold <= 0 || c.ClusterThreshold >= 1 {
		errs = append(errs, fmt.Errorf("cluster threshold must be in (0, 1), got %v", c.ClusterThreshold))
	}
	if c.TelegramMaxPosts < 0 {
		errs = append(errs, errors.New("TELEGRAM_MAX_POSTS must not be negative"))
	}
	if c.IngestInterval < 0 {
		errs = append(errs, errors.New("INGEST_INTERVAL must not be negative"))
	}

	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		errs = append(errs, fmt.Errorf("TIMEZONE: %w", err))
	} else {
		c.location = loc
	}
	return errors.Join(errs...)
}

// Location is the timezone that anchors week boundaries.
func (c *Config) Location() *time.Location {
	if c.location != nil {
		return c.location
	}
	return time.UTC
}

// CacheTTL is CacheTTLHours as a duration.
func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLHours) * time.Hour
}

// TelegramEnabled reports whether both Telegram credentials are set.
func (c *Config) TelegramEnabled() bool {
	return c.TelegramToken != "" && c.TelegramChatID != ""
}

// TranslationEnabled reports whether enrichment should translate.
func (c *Config) TranslationEnabled() bool {
	return c.TranslateTarget != "" && !strings.EqualFold(c.TranslateTarget, c.TranslateSource)
}
