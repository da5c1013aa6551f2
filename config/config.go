package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

type Config struct {
	AppName            string `env:"APP_NAME" env-default:"fern"`
	LogLevel           string `env:"LOG_LEVEL" env-default:"info" validate:"oneof=debug info warn error"`
	PrettyLogs         bool   `env:"PRETTY_LOGS" env-default:"false"`
	Verbose            bool   `env:"VERBOSE" env-default:"false"`
	StartupMaxAttempts int    `env:"STARTUP_MAX_ATTEMPTS" env-default:"5" validate:"min=1"`

	// Nimbu API
	NimbuAccessToken string        `env:"NIMBU_ACCESS_TOKEN" env-default:"" validate:"required"`
	NimbuAPIURL      string        `env:"NIMBU_API_URL" env-default:"https://api.nimbu.io" validate:"url"`
	PaginationSize   int           `env:"PAGINATION_SIZE" env-default:"250" validate:"min=1,max=1000"`
	HTTPTimeout      time.Duration `env:"HTTP_TIMEOUT" env-default:"30s"`

	// Collections
	IncludeCollections []string `env:"INCLUDE_COLLECTIONS" env-default:"content,shop,channels" validate:"dive,oneof=content shop channels"`
	IncludeChannels    []string `env:"INCLUDE_CHANNELS" env-default:""`
	ExcludeChannels    []string `env:"EXCLUDE_CHANNELS" env-default:""`

	// Assets
	DownloadAssets  bool   `env:"DOWNLOAD_ASSETS" env-default:"true"`
	CDNPrefix       string `env:"CDN_PREFIX" env-default:"//cdn.nimbu.io/"`
	AssetDir        string `env:"ASSET_DIR" env-default:"./public/static"`
	AssetPublicPath string `env:"ASSET_PUBLIC_PATH" env-default:"/static"`
	MaxNestingDepth int    `env:"MAX_NESTING_DEPTH" env-default:"32" validate:"min=1"`

	// Asset cache
	CacheDriver     string        `env:"CACHE_DRIVER" env-default:"memory" validate:"oneof=memory redis postgres sqlite"`
	CacheTTL        time.Duration `env:"CACHE_TTL" env-default:"0s"`
	CacheSQLitePath string        `env:"CACHE_SQLITE_PATH" env-default:"./.fern/cache.db"`

	// Redis
	RedisHost     string `env:"REDIS_HOST" env-default:"localhost"`
	RedisPort     int    `env:"REDIS_PORT" env-default:"6379"`
	RedisPassword string `env:"REDIS_PASSWORD" env-default:""`
	RedisDB       int    `env:"REDIS_DB" env-default:"0"`

	// PostgreSQL
	DatabaseHost         string `env:"DB_HOST" env-default:"localhost"`
	DatabasePort         int    `env:"DB_PORT" env-default:"5432"`
	DatabaseUserName     string `env:"DB_USER_NAME" env-default:""`
	DatabasePassword     string `env:"DB_PASSWORD" env-default:""`
	DatabaseName         string `env:"DB_NAME" env-default:"fern"`
	DatabaseSSLMode      string `env:"DB_SQL_MODE" env-default:"disable"`
	DatabaseMaxOpenConns int    `env:"DB_MAX_OPEN_CONNS" env-default:"10"`
	DatabaseMigrate      bool   `env:"DB_MIGRATE" env-default:"true"`

	// Graph sinks
	GraphSinks      []string `env:"GRAPH_SINKS" env-default:"stdout" validate:"min=1,dive,oneof=neo4j kafka stdout"`
	GraphDBHost     string   `env:"GRAPH_DB_HOST" env-default:"localhost"`
	GraphDBPort     int      `env:"GRAPH_DB_PORT" env-default:"7687"`
	GraphDBUser     string   `env:"GRAPH_DB_USER" env-default:""`
	GraphDBPassword string   `env:"GRAPH_DB_PASSWORD" env-default:""`

	// Kafka
	KafkaBrokers   []string `env:"KAFKA_BROKERS" env-default:"localhost:9092"`
	KafkaNodeTopic string   `env:"KAFKA_NODE_TOPIC" env-default:"nimbu-nodes"`

	// Tracing
	OTLPEnabled  bool   `env:"OTLP_ENABLED" env-default:"false"`
	OTLPEndpoint string `env:"OTLP_ENDPOINT" env-default:"localhost:4317"`
	OTLPProtocol string `env:"OTLP_PROTOCOL" env-default:"grpc" validate:"oneof=grpc http"`
	OTLPInsecure bool   `env:"OTLP_INSECURE" env-default:"true"`

	// Ops server, disabled when empty
	MetricsAddr string `env:"METRICS_ADDR" env-default:""`

	// Run lock, only taken with the redis cache driver
	RunLockTTL time.Duration `env:"RUN_LOCK_TTL" env-default:"30m"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Load reads an optional .env file and then the environment. A missing
// envFile is not an error unless it was named explicitly.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return nil, fmt.Errorf("failed to load env file %s: %w", envFile, err)
		}
	} else if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the config against its validate tags.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s: rule '%s' expected '%s', got '%v'", fe.StructField(), fe.Tag(), fe.Param(), fe.Value()))
	}
	return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
}

// Override applies fn, such as command line flags, and checks the result the
// same way Load does.
func (c *Config) Override(fn func(c *Config)) error {
	fn(c)
	c.normalize()
	return c.Validate()
}

// UsesSink reports whether a graph sink is enabled.
func (c *Config) UsesSink(name string) bool {
	for _, s := range c.GraphSinks {
		if s == name {
			return true
		}
	}
	return false
}

// normalize trims list entries and drops empty ones; cleanenv splits
// "a, b" into "a" and " b", and an empty value into a single "".
func (c *Config) normalize() {
	c.IncludeCollections = cleanList(c.IncludeCollections, true)
	c.IncludeChannels = cleanList(c.IncludeChannels, false)
	c.ExcludeChannels = cleanList(c.ExcludeChannels, false)
	c.GraphSinks = cleanList(c.GraphSinks, true)
	c.KafkaBrokers = cleanList(c.KafkaBrokers, false)
	c.LogLevel = strings.ToLower(c.LogLevel)
}

func cleanList(values []string, lower bool) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if lower {
			v = strings.ToLower(v)
		}
		out = append(out, v)
	}
	return out
}
