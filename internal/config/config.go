package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

const DefaultBaseURL = "http://sdf.co.il"

const (
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"

	CacheDriverRedis  = "redis"
	CacheDriverMemory = "memory"

	ClickSinkStore = "store"
	ClickSinkNATS  = "nats"
)

type Config struct {
	HTTPAddr        string        `env:"HTTP_ADDR" envDefault:":8080"`
	ReadTimeout     time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"5s"`
	WriteTimeout    time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"10s"`
	IdleTimeout     time.Duration `env:"HTTP_IDLE_TIMEOUT" envDefault:"120s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
	AppEnv          string        `env:"APP_ENV" envDefault:"production"`
	ShortURLDev     string        `env:"SHORT_URL_DEVELOPMENT"`
	ShortURLProd    string        `env:"SHORT_URL_PRODUCTION"`
	CORSOrigins     []string      `env:"CORS_ORIGINS" envDefault:"*" envSeparator:","`
	StoreDriver     string        `env:"STORE_DRIVER" envDefault:"postgres"`
	DatabaseDSN     string        `env:"DATABASE_DSN"`
	MigrateOnStart  bool          `env:"MIGRATE_ON_START" envDefault:"true"`
	DBMaxOpenConns  int           `env:"DB_MAX_OPEN_CONNS" envDefault:"20"`
	RedisAddr       string        `env:"REDIS_ADDR"`
	RedisPassword   string        `env:"REDIS_PASSWORD"`
	RedisDB         int           `env:"REDIS_DB" envDefault:"0"`
	CacheDriver     string        `env:"CACHE_DRIVER"`
	CacheTTL        time.Duration `env:"CACHE_TTL" envDefault:"10m"`
	CodeGenerator   string        `env:"CODE_GENERATOR" envDefault:"random"`
	MaxCodeAttempts int           `env:"MAX_CODE_ATTEMPTS" envDefault:"10"`
	ClickSink       string        `env:"CLICK_SINK" envDefault:"store"`
	ClickTimeout    time.Duration `env:"CLICK_TIMEOUT" envDefault:"5s"`
	NATSURL         string        `env:"NATS_URL"`
	ClickSubject    string        `env:"CLICK_SUBJECT" envDefault:"shortener.clicks"`
	ClickQueueGroup string        `env:"CLICK_QUEUE_GROUP" envDefault:"clickworker"`
	ClickBatchSize  int           `env:"CLICK_BATCH_SIZE" envDefault:"100"`
	ClickFlushEvery time.Duration `env:"CLICK_FLUSH_INTERVAL" envDefault:"1s"`
	LogLevel        string        `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat       string        `env:"LOG_FORMAT" envDefault:"json"`
}

// Load reads an optional .env file and then the process environment.
// Variables already set in the environment win over the file.
func Load(files ...string) (*Config, error) {
	if err := godotenv.Load(files...); err != nil && !isNotExist(err) {
		return nil, fmt.Errorf("load env file: %w", err)
	}
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if cfg.CacheDriver == "" {
		cfg.CacheDriver = CacheDriverMemory
		if cfg.RedisAddr != "" {
			cfg.CacheDriver = CacheDriverRedis
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	switch c.StoreDriver {
	case StoreDriverPostgres:
		if c.DatabaseDSN == "" {
			errs = append(errs, errors.New("DATABASE_DSN not set"))
		}
	case StoreDriverMemory:
	default:
		errs = append(errs, fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver))
	}
	switch c.CacheDriver {
	case CacheDriverRedis:
		if c.RedisAddr == "" {
			errs = append(errs, errors.New("REDIS_ADDR not set"))
		}
	case CacheDriverMemory:
	default:
		errs = append(errs, fmt.Errorf("unknown CACHE_DRIVER %q", c.CacheDriver))
	}
	switch c.ClickSink {
	case ClickSinkStore:
	case ClickSinkNATS:
		if c.NATSURL == "" {
			errs = append(errs, errors.New("NATS_URL not set"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown CLICK_SINK %q", c.ClickSink))
	}
	if c.MaxCodeAttempts < 1 {
		errs = append(errs, errors.New("MAX_CODE_ATTEMPTS must be positive"))
	}
	if c.CacheTTL <= 0 {
		errs = append(errs, errors.New("CACHE_TTL must be positive"))
	}
	if c.ClickBatchSize < 1 || c.ClickFlushEvery <= 0 {
		errs = append(errs, errors.New("CLICK_BATCH_SIZE and CLICK_FLUSH_INTERVAL must be positive"))
	}
	return errors.Join(errs...)
}

func (c *Config) IsDevelopment() bool {
	return strings.EqualFold(c.AppEnv, "development")
}

// BaseURL picks the short URL host for the current environment.
func (c *Config) BaseURL() string {
	base := c.ShortURLProd
	if c.IsDevelopment() {
		base = c.ShortURLDev
	}
	if base == "" {
		return DefaultBaseURL
	}
	return base
}

func isNotExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}
