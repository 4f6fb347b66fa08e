package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Zhima-Mochi/minishop-storefront/internal/infrastructure/postgres"
)

const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"

	CartsMemory = "memory"
	CartsPebble = "pebble"
)

var ErrInvalid = errors.New("config: invalid")

type Config struct {
	ServiceName string
	Env         string
	HTTPAddr    string
	LogLevel    string
	LogFile     string

	RefreshInterval time.Duration
	RefreshTimeout  time.Duration
	PublicOnly      bool
	WhatsAppNumber  string

	StoreDriver string
	DB          postgres.Config
	Migrate     bool

	CartStore string
	CartDir   string

	KafkaBrokers string
	KafkaTopic   string
}

func Default() Config {
	return Config{
		ServiceName:     "storefront",
		Env:             "dev",
		HTTPAddr:        ":8080",
		LogLevel:        "info",
		RefreshInterval: 30 * time.Second,
		RefreshTimeout:  15 * time.Second,
		PublicOnly:      true,
		WhatsAppNumber:  "60123456789",
		StoreDriver:     StoreMemory,
		DB:              postgres.DefaultConfig(),
		CartStore:       CartsMemory,
		CartDir:         "data/carts",
	}
}

// Load builds the configuration from defaults, then the environment, then
// command-line flags, each layer overriding the previous one.
func Load(args []string, getenv func(string) string) (Config, error) {
	if getenv == nil {
		getenv = os.Getenv
	}
	cfg := Default()
	if err := cfg.applyEnv(getenv); err != nil {
		return Config{}, err
	}

	fs := flag.NewFlagSet("storefront", flag.ContinueOnError)
	fs.StringVar(&cfg.HTTPAddr, "addr", cfg.HTTPAddr, "HTTP listen address")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "debug|info|warn|error")
	fs.DurationVar(&cfg.RefreshInterval, "refresh-interval", cfg.RefreshInterval, "catalog poll interval")
	fs.DurationVar(&cfg.RefreshTimeout, "refresh-timeout", cfg.RefreshTimeout, "upper bound on one catalog fetch")
	fs.BoolVar(&cfg.PublicOnly, "public-only", cfg.PublicOnly, "only list public batches")
	fs.StringVar(&cfg.WhatsAppNumber, "whatsapp-number", cfg.WhatsAppNumber, "shop WhatsApp number, international format without +")
	fs.StringVar(&cfg.StoreDriver, "store", cfg.StoreDriver, "backing store: memory|postgres")
	fs.BoolVar(&cfg.Migrate, "migrate", cfg.Migrate, "apply the Postgres schema on start")
	fs.StringVar(&cfg.CartStore, "carts", cfg.CartStore, "cart storage: memory|pebble")
	fs.StringVar(&cfg.CartDir, "cart-dir", cfg.CartDir, "pebble directory for carts")
	fs.StringVar(&cfg.KafkaBrokers, "kafka-brokers", cfg.KafkaBrokers, "comma-separated Kafka brokers; empty disables the relay")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(getenv func(string) string) error {
	str := func(key string, dst *string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}
	var errs []error
	num := func(key string, dst *int) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%w: %s=%q is not a number", ErrInvalid, key, v))
				return
			}
			*dst = n
		}
	}
	boolean := func(key string, dst *bool) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%w: %s=%q is not a boolean", ErrInvalid, key, v))
				return
			}
			*dst = b
		}
	}
	duration := func(key string, dst *time.Duration) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%w: %s=%q is not a duration", ErrInvalid, key, v))
				return
			}
			*dst = d
		}
	}

	str("SERVICE_NAME", &c.ServiceName)
	str("ENV", &c.Env)
	str("HTTP_ADDR", &c.HTTPAddr)
	str("LOG_LEVEL", &c.LogLevel)
	str("LOG_FILE", &c.LogFile)
	duration("REFRESH_INTERVAL", &c.RefreshInterval)
	duration("REFRESH_TIMEOUT", &c.RefreshTimeout)
	boolean("PUBLIC_ONLY", &c.PublicOnly)
	str("WHATSAPP_NUMBER", &c.WhatsAppNumber)

	str("STORE_DRIVER", &c.StoreDriver)
	str("DB_HOST", &c.DB.Host)
	num("DB_PORT", &c.DB.Port)
	str("DB_USER", &c.DB.User)
	str("DB_PASSWORD", &c.DB.Password)
	str("DB_NAME", &c.DB.DBName)
	str("DB_SSL_MODE", &c.DB.SSLMode)
	num("DB_MAX_OPEN_CONNS", &c.DB.MaxOpenConns)
	num("DB_MAX_IDLE_CONNS", &c.DB.MaxIdleConns)
	boolean("DB_MIGRATE", &c.Migrate)

	str("CART_STORE", &c.CartStore)
	str("CART_DIR", &c.CartDir)
	str("KAFKA_BROKERS", &c.KafkaBrokers)
	str("KAFKA_TOPIC", &c.KafkaTopic)

	return errors.Join(errs...)
}

func (c Config) Validate() error {
	var errs []error
	if c.HTTPAddr == "" {
		errs = append(errs, fmt.Errorf("%w: http address is empty", ErrInvalid))
	}
	if c.RefreshInterval <= 0 {
		errs = append(errs, fmt.Errorf("%w: refresh interval must be positive, got %s", ErrInvalid, c.RefreshInterval))
	}
	if c.RefreshTimeout <= 0 {
		errs = append(errs, fmt.Errorf("%w: refresh timeout must be positive, got %s", ErrInvalid, c.RefreshTimeout))
	}
	if c.WhatsAppNumber == "" || strings.Trim(c.WhatsAppNumber, "0123456789") != "" {
		errs = append(errs, fmt.Errorf("%w: whatsapp number %q must be digits only", ErrInvalid, c.WhatsAppNumber))
	}
	switch c.StoreDriver {
	case StoreMemory:
	case StorePostgres:
		if c.DB.Port < 1 || c.DB.Port > 65535 {
			errs = append(errs, fmt.Errorf("%w: db port %d out of range", ErrInvalid, c.DB.Port))
		}
		if c.DB.Host == "" || c.DB.DBName == "" {
			errs = append(errs, fmt.Errorf("%w: db host and name are required", ErrInvalid))
		}
	default:
		errs = append(errs, fmt.Errorf("%w: unknown store driver %q", ErrInvalid, c.StoreDriver))
	}
	switch c.CartStore {
	case CartsMemory:
	case CartsPebble:
		if c.CartDir == "" {
			errs = append(errs, fmt.Errorf("%w: cart dir is required for pebble", ErrInvalid))
		}
	default:
		errs = append(errs, fmt.Errorf("%w: unknown cart store %q", ErrInvalid, c.CartStore))
	}
	return errors.Join(errs...)
}
