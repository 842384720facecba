package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
)

const defaultAddr = "0.0.0.0:8080"

// Config holds the server configuration, loadable from STORE_-prefixed
// environment variables, flags, or YAML config files.
type Config struct {
	Addr        string `default:"0.0.0.0:8080" usage:"API server listen address"`
	DatabaseURL string `usage:"PostgreSQL connection URL (STORE_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	Throttle    ThrottleConfig
	Health      HealthConfig
	Graceful    GracefulConfig
}

// ThrottleConfig bounds coupon application attempts per client address.
type ThrottleConfig struct {
	Max    int           `default:"20" usage:"Coupon apply attempts per window, 0 disables"`
	Window time.Duration `default:"1m" usage:"Coupon apply throttle window"`
}

// HealthConfig controls the background probes behind /livez and /readyz.
type HealthConfig struct {
	Interval       time.Duration `default:"10s" usage:"Health check interval"`
	GoroutineLimit int           `default:"10000" usage:"Liveness fails above this many goroutines" flag:"goroutine-limit"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadConfig loads configuration from the environment, flags and YAML files,
// then applies platform defaults.
func LoadConfig() (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "STORE",
		Files:     []string{"config.yaml", "/etc/storefront/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.DatabaseURL == "" {
		return errors.New("database URL is required: set STORE_DATABASE_URL or DATABASE_URL")
	}
	if c.Throttle.Max > 0 && c.Throttle.Window <= 0 {
		return errors.New("throttle window must be positive when throttle max is set")
	}
	if c.Health.Interval <= 0 {
		return errors.New("health interval must be positive")
	}
	return nil
}

// applyPlatformDefaults honours the DATABASE_URL and PORT variables set by
// hosting platforms when the STORE_ equivalents are absent.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		c.DatabaseURL = os.Getenv("DATABASE_URL")
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == defaultAddr {
		c.Addr = "0.0.0.0:" + port
	}
}
