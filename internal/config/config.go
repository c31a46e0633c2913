// Package config loads runtime settings from an optional config file, the
// process environment and a .env file, in increasing order of precedence for
// the environment.
package config

import (
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"
	"github.com/spf13/viper"
)

const envPrefix = "NEXO"

type Config struct {
	HTTPAddr string `mapstructure:"http_addr"`
	LogLevel string `mapstructure:"log_level"`
	Locale   string `mapstructure:"locale"`
	Broker   string `mapstructure:"broker"`

	Database Database `mapstructure:"database"`
	Redis    Redis    `mapstructure:"redis"`
	JWT      JWT      `mapstructure:"jwt"`
}

type Database struct {
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
}

type Redis struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type JWT struct {
	Secret string        `mapstructure:"secret"`
	Issuer string        `mapstructure:"issuer"`
	TTL    time.Duration `mapstructure:"ttl"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("http_addr", ":8080")
	v.SetDefault("log_level", "info")
	v.SetDefault("locale", "en")
	v.SetDefault("broker", "redis")
	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.dsn", "host=localhost user=user password=password dbname=nexochat port=5432 sslmode=disable")
	v.SetDefault("redis.addr", "localhost:6380")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("jwt.secret", "")
	v.SetDefault("jwt.issuer", "nexochat-service")
	v.SetDefault("jwt.ttl", 72*time.Hour)
}

// Load reads .env (if present), then the file named by NEXO_CONFIG (if set),
// then NEXO_* environment variables, e.g. NEXO_DATABASE_DSN.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		jww.DEBUG.Printf("No .env file loaded: %v", err)
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if file := v.GetString("config"); file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "failed to read config file %s", file)
		}
	}

	return Parse(v)
}

// Parse decodes an already populated viper instance.
func Parse(v *viper.Viper) (*Config, error) {
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, errors.Wrap(err, "unable to unmarshal config")
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		return errors.Errorf("unsupported database driver %q", c.Database.Driver)
	}
	switch c.Broker {
	case "redis", "memory":
	default:
		return errors.Errorf("unsupported broker %q", c.Broker)
	}
	if c.JWT.Secret == "" {
		return errors.New("jwt secret is required (NEXO_JWT_SECRET)")
	}
	return nil
}

// Threshold maps log_level onto a jwalterweatherman threshold.
func (c *Config) Threshold() jww.Threshold {
	switch strings.ToLower(c.LogLevel) {
	case "trace":
		return jww.LevelTrace
	case "debug":
		return jww.LevelDebug
	case "warn":
		return jww.LevelWarn
	case "error":
		return jww.LevelError
	default:
		return jww.LevelInfo
	}
}
