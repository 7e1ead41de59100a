package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	HTTP struct {
		Addr           string
		AllowedOrigins string `mapstructure:"allowed_origins"`
		BodyLimit      int64  `mapstructure:"body_limit"`
	} `mapstructure:"http"`

	Database struct {
		URL            string
		MaxConns       int32 `mapstructure:"max_conns"`
		MigrateOnStart bool  `mapstructure:"migrate_on_start"`
	} `mapstructure:"database"`

	Auth struct {
		JWTSecret     string        `mapstructure:"jwt_secret"`
		TokenTTL      time.Duration `mapstructure:"token_ttl"`
		AdminUsername string        `mapstructure:"admin_username"`
		AdminPassword string        `mapstructure:"admin_password"`
	} `mapstructure:"auth"`

	Log struct {
		Level  string
		Format string
	} `mapstructure:"log"`

	Metrics struct {
		Enabled bool
	} `mapstructure:"metrics"`

	NATS struct {
		URL string
	} `mapstructure:"nats"`

	OpenAI struct {
		APIKey string `mapstructure:"api_key"`
		Model  string
	} `mapstructure:"openai"`

	Version string
}

// Load reads configuration from an optional YAML file and ERP_* environment
// variables. A .env file in the working directory is loaded first if present.
// Load does not validate; the server calls Validate before starting.
func Load(path string) (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("ERP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var c Config
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return c, fmt.Errorf("read config %s: %w", path, err)
		}
	}
	if err := v.Unmarshal(&c); err != nil {
		return c, fmt.Errorf("decode config: %w", err)
	}
	return c, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.allowed_origins", "")
	v.SetDefault("http.body_limit", 1<<20)
	v.SetDefault("database.url", "")
	v.SetDefault("database.max_conns", 10)
	v.SetDefault("database.migrate_on_start", false)
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.token_ttl", 24*time.Hour)
	v.SetDefault("auth.admin_username", "admin")
	v.SetDefault("auth.admin_password", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("nats.url", "")
	v.SetDefault("openai.api_key", "")
	v.SetDefault("openai.model", "gpt-4o")
	v.SetDefault("version", "dev")
}

// Validate reports settings the server cannot start without.
func (c Config) Validate() error {
	var errs []error
	if c.Database.URL == "" {
		errs = append(errs, errors.New("database.url (ERP_DATABASE_URL) is required"))
	}
	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("auth.jwt_secret (ERP_AUTH_JWT_SECRET) is required"))
	}
	if c.Auth.TokenTTL <= 0 {
		errs = append(errs, fmt.Errorf("auth.token_ttl must be positive, got %s", c.Auth.TokenTTL))
	}
	return errors.Join(errs...)
}
