package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Init wires viper to the optional .env file and the process environment.
// Missing config files are not an error; defaults and env vars still apply.
func Init(configFile string) error {
	if configFile == "" {
		configFile = ".env"
	}
	viper.SetConfigFile(configFile)
	viper.SetConfigType("env")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	bindings := map[string]string{
		"database.host":              "DATABASE_HOST",
		"database.port":              "DATABASE_PORT",
		"database.user":              "DATABASE_USER",
		"database.password":          "DATABASE_PASSWORD",
		"database.name":              "DATABASE_NAME",
		"database.ssl_mode":          "DATABASE_SSL_MODE",
		"database.auto_migrate":      "DATABASE_AUTO_MIGRATE",
		"redis.host":                 "REDIS_HOST",
		"redis.port":                 "REDIS_PORT",
		"redis.password":             "REDIS_PASSWORD",
		"redis.db":                   "REDIS_DB",
		"jwt.secret_key":             "JWT_SECRET_KEY",
		"ledger.allow_overdraft":     "LEDGER_ALLOW_OVERDRAFT",
		"ledger.default_page_size":   "LEDGER_DEFAULT_PAGE_SIZE",
		"ledger.max_page_size":       "LEDGER_MAX_PAGE_SIZE",
		"admin.grant_limit":          "ADMIN_GRANT_LIMIT",
		"admin.grant_window":         "ADMIN_GRANT_WINDOW",
		"stripe.webhook_secret":      "STRIPE_WEBHOOK_SECRET",
		"stripe.signature_tolerance": "STRIPE_SIGNATURE_TOLERANCE",
		"log.level":                  "LOG_LEVEL",
		"server.port":                "PORT",
	}
	for key, env := range bindings {
		if err := viper.BindEnv(key, env); err != nil {
			return err
		}
	}

	if err := viper.ReadInConfig(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("read config %s: %w", configFile, err)
	}
	return nil
}

// LedgerConfig controls balance policy and listing limits.
type LedgerConfig struct {
	AllowOverdraft  bool
	DefaultPageSize int
	MaxPageSize     int
}

// LoadLedgerConfig returns ledger configuration with defaults
func LoadLedgerConfig() *LedgerConfig {
	viper.SetDefault("ledger.allow_overdraft", false)
	viper.SetDefault("ledger.default_page_size", 20)
	viper.SetDefault("ledger.max_page_size", 100)

	cfg := &LedgerConfig{
		AllowOverdraft:  viper.GetBool("ledger.allow_overdraft"),
		DefaultPageSize: viper.GetInt("ledger.default_page_size"),
		MaxPageSize:     viper.GetInt("ledger.max_page_size"),
	}
	if cfg.MaxPageSize <= 0 {
		cfg.MaxPageSize = 100
	}
	if cfg.DefaultPageSize <= 0 || cfg.DefaultPageSize > cfg.MaxPageSize {
		cfg.DefaultPageSize = min(20, cfg.MaxPageSize)
	}
	return cfg
}

// AdminConfig limits how often a single operator may issue manual grants.
type AdminConfig struct {
	GrantLimit  int
	GrantWindow time.Duration
}

func LoadAdminConfig() *AdminConfig {
	viper.SetDefault("admin.grant_limit", 20)
	viper.SetDefault("admin.grant_window", time.Hour)

	return &AdminConfig{
		GrantLimit:  viper.GetInt("admin.grant_limit"),
		GrantWindow: viper.GetDuration("admin.grant_window"),
	}
}

// StripeConfig holds webhook verification settings.
type StripeConfig struct {
	WebhookSecret      string
	SignatureTolerance time.Duration
}

func LoadStripeConfig() *StripeConfig {
	viper.SetDefault("stripe.signature_tolerance", 5*time.Minute)

	return &StripeConfig{
		WebhookSecret:      viper.GetString("stripe.webhook_secret"),
		SignatureTolerance: viper.GetDuration("stripe.signature_tolerance"),
	}
}

// ServerConfig holds HTTP listener and token verification settings.
type ServerConfig struct {
	Port      string
	JWTSecret string
	LogLevel  string
}

func LoadServerConfig() *ServerConfig {
	viper.SetDefault("server.port", "8080")
	viper.SetDefault("log.level", "info")

	return &ServerConfig{
		Port:      viper.GetString("server.port"),
		JWTSecret: viper.GetString("jwt.secret_key"),
		LogLevel:  viper.GetString("log.level"),
	}
}
