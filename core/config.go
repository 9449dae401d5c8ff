package core

import (
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// Database engines
const (
	EnginePostgres = "postgres"
	EngineMongo    = "mongo"
	EngineMemory   = "memory"
)

var (
	errMissingSecretKey = errors.New("secret_key is required")
	errUnknownEngine    = errors.New("unknown database engine")
	errMemoryEngine     = errors.New("the memory engine is only allowed in debug or test mode")
)

type (
	ServerConfig struct {
		Address                   string
		DebugAddress              string
		ReadTimeout               time.Duration
		WriteTimeout              time.Duration
		ShutdownTimeout           time.Duration
		RequestTimeout            time.Duration
		BodyLimit                 string
		JWTExpirationDelta        time.Duration
		JWTRefreshExpirationDelta time.Duration
	}

	DatabaseConfig struct {
		Engine        string
		Host          string
		Port          string
		User          string
		Password      string
		AdminUser     string
		AdminPassword string
		Name          string
		DisableTLS    bool
		MongoURI      string
		MongoDatabase string
	}

	Config struct {
		Debug            bool
		TestMode         bool
		AppName          string
		Env              string
		Build            string
		SecretKey        string
		RollbarToken     string
		SendgridAPIKey   string
		DefaultFromEmail string
		OpsEmail         string
		FinanceBaseURL   string
		FinanceAPIKey    string
		Timezone         string
		Server           ServerConfig
		Database         DatabaseConfig
	}
)

// Address returns the postgres "host:port" pair.
func (dc DatabaseConfig) Address() string {
	return net.JoinHostPort(dc.Host, dc.Port)
}

// Location loads the configured timezone, falling back to UTC.
func (c *Config) Location() *time.Location {
	if loc, err := time.LoadLocation(c.Timezone); err == nil {
		return loc
	}
	return time.UTC
}

// Validate fails when a value the app cannot run without is absent.
// Secrets never fall back to built-in defaults.
func (c *Config) Validate() error {
	if c.SecretKey == "" {
		return errMissingSecretKey
	}
	switch c.Database.Engine {
	case EnginePostgres:
		if c.Database.Host == "" || c.Database.Name == "" {
			return errors.New("db.host and db.name are required for the postgres engine")
		}
	case EngineMongo:
		if c.Database.MongoURI == "" {
			return errors.New("db.mongo_uri is required for the mongo engine")
		}
	case EngineMemory:
		if !(c.Debug || c.TestMode) {
			return errMemoryEngine
		}
	default:
		return errors.Wrap(errUnknownEngine, c.Database.Engine)
	}
	return nil
}

// NewConfig reads the configuration from the environment (and `config/.env.<env>` when present).
// ENV selects the environment: DEV (default), TEST, QA or PROD. Keys are read with the env as prefix,
// e.g. `db.mongo_uri` is read from PROD_DB_MONGO_URI.
func NewConfig() (*Config, error) {
	env := strings.ToUpper(os.Getenv("ENV"))
	if env == "" {
		env = "DEV"
	}

	// load .env if it exists (ignore if it does not)
	wd, err := os.Getwd()
	if err != nil {
		return nil, errors.Wrap(err, "getting working directory")
	}
	dotEnvPath := filepath.Join(wd, "config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			return nil, errors.Wrapf(err, "loading %s", dotEnvPath)
		}
	} else if !os.IsNotExist(err) {
		return nil, errors.Wrapf(err, "reading %s", dotEnvPath)
	}

	v := viper.New()
	v.SetEnvPrefix(env)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// defaults (no secrets here)
	v.SetTypeByDefaultValue(true)
	v.SetDefault("debug", env == "DEV")
	v.SetDefault("test_mode", env == "TEST")
	v.SetDefault("app_name", "Chuo")
	v.SetDefault("build", "develop")
	v.SetDefault("default_from_email", "noreply@localhost")
	v.SetDefault("timezone", "Africa/Cairo")
	v.SetDefault("server.address", ":8000")
	v.SetDefault("server.debug_address", ":4000")
	v.SetDefault("server.read_timeout", 5*time.Minute)
	v.SetDefault("server.write_timeout", 5*time.Minute)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("server.request_timeout", 5*time.Minute)
	v.SetDefault("server.body_limit", "50M")
	v.SetDefault("server.jwt_expiration_delta", 7*24*time.Hour)
	v.SetDefault("server.jwt_refresh_expiration_delta", 4*time.Hour)
	v.SetDefault("db.engine", EnginePostgres)
	v.SetDefault("db.port", "5432")
	v.SetDefault("db.disable_tls", false)
	v.SetDefault("db.mongo_database", "chuo")

	conf := &Config{
		Debug:            v.GetBool("debug"),
		TestMode:         v.GetBool("test_mode"),
		AppName:          v.GetString("app_name"),
		Env:              env,
		Build:            v.GetString("build"),
		SecretKey:        v.GetString("secret_key"),
		RollbarToken:     v.GetString("rollbar_token"),
		SendgridAPIKey:   v.GetString("sendgrid_api_key"),
		DefaultFromEmail: v.GetString("default_from_email"),
		OpsEmail:         v.GetString("ops_email"),
		FinanceBaseURL:   v.GetString("finance_base_url"),
		FinanceAPIKey:    v.GetString("finance_api_key"),
		Timezone:         v.GetString("timezone"),
		Server: ServerConfig{
			Address:                   v.GetString("server.address"),
			DebugAddress:              v.GetString("server.debug_address"),
			ReadTimeout:               v.GetDuration("server.read_timeout"),
			WriteTimeout:              v.GetDuration("server.write_timeout"),
			ShutdownTimeout:           v.GetDuration("server.shutdown_timeout"),
			RequestTimeout:            v.GetDuration("server.request_timeout"),
			BodyLimit:                 v.GetString("server.body_limit"),
			JWTExpirationDelta:        v.GetDuration("server.jwt_expiration_delta"),
			JWTRefreshExpirationDelta: v.GetDuration("server.jwt_refresh_expiration_delta"),
		},
		Database: DatabaseConfig{
			Engine:        v.GetString("db.engine"),
			Host:          v.GetString("db.host"),
			Port:          v.GetString("db.port"),
			User:          v.GetString("db.user"),
			Password:      v.GetString("db.password"),
			AdminUser:     v.GetString("db.admin_user"),
			AdminPassword: v.GetString("db.admin_password"),
			Name:          v.GetString("db.name"),
			DisableTLS:    v.GetBool("db.disable_tls"),
			MongoURI:      v.GetString("db.mongo_uri"),
			MongoDatabase: v.GetString("db.mongo_database"),
		},
	}

	if err := conf.Validate(); err != nil {
		return nil, errors.Wrap(err, "validating config")
	}
	return conf, nil
}
