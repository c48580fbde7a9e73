// Package config assembles the server configuration from, in order of
// priority, command line flags, environment variables (optionally loaded
// from a .env file), a JSON or YAML config file and built-in defaults.
package config

import (
	"flag"
	"fmt"
	"os"
	"reflect"
	"strings"
	"time"

	env "github.com/caarlos0/env/v6"
	validator "github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/patric-chuzhbe/smartmark/internal/logger"
)

// Config holds every server setting.
type Config struct {
	RunAddr                    string        `env:"SERVER_ADDRESS" yaml:"server_address" validate:"hostname_port"`
	BaseURL                    string        `env:"BASE_URL" yaml:"base_url" validate:"url"`
	LogLevel                   string        `env:"LOG_LEVEL" yaml:"log_level" validate:"loglevel"`
	DBFileName                 string        `env:"FILE_STORAGE_PATH" yaml:"file_storage_path" validate:"omitempty,filepath"`
	DatabaseDSN                string        `env:"DATABASE_DSN" yaml:"database_dsn"`
	DBConnectionTimeout        time.Duration `env:"DB_CONNECTION_TIMEOUT" yaml:"db_connection_timeout"`
	MigrationsDir              string        `env:"MIGRATIONS_DIR" yaml:"migrations_dir"`
	AuthCookieName             string        `env:"AUTH_COOKIE_NAME" yaml:"auth_cookie_name" validate:"required"`
	AuthCookieSigningSecretKey string        `env:"AUTH_COOKIE_SIGNING_SECRET_KEY" yaml:"auth_cookie_signing_secret_key" validate:"min=16"`
	SessionTTL                 time.Duration `env:"SESSION_TTL" yaml:"session_ttl"`
	OAuthProvider              string        `env:"OAUTH_PROVIDER" yaml:"oauth_provider" validate:"required"`
	OAuthClientID              string        `env:"OAUTH_CLIENT_ID" yaml:"oauth_client_id"`
	OAuthClientSecret          string        `env:"OAUTH_CLIENT_SECRET" yaml:"oauth_client_secret"`
	OAuthAuthURL               string        `env:"OAUTH_AUTH_URL" yaml:"oauth_auth_url" validate:"url"`
	OAuthTokenURL              string        `env:"OAUTH_TOKEN_URL" yaml:"oauth_token_url" validate:"url"`
	OAuthUserInfoURL           string        `env:"OAUTH_USERINFO_URL" yaml:"oauth_userinfo_url" validate:"url"`
	OAuthScopes                []string      `env:"OAUTH_SCOPES" envSeparator:"," yaml:"oauth_scopes"`
	GRPCAddr                   string        `env:"GRPC_ADDRESS" yaml:"grpc_address" validate:"omitempty,hostname_port"`
	TrustedSubnet              string        `env:"TRUSTED_SUBNET" yaml:"trusted_subnet" validate:"omitempty,cidr"`
	RedisAddr                  string        `env:"REDIS_ADDR" yaml:"redis_addr" validate:"omitempty,hostname_port"`
	RedisPassword              string        `env:"REDIS_PASSWORD" yaml:"redis_password"`
	RedisDB                    int           `env:"REDIS_DB" yaml:"redis_db"`
	ChangesHeartbeat           time.Duration `env:"CHANGES_HEARTBEAT" yaml:"changes_heartbeat"`
	SubscriberBuffer           int           `env:"SUBSCRIBER_BUFFER" yaml:"subscriber_buffer" validate:"min=1"`
	ConfigFile                 string        `env:"CONFIG" yaml:"-"`
}

var defaultConfig = Config{
	RunAddr:                    ":8080",
	BaseURL:                    "http://localhost:8080",
	LogLevel:                   "info",
	DBConnectionTimeout:        10 * time.Second,
	MigrationsDir:              "migrations",
	AuthCookieName:             "smartmark_session",
	AuthCookieSigningSecretKey: "smartmark-dev-signing-key-change-me",
	SessionTTL:                 7 * 24 * time.Hour,
	OAuthProvider:              "google",
	OAuthAuthURL:               "https://accounts.google.com/o/oauth2/auth",
	OAuthTokenURL:              "https://oauth2.googleapis.com/token",
	OAuthUserInfoURL:           "https://openidconnect.googleapis.com/v1/userinfo",
	OAuthScopes:                []string{"openid", "email"},
	GRPCAddr:                   ":3200",
	ChangesHeartbeat:           15 * time.Second,
	SubscriberBuffer:           8,
}

type InitOption func(*initOptions)

type initOptions struct {
	disableFlagsParsing bool
	args                []string
}

// WithDisableFlagsParsing makes New ignore the command line.
func WithDisableFlagsParsing(disableFlagsParsing bool) InitOption {
	return func(options *initOptions) {
		options.disableFlagsParsing = disableFlagsParsing
	}
}

// WithArgs replaces os.Args[1:] as the source of command line flags.
func WithArgs(args []string) InitOption {
	return func(options *initOptions) {
		options.args = args
	}
}

// New builds and validates the configuration.
func New(optionsProto ...InitOption) (*Config, error) {
	options := &initOptions{
		disableFlagsParsing: false,
		args:                nil,
	}
	for _, protoOption := range optionsProto {
		protoOption(options)
	}
	if options.args == nil && len(os.Args) > 1 {
		options.args = os.Args[1:]
	}

	if err := godotenv.Load(); err != nil {
		logger.Log.Debugw("unable to load .env file", "err", err)
	}

	var fromCLI Config
	if !options.disableFlagsParsing {
		if err := fromCLI.parseFlags(options.args); err != nil {
			return nil, err
		}
	}

	var fromEnv Config
	if err := env.Parse(&fromEnv); err != nil {
		return nil, fmt.Errorf("in internal/config/config.go/New(): error while `env.Parse()` calling: %w", err)
	}

	configFile := fromCLI.ConfigFile
	if configFile == "" {
		configFile = fromEnv.ConfigFile
	}

	fromFile := &Config{}
	if configFile != "" {
		var err error
		if fromFile, err = loadFile(configFile); err != nil {
			return nil, err
		}
	}

	// Each source fills only what is still unset, so apply from the most
	// important one down.
	result := &Config{}
	applyDefaults(result, fromCLI)
	applyDefaults(result, fromEnv)
	applyDefaults(result, *fromFile)
	applyDefaults(result, defaultConfig)
	result.ConfigFile = configFile

	result.BaseURL = strings.TrimRight(result.BaseURL, "/")

	if err := result.validate(); err != nil {
		return nil, err
	}

	return result, nil
}

func (c *Config) parseFlags(args []string) error {
	flags := flag.NewFlagSet("smartmark", flag.ContinueOnError)
	flags.StringVar(&c.RunAddr, "a", "", "address and port to run the HTTP server")
	flags.StringVar(&c.BaseURL, "b", "", "public base URL of the service, used for OAuth redirects")
	flags.StringVar(&c.LogLevel, "l", "", "logger level")
	flags.StringVar(&c.DBFileName, "f", "", "JSON file name with database")
	flags.StringVar(&c.DatabaseDSN, "d", "", "A string with the database connection details")
	flags.StringVar(&c.GRPCAddr, "g", "", "address and port to run the gRPC server")
	flags.StringVar(&c.TrustedSubnet, "t", "", "CIDR allowed to read internal stats")
	flags.StringVar(&c.ConfigFile, "c", "", "path to a JSON or YAML config file")

	if err := flags.Parse(args); err != nil {
		return fmt.Errorf("in internal/config/config.go/parseFlags(): error while `flags.Parse()` calling: %w", err)
	}

	return nil
}

// loadFile reads a JSON or YAML config file. JSON is valid YAML, so one
// decoder serves both.
func loadFile(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("in internal/config/config.go/loadFile(): error while `os.ReadFile()` calling: %w", err)
	}

	var values Config
	if err := yaml.Unmarshal(raw, &values); err != nil {
		return nil, fmt.Errorf("in internal/config/config.go/loadFile(): error while `yaml.Unmarshal()` calling: %w", err)
	}

	return &values, nil
}

// applyDefaults copies every non-zero field of defaults into the
// corresponding zero field of dst.
func applyDefaults(dst *Config, defaults Config) {
	dstValue := reflect.ValueOf(dst).Elem()
	srcValue := reflect.ValueOf(defaults)

	for i := 0; i < dstValue.NumField(); i++ {
		field := dstValue.Field(i)
		if !field.IsZero() {
			continue
		}
		field.Set(srcValue.Field(i))
	}
}

func validateFilePath(fieldLevel validator.FieldLevel) bool {
	path := fieldLevel.Field().String()
	_, err := os.Stat(path)

	return err == nil || os.IsNotExist(err)
}

func validateLogLevel(fieldLevel validator.FieldLevel) bool {
	value := fieldLevel.Field().String()

	allowedLogLevels := map[string]bool{
		"debug":   true,
		"info":    true,
		"warning": true,
		"error":   true,
		"fatal":   true,
	}

	return allowedLogLevels[value]
}

func (c *Config) validate() error {
	validate := validator.New()

	err := validate.RegisterValidation("loglevel", validateLogLevel)
	if err != nil {
		return err
	}

	err = validate.RegisterValidation("filepath", validateFilePath)
	if err != nil {
		return err
	}

	return validate.Struct(c)
}
