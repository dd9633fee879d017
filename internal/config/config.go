package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"
)

// EnvPrefix namespaces every application environment variable.
const EnvPrefix = "ADROLLUP"

// EmailEnvPrefix namespaces the mail account variables (EMAIL_SENDER, ...).
const EmailEnvPrefix = "EMAIL"

// ConfigFileEnv points Load at an explicit YAML file.
const ConfigFileEnv = "ADROLLUP_CONFIG_FILE"

// Config represents the complete application configuration
type Config struct {
	Server    ServerConfig    `yaml:"server" envconfig:"SERVER"`
	Security  SecurityConfig  `yaml:"security" envconfig:"SECURITY"`
	Logging   LoggingConfig   `yaml:"logging" envconfig:"LOGGING"`
	Paths     PathsConfig     `yaml:"paths" envconfig:"PATHS"`
	Storage   StorageConfig   `yaml:"storage" envconfig:"STORAGE"`
	Archive   ArchiveConfig   `yaml:"archive" envconfig:"ARCHIVE"`
	Telemetry TelemetryConfig `yaml:"telemetry" envconfig:"TELEMETRY"`
	Email     EmailConfig     `yaml:"email" ignored:"true"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Port            int           `yaml:"port" envconfig:"PORT" default:"8080" validate:"min=1,max=65535"`
	ReadTimeout     time.Duration `yaml:"read_timeout" envconfig:"READ_TIMEOUT" default:"30s" validate:"gt=0"`
	WriteTimeout    time.Duration `yaml:"write_timeout" envconfig:"WRITE_TIMEOUT" default:"60s" validate:"gt=0"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" envconfig:"IDLE_TIMEOUT" default:"60s"`
	MaxHeaderBytes  int           `yaml:"max_header_bytes" envconfig:"MAX_HEADER_BYTES" default:"1048576"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" envconfig:"SHUTDOWN_TIMEOUT" default:"30s"`
	MaxUploadBytes  int64         `yaml:"max_upload_bytes" envconfig:"MAX_UPLOAD_BYTES" default:"52428800" validate:"gt=0"`
}

// SecurityConfig contains security-related configuration
type SecurityConfig struct {
	AllowedOrigins []string        `yaml:"allowed_origins" envconfig:"ALLOWED_ORIGINS" default:"http://localhost:8080" validate:"min=1"`
	EnableCORS     bool            `yaml:"enable_cors" envconfig:"ENABLE_CORS" default:"true"`
	RateLimit      RateLimitConfig `yaml:"rate_limit" envconfig:"RATE_LIMIT"`
}

// RateLimitConfig contains rate limiting configuration
type RateLimitConfig struct {
	Enabled bool    `yaml:"enabled" envconfig:"ENABLED" default:"true"`
	RPS     float64 `yaml:"rps" envconfig:"RPS" default:"20" validate:"gte=0"`
	Burst   int     `yaml:"burst" envconfig:"BURST" default:"40" validate:"gte=0"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level    string `yaml:"level" envconfig:"LEVEL" default:"info" validate:"oneof=debug info warn warning error"`
	Format   string `yaml:"format" envconfig:"FORMAT" default:"json"`
	Output   string `yaml:"output" envconfig:"OUTPUT" default:"console" validate:"oneof=console file both"`
	FilePath string `yaml:"file_path" envconfig:"FILE_PATH" default:"logs/adrollup.log"`
}

// PathsConfig contains file system paths configuration. Relative paths are
// resolved against BaseDir, which defaults to the executable directory.
type PathsConfig struct {
	BaseDir    string `yaml:"base_dir" envconfig:"BASE_DIR"`
	DataDir    string `yaml:"data_dir" envconfig:"DATA_DIR" default:"data"`
	WorkDir    string `yaml:"work_dir" envconfig:"WORK_DIR" default:"data/work"`
	ReportsDir string `yaml:"reports_dir" envconfig:"REPORTS_DIR" default:"data/reports"`
	LogsDir    string `yaml:"logs_dir" envconfig:"LOGS_DIR" default:"logs"`
}

// StorageConfig selects where sheet stores live and how long run results are
// kept.
type StorageConfig struct {
	Backend    string        `yaml:"backend" envconfig:"BACKEND" default:"file" validate:"oneof=file memory"`
	SessionTTL time.Duration `yaml:"session_ttl" envconfig:"SESSION_TTL" default:"30m" validate:"gt=0"`
}

// ArchiveConfig selects where exported reports are archived on request.
type ArchiveConfig struct {
	Backend string `yaml:"backend" envconfig:"BACKEND" default:"none" validate:"oneof=none local gcs"`
	Bucket  string `yaml:"bucket" envconfig:"BUCKET" validate:"required_if=Backend gcs"`
	Prefix  string `yaml:"prefix" envconfig:"PREFIX" default:"reports"`
}

// TelemetryConfig controls OpenTelemetry metrics and tracing.
type TelemetryConfig struct {
	Environment    string  `yaml:"environment" envconfig:"ENVIRONMENT" default:"development"`
	MetricsEnabled bool    `yaml:"metrics_enabled" envconfig:"METRICS_ENABLED" default:"true"`
	TraceExporter  string  `yaml:"trace_exporter" envconfig:"TRACE_EXPORTER" default:"none" validate:"oneof=none stdout"`
	SampleRatio    float64 `yaml:"sample_ratio" envconfig:"SAMPLE_RATIO" default:"1" validate:"gte=0,lte=1"`
}

// EmailConfig is the SMTP account the validation digest is sent from. It is
// read from EMAIL_* variables and may be incomplete; incomplete settings only
// disable notifications.
type EmailConfig struct {
	Sender   string `yaml:"sender" envconfig:"SENDER"`
	Password string `yaml:"password" envconfig:"PASSWORD"`
	Receiver string `yaml:"receiver" envconfig:"RECEIVER"`
	SMTPHost string `yaml:"smtp_host" envconfig:"SMTP_HOST" default:"smtp.gmail.com"`
	SMTPPort int    `yaml:"smtp_port" envconfig:"SMTP_PORT" default:"465"`
}

// Load loads configuration from environment variables and config file
func Load() (*Config, error) {
	var cfg Config

	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}
	if err := envconfig.Process(EmailEnvPrefix, &cfg.Email); err != nil {
		return nil, fmt.Errorf("failed to load email config from env: %w", err)
	}

	if configFile := getConfigFilePath(); configFile != "" {
		fileConfig, err := loadFromFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
		cfg = mergeConfigs(*fileConfig, cfg)
	}

	if err := cfg.resolvePaths(); err != nil {
		return nil, fmt.Errorf("failed to resolve paths: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// loadFromFile loads configuration from YAML file
func loadFromFile(filePath string) (*Config, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// mergeConfigs applies file values to settings the environment did not set
// explicitly. envconfig defaults count as unset.
func mergeConfigs(fileConfig, envConfig Config) Config {
	set := func(name string) bool {
		_, ok := os.LookupEnv(name)
		return ok
	}
	env := func(section, key string) string { return EnvPrefix + "_" + section + "_" + key }

	if fileConfig.Server.Port != 0 && !set(env("SERVER", "PORT")) {
		envConfig.Server.Port = fileConfig.Server.Port
	}
	if fileConfig.Server.ReadTimeout != 0 && !set(env("SERVER", "READ_TIMEOUT")) {
		envConfig.Server.ReadTimeout = fileConfig.Server.ReadTimeout
	}
	if fileConfig.Server.WriteTimeout != 0 && !set(env("SERVER", "WRITE_TIMEOUT")) {
		envConfig.Server.WriteTimeout = fileConfig.Server.WriteTimeout
	}
	if fileConfig.Server.MaxUploadBytes != 0 && !set(env("SERVER", "MAX_UPLOAD_BYTES")) {
		envConfig.Server.MaxUploadBytes = fileConfig.Server.MaxUploadBytes
	}
	if len(fileConfig.Security.AllowedOrigins) > 0 && !set(env("SECURITY", "ALLOWED_ORIGINS")) {
		envConfig.Security.AllowedOrigins = fileConfig.Security.AllowedOrigins
	}
	if fileConfig.Logging.Level != "" && !set(env("LOGGING", "LEVEL")) {
		envConfig.Logging.Level = fileConfig.Logging.Level
	}
	if fileConfig.Logging.Output != "" && !set(env("LOGGING", "OUTPUT")) {
		envConfig.Logging.Output = fileConfig.Logging.Output
	}
	if fileConfig.Paths.BaseDir != "" && !set(env("PATHS", "BASE_DIR")) {
		envConfig.Paths.BaseDir = fileConfig.Paths.BaseDir
	}
	if fileConfig.Paths.WorkDir != "" && !set(env("PATHS", "WORK_DIR")) {
		envConfig.Paths.WorkDir = fileConfig.Paths.WorkDir
	}
	if fileConfig.Paths.ReportsDir != "" && !set(env("PATHS", "REPORTS_DIR")) {
		envConfig.Paths.ReportsDir = fileConfig.Paths.ReportsDir
	}
	if fileConfig.Storage.Backend != "" && !set(env("STORAGE", "BACKEND")) {
		envConfig.Storage.Backend = fileConfig.Storage.Backend
	}
	if fileConfig.Storage.SessionTTL != 0 && !set(env("STORAGE", "SESSION_TTL")) {
		envConfig.Storage.SessionTTL = fileConfig.Storage.SessionTTL
	}
	if fileConfig.Archive.Backend != "" && !set(env("ARCHIVE", "BACKEND")) {
		envConfig.Archive.Backend = fileConfig.Archive.Backend
	}
	if fileConfig.Archive.Bucket != "" && !set(env("ARCHIVE", "BUCKET")) {
		envConfig.Archive.Bucket = fileConfig.Archive.Bucket
	}
	if fileConfig.Archive.Prefix != "" && !set(env("ARCHIVE", "PREFIX")) {
		envConfig.Archive.Prefix = fileConfig.Archive.Prefix
	}
	if fileConfig.Telemetry.Environment != "" && !set(env("TELEMETRY", "ENVIRONMENT")) {
		envConfig.Telemetry.Environment = fileConfig.Telemetry.Environment
	}
	if fileConfig.Telemetry.TraceExporter != "" && !set(env("TELEMETRY", "TRACE_EXPORTER")) {
		envConfig.Telemetry.TraceExporter = fileConfig.Telemetry.TraceExporter
	}
	// Mail secrets only ever come from the environment; the file may name
	// the receiver and server.
	if fileConfig.Email.Receiver != "" && !set(EmailEnvPrefix+"_RECEIVER") {
		envConfig.Email.Receiver = fileConfig.Email.Receiver
	}
	if fileConfig.Email.SMTPHost != "" && !set(EmailEnvPrefix+"_SMTP_HOST") {
		envConfig.Email.SMTPHost = fileConfig.Email.SMTPHost
	}
	if fileConfig.Email.SMTPPort != 0 && !set(EmailEnvPrefix+"_SMTP_PORT") {
		envConfig.Email.SMTPPort = fileConfig.Email.SMTPPort
	}

	return envConfig
}

// validate validates the configuration
func (c *Config) validate() error {
	if err := validator.New().Struct(c); err != nil {
		return err
	}

	// Logs are always structured JSON.
	c.Logging.Format = "json"
	return nil
}

// getConfigFilePath returns the path to the config file, or "" when none is
// found.
func getConfigFilePath() string {
	if explicit := os.Getenv(ConfigFileEnv); explicit != "" {
		return explicit
	}

	locations := []string{
		"config.yaml",
		"configs/config.yaml",
	}
	for _, location := range locations {
		if _, err := os.Stat(location); err == nil {
			return location
		}
	}
	return ""
}

// Default returns default configuration
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    60 * time.Second,
			IdleTimeout:     60 * time.Second,
			MaxHeaderBytes:  1 << 20,
			ShutdownTimeout: 30 * time.Second,
			MaxUploadBytes:  50 << 20,
		},
		Security: SecurityConfig{
			AllowedOrigins: []string{"http://localhost:8080"},
			EnableCORS:     true,
			RateLimit: RateLimitConfig{
				Enabled: true,
				RPS:     20,
				Burst:   40,
			},
		},
		Logging: LoggingConfig{
			Level:    "info",
			Format:   "json",
			Output:   "console",
			FilePath: "logs/adrollup.log",
		},
		Paths: PathsConfig{
			DataDir:    "data",
			WorkDir:    "data/work",
			ReportsDir: "data/reports",
			LogsDir:    "logs",
		},
		Storage: StorageConfig{
			Backend:    "file",
			SessionTTL: 30 * time.Minute,
		},
		Archive: ArchiveConfig{
			Backend: "none",
			Prefix:  "reports",
		},
		Telemetry: TelemetryConfig{
			Environment:    "development",
			MetricsEnabled: true,
			TraceExporter:  "none",
			SampleRatio:    1,
		},
		Email: EmailConfig{
			SMTPHost: "smtp.gmail.com",
			SMTPPort: 465,
		},
	}
}
