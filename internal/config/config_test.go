package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var managedEnv = []string{
	"ADROLLUP_SERVER_PORT", "ADROLLUP_SERVER_READ_TIMEOUT", "ADROLLUP_SERVER_MAX_UPLOAD_BYTES",
	"ADROLLUP_SECURITY_ALLOWED_ORIGINS", "ADROLLUP_SECURITY_ENABLE_CORS",
	"ADROLLUP_LOGGING_LEVEL", "ADROLLUP_LOGGING_FORMAT", "ADROLLUP_LOGGING_OUTPUT",
	"ADROLLUP_PATHS_BASE_DIR", "ADROLLUP_PATHS_WORK_DIR",
	"ADROLLUP_STORAGE_BACKEND", "ADROLLUP_STORAGE_SESSION_TTL",
	"ADROLLUP_ARCHIVE_BACKEND", "ADROLLUP_ARCHIVE_BUCKET",
	"EMAIL_SENDER", "EMAIL_PASSWORD", "EMAIL_RECEIVER", "EMAIL_SMTP_HOST", "EMAIL_SMTP_PORT",
	ConfigFileEnv,
}

// clearEnv unsets every variable Load reads for the duration of the test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, name := range managedEnv {
		t.Setenv(name, "")
		os.Unsetenv(name)
	}
}

func TestLoad(t *testing.T) {
	tests := []struct {
		name        string
		env         map[string]string
		file        string
		wantErr     bool
		validateCfg func(*testing.T, *Config)
	}{
		{
			name: "defaults",
			validateCfg: func(t *testing.T, cfg *Config) {
				assert.Equal(t, 8080, cfg.Server.Port)
				assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout)
				assert.Equal(t, int64(50<<20), cfg.Server.MaxUploadBytes)
				assert.Equal(t, []string{"http://localhost:8080"}, cfg.Security.AllowedOrigins)
				assert.True(t, cfg.Security.RateLimit.Enabled)
				assert.Equal(t, "info", cfg.Logging.Level)
				assert.Equal(t, "json", cfg.Logging.Format)
				assert.Equal(t, "file", cfg.Storage.Backend)
				assert.Equal(t, 30*time.Minute, cfg.Storage.SessionTTL)
				assert.Equal(t, "none", cfg.Archive.Backend)
				assert.Equal(t, "smtp.gmail.com", cfg.Email.SMTPHost)
				assert.Equal(t, 465, cfg.Email.SMTPPort)
				assert.Empty(t, cfg.Email.Sender)
			},
		},
		{
			name: "environment overrides",
			env: map[string]string{
				"ADROLLUP_SERVER_PORT":              "9090",
				"ADROLLUP_SECURITY_ALLOWED_ORIGINS": "http://a.example,https://b.example",
				"ADROLLUP_LOGGING_LEVEL":            "debug",
				"ADROLLUP_LOGGING_FORMAT":           "text",
				"ADROLLUP_STORAGE_BACKEND":          "memory",
				"EMAIL_SENDER":                      "reports@example.com",
				"EMAIL_PASSWORD":                    "secret",
				"EMAIL_RECEIVER":                    "ops@example.com",
			},
			validateCfg: func(t *testing.T, cfg *Config) {
				assert.Equal(t, 9090, cfg.Server.Port)
				assert.Equal(t, []string{"http://a.example", "https://b.example"}, cfg.Security.AllowedOrigins)
				assert.Equal(t, "debug", cfg.Logging.Level)
				assert.Equal(t, "json", cfg.Logging.Format)
				assert.Equal(t, "memory", cfg.Storage.Backend)
				assert.Equal(t, "reports@example.com", cfg.Email.Sender)
				assert.Equal(t, "secret", cfg.Email.Password)
				assert.Equal(t, "ops@example.com", cfg.Email.Receiver)
			},
		},
		{
			name:    "invalid port",
			env:     map[string]string{"ADROLLUP_SERVER_PORT": "99999"},
			wantErr: true,
		},
		{
			name:    "negative timeout",
			env:     map[string]string{"ADROLLUP_SERVER_READ_TIMEOUT": "-5s"},
			wantErr: true,
		},
		{
			name:    "empty allowed origins",
			env:     map[string]string{"ADROLLUP_SECURITY_ALLOWED_ORIGINS": ""},
			wantErr: true,
		},
		{
			name:    "unknown storage backend",
			env:     map[string]string{"ADROLLUP_STORAGE_BACKEND": "postgres"},
			wantErr: true,
		},
		{
			name:    "gcs archive without bucket",
			env:     map[string]string{"ADROLLUP_ARCHIVE_BACKEND": "gcs"},
			wantErr: true,
		},
		{
			name: "gcs archive with bucket",
			env: map[string]string{
				"ADROLLUP_ARCHIVE_BACKEND": "gcs",
				"ADROLLUP_ARCHIVE_BUCKET":  "reports-bucket",
			},
			validateCfg: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "reports-bucket", cfg.Archive.Bucket)
			},
		},
		{
			name: "config file with environment override",
			env:  map[string]string{"ADROLLUP_SERVER_PORT": "7070"},
			file: `
server:
  port: 6060
  read_timeout: 20s
logging:
  level: warn
storage:
  backend: memory
archive:
  backend: local
email:
  receiver: file@example.com
  password: ignored
`,
			validateCfg: func(t *testing.T, cfg *Config) {
				assert.Equal(t, 7070, cfg.Server.Port)
				assert.Equal(t, 20*time.Second, cfg.Server.ReadTimeout)
				assert.Equal(t, "warn", cfg.Logging.Level)
				assert.Equal(t, "memory", cfg.Storage.Backend)
				assert.Equal(t, "local", cfg.Archive.Backend)
				assert.Equal(t, "file@example.com", cfg.Email.Receiver)
				assert.Empty(t, cfg.Email.Password)
			},
		},
		{
			name:    "unreadable config file",
			file:    "server: [not: valid",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			baseDir := t.TempDir()
			t.Setenv("ADROLLUP_PATHS_BASE_DIR", baseDir)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			if tt.file != "" {
				configFile := filepath.Join(t.TempDir(), "config.yaml")
				require.NoError(t, os.WriteFile(configFile, []byte(tt.file), 0644))
				t.Setenv(ConfigFileEnv, configFile)
			}

			cfg, err := Load()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, baseDir, cfg.Paths.BaseDir)
			if tt.validateCfg != nil {
				tt.validateCfg(t, cfg)
			}
		})
	}
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	cfg.Paths.BaseDir = t.TempDir()
	assert.NoError(t, cfg.validate())
}

func TestPaths(t *testing.T) {
	base := t.TempDir()
	cfg := Default()
	cfg.Paths.BaseDir = base
	cfg.Paths.ReportsDir = filepath.Join(base, "elsewhere")

	paths := cfg.GetPaths()
	assert.Equal(t, filepath.Join(base, "data", "work"), paths.WorkDir)
	assert.Equal(t, filepath.Join(base, "elsewhere"), paths.ReportsDir)
	assert.Equal(t, filepath.Join(base, "logs", "adrollup.log"), cfg.LogFilePath())
	assert.Equal(t, filepath.Join(base, "data", "work", "run-1"), paths.RunWorkDir("run-1"))

	require.NoError(t, paths.EnsureDirectories())
	for _, dir := range []string{paths.DataDir, paths.WorkDir, paths.ReportsDir, paths.LogsDir} {
		info, err := os.Stat(dir)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	}
}

func TestResolvePathsDefaultsToExecutableDir(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.resolvePaths())
	assert.True(t, filepath.IsAbs(cfg.Paths.BaseDir))
}
