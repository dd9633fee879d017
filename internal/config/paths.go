package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// Paths holds the resolved absolute directories the application uses.
type Paths struct {
	BaseDir    string
	DataDir    string
	WorkDir    string
	ReportsDir string
	LogsDir    string
}

// resolvePaths fills BaseDir with the executable directory when unset.
func (c *Config) resolvePaths() error {
	if c.Paths.BaseDir != "" {
		abs, err := filepath.Abs(c.Paths.BaseDir)
		if err != nil {
			return fmt.Errorf("failed to resolve base dir: %w", err)
		}
		c.Paths.BaseDir = abs
		return nil
	}

	exeDir, err := executableDir()
	if err != nil {
		return err
	}
	c.Paths.BaseDir = exeDir
	return nil
}

func executableDir() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("failed to get executable path: %w", err)
	}
	exe, err = filepath.EvalSymlinks(exe)
	if err != nil {
		return "", fmt.Errorf("failed to resolve executable symlinks: %w", err)
	}
	return filepath.Dir(exe), nil
}

// GetPaths resolves every configured directory against BaseDir.
func (c *Config) GetPaths() *Paths {
	return &Paths{
		BaseDir:    c.Paths.BaseDir,
		DataDir:    c.resolve(c.Paths.DataDir),
		WorkDir:    c.resolve(c.Paths.WorkDir),
		ReportsDir: c.resolve(c.Paths.ReportsDir),
		LogsDir:    c.resolve(c.Paths.LogsDir),
	}
}

// LogFilePath returns the resolved log file location.
func (c *Config) LogFilePath() string {
	return c.resolve(c.Logging.FilePath)
}

func (c *Config) resolve(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.Paths.BaseDir, p)
}

// EnsureDirectories creates all required directories if they don't exist
func (p *Paths) EnsureDirectories() error {
	for _, dir := range []string{p.DataDir, p.WorkDir, p.ReportsDir, p.LogsDir} {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}

// RunWorkDir is the directory holding the stores of one run.
func (p *Paths) RunWorkDir(runID string) string {
	return filepath.Join(p.WorkDir, runID)
}

// LogPathResolution logs the resolved directories.
func (p *Paths) LogPathResolution(logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("Path resolution summary",
		slog.Group("directories",
			slog.String("base", p.BaseDir),
			slog.String("data", p.DataDir),
			slog.String("work", p.WorkDir),
			slog.String("reports", p.ReportsDir),
			slog.String("logs", p.LogsDir),
		))
}
