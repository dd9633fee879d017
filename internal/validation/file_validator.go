package validation

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

var (
	// ErrNotWorkbook marks a file that is not an .xlsx workbook.
	ErrNotWorkbook = errors.New("not an xlsx workbook")
	// ErrEmptyFile marks a zero-length upload.
	ErrEmptyFile = errors.New("file is empty")
	// ErrTooLarge marks an upload above the configured size limit.
	ErrTooLarge = errors.New("file exceeds size limit")
)

// WorkbookExtension is the only accepted workbook extension.
const WorkbookExtension = ".xlsx"

// zipMagic opens every OOXML package.
var zipMagic = []byte("PK\x03\x04")

// FileValidator checks workbook inputs and report output locations for the
// CLI and the upload endpoint.
type FileValidator struct {
	logger *slog.Logger
}

// NewFileValidator creates a new file validator
func NewFileValidator(logger *slog.Logger) *FileValidator {
	if logger == nil {
		logger = slog.Default()
	}
	return &FileValidator{
		logger: logger,
	}
}

// ValidateOutputDirectory ensures output directory exists or can be created
func (v *FileValidator) ValidateOutputDirectory(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		v.logger.Error("Failed to create output directory",
			slog.String("directory", dir),
			slog.String("error", err.Error()))
		return fmt.Errorf("failed to create output directory %s: %w", dir, err)
	}

	testFile := filepath.Join(dir, ".write_test")
	file, err := os.Create(testFile)
	if err != nil {
		v.logger.Error("Output directory is not writable",
			slog.String("directory", dir),
			slog.String("error", err.Error()))
		return fmt.Errorf("output directory %s is not writable: %w", dir, err)
	}
	file.Close()
	os.Remove(testFile)

	v.logger.Debug("Output directory validated",
		slog.String("directory", dir))
	return nil
}

// ValidateFile checks if a specific file exists and is readable
func (v *FileValidator) ValidateFile(path string) error {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		v.logger.Error("File does not exist",
			slog.String("file", path))
		return fmt.Errorf("file %s does not exist", path)
	}
	if err != nil {
		v.logger.Error("Failed to stat file",
			slog.String("file", path),
			slog.String("error", err.Error()))
		return fmt.Errorf("failed to stat file %s: %w", path, err)
	}
	if info.IsDir() {
		v.logger.Error("Path is a directory, not a file",
			slog.String("path", path))
		return fmt.Errorf("%s is a directory, not a file", path)
	}

	file, err := os.Open(path)
	if err != nil {
		v.logger.Error("File is not readable",
			slog.String("file", path),
			slog.String("error", err.Error()))
		return fmt.Errorf("file %s is not readable: %w", path, err)
	}
	file.Close()

	v.logger.Debug("File validated",
		slog.String("file", path),
		slog.Int64("size", info.Size()))
	return nil
}

// ValidateExcelFile checks that path names a readable .xlsx workbook that is
// not an Office lock file.
func (v *FileValidator) ValidateExcelFile(path string) error {
	if err := v.ValidateFile(path); err != nil {
		return err
	}
	if err := v.checkName(filepath.Base(path)); err != nil {
		return err
	}

	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("file %s is not readable: %w", path, err)
	}
	defer file.Close()

	header := make([]byte, len(zipMagic))
	n, _ := file.Read(header)
	return v.checkHeader(filepath.Base(path), header[:n])
}

// ValidateUpload checks an uploaded workbook by name, declared size and the
// first bytes of its content. A limit of zero disables the size check.
func (v *FileValidator) ValidateUpload(name string, size, limit int64, header []byte) error {
	if err := v.checkName(name); err != nil {
		return err
	}
	if size == 0 {
		v.logger.Warn("Rejected empty upload", slog.String("file", name))
		return fmt.Errorf("%s: %w", name, ErrEmptyFile)
	}
	if limit > 0 && size > limit {
		v.logger.Warn("Rejected oversized upload",
			slog.String("file", name),
			slog.Int64("size", size),
			slog.Int64("limit", limit))
		return fmt.Errorf("%s is %d bytes, limit %d: %w", name, size, limit, ErrTooLarge)
	}
	return v.checkHeader(name, header)
}

func (v *FileValidator) checkName(name string) error {
	ext := strings.ToLower(filepath.Ext(name))
	if ext != WorkbookExtension {
		v.logger.Warn("File is not an xlsx workbook",
			slog.String("file", name),
			slog.String("extension", ext))
		return fmt.Errorf("%s has extension %q: %w", name, ext, ErrNotWorkbook)
	}
	if strings.HasPrefix(filepath.Base(name), "~$") {
		v.logger.Warn("Rejected temporary Excel file", slog.String("file", name))
		return fmt.Errorf("%s is a temporary Excel file: %w", name, ErrNotWorkbook)
	}
	return nil
}

func (v *FileValidator) checkHeader(name string, header []byte) error {
	if !bytes.HasPrefix(header, zipMagic) {
		v.logger.Warn("File content is not a zip package", slog.String("file", name))
		return fmt.Errorf("%s content is not a zip package: %w", name, ErrNotWorkbook)
	}
	return nil
}
