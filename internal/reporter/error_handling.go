package reporter

import (
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"syscall"

	"settlement-reconciliation-service/internal/reconciler"
	"settlement-reconciliation-service/pkg/errors"
	"settlement-reconciliation-service/pkg/logger"
)

// SafeReportGenerator wraps ReportGenerator with logging and categorized errors
type SafeReportGenerator struct {
	*ReportGenerator
	logger logger.Logger
}

// NewSafeReportGenerator creates a new safe report generator with error handling
func NewSafeReportGenerator(config *ReportConfig, log logger.Logger) (*SafeReportGenerator, error) {
	if log == nil {
		log = logger.GetGlobalLogger()
	}

	generator, err := NewReportGenerator(config)
	if err != nil {
		return nil, errors.ConfigurationError(
			errors.CodeInvalidConfig,
			"report_config",
			config,
			err,
		).WithSuggestion("Use --output-format console, json or csv")
	}

	return &SafeReportGenerator{
		ReportGenerator: generator,
		logger:          log.WithComponent("reporter"),
	}, nil
}

// GenerateReportSafely generates a report and converts any failure into a
// ReconcilerError.
func (srg *SafeReportGenerator) GenerateReportSafely(result *reconciler.ReconciliationResult, writer io.Writer) error {
	srg.logger.WithFields(logger.Fields{
		"format": srg.config.Format,
		"output": getWriterDescription(writer),
	}).Debug("Starting report generation")

	if err := srg.validateInputs(result, writer); err != nil {
		srg.logger.WithError(err).Error("Report generation failed: input validation")
		return err
	}

	if err := srg.GenerateReport(result, writer); err != nil {
		wrapped := srg.wrapGenerationError(err)
		srg.logger.WithError(wrapped).Error("Report generation failed")
		return wrapped
	}

	srg.logger.Debug("Report generation completed")
	return nil
}

// WriteReportFile writes the report to path, creating parent directories.
// When path cannot be created the report goes to a backup file in the temp
// directory and the backup path is returned. A report that fails to render
// is removed rather than left half written.
func (srg *SafeReportGenerator) WriteReportFile(result *reconciler.ReconciliationResult, path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", errors.ConfigurationError(errors.CodeMissingConfig, "output-file", path, nil)
	}

	file, written, err := srg.createReportFile(path)
	if err != nil {
		return "", err
	}

	err = logger.TimedOperation("report_output", srg.logger.WithField("file", written), func() error {
		return srg.GenerateReportSafely(result, file)
	})
	if err != nil {
		file.Close()
		if removeErr := os.Remove(written); removeErr != nil {
			srg.logger.WithError(removeErr).WithField("file", written).Warn("Failed to remove incomplete report")
		}
		return "", err
	}
	if err := file.Close(); err != nil {
		return "", errors.FileError(errors.CodeFileCorrupted, written, err)
	}

	srg.logger.WithField("file", written).Info("Report written")
	return written, nil
}

// createReportFile opens path for writing, falling back to a backup file
// when the directory or the file cannot be created.
func (srg *SafeReportGenerator) createReportFile(path string) (*os.File, string, error) {
	err := os.MkdirAll(filepath.Dir(path), 0755)
	if err == nil {
		var file *os.File
		if file, err = os.Create(path); err == nil {
			return file, path, nil
		}
	}
	if !srg.isFileError(err) {
		return nil, "", errors.FileError(errors.CodeFilePermission, path, err)
	}

	backupPath := srg.generateBackupPath(path)
	srg.logger.WithError(err).WithFields(logger.Fields{
		"original_file": path,
		"backup_file":   backupPath,
	}).Warn("Cannot create report file; writing backup instead")

	file, backupErr := os.Create(backupPath)
	if backupErr != nil {
		return nil, "", errors.FileError(errors.CodeFilePermission, path, err).
			WithContext("backup_file", backupPath)
	}
	return file, backupPath, nil
}

// validateInputs validates the inputs for report generation
func (srg *SafeReportGenerator) validateInputs(result *reconciler.ReconciliationResult, writer io.Writer) error {
	if result == nil {
		return errors.InternalError(errors.CodeUnexpectedError, "report_generation",
			fmt.Errorf("reconciliation result cannot be nil"))
	}

	if writer == nil {
		return errors.InternalError(errors.CodeUnexpectedError, "report_generation",
			fmt.Errorf("output writer cannot be nil"))
	}

	return nil
}

// isFileError checks if the error is one a backup location could avoid
func (srg *SafeReportGenerator) isFileError(err error) bool {
	return os.IsPermission(err) || os.IsExist(err) || isNotDirError(err) || isSpaceError(err)
}

// generateBackupPath creates a backup file path in the temp directory
func (srg *SafeReportGenerator) generateBackupPath(originalPath string) string {
	base := filepath.Base(originalPath)
	ext := filepath.Ext(base)
	name := strings.TrimSuffix(base, ext)

	return filepath.Join(os.TempDir(), fmt.Sprintf("%s_backup%s", name, ext))
}

// wrapGenerationError wraps generation errors with context
func (srg *SafeReportGenerator) wrapGenerationError(err error) error {
	if reconcilerErr, ok := errors.AsReconcilerError(err); ok {
		return reconcilerErr
	}

	return errors.InternalError(
		errors.CodeProcessingError,
		"report_generation",
		err,
	).WithSuggestion("Check the output destination and report format settings")
}

func getWriterDescription(writer io.Writer) string {
	switch w := writer.(type) {
	case *os.File:
		if w.Name() != "" {
			return fmt.Sprintf("file:%s", w.Name())
		}
		return "file:unnamed"
	default:
		return fmt.Sprintf("writer:%T", writer)
	}
}

func isSpaceError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "no space left") ||
		strings.Contains(msg, "disk full") ||
		strings.Contains(msg, "device full")
}

// isNotDirError reports a path whose parent is a regular file
func isNotDirError(err error) bool {
	return stderrors.Is(err, syscall.ENOTDIR)
}
