package reporter

import (
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"syscall"

	"bank-reconciliation-service/pkg/errors"
	"bank-reconciliation-service/pkg/logger"
)

// SafeReportGenerator wraps ReportGenerator with logging and fallbacks
type SafeReportGenerator struct {
	*ReportGenerator
	logger logger.Logger
}

// NewSafeReportGenerator creates a new safe report generator with error handling
func NewSafeReportGenerator(config *ReportConfig, log logger.Logger) (*SafeReportGenerator, error) {
	generator, err := NewReportGenerator(config)
	if err != nil {
		return nil, err
	}

	return &SafeReportGenerator{
		ReportGenerator: generator,
		logger:          logger.OrGlobal(log).WithComponent("reporter"),
	}, nil
}

// GenerateReportSafely generates a report, falling back to console output when
// the requested format cannot render the result and to a backup file when the
// output file cannot be written
func (srg *SafeReportGenerator) GenerateReportSafely(result interface{}, writer io.Writer) error {
	log := srg.logger.WithFields(logger.Fields{
		"format": srg.config.Format,
		"output": getWriterDescription(writer),
		"result": fmt.Sprintf("%T", result),
	})

	if writer == nil {
		return errors.ValidationError(errors.CodeMissingField, "writer", nil, nil).
			WithSuggestion("Provide a valid output writer")
	}

	err := srg.GenerateReport(result, writer)
	if err == nil {
		log.Debug("Report generated")
		return nil
	}
	log.WithError(err).Warn("Report generation failed, attempting fallback")

	switch {
	case srg.config.Format != FormatConsole && errors.IsCategory(err, errors.CategoryValidation) && result != nil:
		return srg.generateWithFormatFallback(result, writer, err)
	case isFileError(err):
		if file, ok := writer.(*os.File); ok && file.Name() != "" {
			return srg.generateWithOutputFallback(result, file, err)
		}
	}
	return wrapGenerationError(err)
}

// generateWithFormatFallback renders the result on the console format
func (srg *SafeReportGenerator) generateWithFormatFallback(result interface{}, writer io.Writer, originalErr error) error {
	fallbackConfig := *srg.config
	fallbackConfig.Format = FormatConsole

	srg.logger.WithField("fallback_format", FormatConsole).Info("Attempting format fallback")
	fallbackGenerator, err := NewReportGenerator(&fallbackConfig)
	if err != nil {
		return wrapGenerationError(originalErr)
	}

	fmt.Fprintf(writer, "NOTE: %s output is not available for this result, showing console format\n\n", srg.config.Format)
	if err := fallbackGenerator.GenerateReport(result, writer); err != nil {
		return errors.InternalError(
			errors.CodeUnexpectedError,
			"report_fallback",
			fmt.Errorf("both primary and fallback generation failed: primary=%v, fallback=%v", originalErr, err),
		)
	}
	return nil
}

// generateWithOutputFallback writes the report next to the original file
func (srg *SafeReportGenerator) generateWithOutputFallback(result interface{}, file *os.File, originalErr error) error {
	originalPath := file.Name()
	backupPath := generateBackupPath(originalPath)

	srg.logger.WithFields(logger.Fields{
		"original_file": originalPath,
		"backup_file":   backupPath,
	}).Info("Attempting output fallback")

	backupFile, err := os.Create(backupPath)
	if err != nil {
		return wrapGenerationError(originalErr)
	}
	defer backupFile.Close()

	if err := srg.GenerateReport(result, backupFile); err != nil {
		return errors.InternalError(
			errors.CodeUnexpectedError,
			"report_output_fallback",
			fmt.Errorf("both primary and backup output failed: primary=%v, backup=%v", originalErr, err),
		)
	}

	fmt.Fprintf(os.Stderr, "Warning: Could not write to %s, report saved to %s\n", originalPath, backupPath)
	return nil
}

// WriteFile renders result into path, creating or truncating it
func (srg *SafeReportGenerator) WriteFile(result interface{}, path string) error {
	file, err := os.Create(path)
	if err != nil {
		return errors.FileError(errors.CodeWriteFailed, path, err)
	}
	defer file.Close()

	if err := srg.GenerateReportSafely(result, file); err != nil {
		return err
	}
	srg.logger.WithField("file", path).Info("Report written")
	return nil
}

func isFileError(err error) bool {
	var cause error = err
	if re, ok := errors.AsReconcilerError(err); ok && re.Cause != nil {
		cause = re.Cause
	}
	return os.IsPermission(cause) ||
		os.IsNotExist(cause) ||
		stderrors.Is(cause, syscall.ENOSPC) ||
		strings.Contains(cause.Error(), "no space left")
}

func generateBackupPath(originalPath string) string {
	dir := filepath.Dir(originalPath)
	base := filepath.Base(originalPath)
	ext := filepath.Ext(base)
	name := strings.TrimSuffix(base, ext)
	return filepath.Join(dir, fmt.Sprintf("%s_backup%s", name, ext))
}

func wrapGenerationError(err error) error {
	if reconcilerErr, ok := errors.AsReconcilerError(err); ok {
		return reconcilerErr
	}
	return errors.InternalError(errors.CodeUnexpectedError, "report_generation", err).
		WithSuggestion("Check the output destination and report format settings")
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
