package errors

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"syscall"
)

// ErrorType represents different categories of errors
type ErrorType string

const (
	// ErrorTypeSourceNotFound means the configured source path does not exist
	// or is not a directory. Fatal for the whole run.
	ErrorTypeSourceNotFound ErrorType = "source_not_found"
	// ErrorTypeBackupDir means the dated backup directory could not be
	// created. Fatal for the whole run.
	ErrorTypeBackupDir ErrorType = "backup_dir"
	// ErrorTypeComposeStop represents a failed container stop for one project
	ErrorTypeComposeStop ErrorType = "compose_stop"
	// ErrorTypeComposeStart represents a failed container start for one project
	ErrorTypeComposeStart ErrorType = "compose_start"
	// ErrorTypeArchive represents a failed archive creation for one folder
	ErrorTypeArchive ErrorType = "archive"
	// ErrorTypeRetentionDelete represents a failed deletion of one dated
	// backup directory during rotation
	ErrorTypeRetentionDelete ErrorType = "retention_delete"
	// ErrorTypeConfiguration represents invalid or missing configuration
	ErrorTypeConfiguration ErrorType = "configuration"
	// ErrorTypeInterruption represents user interruption
	ErrorTypeInterruption ErrorType = "interruption"
	// ErrorTypeUnknown represents unknown errors
	ErrorTypeUnknown ErrorType = "unknown"
)

// AppError represents an application-specific error with context
type AppError struct {
	Type    ErrorType
	Message string
	Cause   error
	Context map[string]interface{}
	Fatal   bool
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.Cause
}

// IsFatal reports whether the error aborts the whole run
func (e *AppError) IsFatal() bool {
	return e.Fatal
}

// WithContext adds context information to the error
func (e *AppError) WithContext(key string, value interface{}) *AppError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// NewAppError creates a new per-item (non-fatal) application error
func NewAppError(errorType ErrorType, message string, cause error) *AppError {
	return &AppError{
		Type:    errorType,
		Message: message,
		Cause:   cause,
		Context: make(map[string]interface{}),
	}
}

// NewFatalError creates a new error that aborts the whole run
func NewFatalError(errorType ErrorType, message string, cause error) *AppError {
	return &AppError{
		Type:    errorType,
		Message: message,
		Cause:   cause,
		Context: make(map[string]interface{}),
		Fatal:   true,
	}
}

// GetErrorType returns the error type of an error
func GetErrorType(err error) ErrorType {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Type
	}
	return ErrorTypeUnknown
}

// IsFatalError checks whether an error aborts the whole run
func IsFatalError(err error) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.IsFatal()
	}
	return false
}

// ClassifyError analyzes an error and returns an AppError with an
// appropriate classification. Already-classified errors pass through.
func ClassifyError(err error) *AppError {
	if err == nil {
		return nil
	}

	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}

	if ctxErr := classifyContextError(err); ctxErr != nil {
		return ctxErr
	}

	if execErr := classifyExecError(err); execErr != nil {
		return execErr
	}

	if fsErr := classifyFileSystemError(err); fsErr != nil {
		return fsErr
	}

	return NewAppError(ErrorTypeUnknown, "an unexpected error occurred", err)
}

// classifyContextError classifies context-related errors
func classifyContextError(err error) *AppError {
	if errors.Is(err, context.DeadlineExceeded) {
		return NewAppError(ErrorTypeInterruption, "operation timed out", err)
	}
	if errors.Is(err, context.Canceled) {
		return NewAppError(ErrorTypeInterruption, "operation was canceled", err)
	}
	return nil
}

// classifyExecError classifies subprocess errors
func classifyExecError(err error) *AppError {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return NewAppError(ErrorTypeUnknown,
			fmt.Sprintf("command exited with status %d", exitErr.ExitCode()), err).
			WithContext("exit_code", exitErr.ExitCode())
	}
	if errors.Is(err, exec.ErrNotFound) {
		return NewAppError(ErrorTypeConfiguration, "command not found in PATH", err)
	}
	return nil
}

// classifyFileSystemError classifies file system errors
func classifyFileSystemError(err error) *AppError {
	var pathErr *os.PathError
	if errors.As(err, &pathErr) {
		switch {
		case errors.Is(pathErr.Err, syscall.ENOENT):
			return NewAppError(ErrorTypeSourceNotFound,
				fmt.Sprintf("file or directory not found: %s", pathErr.Path), err)
		case errors.Is(pathErr.Err, syscall.EACCES):
			return NewAppError(ErrorTypeRetentionDelete,
				fmt.Sprintf("permission denied: %s", pathErr.Path), err)
		case errors.Is(pathErr.Err, syscall.ENOSPC):
			return NewAppError(ErrorTypeArchive, "no space left on device", err)
		}
	}
	return nil
}

// GracefulShutdownHandler handles best-effort cleanup on interruption signals
type GracefulShutdownHandler struct {
	shutdownFuncs []func() error
	signalChan    chan os.Signal
	done          chan bool
}

// NewGracefulShutdownHandler creates a new graceful shutdown handler
func NewGracefulShutdownHandler() *GracefulShutdownHandler {
	return &GracefulShutdownHandler{
		shutdownFuncs: make([]func() error, 0),
		signalChan:    make(chan os.Signal, 1),
		done:          make(chan bool, 1),
	}
}

// RegisterShutdownFunc registers a function to be called during shutdown
func (gsh *GracefulShutdownHandler) RegisterShutdownFunc(fn func() error) {
	gsh.shutdownFuncs = append(gsh.shutdownFuncs, fn)
}

// Start starts listening for shutdown signals
func (gsh *GracefulShutdownHandler) Start() {
	signal.Notify(gsh.signalChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-gsh.signalChan
		gsh.shutdown()
	}()
}

// Stop stops the graceful shutdown handler
func (gsh *GracefulShutdownHandler) Stop() {
	signal.Stop(gsh.signalChan)
	close(gsh.signalChan)
}

// WaitForShutdown waits for shutdown to complete
func (gsh *GracefulShutdownHandler) WaitForShutdown() {
	<-gsh.done
}

// shutdown executes all registered shutdown functions in reverse order
func (gsh *GracefulShutdownHandler) shutdown() {
	defer func() {
		gsh.done <- true
	}()

	for i := len(gsh.shutdownFuncs) - 1; i >= 0; i-- {
		if err := gsh.shutdownFuncs[i](); err != nil {
			fmt.Fprintf(os.Stderr, "Error during shutdown: %v\n", err)
		}
	}
}
