package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"chemledger/pkg/domain"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Successful execution
	ExitFailure      = 1 // Rejected request (unknown id, invalid field, malformed input)
	ExitCommandError = 2 // Command error (bad config, unreadable table, usage)
)

// ExitError represents an error with a specific exit code.
type ExitError struct {
	Code    int    // Exit code (ExitFailure or ExitCommandError)
	Message string // Error message
	Err     error  // Underlying error (optional)
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// NewExitError creates a new ExitError with the given code and message.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError wraps an existing error with an exit code.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// Error codes reported in JSON error responses.
const (
	ErrCodeNotFound     = "not_found"
	ErrCodeInvalidInput = "invalid_input"
	ErrCodeCorrupt      = "storage_corrupt"
	ErrCodeCommand      = "command_error"
)

// classify maps an error to its response code and process exit code.
func classify(err error) (string, int) {
	var (
		unknown   domain.ErrUnknownField
		immutable domain.ErrImmutableField
		exitErr   *ExitError
	)
	switch {
	case domain.IsNotFound(err):
		return ErrCodeNotFound, ExitFailure
	case errors.Is(err, domain.ErrNoChanges), errors.As(err, &unknown), errors.As(err, &immutable):
		return ErrCodeInvalidInput, ExitFailure
	case errors.Is(err, domain.ErrStorageCorrupt):
		return ErrCodeCorrupt, ExitCommandError
	case errors.As(err, &exitErr):
		if exitErr.Code == ExitFailure {
			return ErrCodeInvalidInput, ExitFailure
		}
		return ErrCodeCommand, exitErr.Code
	default:
		return ErrCodeCommand, ExitCommandError
	}
}

// OutputFormatter handles JSON vs text output for CLI commands.
type OutputFormatter struct {
	Format    string
	Writer    io.Writer
	ErrWriter io.Writer // Warnings and diagnostics; keeps JSON on Writer clean
	Verbose   bool
}

// CLIResponse is the standard JSON response format for CLI output.
type CLIResponse struct {
	Status string    `json:"status"`          // "ok" or "error"
	Data   any       `json:"data,omitempty"`  // success payload
	Error  *CLIError `json:"error,omitempty"` // error details
}

// CLIError is the error structure for CLI responses.
type CLIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Success emits data as a JSON response, or calls text to render it for
// humans.
func (f *OutputFormatter) Success(data any, text func(w io.Writer) error) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{Status: "ok", Data: data})
	}
	return text(f.Writer)
}

// Error outputs an error in the configured format. Text errors go to
// ErrWriter.
func (f *OutputFormatter) Error(code, message string) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "error",
			Error:  &CLIError{Code: code, Message: message},
		})
	}
	_, err := fmt.Fprintf(f.errWriter(), "Error [%s]: %s\n", code, message)
	return err
}

// Warn writes a warning line to ErrWriter in every format.
func (f *OutputFormatter) Warn(format string, args ...any) {
	fmt.Fprintf(f.errWriter(), "warning: "+format+"\n", args...)
}

// VerboseLog outputs a message only if verbose mode is enabled.
func (f *OutputFormatter) VerboseLog(format string, args ...any) {
	if !f.Verbose {
		return
	}
	fmt.Fprintf(f.errWriter(), format+"\n", args...)
}

func (f *OutputFormatter) errWriter() io.Writer {
	if f.ErrWriter != nil {
		return f.ErrWriter
	}
	return f.Writer
}
