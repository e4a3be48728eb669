package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

// Exit codes.
const (
	ExitSuccess      = 0
	ExitFailure      = 1 // a scenario failed or a store could not persist
	ExitCommandError = 2 // bad arguments, configuration or database
)

// Error codes reported in CLIError.Code.
const (
	CodeUsage          = "E_USAGE"           // invalid arguments or flags
	CodeConfig         = "E_CONFIG"          // configuration or logging setup failed
	CodeInput          = "E_INPUT"           // an input file is unreadable or malformed
	CodeStorage        = "E_STORAGE"         // the database or a store adapter failed
	CodeScenarioFailed = "E_SCENARIO_FAILED" // at least one scenario did not pass
	CodeFailure        = "E_FAILURE"         // any other failure
)

// ExitError carries the process exit code and the reported error code of a
// failed command.
type ExitError struct {
	Code    int
	Kind    string // one of the Code* constants; derived from Code when empty
	Message string
	Err     error

	// Reported is set when the command already wrote the failure to its
	// output, as the scenario command does in JSON mode.
	Reported bool
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

// WithKind sets the reported error code and returns e.
func (e *ExitError) WithKind(kind string) *ExitError {
	e.Kind = kind
	return e
}

// NewExitError creates an ExitError without an underlying error.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError wraps err with an exit code and a message.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode returns the exit code carried by err, or ExitFailure.
func GetExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// ErrorCode returns the error code reported for err.
func ErrorCode(err error) string {
	var exitErr *ExitError
	if !errors.As(err, &exitErr) {
		return CodeFailure
	}
	switch {
	case exitErr.Kind != "":
		return exitErr.Kind
	case exitErr.Code == ExitCommandError:
		return CodeUsage
	default:
		return CodeFailure
	}
}

// Execute runs the root command and reports a failure in the selected
// output format. It returns the process exit code.
func Execute(ctx context.Context, cmd *cobra.Command) int {
	err := cmd.ExecuteContext(ctx)
	if err == nil {
		return ExitSuccess
	}

	var exitErr *ExitError
	if errors.As(err, &exitErr) && exitErr.Reported {
		return exitErr.Code
	}

	format, _ := cmd.PersistentFlags().GetString("format")
	out := &OutputFormatter{Format: format, Writer: cmd.ErrOrStderr()}
	if format == "json" {
		// JSON consumers read a single document from stdout.
		out.Writer = cmd.OutOrStdout()
	}
	if werr := out.Error(ErrorCode(err), err.Error(), nil); werr != nil {
		fmt.Fprintln(cmd.ErrOrStderr(), "Error:", err)
	}
	return GetExitCode(err)
}

// OutputFormatter writes command results as text or as a CLIResponse.
type OutputFormatter struct {
	Format    string
	Writer    io.Writer
	ErrWriter io.Writer // diagnostics; defaults to Writer
	Verbose   bool
}

// CLIResponse is the JSON envelope of every command in JSON mode.
type CLIResponse struct {
	Status string    `json:"status"` // "ok" or "error"
	Data   any       `json:"data,omitempty"`
	Error  *CLIError `json:"error,omitempty"`
}

// CLIError describes a failed command in a CLIResponse.
type CLIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// Success writes data in the configured format.
func (f *OutputFormatter) Success(data any) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "ok",
			Data:   data,
		})
	}

	fmt.Fprintln(f.Writer, data)
	return nil
}

// Error writes a failure in the configured format. Details are printed in
// text mode only when verbose.
func (f *OutputFormatter) Error(code, message string, details any) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "error",
			Error: &CLIError{
				Code:    code,
				Message: message,
				Details: details,
			},
		})
	}

	fmt.Fprintf(f.Writer, "Error [%s]: %s\n", code, message)
	if f.Verbose && details != nil {
		fmt.Fprintf(f.Writer, "Details: %v\n", details)
	}
	return nil
}

// VerboseLog writes a diagnostic line in verbose mode. It goes to the
// diagnostic writer so JSON output stays a single document.
func (f *OutputFormatter) VerboseLog(format string, args ...any) {
	if !f.Verbose {
		return
	}
	fmt.Fprintf(f.GetErrWriter(), format+"\n", args...)
}

// GetErrWriter returns the diagnostic writer.
func (f *OutputFormatter) GetErrWriter() io.Writer {
	if f.ErrWriter != nil {
		return f.ErrWriter
	}
	return f.Writer
}
