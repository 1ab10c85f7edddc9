package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
)

// Exit codes.
const (
	ExitSuccess      = 0 // command ran and the answer is on stdout
	ExitFailure      = 1 // the domain said no: invalid rules, sync failure
	ExitCommandError = 2 // the invocation was wrong: bad paths, bad arguments
)

// ExitError carries the process exit code alongside the error.
type ExitError struct {
	Code    int
	Message string
	Err     error
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

// NewExitError creates an ExitError with the given code and message.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError attaches an exit code to an underlying error.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode maps an error to a process exit code. Anything that is not
// an ExitError counts as a plain failure.
func GetExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// OutputFormatter renders command results as text or JSON.
type OutputFormatter struct {
	Format    string
	Writer    io.Writer
	ErrWriter io.Writer // diagnostics; keeps JSON on Writer parseable
	Verbose   bool
}

// Envelope is the JSON shape every command emits: a status, and either
// a data payload or a fault, never both.
type Envelope struct {
	Status string `json:"status"` // "ok" or "error"
	Data   any    `json:"data,omitempty"`
	Fault  *Fault `json:"error,omitempty"`
}

// Fault describes a command failure. Codes are stable strings (E_RULES,
// E_BOOK, E_REF, E_OFFLINE, E_SYNC, E_PRIME) so scripts can branch on
// them.
type Fault struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Details map[string]string `json:"details,omitempty"`
}

// Success renders a result. In text mode the payload prints as-is, so
// commands hand over a preformatted string.
func (f *OutputFormatter) Success(data any) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(Envelope{Status: "ok", Data: data})
	}
	fmt.Fprintln(f.Writer, data)
	return nil
}

// Error renders a fault. The caller still decides the exit code; this
// only shapes what the user reads.
func (f *OutputFormatter) Error(code, message string, details map[string]string) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(Envelope{
			Status: "error",
			Fault:  &Fault{Code: code, Message: message, Details: details},
		})
	}
	fmt.Fprintf(f.Writer, "%s: %s\n", code, message)
	if f.Verbose && len(details) > 0 {
		keys := make([]string, 0, len(details))
		for k := range details {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(f.Writer, "  %s: %s\n", k, details[k])
		}
	}
	return nil
}

// VerboseLog prints a diagnostic line when --verbose is set. It goes to
// ErrWriter so JSON output on Writer stays machine-readable.
func (f *OutputFormatter) VerboseLog(format string, args ...any) {
	if !f.Verbose {
		return
	}
	w := f.ErrWriter
	if w == nil {
		w = f.Writer
	}
	fmt.Fprintf(w, format+"\n", args...)
}
