package apperrors

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrNoRules is returned when every rule source was excluded or empty.
var ErrNoRules = errors.New("no rules loaded")

// ConfigError reports invalid arguments or rule sources. It aborts the run
// before any scanning starts.
type ConfigError struct {
	Source string
	Err    error
}

func (e *ConfigError) Error() string {
	if e.Source == "" {
		return fmt.Sprintf("configuration error: %v", e.Err)
	}
	return fmt.Sprintf("configuration error in %s: %v", e.Source, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// ConnectionError reports a failure bound to one instance. The scan skips
// the instance and continues with the next one.
type ConnectionError struct {
	Instance string
	Op       string
	Err      error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("failed to %s on %s: %v", e.Op, e.Instance, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// Scope returns the instance the error is bound to.
func (e *ConnectionError) Scope() string { return e.Instance }

// Operation returns the failing operation.
func (e *ConnectionError) Operation() string { return e.Op }

// DataAccessError reports a catalog or sample query failure bound to one
// database or table.
type DataAccessError struct {
	Instance string
	Database string
	Schema   string
	Table    string
	Op       string
	Err      error
}

func (e *DataAccessError) Error() string {
	return fmt.Sprintf("failed to %s on %s: %v", e.Op, e.Scope(), e.Err)
}

func (e *DataAccessError) Unwrap() error { return e.Err }

// Scope returns instance/database[.schema.table] for the failing target.
func (e *DataAccessError) Scope() string {
	target := e.Database
	if e.Table != "" {
		target = fmt.Sprintf("%s.%s.%s", e.Database, e.Schema, e.Table)
	}
	if e.Instance == "" {
		return target
	}
	return e.Instance + "/" + target
}

// Operation returns the failing operation.
func (e *DataAccessError) Operation() string { return e.Op }

// Scoped is implemented by errors bound to a single instance or table.
type Scoped interface {
	error
	Scope() string
	Operation() string
	Unwrap() error
}

// Describe renders err for the operator. Raw mode returns the full error
// chain; otherwise scoped errors are summarized.
func Describe(err error, raw bool) string {
	if raw {
		return err.Error()
	}
	return Summary(err)
}

// Summary returns a short message naming the scope, the operation and an
// interpretation of the underlying driver error.
func Summary(err error) string {
	var scoped Scoped
	if errors.As(err, &scoped) {
		return fmt.Sprintf("%s: could not %s: %s", scoped.Scope(), scoped.Operation(), interpret(scoped.Unwrap()))
	}
	return interpret(err)
}

var hints = []struct {
	needles []string
	hint    string
}{
	{[]string{"login failed", "password authentication failed", "access denied for user"}, "login failed, check the credential"},
	{[]string{"connection refused", "no such host", "unable to open tcp", "network is unreachable", "dial tcp"}, "server unreachable, check the instance name and network"},
	{[]string{"i/o timeout", "deadline exceeded", "timeout expired"}, "timed out"},
	{[]string{"permission was denied", "permission denied", "command denied"}, "permission denied"},
	{[]string{"invalid object name", "does not exist", "doesn't exist", "cannot open database"}, "object not found"},
}

func interpret(err error) string {
	if err == nil {
		return "unknown error"
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "timed out"
	}
	if errors.Is(err, context.Canceled) {
		return "canceled"
	}

	msg := strings.ToLower(err.Error())
	for _, h := range hints {
		for _, needle := range h.needles {
			if strings.Contains(msg, needle) {
				return h.hint
			}
		}
	}

	first := strings.SplitN(err.Error(), "\n", 2)[0]
	if len(first) > 200 {
		first = first[:200] + "..."
	}
	return first
}
