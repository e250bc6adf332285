package model

import (
	"errors"
	"fmt"
)

// ConfigError is a fatal configuration or input-format problem. It aborts the
// whole run, unlike coverage gaps or degenerate breaks, which are recorded as
// flags on individual records.
type ConfigError struct {
	Op  string
	Msg string
	Err error
}

func (e *ConfigError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("configuration error: %s: %s: %v", e.Op, e.Msg, e.Err)
	}
	return fmt.Sprintf("configuration error: %s: %s", e.Op, e.Msg)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// NewConfigError builds a ConfigError for op.
func NewConfigError(op, format string, args ...any) error {
	return &ConfigError{Op: op, Msg: fmt.Sprintf(format, args...)}
}

// IsConfigError reports whether err (or anything it wraps) is a ConfigError.
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}
