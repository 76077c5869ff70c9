// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

// Package errors provides structured error types for the observation store.
//
// This package defines custom error types that provide better error handling,
// inspection, and debugging capabilities compared to plain string errors.
//
// # Benefits of Structured Errors
//
//   - Type-safe error inspection with errors.As() and errors.Is()
//   - Context-rich error messages with operation and underlying error details
//   - Consistent error formatting across the application
//   - Better error wrapping and unwrapping support
//   - Enhanced logging with structured error fields
//
// # Example Usage
//
//	err := errors.NewParseError("/data/20240101.csv", fmt.Errorf("ragged row"))
//	if errors.IsParseError(err) {
//	    log.Printf("Chunk unreadable: %v", err)
//	}
//
//	var parseErr *errors.ParseError
//	if errors.As(err, &parseErr) {
//	    log.Printf("Bad file: %s", parseErr.Path)
//	}
package errors

import (
	"errors"
	"fmt"
)

// ConfigError represents a configuration error.
type ConfigError struct {
	Field string // Configuration field that caused the error
	Value string // Invalid value (optional, may be redacted for sensitive fields)
	Err   error  // Underlying error or description
}

func (e *ConfigError) Error() string {
	if e.Value != "" {
		return fmt.Sprintf("config error in field %q (value=%q): %v", e.Field, e.Value, e.Err)
	}
	if e.Err != nil {
		return fmt.Sprintf("config error in field %q: %v", e.Field, e.Err)
	}
	return fmt.Sprintf("config error in field %q", e.Field)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// NewConfigError creates a new configuration error.
func NewConfigError(field string, value string, err error) *ConfigError {
	return &ConfigError{Field: field, Value: value, Err: err}
}

// IsConfigError checks if an error is a ConfigError.
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}

// ParseError represents a malformed chunk file or record.
//
// A ParseError is only raised for files that exist but cannot be decoded
// in the configured table format; missing chunk files are never an error.
type ParseError struct {
	Path string // File that failed to parse
	Line int    // 1-based line number, 0 if not attributable to a line
	Err  error  // Underlying error
}

func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("parse %s:%d: %v", e.Path, e.Line, e.Err)
	}
	if e.Err != nil {
		return fmt.Sprintf("parse %s: %v", e.Path, e.Err)
	}
	return fmt.Sprintf("parse %s failed", e.Path)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// NewParseError creates a new parse error.
func NewParseError(path string, err error) *ParseError {
	return &ParseError{Path: path, Err: err}
}

// NewParseErrorAt creates a new parse error attributed to a line.
func NewParseErrorAt(path string, line int, err error) *ParseError {
	return &ParseError{Path: path, Line: line, Err: err}
}

// IsParseError checks if an error is a ParseError.
func IsParseError(err error) bool {
	var pe *ParseError
	return errors.As(err, &pe)
}

// StorageError represents an error during storage operations.
type StorageError struct {
	Op   string // Operation being performed (e.g., "read", "write", "mkdir")
	Path string // File or directory involved (if applicable)
	Err  error  // Underlying error
}

func (e *StorageError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("storage %s (path=%s): %v", e.Op, e.Path, e.Err)
	}
	if e.Err != nil {
		return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("storage %s failed", e.Op)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// NewStorageError creates a new storage error.
func NewStorageError(op string, path string, err error) *StorageError {
	return &StorageError{Op: op, Path: path, Err: err}
}

// IsStorageError checks if an error is a StorageError.
func IsStorageError(err error) bool {
	var se *StorageError
	return errors.As(err, &se)
}

// ValueError represents an invalid numeric coercion, e.g. a non-numeric
// cell where a float is expected.
type ValueError struct {
	Column string // Column the bad value belongs to
	Value  string // The raw cell content
	Err    error  // Underlying error (optional)
}

func (e *ValueError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("value error: column %q with value %q: %v", e.Column, e.Value, e.Err)
	}
	return fmt.Sprintf("value error: column %q with value %q is not numeric", e.Column, e.Value)
}

func (e *ValueError) Unwrap() error {
	return e.Err
}

// NewValueError creates a new value error.
func NewValueError(column string, value string, err error) *ValueError {
	return &ValueError{Column: column, Value: value, Err: err}
}

// IsValueError checks if an error is a ValueError.
func IsValueError(err error) bool {
	var ve *ValueError
	return errors.As(err, &ve)
}

// NetworkError represents a network-related error from the remote backend.
type NetworkError struct {
	Op   string // Operation being performed (e.g., "query", "write points")
	Addr string // Network address (if applicable)
	Err  error  // Underlying error
}

func (e *NetworkError) Error() string {
	if e.Addr != "" {
		return fmt.Sprintf("network %s (%s): %v", e.Op, e.Addr, e.Err)
	}
	if e.Err != nil {
		return fmt.Sprintf("network %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("network %s failed", e.Op)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// NewNetworkError creates a new network error.
func NewNetworkError(op string, addr string, err error) *NetworkError {
	return &NetworkError{Op: op, Addr: addr, Err: err}
}

// IsNetworkError checks if an error is a NetworkError.
func IsNetworkError(err error) bool {
	var ne *NetworkError
	return errors.As(err, &ne)
}

// Sentinel errors for common conditions
var (
	// ErrUnknownBackend indicates an unrecognized backend type name
	ErrUnknownBackend = errors.New("unknown backend type")

	// ErrInvalidConfig indicates invalid configuration
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrCircuitBreakerOpen indicates the circuit breaker is open
	ErrCircuitBreakerOpen = errors.New("circuit breaker open")

	// ErrBackendClosed indicates an operation on a closed backend
	ErrBackendClosed = errors.New("backend closed")
)
