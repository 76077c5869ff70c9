// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

package errors

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestConfigError(t *testing.T) {
	baseErr := fmt.Errorf("invalid format")
	err := NewConfigError("backend.type", "sqlite", baseErr)

	// Test Error() method
	errMsg := err.Error()
	if !strings.Contains(errMsg, "config error") || !strings.Contains(errMsg, "backend.type") {
		t.Errorf("Error() = %q, want message containing 'config error' and 'backend.type'", errMsg)
	}
	if !strings.Contains(errMsg, "sqlite") {
		t.Errorf("Error() = %q, want message containing the offending value", errMsg)
	}

	// Test Unwrap()
	if !errors.Is(err, baseErr) {
		t.Error("errors.Is() should find wrapped error")
	}

	// Test IsConfigError()
	if !IsConfigError(err) {
		t.Error("IsConfigError() should return true for ConfigError")
	}

	// Test errors.As()
	var ce *ConfigError
	if !errors.As(err, &ce) {
		t.Error("errors.As() should extract ConfigError")
	}
	if ce.Field != "backend.type" {
		t.Errorf("ConfigError.Field = %q, want %q", ce.Field, "backend.type")
	}
}

func TestParseError(t *testing.T) {
	baseErr := fmt.Errorf("ragged row")
	err := NewParseErrorAt("/data/20240101.csv", 7, baseErr)

	errMsg := err.Error()
	if !strings.Contains(errMsg, "/data/20240101.csv") || !strings.Contains(errMsg, ":7") {
		t.Errorf("Error() = %q, want message containing path and line", errMsg)
	}

	if !errors.Is(err, baseErr) {
		t.Error("errors.Is() should find wrapped error")
	}

	if !IsParseError(err) {
		t.Error("IsParseError() should return true for ParseError")
	}

	var pe *ParseError
	if !errors.As(err, &pe) {
		t.Error("errors.As() should extract ParseError")
	}
	if pe.Line != 7 {
		t.Errorf("ParseError.Line = %d, want 7", pe.Line)
	}
}

func TestParseErrorWithoutLine(t *testing.T) {
	err := NewParseError("/data/bad.csv", fmt.Errorf("no header"))
	if strings.Contains(err.Error(), ":0") {
		t.Errorf("Error() = %q, should not render a zero line number", err.Error())
	}
}

func TestStorageError(t *testing.T) {
	baseErr := fmt.Errorf("disk full")
	err := NewStorageError("write", "/data/20240101.csv", baseErr)

	errMsg := err.Error()
	if !strings.Contains(errMsg, "storage") || !strings.Contains(errMsg, "write") || !strings.Contains(errMsg, "/data/20240101.csv") {
		t.Errorf("Error() = %q, want message containing 'storage', 'write', and the path", errMsg)
	}

	if !errors.Is(err, baseErr) {
		t.Error("errors.Is() should find wrapped error")
	}

	if !IsStorageError(err) {
		t.Error("IsStorageError() should return true for StorageError")
	}

	var se *StorageError
	if !errors.As(err, &se) {
		t.Error("errors.As() should extract StorageError")
	}
	if se.Op != "write" {
		t.Errorf("StorageError.Op = %q, want %q", se.Op, "write")
	}
}

func TestValueError(t *testing.T) {
	err := NewValueError("temperature", "n/a", nil)

	errMsg := err.Error()
	if !strings.Contains(errMsg, "temperature") || !strings.Contains(errMsg, "n/a") {
		t.Errorf("Error() = %q, want message containing column and value", errMsg)
	}

	if !IsValueError(err) {
		t.Error("IsValueError() should return true for ValueError")
	}

	var ve *ValueError
	if !errors.As(err, &ve) {
		t.Error("errors.As() should extract ValueError")
	}
	if ve.Column != "temperature" {
		t.Errorf("ValueError.Column = %q, want %q", ve.Column, "temperature")
	}
}

func TestNetworkError(t *testing.T) {
	baseErr := fmt.Errorf("connection refused")
	err := NewNetworkError("query", "http://localhost:8086", baseErr)

	errMsg := err.Error()
	if !strings.Contains(errMsg, "network") || !strings.Contains(errMsg, "localhost:8086") {
		t.Errorf("Error() = %q, want message containing 'network' and the address", errMsg)
	}

	if !errors.Is(err, baseErr) {
		t.Error("errors.Is() should find wrapped error")
	}

	if !IsNetworkError(err) {
		t.Error("IsNetworkError() should return true for NetworkError")
	}
}

func TestErrorTypeDiscrimination(t *testing.T) {
	parseErr := NewParseError("/data/x.csv", fmt.Errorf("bad"))
	if IsConfigError(parseErr) {
		t.Error("IsConfigError() should return false for ParseError")
	}
	if IsStorageError(parseErr) {
		t.Error("IsStorageError() should return false for ParseError")
	}

	wrapped := fmt.Errorf("while merging: %w", parseErr)
	if !IsParseError(wrapped) {
		t.Error("IsParseError() should see through fmt.Errorf wrapping")
	}
}

func TestSentinelErrors(t *testing.T) {
	err := fmt.Errorf("open backend: %w", ErrUnknownBackend)
	if !errors.Is(err, ErrUnknownBackend) {
		t.Error("errors.Is() should match ErrUnknownBackend through wrapping")
	}
}
