// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

// Package storage provides pluggable persistence backends for time-indexed
// observation data.
//
// Two backends are provided: a chunked-file store that partitions the time
// axis into fixed-width buckets with one delimited-text file per bucket,
// and a thin client for a remote InfluxDB service. Both satisfy the
// Backend interface, so callers are interchangeable over either.
package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/soothill/obsdb/config"
	obserrors "github.com/soothill/obsdb/pkg/errors"
	"github.com/soothill/obsdb/series"
)

// resampleThreshold is the smallest target cadence that triggers
// resampling; requests at or below it return the raw cadence.
const resampleThreshold = 900 * time.Second

// Query describes a range read.
type Query struct {
	// Start is the beginning of the span, inclusive.
	Start time.Time

	// End is the end of the span, inclusive. The zero value means "not
	// supplied": the query covers the remainder of the bucket containing
	// Start.
	End time.Time

	// Interval is the target sampling cadence. Values above 900s cause
	// the result to be resampled into Interval-wide sum bins phase-aligned
	// with Start's offset from midnight; zero returns the raw cadence.
	Interval time.Duration

	// Subdir optionally narrows the read to a subdirectory of the store.
	Subdir string
}

// PersistOptions control where a frame is written.
type PersistOptions struct {
	// Time selects the destination bucket. The zero value uses the
	// frame's first index entry.
	Time time.Time

	// File overrides the derived chunk file name.
	File string

	// Subdir optionally targets a subdirectory of the store.
	Subdir string
}

// Backend is the capability set shared by all persistence backends.
type Backend interface {
	// Get retrieves observations covering the queried span.
	Get(ctx context.Context, q Query) (*series.Frame, error)

	// Persist stores the frame. Persisting a nil or empty frame is a
	// no-op.
	Persist(ctx context.Context, frame *series.Frame, opts PersistOptions) error

	// Close releases any resources held by the backend.
	Close() error
}

// Constructor builds a backend from configuration.
type Constructor func(cfg *config.Config) (Backend, error)

var registry = map[string]Constructor{}

// Register associates a backend type name with its constructor. Type
// names are matched case-insensitively by Open.
func Register(name string, fn Constructor) {
	registry[strings.ToLower(name)] = fn
}

func init() {
	Register(config.BackendTypeCSV, func(cfg *config.Config) (Backend, error) {
		return NewCSVBackend(cfg)
	})
	Register(config.BackendTypeInfluxDB, func(cfg *config.Config) (Backend, error) {
		return NewInfluxBackend(cfg)
	})
}

// Open constructs the backend selected by the configured type name. An
// unrecognized type fails with a ConfigError; no partially initialized
// backend is ever returned.
func Open(cfg *config.Config) (Backend, error) {
	name := strings.ToLower(cfg.Backend.Type)
	fn, ok := registry[name]
	if !ok {
		return nil, obserrors.NewConfigError("backend.type", cfg.Backend.Type,
			fmt.Errorf("%w: %q", obserrors.ErrUnknownBackend, cfg.Backend.Type))
	}
	return fn(cfg)
}

// resampleWindow applies the shared resampling rule: values are summed
// into interval-wide bins whose phase is start's offset from its local
// midnight modulo the interval. Both backends use it so repeated queries
// at the same cadence produce identically-phased bins regardless of
// which day start falls on.
func resampleWindow(frame *series.Frame, start time.Time, interval time.Duration) *series.Frame {
	midnight := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, start.Location())
	phase := start.Sub(midnight) % interval
	return frame.Resample(interval, midnight.Add(phase))
}
