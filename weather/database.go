// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

package weather

import (
	"context"
	"time"

	"github.com/soothill/obsdb/config"
	"github.com/soothill/obsdb/series"
	"github.com/soothill/obsdb/storage"
)

// DatabaseSource serves weather observations out of a storage backend.
type DatabaseSource struct {
	backend    storage.Backend
	dateFormat string
}

// NewDatabaseSource opens the configured storage backend as a weather
// source.
func NewDatabaseSource(cfg *config.Config) (*DatabaseSource, error) {
	backend, err := storage.Open(cfg)
	if err != nil {
		return nil, err
	}
	format := cfg.Weather.DateFormat
	if format == "" {
		format = "02.01.2006"
	}
	return &DatabaseSource{backend: backend, dateFormat: format}, nil
}

// Get retrieves weather observations for the span. A zero start defaults
// to the first of January of last year in UTC; a zero end defaults to
// 364 days after start, covering one typical year.
func (s *DatabaseSource) Get(ctx context.Context, start, end time.Time) (*series.Frame, error) {
	if start.IsZero() {
		now := time.Now().UTC()
		start = time.Date(now.Year()-1, time.January, 1, 0, 0, 0, 0, time.UTC)
	}
	if end.IsZero() {
		end = start.Add(364 * 24 * time.Hour)
	}
	return s.backend.Get(ctx, storage.Query{Start: start, End: end})
}

// GetDates retrieves weather observations between two date strings in
// the configured layout. Empty strings fall back to the Get defaults.
func (s *DatabaseSource) GetDates(ctx context.Context, start, end string) (*series.Frame, error) {
	var startTime, endTime time.Time
	var err error
	if start != "" {
		startTime, err = time.ParseInLocation(s.dateFormat, start, time.UTC)
		if err != nil {
			return nil, err
		}
	}
	if end != "" {
		endTime, err = time.ParseInLocation(s.dateFormat, end, time.UTC)
		if err != nil {
			return nil, err
		}
	}
	return s.Get(ctx, startTime, endTime)
}

// Close closes the underlying backend.
func (s *DatabaseSource) Close() error {
	return s.backend.Close()
}
