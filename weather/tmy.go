// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

package weather

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/soothill/obsdb/config"
	obserrors "github.com/soothill/obsdb/pkg/errors"
	"github.com/soothill/obsdb/series"
)

// StationMeta describes the weather station a typical-year file was
// recorded at.
type StationMeta struct {
	ID        string
	Name      string
	State     string
	TZOffset  float64
	Latitude  float64
	Longitude float64
	Elevation float64
}

// TMYSource serves observations from a TMY3 file. The whole file is
// parsed once at construction; Get only slices the loaded frame.
type TMYSource struct {
	data *series.Frame
	meta StationMeta
}

// NewTMYSource parses the configured TMY3 file. Records are stamped in
// the station's fixed local standard time; with a configured year all
// records are coerced into that year.
func NewTMYSource(cfg *config.WeatherConfig) (*TMYSource, error) {
	if cfg.Version != 0 && cfg.Version != 3 {
		return nil, obserrors.NewConfigError("weather.version", strconv.Itoa(cfg.Version),
			fmt.Errorf("only TMY3 files are supported"))
	}
	if cfg.File == "" {
		return nil, obserrors.NewConfigError("weather.file", "", obserrors.ErrInvalidConfig)
	}

	f, err := os.Open(cfg.File)
	if err != nil {
		return nil, obserrors.NewStorageError("read", cfg.File, err)
	}
	defer f.Close()

	frame, meta, err := parseTMY3(f, cfg.Year)
	if err != nil {
		return nil, obserrors.NewParseError(cfg.File, err)
	}
	return &TMYSource{data: frame, meta: meta}, nil
}

// Meta returns the station metadata from the file header.
func (s *TMYSource) Meta() StationMeta {
	return s.meta
}

// Get returns the loaded observations, sliced when a span is given.
func (s *TMYSource) Get(ctx context.Context, start, end time.Time) (*series.Frame, error) {
	return sliceLoaded(ctx, s.data, start, end)
}

// Close implements Source. The file is already released after parsing.
func (s *TMYSource) Close() error {
	return nil
}

// sliceLoaded applies the optional span to a fully loaded frame.
func sliceLoaded(ctx context.Context, data *series.Frame, start, end time.Time) (*series.Frame, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}
	switch {
	case start.IsZero() && end.IsZero():
		return data, nil
	case end.IsZero():
		return data.TruncateBefore(start), nil
	default:
		return data.Slice(start, end), nil
	}
}

// parseTMY3 decodes a TMY3 stream: one station metadata line, one header
// line, then hourly records in local standard time with hours counted
// 1 through 24 as interval endings.
func parseTMY3(r io.Reader, coerceYear int) (*series.Frame, StationMeta, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	var meta StationMeta
	metaLine, err := cr.Read()
	if err != nil {
		return nil, meta, fmt.Errorf("station metadata line: %w", err)
	}
	if len(metaLine) < 7 {
		return nil, meta, fmt.Errorf("station metadata line has %d fields, want 7", len(metaLine))
	}
	meta.ID = metaLine[0]
	meta.Name = strings.Trim(metaLine[1], `"`)
	meta.State = metaLine[2]
	if meta.TZOffset, err = strconv.ParseFloat(metaLine[3], 64); err != nil {
		return nil, meta, fmt.Errorf("station timezone offset %q: %w", metaLine[3], err)
	}
	if meta.Latitude, err = strconv.ParseFloat(metaLine[4], 64); err != nil {
		return nil, meta, fmt.Errorf("station latitude %q: %w", metaLine[4], err)
	}
	if meta.Longitude, err = strconv.ParseFloat(metaLine[5], 64); err != nil {
		return nil, meta, fmt.Errorf("station longitude %q: %w", metaLine[5], err)
	}
	if meta.Elevation, err = strconv.ParseFloat(metaLine[6], 64); err != nil {
		return nil, meta, fmt.Errorf("station elevation %q: %w", metaLine[6], err)
	}

	header, err := cr.Read()
	if err != nil {
		return nil, meta, fmt.Errorf("header line: %w", err)
	}
	if len(header) < 3 {
		return nil, meta, fmt.Errorf("header line has %d fields, want at least 3", len(header))
	}

	zone := time.FixedZone(fmt.Sprintf("UTC%+g", meta.TZOffset), int(meta.TZOffset*3600))
	frame := series.New(series.DefaultIndexName)

	line := 2
	for {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, meta, fmt.Errorf("line %d: %w", line, err)
		}

		t, err := parseHourEnding(record[0], "01/02/2006", record[1], zone, coerceYear)
		if err != nil {
			return nil, meta, fmt.Errorf("line %d: %w", line, err)
		}

		frame.AddRow(t)
		for i := 2; i < len(record) && i < len(header); i++ {
			cell := strings.TrimSpace(record[i])
			if cell == "" {
				continue
			}
			// Source and uncertainty flag columns are not numeric and
			// are skipped.
			if v, err := strconv.ParseFloat(cell, 64); err == nil {
				frame.Set(t, header[i], v)
			}
		}
	}

	return frame, meta, nil
}

// parseHourEnding decodes a date plus an HH:MM clock where hours run
// from 1 to 24 marking interval endings; hour 24 rolls into midnight of
// the next day.
func parseHourEnding(date, layout, clock string, zone *time.Location, coerceYear int) (time.Time, error) {
	day, err := time.ParseInLocation(layout, strings.TrimSpace(date), zone)
	if err != nil {
		return time.Time{}, fmt.Errorf("date %q: %w", date, err)
	}
	if coerceYear != 0 {
		day = time.Date(coerceYear, day.Month(), day.Day(), 0, 0, 0, 0, zone)
	}

	parts := strings.SplitN(strings.TrimSpace(clock), ":", 2)
	if len(parts) != 2 {
		return time.Time{}, fmt.Errorf("clock %q: want HH:MM", clock)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 1 || hour > 24 {
		return time.Time{}, fmt.Errorf("clock hour %q: want 1 through 24", parts[0])
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return time.Time{}, fmt.Errorf("clock minute %q", parts[1])
	}

	return day.Add(time.Duration(hour)*time.Hour + time.Duration(minute)*time.Minute), nil
}
