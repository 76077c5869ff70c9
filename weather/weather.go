// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

// Package weather provides environmental observation sources. A source
// either delegates to a storage backend or loads a typical-year weather
// file, and always yields the same frame shape the storage layer uses.
package weather

import (
	"context"
	"strings"
	"time"

	"github.com/soothill/obsdb/config"
	obserrors "github.com/soothill/obsdb/pkg/errors"
	"github.com/soothill/obsdb/series"
)

// Source retrieves environmental observations for a time span. A zero
// end means the source's natural span after start; a zero start means
// the source's full natural span.
type Source interface {
	Get(ctx context.Context, start, end time.Time) (*series.Frame, error)
	Close() error
}

// SourceTypeDatabase delegates to a configured storage backend.
const SourceTypeDatabase = "database"

// SourceTypeTMY loads a TMY3 typical-meteorological-year file.
const SourceTypeTMY = "tmy"

// SourceTypeEPW loads an EnergyPlus weather file.
const SourceTypeEPW = "epw"

// Open constructs the weather source selected by the configuration. An
// empty type selects the database source.
func Open(cfg *config.Config) (Source, error) {
	switch strings.ToLower(cfg.Weather.Type) {
	case "", "default", SourceTypeDatabase:
		return NewDatabaseSource(cfg)
	case SourceTypeTMY:
		return NewTMYSource(&cfg.Weather)
	case SourceTypeEPW:
		return NewEPWSource(&cfg.Weather)
	default:
		return nil, obserrors.NewConfigError("weather.type", cfg.Weather.Type, obserrors.ErrUnknownBackend)
	}
}
