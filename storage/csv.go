// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

package storage

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/soothill/obsdb/config"
	obserrors "github.com/soothill/obsdb/pkg/errors"
	"github.com/soothill/obsdb/pkg/logger"
	"github.com/soothill/obsdb/pkg/metrics"
	"github.com/soothill/obsdb/series"
)

// chunkExt is appended to every chunk file name.
const chunkExt = ".csv"

// CSVBackend stores observations in delimited-text chunk files, one per
// fixed-width time bucket under a base directory.
type CSVBackend struct {
	dir      string
	format   string
	interval time.Duration
	codec    *Codec
	location *time.Location
	log      zerolog.Logger
}

// NewCSVBackend creates a chunked-file backend from configuration.
func NewCSVBackend(cfg *config.Config) (*CSVBackend, error) {
	if cfg.Backend.Dir == "" {
		return nil, obserrors.NewConfigError("backend.dir", "", obserrors.ErrInvalidConfig)
	}
	loc, err := cfg.Backend.Location()
	if err != nil {
		return nil, err
	}

	b := &CSVBackend{
		dir:      cfg.Backend.Dir,
		format:   cfg.Backend.Format,
		interval: cfg.Backend.BucketWidth(),
		codec:    NewCodec(&cfg.Backend),
		location: loc,
		log:      logger.With().Str("backend", config.BackendTypeCSV).Str("dir", cfg.Backend.Dir).Logger(),
	}
	if b.format == "" {
		b.format = "20060102_150405"
	}
	return b, nil
}

// BucketPath maps a timestamp to the chunk file that a bucket starting at
// that timestamp would use. It is a pure function of its inputs: no
// flooring or normalization of t is performed. The range reader advances
// candidate start times by the bucket width and probes existence instead
// of computing a canonical bucket index, which tolerates queries starting
// mid-bucket.
func (b *CSVBackend) BucketPath(t time.Time, subdir string) string {
	return filepath.Join(b.dir, subdir, t.Format(b.format)+chunkExt)
}

// Exists reports whether the chunk for a bucket starting at t is present.
func (b *CSVBackend) Exists(t time.Time, subdir string) bool {
	_, err := os.Stat(b.BucketPath(t, subdir))
	return err == nil
}

// Get retrieves observations covering the queried span. Bucket candidates
// are visited from q.Start in bucket-width steps; every existing chunk is
// unioned into the accumulator with earlier chunks taking precedence, and
// missing chunks are silently skipped. The result is resampled when a
// cadence above the resampling threshold is requested, then sliced to the
// effective span and converted into the backend timezone.
func (b *CSVBackend) Get(ctx context.Context, q Query) (*series.Frame, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}
	began := time.Now()
	defer func() { metrics.ReadDuration.Observe(time.Since(began).Seconds()) }()

	endGiven := !q.End.IsZero()
	end := q.End
	if !endGiven {
		end = q.Start
	}
	// The span is extended by the remainder of a bucket so that a chunk
	// whose name precedes the queried end still gets visited. This is
	// what makes a [day N 23:00, day N+1 01:00] query under a date-keyed
	// pattern read both day files.
	end = end.Add(b.interval - time.Second)

	data := series.New(b.codec.indexColumn)
	for t := q.Start; !t.After(end); t = t.Add(b.interval) {
		if !b.Exists(t, q.Subdir) {
			// Missing chunks are not an error: no data for that period.
			metrics.ChunksMissing.Inc()
			continue
		}
		path := b.BucketPath(t, q.Subdir)
		chunk, err := b.codec.Read(path)
		if err != nil {
			metrics.ChunkReadErrors.Inc()
			return nil, err
		}
		metrics.ChunkReadsTotal.Inc()
		b.log.Debug().Str("chunk", path).Int("rows", chunk.Len()).Msg("loaded chunk")
		data = data.CombineFirst(chunk)
	}

	if q.Interval > resampleThreshold {
		data = resampleWindow(data, q.Start, q.Interval)
		end = end.Add(q.Interval)
	}

	result := data
	switch {
	case q.Start.After(end):
		// Degenerate span: at most the first row at or after start.
		result = data.TruncateBefore(q.Start).Head(1)
	case endGiven:
		result = data.Slice(q.Start, end)
	}

	result.ConvertZone(b.location)
	metrics.RowsRead.WithLabelValues(config.BackendTypeCSV).Add(float64(result.Len()))
	return result, nil
}

// Persist writes the frame into its destination bucket. A nil or empty
// frame is a no-op. The bucket is selected by opts.Time, defaulting to the
// frame's first index entry, and the file name derives from the naming
// pattern unless overridden.
func (b *CSVBackend) Persist(ctx context.Context, frame *series.Frame, opts PersistOptions) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	if frame == nil || frame.Empty() {
		return nil
	}
	began := time.Now()
	defer func() { metrics.WriteDuration.Observe(time.Since(began).Seconds()) }()

	at := opts.Time
	if at.IsZero() {
		at = frame.First()
	}
	file := opts.File
	if file == "" {
		file = at.Format(b.format) + chunkExt
	}

	dir := filepath.Join(b.dir, opts.Subdir)
	// MkdirAll succeeds when the directory already exists, so concurrent
	// writers targeting the same directory cannot fail each other here.
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return obserrors.NewStorageError("mkdir", dir, err)
	}

	path := filepath.Join(dir, file)
	if err := b.codec.Write(path, frame); err != nil {
		metrics.ChunkWriteErrors.Inc()
		return err
	}
	metrics.ChunkWritesTotal.Inc()
	metrics.RowsWritten.WithLabelValues(config.BackendTypeCSV).Add(float64(frame.Len()))
	b.log.Debug().Str("chunk", path).Int("rows", frame.Len()).Msg("persisted chunk")
	return nil
}

// Close implements Backend. The chunked-file backend holds no open
// resources between calls.
func (b *CSVBackend) Close() error {
	return nil
}

// Location returns the timezone results are converted into.
func (b *CSVBackend) Location() *time.Location {
	return b.location
}
