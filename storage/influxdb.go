// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

package storage

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
	"github.com/soothill/obsdb/config"
	obserrors "github.com/soothill/obsdb/pkg/errors"
	"github.com/soothill/obsdb/pkg/logger"
	"github.com/soothill/obsdb/pkg/metrics"
	"github.com/soothill/obsdb/series"
	"golang.org/x/time/rate"
)

const (
	healthCheckTimeout = 5 * time.Second

	// Remote writes are limited to this many points per second; bursts up
	// to one extra batch are tolerated.
	writePointsPerSecond = 5000
	writeBurst           = 10000

	breakerFailureThreshold = 5
	breakerResetTimeout     = 30 * time.Second
)

// InfluxBackend is the remote-service backend: a thin client pushing and
// querying observations against an InfluxDB v2 instance. All range and
// merge logic lives server-side; the backend only assembles frames.
type InfluxBackend struct {
	client      influxdb2.Client
	writeAPI    api.WriteAPIBlocking
	queryAPI    api.QueryAPI
	url         string
	bucket      string
	org         string
	measurement string
	interval    time.Duration
	location    *time.Location
	breaker     *gobreaker.CircuitBreaker
	limiter     *rate.Limiter
	log         zerolog.Logger
}

// NewInfluxBackend creates the remote backend and verifies connectivity.
// A failed health check aborts construction; no half-initialized backend
// is returned.
func NewInfluxBackend(cfg *config.Config) (*InfluxBackend, error) {
	if cfg.InfluxDB.URL == "" {
		return nil, obserrors.NewConfigError("influxdb.url", "", obserrors.ErrInvalidConfig)
	}
	if cfg.InfluxDB.Token == "" {
		return nil, obserrors.NewConfigError("influxdb.token", "", obserrors.ErrInvalidConfig)
	}
	loc, err := cfg.Backend.Location()
	if err != nil {
		return nil, err
	}

	client := influxdb2.NewClient(cfg.InfluxDB.URL, cfg.InfluxDB.Token)

	// Verify connection
	ctx, cancel := context.WithTimeout(context.Background(), healthCheckTimeout)
	defer cancel()

	health, err := client.Health(ctx)
	if err != nil {
		client.Close()
		return nil, obserrors.NewNetworkError("health check", cfg.InfluxDB.URL, err)
	}
	if health.Status != "pass" {
		client.Close()
		message := "unknown error"
		if health.Message != nil {
			message = *health.Message
		}
		return nil, obserrors.NewNetworkError("health check", cfg.InfluxDB.URL, errors.New(message))
	}

	log := logger.With().Str("backend", config.BackendTypeInfluxDB).Str("url", cfg.InfluxDB.URL).Logger()
	log.Info().Str("status", string(health.Status)).Msg("Connected to InfluxDB")

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "influxdb",
		Timeout: breakerResetTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= breakerFailureThreshold
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Warn().Str("from", from.String()).Str("to", to.String()).Msg("Circuit breaker state change")
		},
	})

	return &InfluxBackend{
		client:      client,
		writeAPI:    client.WriteAPIBlocking(cfg.InfluxDB.Organization, cfg.InfluxDB.Bucket),
		queryAPI:    client.QueryAPI(cfg.InfluxDB.Organization),
		url:         cfg.InfluxDB.URL,
		bucket:      cfg.InfluxDB.Bucket,
		org:         cfg.InfluxDB.Organization,
		measurement: cfg.InfluxDB.Measurement,
		interval:    cfg.Backend.BucketWidth(),
		location:    loc,
		breaker:     breaker,
		limiter:     rate.NewLimiter(writePointsPerSecond, writeBurst),
		log:         log,
	}, nil
}

// Get queries the remote service for the span and reassembles the result
// into a frame. An unsupplied end covers the remainder of the bucket
// width after start, mirroring the chunked-file backend.
func (b *InfluxBackend) Get(ctx context.Context, q Query) (*series.Frame, error) {
	end := q.End
	if end.IsZero() {
		end = q.Start.Add(b.interval - time.Second)
	}

	// Flux range stops are exclusive.
	flux := fmt.Sprintf(`
		from(bucket: %q)
			|> range(start: %s, stop: %s)
			|> filter(fn: (r) => r._measurement == %q)
	`, b.bucket, q.Start.UTC().Format(time.RFC3339), end.Add(time.Second).UTC().Format(time.RFC3339), b.measurement)

	result, err := b.queryBreaker(ctx, flux)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = result.Close()
	}()
	metrics.RemoteQueriesTotal.Inc()

	frame := series.New(series.DefaultIndexName)
	for result.Next() {
		record := result.Record()
		if v, ok := record.Value().(float64); ok {
			frame.Set(record.Time(), record.Field(), v)
		}
	}
	if result.Err() != nil {
		return nil, obserrors.NewNetworkError("query", b.url, result.Err())
	}

	if q.Interval > resampleThreshold {
		frame = resampleWindow(frame, q.Start, q.Interval)
	}

	frame.ConvertZone(b.location)
	metrics.RowsRead.WithLabelValues(config.BackendTypeInfluxDB).Add(float64(frame.Len()))
	return frame, nil
}

// queryBreaker runs a Flux query under circuit breaker protection.
func (b *InfluxBackend) queryBreaker(ctx context.Context, flux string) (*api.QueryTableResult, error) {
	res, err := b.breaker.Execute(func() (interface{}, error) {
		return b.queryAPI.Query(ctx, flux)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) {
			return nil, fmt.Errorf("%w: influxdb query", obserrors.ErrCircuitBreakerOpen)
		}
		return nil, obserrors.NewNetworkError("query", b.url, err)
	}
	return res.(*api.QueryTableResult), nil
}

// Persist pushes every observation of the frame as field values of the
// configured measurement. Writes are rate limited and protected by the
// circuit breaker; a nil or empty frame is a no-op.
func (b *InfluxBackend) Persist(ctx context.Context, frame *series.Frame, _ PersistOptions) error {
	if frame == nil || frame.Empty() {
		return nil
	}

	columns := frame.Columns()
	points := make([]*write.Point, 0, frame.Len())
	for i := 0; i < frame.Len(); i++ {
		fields := make(map[string]interface{}, len(columns))
		for _, name := range columns {
			if v := frame.ValueAt(i, name); !math.IsNaN(v) {
				fields[name] = v
			}
		}
		if len(fields) == 0 {
			continue
		}
		points = append(points, influxdb2.NewPoint(b.measurement, nil, fields, frame.At(i)))
	}
	if len(points) == 0 {
		return nil
	}

	// WaitN rejects requests above the burst size, so large frames
	// reserve their points in burst-sized slices.
	for remaining := len(points); remaining > 0; {
		n := remaining
		if n > writeBurst {
			n = writeBurst
		}
		if err := b.limiter.WaitN(ctx, n); err != nil {
			return err
		}
		remaining -= n
	}

	_, err := b.breaker.Execute(func() (interface{}, error) {
		return nil, b.writeAPI.WritePoint(ctx, points...)
	})
	if err != nil {
		metrics.RemoteWriteErrors.Inc()
		if errors.Is(err, gobreaker.ErrOpenState) {
			return fmt.Errorf("%w: influxdb write", obserrors.ErrCircuitBreakerOpen)
		}
		return obserrors.NewNetworkError("write points", b.url, err)
	}

	metrics.RemoteWritesTotal.Inc()
	metrics.RowsWritten.WithLabelValues(config.BackendTypeInfluxDB).Add(float64(len(points)))
	b.log.Debug().Int("points", len(points)).Msg("persisted points")
	return nil
}

// Health checks connectivity to the remote service.
func (b *InfluxBackend) Health(ctx context.Context) error {
	health, err := b.client.Health(ctx)
	if err != nil {
		return obserrors.NewNetworkError("health check", b.url, err)
	}
	if health.Status != "pass" {
		message := "unknown error"
		if health.Message != nil {
			message = *health.Message
		}
		return obserrors.NewNetworkError("health check", b.url, errors.New(message))
	}
	return nil
}

// Close flushes and closes the client.
func (b *InfluxBackend) Close() error {
	b.log.Info().Msg("Closing InfluxDB connection")
	b.client.Close()
	return nil
}
