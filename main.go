// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

package main

import (
	"context"
	"encoding/csv"
	"flag"
	"fmt"
	"io"
	"math"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/soothill/obsdb/config"
	"github.com/soothill/obsdb/pkg/logger"
	"github.com/soothill/obsdb/series"
	"github.com/soothill/obsdb/storage"
	"github.com/soothill/obsdb/weather"
)

const (
	signalChannelSize  = 1
	healthCheckTimeout = 5 * time.Second
	shutdownTimeout    = 5 * time.Second
)

// timeFlagLayouts are accepted by the -start and -end flags.
var timeFlagLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func main() {
	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	metricsPort := flag.String("metrics-port", "9090", "Port for Prometheus metrics endpoint")
	healthCheck := flag.Bool("health-check", false, "Perform health check and exit")
	validateConfig := flag.Bool("validate-config", false, "Validate configuration file and exit")
	op := flag.String("op", "get", "Operation: get, sync or weather")
	startFlag := flag.String("start", "", "Start of the queried span")
	endFlag := flag.String("end", "", "End of the queried span")
	interval := flag.Duration("interval", 0, "Resampling cadence, e.g. 1h")
	subdir := flag.String("subdir", "", "Chunk store subdirectory")
	destConfig := flag.String("dest-config", "", "Destination configuration file for sync")
	repeat := flag.Duration("repeat", 0, "Repeat sync at this cadence; 0 runs once")
	flag.Parse()

	if *healthCheck {
		os.Exit(performHealthCheck(*configPath))
	}

	if *validateConfig {
		os.Exit(performConfigValidation(*configPath))
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Initialize("error")
		logger.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logger.Initialize(cfg.Logging.Level)

	start, err := parseTimeFlag(*startFlag)
	if err != nil {
		logger.Fatal().Err(err).Msg("Invalid -start value")
	}
	end, err := parseTimeFlag(*endFlag)
	if err != nil {
		logger.Fatal().Err(err).Msg("Invalid -end value")
	}
	query := storage.Query{Start: start, End: end, Interval: *interval, Subdir: *subdir}

	switch *op {
	case "get":
		if start.IsZero() {
			logger.Fatal().Msg("-start is required for get")
		}
		err = runGet(cfg, query)
	case "sync":
		if *destConfig == "" {
			logger.Fatal().Msg("-dest-config is required for sync")
		}
		if start.IsZero() {
			logger.Fatal().Msg("-start is required for sync")
		}
		err = runSync(cfg, *destConfig, query, *repeat, *metricsPort, *configPath)
	case "weather":
		err = runWeather(cfg, start, end)
	default:
		logger.Fatal().Str("op", *op).Msg("Unknown operation")
	}
	if err != nil {
		logger.Fatal().Err(err).Msg("Operation failed")
	}
}

// runGet queries the configured backend and prints the span as CSV on
// standard output.
func runGet(cfg *config.Config, query storage.Query) error {
	backend, err := storage.Open(cfg)
	if err != nil {
		return err
	}
	defer backend.Close()

	frame, err := backend.Get(context.Background(), query)
	if err != nil {
		return err
	}
	return printFrame(os.Stdout, frame)
}

// runWeather queries the configured weather source and prints the result
// as CSV on standard output.
func runWeather(cfg *config.Config, start, end time.Time) error {
	source, err := weather.Open(cfg)
	if err != nil {
		return err
	}
	defer source.Close()

	frame, err := source.Get(context.Background(), start, end)
	if err != nil {
		return err
	}
	return printFrame(os.Stdout, frame)
}

// syncer copies observation spans from a source backend into a
// destination backend, optionally on a fixed cadence.
type syncer struct {
	src        storage.Backend
	dest       storage.Backend
	query      storage.Query
	server     *http.Server
	watcher    *config.Watcher
	configChan chan *config.Config
	wg         sync.WaitGroup
	cancel     context.CancelFunc
}

// runSync copies the span from the configured backend into the backend
// described by the destination configuration. With a repeat cadence the
// copy runs until interrupted, serving Prometheus metrics on localhost
// and reloading its source configuration on SIGHUP.
func runSync(cfg *config.Config, destPath string, query storage.Query, repeat time.Duration, metricsPort, configPath string) error {
	destCfg, err := config.Load(destPath)
	if err != nil {
		return fmt.Errorf("destination configuration: %w", err)
	}

	src, err := storage.Open(cfg)
	if err != nil {
		return err
	}
	dest, err := storage.Open(destCfg)
	if err != nil {
		src.Close()
		return err
	}

	s := &syncer{src: src, dest: dest, query: query}
	defer s.close()

	if repeat <= 0 {
		return s.syncOnce(context.Background())
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	defer cancel()

	s.configChan = make(chan *config.Config)
	s.watcher = config.NewWatcher(configPath, s.configChan)
	s.watcher.Start(ctx)
	defer s.watcher.Stop()

	s.startMetricsServer(metricsPort)
	s.setupSignalHandler()

	logger.Info().Dur("repeat", repeat).Msg("Starting periodic sync")
	if err := s.syncOnce(ctx); err != nil {
		logger.Error().Err(err).Msg("Sync failed")
	}

	ticker := time.NewTicker(repeat)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("Shutting down")
			s.shutdown()
			return nil
		case newCfg := <-s.configChan:
			if err := s.updateSource(newCfg); err != nil {
				logger.Error().Err(err).Msg("Failed to apply reloaded configuration")
			}
		case <-ticker.C:
			if ctx.Err() != nil {
				return nil
			}
			if err := s.syncOnce(ctx); err != nil {
				logger.Error().Err(err).Msg("Sync failed")
			}
		}
	}
}

// syncOnce copies the configured span once.
func (s *syncer) syncOnce(ctx context.Context) error {
	frame, err := s.src.Get(ctx, s.query)
	if err != nil {
		return err
	}
	if frame.Empty() {
		logger.Info().Msg("Nothing to sync")
		return nil
	}
	if err := s.dest.Persist(ctx, frame, storage.PersistOptions{Subdir: s.query.Subdir}); err != nil {
		return err
	}
	logger.Info().Int("rows", frame.Len()).Msg("Sync complete")
	return nil
}

// updateSource swaps the source backend for one built from a reloaded
// configuration. The previous backend stays in use when the new one
// cannot be opened.
func (s *syncer) updateSource(cfg *config.Config) error {
	src, err := storage.Open(cfg)
	if err != nil {
		return err
	}
	s.src.Close()
	s.src = src
	logger.Info().Str("type", cfg.Backend.Type).Msg("Source backend reopened")
	return nil
}

// startMetricsServer starts the HTTP server for Prometheus metrics.
func (s *syncer) startMetricsServer(port string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	s.server = &http.Server{
		Addr:    "localhost:" + port,
		Handler: mux,
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		logger.Info().Str("addr", s.server.Addr).Msg("Starting metrics server (localhost only)")
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("Metrics server failed")
		}
	}()
}

// setupSignalHandler cancels the sync loop on interrupt signals.
func (s *syncer) setupSignalHandler() {
	sigChan := make(chan os.Signal, signalChannelSize)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		logger.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		s.cancel()
	}()
}

// shutdown stops the metrics server and waits for goroutines to finish.
func (s *syncer) shutdown() {
	if s.server != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer shutdownCancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("HTTP server shutdown error")
		}
	}
	s.wg.Wait()
}

func (s *syncer) close() {
	s.src.Close()
	s.dest.Close()
}

// printFrame renders a frame as CSV with RFC3339 timestamps. Absent
// cells are written empty.
func printFrame(w io.Writer, frame *series.Frame) error {
	cw := csv.NewWriter(w)
	columns := frame.Columns()

	header := append([]string{frame.IndexName()}, columns...)
	if err := cw.Write(header); err != nil {
		return err
	}
	for i := 0; i < frame.Len(); i++ {
		record := make([]string, 0, len(header))
		record = append(record, frame.At(i).Format(time.RFC3339))
		for _, name := range columns {
			v := frame.ValueAt(i, name)
			if math.IsNaN(v) {
				record = append(record, "")
			} else {
				record = append(record, strconv.FormatFloat(v, 'g', -1, 64))
			}
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// parseTimeFlag decodes a -start or -end value. Layouts without zone
// information are taken as UTC; an empty value yields the zero time.
func parseTimeFlag(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	for _, layout := range timeFlagLayouts {
		if t, err := time.ParseInLocation(layout, value, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("time %q does not match any accepted layout", value)
}

// performHealthCheck verifies the configured backend is reachable and
// returns an exit code.
func performHealthCheck(configPath string) int {
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Health check failed: could not load config: %v\n", err)
		return 1
	}

	backend, err := storage.Open(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Health check failed: could not open backend: %v\n", err)
		return 1
	}
	defer backend.Close()

	if checker, ok := backend.(interface{ Health(context.Context) error }); ok {
		ctx, cancel := context.WithTimeout(context.Background(), healthCheckTimeout)
		defer cancel()
		if err := checker.Health(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "Health check failed: backend is unhealthy: %v\n", err)
			return 1
		}
	}

	fmt.Println("Health check passed: backend is healthy")
	return 0
}

// performConfigValidation validates the configuration file and returns
// an exit code.
func performConfigValidation(configPath string) int {
	logger.Initialize("info")
	logger.Info().Str("path", configPath).Msg("Validating configuration file")

	if err := config.ValidateWithSchema(configPath); err != nil {
		logger.Error().Err(err).Msg("Configuration schema validation failed")
		fmt.Fprintf(os.Stderr, "\nConfiguration validation FAILED\n")
		return 1
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Error().Err(err).Msg("Configuration validation failed")
		fmt.Fprintf(os.Stderr, "\nConfiguration validation FAILED\n")
		fmt.Fprintf(os.Stderr, "Error: %v\n\n", err)
		return 1
	}

	fmt.Println("\nConfiguration validation PASSED")
	fmt.Println("\nConfiguration summary:")
	fmt.Printf("  Backend Type: %s\n", cfg.Backend.Type)
	if cfg.Backend.Type == config.BackendTypeCSV {
		fmt.Printf("  Chunk Directory: %s\n", cfg.Backend.Dir)
		fmt.Printf("  Bucket Format: %s\n", cfg.Backend.Format)
		fmt.Printf("  Bucket Width: %s\n", cfg.Backend.BucketWidth())
		fmt.Printf("  Merge Writes: %t\n", cfg.Backend.Merge)
	}
	if cfg.Backend.Type == config.BackendTypeInfluxDB {
		fmt.Printf("  InfluxDB URL: %s\n", cfg.InfluxDB.URL)
		fmt.Printf("  InfluxDB Organization: %s\n", cfg.InfluxDB.Organization)
		fmt.Printf("  InfluxDB Bucket: %s\n", cfg.InfluxDB.Bucket)
		fmt.Printf("  Measurement: %s\n", cfg.InfluxDB.Measurement)
	}
	fmt.Printf("  Timezone: %s\n", cfg.Backend.Timezone)
	fmt.Printf("  Log Level: %s\n", cfg.Logging.Level)

	fmt.Println("\nAll validation checks passed. Configuration is ready for use.")
	return 0
}
