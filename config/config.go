// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

// Package config provides configuration management for the observation store.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	obserrors "github.com/soothill/obsdb/pkg/errors"
	"gopkg.in/yaml.v3"
)

// BackendTypeCSV selects the chunked-file backend.
const BackendTypeCSV = "csv"

// BackendTypeInfluxDB selects the remote-service backend.
const BackendTypeInfluxDB = "influxdb"

// Config represents the application configuration
type Config struct {
	Backend  BackendConfig  `yaml:"backend" validate:"required"`
	InfluxDB InfluxDBConfig `yaml:"influxdb"`
	Weather  WeatherConfig  `yaml:"weather"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// BackendConfig holds the storage backend settings. The options mirror the
// chunk store layout: a base directory partitioned into fixed-width time
// buckets, one delimited-text file per bucket.
type BackendConfig struct {
	// Type selects the backend implementation ("csv" or "influxdb").
	Type string `yaml:"type" validate:"required"`

	// Dir is the base directory of the chunk store.
	Dir string `yaml:"dir"`

	// Merge enables merge-on-write with pre-existing chunk data.
	Merge bool `yaml:"merge"`

	// Format is the Go time layout that renders a bucket start time into
	// a chunk file name.
	Format string `yaml:"format"`

	// Interval is the bucket width in hours.
	Interval int `yaml:"interval" validate:"omitempty,gte=1,lte=8760"`

	// IndexColumn is the name of the time index column on disk.
	IndexColumn string `yaml:"index_column"`

	// IndexUnix marks the on-disk index as Unix-epoch milliseconds.
	IndexUnix bool `yaml:"index_unix"`

	// Decimal is the decimal separator used in chunk files.
	Decimal string `yaml:"decimal" validate:"omitempty,len=1"`

	// Separator is the field separator used in chunk files.
	Separator string `yaml:"separator" validate:"omitempty,len=1"`

	// Timezone is the IANA zone results are converted into.
	Timezone string `yaml:"timezone"`
}

// InfluxDBConfig holds InfluxDB connection settings for the remote backend.
type InfluxDBConfig struct {
	URL          string `yaml:"url"`
	Token        string `yaml:"token"`
	Organization string `yaml:"organization"`
	Bucket       string `yaml:"bucket"`
	Measurement  string `yaml:"measurement"`
}

// WeatherConfig holds the weather source settings.
type WeatherConfig struct {
	// Type selects the source implementation ("database", "tmy" or "epw").
	Type string `yaml:"type"`

	// File is the path of a TMY or EPW weather file.
	File string `yaml:"file"`

	// Year coerces all records of a typical-year file into one year.
	Year int `yaml:"year" validate:"omitempty,gte=1900,lte=2200"`

	// Version is the TMY file format version.
	Version int `yaml:"version" validate:"omitempty,eq=3"`

	// Latitude and Longitude locate the site for station lookups.
	Latitude  float64 `yaml:"latitude" validate:"omitempty,gte=-90,lte=90"`
	Longitude float64 `yaml:"longitude" validate:"omitempty,gte=-180,lte=180"`

	// DateFormat is the Go time layout for date strings passed to the
	// database source.
	DateFormat string `yaml:"date_format"`
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	Level string `yaml:"level"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Load reads configuration from a YAML file and applies environment variable overrides
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	err = yaml.Unmarshal(data, &cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Apply environment variable overrides and defaults
	cfg.applyEnvironmentOverrides()
	cfg.setDefaults()

	// Validate configuration
	err = cfg.Validate()
	if err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// applyEnvironmentOverrides applies environment variable overrides to the configuration
func (c *Config) applyEnvironmentOverrides() {
	if typ := os.Getenv("OBSDB_BACKEND_TYPE"); typ != "" {
		c.Backend.Type = typ
	}
	if dir := os.Getenv("OBSDB_BACKEND_DIR"); dir != "" {
		c.Backend.Dir = dir
	}
	if tz := os.Getenv("OBSDB_TIMEZONE"); tz != "" {
		c.Backend.Timezone = tz
	}
	if u := os.Getenv("INFLUXDB_URL"); u != "" {
		c.InfluxDB.URL = u
	}
	if token := os.Getenv("INFLUXDB_TOKEN"); token != "" {
		c.InfluxDB.Token = token
	}
	if org := os.Getenv("INFLUXDB_ORG"); org != "" {
		c.InfluxDB.Organization = org
	}
	if bucket := os.Getenv("INFLUXDB_BUCKET"); bucket != "" {
		c.InfluxDB.Bucket = bucket
	}
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
}

// setDefaults sets default values for configuration fields if not provided
func (c *Config) setDefaults() {
	if c.Backend.Format == "" {
		c.Backend.Format = "20060102_150405"
	}
	if c.Backend.Interval == 0 {
		c.Backend.Interval = 24
	}
	if c.Backend.IndexColumn == "" {
		c.Backend.IndexColumn = "time"
	}
	if c.Backend.Decimal == "" {
		c.Backend.Decimal = "."
	}
	if c.Backend.Separator == "" {
		c.Backend.Separator = ","
	}
	if c.Backend.Timezone == "" {
		c.Backend.Timezone = "UTC"
	}
	if c.InfluxDB.Measurement == "" {
		c.InfluxDB.Measurement = "observations"
	}
	if c.Weather.Type == "" {
		c.Weather.Type = "database"
	}
	if c.Weather.Version == 0 {
		c.Weather.Version = 3
	}
	if c.Weather.DateFormat == "" {
		c.Weather.DateFormat = "02.01.2006"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			fe := fieldErrs[0]
			return obserrors.NewConfigError(strings.ToLower(fe.Namespace()), fmt.Sprint(fe.Value()),
				fmt.Errorf("failed %q constraint", fe.Tag()))
		}
		return err
	}

	if validateErr := c.validateBackend(); validateErr != nil {
		return validateErr
	}

	if validateErr := c.validateLogging(); validateErr != nil {
		return validateErr
	}

	return nil
}

// validateBackend validates the backend configuration
func (c *Config) validateBackend() error {
	if _, err := time.LoadLocation(c.Backend.Timezone); err != nil {
		return obserrors.NewConfigError("backend.timezone", c.Backend.Timezone, err)
	}

	switch strings.ToLower(c.Backend.Type) {
	case BackendTypeCSV:
		if c.Backend.Dir == "" {
			return obserrors.NewConfigError("backend.dir", "", fmt.Errorf("required for the csv backend"))
		}
		if c.Backend.Decimal == c.Backend.Separator {
			return obserrors.NewConfigError("backend.decimal", c.Backend.Decimal,
				fmt.Errorf("must differ from the field separator"))
		}
	case BackendTypeInfluxDB:
		return c.validateInfluxDB()
	}
	// Unknown type names are rejected at backend construction, not here,
	// so that registered third-party backends keep working.
	return nil
}

// validateInfluxDB validates the InfluxDB configuration
func (c *Config) validateInfluxDB() error {
	if c.InfluxDB.URL == "" {
		return obserrors.NewConfigError("influxdb.url", "", fmt.Errorf("required for the influxdb backend"))
	}

	// Validate URL format and security
	parsedURL, parseErr := url.Parse(c.InfluxDB.URL)
	if parseErr != nil {
		return obserrors.NewConfigError("influxdb.url", c.InfluxDB.URL, parseErr)
	}

	// Check for HTTPS in production-like URLs (not localhost/127.0.0.1)
	if securityErr := validateURLSecurity(parsedURL); securityErr != nil {
		return securityErr
	}

	if c.InfluxDB.Token == "" {
		return obserrors.NewConfigError("influxdb.token", "", fmt.Errorf("required for the influxdb backend"))
	}

	// Validate token format (basic check for minimum length)
	if len(c.InfluxDB.Token) < 8 {
		return obserrors.NewConfigError("influxdb.token", "", fmt.Errorf("must be at least 8 characters long"))
	}

	if c.InfluxDB.Organization == "" {
		return obserrors.NewConfigError("influxdb.organization", "", fmt.Errorf("required for the influxdb backend"))
	}
	if c.InfluxDB.Bucket == "" {
		return obserrors.NewConfigError("influxdb.bucket", "", fmt.Errorf("required for the influxdb backend"))
	}

	return nil
}

// validateURLSecurity checks if the URL uses HTTPS for non-local connections
func validateURLSecurity(parsedURL *url.URL) error {
	if parsedURL.Scheme != "http" {
		return nil
	}

	hostname := strings.ToLower(parsedURL.Hostname())
	isLocal := hostname == "localhost" ||
		hostname == "127.0.0.1" ||
		hostname == "::1" ||
		strings.HasPrefix(hostname, "192.168.") ||
		strings.HasPrefix(hostname, "10.") ||
		strings.HasPrefix(hostname, "172.")

	if !isLocal {
		return obserrors.NewConfigError("influxdb.url", parsedURL.String(),
			fmt.Errorf("must use HTTPS for non-local connections (got %s); HTTP transmits credentials in plaintext", parsedURL.Scheme))
	}

	return nil
}

// validateLogging validates the logging configuration
func (c *Config) validateLogging() error {
	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true,
		"warning": true, "error": true, "fatal": true, "panic": true,
	}
	if !validLevels[c.Logging.Level] {
		return obserrors.NewConfigError("logging.level", c.Logging.Level,
			fmt.Errorf("must be one of: debug, info, warn, error, fatal, panic"))
	}

	return nil
}

// Location resolves the configured timezone, defaulting to UTC.
func (b *BackendConfig) Location() (*time.Location, error) {
	if b.Timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(b.Timezone)
	if err != nil {
		return nil, obserrors.NewConfigError("backend.timezone", b.Timezone, err)
	}
	return loc, nil
}

// BucketWidth returns the bucket width as a duration.
func (b *BackendConfig) BucketWidth() time.Duration {
	hours := b.Interval
	if hours <= 0 {
		hours = 24
	}
	return time.Duration(hours) * time.Hour
}
