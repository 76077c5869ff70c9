// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

package weather

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/soothill/obsdb/config"
	obserrors "github.com/soothill/obsdb/pkg/errors"
	"github.com/soothill/obsdb/pkg/logger"
	"github.com/soothill/obsdb/series"
)

// stationIndexURL lists every EnergyPlus weather station with its
// coordinates and file links.
const stationIndexURL = "https://github.com/NREL/EnergyPlus/raw/develop/weather/master.geojson"

const downloadTimeout = 60 * time.Second

// epwColumns names the observation fields of an EPW record, starting at
// field 6. Fields 0 through 5 hold the timestamp and source flags.
var epwColumns = []string{
	"temp_air",
	"temp_dew",
	"relative_humidity",
	"atmospheric_pressure",
	"etr",
	"etrn",
	"ghi_infrared",
	"ghi",
	"dni",
	"dhi",
	"global_hor_illum",
	"direct_normal_illum",
	"diffuse_horizontal_illum",
	"zenith_luminance",
	"wind_direction",
	"wind_speed",
	"total_sky_cover",
	"opaque_sky_cover",
	"visibility",
	"ceiling_height",
	"present_weather_observation",
	"present_weather_codes",
	"precipitable_water",
	"aerosol_optical_depth",
	"snow_depth",
	"days_since_last_snowfall",
	"albedo",
	"liquid_precipitation_depth",
	"liquid_precipitation_quantity",
}

// EPWSource serves observations from an EnergyPlus weather file. A
// missing file is fetched for the nearest station to the configured
// coordinates before parsing.
type EPWSource struct {
	data *series.Frame
	meta StationMeta
}

// NewEPWSource loads the configured EPW file, downloading it first when
// it does not exist yet.
func NewEPWSource(cfg *config.WeatherConfig) (*EPWSource, error) {
	return newEPWSource(cfg, http.DefaultClient, stationIndexURL)
}

func newEPWSource(cfg *config.WeatherConfig, client *http.Client, indexURL string) (*EPWSource, error) {
	if cfg.File == "" {
		return nil, obserrors.NewConfigError("weather.file", "", obserrors.ErrInvalidConfig)
	}

	if _, err := os.Stat(cfg.File); err != nil {
		ctx, cancel := context.WithTimeout(context.Background(), downloadTimeout)
		defer cancel()
		if err := downloadNearestEPW(ctx, client, indexURL, cfg); err != nil {
			return nil, err
		}
	}

	f, err := os.Open(cfg.File)
	if err != nil {
		return nil, obserrors.NewStorageError("read", cfg.File, err)
	}
	defer f.Close()

	frame, meta, err := parseEPW(f, cfg.Year)
	if err != nil {
		return nil, obserrors.NewParseError(cfg.File, err)
	}
	return &EPWSource{data: frame, meta: meta}, nil
}

// Meta returns the station metadata from the file's LOCATION header.
func (s *EPWSource) Meta() StationMeta {
	return s.meta
}

// Get returns the loaded observations, sliced when a span is given.
func (s *EPWSource) Get(ctx context.Context, start, end time.Time) (*series.Frame, error) {
	return sliceLoaded(ctx, s.data, start, end)
}

// Close implements Source.
func (s *EPWSource) Close() error {
	return nil
}

// stationIndex mirrors the subset of the EnergyPlus geojson index the
// download needs.
type stationIndex struct {
	Features []struct {
		Properties struct {
			EPW string `json:"epw"`
		} `json:"properties"`
		Geometry struct {
			Coordinates []float64 `json:"coordinates"`
		} `json:"geometry"`
	} `json:"features"`
}

// epwHrefPattern extracts the file URL from the HTML anchor the index
// embeds in its epw property.
var epwHrefPattern = regexp.MustCompile(`href=['"]?([^'" >]+)`)

// downloadNearestEPW fetches the station index, picks the station closest
// to the configured coordinates and stores its weather file at the
// configured path.
func downloadNearestEPW(ctx context.Context, client *http.Client, indexURL string, cfg *config.WeatherConfig) error {
	log := logger.With().Str("source", SourceTypeEPW).Logger()
	log.Info().
		Float64("latitude", cfg.Latitude).
		Float64("longitude", cfg.Longitude).
		Msg("Weather file missing, fetching nearest station")

	index, err := fetchStationIndex(ctx, client, indexURL)
	if err != nil {
		return err
	}

	url, err := nearestStationURL(index, cfg.Latitude, cfg.Longitude)
	if err != nil {
		return err
	}
	log.Info().Str("url", url).Msg("Downloading weather file")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return obserrors.NewNetworkError("download", url, err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return obserrors.NewNetworkError("download", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return obserrors.NewNetworkError("download", url,
			fmt.Errorf("unexpected status %s", resp.Status))
	}

	f, err := os.Create(cfg.File)
	if err != nil {
		return obserrors.NewStorageError("write", cfg.File, err)
	}
	defer f.Close()
	if _, err := io.Copy(f, resp.Body); err != nil {
		return obserrors.NewStorageError("write", cfg.File, err)
	}
	return nil
}

func fetchStationIndex(ctx context.Context, client *http.Client, indexURL string) (*stationIndex, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, indexURL, nil)
	if err != nil {
		return nil, obserrors.NewNetworkError("station index", indexURL, err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, obserrors.NewNetworkError("station index", indexURL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, obserrors.NewNetworkError("station index", indexURL,
			fmt.Errorf("unexpected status %s", resp.Status))
	}

	var index stationIndex
	if err := json.NewDecoder(resp.Body).Decode(&index); err != nil {
		return nil, obserrors.NewNetworkError("station index", indexURL, err)
	}
	return &index, nil
}

// nearestStationURL picks the station with the smallest coordinate
// distance to the site.
func nearestStationURL(index *stationIndex, latitude, longitude float64) (string, error) {
	best := ""
	bestDist := math.Inf(1)
	for _, feature := range index.Features {
		match := epwHrefPattern.FindStringSubmatch(feature.Properties.EPW)
		if match == nil || len(feature.Geometry.Coordinates) < 2 {
			continue
		}
		lon := feature.Geometry.Coordinates[0]
		lat := feature.Geometry.Coordinates[1]
		dist := math.Hypot(lat-latitude, lon-longitude)
		if dist < bestDist {
			bestDist = dist
			best = match[1]
		}
	}
	if best == "" {
		return "", fmt.Errorf("station index lists no usable stations")
	}
	return best, nil
}

// parseEPW decodes an EPW stream: eight header lines, of which the first
// carries the station location, then hourly records with hours counted
// 1 through 24 as interval endings.
func parseEPW(r io.Reader, coerceYear int) (*series.Frame, StationMeta, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	var meta StationMeta
	location, err := cr.Read()
	if err != nil {
		return nil, meta, fmt.Errorf("location line: %w", err)
	}
	if len(location) < 10 || !strings.EqualFold(location[0], "LOCATION") {
		return nil, meta, fmt.Errorf("malformed LOCATION line")
	}
	meta.Name = location[1]
	meta.State = location[2]
	meta.ID = location[5]
	if meta.Latitude, err = strconv.ParseFloat(location[6], 64); err != nil {
		return nil, meta, fmt.Errorf("station latitude %q: %w", location[6], err)
	}
	if meta.Longitude, err = strconv.ParseFloat(location[7], 64); err != nil {
		return nil, meta, fmt.Errorf("station longitude %q: %w", location[7], err)
	}
	if meta.TZOffset, err = strconv.ParseFloat(location[8], 64); err != nil {
		return nil, meta, fmt.Errorf("station timezone offset %q: %w", location[8], err)
	}
	if meta.Elevation, err = strconv.ParseFloat(location[9], 64); err != nil {
		return nil, meta, fmt.Errorf("station elevation %q: %w", location[9], err)
	}

	// Seven remaining header lines before the records start.
	for i := 0; i < 7; i++ {
		if _, err := cr.Read(); err != nil {
			return nil, meta, fmt.Errorf("header line %d: %w", i+2, err)
		}
	}

	zone := time.FixedZone(fmt.Sprintf("UTC%+g", meta.TZOffset), int(meta.TZOffset*3600))
	frame := series.New(series.DefaultIndexName)

	line := 8
	for {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, meta, fmt.Errorf("line %d: %w", line, err)
		}
		if len(record) < 7 {
			return nil, meta, fmt.Errorf("line %d: %d fields, want at least 7", line, len(record))
		}

		t, err := parseEPWTimestamp(record, zone, coerceYear)
		if err != nil {
			return nil, meta, fmt.Errorf("line %d: %w", line, err)
		}

		frame.AddRow(t)
		for i, name := range epwColumns {
			pos := i + 6
			if pos >= len(record) {
				break
			}
			cell := strings.TrimSpace(record[pos])
			if cell == "" {
				continue
			}
			if v, err := strconv.ParseFloat(cell, 64); err == nil {
				frame.Set(t, name, v)
			}
		}
	}

	return frame, meta, nil
}

// parseEPWTimestamp decodes the year, month, day, hour and minute fields
// of an EPW record. Hours run 1 through 24 as interval endings.
func parseEPWTimestamp(record []string, zone *time.Location, coerceYear int) (time.Time, error) {
	fields := make([]int, 5)
	for i := 0; i < 5; i++ {
		v, err := strconv.Atoi(strings.TrimSpace(record[i]))
		if err != nil {
			return time.Time{}, fmt.Errorf("timestamp field %d %q: %w", i, record[i], err)
		}
		fields[i] = v
	}
	year, month, day, hour, minute := fields[0], fields[1], fields[2], fields[3], fields[4]
	if coerceYear != 0 {
		year = coerceYear
	}
	if hour < 1 || hour > 24 {
		return time.Time{}, fmt.Errorf("hour %d: want 1 through 24", hour)
	}
	// Records mark minute 60 or 0 interchangeably for whole hours.
	if minute >= 60 {
		minute = 0
	}
	base := time.Date(year, time.Month(month), day, 0, 0, 0, 0, zone)
	return base.Add(time.Duration(hour)*time.Hour + time.Duration(minute)*time.Minute), nil
}
