// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

package storage

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/soothill/obsdb/config"
	obserrors "github.com/soothill/obsdb/pkg/errors"
	"github.com/soothill/obsdb/pkg/metrics"
	"github.com/soothill/obsdb/series"
)

// timestampLayouts are tried in order when parsing index cells. Layouts
// without zone information yield UTC, which matches the on-disk contract
// that naive timestamps are UTC.
var timestampLayouts = []string{
	"2006-01-02 15:04:05Z07:00",
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// writeTimestampLayout renders index entries on disk in UTC with an
// explicit offset.
const writeTimestampLayout = "2006-01-02 15:04:05Z07:00"

// Codec reads and writes chunk files in the configured delimited-text
// format. A codec is immutable after construction and shared by all
// operations of its backend.
type Codec struct {
	separator   rune
	decimal     string
	indexColumn string
	indexUnix   bool
	merge       bool
}

// NewCodec builds a codec from the backend configuration.
func NewCodec(cfg *config.BackendConfig) *Codec {
	sep := ','
	if cfg.Separator != "" {
		sep = []rune(cfg.Separator)[0]
	}
	decimal := cfg.Decimal
	if decimal == "" {
		decimal = "."
	}
	indexColumn := cfg.IndexColumn
	if indexColumn == "" {
		indexColumn = series.DefaultIndexName
	}
	return &Codec{
		separator:   sep,
		decimal:     decimal,
		indexColumn: indexColumn,
		indexUnix:   cfg.IndexUnix,
		merge:       cfg.Merge,
	}
}

// Read parses the chunk file at path into a frame. Empty and header-only
// files yield an empty frame with the configured index name so downstream
// unions and slices never fail on shape. A file that exists but cannot be
// decoded fails with a ParseError; a non-numeric observation cell fails
// with a ValueError.
func (c *Codec) Read(path string) (*series.Frame, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, obserrors.NewStorageError("read", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.Comma = c.separator
	r.TrimLeadingSpace = true

	frame := series.New(c.indexColumn)

	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		// Zero-byte file: same shape as a populated one would have.
		return frame, nil
	}
	if err != nil {
		return nil, obserrors.NewParseError(path, err)
	}

	indexPos := -1
	for i, name := range header {
		if name == c.indexColumn {
			indexPos = i
			break
		}
	}
	if indexPos < 0 {
		return nil, obserrors.NewParseError(path,
			fmt.Errorf("index column %q not found in header %v", c.indexColumn, header))
	}
	for i, name := range header {
		if i != indexPos {
			frame.AddColumn(name)
		}
	}

	line := 1
	for {
		record, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, obserrors.NewParseErrorAt(path, line, err)
		}

		t, err := c.parseTimestamp(record[indexPos])
		if err != nil {
			return nil, obserrors.NewParseErrorAt(path, line, err)
		}

		frame.AddRow(t)
		for i, cell := range record {
			if i == indexPos {
				continue
			}
			if strings.TrimSpace(cell) == "" {
				continue
			}
			v, err := c.parseFloat(cell)
			if err != nil {
				return nil, obserrors.NewValueError(header[i], cell, err)
			}
			frame.Set(t, header[i], v)
		}
	}

	return frame, nil
}

// Write stores the frame at path. The index is converted to UTC and
// renamed to the configured index column; all values are written as
// floats. With merge enabled and a pre-existing destination, the frame is
// combined with the on-disk content first: new values win, old values
// fill gaps, and columns unique to the old file are appended. A corrupt
// existing file propagates its ParseError instead of being overwritten.
func (c *Codec) Write(path string, frame *series.Frame) error {
	frame = frame.Copy().ConvertZone(time.UTC)
	frame.SetIndexName(c.indexColumn)

	if c.merge {
		if _, err := os.Stat(path); err == nil {
			existing, err := c.Read(path)
			if err != nil {
				return fmt.Errorf("merge read of existing chunk: %w", err)
			}
			if !existing.Empty() {
				frame = frame.CombineFirst(existing.ConvertZone(time.UTC))
				metrics.MergeWritesTotal.Inc()
			}
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return obserrors.NewStorageError("write", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	w.Comma = c.separator

	columns := frame.Columns()
	header := append([]string{c.indexColumn}, columns...)
	if err := w.Write(header); err != nil {
		return obserrors.NewStorageError("write", path, err)
	}

	for i := 0; i < frame.Len(); i++ {
		record := make([]string, 0, len(header))
		record = append(record, c.formatTimestamp(frame.At(i)))
		for _, name := range columns {
			record = append(record, c.formatFloat(frame.ValueAt(i, name)))
		}
		if err := w.Write(record); err != nil {
			return obserrors.NewStorageError("write", path, err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return obserrors.NewStorageError("write", path, err)
	}
	return nil
}

// parseTimestamp decodes an index cell. With indexUnix the cell is an
// integer count of milliseconds since the Unix epoch; otherwise the known
// layouts are tried in order and zone-less values are taken as UTC.
func (c *Codec) parseTimestamp(cell string) (time.Time, error) {
	cell = strings.TrimSpace(cell)
	if c.indexUnix {
		ms, err := strconv.ParseInt(cell, 10, 64)
		if err != nil {
			return time.Time{}, fmt.Errorf("index cell %q is not epoch milliseconds: %w", cell, err)
		}
		return time.UnixMilli(ms).UTC(), nil
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, cell); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("index cell %q does not match any known timestamp layout", cell)
}

// formatTimestamp renders an index entry for disk. The frame was already
// converted to UTC by Write.
func (c *Codec) formatTimestamp(t time.Time) string {
	if c.indexUnix {
		return strconv.FormatInt(t.UnixMilli(), 10)
	}
	return t.Format(writeTimestampLayout)
}

// parseFloat decodes an observation cell, honoring the configured decimal
// separator.
func (c *Codec) parseFloat(cell string) (float64, error) {
	cell = strings.TrimSpace(cell)
	if c.decimal != "." {
		cell = strings.ReplaceAll(cell, c.decimal, ".")
	}
	return strconv.ParseFloat(cell, 64)
}

// formatFloat renders an observation cell; NaN cells are written empty.
func (c *Codec) formatFloat(v float64) string {
	if math.IsNaN(v) {
		return ""
	}
	s := strconv.FormatFloat(v, 'g', -1, 64)
	if c.decimal != "." {
		s = strings.ReplaceAll(s, ".", c.decimal)
	}
	return s
}
