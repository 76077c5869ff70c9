// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/soothill/obsdb/config"
	"github.com/soothill/obsdb/series"
	"github.com/soothill/obsdb/storage"
)

func writeConfigFile(t *testing.T, dir string) string {
	t.Helper()
	content := `backend:
  type: csv
  dir: ` + dir + `
  format: "20060102"
  interval: 24
logging:
  level: error
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestParseTimeFlag(t *testing.T) {
	tests := []struct {
		value string
		want  string
	}{
		{"", "0001-01-01T00:00:00Z"},
		{"2024-03-01T06:00:00Z", "2024-03-01T06:00:00Z"},
		{"2024-03-01 06:00:00", "2024-03-01T06:00:00Z"},
		{"2024-03-01", "2024-03-01T00:00:00Z"},
	}
	for _, tc := range tests {
		got, err := parseTimeFlag(tc.value)
		if err != nil {
			t.Errorf("parseTimeFlag(%q) failed: %v", tc.value, err)
			continue
		}
		if got.Format(time.RFC3339) != tc.want {
			t.Errorf("parseTimeFlag(%q) = %v, want %v", tc.value, got, tc.want)
		}
	}

	if _, err := parseTimeFlag("yesterday"); err == nil {
		t.Error("expected error for unparseable value")
	}
}

func TestPrintFrame(t *testing.T) {
	frame := series.New("time")
	at := time.Date(2024, 3, 1, 6, 0, 0, 0, time.UTC)
	frame.Set(at, "power", 120.5)
	frame.Set(at.Add(time.Hour), "voltage", 230)

	var sb strings.Builder
	if err := printFrame(&sb, frame); err != nil {
		t.Fatalf("printFrame failed: %v", err)
	}

	want := "time,power,voltage\n" +
		"2024-03-01T06:00:00Z,120.5,\n" +
		"2024-03-01T07:00:00Z,,230\n"
	if sb.String() != want {
		t.Errorf("output = %q, want %q", sb.String(), want)
	}
}

func TestPerformConfigValidation(t *testing.T) {
	path := writeConfigFile(t, t.TempDir())
	if code := performConfigValidation(path); code != 0 {
		t.Errorf("valid config: exit code = %d, want 0", code)
	}

	broken := filepath.Join(t.TempDir(), "broken.yaml")
	if err := os.WriteFile(broken, []byte("backend:\n  type: 7\n  bogus: true\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if code := performConfigValidation(broken); code == 0 {
		t.Error("invalid config: exit code = 0, want non-zero")
	}
}

func TestPerformHealthCheck(t *testing.T) {
	path := writeConfigFile(t, t.TempDir())
	if code := performHealthCheck(path); code != 0 {
		t.Errorf("exit code = %d, want 0", code)
	}

	if code := performHealthCheck(filepath.Join(t.TempDir(), "missing.yaml")); code == 0 {
		t.Error("missing config: exit code = 0, want non-zero")
	}
}

func TestSyncOnce(t *testing.T) {
	srcCfg := &config.Config{Backend: config.BackendConfig{
		Type: config.BackendTypeCSV, Dir: t.TempDir(), Format: "20060102", Interval: 24,
	}}
	destCfg := &config.Config{Backend: config.BackendConfig{
		Type: config.BackendTypeCSV, Dir: t.TempDir(), Format: "20060102", Interval: 24,
	}}

	src, err := storage.Open(srcCfg)
	if err != nil {
		t.Fatalf("open source: %v", err)
	}
	dest, err := storage.Open(destCfg)
	if err != nil {
		t.Fatalf("open destination: %v", err)
	}

	at := time.Date(2024, 3, 1, 6, 0, 0, 0, time.UTC)
	seed := series.New("time")
	seed.Set(at, "power", 42)
	if err := src.Persist(context.Background(), seed, storage.PersistOptions{}); err != nil {
		t.Fatalf("seed source: %v", err)
	}

	s := &syncer{src: src, dest: dest, query: storage.Query{
		Start: at.Truncate(24 * time.Hour),
		End:   at.Truncate(24 * time.Hour).Add(23 * time.Hour),
	}}
	defer s.close()

	if err := s.syncOnce(context.Background()); err != nil {
		t.Fatalf("syncOnce failed: %v", err)
	}

	got, err := dest.Get(context.Background(), storage.Query{Start: at.Truncate(24 * time.Hour)})
	if err != nil {
		t.Fatalf("read destination: %v", err)
	}
	if v, ok := got.Value(at, "power"); !ok || v != 42 {
		t.Errorf("destination power = %v (ok=%v), want 42", v, ok)
	}
}

func TestSyncOnceEmptySpan(t *testing.T) {
	cfg := &config.Config{Backend: config.BackendConfig{
		Type: config.BackendTypeCSV, Dir: t.TempDir(), Format: "20060102", Interval: 24,
	}}
	src, err := storage.Open(cfg)
	if err != nil {
		t.Fatal(err)
	}
	destCfg := &config.Config{Backend: config.BackendConfig{
		Type: config.BackendTypeCSV, Dir: t.TempDir(), Format: "20060102", Interval: 24,
	}}
	dest, err := storage.Open(destCfg)
	if err != nil {
		t.Fatal(err)
	}

	s := &syncer{src: src, dest: dest, query: storage.Query{
		Start: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
	}}
	defer s.close()

	if err := s.syncOnce(context.Background()); err != nil {
		t.Errorf("empty span should not fail: %v", err)
	}
}
