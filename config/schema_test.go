// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestValidateWithSchema(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr bool
	}{
		{
			name: "valid csv config",
			content: `backend:
  type: csv
  dir: /var/lib/obsdb
  merge: true
  format: "20060102"
  interval: 24
  timezone: Europe/Berlin
logging:
  level: info
`,
			wantErr: false,
		},
		{
			name: "valid influxdb config",
			content: `backend:
  type: influxdb
influxdb:
  url: http://localhost:8086
  token: test-token
  organization: test-org
  bucket: test-bucket
`,
			wantErr: false,
		},
		{
			name: "valid weather section",
			content: `backend:
  type: csv
  dir: /var/lib/obsdb
weather:
  type: epw
  file: /var/lib/obsdb/station.epw
  latitude: 52.52
  longitude: 13.41
`,
			wantErr: false,
		},
		{
			name:    "missing backend section",
			content: "logging:\n  level: info\n",
			wantErr: true,
		},
		{
			name: "unknown top-level key",
			content: `backend:
  type: csv
  dir: /var/lib/obsdb
caching:
  enabled: true
`,
			wantErr: true,
		},
		{
			name: "interval out of range",
			content: `backend:
  type: csv
  dir: /var/lib/obsdb
  interval: 9000
`,
			wantErr: true,
		},
		{
			name: "separator too long",
			content: `backend:
  type: csv
  dir: /var/lib/obsdb
  separator: ";;"
`,
			wantErr: true,
		},
		{
			name: "bad logging level",
			content: `backend:
  type: csv
  dir: /var/lib/obsdb
logging:
  level: chatty
`,
			wantErr: true,
		},
		{
			name: "bad weather type",
			content: `backend:
  type: csv
  dir: /var/lib/obsdb
weather:
  type: folklore
`,
			wantErr: true,
		},
		{
			name: "latitude out of range",
			content: `backend:
  type: csv
  dir: /var/lib/obsdb
weather:
  type: epw
  latitude: 123.4
`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateWithSchema(writeConfig(t, tt.content))
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateWithSchema() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateWithSchemaMissingFile(t *testing.T) {
	err := ValidateWithSchema(filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil {
		t.Error("expected error for missing file")
	}
}

func TestValidateWithSchemaBadYAML(t *testing.T) {
	err := ValidateWithSchema(writeConfig(t, "backend: [\n"))
	if err == nil {
		t.Error("expected error for malformed YAML")
	}
}

func TestGetSchemaJSON(t *testing.T) {
	schema := GetSchemaJSON()
	if !strings.Contains(schema, `"backend"`) {
		t.Error("schema should describe the backend section")
	}
	if !strings.Contains(schema, `"weather"`) {
		t.Error("schema should describe the weather section")
	}
}
