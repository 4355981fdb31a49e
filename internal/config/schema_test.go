// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Nestling Contributors

package config

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/nestling/nestling/pkg/errutil"
)

func TestGenerateSchema(t *testing.T) {
	data, err := GenerateSchema()
	require.NoError(t, err)

	var schema map[string]any
	require.NoError(t, json.Unmarshal(data, &schema))
	assert.Equal(t, SchemaID, schema["$id"])
	assert.Equal(t, false, schema["additionalProperties"])
	assert.NotContains(t, schema, "required", "every key is optional")

	props := schema["properties"].(map[string]any)
	for _, key := range []string{"server", "metrics", "database", "auth", "log"} {
		assert.Contains(t, props, key)
	}

	auth := props["auth"].(map[string]any)["properties"].(map[string]any)
	ttl := auth["session_ttl"].(map[string]any)
	assert.Equal(t, "string", ttl["type"], "durations are strings")

	db := props["database"].(map[string]any)["properties"].(map[string]any)
	assert.ElementsMatch(t, []any{"postgres", "memory"}, db["driver"].(map[string]any)["enum"])
}

func TestValidateYAML(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{name: "empty document", yaml: ""},
		{name: "comment only", yaml: "# nothing\n"},
		{name: "full example", yaml: `
server:
  addr: ":8080"
  read_timeout: 5s
  write_timeout: 1m30s
  shutdown_timeout: 10s
metrics:
  addr: ""
database:
  driver: postgres
  url: postgres://localhost/nestling
  max_conns: 20
  connect_retries: 3
  auto_migrate: true
auth:
  session_ttl: 168h
  sweep_interval: 30m
log:
  level: warn
  format: json
`},
		{name: "zero duration", yaml: "auth:\n  sweep_interval: \"0\"\n"},
		{name: "unknown top-level key", yaml: "plugins: {}\n", wantErr: "CONFIG_SCHEMA_VIOLATION"},
		{name: "bad duration", yaml: "server:\n  read_timeout: soon\n", wantErr: "CONFIG_SCHEMA_VIOLATION"},
		{name: "negative conns", yaml: "database:\n  max_conns: -4\n", wantErr: "CONFIG_SCHEMA_VIOLATION"},
		{name: "bad log format", yaml: "log:\n  format: xml\n", wantErr: "CONFIG_SCHEMA_VIOLATION"},
		{name: "not yaml", yaml: "{{{", wantErr: "CONFIG_INVALID_YAML"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateYAML([]byte(tt.yaml))
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			errutil.AssertErrorCode(t, err, tt.wantErr)
		})
	}
}

func TestDefaultRoundTripsThroughSchema(t *testing.T) {
	c := Default()
	data, err := yaml.Marshal(c)
	require.NoError(t, err)

	require.NoError(t, ValidateYAML(data), "config show output must be loadable:\n%s", data)
}
