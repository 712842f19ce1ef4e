// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTuningFile(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "noaide.hjson")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoader_Load_MissingFileReturnsZeroConfig(t *testing.T) {
	l := NewLoader()
	cfg, err := l.Load(filepath.Join(t.TempDir(), "does-not-exist.hjson"))
	require.NoError(t, err)
	assert.Equal(t, &Config{}, cfg)
}

func TestLoader_Load_ParsesHJSON(t *testing.T) {
	path := writeTuningFile(t, `{
		watch: { debounce: 250ms }
		transport: { replay_capacity: 2000 }
		logging: { level: debug }
	}`)

	l := NewLoader()
	cfg, err := l.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "250ms", cfg.Watch.Debounce)
	assert.Equal(t, 2000, cfg.Transport.ReplayCapacity)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoader_LoadWithDefaults_FillsUnsetFields(t *testing.T) {
	path := writeTuningFile(t, `{ logging: { level: debug } }`)

	l := NewLoader()
	cfg, err := l.LoadWithDefaults(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Logging.Level) // preserved from file
	assert.Equal(t, "json", cfg.Logging.Format)  // default
	assert.Equal(t, 4433, cfg.Transport.Port)
	assert.Equal(t, 1000, cfg.Transport.ReplayCapacity)
	assert.Equal(t, 8080, cfg.HTTP.Port)
	assert.Equal(t, "./noaide.db", cfg.Database.Path)
	assert.Equal(t, "100ms", cfg.Watch.Debounce)
	assert.NotEmpty(t, cfg.Watch.Paths)
	assert.Equal(t, 1000, cfg.Bus.DedupRingCapacity)
}

func TestApplyEnv_OverridesOnDiskValues(t *testing.T) {
	cfg := &Config{Transport: TransportConfig{Port: 1}, HTTP: HTTPConfig{Port: 2}}

	t.Setenv(EnvWatchPaths, "/a:/b::/c")
	t.Setenv(EnvDBPath, "/tmp/custom.db")
	t.Setenv(EnvPort, "9000")
	t.Setenv(EnvHTTPPort, "9001")
	t.Setenv(EnvEnableEBPF, "true")
	t.Setenv(EnvEnableSHM, "0")

	ApplyEnv(cfg)

	assert.Equal(t, []string{"/a", "/b", "/c"}, cfg.Watch.Paths)
	assert.Equal(t, "/tmp/custom.db", cfg.Database.Path)
	assert.Equal(t, 9000, cfg.Transport.Port)
	assert.Equal(t, 9001, cfg.HTTP.Port)
	assert.True(t, cfg.Features.EnableEBPF)
	assert.False(t, cfg.Features.EnableSHM)
}

func TestApplyEnv_LeavesUnsetVarsAlone(t *testing.T) {
	cfg := &Config{Database: DatabaseConfig{Path: "/original.db"}}
	ApplyEnv(cfg)
	assert.Equal(t, "/original.db", cfg.Database.Path)
}

func TestValidator_ValidConfigPasses(t *testing.T) {
	l := NewLoader()
	cfg, err := l.LoadWithDefaults(filepath.Join(t.TempDir(), "missing.hjson"))
	require.NoError(t, err)

	assert.NoError(t, NewValidator().Validate(cfg))
}

func TestValidator_CollectsMultipleErrors(t *testing.T) {
	cfg := &Config{
		Transport: TransportConfig{Port: 99999, CertPath: "/only/cert.pem"},
		HTTP:      HTTPConfig{Port: -1},
		Logging:   LoggingConfig{Level: "verbose"},
		Bus:       BusConfig{DedupRingCapacity: -5},
	}

	err := NewValidator().Validate(cfg)
	require.Error(t, err)

	ve, ok := err.(*ValidationError)
	require.True(t, ok)
	assert.False(t, ve.IsEmpty())

	fields := make(map[string]bool)
	for _, fe := range ve.Errors {
		fields[fe.Field] = true
	}
	assert.True(t, fields["watch.paths"])
	assert.True(t, fields["database.path"])
	assert.True(t, fields["transport.port"])
	assert.True(t, fields["transport.cert_path"])
	assert.True(t, fields["http.port"])
	assert.True(t, fields["logging.level"])
	assert.True(t, fields["bus.dedup_ring_capacity"])
}

func TestValidator_InvalidDebounceDuration(t *testing.T) {
	cfg := &Config{
		Watch:    WatchConfig{Paths: []string{"/x"}, Debounce: "not-a-duration"},
		Database: DatabaseConfig{Path: "/x.db"},
	}
	err := NewValidator().Validate(cfg)
	require.Error(t, err)
	ve := err.(*ValidationError)
	found := false
	for _, fe := range ve.Errors {
		if fe.Field == "watch.debounce" {
			found = true
		}
	}
	assert.True(t, found)
}

func TestFindConfig_PrefersHJSON(t *testing.T) {
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	defer os.Chdir(wd)

	require.NoError(t, os.Chdir(dir))
	require.NoError(t, os.WriteFile("noaide.hjson", []byte("{}"), 0o644))

	path, err := NewLoader().FindConfig()
	require.NoError(t, err)
	assert.Contains(t, path, "noaide.hjson")
}

func TestFindConfig_NotFound(t *testing.T) {
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	defer os.Chdir(wd)

	require.NoError(t, os.Chdir(dir))
	_, err = NewLoader().FindConfig()
	assert.Error(t, err)
}
