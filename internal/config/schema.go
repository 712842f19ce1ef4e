// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package config handles HJSON configuration loading, environment
// overrides, and validation for noaide's tuning knobs (spec §6).
package config

// Config is noaide's on-disk tuning configuration. Per spec §6 the
// primary operational knobs (watch roots, db path, ports, feature
// flags) are environment-variable driven — see env.go — and override
// whatever this struct holds. This struct exists for the knobs that
// don't belong in an env var: buffer sizes, timeouts, capacities.
type Config struct {
	Version string `json:"version,omitempty"`

	Watch WatchConfig `json:"watch,omitempty"`

	Database DatabaseConfig `json:"database,omitempty"`

	Transport TransportConfig `json:"transport,omitempty"`

	HTTP HTTPConfig `json:"http,omitempty"`

	Features FeatureFlags `json:"features,omitempty"`

	Logging LoggingConfig `json:"logging,omitempty"`

	Bus BusConfig `json:"bus,omitempty"`
}

// WatchConfig controls the file watcher's root set.
type WatchConfig struct {
	// Paths is overridden wholesale by NOAIDE_WATCH_PATHS when set.
	Paths []string `json:"paths,omitempty"`
	// Debounce is a time.ParseDuration string, e.g. "100ms". Parsed and
	// validated, not read by any component: the watcher does not
	// debounce its events.
	Debounce string `json:"debounce,omitempty"`
}

// DatabaseConfig points at the side database (spec §1 ambient).
type DatabaseConfig struct {
	// Path is overridden by NOAIDE_DB_PATH when set.
	Path string `json:"path,omitempty"`
}

// TransportConfig tunes the QUIC/WebTransport server (spec §4.5).
type TransportConfig struct {
	// Port is overridden by NOAIDE_PORT when set.
	Port int `json:"port,omitempty"`
	// CertPath/KeyPath select CA-signed operation; both empty means
	// self-signed (see internal/transport.CertConfig).
	CertPath string `json:"cert_path,omitempty"`
	KeyPath  string `json:"key_path,omitempty"`
	// ReplayCapacity names the number of frames retained for reconnect
	// delta-sync (spec §4.5 default: 1000). Parsed and validated, not
	// read by any component: transport.NewServer always builds a
	// 1000-frame replay ring.
	ReplayCapacity int `json:"replay_capacity,omitempty"`
}

// HTTPConfig tunes the cert-hash status endpoint (spec §6).
type HTTPConfig struct {
	// Port is overridden by NOAIDE_HTTP_PORT when set.
	Port int `json:"port,omitempty"`
}

// FeatureFlags gate optional subsystems.
type FeatureFlags struct {
	// EnableEBPF is overridden by ENABLE_EBPF when set. Parsed and
	// validated, not read by any component: watcher.New always tries
	// the tracepoint backend first, whatever this flag holds.
	EnableEBPF bool `json:"enable_ebpf,omitempty"`
	// EnableSHM is overridden by ENABLE_SHM when set. It names the
	// zero-copy shared-memory transport the bus this was ported from
	// gets from Zenoh's peer-mode sessions; this bus is single-process
	// (goroutines and channels, not IPC), so there's no process boundary
	// for that transport to optimize — see DESIGN.md's dropped-dependency
	// entry for the reasoning. Parsed and validated, not read by any
	// component.
	EnableSHM bool `json:"enable_shm,omitempty"`
}

// LoggingConfig mirrors the teacher's logging section shape.
type LoggingConfig struct {
	Level  string `json:"level,omitempty"`
	Format string `json:"format,omitempty"`
}

// BusConfig names internal/bus's dedup ring capacity (spec §4.4).
// Parsed and validated, not read by any component: bus.NewMemoryBus
// always builds a 1000-key dedup ring.
type BusConfig struct {
	DedupRingCapacity int `json:"dedup_ring_capacity,omitempty"`
}
