// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"fmt"
	"strings"
	"time"
)

// Validator validates configuration against schema rules.
type Validator struct{}

// NewValidator creates a new config validator.
func NewValidator() *Validator {
	return &Validator{}
}

// ValidationError aggregates every field-level failure found by one
// Validate call, so a caller sees all of them instead of just the
// first.
type ValidationError struct {
	Errors []FieldError
}

// FieldError represents a single field validation failure.
type FieldError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	var msgs []string
	for _, fe := range e.Errors {
		msgs = append(msgs, fmt.Sprintf("%s: %s", fe.Field, fe.Message))
	}
	return strings.Join(msgs, "; ")
}

// IsEmpty returns true if there are no validation errors.
func (e *ValidationError) IsEmpty() bool {
	return len(e.Errors) == 0
}

// Add adds a field error.
func (e *ValidationError) Add(field, message string) {
	e.Errors = append(e.Errors, FieldError{Field: field, Message: message})
}

// Validate checks configuration validity, returning a *ValidationError
// listing every failure, or nil if cfg is valid.
func (v *Validator) Validate(cfg *Config) error {
	errs := &ValidationError{}

	v.validateWatch(cfg, errs)
	v.validateDatabase(cfg, errs)
	v.validateTransport(cfg, errs)
	v.validateHTTP(cfg, errs)
	v.validateLogging(cfg, errs)
	v.validateBus(cfg, errs)

	if errs.IsEmpty() {
		return nil
	}
	return errs
}

func (v *Validator) validateWatch(cfg *Config, errs *ValidationError) {
	if len(cfg.Watch.Paths) == 0 {
		errs.Add("watch.paths", "at least one path is required")
	}
	if cfg.Watch.Debounce != "" {
		if _, err := time.ParseDuration(cfg.Watch.Debounce); err != nil {
			errs.Add("watch.debounce", "must be a valid duration (e.g. \"100ms\")")
		}
	}
}

func (v *Validator) validateDatabase(cfg *Config, errs *ValidationError) {
	if cfg.Database.Path == "" {
		errs.Add("database.path", "is required")
	}
}

func (v *Validator) validatePort(field string, port int, errs *ValidationError) {
	if port < 0 || port > 65535 {
		errs.Add(field, "must be between 0 and 65535")
	}
}

func (v *Validator) validateTransport(cfg *Config, errs *ValidationError) {
	v.validatePort("transport.port", cfg.Transport.Port, errs)

	hasCert := cfg.Transport.CertPath != ""
	hasKey := cfg.Transport.KeyPath != ""
	if hasCert != hasKey {
		errs.Add("transport.cert_path", "cert_path and key_path must both be set or both be empty")
	}

	if cfg.Transport.ReplayCapacity < 0 {
		errs.Add("transport.replay_capacity", "must not be negative")
	}
}

func (v *Validator) validateHTTP(cfg *Config, errs *ValidationError) {
	v.validatePort("http.port", cfg.HTTP.Port, errs)
}

func (v *Validator) validateLogging(cfg *Config, errs *ValidationError) {
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if cfg.Logging.Level != "" && !validLevels[cfg.Logging.Level] {
		errs.Add("logging.level", "must be one of: debug, info, warn, error")
	}

	validFormats := map[string]bool{"json": true, "console": true}
	if cfg.Logging.Format != "" && !validFormats[cfg.Logging.Format] {
		errs.Add("logging.format", "must be one of: json, console")
	}
}

func (v *Validator) validateBus(cfg *Config, errs *ValidationError) {
	if cfg.Bus.DedupRingCapacity < 0 {
		errs.Add("bus.dedup_ring_capacity", "must not be negative")
	}
}
