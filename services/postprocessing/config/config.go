// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads and validates the post-processing configuration
// document and watches it for changes.
package config

import (
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration document.
type Config struct {
	// Database selects the object store to talk to.
	Database DatabaseConfig `yaml:"database" validate:"required"`

	// Influx optionally mirrors trend rows into InfluxDB.
	Influx InfluxConfig `yaml:"influx"`

	// Telemetry configures tracing and metrics export.
	Telemetry TelemetryConfig `yaml:"telemetry"`

	// Log configures structured logging.
	Log LogConfig `yaml:"log"`

	// Tasks lists the post-processing tasks to run.
	Tasks []TaskConfig `yaml:"tasks" validate:"required,min=1,dive"`
}

// DatabaseConfig selects and parameterizes the object-store backend.
type DatabaseConfig struct {
	// Kind is "badger" for the embedded store or "http" for a remote one.
	Kind string `yaml:"kind" validate:"required,oneof=badger http"`

	// Path is the embedded store directory (badger only).
	Path string `yaml:"path"`

	// URL is the remote store endpoint (http only).
	URL string `yaml:"url" validate:"omitempty,url"`

	// Timeout bounds each store operation. Default: 10s.
	Timeout time.Duration `yaml:"timeout"`

	// RequestsPerSecond throttles the http client. 0 disables.
	RequestsPerSecond float64 `yaml:"requestsPerSecond" validate:"gte=0"`
}

// InfluxConfig mirrors appended trend rows to an InfluxDB bucket.
type InfluxConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url" validate:"omitempty,url"`
	Token   string `yaml:"token"`
	Org     string `yaml:"org"`
	Bucket  string `yaml:"bucket"`
}

// TelemetryConfig configures OpenTelemetry export.
type TelemetryConfig struct {
	// TraceExporter is "otlp", "stdout" or "" (disabled).
	TraceExporter string `yaml:"traceExporter" validate:"omitempty,oneof=otlp stdout"`

	// MetricExporter is "prometheus", "stdout" or "" (disabled).
	MetricExporter string `yaml:"metricExporter" validate:"omitempty,oneof=prometheus stdout"`

	// OTLPEndpoint is the collector address for the otlp exporter.
	OTLPEndpoint string `yaml:"otlpEndpoint"`

	// MetricsAddr serves the Prometheus scrape endpoint when set,
	// e.g. ":9464".
	MetricsAddr string `yaml:"metricsAddr"`
}

// LogConfig configures the slog backend.
type LogConfig struct {
	// Level is debug, info, warn or error. Default: info.
	Level string `yaml:"level" validate:"omitempty,oneof=debug info warn error"`

	// Dir stores the JSON log file; empty logs to stderr only.
	Dir string `yaml:"dir"`
}

// TaskConfig describes one post-processing task instance: the class to
// instantiate, the triggers that drive it, and class-specific options.
type TaskConfig struct {
	// Name identifies the task instance and its output path segment.
	Name string `yaml:"name" validate:"required"`

	// ClassName selects the task implementation.
	ClassName string `yaml:"className" validate:"required"`

	// ModuleName is the module holding the class. Default: "common".
	ModuleName string `yaml:"moduleName"`

	// Detector is the detector code the task publishes under.
	Detector string `yaml:"detector" validate:"required"`

	// Trigger specifications, e.g. "once", "always", "periodic:60",
	// "newobject:qc/TPC/MO/Tracks/hPt", "sor", "eor".
	InitTriggers   []string `yaml:"initTriggers"`
	UpdateTriggers []string `yaml:"updateTriggers"`
	StopTriggers   []string `yaml:"stopTriggers"`

	// Options carries class-specific configuration, decoded by the task.
	Options yaml.Node `yaml:"options"`
}

// Module returns the module name, defaulted.
func (t TaskConfig) Module() string {
	if t.ModuleName == "" {
		return "common"
	}
	return t.ModuleName
}

// DecodeOptions decodes the class-specific options into out. A missing
// options block leaves out untouched.
func (t TaskConfig) DecodeOptions(out any) error {
	if t.Options.Kind == 0 {
		return nil
	}
	return t.Options.Decode(out)
}
