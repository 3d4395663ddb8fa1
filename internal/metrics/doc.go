// Package metrics exposes bake metrics through a Recorder. NoopRecorder is
// the default; PrometheusRecorder registers collectors on a registry served
// by HTTPHandler.
package metrics
