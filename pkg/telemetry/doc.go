// Package telemetry provides structured logging, Prometheus metrics, and
// OpenTelemetry tracing for stackpilot runs, plus the default step reporter
// that turns core progress callbacks into log lines and metric samples.
package telemetry
