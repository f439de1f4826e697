// Package app wires the calibration engine together: configuration,
// structured logging, OpenTelemetry providers, the in-memory stores, the
// oracle client, the services and the chi HTTP router.
//
// NewApplication builds the full dependency graph; Run starts the HTTP
// server alongside the background calibration, correlation and activity
// resolution loops and blocks until SIGINT or SIGTERM.
package app
