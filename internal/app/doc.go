// Package app wires the server together: configuration, logging,
// OpenTelemetry, the risk service, the websocket hub and the HTTP router,
// plus lifecycle management with graceful shutdown.
package app
