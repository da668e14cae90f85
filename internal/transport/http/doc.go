// Package http contains the chi HTTP handlers for the risk API: cube
// builds and queries, the metric catalogue, sensitivity analysis and
// health. Handlers hold a service and an error handler; all error
// responses go through the shared error surface.
package http
