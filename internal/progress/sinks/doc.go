// Package sinks contains progress.Sink implementations: structured logs for
// development and Prometheus collectors for operations.
package sinks
