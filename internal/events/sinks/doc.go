// Package sinks implements concrete event consumers: structured logging and
// Prometheus collectors. Each sink satisfies events.Sink.
package sinks
