// Package sinks implements progress consumers: a console log of the run and
// Prometheus collectors. Each sink satisfies progress.Sink.
package sinks
