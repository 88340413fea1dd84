// Package progress carries prerender progress events from the pipeline to
// pluggable sinks such as the console log or Prometheus collectors. Emitters
// never block; a Hub delivers events in order on a background goroutine.
package progress
