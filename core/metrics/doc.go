// Package metrics defines the events recorded by dispatch and corridor code
// and the sinks that receive them. Sinks are built from configuration through
// a factory registry; several configured sinks are combined in a MultiSink.
package metrics
