// Package trace implements the request transaction lifecycle and isolation
// engine: per-request scopes that keep concurrent requests' observability
// state apart, transactions with exactly-once finish semantics, a registry
// for resuming a transaction across execution phases that share no call
// stack, and a lifecycle controller that guarantees buffered telemetry is
// flushed before a response is released.
//
// The package owns the data model and lifecycle only. Export and transport
// live behind the Recorder and Flusher interfaces, implemented by the
// telemetry platform package.
package trace
