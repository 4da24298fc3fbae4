// Package driver implements the PairDB client driver's session core.
//
// A Session owns the lifecycle of a logical connection to a PairDB cluster:
// it resolves the configured contact points, discovers cluster members,
// spreads per-host gRPC connection pools across a set of background I/O
// workers, and routes application requests to those workers with round-robin
// fairness and fail-fast backpressure.
//
// All session-owned mutable state lives on a single dedicated goroutine.
// Caller goroutines interact with the session through two compare-and-swap
// entry points (Connect, Shutdown) and two bounded queues; there are no
// locks on the hot path.
package driver
