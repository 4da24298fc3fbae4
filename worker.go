package driver

// Worker is one I/O execution unit. Each worker owns a subset of per-host
// connection pools and runs its own goroutine; the session commands it
// through the async AddPool/Shutdown signals and offers it requests through
// the non-blocking Execute.
type Worker interface {
	// Init prepares the worker. A failure aborts session setup.
	Init() error
	// Run starts the worker's goroutine. Called once, before bootstrap.
	Run()
	// AddPool asynchronously opens the worker's connection pool for host.
	// Each established connection is reported through the notifier.
	AddPool(host Host)
	// Execute offers a request. It must not block: it returns false when
	// the worker is saturated or no longer accepting work.
	Execute(r *Request) bool
	// Shutdown asynchronously tells the worker to stop accepting work and
	// drain in-flight requests.
	Shutdown()
	// ShutdownDone reports whether the worker has fully drained.
	ShutdownDone() bool
	// Join blocks until the worker's goroutine has exited. The session's
	// drain scan calls it repeatedly; it must be idempotent.
	Join()
}

// WorkerNotifier is the session-side sink for worker lifecycle events.
// Both methods are safe to call from worker goroutines.
type WorkerNotifier interface {
	// NotifyConnected reports one connection-establishment attempt for
	// host, success or not. Bootstrap counts completions, not successes.
	NotifyConnected(host Host)
	// NotifyShutdown reports that this worker finished draining.
	NotifyShutdown()
}

// WorkerFactory builds the session's workers during setup. Tests substitute
// their own factory to inject instrumented workers.
type WorkerFactory func(id int, keyspace string, notify WorkerNotifier) (Worker, error)
