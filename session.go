package driver

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net/netip"
	"os"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/devrev/pairdb/driver/config"
	"github.com/devrev/pairdb/driver/internal/discovery"
	"github.com/devrev/pairdb/driver/internal/metrics"
)

// SessionState is the session lifecycle state. Transitions follow
// New -> Connecting -> Ready -> Disconnecting -> Disconnected, with no
// other edges.
type SessionState int32

const (
	StateNew SessionState = iota
	StateConnecting
	StateReady
	StateDisconnecting
	StateDisconnected
)

func (s SessionState) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateConnecting:
		return "connecting"
	case StateReady:
		return "ready"
	case StateDisconnecting:
		return "disconnecting"
	case StateDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// eventType tags an event-queue payload.
type eventType int

const (
	eventConnected eventType = iota
	eventShutdownComplete
	eventResolved
	eventHostUp
)

// event is a lifecycle notification carried on the session's event queue.
// Produced by worker goroutines, resolver callbacks, and gossip callbacks;
// consumed only by the session goroutine.
type event struct {
	typ  eventType
	host Host
	err  error
}

// Session is the top-level orchestrator for one logical cluster connection.
//
// All fields below the queue pair are owned by the session goroutine and
// are never touched from outside it. Caller goroutines interact with the
// session only through the atomic state register, the future pointers, and
// non-blocking enqueues on the two bounded queues.
type Session struct {
	state atomic.Int32

	cfg        *config.Config
	logger     *zap.Logger
	metrics    *metrics.Driver
	tlsConfig  *tls.Config
	resolver   Resolver
	newWorker  WorkerFactory
	registerer prometheus.Registerer

	commandQueue chan *Request
	eventQueue   chan event
	shutdownCh   chan struct{}
	loopDone     chan struct{}

	connectFuture  atomic.Pointer[Future]
	shutdownFuture atomic.Pointer[Future]

	// session-goroutine-owned state
	workers            []Worker
	keyspace           string
	policy             LoadBalancingPolicy
	hosts              *hostSet
	gossip             *discovery.Gossip
	pendingResolves    int
	pendingConnections int
	poolsStarted       bool
	currentWorker      int
	connectStart       time.Time
	shutdownStart      time.Time
	stopped            bool
}

// Option customizes a session at construction time.
type Option func(*Session)

// WithLogger sets the session logger. Defaults to a no-op logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Session) { s.logger = l }
}

// WithResolver replaces the seed hostname resolver.
func WithResolver(r Resolver) Option {
	return func(s *Session) { s.resolver = r }
}

// WithWorkerFactory replaces the I/O worker implementation.
func WithWorkerFactory(f WorkerFactory) Option {
	return func(s *Session) { s.newWorker = f }
}

// WithMetrics registers driver metrics on reg. Without this option no
// metrics are collected.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(s *Session) { s.registerer = reg }
}

// WithTLSConfig overrides the TLS configuration built from file paths in
// the YAML config.
func WithTLSConfig(c *tls.Config) Option {
	return func(s *Session) { s.tlsConfig = c }
}

// NewSession creates a session for the given configuration. The session
// starts in the New state; no I/O happens until Connect.
func NewSession(cfg *config.Config, opts ...Option) (*Session, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &Session{
		cfg:          cfg,
		logger:       zap.NewNop(),
		policy:       NewRoundRobinPolicy(),
		hosts:        newHostSet(),
		commandQueue: make(chan *Request, cfg.IO.QueueSizeCommand),
		eventQueue:   make(chan event, cfg.IO.QueueSizeEvent),
		shutdownCh:   make(chan struct{}, 1),
		loopDone:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.tlsConfig == nil && cfg.TLS.Enabled {
		tlsCfg, err := buildTLSConfig(&cfg.TLS)
		if err != nil {
			return nil, err
		}
		s.tlsConfig = tlsCfg
	}
	if s.resolver == nil {
		s.resolver = &netResolver{resolver: defaultNetResolver()}
	}
	if s.newWorker == nil {
		s.newWorker = s.defaultWorkerFactory()
	}
	s.metrics = metrics.New(s.registerer)

	return s, nil
}

// defaultWorkerFactory builds gRPC workers speaking the cluster's wire
// transport.
func (s *Session) defaultWorkerFactory() WorkerFactory {
	var creds credentials.TransportCredentials
	if s.tlsConfig != nil {
		creds = credentials.NewTLS(s.tlsConfig)
	} else {
		creds = insecure.NewCredentials()
	}
	return func(id int, keyspace string, notify WorkerNotifier) (Worker, error) {
		wcfg := grpcWorkerConfig{
			keyspace:       keyspace,
			creds:          creds,
			requestTimeout: s.cfg.Cluster.RequestTimeout,
			coreConns:      s.cfg.IO.CoreConnectionsPerHost,
			queueSize:      s.cfg.IO.QueueSizeWorker,
		}
		return newGRPCWorker(id, wcfg, notify, s.logger.Named("io-worker")), nil
	}
}

// State returns the current lifecycle state.
func (s *Session) State() SessionState {
	return SessionState(s.state.Load())
}

// Connect transitions the session from New to Connecting, starts the
// session goroutine, and returns a future resolved when the session is
// ready (or when bootstrap fails). A second Connect call fails fast with a
// state-conflict error and does not disturb the first.
func (s *Session) Connect(keyspace string) *Future {
	f := newFuture()
	if !s.state.CompareAndSwap(int32(StateNew), int32(StateConnecting)) {
		f.fail(NewDriverError(ErrCodeSessionState, "connect has already been called"))
		return f
	}

	s.keyspace = keyspace
	s.connectStart = time.Now()
	s.connectFuture.Store(f)

	if err := s.initWorkers(); err != nil {
		// Setup failed before the session goroutine ever started; the
		// session is unusable and terminal.
		s.connectFuture.Store(nil)
		s.state.Store(int32(StateDisconnected))
		close(s.loopDone)
		f.fail(WrapDriverError(ErrCodeWorkerInit, "session setup failed", err))
		// A shutdown accepted while init was still running has no workers
		// to drain and no loop to drain them; settle its outcome here.
		if sf := s.shutdownFuture.Swap(nil); sf != nil {
			sf.resolve(nil)
		}
		return f
	}

	go s.run()
	return f
}

// initWorkers constructs and initializes every I/O worker. All failures
// are collected so the caller sees the full picture in one error.
func (s *Session) initWorkers() error {
	var initErr error
	for i := 0; i < s.cfg.IO.Workers; i++ {
		w, err := s.newWorker(i, s.keyspace, s)
		if err != nil {
			initErr = multierr.Append(initErr, err)
			continue
		}
		if err := w.Init(); err != nil {
			initErr = multierr.Append(initErr, err)
			continue
		}
		s.workers = append(s.workers, w)
	}
	return initErr
}

// Shutdown transitions the session to Disconnecting, from either Ready or
// Connecting, and returns a future resolved once every worker has drained.
// In any other state it fails fast with a state-conflict error.
func (s *Session) Shutdown() *Future {
	f := newFuture()
	// The future must be published before the state transition so a
	// connect that fails concurrently always observes an accepted shutdown.
	if !s.shutdownFuture.CompareAndSwap(nil, f) {
		f.fail(NewDriverError(ErrCodeSessionState, "shutdown already in progress"))
		return f
	}
	if s.state.CompareAndSwap(int32(StateReady), int32(StateDisconnecting)) ||
		s.state.CompareAndSwap(int32(StateConnecting), int32(StateDisconnecting)) {
		// The state transition succeeds at most once per session, so this
		// one-slot send can never block.
		s.shutdownCh <- struct{}{}
	} else {
		s.shutdownFuture.Store(nil)
		f.fail(NewDriverError(ErrCodeSessionState, "session not connected"))
	}
	return f
}

// Join blocks the calling goroutine until the session goroutine exits.
// A session that never connected returns immediately.
func (s *Session) Join() {
	if s.State() == StateNew {
		return
	}
	<-s.loopDone
}

// Execute enqueues a statement for dispatch and returns its outcome.
// When the command queue is at capacity the outcome fails immediately with
// a capacity-exceeded error; the caller is never blocked.
func (s *Session) Execute(st *Statement) *Future {
	r := newRequest(st.Method, st.Payload)
	s.execute(r)
	return r.future
}

// Prepare enqueues a prepare request wrapping the given statement string.
func (s *Session) Prepare(statement string) *Future {
	r := newRequest(MethodPrepare, []byte(statement))
	s.execute(r)
	return r.future
}

func (s *Session) execute(r *Request) {
	switch s.State() {
	case StateNew, StateDisconnected:
		s.metrics.ObserveReject("state")
		r.future.fail(NewDriverError(ErrCodeSessionState, "session not connected"))
		return
	}

	select {
	case s.commandQueue <- r:
		s.metrics.IncEnqueued()
	default:
		s.metrics.ObserveReject("queue_full")
		r.future.fail(NewDriverError(ErrCodeRequestQueueFull, "request queue full"))
	}
}

// SetLoadBalancingPolicy replaces the active policy. Safe only before
// Connect; it is not synchronized against in-flight dispatch.
func (s *Session) SetLoadBalancingPolicy(p LoadBalancingPolicy) {
	s.policy = p
}

// NotifyConnected implements WorkerNotifier.
func (s *Session) NotifyConnected(host Host) {
	s.enqueueEvent(event{typ: eventConnected, host: host})
}

// NotifyShutdown implements WorkerNotifier.
func (s *Session) NotifyShutdown() {
	s.enqueueEvent(event{typ: eventShutdownComplete})
}

// enqueueEvent is a best-effort multi-producer enqueue. The event queue
// must be sized so the bounded set of producers cannot overrun it; when it
// is not, losing a bootstrap or drain event would leave its counter short
// forever, so the pending outcome is failed instead of left hanging.
// Discovery joins are supplementary and are only logged on a drop.
func (s *Session) enqueueEvent(ev event) {
	select {
	case s.eventQueue <- ev:
		return
	default:
	}
	s.logger.Error("Event queue overrun, dropping event",
		zap.Int("event_type", int(ev.typ)))
	if ev.typ == eventHostUp {
		return
	}
	if f := s.connectFuture.Swap(nil); f != nil {
		f.fail(NewDriverError(ErrCodeEventQueueFull, "event queue overrun during connect"))
	}
	if f := s.shutdownFuture.Swap(nil); f != nil {
		f.fail(NewDriverError(ErrCodeEventQueueFull, "event queue overrun during shutdown"))
	}
}

// run is the session goroutine: a single-threaded cooperative event loop.
// Each wake drains every buffered item from the woken queue before
// yielding, so the bootstrap and drain counters observe complete batches.
func (s *Session) run() {
	defer close(s.loopDone)
	defer s.failPendingCommands()

	for _, w := range s.workers {
		w.Run()
	}
	s.bootstrap()

	for !s.stopped {
		select {
		case r := <-s.commandQueue:
			s.onExecute(r)
			s.drainCommands()
		case <-s.shutdownCh:
			s.beginShutdown()
		case ev := <-s.eventQueue:
			s.onEvent(ev)
			s.drainEvents()
		}
	}
}

func (s *Session) drainCommands() {
	for {
		select {
		case r := <-s.commandQueue:
			s.onExecute(r)
		default:
			return
		}
	}
}

func (s *Session) drainEvents() {
	for !s.stopped {
		select {
		case ev := <-s.eventQueue:
			s.onEvent(ev)
		default:
			return
		}
	}
}

// failPendingCommands fails any requests still buffered when the loop
// exits; no outcome may be left pending.
func (s *Session) failPendingCommands() {
	for {
		select {
		case r := <-s.commandQueue:
			r.future.fail(NewDriverError(ErrCodeShuttingDown, "session is shutting down"))
		default:
			return
		}
	}
}

// bootstrap runs once, at loop start: literal seeds enter the registry
// directly, hostnames go through the resolver, and the optional gossip
// observer is started. Pool initialization follows once the pending
// resolution count reaches zero.
func (s *Session) bootstrap() {
	port := s.cfg.Cluster.Port
	for _, seed := range s.cfg.Cluster.ContactPoints {
		if h, ok := ParseHost(seed, port); ok {
			s.addHost(h)
			continue
		}
		s.pendingResolves++
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.Cluster.ConnectTimeout)
		s.resolver.Resolve(ctx, seed, port, func(h Host, err error) {
			defer cancel()
			s.enqueueEvent(event{typ: eventResolved, host: h, err: err})
		})
	}

	if s.cfg.Discovery.Enabled {
		s.startDiscovery()
	}

	s.logger.Info("Bootstrap started",
		zap.Int("literal_hosts", s.hosts.Len()),
		zap.Int("pending_resolves", s.pendingResolves))

	if s.pendingResolves == 0 {
		s.initPools()
	}
}

func (s *Session) startDiscovery() {
	dcfg := &discovery.Config{
		NodeName:       s.cfg.Discovery.NodeName,
		BindPort:       s.cfg.Discovery.BindPort,
		GossipInterval: s.cfg.Discovery.GossipInterval,
		ProbeTimeout:   s.cfg.Discovery.ProbeTimeout,
		ProbeInterval:  s.cfg.Discovery.ProbeInterval,
	}
	servicePort := s.cfg.Cluster.Port
	g, err := discovery.New(dcfg, s.cfg.Discovery.SeedNodes, func(addr netip.Addr, _ int) {
		// Members gossip on their own port; data-plane connections use the
		// configured service port.
		s.enqueueEvent(event{typ: eventHostUp, host: NewHost(addr, servicePort)})
	}, s.logger.Named("discovery"))
	if err != nil {
		s.logger.Warn("Gossip discovery unavailable", zap.Error(err))
		return
	}
	s.gossip = g
}

func (s *Session) addHost(h Host) {
	if !s.hosts.Add(h) {
		return
	}
	s.metrics.SetHostsDiscovered(s.hosts.Len())
	s.logger.Info("Host discovered", zap.String("host", h.String()))
}

// initPools runs exactly once, when host discovery settles. The global
// pending-connection count is fixed here, synchronously, before any
// pool-open command is issued, so no completion can race it.
func (s *Session) initPools() {
	if s.poolsStarted || s.State() != StateConnecting {
		return
	}
	s.poolsStarted = true
	s.pendingConnections = s.hosts.Len() * len(s.workers) * s.cfg.IO.CoreConnectionsPerHost

	s.logger.Info("Opening connection pools",
		zap.Int("hosts", s.hosts.Len()),
		zap.Int("workers", len(s.workers)),
		zap.Int("pending_connections", s.pendingConnections))

	if s.pendingConnections == 0 {
		// Degenerate bootstrap: zero hosts. The session still becomes
		// ready; dispatch then fails per-request.
		s.becomeReady()
		return
	}
	for _, h := range s.hosts.Snapshot() {
		for _, w := range s.workers {
			w.AddPool(h)
		}
	}
}

func (s *Session) becomeReady() {
	s.policy.Init(s.hosts.Snapshot())
	s.state.Store(int32(StateReady))
	s.metrics.ObserveConnectDuration(time.Since(s.connectStart))
	if f := s.connectFuture.Swap(nil); f != nil {
		f.resolve(nil)
	}
	s.logger.Info("Session ready", zap.Int("hosts", s.hosts.Len()))
}

func (s *Session) onEvent(ev event) {
	switch ev.typ {
	case eventResolved:
		if ev.err != nil {
			s.logger.Warn("Seed resolution failed", zap.Error(ev.err))
		} else {
			s.addHost(ev.host)
		}
		s.pendingResolves--
		if s.pendingResolves == 0 {
			s.initPools()
		}

	case eventHostUp:
		s.addHost(ev.host)
		if s.poolsStarted {
			// Pool rebalancing for late joiners is out of scope; the host
			// is recorded for observability only.
			s.logger.Debug("Host joined after pool init, no pools opened",
				zap.String("host", ev.host.String()))
		}

	case eventConnected:
		if s.pendingConnections == 0 {
			return // duplicate notification; already settled
		}
		s.pendingConnections--
		if s.pendingConnections == 0 && s.State() == StateConnecting {
			s.becomeReady()
		}

	case eventShutdownComplete:
		s.checkDrained()
	}
}

// beginShutdown commands every worker to drain. A connect still pending
// (shutdown requested mid-bootstrap) is failed here so no outcome hangs.
func (s *Session) beginShutdown() {
	s.shutdownStart = time.Now()
	if f := s.connectFuture.Swap(nil); f != nil {
		f.fail(NewDriverError(ErrCodeShuttingDown, "session is shutting down"))
	}
	if s.gossip != nil {
		if err := s.gossip.Shutdown(); err != nil {
			s.logger.Warn("Gossip shutdown failed", zap.Error(err))
		}
		s.gossip = nil
	}
	for _, w := range s.workers {
		w.Shutdown()
	}
	s.logger.Info("Session disconnecting", zap.Int("workers", len(s.workers)))
}

// checkDrained re-scans the full worker collection on every shutdown
// notification rather than keeping an incremental count; completion is
// read off each worker's own flag.
func (s *Session) checkDrained() {
	done := 0
	for _, w := range s.workers {
		if w.ShutdownDone() {
			done++
			w.Join()
		}
	}
	if done != len(s.workers) {
		return
	}
	s.state.Store(int32(StateDisconnected))
	s.metrics.ObserveShutdownDuration(time.Since(s.shutdownStart))
	if f := s.shutdownFuture.Swap(nil); f != nil {
		f.resolve(nil)
	}
	s.stopped = true
	s.logger.Info("Session disconnected")
}

// onExecute routes one dequeued request: the policy orders the candidate
// hosts, then workers are offered the request starting at the round-robin
// cursor, wrapping at most once. The first worker to accept wins and the
// cursor moves past it; if all decline the request fails and the cursor
// stays put.
func (s *Session) onExecute(r *Request) {
	if s.State() == StateDisconnecting {
		s.metrics.ObserveReject("shutting_down")
		r.future.fail(NewDriverError(ErrCodeShuttingDown, "session is shutting down"))
		return
	}

	s.policy.NewQueryPlan(&r.hosts)

	n := len(s.workers)
	start := s.currentWorker
	for i := 0; i < n; i++ {
		idx := (start + i) % n
		if s.workers[idx].Execute(r) {
			s.currentWorker = (idx + 1) % n
			s.metrics.IncDispatched()
			return
		}
	}

	s.metrics.IncWorkerScanExhausted()
	s.metrics.ObserveReject("workers_busy")
	r.future.fail(NewDriverError(ErrCodeWorkersBusy, "all workers are busy"))
}

func buildTLSConfig(cfg *config.TLSConfig) (*tls.Config, error) {
	tc := &tls.Config{
		ServerName:         cfg.ServerName,
		InsecureSkipVerify: cfg.InsecureSkipVerify,
		MinVersion:         tls.VersionTLS12,
	}
	if cfg.CertFile != "" {
		cert, err := tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
		if err != nil {
			return nil, err
		}
		tc.Certificates = []tls.Certificate{cert}
	}
	if cfg.CAFile != "" {
		pem, err := os.ReadFile(cfg.CAFile)
		if err != nil {
			return nil, err
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("no certificates found in %s", cfg.CAFile)
		}
		tc.RootCAs = pool
	}
	return tc, nil
}
