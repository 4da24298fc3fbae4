package driver

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/metadata"
)

const keyspaceHeader = "x-pairdb-keyspace"

// grpcWorker is the default I/O worker: it owns per-host pools of gRPC
// client connections and serializes request invocation on its own
// goroutine. Pool state is touched only by that goroutine; the session
// reaches it through the bounded command and request channels.
type grpcWorker struct {
	id             int
	keyspace       string
	notify         WorkerNotifier
	logger         *zap.Logger
	creds          credentials.TransportCredentials
	requestTimeout time.Duration
	coreConns      int
	queueSize      int

	requests chan *Request
	addPools chan Host
	stopCh   chan struct{}
	exited   chan struct{}

	pools  map[Host][]*grpc.ClientConn
	poolRR map[Host]int

	stopping atomic.Bool
	done     atomic.Bool
	stopOnce sync.Once
}

type grpcWorkerConfig struct {
	keyspace       string
	creds          credentials.TransportCredentials
	requestTimeout time.Duration
	coreConns      int
	queueSize      int
}

func newGRPCWorker(id int, cfg grpcWorkerConfig, notify WorkerNotifier, logger *zap.Logger) *grpcWorker {
	return &grpcWorker{
		id:             id,
		keyspace:       cfg.keyspace,
		notify:         notify,
		logger:         logger,
		creds:          cfg.creds,
		requestTimeout: cfg.requestTimeout,
		coreConns:      cfg.coreConns,
		queueSize:      cfg.queueSize,
		stopCh:         make(chan struct{}),
	}
}

// Init implements Worker.
func (w *grpcWorker) Init() error {
	w.requests = make(chan *Request, w.queueSize)
	w.addPools = make(chan Host, w.queueSize)
	w.exited = make(chan struct{})
	w.pools = make(map[Host][]*grpc.ClientConn)
	w.poolRR = make(map[Host]int)
	return nil
}

// Run implements Worker.
func (w *grpcWorker) Run() {
	go w.loop()
}

// AddPool implements Worker.
func (w *grpcWorker) AddPool(host Host) {
	select {
	case w.addPools <- host:
	case <-w.stopCh:
	}
}

// Execute implements Worker. Non-blocking: false means saturated or
// shutting down.
func (w *grpcWorker) Execute(r *Request) bool {
	if w.stopping.Load() {
		return false
	}
	select {
	case w.requests <- r:
		return true
	default:
		return false
	}
}

// Shutdown implements Worker.
func (w *grpcWorker) Shutdown() {
	w.stopping.Store(true)
	w.stopOnce.Do(func() { close(w.stopCh) })
}

// ShutdownDone implements Worker.
func (w *grpcWorker) ShutdownDone() bool {
	return w.done.Load()
}

// Join implements Worker.
func (w *grpcWorker) Join() {
	<-w.exited
}

func (w *grpcWorker) loop() {
	defer close(w.exited)

	for {
		select {
		case host := <-w.addPools:
			w.openPool(host)
		case r := <-w.requests:
			w.process(r)
		case <-w.stopCh:
			w.drain()
			return
		}
	}
}

// drain finishes queued requests, closes every pool, and reports shutdown
// completion to the session.
func (w *grpcWorker) drain() {
	for {
		select {
		case r := <-w.requests:
			w.process(r)
		default:
			for host, pool := range w.pools {
				for _, conn := range pool {
					if err := conn.Close(); err != nil {
						w.logger.Warn("Connection close failed",
							zap.Int("worker_id", w.id),
							zap.String("host", host.String()),
							zap.Error(err))
					}
				}
			}
			w.done.Store(true)
			w.notify.NotifyShutdown()
			return
		}
	}
}

// openPool establishes the worker's connections to host. Every attempt is
// reported through the notifier, success or not: bootstrap counts
// completions, and a failed dial simply leaves the pool smaller.
func (w *grpcWorker) openPool(host Host) {
	for i := 0; i < w.coreConns; i++ {
		conn, err := grpc.NewClient(host.String(),
			grpc.WithTransportCredentials(w.creds),
			grpc.WithDefaultCallOptions(grpc.ForceCodec(rawCodec{})),
		)
		if err != nil {
			w.logger.Error("Failed to open connection",
				zap.Int("worker_id", w.id),
				zap.String("host", host.String()),
				zap.Error(err))
		} else {
			w.pools[host] = append(w.pools[host], conn)
		}
		w.notify.NotifyConnected(host)
	}
	w.logger.Debug("Connection pool ready",
		zap.Int("worker_id", w.id),
		zap.String("host", host.String()),
		zap.Int("connections", len(w.pools[host])))
}

// process invokes one request on the first plan host this worker has a
// pool for, rotating over the pool's connections.
func (w *grpcWorker) process(r *Request) {
	conn := w.pickConn(r.Plan())
	if conn == nil {
		r.Future().fail(NewDriverError(ErrCodeNoHostAvailable,
			"no connection to any host in the query plan"))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), w.requestTimeout)
	defer cancel()
	if w.keyspace != "" {
		ctx = metadata.AppendToOutgoingContext(ctx, keyspaceHeader, w.keyspace)
	}

	var resp []byte
	if err := conn.Invoke(ctx, r.Method(), r.Payload(), &resp); err != nil {
		r.Future().fail(err)
		return
	}
	r.Future().resolve(resp)
}

func (w *grpcWorker) pickConn(plan []Host) *grpc.ClientConn {
	for _, host := range plan {
		pool := w.pools[host]
		if len(pool) == 0 {
			continue
		}
		i := w.poolRR[host] % len(pool)
		w.poolRR[host] = i + 1
		return pool[i]
	}
	return nil
}
