// Package discovery implements optional gossip-based cluster topology
// discovery. The driver joins the cluster's memberlist ring as an observer
// and surfaces member joins to the session, supplementing seed-based
// discovery.
package discovery

import (
	"fmt"
	"net/netip"
	"os"
	"time"

	"github.com/hashicorp/memberlist"
	"go.uber.org/zap"
)

// Config holds gossip discovery configuration
type Config struct {
	NodeName       string
	BindPort       int
	GossipInterval time.Duration
	ProbeTimeout   time.Duration
	ProbeInterval  time.Duration
}

// JoinFunc receives the address of a member that joined the ring. Called
// from memberlist's goroutines.
type JoinFunc func(addr netip.Addr, port int)

// Gossip watches cluster membership through hashicorp/memberlist.
type Gossip struct {
	memberlist *memberlist.Memberlist
	logger     *zap.Logger
	onJoin     JoinFunc
}

// New creates a gossip watcher and joins the given seed addresses.
func New(cfg *Config, seeds []string, onJoin JoinFunc, logger *zap.Logger) (*Gossip, error) {
	g := &Gossip{logger: logger, onJoin: onJoin}

	mlConfig := memberlist.DefaultLocalConfig()
	mlConfig.Name = cfg.NodeName
	if mlConfig.Name == "" {
		host, _ := os.Hostname()
		mlConfig.Name = fmt.Sprintf("pairdb-driver-%s-%d", host, os.Getpid())
	}
	mlConfig.BindPort = cfg.BindPort
	mlConfig.GossipInterval = cfg.GossipInterval
	mlConfig.ProbeTimeout = cfg.ProbeTimeout
	mlConfig.ProbeInterval = cfg.ProbeInterval
	mlConfig.Events = &eventDelegate{gossip: g, selfName: mlConfig.Name}

	ml, err := memberlist.Create(mlConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create memberlist: %w", err)
	}
	g.memberlist = ml

	if len(seeds) > 0 {
		if _, err := ml.Join(seeds); err != nil {
			logger.Warn("Failed to join some seed nodes", zap.Error(err))
		}
	}

	return g, nil
}

// Shutdown leaves the ring and stops the watcher.
func (g *Gossip) Shutdown() error {
	if err := g.memberlist.Leave(time.Second); err != nil {
		g.logger.Warn("Gossip leave failed", zap.Error(err))
	}
	return g.memberlist.Shutdown()
}

// eventDelegate handles memberlist events
type eventDelegate struct {
	gossip   *Gossip
	selfName string
}

// NotifyJoin is called when a node joins
func (d *eventDelegate) NotifyJoin(node *memberlist.Node) {
	if node.Name == d.selfName {
		// the driver's own member record is not a cluster host
		return
	}
	d.gossip.logger.Info("Node joined",
		zap.String("node_id", node.Name),
		zap.String("addr", node.Addr.String()))
	addr, ok := netip.AddrFromSlice(node.Addr)
	if !ok {
		return
	}
	d.gossip.onJoin(addr.Unmap(), int(node.Port))
}

// NotifyLeave is called when a node leaves
func (d *eventDelegate) NotifyLeave(node *memberlist.Node) {
	d.gossip.logger.Info("Node left", zap.String("node_id", node.Name))
}

// NotifyUpdate is called when a node is updated
func (d *eventDelegate) NotifyUpdate(node *memberlist.Node) {
	d.gossip.logger.Debug("Node updated", zap.String("node_id", node.Name))
}
