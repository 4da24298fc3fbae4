package discovery

import (
	"net"
	"net/netip"
	"testing"

	"github.com/hashicorp/memberlist"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type joinRecord struct {
	addr netip.Addr
	port int
}

func newTestDelegate(selfName string, joins *[]joinRecord) *eventDelegate {
	g := &Gossip{
		logger: zap.NewNop(),
		onJoin: func(addr netip.Addr, port int) {
			*joins = append(*joins, joinRecord{addr: addr, port: port})
		},
	}
	return &eventDelegate{gossip: g, selfName: selfName}
}

func TestNotifyJoinSurfacesMember(t *testing.T) {
	var joins []joinRecord
	d := newTestDelegate("driver-self", &joins)

	d.NotifyJoin(&memberlist.Node{
		Name: "pairdb-node-1",
		Addr: net.ParseIP("10.0.0.7"),
		Port: 7946,
	})

	require.Len(t, joins, 1)
	assert.Equal(t, netip.MustParseAddr("10.0.0.7"), joins[0].addr)
	assert.Equal(t, 7946, joins[0].port)
}

func TestNotifyJoinIgnoresSelf(t *testing.T) {
	var joins []joinRecord
	d := newTestDelegate("driver-self", &joins)

	d.NotifyJoin(&memberlist.Node{
		Name: "driver-self",
		Addr: net.ParseIP("10.0.0.1"),
		Port: 7946,
	})

	assert.Empty(t, joins, "the driver's own member record must not surface")
}

func TestNotifyJoinUnmapsIPv4(t *testing.T) {
	var joins []joinRecord
	d := newTestDelegate("driver-self", &joins)

	// net.ParseIP yields the 4-in-6 mapped form for dotted quads
	d.NotifyJoin(&memberlist.Node{
		Name: "pairdb-node-2",
		Addr: net.ParseIP("192.168.1.5").To16(),
		Port: 7946,
	})

	require.Len(t, joins, 1)
	assert.True(t, joins[0].addr.Is4(), "mapped IPv4 addresses must be unmapped")
	assert.Equal(t, "192.168.1.5", joins[0].addr.String())
}

func TestNotifyLeaveAndUpdateAreObservational(t *testing.T) {
	var joins []joinRecord
	d := newTestDelegate("driver-self", &joins)

	node := &memberlist.Node{Name: "pairdb-node-3", Addr: net.ParseIP("10.0.0.9"), Port: 7946}
	d.NotifyLeave(node)
	d.NotifyUpdate(node)

	assert.Empty(t, joins, "leave and update events do not produce host joins")
}
