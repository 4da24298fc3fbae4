package driver

import (
	"net"
	"net/netip"
	"strconv"
)

// Host identifies one cluster node by network address. Hosts are immutable
// and compared by address.
type Host struct {
	Addr netip.Addr
	Port int
}

// NewHost creates a host from a parsed address and port.
func NewHost(addr netip.Addr, port int) Host {
	return Host{Addr: addr.Unmap(), Port: port}
}

// String returns the host's dialable "ip:port" form.
func (h Host) String() string {
	return net.JoinHostPort(h.Addr.String(), strconv.Itoa(h.Port))
}

// ParseHost parses a seed entry as a literal network address. The entry may
// be a bare IP (the default port applies) or an "ip:port" pair. Hostnames
// are not accepted here; they go through the resolver.
func ParseHost(seed string, defaultPort int) (Host, bool) {
	if addr, err := netip.ParseAddr(seed); err == nil {
		return NewHost(addr, defaultPort), true
	}
	if ap, err := netip.ParseAddrPort(seed); err == nil {
		return NewHost(ap.Addr(), int(ap.Port())), true
	}
	return Host{}, false
}

// hostSet is the session's host registry: an insertion-ordered set of hosts
// deduplicated by address. It is mutated only by the session goroutine.
type hostSet struct {
	byAddr map[Host]struct{}
	list   []Host
}

func newHostSet() *hostSet {
	return &hostSet{byAddr: make(map[Host]struct{})}
}

// Add inserts h, reporting whether it was not already present.
func (s *hostSet) Add(h Host) bool {
	if _, ok := s.byAddr[h]; ok {
		return false
	}
	s.byAddr[h] = struct{}{}
	s.list = append(s.list, h)
	return true
}

func (s *hostSet) Len() int {
	return len(s.list)
}

// Snapshot returns a copy of the registry contents in insertion order.
func (s *hostSet) Snapshot() []Host {
	out := make([]Host, len(s.list))
	copy(out, s.list)
	return out
}
