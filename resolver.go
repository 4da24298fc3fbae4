package driver

import (
	"context"
	"fmt"
	"net"
	"net/netip"
)

// Resolver performs asynchronous hostname resolution for seed entries that
// are not literal addresses. Implementations must invoke done exactly once,
// from any goroutine, with either a resolved host or an error.
type Resolver interface {
	Resolve(ctx context.Context, hostname string, port int, done func(Host, error))
}

// netResolver resolves through the process's standard DNS path.
type netResolver struct {
	resolver *net.Resolver
}

func defaultNetResolver() *net.Resolver {
	return net.DefaultResolver
}

func (r *netResolver) Resolve(ctx context.Context, hostname string, port int, done func(Host, error)) {
	go func() {
		addrs, err := r.resolver.LookupIPAddr(ctx, hostname)
		if err != nil {
			done(Host{}, WrapDriverError(ErrCodeResolveFailed,
				fmt.Sprintf("unable to resolve %s:%d", hostname, port), err))
			return
		}
		if len(addrs) == 0 {
			done(Host{}, NewDriverError(ErrCodeResolveFailed,
				fmt.Sprintf("no addresses for %s:%d", hostname, port)))
			return
		}
		addr, ok := netip.AddrFromSlice(addrs[0].IP)
		if !ok {
			done(Host{}, NewDriverError(ErrCodeResolveFailed,
				fmt.Sprintf("bad address for %s: %v", hostname, addrs[0].IP)))
			return
		}
		done(NewHost(addr, port), nil)
	}()
}
