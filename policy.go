package driver

// LoadBalancingPolicy produces an ordered query plan (candidate host order)
// for each request. Init is called once, when the session transitions to
// ready, with the final host registry. NewQueryPlan is called once per
// dispatched request, always from the session goroutine, and must not block.
type LoadBalancingPolicy interface {
	Init(hosts []Host)
	NewQueryPlan(plan *[]Host)
}

// RoundRobinPolicy cycles the plan's starting host across calls so load
// spreads evenly over the registry. It is the default policy.
type RoundRobinPolicy struct {
	hosts []Host
	next  int
}

// NewRoundRobinPolicy creates a round-robin load balancing policy.
func NewRoundRobinPolicy() *RoundRobinPolicy {
	return &RoundRobinPolicy{}
}

// Init implements LoadBalancingPolicy.
func (p *RoundRobinPolicy) Init(hosts []Host) {
	p.hosts = hosts
	p.next = 0
}

// NewQueryPlan implements LoadBalancingPolicy. The plan slice is reused
// across requests; its backing array belongs to the request's scratch field.
func (p *RoundRobinPolicy) NewQueryPlan(plan *[]Host) {
	*plan = (*plan)[:0]
	n := len(p.hosts)
	if n == 0 {
		return
	}
	start := p.next % n
	p.next = (start + 1) % n
	*plan = append(*plan, p.hosts[start:]...)
	*plan = append(*plan, p.hosts[:start]...)
}
