package gateway

import (
	"math/rand/v2"
	"sync/atomic"
)

// CandidatePolicy orders registered replicas for one failover read. The
// returned slice must contain each address at most once.
type CandidatePolicy interface {
	Order(addresses []string) []string
}

// RandomFallback picks one replica uniformly at random as preferred and
// falls back to the rest in registry order.
type RandomFallback struct {
	// IntN returns a value in [0, n). Defaults to math/rand/v2.
	IntN func(n int) int
}

// Order implements CandidatePolicy.
func (p RandomFallback) Order(addresses []string) []string {
	if len(addresses) == 0 {
		return nil
	}
	pick := rand.IntN
	if p.IntN != nil {
		pick = p.IntN
	}
	preferred := pick(len(addresses))
	out := make([]string, 0, len(addresses))
	out = append(out, addresses[preferred])
	for i, a := range addresses {
		if i != preferred {
			out = append(out, a)
		}
	}
	return out
}

// RoundRobin rotates the preferred replica on every call.
type RoundRobin struct {
	next atomic.Uint64
}

// Order implements CandidatePolicy.
func (p *RoundRobin) Order(addresses []string) []string {
	n := len(addresses)
	if n == 0 {
		return nil
	}
	start := int(p.next.Add(1)-1) % n
	out := make([]string, 0, n)
	for i := range n {
		out = append(out, addresses[(start+i)%n])
	}
	return out
}

// PolicyByName resolves the gateway.policy setting.
func PolicyByName(name string) CandidatePolicy {
	if name == "round_robin" {
		return &RoundRobin{}
	}
	return RandomFallback{}
}
