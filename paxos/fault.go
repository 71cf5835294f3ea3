package paxos

import (
	"math/rand"
	"sync"
	"time"
)

// Decision is the fault injector's verdict for one inbound
// PREPARE_REQUEST or ACCEPT_REQUEST.
type Decision struct {
	Drop  bool
	Delay time.Duration
}

// FaultPolicy models the heterogeneous responsiveness of a member.
// It is consulted before the acceptor handlers run; delays sleep the
// handler, drops discard the request without side effects.
type FaultPolicy interface {
	Decide() Decision
}

// ----------------------------------------------------------

type responsivePolicy struct {
}

// NewResponsivePolicy always processes immediately.
func NewResponsivePolicy() FaultPolicy {
	return responsivePolicy{}
}

func (responsivePolicy) Decide() Decision {
	return Decision{}
}

// ----------------------------------------------------------

type flakySlowPolicy struct {
	mut sync.Mutex
	rng *rand.Rand
}

// NewFlakySlowPolicy delays ~5s with probability 50%, drops with
// probability 25%, and processes immediately otherwise.
func NewFlakySlowPolicy(rng *rand.Rand) FaultPolicy {
	return &flakySlowPolicy{rng: rng}
}

func (p *flakySlowPolicy) Decide() Decision {
	p.mut.Lock()
	defer p.mut.Unlock()

	r := p.rng.Intn(100)
	if r < 50 {
		return Decision{Delay: 5 * time.Second}
	}
	if r < 75 {
		return Decision{Drop: true}
	}
	return Decision{}
}

// ----------------------------------------------------------

type lossyPolicy struct {
	mut sync.Mutex
	rng *rand.Rand
}

// NewLossyPolicy drops with probability 30%.
func NewLossyPolicy(rng *rand.Rand) FaultPolicy {
	return &lossyPolicy{rng: rng}
}

func (p *lossyPolicy) Decide() Decision {
	p.mut.Lock()
	defer p.mut.Unlock()

	if p.rng.Intn(100) < 30 {
		return Decision{Drop: true}
	}
	return Decision{}
}

// ----------------------------------------------------------

type variablePolicy struct {
	mut sync.Mutex
	rng *rand.Rand
}

// NewVariablePolicy delays uniformly in [0, 3s).
func NewVariablePolicy(rng *rand.Rand) FaultPolicy {
	return &variablePolicy{rng: rng}
}

func (p *variablePolicy) Decide() Decision {
	p.mut.Lock()
	defer p.mut.Unlock()

	delay := time.Duration(p.rng.Intn(3000)) * time.Millisecond
	return Decision{Delay: delay}
}

// ----------------------------------------------------------

// ProfileFor assigns the reference fault profile of the council
// roster: M1 responsive, M2 flaky-slow, M3 lossy, the rest variable.
func ProfileFor(id MemberID, rng *rand.Rand) FaultPolicy {
	switch id {
	case "M1":
		return NewResponsivePolicy()
	case "M2":
		return NewFlakySlowPolicy(rng)
	case "M3":
		return NewLossyPolicy(rng)
	default:
		return NewVariablePolicy(rng)
	}
}
