package paxos

import (
	"context"
	"sync"

	"github.com/QuangTung97/council-election/cond"
)

// Collector holds the in-flight PROMISE and ACCEPTED responses of one
// proposal round, keyed by acceptor id so that duplicates from the
// same acceptor overwrite instead of inflating the quorum count.
type Collector struct {
	mut    sync.Mutex
	signal *cond.Cond

	promises  map[MemberID]Message
	accepteds map[MemberID]Message
}

func NewCollector() *Collector {
	c := &Collector{
		promises:  map[MemberID]Message{},
		accepteds: map[MemberID]Message{},
	}
	c.signal = cond.New(&c.mut)
	return c
}

func (c *Collector) AddPromise(msg Message) {
	c.mut.Lock()
	defer c.mut.Unlock()
	c.promises[msg.SenderID] = msg
	c.signal.Broadcast()
}

func (c *Collector) AddAccepted(msg Message) {
	c.mut.Lock()
	defer c.mut.Unlock()
	c.accepteds[msg.SenderID] = msg
	c.signal.Broadcast()
}

// Promises returns a snapshot of the promises received so far.
func (c *Collector) Promises() []Message {
	c.mut.Lock()
	defer c.mut.Unlock()
	result := make([]Message, 0, len(c.promises))
	for _, msg := range c.promises {
		result = append(result, msg)
	}
	return result
}

func (c *Collector) NumPromises() int {
	c.mut.Lock()
	defer c.mut.Unlock()
	return len(c.promises)
}

func (c *Collector) NumAccepteds() int {
	c.mut.Lock()
	defer c.mut.Unlock()
	return len(c.accepteds)
}

// WaitPromiseQuorum blocks until promises from at least quorum
// distinct acceptors arrived, or ctx is done.
func (c *Collector) WaitPromiseQuorum(ctx context.Context, quorum int) bool {
	c.mut.Lock()
	defer c.mut.Unlock()

	for len(c.promises) < quorum {
		if err := c.signal.Wait(ctx); err != nil {
			return false
		}
	}
	return true
}

// WaitAcceptedQuorum blocks until accepteds from at least quorum
// distinct acceptors arrived, or ctx is done.
func (c *Collector) WaitAcceptedQuorum(ctx context.Context, quorum int) bool {
	c.mut.Lock()
	defer c.mut.Unlock()

	for len(c.accepteds) < quorum {
		if err := c.signal.Wait(ctx); err != nil {
			return false
		}
	}
	return true
}

// ----------------------------------------------------------

// proposalRound owns the state of one in-flight round: its collector
// and its own IDLE/PREPARING/ACCEPTING/DONE/FAILED state machine, so
// concurrent rounds on the same member never share either.
type proposalRound struct {
	collector *Collector

	mut   sync.Mutex
	state RoundState
}

func newProposalRound() *proposalRound {
	return &proposalRound{
		collector: NewCollector(),
		state:     RoundIdle,
	}
}

func (r *proposalRound) setState(state RoundState) {
	r.mut.Lock()
	defer r.mut.Unlock()
	r.state = state
}

func (r *proposalRound) getState() RoundState {
	r.mut.Lock()
	defer r.mut.Unlock()
	return r.state
}

func (r *proposalRound) isFinished() bool {
	state := r.getState()
	return state == RoundDone || state == RoundFailed
}

// ----------------------------------------------------------

// roundRegistry routes inbound PROMISE and ACCEPTED messages to the
// round they belong to. Responses for rounds that already finished
// are dropped; finished rounds keep their final state queryable.
type roundRegistry struct {
	mut    sync.Mutex
	rounds map[ProposalNum]*proposalRound
}

func newRoundRegistry() *roundRegistry {
	return &roundRegistry{
		rounds: map[ProposalNum]*proposalRound{},
	}
}

func (r *roundRegistry) register(num ProposalNum, round *proposalRound) {
	r.mut.Lock()
	defer r.mut.Unlock()
	r.rounds[num] = round
}

// getActive returns the round only while it still awaits responses.
func (r *roundRegistry) getActive(num ProposalNum) (*proposalRound, bool) {
	r.mut.Lock()
	round, ok := r.rounds[num]
	r.mut.Unlock()

	if !ok || round.isFinished() {
		return nil, false
	}
	return round, true
}

func (r *roundRegistry) stateOf(num ProposalNum) (RoundState, bool) {
	r.mut.Lock()
	round, ok := r.rounds[num]
	r.mut.Unlock()

	if !ok {
		return 0, false
	}
	return round.getState(), true
}
