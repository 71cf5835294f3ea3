package fake

import (
	"context"
	"sync"

	"github.com/QuangTung97/council-election/paxos"
)

// HandlerFunc consumes one delivered message.
type HandlerFunc func(ctx context.Context, msg paxos.Message)

// Network delivers messages between members in memory, each on its
// own goroutine like the TCP inbox does. Tests can cut a member's
// send path entirely or drop individual messages with a filter,
// giving a network-level fault model independent of the members'
// own fault policies.
type Network struct {
	mut      sync.Mutex
	handlers map[paxos.MemberID]HandlerFunc
	disabled map[paxos.MemberID]bool
	filter   func(from, to paxos.MemberID, msg paxos.Message) bool

	wg sync.WaitGroup
}

func NewNetwork() *Network {
	return &Network{
		handlers: map[paxos.MemberID]HandlerFunc{},
		disabled: map[paxos.MemberID]bool{},
	}
}

func (n *Network) Register(id paxos.MemberID, handler HandlerFunc) {
	n.mut.Lock()
	defer n.mut.Unlock()
	n.handlers[id] = handler
}

// Sender returns the send side of the network for one member.
func (n *Network) Sender(id paxos.MemberID) paxos.Sender {
	return &networkSender{net: n, self: id}
}

// DisableSend cuts the member's outbound path, as if it went offline
// after its last message.
func (n *Network) DisableSend(id paxos.MemberID) {
	n.mut.Lock()
	defer n.mut.Unlock()
	n.disabled[id] = true
}

// SetFilter installs a drop predicate observed on every send. Return
// true to drop the message.
func (n *Network) SetFilter(filter func(from, to paxos.MemberID, msg paxos.Message) bool) {
	n.mut.Lock()
	defer n.mut.Unlock()
	n.filter = filter
}

// Wait blocks until all in-flight deliveries finished.
func (n *Network) Wait() {
	n.wg.Wait()
}

type networkSender struct {
	net  *Network
	self paxos.MemberID
}

func (s *networkSender) Send(to paxos.MemberID, msg paxos.Message) {
	msg.SenderID = s.self
	msg.ReceiverID = to

	n := s.net

	n.mut.Lock()
	if n.disabled[s.self] {
		n.mut.Unlock()
		return
	}
	if n.filter != nil && n.filter(s.self, to, msg) {
		n.mut.Unlock()
		return
	}
	handler, ok := n.handlers[to]
	n.mut.Unlock()

	if !ok {
		return
	}

	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		handler(context.Background(), msg)
	}()
}
