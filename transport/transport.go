package transport

import (
	"context"

	"github.com/QuangTung97/council-election/paxos"
)

// Handler consumes one inbound message. The server calls it from a
// per-connection goroutine, so a handler that sleeps does not stall
// the listener.
type Handler interface {
	HandleMessage(ctx context.Context, msg paxos.Message)
}
