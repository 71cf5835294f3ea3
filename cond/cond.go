package cond

import (
	"context"
	"sync"
)

// Cond is a broadcast-only condition variable with context-aware waiting.
type Cond struct {
	noCopy
	mut     *sync.Mutex
	waiters []chan struct{}
}

func New(mut *sync.Mutex) *Cond {
	return &Cond{
		mut: mut,
	}
}

// Wait must be used in mutex
func (c *Cond) Wait(ctx context.Context) error {
	signalCh := make(chan struct{})
	c.waiters = append(c.waiters, signalCh)

	c.mut.Unlock()

	select {
	case <-signalCh:
		c.mut.Lock()
		return nil

	case <-ctx.Done():
		c.mut.Lock()
		c.removeWaiter(signalCh)
		return ctx.Err()
	}
}

// Broadcast must be used in mutex
func (c *Cond) Broadcast() {
	for _, ch := range c.waiters {
		close(ch)
	}
	c.waiters = nil
}

func (c *Cond) removeWaiter(signalCh chan struct{}) {
	for index, ch := range c.waiters {
		if ch == signalCh {
			c.waiters = append(c.waiters[:index], c.waiters[index+1:]...)
			return
		}
	}
}

// -----------------------------------------------------

type noCopy struct {
}

var _ sync.Locker = &noCopy{}

func (*noCopy) Lock()   {}
func (*noCopy) Unlock() {}
