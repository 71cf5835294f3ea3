package testutil

import (
	"context"
	"sync"
	"testing"
	"time"
)

// Background runs test goroutines under one context and makes the
// test wait for all of them on cleanup.
type Background struct {
	ctx    context.Context
	cancel func()
	wg     sync.WaitGroup
}

func Start(t *testing.T) *Background {
	b := &Background{}
	b.ctx, b.cancel = context.WithCancel(context.Background())

	t.Cleanup(func() {
		b.cancel()
		b.wg.Wait()
	})

	return b
}

// Go starts fn and returns a handle the test can block on or probe.
func (b *Background) Go(fn func(ctx context.Context) error) *Handle {
	h := &Handle{
		done: make(chan struct{}),
	}

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		h.err = fn(b.ctx)
		close(h.done)
	}()

	return h
}

// Handle tracks one goroutine started by Background.Go.
type Handle struct {
	done chan struct{}
	err  error // written before done is closed
}

// AssertRunning gives the goroutine a short grace period, then fails
// the test if it already returned.
func (h *Handle) AssertRunning(t *testing.T) {
	t.Helper()
	time.Sleep(10 * time.Millisecond)

	select {
	case <-h.done:
		t.Error("goroutine should still be running")
	default:
	}
}

// AwaitErr blocks until the goroutine returns and hands back its
// error. It fails the test when the timeout elapses first.
func (h *Handle) AwaitErr(t *testing.T, timeout time.Duration) error {
	t.Helper()

	select {
	case <-h.done:
		return h.err
	case <-time.After(timeout):
		t.Fatal("goroutine did not finish in time")
		return nil
	}
}
