package paxos

import (
	"context"
	"time"
)

func AssertTrue(b bool) {
	if !b {
		panic("must be true here")
	}
}

func sleepWithContext(ctx context.Context, duration time.Duration) {
	select {
	case <-time.After(duration):
	case <-ctx.Done():
	}
}
