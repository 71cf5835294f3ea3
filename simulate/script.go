package simulate

import (
	"context"
	"time"

	"github.com/QuangTung97/council-election/paxos"
)

// Step is one scripted proposal: at Start after the script began,
// Proposer calls ProposeValue with Value.
type Step struct {
	Start    time.Duration
	Proposer paxos.MemberID
	Value    string
	Banner   string
}

// ReferenceScript is the three act council election: M1 proposes,
// then M2, then M3. The M2 and M3 steps print an "offline" banner;
// the script does not cut either member's traffic.
func ReferenceScript() []Step {
	return []Step{
		{Start: 0, Proposer: "M1", Value: "M1"},
		{
			Start: 20 * time.Second, Proposer: "M2", Value: "M2",
			Banner: "-------------- M2 will be offline after sending proposal -------------",
		},
		{
			Start: 40 * time.Second, Proposer: "M3", Value: "M3",
			Banner: "-------------- M3 will be offline after sending proposal -------------",
		},
	}
}

// RunScript replays the steps against the cluster and returns once
// every started round ended.
func (c *Cluster) RunScript(ctx context.Context, logger paxos.EventLogger, steps []Step) {
	begin := time.Now()

	done := make(chan struct{}, len(steps))
	for _, step := range steps {
		wait := step.Start - time.Since(begin)
		if wait > 0 {
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return
			}
		}

		if step.Banner != "" {
			logger.Printf("%s", step.Banner)
		}

		member := c.Member(step.Proposer)
		value := step.Value
		go func() {
			_, _ = member.ProposeValue(ctx, value)
			done <- struct{}{}
		}()
	}

	for range steps {
		select {
		case <-done:
		case <-ctx.Done():
			return
		}
	}
}
