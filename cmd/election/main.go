package main

import (
	"context"
	"fmt"
	"os"

	"github.com/QuangTung97/council-election/paxos"
	"github.com/QuangTung97/council-election/simulate"
)

// The reference deployment: nine members on loopback ports 5001..5009
// running the scripted council election.
func main() {
	logger := paxos.NewStdEventLogger()
	logger.Printf("------------- Start Council Election ----------------")

	cluster, err := simulate.NewCluster(simulate.Options{
		BasePort: 5000,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to bind member endpoints:", err)
		os.Exit(1)
	}

	cluster.Start()
	defer cluster.Shutdown()

	cluster.RunScript(context.Background(), logger, simulate.ReferenceScript())

	for _, member := range cluster.Members() {
		state := member.AcceptorState()
		logger.Printf("[%s] final acceptor state: highestSeen=%d highestAccepted=%d value='%s'",
			member.ID(), state.HighestSeen, state.HighestAccepted, state.AcceptedValue)
	}
}
