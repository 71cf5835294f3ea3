package paxos_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	. "github.com/QuangTung97/council-election/paxos"
	"github.com/QuangTung97/council-election/paxos/fake"
	"github.com/QuangTung97/council-election/paxos/testutil"
)

type electionTest struct {
	config  Config
	network *fake.Network
	members map[MemberID]*Member
	loggers map[MemberID]*fake.LoggerFake
}

func newElectionTest(memberCount int, timeout time.Duration) *electionTest {
	s := &electionTest{
		network: fake.NewNetwork(),
		members: map[MemberID]*Member{},
		loggers: map[MemberID]*fake.LoggerFake{},
	}

	for num := 1; num <= memberCount; num++ {
		s.config.Members = append(s.config.Members, MemberID(fmt.Sprintf("M%d", num)))
	}
	s.config.PhaseTimeout = timeout

	for _, id := range s.config.Members {
		logger := &fake.LoggerFake{}
		member := NewMember(id, s.config, s.network.Sender(id), NewResponsivePolicy(), logger)
		s.network.Register(id, member.HandleMessage)

		s.members[id] = member
		s.loggers[id] = logger
	}

	return s
}

func (s *electionTest) propose(id MemberID, value string) (string, error) {
	return s.members[id].ProposeValue(context.Background(), value)
}

func (s *electionTest) checkAllInvariants() {
	for _, id := range s.config.Members {
		s.members[id].Acceptor().CheckInvariant()
	}
}

func TestElection_Uncontested(t *testing.T) {
	s := newElectionTest(9, 5*time.Second)

	value, err := s.propose("M1", "M1")
	assert.Equal(t, nil, err)
	assert.Equal(t, "M1", value)

	s.network.Wait()

	learned, ok := s.members["M1"].LearnedValue()
	assert.True(t, ok)
	assert.Equal(t, "M1", learned)

	state, ok := s.members["M1"].Proposer().StateOfRound(11)
	assert.True(t, ok)
	assert.Equal(t, RoundDone, state)

	assert.True(t, s.loggers["M1"].Contains("Final value accepted is M1 by proposer M1"))
	assert.True(t, s.loggers["M1"].Contains("M1 has been elected as Council President!"))

	// every acceptor ends with the chosen value; the proposer never
	// sends to itself, so its own acceptor state stays untouched
	for _, id := range s.config.Members {
		state := s.members[id].AcceptorState()
		if id == "M1" {
			assert.Equal(t, AcceptorState{}, state)
			continue
		}
		assert.Equal(t, AcceptorState{
			HighestSeen:     11,
			HighestAccepted: 11,
			AcceptedValue:   "M1",
		}, state)
	}

	s.checkAllInvariants()
}

func TestElection_PhaseOneTimeout(t *testing.T) {
	s := newElectionTest(9, 100*time.Millisecond)

	s.network.SetFilter(func(from, to MemberID, msg Message) bool {
		return msg.Type == TypePrepareRequest
	})

	_, err := s.propose("M1", "M1")
	assert.Equal(t, ErrNoPromiseQuorum, err)

	state, ok := s.members["M1"].Proposer().StateOfRound(11)
	assert.True(t, ok)
	assert.Equal(t, RoundFailed, state)

	assert.True(t, s.loggers["M1"].Contains("[M1] Failed to receive promises from majority"))

	s.network.Wait()
	for _, id := range s.config.Members {
		assert.Equal(t, AcceptorState{}, s.members[id].AcceptorState())
	}
}

func TestElection_ProposerSilentAfterPhaseOne(t *testing.T) {
	s := newElectionTest(9, 200*time.Millisecond)

	// M2 completes phase 1, then its accept requests vanish
	s.network.SetFilter(func(from, to MemberID, msg Message) bool {
		return from == "M2" && msg.Type == TypeAcceptRequest
	})

	_, err := s.propose("M2", "M2")
	assert.Equal(t, ErrNoAcceptedQuorum, err)

	state, ok := s.members["M2"].Proposer().StateOfRound(12)
	assert.True(t, ok)
	assert.Equal(t, RoundFailed, state)

	assert.True(t, s.loggers["M2"].Contains("[M2] Failed to reach consensus on value: M2"))
	assert.False(t, s.loggers["M2"].Contains("Final value accepted"))

	s.network.Wait()

	// acceptors keep the highestSeen bump from the prepare but no value
	for _, id := range s.config.Members {
		if id == "M2" {
			continue
		}
		assert.Equal(t, AcceptorState{HighestSeen: 12}, s.members[id].AcceptorState())
	}

	_, ok = s.members["M2"].LearnedValue()
	assert.False(t, ok)
	s.checkAllInvariants()
}

func TestElection_ValueOverride(t *testing.T) {
	s := newElectionTest(9, 5*time.Second)

	// a previous round by M1 reached four acceptors with (11, "M1"),
	// one short of a majority; any five of M2's eight promises then
	// include at least one of them
	seed := newAccept(11, "M1", "M1")
	s.members["M4"].HandleMessage(context.Background(), seed)
	s.members["M5"].HandleMessage(context.Background(), seed)
	s.members["M6"].HandleMessage(context.Background(), seed)
	s.members["M7"].HandleMessage(context.Background(), seed)
	s.network.Wait()

	value, err := s.propose("M2", "M2")
	assert.Equal(t, nil, err)
	assert.Equal(t, "M1", value)

	assert.True(t, s.loggers["M2"].Contains(
		"Phase 2 : M2 learns about previously accepted value 'M1' with proposal number 11"))
	assert.True(t, s.loggers["M2"].Contains("Final value accepted is M1 by proposer M2"))

	s.network.Wait()
	for _, id := range s.config.Members {
		if id == "M2" {
			continue
		}
		state := s.members[id].AcceptorState()
		assert.Equal(t, "M1", state.AcceptedValue)
		assert.Equal(t, ProposalNum(12), state.HighestAccepted)
	}
	s.checkAllInvariants()
}

func TestElection_OwnValueWhenNoPriorAccept(t *testing.T) {
	s := newElectionTest(9, 5*time.Second)

	value, err := s.propose("M3", "M3")
	assert.Equal(t, nil, err)
	assert.Equal(t, "M3", value)

	assert.True(t, s.loggers["M3"].Contains(
		"Phase 2 : M3 did not learn about any previously accepted value. Proceeding with own value 'M3'"))
}

func TestElection_MajorityBoundary(t *testing.T) {
	// with nine members the threshold is five accepteds

	t.Run("exactly 5 accepteds succeed", func(t *testing.T) {
		s := newElectionTest(9, 300*time.Millisecond)

		blocked := map[MemberID]bool{"M7": true, "M8": true, "M9": true}
		s.network.SetFilter(func(from, to MemberID, msg Message) bool {
			return msg.Type == TypeAcceptRequest && blocked[to]
		})

		value, err := s.propose("M1", "M1")
		assert.Equal(t, nil, err)
		assert.Equal(t, "M1", value)
		s.network.Wait()
	})

	t.Run("exactly 4 accepteds fail", func(t *testing.T) {
		s := newElectionTest(9, 300*time.Millisecond)

		blocked := map[MemberID]bool{"M6": true, "M7": true, "M8": true, "M9": true}
		s.network.SetFilter(func(from, to MemberID, msg Message) bool {
			return msg.Type == TypeAcceptRequest && blocked[to]
		})

		_, err := s.propose("M1", "M1")
		assert.Equal(t, ErrNoAcceptedQuorum, err)
		s.network.Wait()
	})
}

func TestElection_SequentialRoundsConverge(t *testing.T) {
	s := newElectionTest(9, 5*time.Second)

	first, err := s.propose("M1", "M1")
	assert.Equal(t, nil, err)
	assert.Equal(t, "M1", first)
	s.network.Wait()

	// a later competing round must adopt the already chosen value
	second, err := s.propose("M3", "M3")
	assert.Equal(t, nil, err)
	assert.Equal(t, "M1", second)

	learned, ok := s.members["M3"].LearnedValue()
	assert.True(t, ok)
	assert.Equal(t, "M1", learned)

	s.network.Wait()
	for _, id := range s.config.Members {
		state := s.members[id].AcceptorState()
		if state.HasAccepted() {
			assert.Equal(t, "M1", state.AcceptedValue)
		}
	}
	s.checkAllInvariants()
}

func TestElection_ConcurrentProposalsAgree(t *testing.T) {
	s := newElectionTest(9, 5*time.Second)
	bg := testutil.Start(t)

	var mut sync.Mutex
	results := map[MemberID]string{}

	run := func(id MemberID) *testutil.Handle {
		return bg.Go(func(ctx context.Context) error {
			value, err := s.members[id].ProposeValue(ctx, string(id))
			if err != nil {
				return err
			}
			mut.Lock()
			results[id] = value
			mut.Unlock()
			return nil
		})
	}

	h1 := run("M1")
	h3 := run("M3")

	err1 := h1.AwaitErr(t, 10*time.Second)
	err3 := h3.AwaitErr(t, 10*time.Second)
	s.network.Wait()

	// each round owns its own state machine: the two rounds ended
	// independently, in the state matching their own outcome
	state1, ok := s.members["M1"].Proposer().StateOfRound(11)
	assert.True(t, ok)
	if err1 == nil {
		assert.Equal(t, RoundDone, state1)
	} else {
		assert.Equal(t, RoundFailed, state1)
	}

	state3, ok := s.members["M3"].Proposer().StateOfRound(13)
	assert.True(t, ok)
	if err3 == nil {
		assert.Equal(t, RoundDone, state3)
	} else {
		assert.Equal(t, RoundFailed, state3)
	}

	// any two rounds that both completed must have chosen one value
	mut.Lock()
	chosen := map[string]struct{}{}
	for _, value := range results {
		chosen[value] = struct{}{}
	}
	mut.Unlock()
	assert.LessOrEqual(t, len(chosen), 1)

	for _, id := range s.config.Members {
		state := s.members[id].AcceptorState()
		if !state.HasAccepted() {
			continue
		}
		for value := range chosen {
			assert.Equal(t, value, state.AcceptedValue)
		}
	}
	s.checkAllInvariants()
}

func TestElection_ConcurrentRoundsOnOneMember(t *testing.T) {
	s := newElectionTest(9, 2*time.Second)
	bg := testutil.Start(t)

	run := func(value string) *testutil.Handle {
		return bg.Go(func(ctx context.Context) error {
			_, err := s.members["M1"].ProposeValue(ctx, value)
			return err
		})
	}

	hA := run("alpha")
	hB := run("beta")

	errA := hA.AwaitErr(t, 10*time.Second)
	errB := hB.AwaitErr(t, 10*time.Second)
	s.network.Wait()

	// the member ran rounds 11 and 21 at the same time; each kept its
	// own final state instead of overwriting a shared one
	numDone := 0
	for _, num := range []ProposalNum{11, 21} {
		state, ok := s.members["M1"].Proposer().StateOfRound(num)
		assert.True(t, ok)
		if state == RoundDone {
			numDone++
		} else {
			assert.Equal(t, RoundFailed, state)
		}
	}

	numSucceeded := 0
	if errA == nil {
		numSucceeded++
	}
	if errB == nil {
		numSucceeded++
	}
	assert.Equal(t, numSucceeded, numDone)

	// the higher numbered round cannot be blocked by the lower one
	assert.GreaterOrEqual(t, numDone, 1)
	s.checkAllInvariants()
}

func TestElection_ProposalNumbersStrictlyIncrease(t *testing.T) {
	s := newElectionTest(9, 300*time.Millisecond)

	var mut sync.Mutex
	var prepareNums []ProposalNum
	s.network.SetFilter(func(from, to MemberID, msg Message) bool {
		if from == "M1" && to == "M2" && msg.Type == TypePrepareRequest {
			mut.Lock()
			prepareNums = append(prepareNums, msg.ProposalNumber)
			mut.Unlock()
		}
		return false
	})

	_, err := s.propose("M1", "first")
	assert.Equal(t, nil, err)
	s.network.Wait()

	_, err = s.propose("M1", "second")
	assert.Equal(t, nil, err)
	s.network.Wait()

	mut.Lock()
	defer mut.Unlock()
	assert.Equal(t, []ProposalNum{11, 21}, prepareNums)
}

func TestElection_NetworkLevelLoss(t *testing.T) {
	// the in-handler fault model is replaceable by network-level drops:
	// cutting every message to M3 still leaves a comfortable quorum
	s := newElectionTest(9, 5*time.Second)

	s.network.SetFilter(func(from, to MemberID, msg Message) bool {
		return to == "M3"
	})

	value, err := s.propose("M1", "M1")
	assert.Equal(t, nil, err)
	assert.Equal(t, "M1", value)

	s.network.Wait()
	assert.Equal(t, AcceptorState{}, s.members["M3"].AcceptorState())
}

func TestElection_DisabledSenderFallsSilent(t *testing.T) {
	s := newElectionTest(9, 200*time.Millisecond)

	s.network.DisableSend("M2")

	_, err := s.propose("M2", "M2")
	assert.Equal(t, ErrNoPromiseQuorum, err)

	s.network.Wait()
	for _, id := range s.config.Members {
		assert.Equal(t, AcceptorState{}, s.members[id].AcceptorState())
	}
}
