package paxos

import (
	"context"
	"errors"
	"sync/atomic"
	"time"
)

var (
	ErrNoPromiseQuorum  = errors.New("paxos: no promise quorum before phase timeout")
	ErrNoAcceptedQuorum = errors.New("paxos: no accepted quorum before phase timeout")
)

// ProposerLogic drives proposal rounds for one member. Multiple
// rounds may run concurrently; each owns its own collector and its
// proposal numbers are strictly increasing.
type ProposerLogic interface {
	// Propose runs one full round for value and returns the value the
	// round actually chose, which differs from the input when a
	// previously accepted value had to be adopted.
	Propose(ctx context.Context, value string) (string, error)

	// StateOfRound for testing only
	StateOfRound(num ProposalNum) (RoundState, bool)
}

type proposerLogicImpl struct {
	memberID MemberID
	idNumber int
	config   Config

	sender Sender
	rounds *roundRegistry
	logger EventLogger
	learn  func(num ProposalNum, value string)

	round atomic.Int64
}

func NewProposerLogic(
	memberID MemberID,
	config Config,
	sender Sender,
	rounds *roundRegistry,
	logger EventLogger,
	learn func(num ProposalNum, value string),
) ProposerLogic {
	return &proposerLogicImpl{
		memberID: memberID,
		idNumber: memberID.Number(),
		config:   config,

		sender: sender,
		rounds: rounds,
		logger: logger,
		learn:  learn,
	}
}

func (p *proposerLogicImpl) Propose(ctx context.Context, value string) (string, error) {
	p.logger.Printf("--------------- Voting:: %s will send proposal. --------------", p.memberID)

	num := NewProposalNum(p.round.Add(1), p.idNumber)

	round := newProposalRound()
	p.rounds.register(num, round)
	collector := round.collector

	round.setState(RoundPreparing)

	p.logger.Printf("Phase 1 : %s starts Phase 1 - Prepare. Sending PREPARE to members with proposal number %d",
		p.memberID, num)

	p.broadcast(Message{
		Type:           TypePrepareRequest,
		ProposalNumber: num,
		ProposerID:     p.memberID,
	})

	quorum := p.config.Majority()

	if !p.waitQuorum(ctx, collector.WaitPromiseQuorum, quorum) {
		round.setState(RoundFailed)
		p.logger.Printf("[%s] Failed to receive promises from majority", p.memberID)
		return "", ErrNoPromiseQuorum
	}

	p.logger.Printf("Phase 2 : %s received PROMISES from majority.", p.memberID)

	value = p.chooseValue(collector.Promises(), value)

	round.setState(RoundAccepting)

	p.logger.Printf("Phase 3: %s starts Phase 3 - Accept. Sending ACCEPT_REQUEST with value '%s' to members.",
		p.memberID, value)

	p.broadcast(Message{
		Type:           TypeAcceptRequest,
		ProposalNumber: num,
		ProposerID:     p.memberID,
		Value:          value,
	})

	if !p.waitQuorum(ctx, collector.WaitAcceptedQuorum, quorum) {
		round.setState(RoundFailed)
		p.logger.Printf("[%s] Failed to reach consensus on value: %s", p.memberID, value)
		return "", ErrNoAcceptedQuorum
	}

	round.setState(RoundDone)
	p.learn(num, value)

	p.logger.Printf("!!!!!!!!!!!     Final value accepted is %s by proposer %s     !!!!!!!!!!!!!",
		value, p.memberID)
	p.logger.Printf("************     %s has been elected as Council President!     ************", value)

	return value, nil
}

// chooseValue applies the value safety rule: when any promise carries
// a previously accepted value, adopt the one with the highest
// accepted proposal number instead of the original value.
func (p *proposerLogicImpl) chooseValue(promises []Message, original string) string {
	var highest ProposalNum
	chosen := original
	found := false

	for _, promise := range promises {
		if promise.LastAcceptedProposalNumber.IsZero() {
			continue
		}
		if !found || promise.LastAcceptedProposalNumber > highest {
			highest = promise.LastAcceptedProposalNumber
			chosen = promise.LastAcceptedValue
			found = true
		}
	}

	if found {
		p.logger.Printf("Phase 2 : %s learns about previously accepted value '%s' with proposal number %d",
			p.memberID, chosen, highest)
	} else {
		p.logger.Printf("Phase 2 : %s did not learn about any previously accepted value. Proceeding with own value '%s'",
			p.memberID, chosen)
	}

	return chosen
}

func (p *proposerLogicImpl) waitQuorum(
	ctx context.Context,
	waitFn func(ctx context.Context, quorum int) bool,
	quorum int,
) bool {
	waitCtx, cancel := context.WithTimeout(ctx, p.phaseTimeout())
	defer cancel()
	return waitFn(waitCtx, quorum)
}

func (p *proposerLogicImpl) phaseTimeout() time.Duration {
	if p.config.PhaseTimeout > 0 {
		return p.config.PhaseTimeout
	}
	return 15 * time.Second
}

func (p *proposerLogicImpl) broadcast(msg Message) {
	for _, member := range p.config.Members {
		if member == p.memberID {
			continue
		}
		p.sender.Send(member, msg)
	}
}

func (p *proposerLogicImpl) StateOfRound(num ProposalNum) (RoundState, bool) {
	return p.rounds.stateOf(num)
}
