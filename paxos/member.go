package paxos

import (
	"context"
	"sync"
)

// Member is one council node. It runs all three roles at once: its
// acceptor answers PREPARE and ACCEPT_REQUEST (behind the fault
// policy), its proposer drives rounds started by ProposeValue, and as
// its own learner it records the decision of any round it completed.
type Member struct {
	id     MemberID
	config Config

	acceptor AcceptorLogic
	proposer ProposerLogic
	rounds   *roundRegistry
	fault    FaultPolicy
	sender   Sender
	logger   EventLogger

	mut          sync.Mutex
	learnedNum   ProposalNum
	learnedValue string
	hasLearned   bool
}

func NewMember(
	id MemberID,
	config Config,
	sender Sender,
	fault FaultPolicy,
	logger EventLogger,
) *Member {
	AssertTrue(config.containsMember(id))

	m := &Member{
		id:     id,
		config: config,

		rounds: newRoundRegistry(),
		fault:  fault,
		sender: sender,
		logger: logger,
	}
	m.acceptor = NewAcceptorLogic(id, logger)
	m.proposer = NewProposerLogic(id, config, sender, m.rounds, logger, m.recordDecision)
	return m
}

func (m *Member) ID() MemberID {
	return m.id
}

// ProposeValue runs one proposal round and returns when the round
// ends, with the value the round chose.
func (m *Member) ProposeValue(ctx context.Context, value string) (string, error) {
	return m.proposer.Propose(ctx, value)
}

// HandleMessage dispatches one inbound message by type. It is safe
// for concurrent use; delay-injected handlers block only their own
// caller.
func (m *Member) HandleMessage(ctx context.Context, msg Message) {
	switch msg.Type {
	case TypePrepareRequest:
		m.handlePrepare(ctx, msg)
	case TypeAcceptRequest:
		m.handleAccept(ctx, msg)
	case TypePromise:
		m.handlePromise(msg)
	case TypeAccepted:
		m.handleAccepted(msg)
	default:
		m.logger.Printf("[%s] Unknown message type: %s", m.id, msg.Type)
	}
}

// passFaultGate applies the member's fault policy to an inbound
// acceptor-bound request. It returns false when the request must be
// dropped, after sleeping out any injected delay.
func (m *Member) passFaultGate(ctx context.Context) bool {
	decision := m.fault.Decide()
	if decision.Drop {
		return false
	}
	if decision.Delay > 0 {
		sleepWithContext(ctx, decision.Delay)
	}
	return true
}

func (m *Member) handlePrepare(ctx context.Context, msg Message) {
	if !m.passFaultGate(ctx) {
		return
	}
	reply, ok := m.acceptor.HandlePrepare(msg)
	if ok {
		m.sender.Send(msg.SenderID, reply)
	}
}

func (m *Member) handleAccept(ctx context.Context, msg Message) {
	if !m.passFaultGate(ctx) {
		return
	}
	reply, ok := m.acceptor.HandleAccept(msg)
	if ok {
		m.sender.Send(msg.SenderID, reply)
	}
}

func (m *Member) handlePromise(msg Message) {
	round, ok := m.rounds.getActive(msg.ProposalNumber)
	if !ok {
		// response for a round that already finished
		return
	}
	m.logger.Printf("Phase 2 : Proposer %s received PROMISE from %s", m.id, msg.SenderID)
	round.collector.AddPromise(msg)
}

func (m *Member) handleAccepted(msg Message) {
	round, ok := m.rounds.getActive(msg.ProposalNumber)
	if !ok {
		return
	}
	m.logger.Printf("Phase 4 : Proposer %s received ACCEPTED from %s", m.id, msg.SenderID)
	round.collector.AddAccepted(msg)
}

func (m *Member) recordDecision(num ProposalNum, value string) {
	m.mut.Lock()
	defer m.mut.Unlock()
	m.learnedNum = num
	m.learnedValue = value
	m.hasLearned = true
}

// LearnedValue returns the decision this member learned from its own
// completed rounds, if any.
func (m *Member) LearnedValue() (string, bool) {
	m.mut.Lock()
	defer m.mut.Unlock()
	return m.learnedValue, m.hasLearned
}

// AcceptorState returns a consistent snapshot of the acceptor fields.
func (m *Member) AcceptorState() AcceptorState {
	return m.acceptor.GetState()
}

// Acceptor for testing only
func (m *Member) Acceptor() AcceptorLogic {
	return m.acceptor
}

// Proposer for testing only
func (m *Member) Proposer() ProposerLogic {
	return m.proposer
}
